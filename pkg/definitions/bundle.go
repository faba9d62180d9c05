// Package definitions loads JSON or YAML definition bundles (actions, workflows
// with their transitions, automation rules) and applies them to the
// workflow service and the automation engine.
package definitions

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/dukex/ruleflow/pkg/models"
)

const opLoad = "definitions.Load"

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// Workflow is a workflow definition together with its transitions.
type Workflow struct {
	models.WorkflowDefinition
	Transitions []*models.Transition `json:"transitions,omitempty"`
}

// Bundle is one definition document. Chain actions may list child codes
// instead of ids; Apply resolves them.
type Bundle struct {
	Actions   []*models.ServerAction   `json:"actions,omitempty"`
	Workflows []*Workflow              `json:"workflows,omitempty"`
	Rules     []*models.AutomationRule `json:"rules,omitempty"`
}

// LoadFile reads and validates the bundle at path. Files ending in .yaml
// or .yml are read as YAML.
func LoadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}

// ParseYAML converts a YAML bundle to JSON and parses it.
func ParseYAML(data []byte) (*Bundle, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &models.Error{
			Kind:   models.KindConfiguration,
			Op:     opLoad,
			Detail: "bundle is not valid YAML",
			Err:    err,
		}
	}

	converted, err := json.Marshal(doc)
	if err != nil {
		return nil, &models.Error{
			Kind:   models.KindConfiguration,
			Op:     opLoad,
			Detail: "bundle cannot be represented as JSON",
			Err:    err,
		}
	}

	return Parse(converted)
}

// Load reads and validates a bundle from r.
func Load(r io.Reader) (*Bundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}

	return Parse(data)
}

// Parse validates data against the bundle schema and decodes it. Schema
// violations are reported together as one configuration error.
func Parse(data []byte) (*Bundle, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &models.Error{
			Kind:   models.KindConfiguration,
			Op:     opLoad,
			Detail: "bundle is not valid JSON",
			Err:    err,
		}
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return nil, models.NewConfigurationError(opLoad, "bundle does not match schema: %s", strings.Join(problems, "; "))
	}

	var bundle Bundle

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&bundle); err != nil {
		return nil, &models.Error{
			Kind:   models.KindConfiguration,
			Op:     opLoad,
			Detail: "failed to decode bundle",
			Err:    err,
		}
	}

	return &bundle, nil
}
