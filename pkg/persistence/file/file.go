// Package file provides file-based persistence: one JSON document per
// entity under <root>/<kind>/<id>.json.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/ruleflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root string
	// mu serialises every write so read-check-write sequences (code
	// uniqueness, state versions) are atomic within the process.
	mu sync.Mutex

	workflowRepo   *WorkflowRepository
	transitionRepo *TransitionRepository
	stateRepo      *StateRepository
	activityRepo   *ActivityRepository
	actionRepo     *ActionRepository
	ruleRepo       *RuleRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.workflowRepo = &WorkflowRepository{mu: &p.mu, docs: newCollection[workflowDoc](cleanRoot, "workflows")}
	p.transitionRepo = &TransitionRepository{mu: &p.mu, docs: newCollection[transitionDoc](cleanRoot, "transitions")}
	p.stateRepo = &StateRepository{mu: &p.mu, docs: newCollection[stateDoc](cleanRoot, "states")}
	p.activityRepo = &ActivityRepository{mu: &p.mu, docs: newCollection[activityDoc](cleanRoot, "activities")}
	p.actionRepo = &ActionRepository{mu: &p.mu, docs: newCollection[actionDoc](cleanRoot, "actions")}
	p.ruleRepo = &RuleRepository{mu: &p.mu, docs: newCollection[ruleDoc](cleanRoot, "rules")}

	return p
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) Workflows() persistence.WorkflowRepository     { return fp.workflowRepo }
func (fp *Persistence) Transitions() persistence.TransitionRepository { return fp.transitionRepo }
func (fp *Persistence) States() persistence.StateRepository           { return fp.stateRepo }
func (fp *Persistence) Activities() persistence.ActivityRepository    { return fp.activityRepo }
func (fp *Persistence) Actions() persistence.ActionRepository         { return fp.actionRepo }
func (fp *Persistence) Rules() persistence.RuleRepository             { return fp.ruleRepo }

// collection reads and writes JSON documents of one kind.
type collection[T any] struct {
	dir  string
	kind string
}

func newCollection[T any](root, kind string) collection[T] {
	return collection[T]{dir: filepath.Join(root, kind), kind: kind}
}

func (c collection[T]) path(id string) string {
	return filepath.Clean(filepath.Join(c.dir, id+".json"))
}

// get returns (nil, nil) when the document does not exist.
func (c collection[T]) get(id string) (*T, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, nil
	}

	body, err := os.ReadFile(c.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch %s %s: %w", c.kind, id, err)
	}

	var doc T

	err = json.Unmarshal(body, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s %s: %w", c.kind, id, err)
	}

	return &doc, nil
}

// put writes the document to a temp file and renames it into place.
func (c collection[T]) put(id string, doc *T) error {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid %s id %q", c.kind, id)
	}

	err := os.MkdirAll(c.dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", c.kind, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", c.kind, id, err)
	}

	filePath := c.path(id)
	tempPath := filePath + ".tmp"

	err = os.WriteFile(tempPath, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", c.kind, id, err)
	}

	return os.Rename(tempPath, filePath)
}

func (c collection[T]) all() ([]*T, error) {
	files, err := fs.Glob(os.DirFS(c.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", c.kind, err)
	}

	docs := make([]*T, 0, len(files))

	for _, file := range files {
		doc, err := c.get(strings.TrimSuffix(file, ".json"))
		if err != nil {
			return nil, err
		}

		if doc != nil {
			docs = append(docs, doc)
		}
	}

	return docs, nil
}

func (c collection[T]) remove(id string) error {
	err := os.Remove(c.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s %s: %w", c.kind, id, err)
	}

	return nil
}
