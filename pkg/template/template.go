// Package template renders text/template strings against record data and
// provides the restricted evaluator used for inline rule and transition code.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// NeedsTemplating reports whether s contains a template action.
func NeedsTemplating(s string) bool {
	return strings.Contains(s, "{{")
}

func baseFuncs() template.FuncMap {
	return template.FuncMap{
		"now": func() string {
			return time.Now().UTC().Format(time.RFC3339)
		},
		"today": func() string {
			return time.Now().UTC().Format(time.DateOnly)
		},
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
		"trim":  strings.TrimSpace,
		"join": func(sep string, items []any) string {
			parts := make([]string, 0, len(items))
			for _, item := range items {
				parts = append(parts, fmt.Sprint(item))
			}

			return strings.Join(parts, sep)
		},
		"default": func(fallback, value any) any {
			if value == nil || value == "" {
				return fallback
			}

			return value
		},
	}
}

func execute(name, templateStr string, funcs template.FuncMap, data any) (string, error) {
	tmpl, err := template.
		New(name).
		Option("missingkey=zero").
		Funcs(funcs).
		Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// RenderString executes templateStr and returns the raw output.
func RenderString(templateStr string, data any) (string, error) {
	return execute("render", templateStr, baseFuncs(), data)
}

// Render executes templateStr and coerces the output: JSON objects and
// arrays are decoded, then numbers and booleans are parsed, anything else
// is returned as a string.
func Render(templateStr string, data any) (any, error) {
	out, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	return coerce(templateStr, out)
}

func coerce(templateStr, out string) (any, error) {
	result := strings.TrimSpace(out)

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}
