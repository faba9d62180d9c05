package record

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadSnapshot builds a MemoryStore from a JSON document shaped as
// {"<model>": [{"id": "...", ...fields}, ...]}.
func LoadSnapshot(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record snapshot: %w", err)
	}

	var doc map[string][]map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode record snapshot: %w", err)
	}

	store := NewMemoryStore()

	for model, rows := range doc {
		for i, row := range rows {
			id, ok := row["id"].(string)
			if !ok || id == "" {
				return nil, fmt.Errorf("record snapshot: %s[%d] has no string id", model, i)
			}

			store.Put(model, id, row)
		}
	}

	return store, nil
}
