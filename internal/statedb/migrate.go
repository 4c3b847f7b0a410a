package statedb

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// jsonTabState mirrors the legacy tabs.json layout from versions that
// persisted tab state as a flat JSON file.
type jsonTabState struct {
	Tabs        []*jsonTab `json:"tabs"`
	ActiveTabID string     `json:"activeTabId"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type jsonTab struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	Title        string            `json:"title"`
	WorkspaceRef *jsonWorkspaceRef `json:"workspaceRef,omitempty"`
	CreatedAt    time.Time         `json:"created_at,omitempty"`
}

type jsonWorkspaceRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ImportLegacyJSON migrates a legacy tabs.json file into the database.
// Runs only when the tabs table is empty and the JSON file exists; the
// source file is renamed to tabs.json.migrated on success so the import
// never reruns. Malformed JSON is not an error: the file is set aside and
// the caller falls back to default tabs.
func (s *StateDB) ImportLegacyJSON(jsonPath string) (imported bool, err error) {
	empty, err := s.IsEmpty()
	if err != nil {
		return false, fmt.Errorf("statedb: check empty: %w", err)
	}
	if !empty {
		return false, nil
	}

	data, err := os.ReadFile(jsonPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("statedb: read legacy state: %w", err)
	}

	var state jsonTabState
	if err := json.Unmarshal(data, &state); err != nil || len(state.Tabs) == 0 {
		// Malformed legacy state is discarded wholesale, never partially
		// trusted. Set it aside so the next run doesn't retry.
		_ = os.Rename(jsonPath, jsonPath+".malformed")
		return false, nil
	}

	rows := make([]*TabRow, 0, len(state.Tabs))
	for _, t := range state.Tabs {
		if t.ID == "" || t.Kind == "" {
			_ = os.Rename(jsonPath, jsonPath+".malformed")
			return false, nil
		}
		row := &TabRow{
			ID:        t.ID,
			Kind:      t.Kind,
			Title:     t.Title,
			CreatedAt: t.CreatedAt,
		}
		if t.WorkspaceRef != nil {
			row.WorkspaceID = t.WorkspaceRef.ID
			row.WorkspaceName = t.WorkspaceRef.Name
		}
		rows = append(rows, row)
	}

	if err := s.SaveTabs(rows, state.ActiveTabID); err != nil {
		return false, fmt.Errorf("statedb: import legacy state: %w", err)
	}

	// Import succeeded; a failed rename only risks a redundant no-op check
	// next run (the table is no longer empty).
	_ = os.Rename(jsonPath, jsonPath+".migrated")
	return true, nil
}
