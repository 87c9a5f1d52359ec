// Package atomicio writes JSON snapshots (state, metrics) to disk
// without ever leaving a half-written file behind: marshal, write to a
// sibling temp file, then rename over the destination. Grounded on the
// teacher's internal/io.WriteJSONAtomic write-temp-then-rename helper,
// trimmed to the one JSON-snapshot shape C10 needs.
package atomicio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteJSON marshals v and atomically replaces path with it.
func WriteJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicio: mkdir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("atomicio: marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("atomicio: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("atomicio: rename: %w", err)
	}
	return nil
}

// ReadJSON decodes path into v, returning os.ErrNotExist unwrapped so
// callers can distinguish "no prior state" from a corrupt file.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("atomicio: parse %s: %w", path, err)
	}
	return nil
}
