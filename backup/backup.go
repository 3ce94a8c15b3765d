// Package backup writes a JSON snapshot of the server's language records
// before anything is deleted.
package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/minios-linux/langsync/weblate"
)

// DefaultFile is the snapshot file name used when none is configured.
const DefaultFile = "weblate_languages_backup.json"

// Write stores every record in langs as a JSON array sorted by code, each
// record exactly as the server returned it. The file is replaced atomically.
func Write(path string, langs map[string]weblate.Language) error {
	if path == "" {
		path = DefaultFile
	}

	records := make([]json.RawMessage, 0, len(langs))
	for _, code := range slices.Sorted(maps.Keys(langs)) {
		lang := langs[code]
		raw := lang.Raw
		if len(raw) == 0 {
			var err error
			if raw, err = json.Marshal(lang); err != nil {
				return fmt.Errorf("encoding %s: %w", code, err)
			}
		}
		records = append(records, raw)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encoding backup: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".langsync-backup-*")
	if err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}
	return nil
}

// Read loads a snapshot written by Write.
func Read(path string) ([]weblate.Language, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading backup: %w", err)
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decoding backup %s: %w", path, err)
	}
	langs := make([]weblate.Language, 0, len(raws))
	for _, raw := range raws {
		var lang weblate.Language
		if err := json.Unmarshal(raw, &lang); err != nil {
			return nil, fmt.Errorf("decoding backup %s: %w", path, err)
		}
		lang.Raw = raw
		langs = append(langs, lang)
	}
	return langs, nil
}
