package vfs

import (
	"encoding/json"
	"fmt"
)

// jsonFile mirrors the on-disk schema of one virtual file entry.
type jsonFile struct {
	Path     string `json:"path"`
	Size     uint64 `json:"size"`
	Contents string `json:"contents"`
	MD5      string `json:"md5"`
}

// Load populates store from raw JSON accepted in any of three shapes:
// a bare list `[{...}]`, an object `{"files":[...]}`, or a direct
// `path -> entry` mapping. The shape is detected by sniffing the first
// non-whitespace byte before unmarshaling, since a bare list and a
// mapping both decode into valid-but-wrong Go types if tried blind.
func Load(store Store, raw []byte) error {
	var probe json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("vfs: malformed files document: %w", err)
	}

	trimmed := firstNonSpace(probe)
	switch trimmed {
	case '[':
		var list []jsonFile
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("vfs: malformed files list: %w", err)
		}
		for _, f := range list {
			writeJSONFile(store, f)
		}
		return nil
	case '{':
		var wrapped struct {
			Files []jsonFile `json:"files"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Files != nil {
			for _, f := range wrapped.Files {
				writeJSONFile(store, f)
			}
			return nil
		}
		var mapping map[string]jsonFile
		if err := json.Unmarshal(raw, &mapping); err != nil {
			return fmt.Errorf("vfs: malformed files mapping: %w", err)
		}
		for path, f := range mapping {
			if f.Path == "" {
				f.Path = path
			}
			writeJSONFile(store, f)
		}
		return nil
	default:
		return fmt.Errorf("vfs: unrecognized files document shape")
	}
}

func writeJSONFile(store Store, f jsonFile) {
	store.Write(f.Path, []byte(f.Contents))
}

func firstNonSpace(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}
