package kb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileDoc is the object form of a knowledge-base file.
type fileDoc struct {
	Entities []Entity `json:"entities" yaml:"entities"`
}

// LoadFile reads a knowledge base from a .json, .yaml/.yml or .xlsx file.
func LoadFile(path string) (*KB, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		return ReadXLSX(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kb.LoadFile: %w", err)
	}
	entities, err := Decode(data, ext)
	if err != nil {
		return nil, fmt.Errorf("kb.LoadFile: %s: %w", path, err)
	}
	return New(entities...)
}

// Decode parses entity records. ext selects the codec (".json", ".yaml",
// ".yml"). Both a bare list and an {"entities": [...]} object are accepted.
func Decode(data []byte, ext string) ([]Entity, error) {
	switch ext {
	case ".json":
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var list []Entity
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, fmt.Errorf("decoding json list: %w", err)
			}
			return list, nil
		}
		var doc fileDoc
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("decoding json: %w", err)
		}
		return doc.Entities, nil
	case ".yaml", ".yml":
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			var list []Entity
			if err := node.Content[0].Decode(&list); err != nil {
				return nil, fmt.Errorf("decoding yaml list: %w", err)
			}
			return list, nil
		}
		var doc fileDoc
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}
		return doc.Entities, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// SaveFile writes k in the format implied by the path extension.
func SaveFile(path string, k *KB) error {
	ext := strings.ToLower(filepath.Ext(path))
	var (
		data []byte
		err  error
	)
	switch ext {
	case ".xlsx":
		return WriteXLSX(path, k)
	case ".json":
		data, err = json.MarshalIndent(fileDoc{Entities: k.Entities()}, "", "  ")
		data = append(data, '\n')
	case ".yaml", ".yml":
		data, err = yaml.Marshal(fileDoc{Entities: k.Entities()})
	default:
		return fmt.Errorf("kb.SaveFile: %w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return fmt.Errorf("kb.SaveFile: encoding: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("kb.SaveFile: %w", err)
	}
	return nil
}
