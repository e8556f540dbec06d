package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/patch"

	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// patchFile is the on-disk form of a patch
type patchFile struct {
	Ops []patch.Op `json:"ops"`
}

// formatOf picks the codec from the file extension
func formatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return "", fmt.Errorf("%s: unsupported extension, use .json, .yaml or .yml", path)
	}
}

func readBlueprint(path string) (*aggregates.Blueprint, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc aggregates.Document
	switch format {
	case formatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	bp, err := aggregates.FromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bp, nil
}

// readPatch decodes a patch file. YAML goes through JSON so both formats
// share the op codec and its path validation.
func readPatch(path string) (*patchFile, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if format == formatYAML {
		var generic interface{}
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if data, err = json.Marshal(generic); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	var p patchFile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}

// writeOutput prints v as indented JSON or as YAML
func writeOutput(w io.Writer, format string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	switch format {
	case formatJSON:
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		_, err = w.Write(buf.Bytes())
		return err
	case formatYAML:
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
