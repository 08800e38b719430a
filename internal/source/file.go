package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// JSONFileSource reads a feed from a JSON file
type JSONFileSource struct {
	name     string
	filePath string
	baseDir  string
}

// NewJSONFileSource creates a new JSON file source. A relative file resolves
// against baseDir.
func NewJSONFileSource(name, file, baseDir string) (*JSONFileSource, error) {
	if file == "" {
		return nil, configError(name, "file", "file is required")
	}
	return &JSONFileSource{
		name:     name,
		filePath: file,
		baseDir:  baseDir,
	}, nil
}

// Name returns the source identifier
func (s *JSONFileSource) Name() string {
	return s.name
}

// Path returns the resolved file path.
func (s *JSONFileSource) Path() string {
	if filepath.IsAbs(s.filePath) {
		return s.filePath
	}
	return filepath.Join(s.baseDir, s.filePath)
}

// Fetch reads and parses the file on every call
func (s *JSONFileSource) Fetch(ctx context.Context) (Rows, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return nil, fetchError(s.name, "read file", err)
	}
	return decodeRows(s.name, data, "")
}

// Close is a no-op for file sources
func (s *JSONFileSource) Close() error {
	return nil
}

// decodeRows accepts an array of objects, an object wrapping the array under
// resultPath (dot-separated) or "data"/"results", or a single object.
func decodeRows(name string, data []byte, resultPath string) (Rows, error) {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return Rows{}, nil
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, dataError(name, "not valid JSON")
	}

	if resultPath != "" {
		for _, part := range strings.Split(resultPath, ".") {
			obj, ok := doc.(map[string]any)
			if !ok {
				return nil, dataError(name, "result_path "+resultPath+" not found")
			}
			doc = obj[part]
		}
	}

	switch v := doc.(type) {
	case []any:
		return objects(v), nil
	case map[string]any:
		if resultPath == "" {
			for _, key := range []string{"data", "results"} {
				if arr, ok := v[key].([]any); ok {
					return objects(arr), nil
				}
			}
		}
		return Rows{v}, nil
	case nil:
		return Rows{}, nil
	}
	return nil, dataError(name, "expected a JSON array or object")
}

// objects keeps the object elements of arr.
func objects(arr []any) Rows {
	rows := make(Rows, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			rows = append(rows, m)
		}
	}
	return rows
}
