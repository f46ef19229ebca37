package mapping

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/John-Robertt/subsync-go/internal/model"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store persists a mapping definition as a side-file next to the settings.
type Store struct {
	Path string
}

// Load reads the side-file. When the file is missing or holds no rules, the
// default definition is written to Path and returned.
func (s Store) Load() (*Definition, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &DefinitionError{
			AppError: model.AppError{
				Code:    "MAPPING_READ_ERROR",
				Message: "映射定义读取失败",
				Stage:   "load_mapping",
				URL:     s.Path,
			},
			Cause: err,
		}
	}
	if err == nil {
		def, perr := Parse(s.Path, string(b))
		if perr != nil {
			return nil, perr
		}
		if len(def.Mappings) > 0 {
			return def, nil
		}
	}

	def := DefaultDefinition()
	if err := s.Save(def); err != nil {
		return nil, err
	}
	return def, nil
}

// Save writes def as indented JSON, replacing the file atomically.
func (s Store) Save(def *Definition) error {
	b, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mapping definition: %w", err)
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create mapping dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".mappings-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write mapping definition: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write mapping definition: %w", err)
	}
	return os.Rename(tmp.Name(), s.Path)
}
