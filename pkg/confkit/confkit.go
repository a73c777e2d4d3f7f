package confkit

import (
	"os"
	"path/filepath"
)

// ResolvePath resolves a sub-config file path relative to the directory of
// the main config file. Environment variables are expanded first; absolute
// paths are returned as-is.
func ResolvePath(base, file string) string {
	file = os.ExpandEnv(file)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

// Section points the app config at a per-concern yaml file (engine, broker,
// market). File names the sub-config; Value holds the hydrated result.
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate loads the file referenced by the section, if any, via the
// concern's own loader so its defaults and validation apply. A section with
// no File is left alone; wiring code decides whether that is fatal.
func (s *Section[T]) Hydrate(base string, loader func(string) (*T, error)) error {
	if s.File == "" {
		return nil
	}
	p := ResolvePath(base, s.File)
	v, err := loader(p)
	if err != nil {
		return err
	}
	s.File, s.Value = p, v
	return nil
}
