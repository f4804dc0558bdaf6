package scenario

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// ErrNotFound is returned by Lookup for unknown scenario names.
var ErrNotFound = errors.New("scenario not found")

// Builtin returns the bundled scenarios, ordered by file name
func Builtin() ([]*Scenario, error) {
	files, err := fs.Glob(builtinFS, "builtin/*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	scenarios := make([]*Scenario, 0, len(files))
	for _, file := range files {
		data, err := builtinFS.ReadFile(file)
		if err != nil {
			return nil, err
		}

		sc, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path.Base(file), err)
		}
		scenarios = append(scenarios, sc)
	}

	return scenarios, nil
}

// Lookup returns the bundled scenario with the given name
func Lookup(name string) (*Scenario, error) {
	scenarios, err := Builtin()
	if err != nil {
		return nil, err
	}

	for _, sc := range scenarios {
		if sc.Name == name {
			return sc, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}
