package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Aliases maps user-chosen city names to backend city IDs, letting CLI
// commands accept "home" instead of a numeric ID. The file is optional.
//
// Format:
//
//	home: 1
//	parents: 17
type Aliases map[string]int

// DefaultAliasesPath returns the conventional aliases location in the user's
// configuration directory.
func DefaultAliasesPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not resolve user config dir: %w", err)
	}

	return filepath.Join(dir, "djwr", "cities.yaml"), nil
}

// LoadAliases reads the alias file at path. A missing file is not an error:
// it loads as an empty set.
func LoadAliases(path string) (Aliases, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Aliases{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read city aliases: %w", err)
	}

	raw := map[string]int{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("could not parse city aliases: %w", err)
	}

	aliases := Aliases{}
	for name, id := range raw {
		aliases[strings.ToLower(strings.TrimSpace(name))] = id
	}

	return aliases, nil
}

// Resolve returns the city ID for name, matching case-insensitively.
func (a Aliases) Resolve(name string) (int, bool) {
	id, ok := a[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}
