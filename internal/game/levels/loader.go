// Package levels loads game level definitions from YAML files for
// import into the level catalog.
package levels

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pixelvale/gamesync/internal/game/model"
)

// yamlLevelFile is the top-level YAML structure for level files.
type yamlLevelFile struct {
	Levels []yamlLevel `yaml:"levels"`
}

// yamlLevel is the YAML representation of one level definition.
type yamlLevel struct {
	Name       string         `yaml:"name"`
	Difficulty int            `yaml:"difficulty"`
	LevelData  map[string]any `yaml:"level_data"`
}

// LoadFromFile reads and validates a single level YAML file.
//
// Postcondition: Returns the validated levels or a non-nil error.
func LoadFromFile(path string) ([]*model.GameLevel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading level file %s: %w", path, err)
	}
	levels, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return levels, nil
}

// LoadFromBytes parses and validates level definitions from YAML bytes.
func LoadFromBytes(data []byte) ([]*model.GameLevel, error) {
	var file yamlLevelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing level YAML: %w", err)
	}

	levels := make([]*model.GameLevel, 0, len(file.Levels))
	seen := make(map[string]bool, len(file.Levels))
	for i, def := range file.Levels {
		if def.Name == "" {
			return nil, fmt.Errorf("level %d: name is required", i)
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("level %q: duplicate name", def.Name)
		}
		seen[def.Name] = true
		if def.Difficulty < 1 {
			return nil, fmt.Errorf("level %q: difficulty must be >= 1", def.Name)
		}
		// Level data is stored as an opaque JSON document.
		payload := def.LevelData
		if payload == nil {
			payload = map[string]any{}
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("level %q: encoding level_data: %w", def.Name, err)
		}
		levels = append(levels, &model.GameLevel{
			Name:       def.Name,
			Difficulty: def.Difficulty,
			LevelData:  string(encoded),
		})
	}
	return levels, nil
}

// LoadFromDir loads all YAML files in a directory as level definitions.
//
// Postcondition: Returns all validated levels or the first error
// encountered. Non-YAML files and subdirectories are skipped.
func LoadFromDir(dir string) ([]*model.GameLevel, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading level directory %s: %w", dir, err)
	}

	var levels []*model.GameLevel
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		loaded, err := LoadFromFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		levels = append(levels, loaded...)
	}
	return levels, nil
}
