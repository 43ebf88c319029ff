package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oukeidos/kotoba/internal/apperrors"
)

const defaultPrompts = "Translate the following text to {{target_language}}. Preserve paragraph breaks and do not add commentary.\n\n{{glossary_context}}\n\n{{slot}}"

// Load reads a JSON or YAML config file (selected by extension; YAML on
// anything other than .json) into a Config. An empty path returns a
// zero-valued Config so the CLI can overlay flags onto it unconditionally.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, apperrors.FileIO(err)
	}

	var c Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &c); err != nil {
			return Config{}, apperrors.Config("parsing JSON config: " + err.Error())
		}
		return c, nil
	}

	// yaml.v3 has no notion of the struct's json tags, so decode through an
	// untyped map and re-marshal to JSON rather than duplicate every field
	// tag for a format only used for hand-edited config files.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, apperrors.Config("parsing YAML config: " + err.Error())
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return Config{}, apperrors.Config("normalizing YAML config: " + err.Error())
	}
	if err := json.Unmarshal(normalized, &c); err != nil {
		return Config{}, apperrors.Config("parsing YAML config: " + err.Error())
	}
	return c, nil
}
