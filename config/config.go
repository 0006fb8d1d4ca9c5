package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// DetectFormat infers the configuration format from the file extension.
// Unknown extensions are treated as YAML.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".tml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// Load decodes the file at path into out using the format implied by its
// extension. Unknown keys are rejected so typos surface at startup.
func Load(path string, out any) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	return Decode(contents, DetectFormat(path), out)
}

// Decode parses raw configuration bytes in the given format.
func Decode(contents []byte, format Format, out any) error {
	switch format {
	case FormatTOML:
		meta, err := toml.Decode(string(contents), out)
		if err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return fmt.Errorf("decode config: unknown keys %s", strings.Join(keys, ", "))
		}
		return nil
	case FormatYAML:
		if len(bytes.TrimSpace(contents)) == 0 {
			return nil
		}
		dec := yaml.NewDecoder(bytes.NewReader(contents))
		dec.KnownFields(true)
		if err := dec.Decode(out); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("decode config: unsupported format %q", format)
	}
}
