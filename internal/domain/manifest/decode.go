package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Format is a manifest file encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf infers the format from a file name.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".toml":
		return FormatTOML, true
	default:
		return "", false
	}
}

// Decode parses and validates a manifest.
func Decode(data []byte, format Format) (*Manifest, error) {
	var m Manifest

	var err error
	switch format {
	case FormatJSON:
		err = sonic.Unmarshal(data, &m)
	case FormatYAML:
		err = yaml.Unmarshal(data, &m)
	case FormatTOML:
		err = toml.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s manifest: %w", format, err)
	}

	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DecodeFile reads a manifest from disk, picking the decoder by extension.
func DecodeFile(path string) (*Manifest, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, fmt.Errorf("unrecognised manifest file %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Decode(data, format)
}
