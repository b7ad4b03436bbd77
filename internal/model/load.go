package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	ferrors "archflow/internal/errors"
)

// Format is the on-disk encoding of a model file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

const zstdSuffix = ".zst"

// DetectFormat infers the encoding and compression from a file name.
// Recognized names: *.json, *.yaml, *.yml, each optionally followed by .zst.
func DetectFormat(path string) (Format, bool, error) {
	name := strings.ToLower(filepath.Base(path))
	compressed := strings.HasSuffix(name, zstdSuffix)
	name = strings.TrimSuffix(name, zstdSuffix)

	switch filepath.Ext(name) {
	case ".json":
		return FormatJSON, compressed, nil
	case ".yaml", ".yml":
		return FormatYAML, compressed, nil
	default:
		return "", false, ferrors.Newf(ferrors.UnsupportedFormat, "unrecognized model file extension: %s", path)
	}
}

// Load reads and validates a model file.
func Load(path string) (*Model, error) {
	format, compressed, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.New(ferrors.ModelNotFound, "model file not found: "+path, err)
		}
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	if compressed {
		data, err = decompress(data)
		if err != nil {
			return nil, ferrors.New(ferrors.ModelInvalid, "failed to decompress model", err)
		}
	}

	m, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Decode parses model bytes in the given format without validating them.
func Decode(data []byte, format Format) (*Model, error) {
	var m Model
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, ferrors.New(ferrors.ModelInvalid, "failed to parse JSON model", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, ferrors.New(ferrors.ModelInvalid, "failed to parse YAML model", err)
		}
	default:
		return nil, ferrors.Newf(ferrors.UnsupportedFormat, "unsupported model format: %s", format)
	}
	return &m, nil
}

// Encode serializes a model in the given format.
func Encode(m *Model, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(m, "", "  ")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, ferrors.Newf(ferrors.UnsupportedFormat, "unsupported model format: %s", format)
	}
}

// Save writes a model, choosing format and compression from the file name.
func Save(path string, m *Model) error {
	format, compressed, err := DetectFormat(path)
	if err != nil {
		return err
	}

	data, err := Encode(m, format)
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}

	if compressed {
		data, err = compress(data)
		if err != nil {
			return fmt.Errorf("failed to compress model: %w", err)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

// Write encodes a model to w without compression.
func Write(w io.Writer, m *Model, format Format) error {
	data, err := Encode(m, format)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = enc.Close() }()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
