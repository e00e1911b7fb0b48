package store

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Codec converts payloads to and from their stored representation.
type Codec[P any] interface {
	Encode(payload P) ([]byte, error)
	Decode(data []byte) (P, error)
	// Extension is the file extension used by file-per-record stores.
	Extension() string
}

// JSONCodec stores payloads as JSON. Used by the sqlite, postgres and redis
// drivers.
type JSONCodec[P any] struct{}

func (JSONCodec[P]) Encode(payload P) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return data, nil
}

func (JSONCodec[P]) Decode(data []byte) (P, error) {
	var payload P
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("decode json: %w", err)
	}
	return payload, nil
}

func (JSONCodec[P]) Extension() string { return "json" }

// YAMLCodec stores payloads as YAML documents. Used by the file driver.
type YAMLCodec[P any] struct{}

func (YAMLCodec[P]) Encode(payload P) ([]byte, error) {
	data, err := yaml.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return data, nil
}

func (YAMLCodec[P]) Decode(data []byte) (P, error) {
	var payload P
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("decode yaml: %w", err)
	}
	return payload, nil
}

func (YAMLCodec[P]) Extension() string { return "yml" }
