package persist

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrUnknownCodec is returned by CodecByName for unsupported names.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec turns a state into bytes and back.
type Codec[S any] interface {
	Name() string
	Encode(state S) ([]byte, error)
	Decode(data []byte) (S, error)
}

type JSONCodec[S any] struct{}

func (JSONCodec[S]) Name() string { return "json" }

func (JSONCodec[S]) Encode(state S) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return data, nil
}

func (JSONCodec[S]) Decode(data []byte) (S, error) {
	var state S
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decode json: %w", err)
	}
	return state, nil
}

type YAMLCodec[S any] struct{}

func (YAMLCodec[S]) Name() string { return "yaml" }

func (YAMLCodec[S]) Encode(state S) ([]byte, error) {
	data, err := yaml.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return data, nil
}

func (YAMLCodec[S]) Decode(data []byte) (S, error) {
	var state S
	if err := yaml.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decode yaml: %w", err)
	}
	return state, nil
}

// CodecByName resolves the codec named in configuration.
func CodecByName[S any](name string) (Codec[S], error) {
	switch name {
	case "json", "":
		return JSONCodec[S]{}, nil
	case "yaml", "yml":
		return YAMLCodec[S]{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
