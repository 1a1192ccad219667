package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Definition is the structured filter expression a segment encapsulates.
// It is stored as JSON, so values are normalized to their decoded JSON types.
// Numbers decode as json.Number and keep their exact literal.
type Definition map[string]any

// UnmarshalJSON keeps numbers as json.Number so large integers survive.
func (d *Definition) UnmarshalJSON(raw []byte) error {
	out, err := DecodeObject(raw)
	if err != nil {
		return err
	}
	*d = out
	return nil
}

// Validate ensures the definition is a non-empty mapping.
func (d Definition) Validate() error {
	if len(d) == 0 {
		return Invalidf("definition must be a non-empty mapping")
	}
	return nil
}

// Clone deep-copies nested maps and slices.
func (d Definition) Clone() Definition {
	if d == nil {
		return nil
	}
	out, _ := cloneValue(map[string]any(d)).(map[string]any)
	return Definition(out)
}

// ParseDefinition turns an arbitrary decoded value into a Definition. Scalars,
// lists and values that do not survive a JSON round trip are rejected.
func ParseDefinition(v any) (Definition, error) {
	if v == nil {
		return nil, Invalidf("definition is required")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, WrapError(ErrCodeInvalid, "definition is not serializable", err)
	}
	return DecodeDefinition(raw)
}

// DecodeDefinition parses stored JSON into a Definition.
func DecodeDefinition(raw []byte) (Definition, error) {
	out, err := DecodeObject(raw)
	if err != nil {
		return nil, WrapError(ErrCodeInvalid, "definition must be a structured mapping", err)
	}
	def := Definition(out)
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Encode serializes the definition for storage.
func (d Definition) Encode() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("encode definition: %w", err)
	}
	return raw, nil
}

// DecodeJSON decodes a single JSON value into v with numbers kept as
// json.Number. Trailing data is an error.
func DecodeJSON(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// DecodeObject decodes a JSON object with numbers kept as json.Number.
func DecodeObject(raw []byte) (map[string]any, error) {
	var out map[string]any
	if err := DecodeJSON(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FieldReference points at the column a filter expression targets.
type FieldReference struct {
	TableID int64  `json:"table_id,omitempty"`
	FieldID int64  `json:"field_id,omitempty"`
	Name    string `json:"name,omitempty"`
}

// DefinitionSource is the filter expression handed over by query-builder
// clients before it is committed as an opaque definition.
type DefinitionSource interface {
	IsValid() bool
	Dimension() *FieldReference
	Definition() map[string]any
}

// DefinitionFrom commits a filter expression into a Definition.
func DefinitionFrom(src DefinitionSource) (Definition, error) {
	if src == nil || !src.IsValid() {
		return nil, Invalidf("filter expression is not valid")
	}
	return ParseDefinition(src.Definition())
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case Definition:
		return cloneValue(map[string]any(t))
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return v
	}
}
