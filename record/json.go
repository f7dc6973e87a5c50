package record

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

var ErrMalformed = errors.New("malformed record")

// MarshalJSON writes the fields in insertion order.
func (r Record) MarshalJSON() ([]byte, error) {
	b := &bytes.Buffer{}
	enc := jsontext.NewEncoder(b)

	err := enc.WriteToken(jsontext.BeginObject)
	if err != nil {
		return nil, err
	}
	for _, f := range r {
		err = enc.WriteToken(jsontext.String(f.Key))
		if err != nil {
			return nil, fmt.Errorf("write key '%s': %w", f.Key, err)
		}
		err = json.MarshalEncode(enc, f.Value)
		if err != nil {
			return nil, fmt.Errorf("write value '%s': %w", f.Key, err)
		}
	}
	err = enc.WriteToken(jsontext.EndObject)
	if err != nil {
		return nil, err
	}

	return bytes.TrimSpace(b.Bytes()), nil
}

// UnmarshalJSON keeps the order of the top level object. Nested objects are
// decoded as map[string]any and numbers as float64.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := jsontext.NewDecoder(bytes.NewReader(data))

	tok, err := dec.ReadToken()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if tok.Kind() == 'n' {
		*r = nil
		return nil
	}
	if tok.Kind() != '{' {
		return fmt.Errorf("%w: expected object, found '%s'", ErrMalformed, tok.Kind())
	}

	result := Record{}
	for {
		kind := dec.PeekKind()
		if kind == '}' {
			break
		}
		if kind != '"' {
			return fmt.Errorf("%w: unexpected token near offset %d", ErrMalformed, dec.InputOffset())
		}
		name, err := dec.ReadToken()
		if err != nil {
			return err
		}
		var value any
		err = json.UnmarshalDecode(dec, &value)
		if err != nil {
			return fmt.Errorf("read value '%s': %w", name.String(), err)
		}
		result.Put(name.String(), value)
	}
	_, err = dec.ReadToken()
	if err != nil {
		return err
	}

	*r = result
	return nil
}
