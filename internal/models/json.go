package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// ErrTrailingData is returned when a JSON document is followed by more data.
var ErrTrailingData = errors.New("unexpected data after JSON value")

// DecodeJSON decodes a single JSON value into a generic value. Numbers are
// kept as json.Number so integers wider than a float64 mantissa survive a
// round trip unchanged.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, ErrTrailingData
	}
	return v, nil
}
