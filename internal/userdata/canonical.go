package userdata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mstfa13/asura-backend/internal/common"
)

// Canonicalize re-encodes a JSON document compactly with object keys sorted.
// Numbers keep their original textual form.
func Canonicalize(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("%w: invalid JSON: %v", common.ErrInvalidInput, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: trailing data after JSON value", common.ErrInvalidInput)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode JSON: %w", err)
	}

	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
