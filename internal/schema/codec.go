package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/quantfold/tip/errs"
)

// Encode renders the event in canonical wire form: camelCase keys sorted
// alphabetically, compact separators. Equal events encode to identical
// bytes; dedupe hashing depends on this.
func Encode(e EventV1) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return StableEncode(e)
}

// Decode parses canonical wire bytes and validates the result. Unknown keys
// and timestamps without a zone offset are rejected.
func Decode(data []byte) (EventV1, error) {
	var e EventV1
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&e); err != nil {
		return EventV1{}, errs.New("schema", errs.CodeInvalidEvent,
			errs.WithMessage("decode canonical event"), errs.WithCause(err))
	}
	if err := e.Validate(); err != nil {
		return EventV1{}, err
	}
	return e, nil
}

// StableEncode marshals v as compact JSON with sorted object keys. The value
// is round-tripped through a generic decode so struct field order never
// leaks into the output; numeric literals are preserved verbatim.
func StableEncode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("marshal normalized value: %w", err)
	}
	return out, nil
}

// ContentHash returns the lowercase hex sha256 of the stable encoding of v.
// Adapters without a natural external identifier derive dedupe keys from it.
func ContentHash(v any) (string, error) {
	data, err := StableEncode(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
