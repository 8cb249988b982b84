// Package model defines the records kept in the lock store.  Every
// record has a fixed JSON schema; decoding goes through decodeStrict so
// that unknown or mistyped payloads are rejected at the boundary rather
// than trusted at read time.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedRecord is returned when a stored payload does not match
// the expected schema.
var ErrMalformedRecord = errors.New("malformed record")

func decodeStrict(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformedRecord)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrMalformedRecord)
	}
	return nil
}
