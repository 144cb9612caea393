package flowcipher

import (
	"errors"
	"fmt"
)

// Stages at which a CryptoError can occur
const (
	StageLoadKey     = "load_key"
	StageUnwrapKey   = "unwrap_key"
	StageOpenPayload = "open_payload"
)

// CryptoError means the request could not be opened with our key material.
// The Flow client reacts to it by refreshing the business public key, so it
// must stay distinct from malformed-input failures.
type CryptoError struct {
	Stage string
	Err   error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("flow crypto failure at %s: %v", e.Stage, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// ValidationError is a malformed request body
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsCryptoFailure reports whether err is (or wraps) a CryptoError
func IsCryptoFailure(err error) bool {
	var ce *CryptoError
	return errors.As(err, &ce)
}
