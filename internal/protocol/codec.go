package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrMalformed is returned for frames that are not valid JSON, lack a type,
// or fail field validation.
var ErrMalformed = errors.New("malformed frame")

var validate = validator.New()

type header struct {
	Type string `json:"type"`
}

// PeekType returns the declared type of a raw frame.
func PeekType(raw []byte) (string, error) {
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	t := strings.TrimSpace(h.Type)
	if t == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return t, nil
}

// Decode unmarshals raw into T and validates its struct tags.
func Decode[T any](raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

// Encode marshals an outbound frame.
func Encode(f Outbound) ([]byte, error) {
	return json.Marshal(f)
}
