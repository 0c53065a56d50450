// Package chat contains the core concepts of the room: display names and
// the fixed lines of the protocol. No runtime or network logic lives here.
package chat

import (
	"budget-chat/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Name is a claimed display name. It is case-sensitive.
type Name string

func (n Name) String() string { return string(n) }

type nameRequest struct {
	// alphanum is ASCII only in validator, which is what the protocol wants.
	Value string `validate:"required,alphanum"`
}

// ParseName validates a candidate name line.
// It returns ErrEmptyName or ErrInvalidName wrapped with the offending value.
func ParseName(line string) (Name, error) {
	if err := validate.Struct(nameRequest{Value: line}); err != nil {
		if line == "" {
			return "", errors.ErrEmptyName
		}
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidName, line)
	}
	return Name(line), nil
}
