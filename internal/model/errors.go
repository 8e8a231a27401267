package model

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrConfiguration marks an invalid architecture/mode combination or
	// parameter bundle. It is returned before any weight is allocated.
	ErrConfiguration = errors.New("configuration error")

	// ErrShapeMismatch marks batch data that does not fit the model.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// ShapeError describes which batch field broke the declared dimensions.
type ShapeError struct {
	Field string
	Want  string
	Got   string
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape mismatch: %s: want %s, got %s", e.Field, e.Want, e.Got)
}

// Is makes errors.Is(err, ErrShapeMismatch) hold.
func (e *ShapeError) Is(target error) bool {
	return target == ErrShapeMismatch
}

func shapeErr(field, want string, got any) *ShapeError {
	return &ShapeError{Field: field, Want: want, Got: fmt.Sprint(got)}
}
