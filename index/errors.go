package index

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when a search asks for fewer than one result.
	ErrInvalidK = errors.New("k must be positive")

	// ErrEmptyVector is returned when a record carries no vector.
	ErrEmptyVector = errors.New("vector must not be empty")

	// ErrClosed is returned when operating on a closed index.
	ErrClosed = errors.New("index is closed")
)

// ErrDimensionMismatch indicates a vector whose dimensionality differs from
// the one the index was locked to by its first insert.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrDuplicateID indicates an insert with an ID that is already present.
type ErrDuplicateID struct {
	ID string
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate record id: %s", e.ID)
}
