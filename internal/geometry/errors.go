package geometry

import (
	"errors"
	"fmt"
)

// ErrEmptySelection is returned when a bounding box is requested over no pages.
var ErrEmptySelection = errors.New("empty selection")

// ContractError represents a caller defect: bad page indices, mismatched
// list lengths or an order statistic outside the selection.
type ContractError struct {
	Op      string
	Message string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("contract violation in %s: %s", e.Op, e.Message)
}

// ValidationError represents a malformed user-supplied value
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// IsContractError reports whether err carries a *ContractError.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func contractf(op, format string, args ...any) error {
	return &ContractError{Op: op, Message: fmt.Sprintf(format, args...)}
}
