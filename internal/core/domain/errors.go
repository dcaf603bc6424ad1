package domain

import (
	"errors"
	"fmt"
)

var (
	ErrFetch              = errors.New("image fetch failed")
	ErrDecode             = errors.New("image decode failed")
	ErrBackendUnavailable = errors.New("inference backend unavailable")
	ErrSerialization      = errors.New("result serialization failed")
	ErrInvalidInput       = errors.New("invalid input")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
