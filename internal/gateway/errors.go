package gateway

import (
	"errors"
	"fmt"
)

// ErrPermanent marks a dispatch failure that retrying cannot fix, such as a
// validation rejection or a reference to a ticket that no longer exists.
// Every other gateway error is treated as retryable.
var ErrPermanent = errors.New("permanent gateway error")

// Permanent wraps err so IsPermanent reports true for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether err is a non-retryable failure.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
