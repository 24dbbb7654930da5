package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ZeroPagesError is the error used when a page count of zero reaches an operation that cannot accept one, such
// as rounding up to a power of two or registering a region. These are programming errors and are raised with panic.
var ZeroPagesError error = errors.New("page count must be greater than zero")

// ErrFreeMismatch is returned when a free request does not describe a block that is currently allocated: a double
// free, a size that differs from the one that was allocated, or an address that does not start a block. The
// metadata is left unchanged when this error is returned.
var ErrFreeMismatch error = errors.New("freed pages do not match an outstanding allocation")
