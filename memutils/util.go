package memutils

import (
	"math/bits"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer
}

func CheckPow2[T Number](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// HighestBit returns the 1-based position of the most significant set bit in value. It panics
// when value is zero, since no bit is set.
func HighestBit[T Number](value T) int {
	if value <= 0 {
		panic(cerrors.Wrapf(ZeroPagesError, "highest bit requested for %d", value))
	}
	return bits.Len64(uint64(value))
}

// RollupPow2 returns the smallest power of two that is greater than or equal to value.
// RollupPow2(1) is 1. It panics when value is zero.
func RollupPow2[T Number](value T) T {
	if value <= 0 {
		panic(cerrors.Wrapf(ZeroPagesError, "cannot round %d up to a power of two", value))
	}
	if value == 1 {
		return 1
	}

	return T(1) << HighestBit(value-1)
}

// AlignDown rounds value down to a multiple of alignment, which must be a power of two
func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}
