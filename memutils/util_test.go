package memutils_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/pagealloc/memutils"
)

func TestRollupPow2(t *testing.T) {
	testCases := map[int]int{
		1:    1,
		2:    2,
		3:    4,
		4:    4,
		5:    8,
		7:    8,
		8:    8,
		9:    16,
		16:   16,
		17:   32,
		1000: 1024,
		1024: 1024,
	}

	for value, expected := range testCases {
		require.Equal(t, expected, memutils.RollupPow2(value), "RollupPow2(%d)", value)
	}
}

func TestRollupPow2Zero(t *testing.T) {
	require.PanicsWithError(t, "cannot round 0 up to a power of two: page count must be greater than zero", func() {
		memutils.RollupPow2(0)
	})

	require.Panics(t, func() {
		memutils.RollupPow2(uint(0))
	})
}

func TestHighestBit(t *testing.T) {
	require.Equal(t, 1, memutils.HighestBit(1))
	require.Equal(t, 2, memutils.HighestBit(2))
	require.Equal(t, 2, memutils.HighestBit(3))
	require.Equal(t, 5, memutils.HighestBit(16))
	require.Equal(t, 5, memutils.HighestBit(31))
	require.Equal(t, 64, memutils.HighestBit(uint64(1)<<63))

	require.Panics(t, func() {
		memutils.HighestBit(0)
	})
}

func TestCheckPow2(t *testing.T) {
	require.NoError(t, memutils.CheckPow2(1, "size"))
	require.NoError(t, memutils.CheckPow2(64, "size"))

	err := memutils.CheckPow2(12, "size")
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))
	require.Equal(t, "size is 12: number must be a power of two", err.Error())

	require.Error(t, memutils.CheckPow2(0, "size"))
}

func TestAlignDown(t *testing.T) {
	require.Equal(t, 8, memutils.AlignDown(8, 4))
	require.Equal(t, 8, memutils.AlignDown(11, 4))
	require.Equal(t, 0, memutils.AlignDown(3, 4))
	require.Equal(t, 12, memutils.AlignDown(13, 1))
}
