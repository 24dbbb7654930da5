package metadata_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/pagealloc/memutils/metadata"
)

func TestNodeDepthAndSize(t *testing.T) {
	const capacity = 16

	testCases := map[string]struct {
		Index  int
		Depth  int
		Size   int
		Offset int
	}{
		"Root":           {Index: 1, Depth: 1, Size: 16, Offset: 0},
		"LeftHalf":       {Index: 2, Depth: 2, Size: 8, Offset: 0},
		"RightHalf":      {Index: 3, Depth: 2, Size: 8, Offset: 8},
		"ThirdQuarter":   {Index: 6, Depth: 3, Size: 4, Offset: 8},
		"LastPair":       {Index: 15, Depth: 4, Size: 2, Offset: 14},
		"FirstLeaf":      {Index: 16, Depth: 5, Size: 1, Offset: 0},
		"MiddleLeaf":     {Index: 23, Depth: 5, Size: 1, Offset: 7},
		"LastLeaf":       {Index: 31, Depth: 5, Size: 1, Offset: 15},
		"SecondQuarterL": {Index: 5, Depth: 3, Size: 4, Offset: 4},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, testCase.Depth, metadata.NodeDepth(testCase.Index))
			require.Equal(t, testCase.Size, metadata.NodeSize(testCase.Index, capacity))
			require.Equal(t, testCase.Offset, metadata.NodeOffset(testCase.Index, capacity))
		})
	}
}

func TestNodeOffsetIdentity(t *testing.T) {
	for _, capacity := range []int{1, 2, 4, 8, 16, 64, 1024} {
		for index := 1; index < 2*capacity; index++ {
			depth := metadata.NodeDepth(index)
			size := metadata.NodeSize(index, capacity)
			position := index - metadata.FirstIndexAtDepth(depth)

			require.Equal(t, position*size, metadata.NodeOffset(index, capacity), "capacity %d index %d", capacity, index)
			require.Equal(t, capacity, size<<(depth-1))

			if !metadata.IsLeafLayer(index, capacity) {
				require.Equal(t, metadata.NodeOffset(index, capacity), metadata.NodeOffset(metadata.LeftChild(index), capacity))
				require.Equal(t, metadata.NodeOffset(index, capacity)+size/2, metadata.NodeOffset(metadata.RightChild(index), capacity))
			}
			if !metadata.IsRoot(index) {
				require.Equal(t, 2*size, metadata.NodeSize(metadata.Parent(index), capacity))
			}
		}
	}
}

func TestDepthForSize(t *testing.T) {
	const capacity = 16

	for size, depth := range map[int]int{16: 1, 8: 2, 4: 3, 2: 4, 1: 5} {
		require.Equal(t, depth, metadata.DepthForSize(size, capacity))

		first := metadata.FirstIndexForSize(size, capacity)
		require.Equal(t, metadata.FirstIndexAtDepth(depth), first)
		require.Equal(t, size, metadata.NodeSize(first, capacity))
		require.Equal(t, 0, metadata.NodeOffset(first, capacity))
	}

	require.Panics(t, func() {
		metadata.DepthForSize(3, capacity)
	})
	require.Panics(t, func() {
		metadata.DepthForSize(32, capacity)
	})
	require.Panics(t, func() {
		metadata.DepthForSize(0, capacity)
	})
}

func TestLayerPredicates(t *testing.T) {
	const capacity = 8

	require.True(t, metadata.IsRoot(1))
	require.False(t, metadata.IsRoot(2))

	require.False(t, metadata.IsLeafLayer(7, capacity))
	require.True(t, metadata.IsLeafLayer(8, capacity))
	require.True(t, metadata.IsLeafLayer(15, capacity))

	require.False(t, metadata.OutOfTree(15, capacity))
	require.True(t, metadata.OutOfTree(16, capacity))
}

func requireAssertionPanic(t *testing.T, fn func()) {
	t.Helper()

	defer func() {
		recovered := recover()
		require.NotNil(t, recovered, "expected a panic")

		err, isError := recovered.(error)
		require.True(t, isError, "panic value %v is not an error", recovered)
		require.True(t, errors.HasAssertionFailure(err), "unexpected panic: %+v", err)
	}()

	fn()
}

func TestInvalidIndexPanics(t *testing.T) {
	requireAssertionPanic(t, func() {
		metadata.NodeDepth(0)
	})
	requireAssertionPanic(t, func() {
		metadata.NodeSize(-1, 8)
	})
	requireAssertionPanic(t, func() {
		metadata.FirstIndexAtDepth(0)
	})
}
