package metadata

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/pagealloc/memutils"
)

// The free-extent tree is an implicit binary tree over a power-of-two number of pages (the capacity).
// Nodes are addressed by a 1-based index: the root is 1, the children of idx are 2*idx and 2*idx+1,
// and the parent of idx is idx/2. The functions in this file convert between node indices, depths,
// block sizes and page offsets. None of them hold state.

const rootIndex = 1

// LeftChild returns the index of the lower-address child of index
func LeftChild(index int) int { return index * 2 }

// RightChild returns the index of the higher-address child of index
func RightChild(index int) int { return index*2 + 1 }

// Parent returns the index of the node that contains index
func Parent(index int) int { return index / 2 }

// NodeDepth returns the 1-based depth of index: the root has depth 1.
func NodeDepth(index int) int {
	if index < rootIndex {
		panic(errors.AssertionFailedf("invalid free-extent tree index %d", index))
	}

	return memutils.HighestBit(index)
}

// NodeSize returns the number of pages covered by the node at index in a tree of the provided capacity
func NodeSize(index int, capacity int) int {
	return capacity >> (NodeDepth(index) - 1)
}

// FirstIndexAtDepth returns the index of the leftmost node at depth
func FirstIndexAtDepth(depth int) int {
	if depth < 1 {
		panic(errors.AssertionFailedf("invalid free-extent tree depth %d", depth))
	}

	return 1 << (depth - 1)
}

// DepthForSize returns the depth at which nodes cover exactly size pages. It panics when size is
// not a power of two or is larger than capacity.
func DepthForSize(size int, capacity int) int {
	err := memutils.CheckPow2(size, "node size")
	if err != nil {
		panic(err)
	}
	if size > capacity {
		panic(errors.Newf("node size %d is larger than the tree capacity %d", size, capacity))
	}

	return memutils.HighestBit(capacity) - memutils.HighestBit(size) + 1
}

// FirstIndexForSize returns the index of the leftmost node that covers exactly size pages
func FirstIndexForSize(size int, capacity int) int {
	return FirstIndexAtDepth(DepthForSize(size, capacity))
}

// NodeOffset returns the page offset of the first page covered by index. A node at depth d sits
// at position p = index - 2^(d-1) among its siblings, and index*size - capacity reduces to p*size
// because 2^(d-1)*size == capacity.
func NodeOffset(index int, capacity int) int {
	return index*NodeSize(index, capacity) - capacity
}

// IsRoot reports whether index is the root of the tree
func IsRoot(index int) bool { return index == rootIndex }

// IsLeafLayer reports whether index covers a single page
func IsLeafLayer(index int, capacity int) bool { return index >= capacity }

// OutOfTree reports whether index lies beyond the last leaf of a tree of the provided capacity
func OutOfTree(index int, capacity int) bool { return index >= 2*capacity }
