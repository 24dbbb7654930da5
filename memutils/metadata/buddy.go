package metadata

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/pagealloc/memutils"
)

// BuddyBlockMetadata is a BlockMetadata implementation that hands out power-of-two runs of pages
// using the buddy system.
//
// The metadata keeps an implicit binary tree (see buddy_index.go) in which every node stores the
// size of the largest free run of pages within its subtree: the node's size when the subtree is
// wholly free, 0 when it is wholly allocated, something in between otherwise. A single comparison
// at a node therefore tells the allocation search whether a large-enough hole exists below it.
//
// The tree capacity is the block size rounded up to a power of two. The real pages occupy the
// lowest offsets and the padding above them is treated as permanently allocated, so the managed
// pages must be contiguous.
//
// Allocations are always rounded up to a power of two. Callers must free with the same page count
// they allocated with (or its rounded size, which is equivalent).
type BuddyBlockMetadata struct {
	BlockMetadataBase

	capacity       int
	extents        []int
	allocatedPages int
	allocations    *swiss.Map[int, Suballocation]
}

var _ BlockMetadata = &BuddyBlockMetadata{}

// NewBuddyBlockMetadata creates an empty BuddyBlockMetadata. Init must be called before it is used.
func NewBuddyBlockMetadata() *BuddyBlockMetadata {
	return &BuddyBlockMetadata{}
}

// Init builds the free-extent tree over pageCount pages. Each node is seeded with the number of
// free pages in its subtree, with the free pages packed to the left, so padding leaves start at 0.
func (m *BuddyBlockMetadata) Init(pageCount int) {
	if pageCount < 1 {
		panic(errors.Wrapf(memutils.ZeroPagesError, "cannot build a free-extent tree over %d pages", pageCount))
	}

	m.BlockMetadataBase.Init(pageCount)
	m.capacity = memutils.RollupPow2(pageCount)
	m.extents = make([]int, 2*m.capacity)
	m.allocations = swiss.NewMap[int, Suballocation](42)
	m.allocatedPages = 0

	m.populate(rootIndex, m.capacity, pageCount)
}

func (m *BuddyBlockMetadata) populate(index int, capacity int, free int) {
	if capacity == 0 {
		return
	}

	half := capacity / 2
	leftFree := min(free, half)

	m.extents[index] = free
	m.populate(LeftChild(index), half, leftFree)
	m.populate(RightChild(index), half, free-leftFree)
}

// Capacity returns the number of pages covered by the root of the tree: the block size rounded
// up to a power of two. It is 0 before Init.
func (m *BuddyBlockMetadata) Capacity() int { return m.capacity }

// LargestFreeRun returns the largest number of pages that a single allocation could currently
// receive.
func (m *BuddyBlockMetadata) LargestFreeRun() int {
	if m.extents == nil {
		return 0
	}
	return m.extents[rootIndex]
}

// Extent returns the free-extent value stored at a tree node
func (m *BuddyBlockMetadata) Extent(index int) int {
	return m.extent(index)
}

func (m *BuddyBlockMetadata) extent(index int) int {
	if index < rootIndex || OutOfTree(index, m.capacity) {
		panic(errors.AssertionFailedf("free-extent tree index %d is outside a tree of capacity %d", index, m.capacity))
	}

	return m.extents[index]
}

func (m *BuddyBlockMetadata) isWhollyFree(index int) bool {
	return m.extent(index) == NodeSize(index, m.capacity)
}

func (m *BuddyBlockMetadata) AllocationCount() int {
	if m.allocations == nil {
		return 0
	}
	return m.allocations.Count()
}

func (m *BuddyBlockMetadata) FreeRegionsCount() int {
	var count int
	_ = m.VisitAllRegions(func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error {
		if free {
			count++
		}
		return nil
	})

	return count
}

func (m *BuddyBlockMetadata) SumFreeSize() int {
	return m.size - m.allocatedPages
}

func (m *BuddyBlockMetadata) MayHaveFreeBlock(pages int) bool {
	if m.extents == nil || pages < 1 {
		return false
	}

	return m.extents[rootIndex] >= memutils.RollupPow2(pages)
}

func (m *BuddyBlockMetadata) IsEmpty() bool {
	return m.AllocationCount() == 0
}

func (m *BuddyBlockMetadata) CreateAllocationRequest(pages int) (bool, AllocationRequest, error) {
	var allocRequest AllocationRequest

	if pages < 1 {
		return false, allocRequest, errors.Newf("invalid allocation size: %d", pages)
	}

	if m.extents == nil {
		return false, allocRequest, errors.New("the free-extent tree has not been built")
	}

	memutils.DebugValidate(m)

	size := memutils.RollupPow2(pages)
	if size > m.capacity {
		return false, allocRequest, nil
	}

	index, found := m.findFreeNode(rootIndex, size)
	if !found {
		return false, allocRequest, nil
	}

	offset := NodeOffset(index, m.capacity)
	allocRequest.Type = AllocationRequestBuddy
	allocRequest.BlockAllocationHandle = BlockAllocationHandle(offset)
	allocRequest.Size = size
	allocRequest.Item = Suballocation{Offset: offset, Size: size}
	allocRequest.AlgorithmData = uint64(index)

	return true, allocRequest, nil
}

// findFreeNode returns the leftmost wholly free node of the requested size
func (m *BuddyBlockMetadata) findFreeNode(index int, size int) (int, bool) {
	extent := m.extent(index)

	// Nothing below here is big enough
	if extent < size {
		return 0, false
	}

	// extent can't exceed the node size, so the node is wholly free
	if NodeSize(index, m.capacity) == size {
		return index, true
	}

	if IsLeafLayer(index, m.capacity) {
		panic(errors.AssertionFailedf("search for %d pages descended past leaf %d", size, index))
	}

	found, ok := m.findFreeNode(LeftChild(index), size)
	if ok {
		return found, true
	}

	found, ok = m.findFreeNode(RightChild(index), size)
	if ok {
		return found, true
	}

	panic(errors.AssertionFailedf("node %d reported a free run of %d pages, but neither child could hold %d pages", index, extent, size))
}

func (m *BuddyBlockMetadata) Alloc(req AllocationRequest, userData any) error {
	if req.Type != AllocationRequestBuddy {
		return errors.New("allocation request was received by an incompatible metadata")
	}

	if m.extents == nil {
		return errors.New("the free-extent tree has not been built")
	}

	index := int(req.AlgorithmData)
	if index < rootIndex || OutOfTree(index, m.capacity) {
		return errors.Newf("allocation request refers to tree node %d, which is outside the tree", index)
	}

	size := NodeSize(index, m.capacity)
	offset := NodeOffset(index, m.capacity)
	memutils.DebugCheckPow2(size, "allocation size")
	if size != req.Size || offset != req.Item.Offset {
		return errors.Newf("allocation request for %d pages at offset %d does not match tree node %d", req.Size, req.Item.Offset, index)
	}

	if m.extents[index] != size {
		return errors.Newf("pages %d-%d are no longer free", offset, offset+size-1)
	}

	m.extents[index] = 0
	m.refreshAncestors(index)

	m.allocations.Put(offset, Suballocation{
		Offset:   offset,
		Size:     size,
		UserData: userData,
	})
	m.allocatedPages += size

	memutils.DebugValidate(m)

	return nil
}

func (m *BuddyBlockMetadata) Free(offset int, pages int) error {
	if pages == 0 {
		return nil
	}

	if pages < 0 {
		return errors.Wrapf(memutils.ErrFreeMismatch, "cannot free %d pages at offset %d", pages, offset)
	}

	size := memutils.RollupPow2(pages)

	if m.extents == nil {
		return errors.Wrapf(memutils.ErrFreeMismatch, "%d pages at offset %d were freed before anything was allocated", size, offset)
	}

	if offset < 0 || offset+size > m.size {
		return errors.Wrapf(memutils.ErrFreeMismatch, "pages %d-%d lie outside the %d managed pages", offset, offset+size-1, m.size)
	}

	if memutils.AlignDown(offset, uint(size)) != offset {
		return errors.Wrapf(memutils.ErrFreeMismatch, "offset %d does not start a block of %d pages", offset, size)
	}

	index := m.locateNode(offset, size)
	if NodeOffset(index, m.capacity) != offset {
		panic(errors.AssertionFailedf("descent for offset %d arrived at node %d, which starts at %d", offset, index, NodeOffset(index, m.capacity)))
	}

	// A node whose children were allocated separately also reads 0, so the record decides
	alloc, ok := m.allocations.Get(offset)
	if !ok || alloc.Size != size {
		return errors.Wrapf(memutils.ErrFreeMismatch, "%d pages at offset %d are not an allocated block", size, offset)
	}

	if m.extent(index) != 0 {
		panic(errors.AssertionFailedf("allocation of %d pages at offset %d is recorded, but the tree reports it free", size, offset))
	}

	m.extents[index] = size
	m.refreshAncestors(index)

	m.allocations.Delete(offset)
	m.allocatedPages -= size

	memutils.DebugValidate(m)

	return nil
}

// locateNode walks from the root toward offset, choosing the right child whenever offset
// is at or past its first page, until it reaches a node of the requested size.
func (m *BuddyBlockMetadata) locateNode(offset int, size int) int {
	index := rootIndex
	for NodeSize(index, m.capacity) > size {
		right := RightChild(index)
		if offset >= NodeOffset(right, m.capacity) {
			index = right
		} else {
			index = LeftChild(index)
		}

		if OutOfTree(index, m.capacity) {
			panic(errors.AssertionFailedf("descent for %d pages at offset %d walked out of the tree", size, offset))
		}
	}

	return index
}

// refreshAncestors re-derives every ancestor of index from its children. Buddies that are both
// wholly free merge into their parent; otherwise the parent keeps the larger child's run.
func (m *BuddyBlockMetadata) refreshAncestors(index int) {
	for !IsRoot(index) {
		index = Parent(index)

		left := m.extent(LeftChild(index))
		right := m.extent(RightChild(index))

		if m.isWhollyFree(LeftChild(index)) && m.isWhollyFree(RightChild(index)) {
			m.extents[index] = left + right
		} else {
			m.extents[index] = max(left, right)
		}
	}
}

func (m *BuddyBlockMetadata) Validate() error {
	if m.extents == nil {
		return nil
	}

	if m.capacity != memutils.RollupPow2(m.size) {
		return errors.Newf("tree capacity is %d, but %d pages round up to %d", m.capacity, m.size, memutils.RollupPow2(m.size))
	}

	if len(m.extents) != 2*m.capacity {
		return errors.Newf("tree of capacity %d has %d slots, expected %d", m.capacity, len(m.extents), 2*m.capacity)
	}

	if m.allocatedPages < 0 || m.allocatedPages > m.size {
		return errors.Newf("allocated page count %d is outside the %d managed pages", m.allocatedPages, m.size)
	}

	err := m.validateNode(rootIndex)
	if err != nil {
		return err
	}

	var recordedPages int
	m.allocations.Iter(func(offset int, alloc Suballocation) (stop bool) {
		recordedPages += alloc.Size

		if alloc.Offset != offset {
			err = errors.Newf("allocation recorded at offset %d claims offset %d", offset, alloc.Offset)
			return true
		}

		if offset+alloc.Size > m.size {
			err = errors.Newf("allocation of %d pages at offset %d runs past the %d managed pages", alloc.Size, offset, m.size)
			return true
		}

		index := m.locateNode(offset, alloc.Size)
		if m.extents[index] != 0 {
			err = errors.Newf("allocation of %d pages at offset %d is marked free in the tree", alloc.Size, offset)
			return true
		}

		return false
	})
	if err != nil {
		return err
	}

	if recordedPages != m.allocatedPages {
		return errors.Newf("the allocated page count is %d, but the allocations only added up to %d", m.allocatedPages, recordedPages)
	}

	return nil
}

func (m *BuddyBlockMetadata) validateNode(index int) error {
	extent := m.extents[index]
	size := NodeSize(index, m.capacity)
	offset := NodeOffset(index, m.capacity)

	if extent < 0 || extent > size {
		return errors.Newf("node %d covers %d pages but reports a free run of %d", index, size, extent)
	}

	if offset >= m.size {
		if extent != 0 {
			return errors.Newf("node %d only covers padding but reports a free run of %d", index, extent)
		}
		return nil
	}

	// Nodes under an allocated node are not maintained
	if extent == 0 || IsLeafLayer(index, m.capacity) {
		return nil
	}

	left := m.extents[LeftChild(index)]
	right := m.extents[RightChild(index)]
	bothFree := left == size/2 && right == size/2

	if bothFree && extent != size {
		return errors.Newf("both children of node %d are free, but it reports a free run of %d rather than %d", index, extent, size)
	}

	if !bothFree && extent != max(left, right) && extent != left+right {
		return errors.Newf("node %d reports a free run of %d, but its children report %d and %d", index, extent, left, right)
	}

	err := m.validateNode(LeftChild(index))
	if err != nil {
		return err
	}

	return m.validateNode(RightChild(index))
}

func (m *BuddyBlockMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockPages += m.size

	_ = m.VisitAllRegions(func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error {
		if free {
			stats.AddUnusedRange(size)
		} else {
			stats.AddAllocation(size)
		}
		return nil
	})
}

func (m *BuddyBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.AllocationCount += m.AllocationCount()
	stats.BlockPages += m.size
	stats.AllocationPages += m.allocatedPages
}

func (m *BuddyBlockMetadata) VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error {
	if m.extents == nil {
		return nil
	}

	return m.visitNode(rootIndex, handleBlock)
}

func (m *BuddyBlockMetadata) visitNode(index int, handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error {
	offset := NodeOffset(index, m.capacity)
	size := NodeSize(index, m.capacity)

	// Padding
	if offset >= m.size {
		return nil
	}

	extent := m.extents[index]
	if extent == size {
		return handleBlock(NoAllocation, offset, size, nil, true)
	}

	if extent == 0 {
		alloc, ok := m.allocations.Get(offset)
		if ok && alloc.Size == size {
			return handleBlock(BlockAllocationHandle(offset), offset, size, alloc.UserData, false)
		}
	}

	if IsLeafLayer(index, m.capacity) {
		return nil
	}

	err := m.visitNode(LeftChild(index), handleBlock)
	if err != nil {
		return err
	}

	return m.visitNode(RightChild(index), handleBlock)
}

func (m *BuddyBlockMetadata) getAllocation(allocHandle BlockAllocationHandle) (Suballocation, error) {
	if m.allocations == nil || allocHandle == NoAllocation {
		return Suballocation{}, errors.New("received a handle that was incompatible with this metadata")
	}

	alloc, ok := m.allocations.Get(int(allocHandle))
	if !ok {
		return Suballocation{}, errors.Newf("no live allocation starts at offset %d", allocHandle)
	}

	return alloc, nil
}

func (m *BuddyBlockMetadata) AllocationUserData(allocHandle BlockAllocationHandle) (any, error) {
	alloc, err := m.getAllocation(allocHandle)
	if err != nil {
		return nil, err
	}

	return alloc.UserData, nil
}

func (m *BuddyBlockMetadata) SetAllocationUserData(allocHandle BlockAllocationHandle, userData any) error {
	alloc, err := m.getAllocation(allocHandle)
	if err != nil {
		return err
	}

	alloc.UserData = userData
	m.allocations.Put(alloc.Offset, alloc)
	return nil
}

func (m *BuddyBlockMetadata) Clear() {
	if m.extents == nil {
		return
	}

	m.allocations.Clear()
	m.allocatedPages = 0
	for i := range m.extents {
		m.extents[i] = 0
	}
	m.populate(rootIndex, m.capacity, m.size)
}

// BlockJsonData populates a json object with information about this block, including the raw
// free-extent value of every tree node in index order
func (m *BuddyBlockMetadata) BlockJsonData(json *jwriter.ObjectState) {
	m.BlockMetadataBase.BlockJsonData(json, m.SumFreeSize(), m.AllocationCount(), m.FreeRegionsCount())
	json.Name("Capacity").Int(m.capacity)
	json.Name("LargestFreeRun").Int(m.LargestFreeRun())

	extents := json.Name("FreeExtents").Array()
	defer extents.End()

	for index := rootIndex; index < len(m.extents); index++ {
		extents.Int(m.extents[index])
	}
}

// String renders the first levels of the tree, for log output
func (m *BuddyBlockMetadata) String() string {
	if m.extents == nil {
		return "uninitialized"
	}

	shown := min(len(m.extents)-1, 31)
	out := make([]byte, 0, shown*6)
	for index := rootIndex; index <= shown; index++ {
		if index > rootIndex {
			out = append(out, ' ')
		}
		out = fmt.Appendf(out, "%d:%d", index, m.extents[index])
	}

	return string(out)
}
