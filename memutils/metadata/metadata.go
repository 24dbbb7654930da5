package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/pagealloc/memutils"
)

// BlockMetadata represents a single contiguous run of pages within some system. It manages
// suballocations within the block, allowing allocations to be requested and freed, as well as
// enumerated and queried. All offsets and sizes are measured in pages, relative to the first
// page of the block.
type BlockMetadata interface {
	// Init must be called before the BlockMetadata is used. It gives the implementation an opportunity
	// to ensure that metadata structures are prepared for allocations, as well as allows the consumer
	// to inform the implementation of the number of pages it will be managing, via the pageCount parameter.
	Init(pageCount int)
	// Size retrieves the number of pages that the block was initialized with
	Size() int

	// Validate performs internal consistency checks on the metadata. These checks may be expensive, depending
	// on the implementation. When the implementation is functioning correctly, it should not be possible
	// for this method to return an error, but this may assist in diagnosing issues with the implementation.
	Validate() error
	// AllocationCount returns the number of suballocations currently live in the implementation. This number
	// should generally be the number of successful allocations minus the number of successful frees.
	AllocationCount() int
	// FreeRegionsCount returns the number of unique regions of free pages in the block. The specific meaning
	// of this value is implementation-specific.
	FreeRegionsCount() int
	// SumFreeSize returns the number of free pages in the block.
	SumFreeSize() int
	// MayHaveFreeBlock should return a heuristic indicating whether the block could possibly support a new
	// allocation of the provided number of pages. False positives are ok, false negatives are not.
	MayHaveFreeBlock(pages int) bool

	// IsEmpty will return true if this block has no live suballocations
	IsEmpty() bool

	// VisitAllRegions will call the provided callback once for each allocation and free region in
	// the block, in address order.  Depending on implementation, this can be slow and should generally not
	// be done except for diagnostic purposes.
	VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error

	// AllocationUserData accepts a BlockAllocationHandle that maps to a live allocation within the block
	// and returns the userdata value provided by the consumer for that allocation.
	AllocationUserData(allocHandle BlockAllocationHandle) (any, error)
	// SetAllocationUserData accepts a BlockAllocationHandle that maps to a live allocation within the
	// block and a userData value. The allocation's userData is changed to the provided userData.
	SetAllocationUserData(allocHandle BlockAllocationHandle, userData any) error

	// AddDetailedStatistics sums this block's allocation statistics into the statistics currently present
	// in the provided memutils.DetailedStatistics object.
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// AddStatistics sums this block's allocation statistics into the statistics currently present in the
	// provided memutils.Statistics object.
	AddStatistics(stats *memutils.Statistics)

	// Clear instantly frees all allocations
	Clear()
	// BlockJsonData populates a json object with information about this block
	BlockJsonData(json *jwriter.ObjectState)

	// CreateAllocationRequest retrieves an AllocationRequest object indicating where the implementation
	// would place an allocation of the requested number of pages. That object can be passed to Alloc to
	// commit the allocation. The boolean return value is false when no suitable region exists, which is an
	// ordinary outcome rather than an error.
	CreateAllocationRequest(pages int) (bool, AllocationRequest, error)
	// Alloc commits an AllocationRequest object, creating the suballocation within the block based
	// on the data described in the AllocationRequest. The implementation must return an error if the
	// allocation is no longer valid.
	Alloc(request AllocationRequest, userData any) error

	// Free frees the suballocation of the provided size that begins at the provided offset, causing it
	// to become a free region once again.
	//
	// The implementation must return an error wrapping memutils.ErrFreeMismatch, and leave the metadata
	// unchanged, if the offset and size do not describe a live allocation within this block.
	Free(offset int, pages int) error
}

// BlockMetadataBase is a simple struct that provides a few shared utilities for BlockMetadata
// implementations in the memutils module.
type BlockMetadataBase struct {
	size int
}

// Init prepares this structure for allocations and sizes the block in pages based on the parameter size.
func (m *BlockMetadataBase) Init(size int) {
	m.size = size
}

// Size returns the size of the block in pages
func (m *BlockMetadataBase) Size() int { return m.size }

// BlockJsonData populates a json object with information about this block
func (m *BlockMetadataBase) BlockJsonData(json *jwriter.ObjectState, unusedPages, allocationCount, unusedRangeCount int) {
	json.Name("TotalPages").Int(m.Size())
	json.Name("UnusedPages").Int(unusedPages)
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
}
