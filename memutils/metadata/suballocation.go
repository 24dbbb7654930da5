package metadata

import "math"

// BlockAllocationHandle identifies a live allocation within a BlockMetadata. BuddyBlockMetadata uses the
// allocation's page offset, since no two live allocations can share a starting page.
type BlockAllocationHandle uint64

const (
	NoAllocation BlockAllocationHandle = math.MaxUint64
)

type Suballocation struct {
	Offset   int
	Size     int
	UserData any
}
