package pmm

import "github.com/vkngwrapper/pagealloc/pmm/pages"

// Manager is a physical memory manager: it hands out and reclaims runs of page frames from a
// managed region.
type Manager interface {
	// Name identifies the allocation algorithm
	Name() string
	// Init resets the manager. It must be called once before any call to InitMemMap
	Init()
	// InitMemMap registers count reserved frames beginning at base as available for allocation
	InitMemMap(base pages.Frame, count int)
	// AllocPages reserves a block of at least n frames. The boolean return value is false when
	// no block is available, which is not an error.
	AllocPages(n int) (Block, bool)
	// FreePages returns a block to the manager. base and n must be the block's first frame and the
	// page count that was passed to AllocPages. Mismatched or repeated frees are rejected without
	// modifying the manager and reported through the returned error.
	FreePages(base pages.Frame, n int) error
	// FreePageCount returns the number of free pages reported by the manager
	FreePageCount() int
	// Check runs the manager's self check against a scratch region
	Check() error
}

// CreateFlags indicate specific manager behaviors to activate or deactivate
type CreateFlags int32

const (
	// CreateExternallySynchronized ensures that the manager will not be synchronized internally.
	// The consumer must guarantee it is used from only one thread at a time or is synchronized
	// by some other mechanism (such as running with interrupts disabled).
	CreateExternallySynchronized CreateFlags = 1 << iota
	// CreateValidateEachOperation runs a full consistency check of the free-extent tree after every
	// allocation and free. This is expensive and intended for diagnostics.
	CreateValidateEachOperation
)

var createFlagsMapping = map[CreateFlags]string{
	CreateExternallySynchronized: "CreateExternallySynchronized",
	CreateValidateEachOperation:  "CreateValidateEachOperation",
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var out string
	for _, flag := range []CreateFlags{CreateExternallySynchronized, CreateValidateEachOperation} {
		if f&flag == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += createFlagsMapping[flag]
	}

	return out
}

// CreateOptions contains optional settings when creating a manager
type CreateOptions struct {
	// Flags indicates specific manager behaviors to activate or deactivate
	Flags CreateFlags
}
