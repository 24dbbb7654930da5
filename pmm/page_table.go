package pmm

import "github.com/vkngwrapper/pagealloc/pmm/pages"

//go:generate mockgen -source page_table.go -destination mocks/page_table.go -package mock_pmm

// PageTable is the page-frame descriptor subsystem consumed by the physical memory manager.
// The manager never creates or destroys descriptors; it only updates the descriptors of the
// pages it is given during registration and translates frames into physical addresses.
type PageTable interface {
	// IsReserved returns true if the frame has not yet been handed to a page allocator
	IsReserved(frame pages.Frame) bool
	// ClearOwnership removes all ownership metadata from the frame's descriptor
	ClearOwnership(frame pages.Frame)
	// SetRefCount sets the reference count stored in the frame's descriptor
	SetRefCount(frame pages.Frame, refs int)
	// PhysicalAddress returns the physical address of the first byte of the frame
	PhysicalAddress(frame pages.Frame) uintptr
}

// Block is a contiguous run of page frames handed out by a Manager
type Block struct {
	// Frame is the first frame of the block
	Frame pages.Frame
	// Pages is the number of frames reserved for the block. This is the requested page count
	// rounded up to a power of two.
	Pages int
	// Address is the physical address of the first frame
	Address uintptr
}
