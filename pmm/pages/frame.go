// Package pages provides page-frame numbers and a simple page descriptor array that can back
// the physical memory manager.
package pages

import "math"

const (
	// PageShift is equal to log2(PageSize). It converts a frame number to a physical address
	// (shift left by PageShift) and vice-versa.
	PageShift = 12

	// PageSize defines the size of a page frame in bytes
	PageSize = 1 << PageShift
)

// Frame is the number of a physical page frame
type Frame uint64

const (
	// InvalidFrame is a sentinel frame number that no page table will ever contain
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the first byte of this frame
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameForAddress returns the frame that contains the physical address
func FrameForAddress(address uintptr) Frame {
	return Frame(address >> PageShift)
}
