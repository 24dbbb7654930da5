package pages

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Flags describes the state of a single page descriptor
type Flags uint32

const (
	// FlagReserved marks a page that has not been handed to a page allocator yet
	FlagReserved Flags = 1 << iota
	// FlagProperty marks a page that heads a free run of pages
	FlagProperty
)

var flagsMapping = []struct {
	flag Flags
	name string
}{
	{FlagReserved, "Reserved"},
	{FlagProperty, "Property"},
}

func (f Flags) String() string {
	var out string
	for _, mapping := range flagsMapping {
		if f&mapping.flag == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += mapping.name
	}

	return out
}

// Page is the descriptor for a single physical page frame
type Page struct {
	Flags    Flags
	Ref      int
	Property int
}

// Array is a contiguous table of page descriptors, one per frame, beginning at a base frame.
// It implements the page table consumed by the physical memory manager.
type Array struct {
	base  Frame
	pages []Page
}

// NewArray creates descriptors for count frames beginning at base. Every page starts out reserved.
func NewArray(base Frame, count int) *Array {
	if count < 1 {
		panic(errors.Newf("cannot create a page array of %d pages", count))
	}

	pages := make([]Page, count)
	for i := range pages {
		pages[i].Flags = FlagReserved
	}

	return &Array{
		base:  base,
		pages: pages,
	}
}

// Base returns the frame number of the first descriptor
func (a *Array) Base() Frame { return a.base }

// Len returns the number of descriptors in the array
func (a *Array) Len() int { return len(a.pages) }

// Page returns the descriptor for frame. It panics if frame is not in the array.
func (a *Array) Page(frame Frame) *Page {
	if frame < a.base || frame-a.base >= Frame(len(a.pages)) {
		panic(errors.Newf("frame %d is outside the page array [%d, %d)", frame, a.base, a.base+Frame(len(a.pages))))
	}

	return &a.pages[frame-a.base]
}

// FrameOf returns the frame number described by page, which must be a descriptor from this array
func (a *Array) FrameOf(page *Page) Frame {
	first := unsafe.Pointer(&a.pages[0])
	index := (uintptr(unsafe.Pointer(page)) - uintptr(first)) / unsafe.Sizeof(Page{})
	if index >= uintptr(len(a.pages)) {
		panic("page descriptor does not belong to this page array")
	}

	return a.base + Frame(index)
}

// Reserve marks count frames beginning at frame as reserved, so they can be registered again
func (a *Array) Reserve(frame Frame, count int) {
	for i := 0; i < count; i++ {
		a.Page(frame + Frame(i)).Flags |= FlagReserved
	}
}

func (a *Array) IsReserved(frame Frame) bool {
	return a.Page(frame).Flags&FlagReserved != 0
}

func (a *Array) ClearOwnership(frame Frame) {
	page := a.Page(frame)
	page.Flags = 0
	page.Property = 0
}

func (a *Array) SetRefCount(frame Frame, refs int) {
	a.Page(frame).Ref = refs
}

func (a *Array) PhysicalAddress(frame Frame) uintptr {
	// Bounds check only
	a.Page(frame)
	return frame.Address()
}
