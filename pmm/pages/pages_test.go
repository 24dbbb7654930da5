package pages_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/pagealloc/pmm/pages"
)

func TestFrameAddress(t *testing.T) {
	require.Equal(t, uintptr(0), pages.Frame(0).Address())
	require.Equal(t, uintptr(0x100000), pages.Frame(0x100).Address())
	require.Equal(t, pages.Frame(0x100), pages.FrameForAddress(0x100000))
	require.Equal(t, pages.Frame(0x100), pages.FrameForAddress(0x100fff))

	require.True(t, pages.Frame(0).Valid())
	require.False(t, pages.InvalidFrame.Valid())
}

func TestFlagsString(t *testing.T) {
	require.Equal(t, "", pages.Flags(0).String())
	require.Equal(t, "Reserved", pages.FlagReserved.String())
	require.Equal(t, "Reserved|Property", (pages.FlagReserved | pages.FlagProperty).String())
}

func TestNewArrayStartsReserved(t *testing.T) {
	array := pages.NewArray(0x40, 4)

	require.Equal(t, pages.Frame(0x40), array.Base())
	require.Equal(t, 4, array.Len())

	for frame := pages.Frame(0x40); frame < 0x44; frame++ {
		require.True(t, array.IsReserved(frame))
		require.Equal(t, 0, array.Page(frame).Ref)
	}

	require.Panics(t, func() {
		pages.NewArray(0, 0)
	})
}

func TestArrayOutOfRange(t *testing.T) {
	array := pages.NewArray(0x40, 4)

	require.Panics(t, func() {
		array.Page(0x3f)
	})
	require.Panics(t, func() {
		array.Page(0x44)
	})
	require.Panics(t, func() {
		array.PhysicalAddress(0x44)
	})
}

func TestArrayOwnership(t *testing.T) {
	array := pages.NewArray(0x40, 4)

	page := array.Page(0x41)
	page.Flags |= pages.FlagProperty
	page.Property = 2
	page.Ref = 3

	array.ClearOwnership(0x41)
	array.SetRefCount(0x41, 0)

	require.Equal(t, pages.Page{}, *array.Page(0x41))
	require.False(t, array.IsReserved(0x41))
	require.True(t, array.IsReserved(0x40))

	array.Reserve(0x41, 2)
	require.True(t, array.IsReserved(0x41))
	require.True(t, array.IsReserved(0x42))
}

func TestArrayFrameOf(t *testing.T) {
	array := pages.NewArray(0x40, 4)

	for frame := pages.Frame(0x40); frame < 0x44; frame++ {
		require.Equal(t, frame, array.FrameOf(array.Page(frame)))
		require.Equal(t, frame.Address(), array.PhysicalAddress(frame))
	}

	require.Panics(t, func() {
		array.FrameOf(&pages.Page{})
	})
}
