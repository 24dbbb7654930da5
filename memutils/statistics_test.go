package memutils_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/pagealloc/memutils"
)

func TestDetailedStatisticsAccumulate(t *testing.T) {
	var first memutils.DetailedStatistics
	first.Clear()
	first.BlockCount = 1
	first.BlockPages = 16
	first.AddAllocation(8)
	first.AddAllocation(2)
	first.AddUnusedRange(4)
	first.AddUnusedRange(2)

	var second memutils.DetailedStatistics
	second.Clear()
	second.BlockCount = 1
	second.BlockPages = 4
	second.AddAllocation(1)
	second.AddUnusedRange(1)

	var total memutils.DetailedStatistics
	total.Clear()
	total.AddDetailedStatistics(&first)
	total.AddDetailedStatistics(&second)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlockCount:      2,
			AllocationCount: 3,
			BlockPages:      20,
			AllocationPages: 11,
		},
		UnusedRangeCount:   3,
		AllocationSizeMin:  1,
		AllocationSizeMax:  8,
		UnusedRangeSizeMin: 1,
		UnusedRangeSizeMax: 4,
	}, total)

	total.Clear()
	require.Equal(t, memutils.DetailedStatistics{
		AllocationSizeMin:  math.MaxInt,
		UnusedRangeSizeMin: math.MaxInt,
	}, total)
}
