package pmm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelfCheck(t *testing.T) {
	require.NoError(t, SelfCheck(discardLogger()))
	require.NoError(t, SelfCheck(nil))

	_, manager := readyManager(t, 0x1000, 4, 0)
	require.NoError(t, manager.Check())
}

func TestSelfChecksDetectWrongPlacement(t *testing.T) {
	for _, check := range selfChecks {
		t.Run(check.name, func(t *testing.T) {
			_, manager := readyManager(t, selfCheckBaseFrame, selfCheckPages, 0)
			// The region already has an outstanding page, so the scripted offsets are wrong
			requireAlloc(t, manager, 1, selfCheckBaseFrame)

			require.Error(t, check.run(manager))
		})
	}
}

func TestExpectNoAlloc(t *testing.T) {
	_, manager := readyManager(t, selfCheckBaseFrame, selfCheckPages, 0)

	require.Error(t, expectNoAlloc(manager, 1))
	require.NoError(t, expectNoAlloc(manager, selfCheckPages))
}
