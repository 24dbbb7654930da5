package pmm

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/pagealloc/memutils"
	"github.com/vkngwrapper/pagealloc/pmm/pages"
	"golang.org/x/exp/slog"
)

const (
	selfCheckBaseFrame pages.Frame = 0x100
	selfCheckPages                 = 16
)

type selfCheck struct {
	name string
	run  func(m *BuddyManager) error
}

var selfChecks = []selfCheck{
	{name: "basic", run: checkBasic},
	{name: "exhaust and restore", run: checkExhaustAndRestore},
	{name: "double free", run: checkDoubleFree},
}

// SelfCheck runs a scripted sequence of allocations and frees against a scratch 16-page
// region and returns an error describing the first result that differs from what the
// buddy system must produce.
func SelfCheck(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for _, check := range selfChecks {
		logger.Debug("running self check", slog.String("Check", check.name))

		table := pages.NewArray(selfCheckBaseFrame, selfCheckPages)
		manager := New(logger, table, CreateOptions{
			Flags: CreateExternallySynchronized | CreateValidateEachOperation,
		})
		manager.Init()
		manager.InitMemMap(selfCheckBaseFrame, selfCheckPages)

		err := check.run(manager)
		if err != nil {
			return errors.Wrapf(err, "self check %q failed", check.name)
		}
	}

	return nil
}

func expectAlloc(m *BuddyManager, n int, offset int) (Block, error) {
	block, ok := m.AllocPages(n)
	if !ok {
		return block, errors.Newf("allocation of %d pages failed", n)
	}

	expected := m.BaseFrame() + pages.Frame(offset)
	if block.Frame != expected {
		return block, errors.Newf("allocation of %d pages returned frame %d, expected frame %d", n, block.Frame, expected)
	}

	return block, nil
}

func expectNoAlloc(m *BuddyManager, n int) error {
	block, ok := m.AllocPages(n)
	if ok {
		return errors.Newf("allocation of %d pages should have failed, but returned frame %d", n, block.Frame)
	}

	return nil
}

func checkBasic(m *BuddyManager) error {
	var blocks [3]Block
	for i := range blocks {
		var err error
		blocks[i], err = expectAlloc(m, 1, i)
		if err != nil {
			return err
		}
	}

	for _, i := range []int{1, 0, 2} {
		err := m.FreePages(blocks[i].Frame, 1)
		if err != nil {
			return err
		}
	}

	_, err := expectAlloc(m, selfCheckPages, 0)
	return err
}

func checkExhaustAndRestore(m *BuddyManager) error {
	requests := []struct {
		pages  int
		offset int
	}{
		{7, 0},
		{3, 8},
		{1, 12},
		{1, 13},
		{1, 14},
		{1, 15},
	}

	blocks := make([]Block, 0, len(requests))
	for _, request := range requests {
		block, err := expectAlloc(m, request.pages, request.offset)
		if err != nil {
			return err
		}
		blocks = append(blocks, block)
	}

	err := expectNoAlloc(m, 1)
	if err != nil {
		return err
	}

	for i := len(blocks) - 1; i >= 0; i-- {
		err = m.FreePages(blocks[i].Frame, requests[i].pages)
		if err != nil {
			return err
		}
	}

	if m.TreeFreePageCount() != selfCheckPages {
		return errors.Newf("%d pages are free after freeing every block, expected %d", m.TreeFreePageCount(), selfCheckPages)
	}

	_, err = expectAlloc(m, selfCheckPages, 0)
	return err
}

func checkDoubleFree(m *BuddyManager) error {
	block, err := expectAlloc(m, selfCheckPages, 0)
	if err != nil {
		return err
	}

	err = m.FreePages(block.Frame, selfCheckPages)
	if err != nil {
		return err
	}

	err = m.FreePages(block.Frame, selfCheckPages)
	if !errors.Is(err, memutils.ErrFreeMismatch) {
		return errors.Newf("second free of frame %d returned %v, expected a mismatch", block.Frame, err)
	}

	_, err = expectAlloc(m, selfCheckPages, 0)
	if err != nil {
		return err
	}

	return expectNoAlloc(m, selfCheckPages)
}
