package pmm

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/pagealloc/internal/utils"
	"github.com/vkngwrapper/pagealloc/memutils"
	"github.com/vkngwrapper/pagealloc/memutils/metadata"
	"github.com/vkngwrapper/pagealloc/pmm/pages"
	"golang.org/x/exp/slog"
)

// BuddyManagerName is the value returned from BuddyManager.Name
const BuddyManagerName = "buddy_pmm_manager"

// BuddyManager is a Manager that allocates power-of-two runs of frames with the buddy system.
//
// Frames are registered with InitMemMap before the first allocation. The free-extent tree is built
// from the registered page count on the first call to AllocPages, and pages cannot be registered
// after that. All registered frames must form a single contiguous run: every call to InitMemMap
// moves the base frame that block offsets are measured from.
type BuddyManager struct {
	logger   *slog.Logger
	pages    PageTable
	mutex    utils.OptionalRWMutex
	validate bool

	registeredPages int
	baseFrame       pages.Frame
	treeReady       bool
	tree            *metadata.BuddyBlockMetadata
}

var _ Manager = &BuddyManager{}

// New creates a BuddyManager over the provided page table. Init must be called before any frames
// are registered.
func New(logger *slog.Logger, pageTable PageTable, options CreateOptions) *BuddyManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &BuddyManager{
		logger: logger,
		pages:  pageTable,
		mutex: utils.OptionalRWMutex{
			UseMutex: options.Flags&CreateExternallySynchronized == 0,
		},
		validate: options.Flags&CreateValidateEachOperation != 0,
		tree:     metadata.NewBuddyBlockMetadata(),
	}
}

func (m *BuddyManager) Name() string {
	return BuddyManagerName
}

func (m *BuddyManager) Init() {
	m.logger.Debug("BuddyManager::Init")

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.registeredPages = 0
	m.baseFrame = 0
	m.treeReady = false
	m.tree = metadata.NewBuddyBlockMetadata()
}

func (m *BuddyManager) InitMemMap(base pages.Frame, count int) {
	m.logger.Debug("BuddyManager::InitMemMap", slog.Uint64("BaseFrame", uint64(base)), slog.Int("Count", count))

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if count < 1 {
		panic(errors.Wrapf(memutils.ZeroPagesError, "cannot register %d pages at frame %d", count, base))
	}

	if m.treeReady {
		panic(errors.AssertionFailedf("frames %d-%d were registered after the first allocation", base, base+pages.Frame(count-1)))
	}

	m.report("registered pages", base, count)

	m.baseFrame = base
	for frame := base; frame < base+pages.Frame(count); frame++ {
		if !m.pages.IsReserved(frame) {
			panic(errors.AssertionFailedf("frame %d was registered but is not reserved", frame))
		}

		m.pages.ClearOwnership(frame)
		m.pages.SetRefCount(frame, 0)
	}
	m.registeredPages += count
}

func (m *BuddyManager) ensureTree() {
	if m.treeReady {
		return
	}

	if m.registeredPages < 1 {
		panic(errors.Wrap(memutils.ZeroPagesError, "pages were requested before any were registered"))
	}

	m.tree.Init(m.registeredPages)
	m.treeReady = true

	m.logger.Debug("built free-extent tree",
		slog.Int("Pages", m.registeredPages),
		slog.Int("Capacity", m.tree.Capacity()),
		slog.String("Extents", m.tree.String()),
	)
}

func (m *BuddyManager) AllocPages(n int) (Block, bool) {
	m.logger.Debug("BuddyManager::AllocPages", slog.Int("Pages", n))

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.ensureTree()

	size := memutils.RollupPow2(n)
	success, request, err := m.tree.CreateAllocationRequest(size)
	if err != nil {
		panic(err)
	}

	if !success {
		m.logger.Info("no block available", slog.Int("Pages", size), slog.Int("LargestFreeRun", m.tree.LargestFreeRun()))
		return Block{}, false
	}

	// The requested page count is kept as user data for diagnostics
	err = m.tree.Alloc(request, n)
	if err != nil {
		panic(err)
	}

	if m.validate {
		err = m.tree.Validate()
		if err != nil {
			m.logger.Error("free-extent tree failed validation after allocation", slog.Any("error", err))
			panic(err)
		}
	}

	frame := m.baseFrame + pages.Frame(request.Item.Offset)
	m.report("allocated pages", frame, request.Size)

	return Block{
		Frame:   frame,
		Pages:   request.Size,
		Address: m.pages.PhysicalAddress(frame),
	}, true
}

func (m *BuddyManager) FreePages(base pages.Frame, n int) error {
	m.logger.Debug("BuddyManager::FreePages", slog.Uint64("Frame", uint64(base)), slog.Int("Pages", n))

	if n == 0 {
		return nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	err := m.freePages(base, n)
	if err != nil {
		m.logger.Warn("failed to free pages",
			slog.Uint64("Frame", uint64(base)),
			slog.Int("Pages", n),
			slog.Any("error", err),
		)
		return err
	}

	m.report("freed pages", base, memutils.RollupPow2(n))

	if m.validate {
		err = m.tree.Validate()
		if err != nil {
			m.logger.Error("free-extent tree failed validation after free", slog.Any("error", err))
			return err
		}
	}

	return nil
}

func (m *BuddyManager) freePages(base pages.Frame, n int) error {
	if base < m.baseFrame {
		return errors.Wrapf(memutils.ErrFreeMismatch, "frame %d is below the managed region starting at frame %d", base, m.baseFrame)
	}

	return m.tree.Free(int(base-m.baseFrame), n)
}

// FreePageCount returns the number of pages that have been registered with InitMemMap. It does
// not change as pages are allocated and freed; see TreeFreePageCount for the current number
// of free pages.
func (m *BuddyManager) FreePageCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.registeredPages
}

// TreeFreePageCount returns the number of registered pages that are not part of an outstanding
// allocation
func (m *BuddyManager) TreeFreePageCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if !m.treeReady {
		return m.registeredPages
	}

	return m.tree.SumFreeSize()
}

// BaseFrame returns the frame that block offsets are measured from
func (m *BuddyManager) BaseFrame() pages.Frame {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.baseFrame
}

// Check runs SelfCheck with this manager's logger. It does not touch this manager's region.
func (m *BuddyManager) Check() error {
	m.logger.Debug("BuddyManager::Check")

	return SelfCheck(m.logger)
}

// Validate performs a full consistency check of the free-extent tree
func (m *BuddyManager) Validate() error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.tree.Validate()
}

func (m *BuddyManager) AddStatistics(stats *memutils.Statistics) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if !m.treeReady {
		stats.BlockCount++
		stats.BlockPages += m.registeredPages
		return
	}

	m.tree.AddStatistics(stats)
}

func (m *BuddyManager) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if !m.treeReady {
		stats.BlockCount++
		stats.BlockPages += m.registeredPages
		if m.registeredPages > 0 {
			stats.AddUnusedRange(m.registeredPages)
		}
		return
	}

	m.tree.AddDetailedStatistics(stats)
}

// PrintDetailedMap writes a json object describing the managed region, the free-extent tree, and
// every free region and allocation in address order
func (m *BuddyManager) PrintDetailedMap(writer *jwriter.Writer) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	objState := writer.Object()
	defer objState.End()

	objState.Name("Name").String(m.Name())
	objState.Name("BaseFrame").Int(int(m.baseFrame))
	objState.Name("RegisteredPages").Int(m.registeredPages)
	objState.Name("TreeBuilt").Bool(m.treeReady)

	if !m.treeReady {
		return
	}

	treeObj := objState.Name("Tree").Object()
	m.tree.BlockJsonData(&treeObj)
	treeObj.End()

	m.printRegions(&objState)
}

func (m *BuddyManager) printRegions(json *jwriter.ObjectState) {
	arrayState := json.Name("Regions").Array()
	defer arrayState.End()

	_ = m.tree.VisitAllRegions(
		func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
			obj := arrayState.Object()
			defer obj.End()

			frame := m.baseFrame + pages.Frame(offset)
			obj.Name("Frame").Int(int(frame))
			obj.Name("Address").String(fmt.Sprintf("0x%08x", m.pages.PhysicalAddress(frame)))
			obj.Name("Pages").Int(size)
			obj.Name("Free").Bool(free)

			requested, isCount := userData.(int)
			if !free && isCount {
				obj.Name("RequestedPages").Int(requested)
			}

			return nil
		})
}

func (m *BuddyManager) report(message string, frame pages.Frame, count int) {
	last := frame + pages.Frame(count-1)

	m.logger.Info(message,
		slog.Int("Pages", count),
		slog.Uint64("FirstFrame", uint64(frame)),
		slog.Uint64("LastFrame", uint64(last)),
		slog.String("FirstAddress", fmt.Sprintf("0x%08x", m.pages.PhysicalAddress(frame))),
		slog.String("LastAddress", fmt.Sprintf("0x%08x", m.pages.PhysicalAddress(last))),
	)
}
