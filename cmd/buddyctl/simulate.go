package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/pagealloc/memutils"
	"github.com/vkngwrapper/pagealloc/pmm"
	"github.com/vkngwrapper/pagealloc/pmm/pages"
	"golang.org/x/exp/slog"
)

type simulateOptions struct {
	Pages                  int
	Base                   uint64
	Validate               bool
	ExternallySynchronized bool
}

var simulateOpts = simulateOptions{
	Pages: 16,
	Base:  0x100,
}

func init() {
	cmd := newSimulateCmd()
	cmd.Flags().IntVar(&simulateOpts.Pages, "pages", simulateOpts.Pages, "Number of pages to register")
	cmd.Flags().Uint64Var(&simulateOpts.Base, "base", simulateOpts.Base, "First frame of the registered region")
	cmd.Flags().BoolVar(&simulateOpts.Validate, "validate", false, "Validate the free-extent tree after every operation")
	cmd.Flags().BoolVar(&simulateOpts.ExternallySynchronized, "externally-synchronized", false, "Disable internal locking")
	rootCmd.AddCommand(cmd)
}

func newSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <op>...",
		Short: "Replay a script of allocations and frees",
		Long: `The simulate command registers a region of simulated pages and replays a script
of operations against it. Each operation is one of:

  alloc:N         allocate N pages
  free:I          free the I-th successful allocation (counting from 0)
  freeat:FRAME:N  free N pages starting at FRAME

Failed allocations and rejected frees are reported and the script continues.

Example:
  buddyctl simulate alloc:7 alloc:3 free:0 alloc:8
  buddyctl simulate --pages 5 alloc:4 alloc:1 freeat:0x105:1
  buddyctl simulate --json alloc:1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(logLevel, os.Stderr)
			if err != nil {
				return err
			}

			return runSimulate(cmd.OutOrStdout(), logger, simulateOpts, args, jsonOut)
		},
	}
}

type simulateOp struct {
	Kind  string
	Pages int
	Index int
	Frame pages.Frame
}

func parseOp(op string) (simulateOp, error) {
	fields := strings.Split(op, ":")

	parseInt := func(field string) (int, error) {
		value, err := strconv.Atoi(field)
		if err != nil {
			return 0, errors.Wrapf(err, "operation %q", op)
		}
		return value, nil
	}

	switch {
	case fields[0] == "alloc" && len(fields) == 2:
		pageCount, err := parseInt(fields[1])
		if err != nil {
			return simulateOp{}, err
		}
		if pageCount < 1 {
			return simulateOp{}, errors.Wrapf(memutils.ZeroPagesError, "operation %q", op)
		}
		return simulateOp{Kind: "alloc", Pages: pageCount}, nil

	case fields[0] == "free" && len(fields) == 2:
		index, err := parseInt(fields[1])
		if err != nil {
			return simulateOp{}, err
		}
		return simulateOp{Kind: "free", Index: index}, nil

	case fields[0] == "freeat" && len(fields) == 3:
		frame, err := strconv.ParseUint(fields[1], 0, 64)
		if err != nil {
			return simulateOp{}, errors.Wrapf(err, "operation %q", op)
		}
		pageCount, err := parseInt(fields[2])
		if err != nil {
			return simulateOp{}, err
		}
		if pageCount < 0 {
			return simulateOp{}, errors.Wrapf(memutils.ZeroPagesError, "operation %q", op)
		}
		return simulateOp{Kind: "freeat", Frame: pages.Frame(frame), Pages: pageCount}, nil
	}

	return simulateOp{}, errors.Newf("unrecognized operation %q", op)
}

type simulatedAllocation struct {
	block     pmm.Block
	requested int
	freed     bool
}

func runSimulate(out io.Writer, logger *slog.Logger, options simulateOptions, script []string, asJSON bool) error {
	ops := make([]simulateOp, 0, len(script))
	for _, raw := range script {
		op, err := parseOp(raw)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}

	if options.Pages < 1 {
		return errors.Wrapf(memutils.ZeroPagesError, "cannot simulate %d pages", options.Pages)
	}

	var flags pmm.CreateFlags
	if options.Validate {
		flags |= pmm.CreateValidateEachOperation
	}
	if options.ExternallySynchronized {
		flags |= pmm.CreateExternallySynchronized
	}

	base := pages.Frame(options.Base)
	table := pages.NewArray(base, options.Pages)
	manager := pmm.New(logger, table, pmm.CreateOptions{Flags: flags})
	manager.Init()
	manager.InitMemMap(base, options.Pages)

	var allocations []simulatedAllocation
	for _, op := range ops {
		switch op.Kind {
		case "alloc":
			block, ok := manager.AllocPages(op.Pages)
			if !ok {
				textf(out, asJSON, "alloc %d: no block available\n", op.Pages)
				continue
			}

			textf(out, asJSON, "alloc %d: #%d frame 0x%x (%d pages)\n", op.Pages, len(allocations), uint64(block.Frame), block.Pages)
			allocations = append(allocations, simulatedAllocation{block: block, requested: op.Pages})

		case "free":
			if op.Index < 0 || op.Index >= len(allocations) {
				return errors.Newf("free:%d refers to an allocation that does not exist", op.Index)
			}

			alloc := &allocations[op.Index]
			err := manager.FreePages(alloc.block.Frame, alloc.requested)
			reportFree(out, asJSON, alloc.block.Frame, alloc.requested, err)
			if err == nil {
				alloc.freed = true
			}

		case "freeat":
			err := manager.FreePages(op.Frame, op.Pages)
			reportFree(out, asJSON, op.Frame, op.Pages, err)
			if err == nil {
				for i := range allocations {
					if !allocations[i].freed && allocations[i].block.Frame == op.Frame &&
						op.Pages > 0 && allocations[i].block.Pages == memutils.RollupPow2(op.Pages) {
						allocations[i].freed = true
					}
				}
			}
		}
	}

	if asJSON {
		writer := jwriter.NewWriter()
		manager.PrintDetailedMap(&writer)
		if err := writer.Error(); err != nil {
			return err
		}

		_, err := fmt.Fprintln(out, string(writer.Bytes()))
		return err
	}

	var stats memutils.DetailedStatistics
	stats.Clear()
	manager.AddDetailedStatistics(&stats)

	fmt.Fprintf(out, "\nRegistered pages: %d\n", manager.FreePageCount())
	fmt.Fprintf(out, "Free pages: %d\n", manager.TreeFreePageCount())
	fmt.Fprintf(out, "Allocations: %d (%d pages)\n", stats.AllocationCount, stats.AllocationPages)
	fmt.Fprintf(out, "Free regions: %d\n", stats.UnusedRangeCount)
	if stats.UnusedRangeCount > 0 {
		fmt.Fprintf(out, "Largest free region: %d pages\n", stats.UnusedRangeSizeMax)
	}

	return nil
}

func reportFree(out io.Writer, asJSON bool, frame pages.Frame, pageCount int, err error) {
	if err != nil {
		textf(out, asJSON, "free 0x%x (%d pages): rejected: %v\n", uint64(frame), pageCount, err)
		return
	}

	textf(out, asJSON, "free 0x%x (%d pages)\n", uint64(frame), pageCount)
}

// textf prints a progress line unless the output is a json document
func textf(out io.Writer, asJSON bool, format string, args ...any) {
	if asJSON {
		return
	}
	fmt.Fprintf(out, format, args...)
}
