package main

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func testLogger() *slog.Logger {
	logger, err := newLogger("error", io.Discard)
	if err != nil {
		panic(err)
	}
	return logger
}

func TestSimulateCommand(t *testing.T) {
	tests := []struct {
		name        string
		options     simulateOptions
		script      []string
		wantErr     bool
		wantContain []string
	}{
		{
			name:    "allocate and coalesce",
			options: simulateOptions{Pages: 16, Base: 0x100, Validate: true},
			script:  []string{"alloc:7", "alloc:3", "free:0", "free:1", "alloc:16"},
			wantContain: []string{
				"alloc 7: #0 frame 0x100 (8 pages)",
				"alloc 3: #1 frame 0x108 (4 pages)",
				"free 0x100 (7 pages)",
				"free 0x108 (3 pages)",
				"alloc 16: #2 frame 0x100 (16 pages)",
				"Registered pages: 16",
				"Free pages: 0",
				"Allocations: 1 (16 pages)",
				"Free regions: 0",
			},
		},
		{
			name:    "padding is never allocated",
			options: simulateOptions{Pages: 5, Base: 0x100, ExternallySynchronized: true},
			script:  []string{"alloc:4", "alloc:1", "alloc:1", "freeat:0x105:1"},
			wantContain: []string{
				"alloc 4: #0 frame 0x100 (4 pages)",
				"alloc 1: #1 frame 0x104 (1 pages)",
				"alloc 1: no block available",
				"free 0x105 (1 pages): rejected:",
				"Free pages: 0",
			},
		},
		{
			name:    "double free is rejected",
			options: simulateOptions{Pages: 8},
			script:  []string{"alloc:8", "free:0", "free:0", "freeat:0:8"},
			wantContain: []string{
				"free 0x0 (8 pages)\n",
				"free 0x0 (8 pages): rejected:",
				"Free pages: 8",
				"Largest free region: 8 pages",
			},
		},
		{
			name:    "unknown allocation index",
			options: simulateOptions{Pages: 8},
			script:  []string{"free:0"},
			wantErr: true,
		},
		{
			name:    "malformed operation",
			options: simulateOptions{Pages: 8},
			script:  []string{"alloc"},
			wantErr: true,
		},
		{
			name:    "zero page allocation",
			options: simulateOptions{Pages: 8},
			script:  []string{"alloc:0"},
			wantErr: true,
		},
		{
			name:    "bad frame",
			options: simulateOptions{Pages: 8},
			script:  []string{"freeat:zero:1"},
			wantErr: true,
		},
		{
			name:    "negative free",
			options: simulateOptions{Pages: 8},
			script:  []string{"alloc:1", "freeat:0x0:-1"},
			wantErr: true,
		},
		{
			name:    "free spanning two allocations is rejected",
			options: simulateOptions{Pages: 4, Base: 0x100},
			script:  []string{"alloc:1", "alloc:1", "freeat:0x100:2", "free:0", "free:1", "alloc:4"},
			wantContain: []string{
				"free 0x100 (2 pages): rejected:",
				"free 0x100 (1 pages)\n",
				"free 0x101 (1 pages)\n",
				"alloc 4: #2 frame 0x100 (4 pages)",
			},
		},
		{
			name:    "freeat with a different size keeps the allocation live",
			options: simulateOptions{Pages: 4},
			script:  []string{"alloc:2", "freeat:0:1", "free:0"},
			wantContain: []string{
				"free 0x0 (1 pages): rejected:",
				"free 0x0 (2 pages)\n",
				"Free pages: 4",
			},
		},
		{
			name:    "empty region",
			options: simulateOptions{Pages: 0},
			script:  []string{"alloc:1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runSimulate(&out, testLogger(), tt.options, tt.script, false)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			for _, expected := range tt.wantContain {
				require.Contains(t, out.String(), expected)
			}
		})
	}
}

func TestSimulateJSON(t *testing.T) {
	var out bytes.Buffer
	err := runSimulate(&out, testLogger(), simulateOptions{Pages: 4, Base: 0x20}, []string{"alloc:2"}, true)
	require.NoError(t, err)

	var result struct {
		Name            string
		BaseFrame       int
		RegisteredPages int
		TreeBuilt       bool
		Regions         []struct {
			Frame          int
			Pages          int
			Free           bool
			RequestedPages int
		}
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))

	require.Equal(t, "buddy_pmm_manager", result.Name)
	require.Equal(t, 0x20, result.BaseFrame)
	require.Equal(t, 4, result.RegisteredPages)
	require.True(t, result.TreeBuilt)
	require.Len(t, result.Regions, 2)
	require.Equal(t, 0x20, result.Regions[0].Frame)
	require.False(t, result.Regions[0].Free)
	require.Equal(t, 2, result.Regions[0].RequestedPages)
	require.Equal(t, 0x22, result.Regions[1].Frame)
	require.True(t, result.Regions[1].Free)
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "WARNING", "error"} {
		_, err := newLogger(level, io.Discard)
		require.NoError(t, err)
	}

	_, err := newLogger("loud", io.Discard)
	require.Error(t, err)
}

func TestSelfCheckCommand(t *testing.T) {
	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"selfcheck", "--log-level", "error"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	require.Equal(t, "self check passed\n", out.String())
}
