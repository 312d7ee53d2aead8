package target_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvkh/linux-debugger/pkg/elf"
	"github.com/mvkh/linux-debugger/pkg/proc"
	protest "github.com/mvkh/linux-debugger/pkg/proc/test"
	"github.com/mvkh/linux-debugger/pkg/target"
)

func skipUnlessLinux(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skip("requires linux/amd64 ptrace")
	}
}

func launchFixture(t *testing.T, name string) *target.Target {
	t.Helper()
	tgt, err := target.Launch(protest.BuildFixture(t, name), true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { tgt.Close() })
	return tgt
}

func TestFunctionBreakpointHitsMain(t *testing.T) {
	skipUnlessLinux(t)
	tgt := launchFixture(t, "hello")
	p := tgt.Process()

	bp, err := tgt.CreateFunctionBreakpoint("main", false, false)
	require.NoError(t, err)
	require.False(t, bp.Sites().Empty(), "main did not resolve to any site")
	require.NoError(t, bp.Enable())

	require.NoError(t, p.Resume())
	reason, err := p.WaitOnSignal()
	require.NoError(t, err)
	require.Equal(t, proc.Stopped, reason.State)
	require.Equal(t, proc.TrapSoftwareBreak, reason.TrapReason)

	pc := p.GetPC()
	require.True(t, bp.AtAddress(pc), "stopped at %#x, not at a site of the breakpoint", uint64(pc))

	fn, ok := tgt.FunctionAt(pc)
	require.True(t, ok)
	require.Equal(t, "main", fn)

	// With the breakpoint out of the way the program runs to completion.
	require.NoError(t, bp.Disable())
	require.NoError(t, p.Resume())
	reason, err = p.WaitOnSignal()
	require.NoError(t, err)
	require.Equal(t, proc.Exited, reason.State)
	require.Equal(t, uint8(0), reason.Info)
}

func TestStdoutReplacementCapturesOutput(t *testing.T) {
	skipUnlessLinux(t)
	fixture := protest.BuildFixture(t, "hello")

	outPath := filepath.Join(t.TempDir(), "stdout")
	outFile, err := os.Create(outPath)
	require.NoError(t, err)

	tgt, err := target.Launch(fixture, true, outFile)
	require.NoError(t, err)
	defer tgt.Close()

	p := tgt.Process()
	require.NoError(t, p.Resume())
	reason, err := p.WaitOnSignal()
	require.NoError(t, err)
	require.Equal(t, proc.Exited, reason.State)
	require.NoError(t, outFile.Close())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "Hello", string(data))
}

func TestWatchpointReportsOldAndNewValue(t *testing.T) {
	skipUnlessLinux(t)
	tgt := launchFixture(t, "global_assign")
	p := tgt.Process()

	syms := tgt.ElfFile().SymbolsByName("g")
	require.Len(t, syms, 1)
	addr, err := elf.NewFileAddr(tgt.ElfFile(), syms[0].Value).ToVirtAddr()
	require.NoError(t, err)

	wp, err := p.CreateWatchpoint(addr, proc.ModeWrite, 4)
	require.NoError(t, err)
	require.NoError(t, wp.Enable())

	require.NoError(t, p.Resume())
	reason, err := p.WaitOnSignal()
	require.NoError(t, err)
	require.Equal(t, proc.Stopped, reason.State)
	require.Equal(t, proc.TrapHardwareBreak, reason.TrapReason)

	require.Equal(t, uint64(0), wp.PreviousData())
	require.Equal(t, uint64(0x2a), wp.Data())

	require.NoError(t, wp.Disable())
	require.NoError(t, p.Resume())
	reason, err = p.WaitOnSignal()
	require.NoError(t, err)
	require.Equal(t, proc.Exited, reason.State)
}

func TestLineBreakpoint(t *testing.T) {
	skipUnlessLinux(t)
	tgt := launchFixture(t, "global_assign")
	p := tgt.Process()

	// The assignment in global_assign.c sits on line 4.
	bp, err := tgt.CreateLineBreakpoint("global_assign.c", 4, false, false)
	require.NoError(t, err)
	require.False(t, bp.Sites().Empty(), "line 4 did not resolve to any site")
	require.NoError(t, bp.Enable())

	require.NoError(t, p.Resume())
	reason, err := p.WaitOnSignal()
	require.NoError(t, err)
	require.Equal(t, proc.Stopped, reason.State)
	require.Equal(t, proc.TrapSoftwareBreak, reason.TrapReason)
	require.True(t, bp.AtAddress(p.GetPC()))

	entry, ok := tgt.LineAt(p.GetPC())
	require.True(t, ok)
	require.Equal(t, 4, entry.Line)
	require.Equal(t, "global_assign.c", filepath.Base(entry.FileName))
}

func TestVirtForLineMatchesBreakpoint(t *testing.T) {
	skipUnlessLinux(t)
	tgt := launchFixture(t, "global_assign")

	va, ok := tgt.VirtForLine("global_assign.c", 4)
	require.True(t, ok)

	bp, err := tgt.CreateAddressBreakpoint(va, false, false)
	require.NoError(t, err)
	require.True(t, bp.AtAddress(va))
}

func TestFunctionBreakpointSupersetOfSymbols(t *testing.T) {
	skipUnlessLinux(t)
	tgt := launchFixture(t, "hello")

	// Every FUNC symbol named main must be covered by the resolved sites.
	bp, err := tgt.CreateFunctionBreakpoint("main", false, false)
	require.NoError(t, err)
	for _, sym := range tgt.ElfFile().SymbolsByName("main") {
		va, err := elf.NewFileAddr(tgt.ElfFile(), sym.Value).ToVirtAddr()
		require.NoError(t, err)
		require.True(t, bp.AtAddress(va))
	}
}

func TestBreakpointDisableRestoresMemory(t *testing.T) {
	skipUnlessLinux(t)
	tgt := launchFixture(t, "hello")
	p := tgt.Process()

	bp, err := tgt.CreateFunctionBreakpoint("main", false, false)
	require.NoError(t, err)

	var site *proc.BreakpointSite
	bp.Sites().ForEach(func(s *proc.BreakpointSite) { site = s })
	require.NotNil(t, site)

	before, err := p.ReadMemory(site.Address(), 1)
	require.NoError(t, err)

	require.NoError(t, bp.Enable())
	require.NoError(t, bp.Disable())

	after, err := p.ReadMemory(site.Address(), 1)
	require.NoError(t, err)
	require.Equal(t, before, after)
}
