package proc_test

import (
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sys "golang.org/x/sys/unix"

	"github.com/mvkh/linux-debugger/pkg/proc"
	protest "github.com/mvkh/linux-debugger/pkg/proc/test"
)

func skipUnlessLinux(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skip("requires linux/amd64 ptrace")
	}
}

func launchStopped(t *testing.T, path string) *proc.Process {
	t.Helper()
	p, err := proc.Launch(path, true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestLaunchStopsAtExec(t *testing.T) {
	skipUnlessLinux(t)
	p := launchStopped(t, protest.MustLookPath(t, "true"))

	require.Equal(t, proc.Stopped, p.State())
	require.True(t, proc.ProcessExists(p.Pid()))
}

func TestResumeToExit(t *testing.T) {
	skipUnlessLinux(t)
	p := launchStopped(t, protest.MustLookPath(t, "true"))

	require.NoError(t, p.Resume())
	require.Equal(t, proc.Running, p.State())

	reason, err := p.WaitOnSignal()
	require.NoError(t, err)
	require.Equal(t, proc.Exited, reason.State)
	require.Equal(t, uint8(0), reason.Info)
}

func TestLaunchNonexistentPath(t *testing.T) {
	skipUnlessLinux(t)
	_, err := proc.Launch("/this/path/does/not/exist", true, nil)
	require.Error(t, err)
	var lf proc.LaunchFailedError
	require.ErrorAs(t, err, &lf)
}

func TestLaunchWithoutDebug(t *testing.T) {
	skipUnlessLinux(t)
	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer devnull.Close()

	p, err := proc.Launch(protest.MustLookPath(t, "yes"), false, devnull)
	require.NoError(t, err)
	require.Equal(t, proc.Running, p.State())
	require.True(t, proc.ProcessExists(p.Pid()))

	pid := p.Pid()
	require.NoError(t, p.Close())
	require.False(t, proc.ProcessExists(pid))
}

func TestAttach(t *testing.T) {
	skipUnlessLinux(t)
	inferior := exec.Command(protest.MustLookPath(t, "sleep"), "10")
	require.NoError(t, inferior.Start())
	defer func() {
		inferior.Process.Kill()
		inferior.Wait()
	}()

	p, err := proc.Attach(inferior.Process.Pid)
	require.NoError(t, err)
	require.Equal(t, proc.Stopped, p.State())
	require.True(t, p.IsAttached())

	// Detaching must leave the process alive.
	require.NoError(t, p.Close())
	time.Sleep(50 * time.Millisecond)
	require.True(t, proc.ProcessExists(inferior.Process.Pid))
}

func TestAttachInvalidPid(t *testing.T) {
	skipUnlessLinux(t)
	_, err := proc.Attach(0)
	var af proc.AttachFailedError
	require.ErrorAs(t, err, &af)
}

func TestSoftwareBreakpointSitePatchesMemory(t *testing.T) {
	skipUnlessLinux(t)
	p := launchStopped(t, protest.MustLookPath(t, "true"))

	entry, err := p.EntryPoint()
	require.NoError(t, err)

	original, err := p.ReadMemory(entry, 1)
	require.NoError(t, err)

	site, err := p.CreateBreakpointSite(entry, false, false)
	require.NoError(t, err)
	require.False(t, site.IsEnabled())

	require.NoError(t, site.Enable())
	require.NoError(t, site.Enable()) // enabling twice is a no-op

	patched, err := p.ReadMemory(entry, 1)
	require.NoError(t, err)
	require.Equal(t, byte(0xCC), patched[0])

	unpatched, err := p.ReadMemoryWithoutTraps(entry, 1)
	require.NoError(t, err)
	require.Equal(t, original[0], unpatched[0])
	require.Equal(t, original[0], site.SavedData())

	require.NoError(t, site.Disable())
	require.NoError(t, site.Disable()) // disabling twice is a no-op

	restored, err := p.ReadMemory(entry, 1)
	require.NoError(t, err)
	require.Equal(t, original[0], restored[0])
}

func TestDuplicateBreakpointSiteAddress(t *testing.T) {
	skipUnlessLinux(t)
	p := launchStopped(t, protest.MustLookPath(t, "true"))

	entry, err := p.EntryPoint()
	require.NoError(t, err)

	_, err = p.CreateBreakpointSite(entry, false, false)
	require.NoError(t, err)
	_, err = p.CreateBreakpointSite(entry, false, false)
	var dup proc.StoppointExistsError
	require.ErrorAs(t, err, &dup)
}

func TestWriteMemoryRoundTrip(t *testing.T) {
	skipUnlessLinux(t)
	p := launchStopped(t, protest.MustLookPath(t, "true"))

	entry, err := p.EntryPoint()
	require.NoError(t, err)

	// An odd length forces the word-granular tail path.
	payload := []byte("\xde\xad\xbe\xef\x01\x02\x03\x04\x05\x06\x07")
	tail, err := p.ReadMemory(entry.Add(int64(len(payload))), 5)
	require.NoError(t, err)

	require.NoError(t, p.WriteMemory(entry, payload))

	got, err := p.ReadMemory(entry, len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, got)

	// The read-modify-write tail must preserve trailing bytes.
	tailAfter, err := p.ReadMemory(entry.Add(int64(len(payload))), 5)
	require.NoError(t, err)
	require.Equal(t, tail, tailAfter)
}

func TestReadMemoryAcrossPages(t *testing.T) {
	skipUnlessLinux(t)
	p := launchStopped(t, protest.MustLookPath(t, "true"))

	entry, err := p.EntryPoint()
	require.NoError(t, err)

	data, err := p.ReadMemory(entry, 4096)
	require.NoError(t, err)
	require.Len(t, data, 4096)
}

func TestHardwareSlotAccounting(t *testing.T) {
	skipUnlessLinux(t)
	p := launchStopped(t, protest.MustLookPath(t, "true"))

	entry, err := p.EntryPoint()
	require.NoError(t, err)

	var sites []*proc.BreakpointSite
	for i := 0; i < 4; i++ {
		site, err := p.CreateBreakpointSite(entry.Add(int64(i)), true, false)
		require.NoError(t, err)
		require.NoError(t, site.Enable())
		sites = append(sites, site)
	}

	dr7, err := p.GetRegisters().ReadUint64(proc.Dr7)
	require.NoError(t, err)
	for slot := 0; slot < 4; slot++ {
		require.NotZero(t, dr7&(1<<(slot*2)), "local-enable bit for slot %d", slot)
	}

	fifth, err := p.CreateBreakpointSite(entry.Add(8), true, false)
	require.NoError(t, err)
	err = fifth.Enable()
	var full proc.NoHardwareSlotError
	require.ErrorAs(t, err, &full)

	require.NoError(t, sites[1].Disable())
	dr7, err = p.GetRegisters().ReadUint64(proc.Dr7)
	require.NoError(t, err)
	require.Zero(t, dr7&(1<<2), "slot 1 should be free again")

	// The freed slot is reusable.
	require.NoError(t, fifth.Enable())
}

func TestStepInstruction(t *testing.T) {
	skipUnlessLinux(t)
	p := launchStopped(t, protest.MustLookPath(t, "true"))

	before := p.GetPC()
	reason, err := p.StepInstruction()
	require.NoError(t, err)
	require.Equal(t, proc.Stopped, reason.State)
	require.Equal(t, proc.TrapSingleStep, reason.TrapReason)
	require.NotEqual(t, before, p.GetPC())
}

func TestSyscallCatchPolicy(t *testing.T) {
	skipUnlessLinux(t)
	fixture := protest.BuildFixture(t, "just_write")

	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer devnull.Close()

	p, err := proc.Launch(fixture, true, devnull)
	require.NoError(t, err)
	defer p.Close()

	p.SetSyscallCatchPolicy(proc.CatchSyscalls(uint64(sys.SYS_WRITE)))

	require.NoError(t, p.Resume())
	reason, err := p.WaitOnSignal()
	require.NoError(t, err)
	require.Equal(t, proc.Stopped, reason.State)
	require.Equal(t, proc.TrapSyscall, reason.TrapReason)
	require.NotNil(t, reason.Syscall)
	require.True(t, reason.Syscall.Entry)
	require.Equal(t, uint64(sys.SYS_WRITE), reason.Syscall.ID)
	require.Equal(t, uint64(3), reason.Syscall.Args[2], "write length argument")

	require.NoError(t, p.Resume())
	reason, err = p.WaitOnSignal()
	require.NoError(t, err)
	require.Equal(t, proc.TrapSyscall, reason.TrapReason)
	require.False(t, reason.Syscall.Entry)
	require.Equal(t, uint64(sys.SYS_WRITE), reason.Syscall.ID)
	require.Equal(t, uint64(3), reason.Syscall.Ret)

	require.NoError(t, p.Resume())
	reason, err = p.WaitOnSignal()
	require.NoError(t, err)
	require.Equal(t, proc.Exited, reason.State)
}

func TestStopReasonStrings(t *testing.T) {
	r := proc.StopReason{State: proc.Exited, Info: 3}
	require.Equal(t, "exited with status 3", r.String())
	r = proc.StopReason{State: proc.Terminated, Info: uint8(syscall.SIGKILL)}
	require.Equal(t, "terminated with signal SIGKILL", r.String())
	r = proc.StopReason{State: proc.Stopped, Info: uint8(syscall.SIGTRAP)}
	require.Equal(t, "stopped with signal SIGTRAP", r.String())
}
