// Package proc controls a traced inferior process: launching, attaching,
// stopping and resuming it, reading and writing its registers and memory,
// and installing breakpoint sites and watchpoints. A Process owns exactly
// one tracee; all ptrace requests are issued from a single locked OS
// thread.
package proc

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"os"
	"os/exec"
	"syscall"

	linuxproc "github.com/c9s/goprocinfo/linux"
	isatty "github.com/mattn/go-isatty"
	sys "golang.org/x/sys/unix"

	"github.com/mvkh/linux-debugger/pkg/elf"
	"github.com/mvkh/linux-debugger/pkg/logflags"
)

const (
	personalityGetPersonality = 0xffffffff // argument to pass to personality syscall to get the current personality
	_ADDR_NO_RANDOMIZE        = 0x0040000  // ADDR_NO_RANDOMIZE linux constant
)

// ProcessState is the tracee's lifecycle state as seen by the controller.
type ProcessState int

const (
	Stopped ProcessState = iota
	Running
	Exited
	Terminated
)

func (s ProcessState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// TrapType refines a SIGTRAP stop.
type TrapType int

const (
	TrapUnknown TrapType = iota
	TrapSingleStep
	TrapSoftwareBreak
	TrapHardwareBreak
	TrapSyscall
)

// SyscallInfo describes a syscall-boundary stop: the arguments on entry,
// the return value on exit.
type SyscallInfo struct {
	Entry bool
	ID    uint64
	Args  [6]uint64
	Ret   uint64
}

// StopReason classifies the event waitpid reported.
type StopReason struct {
	State      ProcessState
	Info       uint8
	TrapReason TrapType
	Syscall    *SyscallInfo
}

func stopReasonFromStatus(status sys.WaitStatus) StopReason {
	var r StopReason
	switch {
	case status.Exited():
		r.State = Exited
		r.Info = uint8(status.ExitStatus())
	case status.Signaled():
		r.State = Terminated
		r.Info = uint8(status.Signal())
	case status.Stopped():
		r.State = Stopped
		r.Info = uint8(status.StopSignal())
	}
	return r
}

func (r StopReason) String() string {
	switch r.State {
	case Exited:
		return fmt.Sprintf("exited with status %d", r.Info)
	case Terminated:
		return fmt.Sprintf("terminated with signal %s", sys.SignalName(syscall.Signal(r.Info)))
	case Stopped:
		return fmt.Sprintf("stopped with signal %s", sys.SignalName(syscall.Signal(r.Info)))
	}
	return "running"
}

// Process owns one tracee and its stoppoint state.
type Process struct {
	pid   int
	state ProcessState

	isAttached           bool
	terminateOnEnd       bool
	expectingSyscallExit bool
	syscallPolicy        SyscallCatchPolicy

	regs Registers

	breakpointSites StoppointCollection[*BreakpointSite]
	watchpoints     StoppointCollection[*Watchpoint]

	nextSiteID       int32
	nextWatchpointID int32

	ptraceThread *ptraceThread
}

func newProcess(pid int) *Process {
	p := &Process{
		pid:              pid,
		state:            Stopped,
		syscallPolicy:    CatchNothing(),
		nextSiteID:       1,
		nextWatchpointID: 1,
		ptraceThread:     newPtraceThread(),
	}
	p.regs.proc = p
	return p
}

// Pid returns the tracee's process id.
func (p *Process) Pid() int { return p.pid }

// State returns the tracee's lifecycle state.
func (p *Process) State() ProcessState { return p.state }

// IsAttached reports whether the controller is tracing the process.
func (p *Process) IsAttached() bool { return p.isAttached }

// SetSyscallCatchPolicy replaces the policy consulted on the next resume.
func (p *Process) SetSyscallCatchPolicy(policy SyscallCatchPolicy) {
	p.syscallPolicy = policy
}

// SyscallCatchPolicy returns the active policy.
func (p *Process) SyscallCatchPolicy() SyscallCatchPolicy { return p.syscallPolicy }

// GetRegisters returns the mirrored register file.
func (p *Process) GetRegisters() *Registers { return &p.regs }

// BreakpointSites returns the process-wide site collection.
func (p *Process) BreakpointSites() *StoppointCollection[*BreakpointSite] {
	return &p.breakpointSites
}

// Watchpoints returns the process-wide watchpoint collection.
func (p *Process) Watchpoints() *StoppointCollection[*Watchpoint] {
	return &p.watchpoints
}

// Launch starts path under the debugger. With debug set, the child
// requests tracing before exec and the returned process is stopped at the
// exec; otherwise it runs freely. A non-nil stdoutReplacement becomes the
// child's stdout.
func Launch(path string, debug bool, stdoutReplacement *os.File) (*Process, error) {
	p := newProcess(0)
	p.terminateOnEnd = true
	p.isAttached = debug

	stdout := os.Stdout
	if stdoutReplacement != nil {
		stdout = stdoutReplacement
	}
	var stdin *os.File
	if isatty.IsTerminal(os.Stdin.Fd()) {
		stdin = os.Stdin
	}

	var cmd *exec.Cmd
	var err error
	p.execPtraceFunc(func() {
		if debug {
			// Launch at link-time addresses so stoppoints survive re-runs.
			oldPersonality, _, perr := syscall.Syscall(sys.SYS_PERSONALITY, personalityGetPersonality, 0, 0)
			if perr == syscall.Errno(0) {
				syscall.Syscall(sys.SYS_PERSONALITY, oldPersonality|_ADDR_NO_RANDOMIZE, 0, 0)
				defer syscall.Syscall(sys.SYS_PERSONALITY, oldPersonality, 0, 0)
			}
		}
		cmd = exec.Command(path)
		cmd.Stdin = stdin
		cmd.Stdout = stdout
		cmd.Stderr = os.Stderr
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Ptrace:  debug,
			Setpgid: true,
		}
		err = cmd.Start()
	})
	if err != nil {
		// The child reports pre-exec failures over the fork/exec pipe; no
		// pid survives.
		p.ptraceThread.release()
		return nil, LaunchFailedError{Path: path, Err: err}
	}
	p.pid = cmd.Process.Pid

	if !debug {
		p.state = Running
		return p, nil
	}

	if _, err := p.waitOnce(); err != nil {
		_ = p.Close()
		return nil, LaunchFailedError{Path: path, Err: err}
	}
	if err := p.setPtraceOptions(); err != nil {
		_ = p.Close()
		return nil, LaunchFailedError{Path: path, Err: err}
	}
	return p, nil
}

// Attach takes control of a running process.
func Attach(pid int) (*Process, error) {
	if pid <= 0 {
		return nil, AttachFailedError{Pid: pid, Err: fmt.Errorf("invalid pid")}
	}
	p := newProcess(pid)
	p.isAttached = true
	p.terminateOnEnd = false

	var err error
	p.execPtraceFunc(func() { err = sys.PtraceAttach(pid) })
	if err != nil {
		p.ptraceThread.release()
		return nil, AttachFailedError{Pid: pid, Err: err}
	}
	if _, err := p.waitOnce(); err != nil {
		_ = p.Close()
		return nil, AttachFailedError{Pid: pid, Err: err}
	}
	if err := p.setPtraceOptions(); err != nil {
		_ = p.Close()
		return nil, AttachFailedError{Pid: pid, Err: err}
	}
	return p, nil
}

func (p *Process) setPtraceOptions() error {
	var err error
	p.execPtraceFunc(func() {
		err = syscall.PtraceSetOptions(p.pid, syscall.PTRACE_O_TRACESYSGOOD)
	})
	if err != nil {
		return fmt.Errorf("could not set TRACESYSGOOD option: %w", err)
	}
	return nil
}

// Close releases the tracee: a traced process is stopped if running,
// detached and continued; a process we launched is then killed and reaped.
func (p *Process) Close() error {
	if p.pid == 0 {
		return nil
	}
	log := logflags.DebuggerLogger()
	if s, err := processStatus(p.pid); err == nil && s == "Z" {
		// Already dead, only reaping is left.
		var status sys.WaitStatus
		sys.Wait4(p.pid, &status, 0, nil)
		p.ptraceThread.release()
		p.pid = 0
		return nil
	}
	if p.isAttached && p.state != Exited && p.state != Terminated {
		if p.state == Running {
			sys.Kill(p.pid, sys.SIGSTOP)
			var status sys.WaitStatus
			sys.Wait4(p.pid, &status, 0, nil)
		}
		p.execPtraceFunc(func() {
			if err := sys.PtraceDetach(p.pid); err != nil {
				log.Debugf("detach from %d: %v", p.pid, err)
			}
		})
		sys.Kill(p.pid, sys.SIGCONT)
	}
	if p.terminateOnEnd && p.state != Exited && p.state != Terminated {
		sys.Kill(p.pid, sys.SIGKILL)
		var status sys.WaitStatus
		sys.Wait4(p.pid, &status, 0, nil)
	}
	p.ptraceThread.release()
	p.pid = 0
	return nil
}

// Resume continues the tracee. A software breakpoint under the current PC
// is stepped over first: the site is disabled, the instruction single
// stepped, and the site re-enabled. The final request is PTRACE_CONT, or
// PTRACE_SYSCALL when the syscall catch policy wants syscall stops.
func (p *Process) Resume() error {
	pc := p.GetPC()
	if p.breakpointSites.EnabledStoppointAtAddress(pc) {
		site, err := p.breakpointSites.GetByAddress(pc)
		if err != nil {
			return err
		}
		if err := site.Disable(); err != nil {
			return err
		}
		if err := p.singleStepAndWait(); err != nil {
			return err
		}
		if err := site.Enable(); err != nil {
			return err
		}
	}

	var err error
	p.execPtraceFunc(func() {
		if p.syscallPolicy.Mode() == CatchNone {
			err = sys.PtraceCont(p.pid, 0)
		} else {
			err = sys.PtraceSyscall(p.pid, 0)
		}
	})
	if err != nil {
		return fmt.Errorf("could not resume: %w", err)
	}
	p.state = Running
	return nil
}

func (p *Process) singleStepAndWait() error {
	var err error
	p.execPtraceFunc(func() { err = sys.PtraceSingleStep(p.pid) })
	if err != nil {
		return fmt.Errorf("could not single step: %w", err)
	}
	var status sys.WaitStatus
	if _, err := sys.Wait4(p.pid, &status, 0, nil); err != nil {
		return fmt.Errorf("waitpid failed: %w", err)
	}
	return nil
}

// StepInstruction executes exactly one instruction and reports the
// resulting stop. A software breakpoint under the PC is lifted for the
// duration of the step.
func (p *Process) StepInstruction() (StopReason, error) {
	var toReenable *BreakpointSite
	pc := p.GetPC()
	if p.breakpointSites.EnabledStoppointAtAddress(pc) {
		site, err := p.breakpointSites.GetByAddress(pc)
		if err != nil {
			return StopReason{}, err
		}
		if err := site.Disable(); err != nil {
			return StopReason{}, err
		}
		toReenable = site
	}

	var err error
	p.execPtraceFunc(func() { err = sys.PtraceSingleStep(p.pid) })
	if err != nil {
		return StopReason{}, fmt.Errorf("could not single step: %w", err)
	}
	p.state = Running
	reason, err := p.WaitOnSignal()
	if err != nil {
		return reason, err
	}
	if toReenable != nil {
		if err := toReenable.Enable(); err != nil {
			return reason, err
		}
	}
	return reason, nil
}

// WaitOnSignal blocks until the tracee changes state and classifies the
// stop. Syscall stops filtered out by a CatchSome policy are resumed and
// re-waited iteratively without surfacing.
func (p *Process) WaitOnSignal() (StopReason, error) {
	for {
		reason, err := p.waitOnce()
		if err != nil {
			return reason, err
		}
		if reason.TrapReason == TrapSyscall &&
			p.syscallPolicy.Mode() == CatchSome &&
			!p.syscallPolicy.Catches(reason.Syscall.ID) {
			if err := p.Resume(); err != nil {
				return reason, err
			}
			continue
		}
		return reason, nil
	}
}

// waitOnce performs one waitpid and classification round.
func (p *Process) waitOnce() (StopReason, error) {
	var status sys.WaitStatus
	if _, err := sys.Wait4(p.pid, &status, 0, nil); err != nil {
		return StopReason{}, fmt.Errorf("waitpid failed: %w", err)
	}
	reason := stopReasonFromStatus(status)
	p.state = reason.State

	if p.isAttached && p.state == Stopped {
		if err := p.readAllRegisters(); err != nil {
			return reason, err
		}
		if err := p.augmentStopReason(&reason); err != nil {
			return reason, err
		}

		if reason.Info == uint8(syscall.SIGTRAP) {
			switch reason.TrapReason {
			case TrapSoftwareBreak:
				// The trap fires after int3 executes; rewind onto the
				// patched instruction.
				instrBegin := p.GetPC().Add(-1)
				if p.breakpointSites.EnabledStoppointAtAddress(instrBegin) {
					if err := p.SetPC(instrBegin); err != nil {
						return reason, err
					}
				}
			case TrapHardwareBreak:
				id, isWatch, err := p.currentHardwareStoppoint()
				if err != nil {
					return reason, err
				}
				if isWatch {
					wp, err := p.watchpoints.GetByID(id)
					if err != nil {
						return reason, err
					}
					if err := wp.UpdateData(); err != nil {
						return reason, err
					}
				}
			}
		}
	}
	return reason, nil
}

// augmentStopReason inspects siginfo to refine a SIGTRAP stop and fills
// the syscall information on syscall-boundary stops.
func (p *Process) augmentStopReason(reason *StopReason) error {
	var info *ptraceSiginfo
	var err error
	p.execPtraceFunc(func() { info, err = ptraceGetSigInfo(p.pid) })
	if err != nil {
		return fmt.Errorf("failed to get signal info: %w", err)
	}

	if reason.Info == syscallTrapSignal {
		sysInfo := &SyscallInfo{}
		regs := &p.regs

		if p.expectingSyscallExit {
			sysInfo.Entry = false
			sysInfo.ID, _ = regs.ReadUint64(OrigRax)
			sysInfo.Ret, _ = regs.ReadUint64(Rax)
			p.expectingSyscallExit = false
		} else {
			sysInfo.Entry = true
			sysInfo.ID, _ = regs.ReadUint64(OrigRax)
			argRegs := [6]RegisterID{Rdi, Rsi, Rdx, R10, R8, R9}
			for i, id := range argRegs {
				sysInfo.Args[i], _ = regs.ReadUint64(id)
			}
			p.expectingSyscallExit = true
		}

		reason.Info = uint8(syscall.SIGTRAP)
		reason.TrapReason = TrapSyscall
		reason.Syscall = sysInfo
		return nil
	}

	p.expectingSyscallExit = false

	reason.TrapReason = TrapUnknown
	if reason.Info == uint8(syscall.SIGTRAP) {
		switch info.Code {
		case trapTrace:
			reason.TrapReason = TrapSingleStep
		case siKernel:
			reason.TrapReason = TrapSoftwareBreak
		case trapHWBkpt:
			reason.TrapReason = TrapHardwareBreak
		}
	}
	return nil
}

func (p *Process) readAllRegisters() error {
	var err error
	p.execPtraceFunc(func() {
		if err = sys.PtraceGetRegs(p.pid, &p.regs.gpr); err != nil {
			err = fmt.Errorf("could not read GPR registers: %w", err)
			return
		}
		if err = ptraceGetFPRegs(p.pid, &p.regs.fpr); err != nil {
			err = fmt.Errorf("could not read FPR registers: %w", err)
			return
		}
		for i := 0; i < 8; i++ {
			var data uint64
			data, err = ptracePeekUser(p.pid, uDebugRegOffset+uintptr(i)*8)
			if err != nil {
				err = fmt.Errorf("could not read debug register %d: %w", i, err)
				return
			}
			p.regs.debug[i] = data
		}
	})
	return err
}

func (p *Process) writeGPRs(gprs *sys.PtraceRegs) error {
	var err error
	p.execPtraceFunc(func() { err = sys.PtraceSetRegs(p.pid, gprs) })
	if err != nil {
		return fmt.Errorf("could not write general purpose registers: %w", err)
	}
	return nil
}

func (p *Process) writeFPRs(fprs *FPRegs) error {
	var err error
	p.execPtraceFunc(func() { err = ptraceSetFPRegs(p.pid, fprs) })
	if err != nil {
		return fmt.Errorf("could not write floating point registers: %w", err)
	}
	return nil
}

func (p *Process) writeUserArea(offset uintptr, data uint64) error {
	var err error
	p.execPtraceFunc(func() { err = ptracePokeUser(p.pid, offset, data) })
	if err != nil {
		return fmt.Errorf("could not write to user area: %w", err)
	}
	return nil
}

// GetPC returns the mirrored program counter.
func (p *Process) GetPC() elf.VirtAddr {
	return p.regs.PC()
}

// SetPC moves the program counter.
func (p *Process) SetPC(pc elf.VirtAddr) error {
	return p.regs.WriteUint64(Rip, uint64(pc))
}

// ReadMemory reads n bytes of tracee memory starting at addr using a
// vectored cross-process read, split on page boundaries.
func (p *Process) ReadMemory(addr elf.VirtAddr, n int) ([]byte, error) {
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}

	localIov := []sys.Iovec{{Base: &out[0], Len: uint64(n)}}
	var remoteIov []sys.RemoteIovec
	remaining := uint64(n)
	pos := uint64(addr)
	for remaining > 0 {
		upToNextPage := 0x1000 - (pos & 0xfff)
		chunk := remaining
		if upToNextPage < chunk {
			chunk = upToNextPage
		}
		remoteIov = append(remoteIov, sys.RemoteIovec{Base: uintptr(pos), Len: int(chunk)})
		pos += chunk
		remaining -= chunk
	}

	if _, err := sys.ProcessVMReadv(p.pid, localIov, remoteIov, 0); err != nil {
		return nil, fmt.Errorf("could not read process memory: %w", err)
	}
	return out, nil
}

// ReadMemoryWithoutTraps reads memory and overlays the saved original byte
// of every enabled software breakpoint site in the region.
func (p *Process) ReadMemoryWithoutTraps(addr elf.VirtAddr, n int) ([]byte, error) {
	memory, err := p.ReadMemory(addr, n)
	if err != nil {
		return nil, err
	}
	for _, site := range p.breakpointSites.GetInRegion(addr, addr.Add(int64(n))) {
		if !site.IsEnabled() || site.IsHardware() {
			continue
		}
		memory[int(site.Address()-addr)] = site.SavedData()
	}
	return memory, nil
}

// WriteMemory writes data at addr in eight-byte words, reading back the
// tail to preserve the bytes past the end of data.
func (p *Process) WriteMemory(addr elf.VirtAddr, data []byte) error {
	written := 0
	for written < len(data) {
		remaining := len(data) - written
		var word uint64
		if remaining >= 8 {
			word = binary.LittleEndian.Uint64(data[written:])
		} else {
			current, err := p.ReadMemory(addr.Add(int64(written)), 8)
			if err != nil {
				return err
			}
			var buf [8]byte
			copy(buf[:], data[written:])
			copy(buf[remaining:], current[remaining:])
			word = binary.LittleEndian.Uint64(buf[:])
		}
		var err error
		p.execPtraceFunc(func() {
			err = ptracePokeData(p.pid, uintptr(addr.Add(int64(written))), word)
		})
		if err != nil {
			return fmt.Errorf("failed to write memory: %w", err)
		}
		written += 8
	}
	return nil
}

// CreateBreakpointSite installs bookkeeping for a new physical stoppoint.
// The site starts disabled.
func (p *Process) CreateBreakpointSite(addr elf.VirtAddr, hardware, internal bool) (*BreakpointSite, error) {
	if p.breakpointSites.ContainsAddress(addr) {
		return nil, StoppointExistsError{Addr: addr}
	}
	site := newBreakpointSite(p, p.nextSiteID, addr, hardware, internal)
	p.nextSiteID++
	return p.breakpointSites.Push(site), nil
}

// CreateWatchpoint registers a watchpoint over [addr, addr+size). The
// watchpoint starts disabled.
func (p *Process) CreateWatchpoint(addr elf.VirtAddr, mode StoppointMode, size int) (*Watchpoint, error) {
	if p.watchpoints.ContainsAddress(addr) {
		return nil, StoppointExistsError{Addr: addr}
	}
	wp, err := newWatchpoint(p, p.nextWatchpointID, addr, mode, size)
	if err != nil {
		return nil, err
	}
	p.nextWatchpointID++
	return p.watchpoints.Push(wp), nil
}

// SetWatchpoint claims a debug-register slot for the given region without
// site bookkeeping and returns the slot index.
func (p *Process) SetWatchpoint(addr elf.VirtAddr, mode StoppointMode, size int) (int, error) {
	return p.setHardwareStoppoint(addr, mode, size)
}

func encodeHardwareStoppointMode(mode StoppointMode) (uint64, error) {
	switch mode {
	case ModeWrite:
		return 0b01, nil
	case ModeReadWrite:
		return 0b11, nil
	case ModeExecute:
		return 0b00, nil
	}
	return 0, InvalidStoppointParamError{Reason: "invalid stoppoint mode"}
}

func encodeHardwareStoppointSize(size int) (uint64, error) {
	switch size {
	case 1:
		return 0b00, nil
	case 2:
		return 0b01, nil
	case 4:
		return 0b11, nil
	case 8:
		return 0b10, nil
	}
	return 0, InvalidStoppointParamError{Reason: "invalid stoppoint size"}
}

func findFreeStoppointRegister(control uint64) (int, error) {
	for i := 0; i < 4; i++ {
		if control&(0b11<<(i*2)) == 0 {
			return i, nil
		}
	}
	return 0, NoHardwareSlotError{}
}

// setHardwareStoppoint programs a free DR0-DR3 slot with the address and
// the matching mode and length fields of DR7, returning the slot index.
func (p *Process) setHardwareStoppoint(addr elf.VirtAddr, mode StoppointMode, size int) (int, error) {
	control, err := p.regs.ReadUint64(Dr7)
	if err != nil {
		return 0, err
	}
	slot, err := findFreeStoppointRegister(control)
	if err != nil {
		return 0, err
	}
	modeFlag, err := encodeHardwareStoppointMode(mode)
	if err != nil {
		return 0, err
	}
	sizeFlag, err := encodeHardwareStoppointSize(size)
	if err != nil {
		return 0, err
	}

	if err := p.regs.WriteUint64(Dr0+RegisterID(slot), uint64(addr)); err != nil {
		return 0, err
	}

	enableBit := uint64(1) << (slot * 2)
	modeBits := modeFlag << (slot*4 + 16)
	sizeBits := sizeFlag << (slot*4 + 18)
	clearMask := uint64(0b11)<<(slot*2) | uint64(0b1111)<<(slot*4+16)

	masked := control &^ clearMask
	masked |= enableBit | modeBits | sizeBits
	if err := p.regs.WriteUint64(Dr7, masked); err != nil {
		return 0, err
	}
	return slot, nil
}

// clearHardwareStoppoint releases a DR0-DR3 slot.
func (p *Process) clearHardwareStoppoint(slot int) error {
	if err := p.regs.WriteUint64(Dr0+RegisterID(slot), 0); err != nil {
		return err
	}
	control, err := p.regs.ReadUint64(Dr7)
	if err != nil {
		return err
	}
	clearMask := uint64(0b11)<<(slot*2) | uint64(0b1111)<<(slot*4+16)
	return p.regs.WriteUint64(Dr7, control&^clearMask)
}

// currentHardwareStoppoint identifies which slot fired from the low bits
// of DR6 and resolves it to a breakpoint site or watchpoint id.
func (p *Process) currentHardwareStoppoint() (int32, bool, error) {
	status, err := p.regs.ReadUint64(Dr6)
	if err != nil {
		return 0, false, err
	}
	slot := bits.TrailingZeros64(status & 0xf)
	if slot >= 4 {
		return 0, false, fmt.Errorf("no hardware stoppoint recorded in DR6")
	}
	addrVal, err := p.regs.ReadUint64(Dr0 + RegisterID(slot))
	if err != nil {
		return 0, false, err
	}
	addr := elf.VirtAddr(addrVal)
	if p.breakpointSites.ContainsAddress(addr) {
		site, err := p.breakpointSites.GetByAddress(addr)
		if err != nil {
			return 0, false, err
		}
		return site.ID(), false, nil
	}
	wp, err := p.watchpoints.GetByAddress(addr)
	if err != nil {
		return 0, false, err
	}
	return wp.ID(), true, nil
}

// RequestManualStop asks a running tracee to stop. The caller follows up
// with WaitOnSignal to observe the SIGSTOP.
func (p *Process) RequestManualStop() error {
	if err := sys.Kill(p.pid, sys.SIGSTOP); err != nil {
		return fmt.Errorf("could not stop process %d: %w", p.pid, err)
	}
	return nil
}

// GetAuxv reads the tracee's ELF auxiliary vector.
func (p *Process) GetAuxv() (map[uint64]uint64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/auxv", p.pid))
	if err != nil {
		return nil, fmt.Errorf("could not read auxiliary vector: %w", err)
	}
	auxv := make(map[uint64]uint64)
	for i := 0; i+16 <= len(data); i += 16 {
		id := binary.LittleEndian.Uint64(data[i:])
		if id == 0 { // AT_NULL
			break
		}
		auxv[id] = binary.LittleEndian.Uint64(data[i+8:])
	}
	return auxv, nil
}

// EntryPoint returns the runtime entry address from the auxiliary vector.
func (p *Process) EntryPoint() (elf.VirtAddr, error) {
	auxv, err := p.GetAuxv()
	if err != nil {
		return 0, err
	}
	entry, ok := auxv[atEntry]
	if !ok {
		return 0, fmt.Errorf("auxiliary vector of process %d has no entry point", p.pid)
	}
	return elf.VirtAddr(entry), nil
}

// AT_ENTRY tag in the auxiliary vector.
const atEntry = 9

// ProcessExists reports whether a process with the given pid is alive.
func ProcessExists(pid int) bool {
	return sys.Kill(pid, 0) == nil
}

// processStatus returns the single-letter scheduler state from
// /proc/<pid>/stat ("R", "S", "Z", ...).
func processStatus(pid int) (string, error) {
	stat, err := linuxproc.ReadProcessStat(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return "", err
	}
	return stat.State, nil
}
