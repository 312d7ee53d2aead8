package proc

import (
	"runtime"
	"syscall"
	"unsafe"

	sys "golang.org/x/sys/unix"
)

// siginfo si_code values used to classify SIGTRAP stops.
const (
	trapTrace  = 0x2  // TRAP_TRACE: single step
	trapHWBkpt = 0x4  // TRAP_HWBKPT: hardware breakpoint or watchpoint
	siKernel   = 0x80 // SI_KERNEL: int3 patched by the debugger
)

// syscallTrapSignal is what waitpid reports for a syscall stop once
// PTRACE_O_TRACESYSGOOD is set.
const syscallTrapSignal = uint8(syscall.SIGTRAP) | 0x80

// ptraceSiginfo mirrors the leading fields of siginfo_t on x86-64.
type ptraceSiginfo struct {
	Signo uint32
	Errno uint32
	Code  uint32
	_     uint32
	Addr  uintptr
	Pad   [128]byte
}

func addrToPointer(addr uint64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(addr))
}

func ptracePeekUser(pid int, off uintptr) (uint64, error) {
	var data uint64
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, sys.PTRACE_PEEKUSR,
		uintptr(pid), off, uintptr(unsafe.Pointer(&data)), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return data, nil
}

func ptracePokeUser(pid int, off uintptr, data uint64) error {
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, sys.PTRACE_POKEUSR,
		uintptr(pid), off, uintptr(data), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func ptracePokeData(pid int, addr uintptr, word uint64) error {
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, sys.PTRACE_POKEDATA,
		uintptr(pid), addr, uintptr(word), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func ptraceGetFPRegs(pid int, fpr *FPRegs) error {
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, sys.PTRACE_GETFPREGS,
		uintptr(pid), 0, uintptr(unsafe.Pointer(fpr)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func ptraceSetFPRegs(pid int, fpr *FPRegs) error {
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, sys.PTRACE_SETFPREGS,
		uintptr(pid), 0, uintptr(unsafe.Pointer(fpr)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func ptraceGetSigInfo(pid int) (*ptraceSiginfo, error) {
	var info ptraceSiginfo
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, sys.PTRACE_GETSIGINFO,
		uintptr(pid), 0, uintptr(unsafe.Pointer(&info)), 0, 0)
	if errno != 0 {
		return nil, errno
	}
	return &info, nil
}

// ptraceThread serializes every ptrace request onto one OS thread; the
// kernel requires all requests after attach to come from the thread that
// attached.
type ptraceThread struct {
	ptraceChan     chan func()
	ptraceDoneChan chan struct{}
}

func newPtraceThread() *ptraceThread {
	pt := &ptraceThread{
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan struct{}),
	}
	go pt.handlePtraceFuncs()
	return pt
}

func (pt *ptraceThread) handlePtraceFuncs() {
	runtime.LockOSThread()
	for fn := range pt.ptraceChan {
		fn()
		pt.ptraceDoneChan <- struct{}{}
	}
	close(pt.ptraceDoneChan)
}

func (pt *ptraceThread) release() {
	close(pt.ptraceChan)
}

func (p *Process) execPtraceFunc(fn func()) {
	p.ptraceThread.ptraceChan <- fn
	<-p.ptraceThread.ptraceDoneChan
}
