package proc

import (
	"fmt"

	"github.com/mvkh/linux-debugger/pkg/elf"
)

// ErrProcessExited indicates that the tracee has exited and the operation
// could not be completed.
type ErrProcessExited struct {
	Pid    int
	Status int
}

func (pe ErrProcessExited) Error() string {
	return fmt.Sprintf("process %d has exited with status %d", pe.Pid, pe.Status)
}

// LaunchFailedError is returned when the child failed between fork and
// exec, or could not be started at all.
type LaunchFailedError struct {
	Path string
	Err  error
}

func (e LaunchFailedError) Error() string {
	return fmt.Sprintf("could not launch %s: %v", e.Path, e.Err)
}

func (e LaunchFailedError) Unwrap() error { return e.Err }

// AttachFailedError is returned when ptrace-attach to an existing process
// failed.
type AttachFailedError struct {
	Pid int
	Err error
}

func (e AttachFailedError) Error() string {
	return fmt.Sprintf("could not attach to process %d: %v", e.Pid, e.Err)
}

func (e AttachFailedError) Unwrap() error { return e.Err }

// StoppointNotFoundError is returned by collection lookups that miss.
type StoppointNotFoundError struct {
	What string
}

func (e StoppointNotFoundError) Error() string {
	return "no stoppoint with the given " + e.What
}

// StoppointExistsError is returned when creating a second stoppoint at an
// address that already has one.
type StoppointExistsError struct {
	Addr elf.VirtAddr
}

func (e StoppointExistsError) Error() string {
	return fmt.Sprintf("stoppoint already exists at %#x", uint64(e.Addr))
}

// NoHardwareSlotError is returned when all four debug-register slots are
// occupied.
type NoHardwareSlotError struct{}

func (NoHardwareSlotError) Error() string {
	return "no remaining hardware debug registers"
}

// InvalidStoppointParamError is returned for a bad watchpoint mode or size.
type InvalidStoppointParamError struct {
	Reason string
}

func (e InvalidStoppointParamError) Error() string { return e.Reason }

// RegisterTypeMismatchError is returned when a typed register read uses a
// type whose width disagrees with the register.
type RegisterTypeMismatchError struct {
	Register string
	Want     int
	Got      int
}

func (e RegisterTypeMismatchError) Error() string {
	return fmt.Sprintf("register %s is %d bytes, requested type is %d bytes", e.Register, e.Want, e.Got)
}
