package proc

import (
	"encoding/binary"

	"github.com/mvkh/linux-debugger/pkg/elf"
)

// StoppointMode selects what kind of access triggers a hardware stoppoint.
type StoppointMode int

const (
	ModeWrite StoppointMode = iota
	ModeReadWrite
	ModeExecute
)

// Watchpoint observes reads or writes of a small memory region through a
// debug-register slot. It remembers the last value seen at the watched
// address so a hit can report what changed.
type Watchpoint struct {
	id   int32
	proc *Process
	addr elf.VirtAddr
	mode StoppointMode
	size int

	enabled bool
	hwSlot  int

	data         uint64
	previousData uint64
}

func newWatchpoint(p *Process, id int32, addr elf.VirtAddr, mode StoppointMode, size int) (*Watchpoint, error) {
	if mode == ModeExecute {
		return nil, InvalidStoppointParamError{Reason: "execute watchpoints are not supported, use a hardware breakpoint"}
	}
	switch size {
	case 1, 2, 4, 8:
	default:
		return nil, InvalidStoppointParamError{Reason: "watchpoint size must be 1, 2, 4 or 8"}
	}
	if uint64(addr)&uint64(size-1) != 0 {
		return nil, InvalidStoppointParamError{Reason: "watchpoint address must be aligned to its size"}
	}
	return &Watchpoint{id: id, proc: p, addr: addr, mode: mode, size: size, hwSlot: -1}, nil
}

// ID returns the watchpoint's id, unique within its process.
func (w *Watchpoint) ID() int32 { return w.id }

// Address returns the watched address.
func (w *Watchpoint) Address() elf.VirtAddr { return w.addr }

// Mode returns the access kind the watchpoint triggers on.
func (w *Watchpoint) Mode() StoppointMode { return w.mode }

// Size returns the width of the watched region in bytes.
func (w *Watchpoint) Size() int { return w.size }

// IsEnabled reports whether the watchpoint occupies a debug-register slot.
func (w *Watchpoint) IsEnabled() bool { return w.enabled }

// Data returns the value most recently read from the watched region.
func (w *Watchpoint) Data() uint64 { return w.data }

// PreviousData returns the value the region held before the last
// UpdateData.
func (w *Watchpoint) PreviousData() uint64 { return w.previousData }

// AtAddress reports whether the watchpoint sits at the given address.
func (w *Watchpoint) AtAddress(addr elf.VirtAddr) bool { return w.addr == addr }

// InRange reports whether the watched address lies in [low, high).
func (w *Watchpoint) InRange(low, high elf.VirtAddr) bool {
	return low <= w.addr && w.addr < high
}

// Enable claims a debug-register slot and snapshots the region's current
// content. Enabling an enabled watchpoint is a no-op.
func (w *Watchpoint) Enable() error {
	if w.enabled {
		return nil
	}
	slot, err := w.proc.setHardwareStoppoint(w.addr, w.mode, w.size)
	if err != nil {
		return err
	}
	w.hwSlot = slot
	w.enabled = true
	if err := w.UpdateData(); err != nil {
		return err
	}
	w.previousData = w.data
	return nil
}

// Disable releases the debug-register slot. Disabling a disabled
// watchpoint is a no-op.
func (w *Watchpoint) Disable() error {
	if !w.enabled {
		return nil
	}
	if err := w.proc.clearHardwareStoppoint(w.hwSlot); err != nil {
		return err
	}
	w.hwSlot = -1
	w.enabled = false
	return nil
}

// UpdateData re-reads the watched region after a hit, rotating the current
// value into PreviousData.
func (w *Watchpoint) UpdateData() error {
	raw, err := w.proc.ReadMemory(w.addr, w.size)
	if err != nil {
		return err
	}
	var word [8]byte
	copy(word[:], raw)
	w.previousData = w.data
	w.data = binary.LittleEndian.Uint64(word[:])
	return nil
}
