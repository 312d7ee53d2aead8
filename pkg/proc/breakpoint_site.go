package proc

import (
	"github.com/mvkh/linux-debugger/pkg/elf"
)

// breakInstruction is the x86 int3 opcode patched over the original byte
// of a software breakpoint site.
const breakInstruction = 0xCC

// BreakpointSite is a single physical stoppoint at one address, installed
// either by instruction patching (software) or by occupying one of the
// four debug-register slots (hardware).
type BreakpointSite struct {
	id   int32
	proc *Process
	addr elf.VirtAddr

	enabled    bool
	savedData  byte
	isHardware bool
	isInternal bool
	hwSlot     int
}

func newBreakpointSite(p *Process, id int32, addr elf.VirtAddr, hardware, internal bool) *BreakpointSite {
	return &BreakpointSite{
		id:         id,
		proc:       p,
		addr:       addr,
		isHardware: hardware,
		isInternal: internal,
		hwSlot:     -1,
	}
}

// ID returns the site's id, unique within its process.
func (s *BreakpointSite) ID() int32 { return s.id }

// Address returns the address the site is installed at.
func (s *BreakpointSite) Address() elf.VirtAddr { return s.addr }

// IsEnabled reports whether the site is currently installed.
func (s *BreakpointSite) IsEnabled() bool { return s.enabled }

// IsHardware reports whether the site occupies a debug-register slot.
func (s *BreakpointSite) IsHardware() bool { return s.isHardware }

// IsInternal reports whether the site was installed by the debugger for
// its own purposes rather than by the user.
func (s *BreakpointSite) IsInternal() bool { return s.isInternal }

// SavedData returns the original instruction byte a software site
// overwrote. Only meaningful while the site is enabled.
func (s *BreakpointSite) SavedData() byte { return s.savedData }

// AtAddress reports whether the site sits at the given address.
func (s *BreakpointSite) AtAddress(addr elf.VirtAddr) bool { return s.addr == addr }

// InRange reports whether the site's address lies in [low, high).
func (s *BreakpointSite) InRange(low, high elf.VirtAddr) bool {
	return low <= s.addr && s.addr < high
}

// Enable installs the site. Enabling an enabled site is a no-op.
func (s *BreakpointSite) Enable() error {
	if s.enabled {
		return nil
	}
	if s.isHardware {
		slot, err := s.proc.setHardwareStoppoint(s.addr, ModeExecute, 1)
		if err != nil {
			return err
		}
		s.hwSlot = slot
	} else {
		orig, err := s.proc.ReadMemory(s.addr, 1)
		if err != nil {
			return err
		}
		s.savedData = orig[0]
		if err := s.proc.WriteMemory(s.addr, []byte{breakInstruction}); err != nil {
			return err
		}
	}
	s.enabled = true
	return nil
}

// Disable uninstalls the site, restoring the patched byte or releasing the
// debug-register slot. Disabling a disabled site is a no-op.
func (s *BreakpointSite) Disable() error {
	if !s.enabled {
		return nil
	}
	if s.isHardware {
		if err := s.proc.clearHardwareStoppoint(s.hwSlot); err != nil {
			return err
		}
		s.hwSlot = -1
	} else {
		if err := s.proc.WriteMemory(s.addr, []byte{s.savedData}); err != nil {
			return err
		}
	}
	s.enabled = false
	return nil
}
