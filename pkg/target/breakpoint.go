package target

import (
	stdelf "debug/elf"
	"path/filepath"

	"github.com/mvkh/linux-debugger/pkg/dwarf"
	"github.com/mvkh/linux-debugger/pkg/elf"
	"github.com/mvkh/linux-debugger/pkg/proc"
)

// BreakpointKind says how a logical breakpoint names its location.
type BreakpointKind int

const (
	FunctionBreakpoint BreakpointKind = iota
	LineBreakpoint
	AddressBreakpoint
)

// Breakpoint is a logical stoppoint: a function name, a file:line pair or
// a raw address that resolves to zero or more physical sites. Sites are
// created through the owning process, which also registers them in its
// process-wide collection.
type Breakpoint struct {
	id  int32
	tgt *Target

	kind         BreakpointKind
	functionName string
	file         string
	line         int
	addr         elf.VirtAddr

	enabled    bool
	isHardware bool
	isInternal bool

	sites proc.StoppointCollection[*proc.BreakpointSite]
}

// ID returns the logical breakpoint's id, unique within its target.
func (b *Breakpoint) ID() int32 { return b.id }

// Kind returns how the breakpoint names its location.
func (b *Breakpoint) Kind() BreakpointKind { return b.kind }

// FunctionName returns the target function of a function breakpoint.
func (b *Breakpoint) FunctionName() string { return b.functionName }

// File returns the source file of a line breakpoint.
func (b *Breakpoint) File() string { return b.file }

// Line returns the source line of a line breakpoint.
func (b *Breakpoint) Line() int { return b.line }

// IsEnabled reports whether the breakpoint's sites are installed.
func (b *Breakpoint) IsEnabled() bool { return b.enabled }

// IsHardware reports whether sites use debug-register slots.
func (b *Breakpoint) IsHardware() bool { return b.isHardware }

// IsInternal reports whether this breakpoint belongs to the debugger.
func (b *Breakpoint) IsInternal() bool { return b.isInternal }

// Sites returns the physical sites the breakpoint resolved to.
func (b *Breakpoint) Sites() *proc.StoppointCollection[*proc.BreakpointSite] {
	return &b.sites
}

// AtAddress reports whether one of the breakpoint's sites sits at addr.
func (b *Breakpoint) AtAddress(addr elf.VirtAddr) bool {
	return b.sites.ContainsAddress(addr)
}

// InRange reports whether any site lies in [low, high).
func (b *Breakpoint) InRange(low, high elf.VirtAddr) bool {
	return len(b.sites.GetInRegion(low, high)) > 0
}

// Enable installs every owned site.
func (b *Breakpoint) Enable() error {
	var firstErr error
	b.sites.ForEach(func(s *proc.BreakpointSite) {
		if err := s.Enable(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	if firstErr != nil {
		return firstErr
	}
	b.enabled = true
	return nil
}

// Disable uninstalls every owned site.
func (b *Breakpoint) Disable() error {
	var firstErr error
	b.sites.ForEach(func(s *proc.BreakpointSite) {
		if err := s.Disable(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	if firstErr != nil {
		return firstErr
	}
	b.enabled = false
	return nil
}

// Resolve recomputes the breakpoint's addresses against the target's
// symbols and debug information. Sites still valid are kept, stale sites
// are removed, and missing ones are created (enabled if the breakpoint
// is).
func (b *Breakpoint) Resolve() error {
	addrs, err := b.resolveAddresses()
	if err != nil {
		return err
	}

	wanted := make(map[elf.VirtAddr]bool, len(addrs))
	for _, a := range addrs {
		wanted[a] = true
	}

	var stale []elf.VirtAddr
	b.sites.ForEach(func(s *proc.BreakpointSite) {
		if !wanted[s.Address()] {
			stale = append(stale, s.Address())
		}
	})
	for _, a := range stale {
		if err := b.tgt.proc.BreakpointSites().RemoveByAddress(a); err != nil {
			return err
		}
		if err := b.sites.RemoveByAddress(a); err != nil {
			return err
		}
	}

	for _, a := range addrs {
		if b.sites.ContainsAddress(a) {
			continue
		}
		site, err := b.tgt.proc.CreateBreakpointSite(a, b.isHardware, b.isInternal)
		if err != nil {
			if _, exists := err.(proc.StoppointExistsError); exists {
				// Another breakpoint already realizes this address.
				continue
			}
			return err
		}
		b.sites.Push(site)
		if b.enabled {
			if err := site.Enable(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Breakpoint) resolveAddresses() ([]elf.VirtAddr, error) {
	switch b.kind {
	case AddressBreakpoint:
		return []elf.VirtAddr{b.addr}, nil
	case FunctionBreakpoint:
		return b.resolveFunction()
	case LineBreakpoint:
		return b.resolveLine()
	}
	return nil, nil
}

func (b *Breakpoint) resolveFunction() ([]elf.VirtAddr, error) {
	seen := make(map[elf.VirtAddr]bool)
	var addrs []elf.VirtAddr
	add := func(a elf.VirtAddr) {
		if !seen[a] {
			seen[a] = true
			addrs = append(addrs, a)
		}
	}

	if b.tgt.dwarf != nil {
		for _, die := range b.tgt.dwarf.FindFunctions(b.functionName) {
			if !die.Contains(dwarf.AttrLowPC) {
				continue
			}
			low, err := die.LowPC()
			if err != nil {
				continue
			}
			va, err := low.ToVirtAddr()
			if err != nil {
				continue
			}
			add(va)
		}
	}

	for _, sym := range b.tgt.elf.SymbolsByName(b.functionName) {
		if stdelf.ST_TYPE(sym.Info) != stdelf.STT_FUNC {
			continue
		}
		va, err := elf.NewFileAddr(b.tgt.elf, sym.Value).ToVirtAddr()
		if err != nil {
			continue
		}
		add(va)
	}
	return addrs, nil
}

func (b *Breakpoint) resolveLine() ([]elf.VirtAddr, error) {
	if b.tgt.dwarf == nil {
		return nil, nil
	}
	var addrs []elf.VirtAddr
	for _, cu := range b.tgt.dwarf.CompileUnits() {
		lines, err := cu.Lines()
		if err != nil || len(lines) == 0 {
			continue
		}
		for _, entry := range lines {
			if entry.EndSequence || !entry.IsStmt || entry.Line != b.line {
				continue
			}
			if !sourceFileMatches(b.file, entry.FileName) {
				continue
			}
			va, err := entry.Address.ToVirtAddr()
			if err != nil {
				break
			}
			addrs = append(addrs, va)
			break
		}
	}
	return addrs, nil
}

// sourceFileMatches compares by basename when the requested path carries
// no directory, by full path otherwise.
func sourceFileMatches(requested, candidate string) bool {
	if filepath.Dir(requested) == "." {
		return filepath.Base(candidate) == requested
	}
	return candidate == requested
}
