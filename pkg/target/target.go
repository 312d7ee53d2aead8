// Package target binds a traced process to the ELF image and debug
// information it was loaded from, and exposes logical breakpoints and
// source-level queries on top of the pair.
package target

import (
	"fmt"
	"os"

	"github.com/mvkh/linux-debugger/pkg/dwarf"
	"github.com/mvkh/linux-debugger/pkg/elf"
	"github.com/mvkh/linux-debugger/pkg/logflags"
	"github.com/mvkh/linux-debugger/pkg/proc"
)

// Target owns one process and the ELF image backing it. The image owns the
// memory mapping the DWARF decoder reads from, so the decoder lives and
// dies with the target.
type Target struct {
	proc  *proc.Process
	elf   *elf.File
	dwarf *dwarf.Data

	breakpoints      []*Breakpoint
	nextBreakpointID int32
}

// Launch starts path under the debugger and binds it to its binary. The
// load bias is discovered from the auxiliary vector once the inferior
// reaches its first stop.
func Launch(path string, debug bool, stdoutReplacement *os.File) (*Target, error) {
	p, err := proc.Launch(path, debug, stdoutReplacement)
	if err != nil {
		return nil, err
	}
	t, err := bind(p, path)
	if err != nil {
		p.Close()
		return nil, err
	}
	return t, nil
}

// Attach takes control of a running process and binds it to the executable
// behind /proc/<pid>/exe.
func Attach(pid int) (*Target, error) {
	p, err := proc.Attach(pid)
	if err != nil {
		return nil, err
	}
	t, err := bind(p, fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		p.Close()
		return nil, err
	}
	return t, nil
}

func bind(p *proc.Process, path string) (*Target, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	t := &Target{proc: p, elf: f, nextBreakpointID: 1}

	d, err := dwarf.New(f)
	if err != nil {
		// Symbols still work without debug information.
		logflags.DebuggerLogger().Debugf("no DWARF for %s: %v", path, err)
	} else {
		t.dwarf = d
	}

	if p.IsAttached() && p.State() == proc.Stopped {
		if err := t.discoverLoadBias(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return t, nil
}

// discoverLoadBias subtracts the link-time entry point from the runtime
// one reported in the auxiliary vector and notifies the image.
func (t *Target) discoverLoadBias() error {
	entry, err := t.proc.EntryPoint()
	if err != nil {
		return err
	}
	bias := uint64(entry) - t.elf.Header().Entry
	t.NotifyLoaded(elf.VirtAddr(bias))
	return nil
}

// NotifyLoaded records the image's load bias and re-resolves every logical
// breakpoint against the now-translatable addresses.
func (t *Target) NotifyLoaded(bias elf.VirtAddr) {
	t.elf.NotifyLoaded(bias)
	for _, b := range t.breakpoints {
		if err := b.Resolve(); err != nil {
			logflags.DebuggerLogger().Debugf("re-resolving breakpoint %d: %v", b.ID(), err)
		}
	}
}

// Close releases the process and unmaps the image.
func (t *Target) Close() error {
	err := t.proc.Close()
	if cerr := t.elf.Close(); err == nil {
		err = cerr
	}
	return err
}

// Process returns the owned process controller.
func (t *Target) Process() *proc.Process { return t.proc }

// ElfFile returns the bound ELF image.
func (t *Target) ElfFile() *elf.File { return t.elf }

// DwarfData returns the image's debug information, nil when the binary
// carries none.
func (t *Target) DwarfData() *dwarf.Data { return t.dwarf }

// Breakpoints returns all logical breakpoints in creation order.
func (t *Target) Breakpoints() []*Breakpoint { return t.breakpoints }

// BreakpointByID returns the logical breakpoint with the given id.
func (t *Target) BreakpointByID(id int32) (*Breakpoint, bool) {
	for _, b := range t.breakpoints {
		if b.id == id {
			return b, true
		}
	}
	return nil, false
}

// BreakpointAtAddress returns the logical breakpoint owning a site at the
// given address.
func (t *Target) BreakpointAtAddress(addr elf.VirtAddr) (*Breakpoint, bool) {
	for _, b := range t.breakpoints {
		if b.AtAddress(addr) {
			return b, true
		}
	}
	return nil, false
}

func (t *Target) addBreakpoint(b *Breakpoint) (*Breakpoint, error) {
	if err := b.Resolve(); err != nil {
		return nil, err
	}
	t.breakpoints = append(t.breakpoints, b)
	return b, nil
}

// CreateFunctionBreakpoint sets a logical breakpoint on every known
// definition of the named function.
func (t *Target) CreateFunctionBreakpoint(name string, hardware, internal bool) (*Breakpoint, error) {
	b := &Breakpoint{
		id:           t.nextBreakpointID,
		tgt:          t,
		kind:         FunctionBreakpoint,
		functionName: name,
		isHardware:   hardware,
		isInternal:   internal,
	}
	t.nextBreakpointID++
	return t.addBreakpoint(b)
}

// CreateLineBreakpoint sets a logical breakpoint on the first statement of
// the given source line.
func (t *Target) CreateLineBreakpoint(file string, line int, hardware, internal bool) (*Breakpoint, error) {
	b := &Breakpoint{
		id:         t.nextBreakpointID,
		tgt:        t,
		kind:       LineBreakpoint,
		file:       file,
		line:       line,
		isHardware: hardware,
		isInternal: internal,
	}
	t.nextBreakpointID++
	return t.addBreakpoint(b)
}

// CreateAddressBreakpoint sets a logical breakpoint on a single virtual
// address.
func (t *Target) CreateAddressBreakpoint(addr elf.VirtAddr, hardware, internal bool) (*Breakpoint, error) {
	b := &Breakpoint{
		id:         t.nextBreakpointID,
		tgt:        t,
		kind:       AddressBreakpoint,
		addr:       addr,
		isHardware: hardware,
		isInternal: internal,
	}
	t.nextBreakpointID++
	return t.addBreakpoint(b)
}

// FunctionAt names the function containing the given virtual address,
// preferring debug information over the symbol table.
func (t *Target) FunctionAt(addr elf.VirtAddr) (string, bool) {
	fa, err := addr.ToFileAddr(t.elf)
	if err != nil {
		return "", false
	}
	if t.dwarf != nil {
		if die, ok := t.dwarf.FunctionContainingAddress(fa); ok {
			if name, ok, err := die.Name(); err == nil && ok {
				return name, true
			}
		}
	}
	if sym, ok := t.elf.SymbolContainingAddress(fa); ok {
		return t.elf.GetString(uint64(sym.Name)), true
	}
	return "", false
}

// LineAt returns the source position covering the given virtual address.
func (t *Target) LineAt(addr elf.VirtAddr) (dwarf.LineEntry, bool) {
	if t.dwarf == nil {
		return dwarf.LineEntry{}, false
	}
	fa, err := addr.ToFileAddr(t.elf)
	if err != nil {
		return dwarf.LineEntry{}, false
	}
	cu, ok := t.dwarf.CompileUnitContainingAddress(fa)
	if !ok {
		return dwarf.LineEntry{}, false
	}
	return cu.LineEntryForAddress(fa)
}

// VirtForLine returns the address of the first statement on the given
// source line.
func (t *Target) VirtForLine(file string, line int) (elf.VirtAddr, bool) {
	if t.dwarf == nil {
		return 0, false
	}
	for _, cu := range t.dwarf.CompileUnits() {
		lines, err := cu.Lines()
		if err != nil {
			continue
		}
		for _, entry := range lines {
			if entry.EndSequence || !entry.IsStmt || entry.Line != line {
				continue
			}
			if !sourceFileMatches(file, entry.FileName) {
				continue
			}
			va, err := entry.Address.ToVirtAddr()
			if err != nil {
				continue
			}
			return va, true
		}
	}
	return 0, false
}
