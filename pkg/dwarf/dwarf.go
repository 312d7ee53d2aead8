// Package dwarf decodes the DWARF v2-v4 debug information of an ELF image:
// compile units, abbreviation tables, debug information entries and their
// attribute forms, range lists and the line-number program. Decoding is
// lazy; an abbreviation table is parsed the first time a unit needs it and
// the function index is built on first lookup.
package dwarf

import (
	"fmt"

	"github.com/mvkh/linux-debugger/pkg/elf"
	"github.com/mvkh/linux-debugger/pkg/logflags"
)

// AttrSpec pairs an attribute name with its form inside an abbreviation.
type AttrSpec struct {
	Attr Attr
	Form Form
}

// Abbrev is one entry of an abbreviation table: the shared schema for the
// attributes of every DIE that refers to it.
type Abbrev struct {
	Code        uint64
	Tag         Tag
	HasChildren bool
	AttrSpecs   []AttrSpec
}

// AbbrevTable maps abbreviation codes to their entries.
type AbbrevTable map[uint64]*Abbrev

// indexEntry locates a subprogram DIE: the unit it lives in and the DIE's
// offset within the unit's bytes.
type indexEntry struct {
	cu  *CompileUnit
	pos int
}

// Data gives access to the DWARF debug information of one ELF image. It
// holds a non-owning reference back to the image; the image's memory
// mapping must outlive it.
type Data struct {
	elf *elf.File

	info     []byte
	abbrev   []byte
	str      []byte
	rangeSec []byte
	line     []byte

	compileUnits []*CompileUnit
	abbrevTables map[uint64]AbbrevTable

	functionIndex map[string][]indexEntry
}

// New discovers the compile-unit headers of f's .debug_info section. No
// DIE is decoded until requested.
func New(f *elf.File) (*Data, error) {
	d := &Data{
		elf:          f,
		info:         f.SectionContents(".debug_info"),
		abbrev:       f.SectionContents(".debug_abbrev"),
		str:          f.SectionContents(".debug_str"),
		rangeSec:     f.SectionContents(".debug_ranges"),
		line:         f.SectionContents(".debug_line"),
		abbrevTables: make(map[uint64]AbbrevTable),
	}
	if d.info == nil {
		return nil, fmt.Errorf("%s has no debug information", f.Path())
	}
	if err := d.parseCompileUnitHeaders(); err != nil {
		return nil, err
	}
	return d, nil
}

// newFromSections builds a decoder over raw section contents. Used by
// tests that synthesize debug information without an ELF image.
func newFromSections(f *elf.File, info, abbrev, str, ranges, line []byte) (*Data, error) {
	d := &Data{
		elf:          f,
		info:         info,
		abbrev:       abbrev,
		str:          str,
		rangeSec:     ranges,
		line:         line,
		abbrevTables: make(map[uint64]AbbrevTable),
	}
	if err := d.parseCompileUnitHeaders(); err != nil {
		return nil, err
	}
	return d, nil
}

// ElfFile returns the image this debug information belongs to.
func (d *Data) ElfFile() *elf.File { return d.elf }

// CompileUnits returns all units of .debug_info in file order.
func (d *Data) CompileUnits() []*CompileUnit { return d.compileUnits }

func (d *Data) parseCompileUnitHeaders() error {
	b := makeBuf(d.info, 0)
	for b.remaining() > 0 {
		start := b.off
		unitLength := b.uint32()
		if unitLength == 0xffffffff {
			return MalformedError{Offset: uint64(start), Reason: "64-bit DWARF is not supported"}
		}
		version := b.uint16()
		abbrevOffset := b.uint32()
		addrSize := b.uint8()
		if b.err != nil {
			return b.err
		}
		if version < 2 || version > 4 {
			return MalformedError{Offset: uint64(start), Reason: fmt.Sprintf("unsupported DWARF version %d", version)}
		}
		if addrSize != 8 {
			return MalformedError{Offset: uint64(start), Reason: fmt.Sprintf("unsupported address size %d", addrSize)}
		}
		end := start + 4 + int(unitLength)
		if end > len(d.info) {
			return MalformedError{Offset: uint64(start), Reason: "compile unit extends past end of .debug_info"}
		}
		d.compileUnits = append(d.compileUnits, &CompileUnit{
			parent:       d,
			span:         d.info[start:end],
			offset:       uint64(start),
			version:      version,
			abbrevOffset: uint64(abbrevOffset),
			addrSize:     int(addrSize),
		})
		b.off = end
	}
	return nil
}

// AbbrevTable returns the abbreviation table at the given .debug_abbrev
// offset, decoding it on first use. Units that share an offset share the
// decoded table.
func (d *Data) AbbrevTable(offset uint64) (AbbrevTable, error) {
	if tab, ok := d.abbrevTables[offset]; ok {
		return tab, nil
	}
	if offset > uint64(len(d.abbrev)) {
		return nil, MalformedError{Offset: offset, Reason: "abbreviation table offset out of range"}
	}
	tab := make(AbbrevTable)
	b := makeBuf(d.abbrev, int(offset))
	for {
		code := b.uleb()
		if b.err != nil {
			return nil, b.err
		}
		if code == 0 {
			break
		}
		ab := &Abbrev{
			Code:        code,
			Tag:         Tag(b.uleb()),
			HasChildren: b.uint8() != 0,
		}
		for {
			attr := b.uleb()
			form := b.uleb()
			if b.err != nil {
				return nil, b.err
			}
			if attr == 0 && form == 0 {
				break
			}
			ab.AttrSpecs = append(ab.AttrSpecs, AttrSpec{Attr: Attr(attr), Form: Form(form)})
		}
		tab[code] = ab
	}
	d.abbrevTables[offset] = tab
	return tab, nil
}

// CompileUnitContainingAddress returns the unit whose root DIE covers the
// given address. Units whose root carries neither a PC range nor a range
// list are never considered containing.
func (d *Data) CompileUnitContainingAddress(addr elf.FileAddr) (*CompileUnit, bool) {
	for _, cu := range d.compileUnits {
		root, err := cu.Root()
		if err != nil {
			continue
		}
		if ok, err := root.ContainsAddress(addr); err == nil && ok {
			return cu, true
		}
	}
	return nil, false
}

// FunctionContainingAddress returns the subprogram DIE whose code range
// covers the given address.
func (d *Data) FunctionContainingAddress(addr elf.FileAddr) (DIE, bool) {
	d.index()
	for _, entries := range d.functionIndex {
		for _, ent := range entries {
			die, err := ent.cu.dieAt(ent.pos)
			if err != nil || die.AbbrevEntry().Tag != TagSubprogram {
				continue
			}
			if ok, err := die.ContainsAddress(addr); err == nil && ok {
				return die, true
			}
		}
	}
	return DIE{}, false
}

// FindFunctions returns the subprogram and inlined-subroutine DIEs known
// under the given name.
func (d *Data) FindFunctions(name string) []DIE {
	d.index()
	entries := d.functionIndex[name]
	dies := make([]DIE, 0, len(entries))
	for _, ent := range entries {
		die, err := ent.cu.dieAt(ent.pos)
		if err != nil {
			continue
		}
		dies = append(dies, die)
	}
	return dies
}

// index builds the function-name index on first use. Malformed entries are
// logged and skipped; the walk continues with the next unit.
func (d *Data) index() {
	if d.functionIndex != nil {
		return
	}
	d.functionIndex = make(map[string][]indexEntry)
	log := logflags.DwarfLogger()
	for _, cu := range d.compileUnits {
		root, err := cu.Root()
		if err != nil {
			log.Debugf("skipping unit at %#x: %v", cu.offset, err)
			continue
		}
		if err := d.indexDIE(root); err != nil {
			log.Debugf("partial index for unit at %#x: %v", cu.offset, err)
		}
	}
}

func (d *Data) indexDIE(die DIE) error {
	tag := die.AbbrevEntry().Tag
	if tag == TagSubprogram || tag == TagInlinedSubroutine {
		if name, ok, err := die.Name(); err == nil && ok {
			d.functionIndex[name] = append(d.functionIndex[name], indexEntry{cu: die.cu, pos: die.pos})
		}
	}
	it := die.Children()
	for it.Next() {
		if err := d.indexDIE(it.DIE()); err != nil {
			return err
		}
	}
	return it.Err()
}
