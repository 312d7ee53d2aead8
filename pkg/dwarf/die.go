package dwarf

import (
	"fmt"

	"github.com/mvkh/linux-debugger/pkg/elf"
)

// compile-unit header: unit length (4), version (2), abbrev offset (4),
// address size (1).
const cuHeaderSize = 11

// CompileUnit is one unit of .debug_info, identified by its offset within
// the section. Its bytes (including the header) are a sub-slice of the
// mapped image.
type CompileUnit struct {
	parent       *Data
	span         []byte
	offset       uint64
	version      uint16
	abbrevOffset uint64
	addrSize     int

	lines       []LineEntry
	linesErr    error
	linesParsed bool
}

// DwarfInfo returns the decoder this unit belongs to.
func (cu *CompileUnit) DwarfInfo() *Data { return cu.parent }

// Data returns the raw bytes of the unit, header included.
func (cu *CompileUnit) Data() []byte { return cu.span }

// Offset returns the unit's offset within .debug_info.
func (cu *CompileUnit) Offset() uint64 { return cu.offset }

// Version returns the DWARF version of the unit.
func (cu *CompileUnit) Version() uint16 { return cu.version }

// AbbrevTable returns the unit's abbreviation table.
func (cu *CompileUnit) AbbrevTable() (AbbrevTable, error) {
	return cu.parent.AbbrevTable(cu.abbrevOffset)
}

// Root returns the unit's root DIE.
func (cu *CompileUnit) Root() (DIE, error) {
	return cu.dieAt(cuHeaderSize)
}

// dieAt decodes the DIE at the given offset within the unit's bytes.
func (cu *CompileUnit) dieAt(off int) (DIE, error) {
	b := makeBuf(cu.span, off)
	code := b.uleb()
	if b.err != nil {
		return DIE{}, b.err
	}
	if code == 0 {
		// Null entry: terminates a sibling chain.
		return DIE{cu: cu, pos: off, next: b.off}, nil
	}
	tab, err := cu.AbbrevTable()
	if err != nil {
		return DIE{}, err
	}
	abbrev, ok := tab[code]
	if !ok {
		return DIE{}, MalformedError{Offset: cu.offset + uint64(off), Reason: fmt.Sprintf("unknown abbreviation code %d", code)}
	}
	attrLocs := make([]int, len(abbrev.AttrSpecs))
	for i, spec := range abbrev.AttrSpecs {
		attrLocs[i] = b.off
		b.skipForm(spec.Form, cu.addrSize)
	}
	if b.err != nil {
		return DIE{}, b.err
	}
	return DIE{cu: cu, pos: off, abbrev: abbrev, attrLocs: attrLocs, next: b.off}, nil
}

// DIE is a decoded debug information entry: a position within its unit's
// bytes, the abbreviation describing it, and the location of each attribute
// value. DIEs are cheap value objects and remain valid while the ELF
// mapping lives.
type DIE struct {
	cu       *CompileUnit
	pos      int
	abbrev   *Abbrev
	attrLocs []int
	next     int
}

// IsNull reports whether this is a null entry (abbreviation code zero).
func (d DIE) IsNull() bool { return d.abbrev == nil }

// CU returns the compile unit the entry belongs to.
func (d DIE) CU() *CompileUnit { return d.cu }

// AbbrevEntry returns the abbreviation describing the entry.
func (d DIE) AbbrevEntry() *Abbrev { return d.abbrev }

// Position returns the entry's offset within its unit's bytes.
func (d DIE) Position() int { return d.pos }

// Next returns the offset just past the entry's attribute values: the first
// child if the entry has children, otherwise the next sibling.
func (d DIE) Next() int { return d.next }

// Contains reports whether the entry carries the given attribute.
func (d DIE) Contains(attr Attr) bool {
	if d.abbrev == nil {
		return false
	}
	for _, spec := range d.abbrev.AttrSpecs {
		if spec.Attr == attr {
			return true
		}
	}
	return false
}

// Attr returns the named attribute of the entry.
func (d DIE) Attr(attr Attr) (Attribute, bool) {
	if d.abbrev == nil {
		return Attribute{}, false
	}
	for i, spec := range d.abbrev.AttrSpecs {
		if spec.Attr == attr {
			return Attribute{cu: d.cu, attr: spec.Attr, form: spec.Form, loc: d.attrLocs[i]}, true
		}
	}
	return Attribute{}, false
}

// LowPC returns the entry's DW_AT_low_pc.
func (d DIE) LowPC() (elf.FileAddr, error) {
	at, ok := d.Attr(AttrLowPC)
	if !ok {
		return elf.FileAddr{}, fmt.Errorf("entry has no low PC")
	}
	return at.AsAddress()
}

// HighPC returns the entry's DW_AT_high_pc. A constant-class value is an
// offset from the low PC, an address-class value is absolute.
func (d DIE) HighPC() (elf.FileAddr, error) {
	at, ok := d.Attr(AttrHighPC)
	if !ok {
		return elf.FileAddr{}, fmt.Errorf("entry has no high PC")
	}
	if at.form == FormAddr {
		return at.AsAddress()
	}
	off, err := at.AsInt()
	if err != nil {
		return elf.FileAddr{}, err
	}
	low, err := d.LowPC()
	if err != nil {
		return elf.FileAddr{}, err
	}
	return low.Add(int64(off)), nil
}

// ContainsAddress reports whether the entry's code range covers addr,
// honouring a range list when present and [low_pc, high_pc) otherwise.
// An entry with neither is never containing.
func (d DIE) ContainsAddress(addr elf.FileAddr) (bool, error) {
	if d.Contains(AttrRanges) {
		at, _ := d.Attr(AttrRanges)
		rl, err := at.AsRangeList()
		if err != nil {
			return false, err
		}
		return rl.Contains(addr)
	}
	if !d.Contains(AttrLowPC) {
		return false, nil
	}
	low, err := d.LowPC()
	if err != nil {
		return false, err
	}
	high, err := d.HighPC()
	if err != nil {
		return false, err
	}
	return !addr.Before(low) && addr.Before(high), nil
}

// Name returns the entry's name, following DW_AT_specification and
// DW_AT_abstract_origin indirections.
func (d DIE) Name() (string, bool, error) {
	if at, ok := d.Attr(AttrName); ok {
		s, err := at.AsString()
		if err != nil {
			return "", false, err
		}
		return s, true, nil
	}
	for _, indirect := range []Attr{AttrSpecification, AttrAbstractOrigin} {
		if at, ok := d.Attr(indirect); ok {
			ref, err := at.AsReference()
			if err != nil {
				return "", false, err
			}
			return ref.Name()
		}
	}
	return "", false, nil
}

// Children iterates the entry's immediate children. Descent below one
// level is explicit recursion by the caller.
func (d DIE) Children() *ChildIterator {
	if d.abbrev == nil || !d.abbrev.HasChildren {
		return &ChildIterator{done: true}
	}
	return &ChildIterator{cu: d.cu, off: d.next}
}

// ChildIterator is a lazy, single-pass sequence of sibling DIEs terminated
// by a null entry.
type ChildIterator struct {
	cu   *CompileUnit
	off  int
	cur  DIE
	err  error
	done bool
}

// Next decodes the next sibling, returning false at the terminating null
// entry or on a decode error.
func (it *ChildIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	die, err := it.cu.dieAt(it.off)
	if err != nil {
		it.err = err
		return false
	}
	if die.IsNull() {
		it.done = true
		return false
	}
	it.cur = die
	// To find the sibling, skip over the subtree rooted at this entry.
	next := die.next
	if die.abbrev.HasChildren {
		next, err = it.cu.skipSubtree(die.next)
		if err != nil {
			it.err = err
			return false
		}
	}
	it.off = next
	return true
}

// DIE returns the current entry.
func (it *ChildIterator) DIE() DIE { return it.cur }

// Err returns the first decode error encountered, if any.
func (it *ChildIterator) Err() error { return it.err }

// skipSubtree advances from the first entry of a children list past its
// terminating null, descending through nested children.
func (cu *CompileUnit) skipSubtree(off int) (int, error) {
	depth := 1
	for depth > 0 {
		die, err := cu.dieAt(off)
		if err != nil {
			return 0, err
		}
		if die.IsNull() {
			depth--
		} else if die.abbrev.HasChildren {
			depth++
		}
		off = die.next
	}
	return off, nil
}

// Attribute is one attribute value of a DIE: its name, form, and the
// location of the value bytes within the unit.
type Attribute struct {
	cu   *CompileUnit
	attr Attr
	form Form
	loc  int
}

// Name returns the attribute's identifier.
func (a Attribute) Name() Attr { return a.attr }

// Form returns the attribute's encoding.
func (a Attribute) Form() Form { return a.form }

func (a Attribute) formError(want string) error {
	return MalformedError{
		Offset: a.cu.offset + uint64(a.loc),
		Reason: fmt.Sprintf("attribute %#x with form %#x cannot be read as %s", uint64(a.attr), uint64(a.form), want),
	}
}

// AsAddress decodes an address-class value.
func (a Attribute) AsAddress() (elf.FileAddr, error) {
	if a.form != FormAddr {
		return elf.FileAddr{}, a.formError("an address")
	}
	b := makeBuf(a.cu.span, a.loc)
	v := b.uint64()
	if b.err != nil {
		return elf.FileAddr{}, b.err
	}
	return elf.NewFileAddr(a.cu.parent.elf, v), nil
}

// AsSectionOffset decodes an offset into another DWARF section.
func (a Attribute) AsSectionOffset() (uint32, error) {
	switch a.form {
	case FormSecOffset, FormData4:
		b := makeBuf(a.cu.span, a.loc)
		v := b.uint32()
		return v, b.err
	}
	return 0, a.formError("a section offset")
}

// AsBlock decodes a block-class value.
func (a Attribute) AsBlock() ([]byte, error) {
	b := makeBuf(a.cu.span, a.loc)
	var n int
	switch a.form {
	case FormBlock1:
		n = int(b.uint8())
	case FormBlock2:
		n = int(b.uint16())
	case FormBlock4:
		n = int(b.uint32())
	case FormBlock, FormExprloc:
		n = int(b.uleb())
	default:
		return nil, a.formError("a block")
	}
	block := b.bytes(n)
	return block, b.err
}

// AsInt decodes a constant-class value as an unsigned 64-bit integer.
func (a Attribute) AsInt() (uint64, error) {
	b := makeBuf(a.cu.span, a.loc)
	var v uint64
	switch a.form {
	case FormData1:
		v = uint64(b.uint8())
	case FormData2:
		v = uint64(b.uint16())
	case FormData4:
		v = uint64(b.uint32())
	case FormData8:
		v = b.uint64()
	case FormUdata:
		v = b.uleb()
	case FormSdata:
		v = uint64(b.sleb())
	case FormFlag:
		v = uint64(b.uint8())
	case FormFlagPresent:
		v = 1
	default:
		return 0, a.formError("an integer")
	}
	return v, b.err
}

// AsString decodes a string-class value, inline or via .debug_str.
func (a Attribute) AsString() (string, error) {
	b := makeBuf(a.cu.span, a.loc)
	switch a.form {
	case FormString:
		s := b.cstring()
		return s, b.err
	case FormStrp:
		off := b.uint32()
		if b.err != nil {
			return "", b.err
		}
		str := a.cu.parent.str
		if uint64(off) >= uint64(len(str)) {
			return "", MalformedError{Offset: uint64(off), Reason: ".debug_str offset out of range"}
		}
		sb := makeBuf(str, int(off))
		s := sb.cstring()
		return s, sb.err
	}
	return "", a.formError("a string")
}

// AsReference decodes a reference-class value into the referenced DIE.
func (a Attribute) AsReference() (DIE, error) {
	b := makeBuf(a.cu.span, a.loc)
	var off uint64
	cuRelative := true
	switch a.form {
	case FormRef1:
		off = uint64(b.uint8())
	case FormRef2:
		off = uint64(b.uint16())
	case FormRef4:
		off = uint64(b.uint32())
	case FormRef8:
		off = b.uint64()
	case FormRefUdata:
		off = b.uleb()
	case FormRefAddr:
		off = uint64(b.uint32())
		cuRelative = false
	default:
		return DIE{}, a.formError("a reference")
	}
	if b.err != nil {
		return DIE{}, b.err
	}
	if cuRelative {
		if off >= uint64(len(a.cu.span)) {
			return DIE{}, MalformedError{Offset: a.cu.offset + off, Reason: "reference outside its compile unit"}
		}
		return a.cu.dieAt(int(off))
	}
	for _, cu := range a.cu.parent.compileUnits {
		if off >= cu.offset && off < cu.offset+uint64(len(cu.span)) {
			return cu.dieAt(int(off - cu.offset))
		}
	}
	return DIE{}, MalformedError{Offset: off, Reason: "reference outside .debug_info"}
}

// AsRangeList decodes a range-list value. The applicable initial base
// address is the unit root's low PC when present.
func (a Attribute) AsRangeList() (*RangeList, error) {
	off, err := a.AsSectionOffset()
	if err != nil {
		return nil, err
	}
	sec := a.cu.parent.rangeSec
	if uint64(off) > uint64(len(sec)) {
		return nil, MalformedError{Offset: uint64(off), Reason: ".debug_ranges offset out of range"}
	}
	base := elf.NewFileAddr(a.cu.parent.elf, 0)
	if root, err := a.cu.Root(); err == nil && root.Contains(AttrLowPC) {
		if low, err := root.LowPC(); err == nil {
			base = low
		}
	}
	return &RangeList{cu: a.cu, data: sec[off:], baseAddress: base}, nil
}
