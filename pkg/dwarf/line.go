package dwarf

import (
	"path"

	"github.com/mvkh/linux-debugger/pkg/elf"
)

// LineEntry is one row of a unit's line-number matrix.
type LineEntry struct {
	Address     elf.FileAddr
	FileName    string
	Line        int
	Column      int
	IsStmt      bool
	EndSequence bool
}

// Lines decodes the unit's line-number program. The decoded matrix is
// cached on the unit.
func (cu *CompileUnit) Lines() ([]LineEntry, error) {
	if cu.linesParsed {
		return cu.lines, cu.linesErr
	}
	cu.linesParsed = true
	cu.lines, cu.linesErr = cu.decodeLineProgram()
	return cu.lines, cu.linesErr
}

func (cu *CompileUnit) decodeLineProgram() ([]LineEntry, error) {
	root, err := cu.Root()
	if err != nil {
		return nil, err
	}
	at, ok := root.Attr(AttrStmtList)
	if !ok {
		return nil, nil
	}
	off, err := at.AsSectionOffset()
	if err != nil {
		return nil, err
	}
	sec := cu.parent.line
	if uint64(off) >= uint64(len(sec)) {
		return nil, MalformedError{Offset: uint64(off), Reason: ".debug_line offset out of range"}
	}

	compDir := ""
	if at, ok := root.Attr(AttrCompDir); ok {
		compDir, _ = at.AsString()
	}

	b := makeBuf(sec[off:], 0)
	unitLength := b.uint32()
	if unitLength == 0xffffffff {
		return nil, MalformedError{Offset: uint64(off), Reason: "64-bit DWARF line table is not supported"}
	}
	end := b.off + int(unitLength)
	version := b.uint16()
	if version < 2 || version > 4 {
		return nil, MalformedError{Offset: uint64(off), Reason: "unsupported line table version"}
	}
	headerLength := b.uint32()
	programStart := b.off + int(headerLength)
	minInstLength := int(b.uint8())
	if version >= 4 {
		// maximum_operations_per_instruction; VLIW only, ignored.
		b.uint8()
	}
	defaultIsStmt := b.uint8() != 0
	lineBase := int(int8(b.uint8()))
	lineRange := int(b.uint8())
	opcodeBase := int(b.uint8())
	stdOpcodeLengths := make([]int, opcodeBase-1)
	for i := range stdOpcodeLengths {
		stdOpcodeLengths[i] = int(b.uint8())
	}
	if b.err != nil {
		return nil, b.err
	}

	var includeDirs []string
	for {
		dir := b.cstring()
		if b.err != nil {
			return nil, b.err
		}
		if dir == "" {
			break
		}
		includeDirs = append(includeDirs, dir)
	}

	resolve := func(name string, dirIndex uint64) string {
		if path.IsAbs(name) {
			return name
		}
		dir := compDir
		if dirIndex > 0 && int(dirIndex) <= len(includeDirs) {
			dir = includeDirs[dirIndex-1]
			if !path.IsAbs(dir) {
				dir = path.Join(compDir, dir)
			}
		}
		return path.Join(dir, name)
	}

	var fileNames []string
	for {
		name := b.cstring()
		if b.err != nil {
			return nil, b.err
		}
		if name == "" {
			break
		}
		dirIndex := b.uleb()
		b.uleb() // modification time
		b.uleb() // file length
		fileNames = append(fileNames, resolve(name, dirIndex))
	}
	if b.err != nil {
		return nil, b.err
	}

	fileName := func(index uint64) string {
		if index == 0 || int(index) > len(fileNames) {
			return ""
		}
		return fileNames[index-1]
	}

	// Run the state machine.
	var (
		entries []LineEntry
		address uint64
		file    uint64 = 1
		line           = 1
		column         = 0
		isStmt         = defaultIsStmt
	)
	reset := func() {
		address, file, line, column, isStmt = 0, 1, 1, 0, defaultIsStmt
	}
	emit := func(endSeq bool) {
		entries = append(entries, LineEntry{
			Address:     elf.NewFileAddr(cu.parent.elf, address),
			FileName:    fileName(file),
			Line:        line,
			Column:      column,
			IsStmt:      isStmt,
			EndSequence: endSeq,
		})
	}

	b.off = programStart
	for b.off < end {
		opcode := int(b.uint8())
		if b.err != nil {
			return nil, b.err
		}
		switch {
		case opcode >= opcodeBase:
			adjusted := opcode - opcodeBase
			address += uint64((adjusted / lineRange) * minInstLength)
			line += lineBase + adjusted%lineRange
			emit(false)
		case opcode == 0:
			length := int(b.uleb())
			instrEnd := b.off + length
			sub := b.uint8()
			switch sub {
			case 0x01: // end sequence
				emit(true)
				reset()
			case 0x02: // set address
				address = b.uint64()
			case 0x03: // define file
				name := b.cstring()
				dirIndex := b.uleb()
				b.uleb()
				b.uleb()
				fileNames = append(fileNames, resolve(name, dirIndex))
			default:
				// Unknown extended opcode, skip its operands.
			}
			if b.err != nil {
				return nil, b.err
			}
			b.off = instrEnd
		default:
			switch opcode {
			case 0x01: // copy
				emit(false)
			case 0x02: // advance pc
				address += b.uleb() * uint64(minInstLength)
			case 0x03: // advance line
				line += int(b.sleb())
			case 0x04: // set file
				file = b.uleb()
			case 0x05: // set column
				column = int(b.uleb())
			case 0x06: // negate stmt
				isStmt = !isStmt
			case 0x07: // basic block
			case 0x08: // const add pc
				address += uint64(((255 - opcodeBase) / lineRange) * minInstLength)
			case 0x09: // fixed advance pc
				address += uint64(b.uint16())
			case 0x0a, 0x0b: // prologue end, epilogue begin
			case 0x0c: // set isa
				b.uleb()
			default:
				// Unknown standard opcode: skip operands per the header.
				for i := 0; i < stdOpcodeLengths[opcode-1]; i++ {
					b.uleb()
				}
			}
			if b.err != nil {
				return nil, b.err
			}
		}
	}
	return entries, nil
}

// LineEntryForAddress returns the line-table row covering addr.
func (cu *CompileUnit) LineEntryForAddress(addr elf.FileAddr) (LineEntry, bool) {
	lines, err := cu.Lines()
	if err != nil {
		return LineEntry{}, false
	}
	for i := 0; i+1 < len(lines); i++ {
		if lines[i].EndSequence {
			continue
		}
		if !addr.Before(lines[i].Address) && addr.Before(lines[i+1].Address) {
			return lines[i], true
		}
	}
	return LineEntry{}, false
}
