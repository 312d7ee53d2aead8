// Package elf loads ELF64 images and answers symbol and section queries
// against them. The image is memory-mapped read-only; all parsed views
// (section headers, symbols, string tables) point into the mapping and stay
// valid until Close.
package elf

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/ianlancetaylor/demangle"
	sys "golang.org/x/sys/unix"
)

const (
	ehdrSize = 64
	shdrSize = 64
	symSize  = 24
)

type symRange struct {
	low, high uint64
	sym       *elf.Sym64
}

// File is a parsed, memory-mapped ELF64 image.
type File struct {
	path string
	data []byte

	header   elf.Header64
	sections []elf.Section64

	sectionMap map[string]*elf.Section64

	symbols       []elf.Sym64
	symbolNameMap map[string][]*elf.Sym64
	symbolRanges  []symRange
	symbolStrtab  *elf.Section64

	loadBias VirtAddr
	loaded   bool
}

// Open memory-maps the ELF image at path and parses its headers, section
// table and symbol table. Only little-endian ELF64 executables and shared
// objects are accepted.
func Open(path string) (*File, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer fd.Close()

	fi, err := fd.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat %s: %w", path, err)
	}
	data, err := sys.Mmap(int(fd.Fd()), 0, int(fi.Size()), sys.PROT_READ, sys.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("could not mmap %s: %w", path, err)
	}

	f := &File{path: path, data: data}
	if err := f.parse(); err != nil {
		sys.Munmap(data)
		return nil, err
	}
	return f, nil
}

// Close unmaps the image. All parsed views become invalid.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}
	err := sys.Munmap(f.data)
	f.data = nil
	return err
}

// Path returns the path the image was opened from.
func (f *File) Path() string { return f.path }

// Header returns the parsed ELF header.
func (f *File) Header() *elf.Header64 { return &f.header }

// LoadBias returns the runtime delta of the image relative to its
// link-time addresses, zero until NotifyLoaded.
func (f *File) LoadBias() VirtAddr { return f.loadBias }

// NotifyLoaded records the load bias once the mapped base of the image is
// known. Until this is called, file/virtual address conversions fail with
// ErrNotLoaded.
func (f *File) NotifyLoaded(bias VirtAddr) {
	f.loadBias = bias
	f.loaded = true
}

func (f *File) parse() error {
	if len(f.data) < ehdrSize {
		return fmt.Errorf("%s: file too small for an ELF header", f.path)
	}
	ident := f.data[:elf.EI_NIDENT]
	if ident[0] != 0x7f || ident[1] != 'E' || ident[2] != 'L' || ident[3] != 'F' {
		return fmt.Errorf("%s: bad ELF magic", f.path)
	}
	if elf.Class(ident[elf.EI_CLASS]) != elf.ELFCLASS64 {
		return fmt.Errorf("%s: only 64-bit ELF is supported", f.path)
	}
	if elf.Data(ident[elf.EI_DATA]) != elf.ELFDATA2LSB {
		return fmt.Errorf("%s: only little-endian ELF is supported", f.path)
	}

	le := binary.LittleEndian
	hdr := &f.header
	copy(hdr.Ident[:], ident)
	hdr.Type = le.Uint16(f.data[16:])
	hdr.Machine = le.Uint16(f.data[18:])
	hdr.Version = le.Uint32(f.data[20:])
	hdr.Entry = le.Uint64(f.data[24:])
	hdr.Phoff = le.Uint64(f.data[32:])
	hdr.Shoff = le.Uint64(f.data[40:])
	hdr.Flags = le.Uint32(f.data[48:])
	hdr.Ehsize = le.Uint16(f.data[52:])
	hdr.Phentsize = le.Uint16(f.data[54:])
	hdr.Phnum = le.Uint16(f.data[56:])
	hdr.Shentsize = le.Uint16(f.data[58:])
	hdr.Shnum = le.Uint16(f.data[60:])
	hdr.Shstrndx = le.Uint16(f.data[62:])

	switch elf.Type(hdr.Type) {
	case elf.ET_EXEC, elf.ET_DYN:
	default:
		return fmt.Errorf("%s: not an executable or shared object", f.path)
	}

	if err := f.parseSectionHeaders(); err != nil {
		return err
	}
	f.buildSectionMap()
	if err := f.parseSymbolTable(); err != nil {
		return err
	}
	f.buildSymbolMaps()
	return nil
}

func (f *File) parseSectionHeaders() error {
	off := f.header.Shoff
	num := uint64(f.header.Shnum)
	if off == 0 || num == 0 {
		return nil
	}
	if off+num*shdrSize > uint64(len(f.data)) {
		return fmt.Errorf("%s: section header table out of bounds", f.path)
	}
	le := binary.LittleEndian
	f.sections = make([]elf.Section64, num)
	for i := range f.sections {
		b := f.data[off+uint64(i)*shdrSize:]
		sh := &f.sections[i]
		sh.Name = le.Uint32(b[0:])
		sh.Type = le.Uint32(b[4:])
		sh.Flags = le.Uint64(b[8:])
		sh.Addr = le.Uint64(b[16:])
		sh.Off = le.Uint64(b[24:])
		sh.Size = le.Uint64(b[32:])
		sh.Link = le.Uint32(b[40:])
		sh.Info = le.Uint32(b[44:])
		sh.Addralign = le.Uint64(b[48:])
		sh.Entsize = le.Uint64(b[56:])
	}
	return nil
}

func (f *File) buildSectionMap() {
	f.sectionMap = make(map[string]*elf.Section64, len(f.sections))
	for i := range f.sections {
		f.sectionMap[f.SectionName(int(f.sections[i].Name))] = &f.sections[i]
	}
}

// SectionName resolves an index into the section-header string table.
func (f *File) SectionName(index int) string {
	if int(f.header.Shstrndx) >= len(f.sections) {
		return ""
	}
	strtab := &f.sections[f.header.Shstrndx]
	return f.stringAt(strtab, uint64(index))
}

func (f *File) stringAt(strtab *elf.Section64, index uint64) string {
	if strtab == nil || strtab.Off+index >= uint64(len(f.data)) {
		return ""
	}
	b := f.data[strtab.Off+index : strtab.Off+strtab.Size]
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// GetString resolves an index into the symbol string table.
func (f *File) GetString(index uint64) string {
	return f.stringAt(f.symbolStrtab, index)
}

// Section returns the header of the named section.
func (f *File) Section(name string) (*elf.Section64, bool) {
	sh, ok := f.sectionMap[name]
	return sh, ok
}

// SectionContents returns the raw bytes of the named section, or nil when
// the section is absent or occupies no file space.
func (f *File) SectionContents(name string) []byte {
	sh, ok := f.sectionMap[name]
	if !ok || elf.SectionType(sh.Type) == elf.SHT_NOBITS {
		return nil
	}
	if sh.Off+sh.Size > uint64(len(f.data)) {
		return nil
	}
	return f.data[sh.Off : sh.Off+sh.Size]
}

// SectionOffset returns the named section's byte offset in the image.
func (f *File) SectionOffset(name string) (FileOffset, bool) {
	sh, ok := f.sectionMap[name]
	if !ok {
		return FileOffset{}, false
	}
	return FileOffset{elf: f, off: sh.Off}, true
}

// SectionStartAddress returns the link-time start address of the named
// section.
func (f *File) SectionStartAddress(name string) (FileAddr, bool) {
	sh, ok := f.sectionMap[name]
	if !ok {
		return FileAddr{}, false
	}
	return FileAddr{elf: f, addr: sh.Addr}, true
}

// sectionContainingFileAddr returns the loadable section whose
// link-time address range contains addr.
func (f *File) sectionContainingFileAddr(addr uint64) *elf.Section64 {
	for i := range f.sections {
		sh := &f.sections[i]
		if sh.Flags&uint64(elf.SHF_ALLOC) == 0 {
			continue
		}
		if sh.Addr <= addr && addr < sh.Addr+sh.Size {
			return sh
		}
	}
	return nil
}

// SectionContainingAddress returns the section containing the given file
// address, or nil.
func (f *File) SectionContainingAddress(addr FileAddr) *elf.Section64 {
	if addr.elf != f {
		return nil
	}
	return f.sectionContainingFileAddr(addr.addr)
}

// SectionContainingVirtAddress is the virtual-address form of
// SectionContainingAddress.
func (f *File) SectionContainingVirtAddress(addr VirtAddr) *elf.Section64 {
	fa, err := addr.ToFileAddr(f)
	if err != nil {
		return nil
	}
	return f.sectionContainingFileAddr(fa.addr)
}

func (f *File) parseSymbolTable() error {
	var symtab *elf.Section64
	for i := range f.sections {
		switch elf.SectionType(f.sections[i].Type) {
		case elf.SHT_SYMTAB:
			symtab = &f.sections[i]
		case elf.SHT_DYNSYM:
			if symtab == nil {
				symtab = &f.sections[i]
			}
		}
	}
	if symtab == nil {
		return nil
	}
	if int(symtab.Link) < len(f.sections) {
		f.symbolStrtab = &f.sections[symtab.Link]
	}

	count := symtab.Size / symSize
	if symtab.Off+count*symSize > uint64(len(f.data)) {
		return fmt.Errorf("%s: symbol table out of bounds", f.path)
	}
	le := binary.LittleEndian
	f.symbols = make([]elf.Sym64, count)
	for i := range f.symbols {
		b := f.data[symtab.Off+uint64(i)*symSize:]
		s := &f.symbols[i]
		s.Name = le.Uint32(b[0:])
		s.Info = b[4]
		s.Other = b[5]
		s.Shndx = le.Uint16(b[6:])
		s.Value = le.Uint64(b[8:])
		s.Size = le.Uint64(b[16:])
	}
	return nil
}

func (f *File) buildSymbolMaps() {
	f.symbolNameMap = make(map[string][]*elf.Sym64)
	for i := range f.symbols {
		s := &f.symbols[i]
		name := f.GetString(uint64(s.Name))
		if name == "" {
			continue
		}
		f.symbolNameMap[name] = append(f.symbolNameMap[name], s)
		if dem := demangle.Filter(name); dem != name {
			f.symbolNameMap[dem] = append(f.symbolNameMap[dem], s)
		}
		if s.Value != 0 && s.Size != 0 {
			f.symbolRanges = append(f.symbolRanges, symRange{low: s.Value, high: s.Value + s.Size, sym: s})
		}
	}
	sort.Slice(f.symbolRanges, func(i, j int) bool {
		return f.symbolRanges[i].low < f.symbolRanges[j].low
	})
}

// SymbolsByName returns all symbols whose raw or demangled name matches.
func (f *File) SymbolsByName(name string) []*elf.Sym64 {
	return f.symbolNameMap[name]
}

// SymbolAtAddress returns the symbol whose value equals the given file
// address. Only symbols with a non-zero value and size are considered.
func (f *File) SymbolAtAddress(addr FileAddr) (*elf.Sym64, bool) {
	if addr.elf != f {
		return nil, false
	}
	i := sort.Search(len(f.symbolRanges), func(i int) bool {
		return f.symbolRanges[i].low >= addr.addr
	})
	if i < len(f.symbolRanges) && f.symbolRanges[i].low == addr.addr {
		return f.symbolRanges[i].sym, true
	}
	return nil, false
}

// SymbolAtVirtAddress is the virtual-address form of SymbolAtAddress.
func (f *File) SymbolAtVirtAddress(addr VirtAddr) (*elf.Sym64, bool) {
	fa, err := addr.ToFileAddr(f)
	if err != nil {
		return nil, false
	}
	return f.SymbolAtAddress(fa)
}

// SymbolContainingAddress returns the symbol whose
// [st_value, st_value+st_size) range contains the given file address.
func (f *File) SymbolContainingAddress(addr FileAddr) (*elf.Sym64, bool) {
	if addr.elf != f {
		return nil, false
	}
	// Upper bound on low, then check the predecessor's range.
	i := sort.Search(len(f.symbolRanges), func(i int) bool {
		return f.symbolRanges[i].low > addr.addr
	})
	if i == 0 {
		return nil, false
	}
	r := f.symbolRanges[i-1]
	if r.low <= addr.addr && addr.addr < r.high {
		return r.sym, true
	}
	return nil, false
}

// SymbolContainingVirtAddress is the virtual-address form of
// SymbolContainingAddress.
func (f *File) SymbolContainingVirtAddress(addr VirtAddr) (*elf.Sym64, bool) {
	fa, err := addr.ToFileAddr(f)
	if err != nil {
		return nil, false
	}
	return f.SymbolContainingAddress(fa)
}
