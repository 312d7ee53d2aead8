package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testImage assembles a minimal ELF64 executable with a .text and .data
// section, a symbol table holding main and g, and the string tables to
// back them.
func testImage(t *testing.T) string {
	t.Helper()

	le := binary.LittleEndian
	var body bytes.Buffer

	text := bytes.Repeat([]byte{0x90}, 0x40)
	data := make([]byte, 0x10)
	shstrtab := []byte("\x00.text\x00.data\x00.shstrtab\x00.symtab\x00.strtab\x00")
	strtab := []byte("\x00main\x00g\x00")

	sym := func(name uint32, info uint8, shndx uint16, value, size uint64) []byte {
		b := make([]byte, 24)
		le.PutUint32(b[0:], name)
		b[4] = info
		b[6] = byte(shndx)
		le.PutUint64(b[8:], value)
		le.PutUint64(b[16:], size)
		return b
	}
	var symtab bytes.Buffer
	symtab.Write(sym(0, 0, 0, 0, 0))
	symtab.Write(sym(1, byte(elf.STB_GLOBAL)<<4|byte(elf.STT_FUNC), 1, 0x401000, 0x20))
	symtab.Write(sym(6, byte(elf.STB_GLOBAL)<<4|byte(elf.STT_OBJECT), 2, 0x402000, 4))

	type section struct {
		name      uint32
		typ       uint32
		flags     uint64
		addr      uint64
		content   []byte
		link      uint32
		entsize   uint64
		bodyStart int
	}
	sections := []*section{
		{}, // SHN_UNDEF
		{name: 1, typ: uint32(elf.SHT_PROGBITS), flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), addr: 0x401000, content: text},
		{name: 7, typ: uint32(elf.SHT_PROGBITS), flags: uint64(elf.SHF_ALLOC | elf.SHF_WRITE), addr: 0x402000, content: data},
		{name: 13, typ: uint32(elf.SHT_STRTAB), content: shstrtab},
		{name: 23, typ: uint32(elf.SHT_SYMTAB), content: symtab.Bytes(), link: 5, entsize: 24},
		{name: 31, typ: uint32(elf.SHT_STRTAB), content: strtab},
	}

	const ehdrLen = 64
	for _, s := range sections {
		s.bodyStart = ehdrLen + body.Len()
		body.Write(s.content)
	}
	shoff := ehdrLen + body.Len()

	var shdrs bytes.Buffer
	for _, s := range sections {
		b := make([]byte, 64)
		le.PutUint32(b[0:], s.name)
		le.PutUint32(b[4:], s.typ)
		le.PutUint64(b[8:], s.flags)
		le.PutUint64(b[16:], s.addr)
		le.PutUint64(b[24:], uint64(s.bodyStart))
		le.PutUint64(b[32:], uint64(len(s.content)))
		le.PutUint32(b[40:], s.link)
		le.PutUint64(b[56:], s.entsize)
		shdrs.Write(b)
	}

	ehdr := make([]byte, ehdrLen)
	copy(ehdr, []byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), 1})
	le.PutUint16(ehdr[16:], uint16(elf.ET_EXEC))
	le.PutUint16(ehdr[18:], uint16(elf.EM_X86_64))
	le.PutUint32(ehdr[20:], 1)
	le.PutUint64(ehdr[24:], 0x401000) // entry
	le.PutUint64(ehdr[40:], uint64(shoff))
	le.PutUint16(ehdr[52:], ehdrLen)
	le.PutUint16(ehdr[58:], 64)
	le.PutUint16(ehdr[60:], uint16(len(sections)))
	le.PutUint16(ehdr[62:], 3) // .shstrtab

	path := filepath.Join(t.TempDir(), "fixture.elf")
	var image bytes.Buffer
	image.Write(ehdr)
	image.Write(body.Bytes())
	image.Write(shdrs.Bytes())
	require.NoError(t, os.WriteFile(path, image.Bytes(), 0o755))
	return path
}

func TestOpenParsesSections(t *testing.T) {
	f, err := Open(testImage(t))
	require.NoError(t, err)
	defer f.Close()

	text, ok := f.Section(".text")
	require.True(t, ok)
	require.Equal(t, uint64(0x401000), text.Addr)
	require.Len(t, f.SectionContents(".text"), 0x40)

	start, ok := f.SectionStartAddress(".data")
	require.True(t, ok)
	require.Equal(t, uint64(0x402000), start.Addr())
}

func TestOpenRejectsNonElf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.elf")
	require.NoError(t, os.WriteFile(path, []byte("definitely not an ELF file, just text"), 0o644))
	_, err := Open(path)
	require.Error(t, err)
}

func TestAddressConversionRequiresLoadNotification(t *testing.T) {
	f, err := Open(testImage(t))
	require.NoError(t, err)
	defer f.Close()

	_, err = NewFileAddr(f, 0x401000).ToVirtAddr()
	require.ErrorIs(t, err, ErrNotLoaded)
	_, err = VirtAddr(0x401000).ToFileAddr(f)
	require.ErrorIs(t, err, ErrNotLoaded)
}

func TestAddressConversionRoundTrip(t *testing.T) {
	f, err := Open(testImage(t))
	require.NoError(t, err)
	defer f.Close()

	f.NotifyLoaded(0x10000)
	for _, fileAddr := range []uint64{0x401000, 0x401010, 0x40103f, 0x402000} {
		va, err := NewFileAddr(f, fileAddr).ToVirtAddr()
		require.NoError(t, err)
		require.Equal(t, VirtAddr(fileAddr+0x10000), va)

		back, err := va.ToFileAddr(f)
		require.NoError(t, err)
		require.Equal(t, fileAddr, back.Addr())
	}

	// Outside any loadable section.
	_, err = NewFileAddr(f, 0x500000).ToVirtAddr()
	require.Error(t, err)
	_, err = VirtAddr(0x999999).ToFileAddr(f)
	require.Error(t, err)
}

func TestSymbolLookups(t *testing.T) {
	f, err := Open(testImage(t))
	require.NoError(t, err)
	defer f.Close()

	syms := f.SymbolsByName("main")
	require.Len(t, syms, 1)
	require.Equal(t, elf.STT_FUNC, elf.ST_TYPE(syms[0].Info))
	require.Equal(t, uint64(0x401000), syms[0].Value)

	sym, ok := f.SymbolAtAddress(NewFileAddr(f, 0x401000))
	require.True(t, ok)
	require.Equal(t, "main", f.GetString(uint64(sym.Name)))

	sym, ok = f.SymbolContainingAddress(NewFileAddr(f, 0x401010))
	require.True(t, ok)
	require.Equal(t, "main", f.GetString(uint64(sym.Name)))

	_, ok = f.SymbolContainingAddress(NewFileAddr(f, 0x401030))
	require.False(t, ok)

	sym, ok = f.SymbolContainingAddress(NewFileAddr(f, 0x402002))
	require.True(t, ok)
	require.Equal(t, "g", f.GetString(uint64(sym.Name)))
}
