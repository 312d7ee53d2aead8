package elf

import (
	"errors"
	"fmt"
)

// ErrNotLoaded is returned when converting between file and virtual
// addresses before the loader has reported the mapped base of the image.
var ErrNotLoaded = errors.New("load bias not known yet")

// VirtAddr is an address in the inferior's address space.
type VirtAddr uint64

// Add returns the address offset by the given amount.
func (a VirtAddr) Add(offset int64) VirtAddr {
	return VirtAddr(int64(a) + offset)
}

// ToFileAddr translates the address into f's link-time layout. The
// translation is only defined for addresses inside a loadable section of f.
func (a VirtAddr) ToFileAddr(f *File) (FileAddr, error) {
	if !f.loaded {
		return FileAddr{}, ErrNotLoaded
	}
	if a < f.loadBias {
		return FileAddr{}, fmt.Errorf("address %#x is below the load bias of %s", uint64(a), f.path)
	}
	unbiased := uint64(a - f.loadBias)
	if sec := f.sectionContainingFileAddr(unbiased); sec == nil {
		return FileAddr{}, fmt.Errorf("address %#x is not in a loadable section of %s", uint64(a), f.path)
	}
	return FileAddr{elf: f, addr: unbiased}, nil
}

// FileAddr is an address in the link-time virtual-address layout of a
// specific ELF image, before any load bias is applied. Comparisons are only
// meaningful between addresses of the same image.
type FileAddr struct {
	elf  *File
	addr uint64
}

// NewFileAddr ties addr to the image f.
func NewFileAddr(f *File, addr uint64) FileAddr {
	return FileAddr{elf: f, addr: addr}
}

// Addr returns the raw address value.
func (a FileAddr) Addr() uint64 { return a.addr }

// ElfFile returns the image the address belongs to, or nil for the zero
// FileAddr.
func (a FileAddr) ElfFile() *File { return a.elf }

// Add returns the address offset by the given amount, in the same image.
func (a FileAddr) Add(offset int64) FileAddr {
	return FileAddr{elf: a.elf, addr: uint64(int64(a.addr) + offset)}
}

// ToVirtAddr translates the address into the inferior's address space.
// It fails before NotifyLoaded and for addresses outside loadable sections.
func (a FileAddr) ToVirtAddr() (VirtAddr, error) {
	if a.elf == nil {
		return 0, errors.New("file address has no associated ELF")
	}
	if !a.elf.loaded {
		return 0, ErrNotLoaded
	}
	if sec := a.elf.sectionContainingFileAddr(a.addr); sec == nil {
		return 0, fmt.Errorf("address %#x is not in a loadable section of %s", a.addr, a.elf.path)
	}
	return a.elf.loadBias + VirtAddr(a.addr), nil
}

// Before reports whether a sorts before b. Both addresses must belong to
// the same image.
func (a FileAddr) Before(b FileAddr) bool {
	return a.elf == b.elf && a.addr < b.addr
}

// FileOffset is a raw byte offset into an ELF image on disk.
type FileOffset struct {
	elf *File
	off uint64
}

// NewFileOffset ties off to the image f.
func NewFileOffset(f *File, off uint64) FileOffset {
	return FileOffset{elf: f, off: off}
}

// Off returns the raw offset value.
func (o FileOffset) Off() uint64 { return o.off }

// ElfFile returns the image the offset belongs to.
func (o FileOffset) ElfFile() *File { return o.elf }
