package proc

import (
	"unsafe"

	sys "golang.org/x/sys/unix"

	"github.com/mvkh/linux-debugger/pkg/elf"
)

// Registers mirrors the tracee's general purpose, floating point and debug
// register blocks. The mirror always equals the last value exchanged with
// the kernel: reads are served from it, and every write is pushed to the
// kernel through the owning process before returning.
type Registers struct {
	proc *Process

	gpr   sys.PtraceRegs
	fpr   FPRegs
	debug [8]uint64
}

func (r *Registers) blockBytes(block registerBlock) []byte {
	switch block {
	case blockGPR:
		return unsafe.Slice((*byte)(unsafe.Pointer(&r.gpr)), unsafe.Sizeof(r.gpr))
	case blockFPR:
		return unsafe.Slice((*byte)(unsafe.Pointer(&r.fpr)), unsafe.Sizeof(r.fpr))
	default:
		return unsafe.Slice((*byte)(unsafe.Pointer(&r.debug[0])), 64)
	}
}

// ReadRaw returns a copy of the register's bytes from the mirror.
func (r *Registers) ReadRaw(id RegisterID) []byte {
	info := RegisterInfoByID(id)
	b := r.blockBytes(info.block)
	out := make([]byte, info.Size)
	copy(out, b[info.offset:int(info.offset)+info.Size])
	return out
}

// ReadUint64 reads a register whose width is eight bytes.
func (r *Registers) ReadUint64(id RegisterID) (uint64, error) {
	return ReadRegisterAs[uint64](r, id)
}

// ReadRegisterAs reads a register as the given fixed-size type. It fails
// when the type's width disagrees with the register descriptor.
func ReadRegisterAs[T any](r *Registers, id RegisterID) (T, error) {
	var v T
	info := RegisterInfoByID(id)
	if int(unsafe.Sizeof(v)) != info.Size {
		return v, RegisterTypeMismatchError{Register: info.Name, Want: info.Size, Got: int(unsafe.Sizeof(v))}
	}
	b := r.blockBytes(info.block)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&v)), info.Size), b[info.offset:])
	return v, nil
}

// WriteUint64 writes a register whose width is eight bytes and pushes the
// change to the kernel.
func (r *Registers) WriteUint64(id RegisterID, value uint64) error {
	return WriteRegisterAs(r, id, value)
}

// WriteRegisterAs updates the mirror and propagates the containing block
// (or, for debug registers, the single word) to the kernel.
func WriteRegisterAs[T any](r *Registers, id RegisterID, value T) error {
	info := RegisterInfoByID(id)
	if int(unsafe.Sizeof(value)) != info.Size {
		return RegisterTypeMismatchError{Register: info.Name, Want: info.Size, Got: int(unsafe.Sizeof(value))}
	}
	b := r.blockBytes(info.block)
	copy(b[info.offset:], unsafe.Slice((*byte)(unsafe.Pointer(&value)), info.Size))
	return r.flush(info)
}

func (r *Registers) flush(info RegisterInfo) error {
	if r.proc == nil {
		return nil
	}
	switch info.block {
	case blockGPR:
		return r.proc.writeGPRs(&r.gpr)
	case blockFPR:
		return r.proc.writeFPRs(&r.fpr)
	default:
		i := int(info.offset / 8)
		return r.proc.writeUserArea(uDebugRegOffset+uintptr(i)*8, r.debug[i])
	}
}

// PC returns the mirrored program counter.
func (r *Registers) PC() elf.VirtAddr {
	return elf.VirtAddr(r.gpr.Rip)
}
