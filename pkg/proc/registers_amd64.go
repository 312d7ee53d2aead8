package proc

import (
	"unsafe"

	sys "golang.org/x/sys/unix"
)

// FPRegs mirrors the kernel's user_fpregs_struct for x86-64 (the FXSAVE
// area): x87 control words, eight 80-bit ST slots padded to 16 bytes, and
// sixteen XMM registers.
type FPRegs struct {
	Cwd       uint16
	Swd       uint16
	Ftw       uint16
	Fop       uint16
	Rip       uint64
	Rdp       uint64
	Mxcsr     uint32
	MxcsrMask uint32
	StSpace   [32]uint32
	XmmSpace  [64]uint32
	Padding   [24]uint32
}

// Offset of u_debugreg within the kernel's struct user on x86-64:
// user_regs_struct (216) + u_fpvalid (8 with padding) + i387 (512) +
// five longs (40) + signal/reserved (16 with padding) + three
// pointers/longs (24) + u_comm (32).
const uDebugRegOffset = 848

// RegisterID identifies one logical register of the inferior.
type RegisterID int

const (
	// General purpose registers, in user_regs_struct order.
	R15 RegisterID = iota
	R14
	R13
	R12
	Rbp
	Rbx
	R11
	R10
	R9
	R8
	Rax
	Rcx
	Rdx
	Rsi
	Rdi
	OrigRax
	Rip
	Cs
	Eflags
	Rsp
	Ss
	FsBase
	GsBase
	Ds
	Es
	Fs
	Gs

	// x87 / SSE control and status.
	Fcw
	Fsw
	Ftw
	Fop
	Frip
	Frdp
	Mxcsr
	MxcsrMask

	// ST and XMM banks.
	St0
	St1
	St2
	St3
	St4
	St5
	St6
	St7
	Xmm0
	Xmm1
	Xmm2
	Xmm3
	Xmm4
	Xmm5
	Xmm6
	Xmm7
	Xmm8
	Xmm9
	Xmm10
	Xmm11
	Xmm12
	Xmm13
	Xmm14
	Xmm15

	// Debug registers.
	Dr0
	Dr1
	Dr2
	Dr3
	Dr4
	Dr5
	Dr6
	Dr7

	registerCount
)

// RegisterFormat describes how a register's bytes are interpreted.
type RegisterFormat int

const (
	FormatUint RegisterFormat = iota
	FormatInt
	FormatFloat
	FormatVector
)

type registerBlock int

const (
	blockGPR registerBlock = iota
	blockFPR
	blockDebug
)

// RegisterInfo statically describes one register: which storage block
// mirrors it, its offset and width within the block, and its value format.
type RegisterInfo struct {
	ID     RegisterID
	Name   string
	block  registerBlock
	offset uintptr
	Size   int
	Format RegisterFormat
}

var registerInfos [registerCount]RegisterInfo

func init() {
	var gpr sys.PtraceRegs
	var fpr FPRegs

	gprOff := func(field unsafe.Pointer) uintptr {
		return uintptr(field) - uintptr(unsafe.Pointer(&gpr))
	}
	fprOff := func(field unsafe.Pointer) uintptr {
		return uintptr(field) - uintptr(unsafe.Pointer(&fpr))
	}

	def := func(id RegisterID, name string, block registerBlock, offset uintptr, size int, format RegisterFormat) {
		registerInfos[id] = RegisterInfo{ID: id, Name: name, block: block, offset: offset, Size: size, Format: format}
	}

	def(R15, "r15", blockGPR, gprOff(unsafe.Pointer(&gpr.R15)), 8, FormatUint)
	def(R14, "r14", blockGPR, gprOff(unsafe.Pointer(&gpr.R14)), 8, FormatUint)
	def(R13, "r13", blockGPR, gprOff(unsafe.Pointer(&gpr.R13)), 8, FormatUint)
	def(R12, "r12", blockGPR, gprOff(unsafe.Pointer(&gpr.R12)), 8, FormatUint)
	def(Rbp, "rbp", blockGPR, gprOff(unsafe.Pointer(&gpr.Rbp)), 8, FormatUint)
	def(Rbx, "rbx", blockGPR, gprOff(unsafe.Pointer(&gpr.Rbx)), 8, FormatUint)
	def(R11, "r11", blockGPR, gprOff(unsafe.Pointer(&gpr.R11)), 8, FormatUint)
	def(R10, "r10", blockGPR, gprOff(unsafe.Pointer(&gpr.R10)), 8, FormatUint)
	def(R9, "r9", blockGPR, gprOff(unsafe.Pointer(&gpr.R9)), 8, FormatUint)
	def(R8, "r8", blockGPR, gprOff(unsafe.Pointer(&gpr.R8)), 8, FormatUint)
	def(Rax, "rax", blockGPR, gprOff(unsafe.Pointer(&gpr.Rax)), 8, FormatUint)
	def(Rcx, "rcx", blockGPR, gprOff(unsafe.Pointer(&gpr.Rcx)), 8, FormatUint)
	def(Rdx, "rdx", blockGPR, gprOff(unsafe.Pointer(&gpr.Rdx)), 8, FormatUint)
	def(Rsi, "rsi", blockGPR, gprOff(unsafe.Pointer(&gpr.Rsi)), 8, FormatUint)
	def(Rdi, "rdi", blockGPR, gprOff(unsafe.Pointer(&gpr.Rdi)), 8, FormatUint)
	def(OrigRax, "orig_rax", blockGPR, gprOff(unsafe.Pointer(&gpr.Orig_rax)), 8, FormatUint)
	def(Rip, "rip", blockGPR, gprOff(unsafe.Pointer(&gpr.Rip)), 8, FormatUint)
	def(Cs, "cs", blockGPR, gprOff(unsafe.Pointer(&gpr.Cs)), 8, FormatUint)
	def(Eflags, "eflags", blockGPR, gprOff(unsafe.Pointer(&gpr.Eflags)), 8, FormatUint)
	def(Rsp, "rsp", blockGPR, gprOff(unsafe.Pointer(&gpr.Rsp)), 8, FormatUint)
	def(Ss, "ss", blockGPR, gprOff(unsafe.Pointer(&gpr.Ss)), 8, FormatUint)
	def(FsBase, "fs_base", blockGPR, gprOff(unsafe.Pointer(&gpr.Fs_base)), 8, FormatUint)
	def(GsBase, "gs_base", blockGPR, gprOff(unsafe.Pointer(&gpr.Gs_base)), 8, FormatUint)
	def(Ds, "ds", blockGPR, gprOff(unsafe.Pointer(&gpr.Ds)), 8, FormatUint)
	def(Es, "es", blockGPR, gprOff(unsafe.Pointer(&gpr.Es)), 8, FormatUint)
	def(Fs, "fs", blockGPR, gprOff(unsafe.Pointer(&gpr.Fs)), 8, FormatUint)
	def(Gs, "gs", blockGPR, gprOff(unsafe.Pointer(&gpr.Gs)), 8, FormatUint)

	def(Fcw, "fcw", blockFPR, fprOff(unsafe.Pointer(&fpr.Cwd)), 2, FormatUint)
	def(Fsw, "fsw", blockFPR, fprOff(unsafe.Pointer(&fpr.Swd)), 2, FormatUint)
	def(Ftw, "ftw", blockFPR, fprOff(unsafe.Pointer(&fpr.Ftw)), 2, FormatUint)
	def(Fop, "fop", blockFPR, fprOff(unsafe.Pointer(&fpr.Fop)), 2, FormatUint)
	def(Frip, "frip", blockFPR, fprOff(unsafe.Pointer(&fpr.Rip)), 8, FormatUint)
	def(Frdp, "frdp", blockFPR, fprOff(unsafe.Pointer(&fpr.Rdp)), 8, FormatUint)
	def(Mxcsr, "mxcsr", blockFPR, fprOff(unsafe.Pointer(&fpr.Mxcsr)), 4, FormatUint)
	def(MxcsrMask, "mxcsrmask", blockFPR, fprOff(unsafe.Pointer(&fpr.MxcsrMask)), 4, FormatUint)

	stBase := fprOff(unsafe.Pointer(&fpr.StSpace))
	for i := 0; i < 8; i++ {
		def(St0+RegisterID(i), "st"+string(rune('0'+i)), blockFPR, stBase+uintptr(i)*16, 16, FormatFloat)
	}
	xmmBase := fprOff(unsafe.Pointer(&fpr.XmmSpace))
	for i := 0; i < 16; i++ {
		name := "xmm" + itoa(i)
		def(Xmm0+RegisterID(i), name, blockFPR, xmmBase+uintptr(i)*16, 16, FormatVector)
	}

	for i := 0; i < 8; i++ {
		def(Dr0+RegisterID(i), "dr"+string(rune('0'+i)), blockDebug, uintptr(i)*8, 8, FormatUint)
	}
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

// RegisterInfoByID returns the descriptor for a register.
func RegisterInfoByID(id RegisterID) RegisterInfo {
	return registerInfos[id]
}
