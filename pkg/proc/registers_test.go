package proc

import (
	"testing"
	"unsafe"

	sys "golang.org/x/sys/unix"
)

func TestRegisterDescriptors(t *testing.T) {
	gprSize := int(unsafe.Sizeof(sys.PtraceRegs{}))
	fprSize := int(unsafe.Sizeof(FPRegs{}))
	if fprSize != 512 {
		t.Fatalf("FPRegs is %d bytes, the FXSAVE area is 512", fprSize)
	}

	for id := RegisterID(0); id < registerCount; id++ {
		info := RegisterInfoByID(id)
		if info.Name == "" {
			t.Fatalf("register %d has no descriptor", id)
		}
		var blockSize int
		switch info.block {
		case blockGPR:
			blockSize = gprSize
		case blockFPR:
			blockSize = fprSize
		case blockDebug:
			blockSize = 64
		}
		if int(info.offset)+info.Size > blockSize {
			t.Errorf("register %s [%d,%d) overflows its %d-byte block",
				info.Name, info.offset, int(info.offset)+info.Size, blockSize)
		}
	}

	if RegisterInfoByID(Rip).offset != unsafe.Offsetof(sys.PtraceRegs{}.Rip) {
		t.Error("rip descriptor does not match user_regs_struct")
	}
	if RegisterInfoByID(OrigRax).offset != unsafe.Offsetof(sys.PtraceRegs{}.Orig_rax) {
		t.Error("orig_rax descriptor does not match user_regs_struct")
	}
	if RegisterInfoByID(Xmm15).Size != 16 || RegisterInfoByID(Xmm15).Format != FormatVector {
		t.Error("xmm15 should be a 16-byte vector register")
	}
}

func TestRegisterMirrorReadWrite(t *testing.T) {
	var r Registers // no process attached, writes stay in the mirror

	if err := r.WriteUint64(Rax, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	v, err := r.ReadUint64(Rax)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xdeadbeef {
		t.Errorf("rax = %#x, want 0xdeadbeef", v)
	}
	if r.gpr.Rax != 0xdeadbeef {
		t.Errorf("mirror struct not updated: %#x", r.gpr.Rax)
	}

	if err := WriteRegisterAs(&r, Fcw, uint16(0x37f)); err != nil {
		t.Fatal(err)
	}
	cw, err := ReadRegisterAs[uint16](&r, Fcw)
	if err != nil {
		t.Fatal(err)
	}
	if cw != 0x37f {
		t.Errorf("fcw = %#x, want 0x37f", cw)
	}

	if err := r.WriteUint64(Dr7, 0x405); err != nil {
		t.Fatal(err)
	}
	if r.debug[7] != 0x405 {
		t.Errorf("dr7 mirror = %#x, want 0x405", r.debug[7])
	}
}

func TestRegisterTypeMismatch(t *testing.T) {
	var r Registers
	if _, err := ReadRegisterAs[uint32](&r, Rax); err == nil {
		t.Error("reading rax as uint32 should fail")
	} else if _, ok := err.(RegisterTypeMismatchError); !ok {
		t.Errorf("unexpected error type %T", err)
	}
	if err := WriteRegisterAs(&r, Fcw, uint64(1)); err == nil {
		t.Error("writing fcw as uint64 should fail")
	}
}

func TestHardwareStoppointEncoding(t *testing.T) {
	modes := map[StoppointMode]uint64{ModeWrite: 0b01, ModeReadWrite: 0b11, ModeExecute: 0b00}
	for mode, want := range modes {
		got, err := encodeHardwareStoppointMode(mode)
		if err != nil || got != want {
			t.Errorf("mode %v = %#b, %v; want %#b", mode, got, err, want)
		}
	}
	if _, err := encodeHardwareStoppointMode(StoppointMode(42)); err == nil {
		t.Error("bad mode should fail")
	}

	sizes := map[int]uint64{1: 0b00, 2: 0b01, 4: 0b11, 8: 0b10}
	for size, want := range sizes {
		got, err := encodeHardwareStoppointSize(size)
		if err != nil || got != want {
			t.Errorf("size %d = %#b, %v; want %#b", size, got, err, want)
		}
	}
	if _, err := encodeHardwareStoppointSize(3); err == nil {
		t.Error("bad size should fail")
	}
}

func TestFindFreeStoppointRegister(t *testing.T) {
	cases := []struct {
		control uint64
		want    int
		full    bool
	}{
		{control: 0, want: 0},
		{control: 0b01, want: 1},
		{control: 0b0101, want: 2},
		{control: 0b010101, want: 3},
		{control: 0b01010101, full: true},
		{control: 0b01010001, want: 1},
	}
	for _, tc := range cases {
		got, err := findFreeStoppointRegister(tc.control)
		if tc.full {
			if _, ok := err.(NoHardwareSlotError); !ok {
				t.Errorf("control %#b: expected NoHardwareSlotError, got %v", tc.control, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("control %#b: slot = %d, %v; want %d", tc.control, got, err, tc.want)
		}
	}
}

func TestWatchpointParamValidation(t *testing.T) {
	if _, err := newWatchpoint(nil, 1, 0x1000, ModeExecute, 4); err == nil {
		t.Error("execute watchpoints should be rejected")
	}
	if _, err := newWatchpoint(nil, 1, 0x1000, ModeWrite, 3); err == nil {
		t.Error("size 3 should be rejected")
	}
	if _, err := newWatchpoint(nil, 1, 0x1001, ModeWrite, 4); err == nil {
		t.Error("misaligned address should be rejected")
	}
	if _, err := newWatchpoint(nil, 1, 0x1004, ModeWrite, 4); err != nil {
		t.Errorf("valid watchpoint rejected: %v", err)
	}
}
