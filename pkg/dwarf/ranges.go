package dwarf

import (
	"math"

	"github.com/mvkh/linux-debugger/pkg/elf"
)

// RangeList is a lazy view over a .debug_ranges list. Entries are decoded
// on iteration; a base-address selection entry updates the applicable base
// without yielding an entry.
type RangeList struct {
	cu          *CompileUnit
	data        []byte
	baseAddress elf.FileAddr
}

// RangeEntry is one contiguous address range, low inclusive, high
// exclusive.
type RangeEntry struct {
	Low  elf.FileAddr
	High elf.FileAddr
}

// Contains reports whether the range covers addr.
func (e RangeEntry) Contains(addr elf.FileAddr) bool {
	return !addr.Before(e.Low) && addr.Before(e.High)
}

// Iterator returns a single-pass iterator over the list.
func (rl *RangeList) Iterator() *RangeIterator {
	return &RangeIterator{cu: rl.cu, data: rl.data, base: rl.baseAddress}
}

// Contains reports whether any entry of the list covers addr.
func (rl *RangeList) Contains(addr elf.FileAddr) (bool, error) {
	it := rl.Iterator()
	for it.Next() {
		if it.Entry().Contains(addr) {
			return true, nil
		}
	}
	return false, it.Err()
}

// RangeIterator decodes (low, high) pairs until the (0, 0) terminator.
type RangeIterator struct {
	cu   *CompileUnit
	data []byte
	base elf.FileAddr
	pos  int
	cur  RangeEntry
	err  error
	done bool
}

// Next advances to the next entry, consuming base-address selection
// entries along the way.
func (it *RangeIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	for {
		b := makeBuf(it.data, it.pos)
		low := b.uint64()
		high := b.uint64()
		if b.err != nil {
			it.err = b.err
			return false
		}
		it.pos = b.off
		if low == 0 && high == 0 {
			it.done = true
			return false
		}
		if low == math.MaxUint64 {
			// Base-address selection entry.
			it.base = elf.NewFileAddr(it.cu.parent.elf, high)
			continue
		}
		it.cur = RangeEntry{
			Low:  it.base.Add(int64(low)),
			High: it.base.Add(int64(high)),
		}
		return true
	}
}

// Entry returns the current range.
func (it *RangeIterator) Entry() RangeEntry { return it.cur }

// Err returns the first decode error encountered, if any.
func (it *RangeIterator) Err() error { return it.err }
