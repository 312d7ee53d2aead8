package proc

import (
	set "github.com/hashicorp/go-set"
)

// SyscallCatchPolicyMode selects which syscall stops are reported.
type SyscallCatchPolicyMode int

const (
	// CatchNone resumes with PTRACE_CONT; no syscall stops occur.
	CatchNone SyscallCatchPolicyMode = iota
	// CatchSome reports stops for syscalls in the catch set only.
	CatchSome
	// CatchAll reports every syscall entry and exit.
	CatchAll
)

// SyscallCatchPolicy decides whether the controller traces system-call
// boundaries and which syscall numbers are reported to the caller.
type SyscallCatchPolicy struct {
	mode    SyscallCatchPolicyMode
	toCatch *set.Set[uint64]
}

// CatchNothing is the default policy: no syscall tracing.
func CatchNothing() SyscallCatchPolicy {
	return SyscallCatchPolicy{mode: CatchNone}
}

// CatchAllSyscalls reports every syscall stop.
func CatchAllSyscalls() SyscallCatchPolicy {
	return SyscallCatchPolicy{mode: CatchAll}
}

// CatchSyscalls reports stops only for the listed syscall numbers.
func CatchSyscalls(ids ...uint64) SyscallCatchPolicy {
	s := set.New[uint64](len(ids))
	for _, id := range ids {
		s.Insert(id)
	}
	return SyscallCatchPolicy{mode: CatchSome, toCatch: s}
}

// Mode returns the policy's mode.
func (p SyscallCatchPolicy) Mode() SyscallCatchPolicyMode { return p.mode }

// Catches reports whether a stop for the given syscall number should be
// surfaced under this policy.
func (p SyscallCatchPolicy) Catches(id uint64) bool {
	switch p.mode {
	case CatchAll:
		return true
	case CatchSome:
		return p.toCatch.Contains(id)
	}
	return false
}
