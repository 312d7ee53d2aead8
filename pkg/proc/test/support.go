// Package test provides fixture-building helpers shared by the process and
// target tests.
package test

import (
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

// FixturePath returns the location of a C source under _fixtures/.
func FixturePath(name string) string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "_fixtures", name)
}

// BuildFixture compiles a fixture with debug information and returns the
// binary's path. The test is skipped when no C compiler is available.
func BuildFixture(t *testing.T, name string) string {
	t.Helper()
	gcc, err := exec.LookPath("gcc")
	if err != nil {
		t.Skip("gcc not installed")
	}
	out := filepath.Join(t.TempDir(), name)
	cmd := exec.Command(gcc, "-g", "-gdwarf-4", "-O0", "-o", out, FixturePath(name+".c"))
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("building fixture %s: %v\n%s", name, err, output)
	}
	return out
}

// MustLookPath resolves a program on PATH, skipping the test when absent.
func MustLookPath(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not found in PATH", name)
	}
	return path
}
