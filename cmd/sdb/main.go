// Command sdb is a native debugger for Linux/x86-64 ELF binaries. It
// launches or attaches to an inferior and drives it through a small
// interactive command loop.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	isatty "github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mvkh/linux-debugger/pkg/config"
	"github.com/mvkh/linux-debugger/pkg/elf"
	"github.com/mvkh/linux-debugger/pkg/logflags"
	"github.com/mvkh/linux-debugger/pkg/proc"
	"github.com/mvkh/linux-debugger/pkg/target"
)

var (
	configFile string
	logSpec    []string
)

func main() {
	root := &cobra.Command{
		Use:          "sdb",
		Short:        "sdb is a debugger for Linux/x86-64 ELF binaries",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML configuration file")
	root.PersistentFlags().StringSliceVar(&logSpec, "log", nil, "components to log (debugger, dwarf)")

	launchCmd := &cobra.Command{
		Use:   "launch <path>",
		Short: "Start a program under the debugger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var stdout *os.File
			if cfg.StdoutPath != "" {
				stdout, err = os.Create(cfg.StdoutPath)
				if err != nil {
					return err
				}
				defer stdout.Close()
			}
			tgt, err := target.Launch(args[0], true, stdout)
			if err != nil {
				return err
			}
			tgt.Process().SetSyscallCatchPolicy(cfg.CatchPolicy())
			return run(tgt)
		},
	}

	attachCmd := &cobra.Command{
		Use:   "attach <pid>",
		Short: "Attach to a running process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			tgt, err := target.Attach(pid)
			if err != nil {
				return err
			}
			tgt.Process().SetSyscallCatchPolicy(cfg.CatchPolicy())
			return run(tgt)
		},
	}

	root.AddCommand(launchCmd, attachCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if configFile != "" {
		loaded, err := config.LoadConfig(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	logflags.Setup(append(cfg.LogComponents, logSpec...))
	return cfg, nil
}

func run(tgt *target.Target) error {
	defer tgt.Close()

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		fmt.Fprintln(os.Stderr, "stdin is not a terminal, resuming until exit")
		return resumeToEnd(tgt)
	}

	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("sdb> ")
		if !sc.Scan() {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "q":
			return nil
		case "continue", "c":
			if err := resumeOnce(tgt); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		case "step", "s":
			reason, err := tgt.Process().StepInstruction()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			reportStop(tgt, reason)
		case "break", "b":
			if len(fields) < 2 {
				fmt.Fprintln(os.Stderr, "usage: break <function | file:line | *address>")
				continue
			}
			if err := setBreakpoint(tgt, fields[1]); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		case "watch":
			if err := setWatchpoint(tgt, fields[1:]); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		case "catch":
			if err := setCatchPolicy(tgt, fields[1:]); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		case "registers", "regs":
			printRegisters(tgt.Process())
		case "mem":
			if err := memCommand(tgt, fields[1:]); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", fields[0])
		}
	}
}

func resumeToEnd(tgt *target.Target) error {
	for {
		if err := resumeOnce(tgt); err != nil {
			return err
		}
		state := tgt.Process().State()
		if state == proc.Exited || state == proc.Terminated {
			return nil
		}
	}
}

func resumeOnce(tgt *target.Target) error {
	p := tgt.Process()
	if err := p.Resume(); err != nil {
		return err
	}
	reason, err := p.WaitOnSignal()
	if err != nil {
		return err
	}
	reportStop(tgt, reason)
	return nil
}

func reportStop(tgt *target.Target, reason proc.StopReason) {
	fmt.Println(reason)
	if reason.State != proc.Stopped {
		return
	}
	pc := tgt.Process().GetPC()
	if fn, ok := tgt.FunctionAt(pc); ok {
		if entry, ok := tgt.LineAt(pc); ok {
			fmt.Printf("  at %#x in %s (%s:%d)\n", uint64(pc), fn, entry.FileName, entry.Line)
		} else {
			fmt.Printf("  at %#x in %s\n", uint64(pc), fn)
		}
	} else {
		fmt.Printf("  at %#x\n", uint64(pc))
	}
	if reason.Syscall != nil {
		if reason.Syscall.Entry {
			fmt.Printf("  syscall %d entry, args %x\n", reason.Syscall.ID, reason.Syscall.Args)
		} else {
			fmt.Printf("  syscall %d exit, returned %#x\n", reason.Syscall.ID, reason.Syscall.Ret)
		}
	}
}

func setBreakpoint(tgt *target.Target, loc string) error {
	switch {
	case strings.HasPrefix(loc, "*"):
		addr, err := strconv.ParseUint(strings.TrimPrefix(loc, "*"), 0, 64)
		if err != nil {
			return fmt.Errorf("invalid address %q", loc)
		}
		bp, err := tgt.CreateAddressBreakpoint(elf.VirtAddr(addr), false, false)
		if err != nil {
			return err
		}
		return bp.Enable()
	case strings.Contains(loc, ":"):
		file, lineStr, _ := strings.Cut(loc, ":")
		line, err := strconv.Atoi(lineStr)
		if err != nil {
			return fmt.Errorf("invalid line number %q", lineStr)
		}
		bp, err := tgt.CreateLineBreakpoint(file, line, false, false)
		if err != nil {
			return err
		}
		return bp.Enable()
	default:
		bp, err := tgt.CreateFunctionBreakpoint(loc, false, false)
		if err != nil {
			return err
		}
		return bp.Enable()
	}
}

func setWatchpoint(tgt *target.Target, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: watch <address> <write|rw> <size>")
	}
	addr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q", args[0])
	}
	var mode proc.StoppointMode
	switch args[1] {
	case "write":
		mode = proc.ModeWrite
	case "rw":
		mode = proc.ModeReadWrite
	default:
		return fmt.Errorf("invalid mode %q", args[1])
	}
	size, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid size %q", args[2])
	}
	wp, err := tgt.Process().CreateWatchpoint(elf.VirtAddr(addr), mode, size)
	if err != nil {
		return err
	}
	return wp.Enable()
}

func setCatchPolicy(tgt *target.Target, args []string) error {
	if len(args) == 0 || args[0] != "syscall" {
		return fmt.Errorf("usage: catch syscall [all | none | <id>...]")
	}
	args = args[1:]
	switch {
	case len(args) == 0 || args[0] == "all":
		tgt.Process().SetSyscallCatchPolicy(proc.CatchAllSyscalls())
	case args[0] == "none":
		tgt.Process().SetSyscallCatchPolicy(proc.CatchNothing())
	default:
		ids := make([]uint64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseUint(a, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid syscall id %q", a)
			}
			ids = append(ids, id)
		}
		tgt.Process().SetSyscallCatchPolicy(proc.CatchSyscalls(ids...))
	}
	return nil
}

func printRegisters(p *proc.Process) {
	regs := p.GetRegisters()
	for _, id := range []proc.RegisterID{
		proc.Rip, proc.Rsp, proc.Rbp, proc.Rax, proc.Rbx, proc.Rcx,
		proc.Rdx, proc.Rsi, proc.Rdi, proc.R8, proc.R9, proc.R10,
		proc.R11, proc.R12, proc.R13, proc.R14, proc.R15, proc.Eflags,
	} {
		info := proc.RegisterInfoByID(id)
		v, err := regs.ReadUint64(id)
		if err != nil {
			continue
		}
		fmt.Printf("%-8s %#018x\n", info.Name, v)
	}
}

func memCommand(tgt *target.Target, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: mem read <address> <n> | mem write <address> <byte>...")
	}
	addr, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q", args[1])
	}
	switch args[0] {
	case "read":
		n := 32
		if len(args) > 2 {
			if n, err = strconv.Atoi(args[2]); err != nil {
				return fmt.Errorf("invalid length %q", args[2])
			}
		}
		data, err := tgt.Process().ReadMemoryWithoutTraps(elf.VirtAddr(addr), n)
		if err != nil {
			return err
		}
		fmt.Printf("% x\n", data)
		return nil
	case "write":
		data := make([]byte, 0, len(args)-2)
		for _, a := range args[2:] {
			b, err := strconv.ParseUint(a, 0, 8)
			if err != nil {
				return fmt.Errorf("invalid byte %q", a)
			}
			data = append(data, byte(b))
		}
		return tgt.Process().WriteMemory(elf.VirtAddr(addr), data)
	}
	return fmt.Errorf("unknown mem subcommand %q", args[0])
}
