// monitor.go - Interactive machine monitor

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
)

// Monitor is an interactive command shell over a running machine. It
// owns stepping while active, so the runner must not be executing in
// the background at the same time.
type Monitor struct {
	runner *Runner
	dbg    *DebugX86

	lastDisasm uint32
	lastDump   uint32
}

func NewMonitor(r *Runner) *Monitor {
	return &Monitor{
		runner:     r,
		dbg:        NewDebugX86(r.CPU()),
		lastDisasm: r.CPU().EIP,
	}
}

var monitorCompleter = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("regs"),
	readline.PcItem("fpu"),
	readline.PcItem("step"),
	readline.PcItem("cont"),
	readline.PcItem("until"),
	readline.PcItem("break"),
	readline.PcItem("delete"),
	readline.PcItem("blist"),
	readline.PcItem("watch"),
	readline.PcItem("wdelete"),
	readline.PcItem("dis"),
	readline.PcItem("mem"),
	readline.PcItem("set"),
	readline.PcItem("write"),
	readline.PcItem("reset"),
	readline.PcItem("quit"),
)

func (m *Monitor) Run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mon> ",
		HistoryFile:     "/tmp/win32emu_monitor_history.txt",
		AutoComplete:    monitorCompleter,
		InterruptPrompt: "^C",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("machine monitor, 'help' for commands")
	m.showCurrentLine()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		if cmd == "quit" || cmd == "q" || cmd == "exit" {
			return nil
		}
		m.dispatch(cmd, args)
	}
}

func (m *Monitor) dispatch(cmd string, args []string) {
	switch cmd {
	case "help", "?":
		m.cmdHelp()
	case "regs", "r":
		fmt.Print(m.runner.DumpState())
	case "fpu":
		m.cmdFPU()
	case "step", "s":
		m.cmdStep(args)
	case "cont", "c":
		m.cmdContinue(0)
	case "until":
		m.cmdUntil(args)
	case "break", "b":
		m.cmdBreak(args)
	case "delete":
		m.cmdDelete(args)
	case "blist":
		m.cmdBreakList()
	case "watch", "w":
		m.cmdWatch(args)
	case "wdelete":
		m.cmdWatchDelete(args)
	case "dis", "d", "u":
		m.cmdDisasm(args)
	case "mem", "m", "x":
		m.cmdMem(args)
	case "set":
		m.cmdSet(args)
	case "write":
		m.cmdWrite(args)
	case "reset":
		m.runner.Reset()
		fmt.Printf("reset, EIP=%08X\n", m.runner.CPU().EIP)
	default:
		fmt.Printf("unknown command %q, try 'help'\n", cmd)
	}
}

func (m *Monitor) cmdHelp() {
	fmt.Print(`commands:
  regs                    show CPU state
  fpu                     show x87 stack
  step [n]                execute n instructions (default 1)
  cont                    run until breakpoint, fault or halt
  until <addr>            run until EIP reaches addr
  break <addr>            set breakpoint
  delete <addr>           clear breakpoint
  blist                   list breakpoints and watchpoints
  watch <addr>            watch a byte for changes
  wdelete <addr>          clear watchpoint
  dis [addr] [n]          disassemble (default EIP, 10 lines)
  mem <addr> [len]        hex dump memory
  set <reg> <value>       set a register
  write <addr> <b> ...    write bytes to memory
  reset                   reset the CPU
  quit                    leave the monitor
`)
}

func (m *Monitor) cmdFPU() {
	f := m.runner.CPU().FPU
	fmt.Printf("FSW=%04X FCW=%04X FTW=%04X top=%d\n", f.FSW, f.FCW, f.FTW, f.top())
	for i := 0; i < 8; i++ {
		if f.getTag(f.physReg(i)) == x87TagEmpty {
			continue
		}
		fmt.Printf("ST(%d) = %g\n", i, f.ST(i))
	}
}

func (m *Monitor) cmdStep(args []string) {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			fmt.Println("usage: step [n]")
			return
		}
		n = v
	}
	for _i := 0; _i < n; _i++ {
		if m.runner.CPU().Halted {
			fmt.Println("CPU halted")
			return
		}
		if err := m.dbg.Step(); err != nil {
			fmt.Printf("fault: %v\n", err)
			return
		}
	}
	m.showCurrentLine()
}

func (m *Monitor) cmdContinue(maxSteps uint64) {
	ev := m.dbg.RunUntilBreak(maxSteps)
	switch ev.Reason {
	case BreakHalted:
		fmt.Printf("halted at %08X\n", ev.Address)
	case BreakFault:
		fmt.Printf("fault at %08X: %v\n", ev.Address, ev.Fault)
	case BreakBreakpoint:
		fmt.Printf("breakpoint at %08X\n", ev.Address)
	case BreakWatchpoint:
		fmt.Printf("watchpoint %08X changed %02X -> %02X at EIP=%08X\n",
			ev.Watch, ev.OldValue, ev.NewValue, ev.Address)
	case BreakBudget:
		fmt.Printf("step budget reached at %08X\n", ev.Address)
	}
	m.showCurrentLine()
}

func (m *Monitor) cmdUntil(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: until <addr>")
		return
	}
	addr, ok := parseAddr(args[0])
	if !ok {
		fmt.Println("bad address")
		return
	}
	had := m.dbg.HasBreakpoint(addr)
	m.dbg.SetBreakpoint(addr)
	m.cmdContinue(0)
	if !had {
		m.dbg.ClearBreakpoint(addr)
	}
}

func (m *Monitor) cmdBreak(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: break <addr>")
		return
	}
	addr, ok := parseAddr(args[0])
	if !ok {
		fmt.Println("bad address")
		return
	}
	m.dbg.SetBreakpoint(addr)
	fmt.Printf("breakpoint set at %08X\n", addr)
}

func (m *Monitor) cmdDelete(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: delete <addr>")
		return
	}
	addr, ok := parseAddr(args[0])
	if !ok {
		fmt.Println("bad address")
		return
	}
	if m.dbg.ClearBreakpoint(addr) {
		fmt.Printf("breakpoint cleared at %08X\n", addr)
	} else {
		fmt.Printf("no breakpoint at %08X\n", addr)
	}
}

func (m *Monitor) cmdBreakList() {
	bps := m.dbg.ListBreakpoints()
	wps := m.dbg.ListWatchpoints()
	if len(bps) == 0 && len(wps) == 0 {
		fmt.Println("no breakpoints or watchpoints")
		return
	}
	for _, addr := range bps {
		fmt.Printf("break %08X\n", addr)
	}
	for _, addr := range wps {
		fmt.Printf("watch %08X\n", addr)
	}
}

func (m *Monitor) cmdWatch(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: watch <addr>")
		return
	}
	addr, ok := parseAddr(args[0])
	if !ok {
		fmt.Println("bad address")
		return
	}
	if !m.dbg.SetWatchpoint(addr) {
		fmt.Println("address out of range")
		return
	}
	fmt.Printf("watchpoint set at %08X\n", addr)
}

func (m *Monitor) cmdWatchDelete(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: wdelete <addr>")
		return
	}
	addr, ok := parseAddr(args[0])
	if !ok {
		fmt.Println("bad address")
		return
	}
	if m.dbg.ClearWatchpoint(addr) {
		fmt.Printf("watchpoint cleared at %08X\n", addr)
	} else {
		fmt.Printf("no watchpoint at %08X\n", addr)
	}
}

func (m *Monitor) cmdDisasm(args []string) {
	addr := m.lastDisasm
	count := 10
	if len(args) > 0 {
		a, ok := parseAddr(args[0])
		if !ok {
			fmt.Println("bad address")
			return
		}
		addr = a
	}
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 1 {
			fmt.Println("bad count")
			return
		}
		count = v
	}
	lines := m.dbg.Disassemble(addr, count)
	eip := m.runner.CPU().EIP
	for _, l := range lines {
		marker := "  "
		if uint32(l.Address) == eip {
			marker = "> "
		}
		if m.dbg.HasBreakpoint(uint32(l.Address)) {
			marker = "* "
		}
		fmt.Printf("%s%08X  %-20s %s\n", marker, uint32(l.Address), l.HexBytes, l.Mnemonic)
		m.lastDisasm = uint32(l.Address) + uint32(l.Size)
	}
}

func (m *Monitor) cmdMem(args []string) {
	addr := m.lastDump
	length := 64
	if len(args) > 0 {
		a, ok := parseAddr(args[0])
		if !ok {
			fmt.Println("bad address")
			return
		}
		addr = a
	}
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 1 {
			fmt.Println("bad length")
			return
		}
		length = v
	}
	data := m.dbg.ReadMemory(addr, length)
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Printf("%08X ", addr+uint32(off))
		for i := off; i < end; i++ {
			fmt.Printf(" %02X", data[i])
		}
		fmt.Printf("%*s |", (off+16-end)*3+2, "")
		for i := off; i < end; i++ {
			c := data[i]
			if c < 0x20 || c > 0x7E {
				c = '.'
			}
			fmt.Printf("%c", c)
		}
		fmt.Println("|")
	}
	m.lastDump = addr + uint32(length)
}

func (m *Monitor) cmdSet(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: set <reg> <value>")
		return
	}
	v, ok := parseAddr(args[1])
	if !ok {
		fmt.Println("bad value")
		return
	}
	if !m.dbg.SetRegister(args[0], uint64(v)) {
		fmt.Printf("unknown register %q\n", args[0])
		return
	}
	fmt.Printf("%s = %08X\n", strings.ToUpper(args[0]), v)
}

func (m *Monitor) cmdWrite(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: write <addr> <byte> ...")
		return
	}
	addr, ok := parseAddr(args[0])
	if !ok {
		fmt.Println("bad address")
		return
	}
	data := make([]byte, 0, len(args)-1)
	for _, s := range args[1:] {
		v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 8)
		if err != nil {
			fmt.Printf("bad byte %q\n", s)
			return
		}
		data = append(data, byte(v))
	}
	m.dbg.WriteMemory(addr, data)
	fmt.Printf("wrote %d bytes at %08X\n", len(data), addr)
}

func (m *Monitor) showCurrentLine() {
	eip := m.runner.CPU().EIP
	lines := m.dbg.Disassemble(eip, 1)
	if len(lines) > 0 {
		fmt.Printf("> %08X  %s\n", eip, lines[0].Mnemonic)
	}
	m.lastDisasm = eip
}

// parseAddr accepts hex with or without 0x prefix, or decimal with a # prefix
func parseAddr(s string) (uint32, bool) {
	if strings.HasPrefix(s, "#") {
		v, err := strconv.ParseUint(s[1:], 10, 32)
		if err != nil {
			return 0, false
		}
		return uint32(v), true
	}
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}
