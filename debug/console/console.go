// Package console implements an interactive debug console over a
// running machine.Machine: step, register/memory inspection, and
// start/stop control, entered through a liner-driven readline loop.
// Grounded on the teacher's command/reader.ConsoleReader (liner.NewLiner
// with a completer callback, looping Prompt/ProcessCommand) and
// command/parser's abbreviation-matching command table (a cmdLine
// cursor with getWord/skipSpace/isEOL, minimum-length prefix matching),
// generalized from the channel/device command set to CPU and memory
// inspection of a single machine.
package console

/*
 * pcemu - interactive debug console
 *
 * Copyright 2026, pcemu authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/peterh/liner"

	"github.com/rcornwell/pcemu/cpu"
	"github.com/rcornwell/pcemu/machine"
	"github.com/rcornwell/pcemu/util/hex"
)

type cmdLine struct {
	line string
	pos  int
}

type cmd struct {
	name     string
	min      int
	process  func(*cmdLine, *machine.Machine, io.Writer) (bool, error)
	complete func(*cmdLine) []string
}

var cmdList = []cmd{
	{name: "step", min: 2, process: step},
	{name: "continue", min: 1, process: cont},
	{name: "stop", min: 2, process: stop},
	{name: "registers", min: 1, process: showRegisters},
	{name: "memory", min: 1, process: showMemory},
	{name: "quit", min: 1, process: quit},
}

// ProcessCommand executes one command line against m, writing any
// output to out. It reports whether the console should exit.
func ProcessCommand(commandLine string, m *machine.Machine, out io.Writer) (bool, error) {
	line := cmdLine{line: commandLine}
	name := line.getWord()

	match := matchList(name)
	switch len(match) {
	case 0:
		return false, errors.New("command not found: " + name)
	case 1:
		return match[0].process(&line, m, out)
	default:
		return false, errors.New("ambiguous command: " + name)
	}
}

// CompleteCmd returns the candidate command names matching the word
// typed so far, for liner's tab-completion callback.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	name := line.getWord()
	matches := make([]string, 0, len(cmdList))
	for _, m := range matchList(name) {
		matches = append(matches, m.name)
	}
	return matches
}

func matchList(name string) []cmd {
	if name == "" {
		return nil
	}
	var match []cmd
	for _, m := range cmdList {
		if matchCommand(m, name) {
			match = append(match, m)
		}
	}
	return match
}

func matchCommand(m cmd, name string) bool {
	if len(name) > len(m.name) {
		return false
	}
	for i := range name {
		if m.name[i] != name[i] {
			return false
		}
	}
	return len(name) >= m.min
}

func (l *cmdLine) skipSpace() {
	for l.pos < len(l.line) && unicode.IsSpace(rune(l.line[l.pos])) {
		l.pos++
	}
}

func (l *cmdLine) isEOL() bool {
	return l.pos >= len(l.line)
}

// getWord returns the next whitespace-delimited, lowercased token.
func (l *cmdLine) getWord() string {
	l.skipSpace()
	start := l.pos
	for l.pos < len(l.line) && !unicode.IsSpace(rune(l.line[l.pos])) {
		l.pos++
	}
	return strings.ToLower(l.line[start:l.pos])
}

// getHex parses the next token as a hexadecimal number (with or without
// a leading "0x"), the way addresses and register contents are entered.
func (l *cmdLine) getHex() (uint64, error) {
	tok := l.getWord()
	if tok == "" {
		return 0, errors.New("expected a hexadecimal value")
	}
	tok = strings.TrimPrefix(tok, "0x")
	return strconv.ParseUint(tok, 16, 64)
}

func quit(_ *cmdLine, _ *machine.Machine, _ io.Writer) (bool, error) {
	slog.Debug("console: quit")
	return true, nil
}

func stop(_ *cmdLine, m *machine.Machine, _ io.Writer) (bool, error) {
	slog.Debug("console: stop")
	m.Stop()
	return false, nil
}

func cont(_ *cmdLine, m *machine.Machine, _ io.Writer) (bool, error) {
	slog.Debug("console: continue")
	m.Start()
	return false, nil
}

func step(_ *cmdLine, m *machine.Machine, out io.Writer) (bool, error) {
	if err := m.Step(); err != nil {
		return false, err
	}
	fmt.Fprintf(out, "RIP=%016x\n", m.CPU.RIP())
	return false, nil
}

var gprNames = [...]string{"AX", "CX", "DX", "BX", "SP", "BP", "SI", "DI"}

func showRegisters(_ *cmdLine, m *machine.Machine, out io.Writer) (bool, error) {
	var b strings.Builder
	for r, name := range gprNames {
		b.WriteString(name)
		b.WriteByte('=')
		hex.FormatReg64(&b, m.CPU.GPR(r))
		b.WriteByte(' ')
		if r%4 == 3 {
			b.WriteByte('\n')
		}
	}
	b.WriteByte('\n')
	b.WriteString("RIP=")
	hex.FormatReg64(&b, m.CPU.RIP())
	fmt.Fprintf(&b, " FLAGS=%08x CS=%04x SS=%04x\n",
		m.CPU.Flags(), m.CPU.Selector(cpu.CS), m.CPU.Selector(cpu.SS))
	_, err := io.WriteString(out, b.String())
	return false, err
}

// showMemory dumps 16 bytes per line starting at the hex address given,
// defaulting to a single 128-byte window, in the classic address/hex/
// ASCII three-column layout.
func showMemory(line *cmdLine, m *machine.Machine, out io.Writer) (bool, error) {
	addr, err := line.getHex()
	if err != nil {
		return false, err
	}
	length := uint64(128)
	if !line.isEOL() {
		length, err = line.getHex()
		if err != nil {
			return false, err
		}
	}
	var b strings.Builder
	for i := uint64(0); i < length; i += 16 {
		n := min(16, length-i)
		row := m.Mem.CopyTo(addr+i, int(n))

		hex.FormatAddr32(&b, uint32(addr+i))
		b.WriteString(": ")
		hex.FormatBytes(&b, true, row)
		for pad := n; pad < 16; pad++ {
			b.WriteString("   ")
		}
		b.WriteString(" |")
		hex.FormatASCII(&b, row)
		b.WriteString("|\n")
	}
	_, err = io.WriteString(out, b.String())
	return false, err
}

// Run drives an interactive liner-based console against m until the
// user quits or aborts with ctrl-C/ctrl-D.
func Run(m *machine.Machine) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(l string) []string { return CompleteCmd(l) })

	for {
		command, err := line.Prompt("pcemu> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				return
			}
			slog.Error("console: error reading line", "error", err)
			return
		}
		line.AppendHistory(command)
		quit, err := ProcessCommand(command, m, os.Stdout)
		if err != nil {
			fmt.Println("Error: " + err.Error())
		}
		if quit {
			return
		}
	}
}
