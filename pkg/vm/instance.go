package vm

import (
	"strings"
	"unicode/utf8"
)

// Instance is one running execution of a script.
type Instance struct {
	id    uint64
	entry *scriptEntry

	ip      int // absolute byte offset of the next instruction
	opStart int // offset of the instruction being executed
	stack   []int32
	locals  *VarStore
	delay   int

	activator ThingID
	line      LineID
	side      int32

	print      strings.Builder
	printLimit int

	removed bool

	// scratch space for operands and popped values
	opnd [6]int32
	args [7]int32
}

func newInstance(id uint64, entry *scriptEntry, limits Limits) *Instance {
	return &Instance{
		id:         id,
		entry:      entry,
		ip:         entry.def.Entry,
		opStart:    entry.def.Entry,
		stack:      make([]int32, 0, limits.StackDepth),
		locals:     NewVarStore(limits.ScriptVars),
		printLimit: limits.PrintBuffer,
	}
}

// ID returns a number unique to the instance within its session.
func (in *Instance) ID() uint64 {
	return in.id
}

// Number returns the script number.
func (in *Instance) Number() int32 {
	return in.entry.def.Number
}

// IP returns the offset of the next instruction.
func (in *Instance) IP() int {
	return in.ip
}

// Delay returns the remaining delay in ticks.
func (in *Instance) Delay() int {
	return in.delay
}

// Stack returns a copy of the operand stack, bottom first.
func (in *Instance) Stack() []int32 {
	out := make([]int32, len(in.stack))
	copy(out, in.stack)
	return out
}

// Locals returns a copy of the script variables.
func (in *Instance) Locals() []int32 {
	return in.locals.Values()
}

// Activator returns the thing that started the script.
func (in *Instance) Activator() ThingID {
	return in.activator
}

// Line returns the line that triggered the script.
func (in *Instance) Line() LineID {
	return in.line
}

// Side returns the side of Line that was activated.
func (in *Instance) Side() int32 {
	return in.side
}

// PrintBuffer returns the text accumulated since the last BEGINPRINT.
func (in *Instance) PrintBuffer() string {
	return in.print.String()
}

func (in *Instance) push(v int32) error {
	if len(in.stack) == cap(in.stack) {
		return in.fault(ErrorStackFault, "stack overflow (depth %d)", cap(in.stack))
	}
	in.stack = append(in.stack, v)
	return nil
}

func (in *Instance) pop() (int32, error) {
	n := len(in.stack)
	if n == 0 {
		return 0, in.fault(ErrorStackFault, "stack underflow")
	}
	v := in.stack[n-1]
	in.stack = in.stack[:n-1]
	return v, nil
}

// popN pops n values and returns them in push order. The result aliases
// scratch space and is only valid until the next popN.
func (in *Instance) popN(n int) ([]int32, error) {
	if len(in.stack) < n {
		return nil, in.fault(ErrorStackFault, "stack underflow (need %d, have %d)", n, len(in.stack))
	}
	base := len(in.stack) - n
	out := in.args[:n]
	copy(out, in.stack[base:])
	in.stack = in.stack[:base]
	return out, nil
}

func (in *Instance) top() (int32, error) {
	n := len(in.stack)
	if n == 0 {
		return 0, in.fault(ErrorStackFault, "stack underflow")
	}
	return in.stack[n-1], nil
}

func (in *Instance) beginPrint() {
	in.print.Reset()
}

// appendPrint adds s to the print buffer, truncating at the buffer limit
// without splitting a character.
func (in *Instance) appendPrint(s string) {
	room := in.printLimit - in.print.Len()
	if room <= 0 {
		return
	}
	if len(s) > room {
		cut := room
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	in.print.WriteString(s)
}
