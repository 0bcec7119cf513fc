package module

import (
	"encoding/binary"
	"fmt"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/opcode"
)

// Builder assembles module blobs in the layout read by Load.
// It is used by tests and by tools that generate sample modules; it is not
// a compiler.
type Builder struct {
	code    []int32
	scripts []builtScript
	strs    []string
	strIdx  map[string]int32
	labels  map[string]int // word index into code
	fixups  []fixup
	err     error
}

type builtScript struct {
	number   int32
	word     int
	argCount int32
}

type fixup struct {
	word  int
	label string
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		strIdx: make(map[string]int32),
		labels: make(map[string]int),
	}
}

// Script starts a new script at the current code position.
func (b *Builder) Script(number, argCount int32) *Builder {
	b.scripts = append(b.scripts, builtScript{number: number, word: len(b.code), argCount: argCount})
	return b
}

// OpenScript starts a script that runs automatically when the map loads.
func (b *Builder) OpenScript(number int32) *Builder {
	return b.Script(number+OpenScriptBase, 0)
}

// Emit appends an instruction. The number of operands must match the op.
func (b *Builder) Emit(op opcode.Op, operands ...int32) *Builder {
	if b.err != nil {
		return b
	}
	if !op.Valid() {
		b.err = fmt.Errorf("emit: undefined opcode %d", int32(op))
		return b
	}
	if len(operands) != op.Operands() {
		b.err = fmt.Errorf("emit %s: want %d operands, got %d", op, op.Operands(), len(operands))
		return b
	}
	b.code = append(b.code, int32(op))
	b.code = append(b.code, operands...)
	return b
}

// Push emits PUSHNUMBER v.
func (b *Builder) Push(v int32) *Builder {
	return b.Emit(opcode.PushNumber, v)
}

// Raw appends a bare word, e.g. to build deliberately malformed code.
func (b *Builder) Raw(words ...int32) *Builder {
	b.code = append(b.code, words...)
	return b
}

// Label names the current code position.
func (b *Builder) Label(name string) *Builder {
	if _, dup := b.labels[name]; dup && b.err == nil {
		b.err = fmt.Errorf("label %q defined twice", name)
	}
	b.labels[name] = len(b.code)
	return b
}

// Jump emits GOTO, IFGOTO or IFNOTGOTO to a label.
func (b *Builder) Jump(op opcode.Op, label string) *Builder {
	if op != opcode.Goto && op != opcode.IfGoto && op != opcode.IfNotGoto {
		if b.err == nil {
			b.err = fmt.Errorf("jump: %s is not a jump", op)
		}
		return b
	}
	b.code = append(b.code, int32(op), 0)
	b.fixups = append(b.fixups, fixup{word: len(b.code) - 1, label: label})
	return b
}

// Case emits CASEGOTO value, label.
func (b *Builder) Case(value int32, label string) *Builder {
	b.code = append(b.code, int32(opcode.CaseGoto), value, 0)
	b.fixups = append(b.fixups, fixup{word: len(b.code) - 1, label: label})
	return b
}

// String interns s and returns its string table index.
func (b *Builder) String(s string) int32 {
	if i, ok := b.strIdx[s]; ok {
		return i
	}
	i := int32(len(b.strs))
	b.strs = append(b.strs, s)
	b.strIdx[s] = i
	return i
}

// PushString interns s and emits PUSHNUMBER with its index.
func (b *Builder) PushString(s string) *Builder {
	return b.Push(b.String(s))
}

// Print emits BEGINPRINT, PRINTSTRING s and ENDPRINT.
func (b *Builder) Print(s string) *Builder {
	return b.Emit(opcode.BeginPrint).
		PushString(s).
		Emit(opcode.PrintString).
		Emit(opcode.EndPrint)
}

// Offset returns the absolute byte offset of a label in the built blob.
func (b *Builder) Offset(label string) (int32, bool) {
	w, ok := b.labels[label]
	if !ok {
		return 0, false
	}
	return int32(HeaderSize + 4*w), true
}

// Bytes resolves labels and encodes the module.
// Strings are encoded as raw bytes; callers wanting another charset must
// pass pre-encoded strings.
func (b *Builder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	code := make([]int32, len(b.code))
	copy(code, b.code)
	for _, f := range b.fixups {
		off, ok := b.Offset(f.label)
		if !ok {
			return nil, fmt.Errorf("undefined label %q", f.label)
		}
		code[f.word] = off
	}

	le := binary.LittleEndian
	out := make([]byte, HeaderSize, HeaderSize+4*len(code))
	copy(out, Magic)
	le.PutUint32(out[8:], HeaderSize)
	for _, w := range code {
		out = le.AppendUint32(out, uint32(w))
	}

	strOffsets := make([]int32, len(b.strs))
	for i, s := range b.strs {
		strOffsets[i] = int32(len(out))
		out = append(out, s...)
		out = append(out, 0)
	}
	for len(out)%4 != 0 {
		out = append(out, 0)
	}

	le.PutUint32(out[4:], uint32(len(out)))
	out = le.AppendUint32(out, uint32(len(b.scripts)))
	for _, s := range b.scripts {
		out = le.AppendUint32(out, uint32(s.number))
		out = le.AppendUint32(out, uint32(HeaderSize+4*s.word))
		out = le.AppendUint32(out, uint32(s.argCount))
	}
	out = le.AppendUint32(out, uint32(len(strOffsets)))
	for _, off := range strOffsets {
		out = le.AppendUint32(out, uint32(off))
	}
	return out, nil
}

// MustBytes is like Bytes but panics on error. It is meant for tests and
// static sample modules.
func (b *Builder) MustBytes() []byte {
	blob, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return blob
}
