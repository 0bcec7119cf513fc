// Package opcode defines the instruction set of the ACS virtual machine.
// This package is the foundation that both the module builder and the VM
// depend on. The builder emits Op sequences, and the VM executes them.
//
// Every instruction is a little-endian int32 word followed by zero or more
// int32 operand words. Jump operands are absolute byte offsets into the
// module blob.
package opcode

import "fmt"

// Op is an ACS instruction code.
type Op int32

// Instruction codes. The numbering is fixed by the compiled module format.
const (
	Nop Op = iota
	Terminate
	Suspend
	PushNumber
	LSpec1
	LSpec2
	LSpec3
	LSpec4
	LSpec5
	LSpec1Direct
	LSpec2Direct
	LSpec3Direct
	LSpec4Direct
	LSpec5Direct
	Add
	Subtract
	Multiply
	Divide
	Modulus
	EQ
	NE
	LT
	GT
	LE
	GE
	AssignScriptVar
	AssignMapVar
	AssignWorldVar
	PushScriptVar
	PushMapVar
	PushWorldVar
	AddScriptVar
	AddMapVar
	AddWorldVar
	SubScriptVar
	SubMapVar
	SubWorldVar
	MulScriptVar
	MulMapVar
	MulWorldVar
	DivScriptVar
	DivMapVar
	DivWorldVar
	ModScriptVar
	ModMapVar
	ModWorldVar
	IncScriptVar
	IncMapVar
	IncWorldVar
	DecScriptVar
	DecMapVar
	DecWorldVar
	Goto
	IfGoto
	Drop
	Delay
	DelayDirect
	Random
	RandomDirect
	ThingCount
	ThingCountDirect
	TagWait
	TagWaitDirect
	PolyWait
	PolyWaitDirect
	ChangeFloor
	ChangeFloorDirect
	ChangeCeiling
	ChangeCeilingDirect
	Restart
	AndLogical
	OrLogical
	AndBitwise
	OrBitwise
	EorBitwise
	NegateLogical
	LShift
	RShift
	UnaryMinus
	IfNotGoto
	LineSide
	ScriptWait
	ScriptWaitDirect
	ClearLineSpecial
	CaseGoto
	BeginPrint
	EndPrint
	PrintString
	PrintNumber
	PrintCharacter
	PlayerCount
	GameType
	GameSkill
	Timer
	SectorSound
	AmbientSound
	SoundSequence
	SetLineTexture
	SetLineBlocking
	SetLineSpecial
	ThingSound
	EndPrintBold

	// Count is the number of defined instruction codes.
	Count
)

// Info describes the static shape of an instruction.
type Info struct {
	Name string
	// Operands is the number of int32 words that follow the opcode.
	Operands int
}

var table = [Count]Info{
	Nop:                 {"NOP", 0},
	Terminate:           {"TERMINATE", 0},
	Suspend:             {"SUSPEND", 0},
	PushNumber:          {"PUSHNUMBER", 1},
	LSpec1:              {"LSPEC1", 1},
	LSpec2:              {"LSPEC2", 1},
	LSpec3:              {"LSPEC3", 1},
	LSpec4:              {"LSPEC4", 1},
	LSpec5:              {"LSPEC5", 1},
	LSpec1Direct:        {"LSPEC1DIRECT", 2},
	LSpec2Direct:        {"LSPEC2DIRECT", 3},
	LSpec3Direct:        {"LSPEC3DIRECT", 4},
	LSpec4Direct:        {"LSPEC4DIRECT", 5},
	LSpec5Direct:        {"LSPEC5DIRECT", 6},
	Add:                 {"ADD", 0},
	Subtract:            {"SUBTRACT", 0},
	Multiply:            {"MULTIPLY", 0},
	Divide:              {"DIVIDE", 0},
	Modulus:             {"MODULUS", 0},
	EQ:                  {"EQ", 0},
	NE:                  {"NE", 0},
	LT:                  {"LT", 0},
	GT:                  {"GT", 0},
	LE:                  {"LE", 0},
	GE:                  {"GE", 0},
	AssignScriptVar:     {"ASSIGNSCRIPTVAR", 1},
	AssignMapVar:        {"ASSIGNMAPVAR", 1},
	AssignWorldVar:      {"ASSIGNWORLDVAR", 1},
	PushScriptVar:       {"PUSHSCRIPTVAR", 1},
	PushMapVar:          {"PUSHMAPVAR", 1},
	PushWorldVar:        {"PUSHWORLDVAR", 1},
	AddScriptVar:        {"ADDSCRIPTVAR", 1},
	AddMapVar:           {"ADDMAPVAR", 1},
	AddWorldVar:         {"ADDWORLDVAR", 1},
	SubScriptVar:        {"SUBSCRIPTVAR", 1},
	SubMapVar:           {"SUBMAPVAR", 1},
	SubWorldVar:         {"SUBWORLDVAR", 1},
	MulScriptVar:        {"MULSCRIPTVAR", 1},
	MulMapVar:           {"MULMAPVAR", 1},
	MulWorldVar:         {"MULWORLDVAR", 1},
	DivScriptVar:        {"DIVSCRIPTVAR", 1},
	DivMapVar:           {"DIVMAPVAR", 1},
	DivWorldVar:         {"DIVWORLDVAR", 1},
	ModScriptVar:        {"MODSCRIPTVAR", 1},
	ModMapVar:           {"MODMAPVAR", 1},
	ModWorldVar:         {"MODWORLDVAR", 1},
	IncScriptVar:        {"INCSCRIPTVAR", 1},
	IncMapVar:           {"INCMAPVAR", 1},
	IncWorldVar:         {"INCWORLDVAR", 1},
	DecScriptVar:        {"DECSCRIPTVAR", 1},
	DecMapVar:           {"DECMAPVAR", 1},
	DecWorldVar:         {"DECWORLDVAR", 1},
	Goto:                {"GOTO", 1},
	IfGoto:              {"IFGOTO", 1},
	Drop:                {"DROP", 0},
	Delay:               {"DELAY", 0},
	DelayDirect:         {"DELAYDIRECT", 1},
	Random:              {"RANDOM", 0},
	RandomDirect:        {"RANDOMDIRECT", 2},
	ThingCount:          {"THINGCOUNT", 0},
	ThingCountDirect:    {"THINGCOUNTDIRECT", 2},
	TagWait:             {"TAGWAIT", 0},
	TagWaitDirect:       {"TAGWAITDIRECT", 1},
	PolyWait:            {"POLYWAIT", 0},
	PolyWaitDirect:      {"POLYWAITDIRECT", 1},
	ChangeFloor:         {"CHANGEFLOOR", 0},
	ChangeFloorDirect:   {"CHANGEFLOORDIRECT", 2},
	ChangeCeiling:       {"CHANGECEILING", 0},
	ChangeCeilingDirect: {"CHANGECEILINGDIRECT", 2},
	Restart:             {"RESTART", 0},
	AndLogical:          {"ANDLOGICAL", 0},
	OrLogical:           {"ORLOGICAL", 0},
	AndBitwise:          {"ANDBITWISE", 0},
	OrBitwise:           {"ORBITWISE", 0},
	EorBitwise:          {"EORBITWISE", 0},
	NegateLogical:       {"NEGATELOGICAL", 0},
	LShift:              {"LSHIFT", 0},
	RShift:              {"RSHIFT", 0},
	UnaryMinus:          {"UNARYMINUS", 0},
	IfNotGoto:           {"IFNOTGOTO", 1},
	LineSide:            {"LINESIDE", 0},
	ScriptWait:          {"SCRIPTWAIT", 0},
	ScriptWaitDirect:    {"SCRIPTWAITDIRECT", 1},
	ClearLineSpecial:    {"CLEARLINESPECIAL", 0},
	CaseGoto:            {"CASEGOTO", 2},
	BeginPrint:          {"BEGINPRINT", 0},
	EndPrint:            {"ENDPRINT", 0},
	PrintString:         {"PRINTSTRING", 0},
	PrintNumber:         {"PRINTNUMBER", 0},
	PrintCharacter:      {"PRINTCHARACTER", 0},
	PlayerCount:         {"PLAYERCOUNT", 0},
	GameType:            {"GAMETYPE", 0},
	GameSkill:           {"GAMESKILL", 0},
	Timer:               {"TIMER", 0},
	SectorSound:         {"SECTORSOUND", 0},
	AmbientSound:        {"AMBIENTSOUND", 0},
	SoundSequence:       {"SOUNDSEQUENCE", 0},
	SetLineTexture:      {"SETLINETEXTURE", 0},
	SetLineBlocking:     {"SETLINEBLOCKING", 0},
	SetLineSpecial:      {"SETLINESPECIAL", 0},
	ThingSound:          {"THINGSOUND", 0},
	EndPrintBold:        {"ENDPRINTBOLD", 0},
}

var byName = func() map[string]Op {
	m := make(map[string]Op, Count)
	for op := Op(0); op < Count; op++ {
		m[table[op].Name] = op
	}
	return m
}()

// Valid reports whether op is a defined instruction code.
func (op Op) Valid() bool {
	return op >= 0 && op < Count
}

// Info returns the static description of op.
// The second result is false for undefined codes.
func (op Op) Info() (Info, bool) {
	if !op.Valid() {
		return Info{}, false
	}
	return table[op], true
}

// Operands returns the number of operand words of op, or 0 if op is undefined.
func (op Op) Operands() int {
	if !op.Valid() {
		return 0
	}
	return table[op].Operands
}

// Size returns the encoded size of the instruction in bytes.
func (op Op) Size() int {
	return 4 * (1 + op.Operands())
}

func (op Op) String() string {
	if !op.Valid() {
		return fmt.Sprintf("OP(%d)", int32(op))
	}
	return table[op].Name
}

// Lookup finds an instruction code by its upper-case name.
func Lookup(name string) (Op, bool) {
	op, ok := byName[name]
	return op, ok
}

// All returns every defined instruction code in numeric order.
func All() []Op {
	ops := make([]Op, 0, Count)
	for op := Op(0); op < Count; op++ {
		ops = append(ops, op)
	}
	return ops
}

// IsJump reports whether the last operand of op is an absolute jump target.
func (op Op) IsJump() bool {
	switch op {
	case Goto, IfGoto, IfNotGoto, CaseGoto:
		return true
	}
	return false
}

// LineSpecialArgs returns the argument count of a line special instruction
// and whether the arguments are encoded inline. ok is false for any other op.
func (op Op) LineSpecialArgs() (n int, direct bool, ok bool) {
	switch {
	case op >= LSpec1 && op <= LSpec5:
		return int(op-LSpec1) + 1, false, true
	case op >= LSpec1Direct && op <= LSpec5Direct:
		return int(op-LSpec1Direct) + 1, true, true
	}
	return 0, false, false
}
