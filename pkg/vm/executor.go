// Package vm provides instruction execution for the ACS virtual machine.
package vm

import (
	"strconv"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/opcode"
)

type stepKind int

const (
	stepContinue stepKind = iota
	stepBlocked
	stepTerminated
)

// stepResult is the outcome of executing one instruction.
type stepResult struct {
	kind   stepKind
	reason State // state entered when blocked; StateRunning for a delay
}

var (
	cont       = stepResult{kind: stepContinue}
	terminated = stepResult{kind: stepTerminated}
)

func blocked(reason State) stepResult {
	return stepResult{kind: stepBlocked, reason: reason}
}

// fetch reads the next word at the instruction pointer.
func (s *Session) fetch(in *Instance) (int32, error) {
	w, err := s.mod.Word(in.ip)
	if err != nil {
		return 0, in.fault(ErrorBytecodeFault, "instruction pointer %d outside code", in.ip)
	}
	in.ip += 4
	return w, nil
}

// operands reads n operand words. The result aliases scratch space.
func (s *Session) operands(in *Instance, n int) ([]int32, error) {
	out := in.opnd[:n]
	for i := range out {
		w, err := s.fetch(in)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

func (s *Session) jump(in *Instance, target int32) error {
	if !s.mod.InCode(int(target)) {
		return in.fault(ErrorBytecodeFault, "jump to %d outside code", target)
	}
	in.ip = int(target)
	return nil
}

func (s *Session) str(in *Instance, index int32) (string, error) {
	str, ok := s.mod.String(index)
	if !ok {
		return "", in.fault(ErrorBytecodeFault, "string %d not in table of %d", index, s.mod.NumStrings())
	}
	return str, nil
}

// step executes the instruction at the instruction pointer.
func (s *Session) step(in *Instance) (stepResult, error) {
	in.opStart = in.ip
	word, err := s.fetch(in)
	if err != nil {
		return stepResult{}, err
	}
	op := opcode.Op(word)

	switch op {
	case opcode.Nop:
		return cont, nil

	case opcode.Terminate:
		return terminated, nil

	case opcode.Suspend:
		in.entry.state = StateSuspended
		return blocked(StateSuspended), nil

	case opcode.PushNumber:
		v, err := s.operands(in, 1)
		if err != nil {
			return stepResult{}, err
		}
		return cont, in.push(v[0])

	case opcode.LSpec1, opcode.LSpec2, opcode.LSpec3, opcode.LSpec4, opcode.LSpec5:
		n, _, _ := op.LineSpecialArgs()
		special, err := s.operands(in, 1)
		if err != nil {
			return stepResult{}, err
		}
		id := special[0]
		args, err := in.popN(n)
		if err != nil {
			return stepResult{}, err
		}
		s.lineSpecial(in, id, args)
		return cont, nil

	case opcode.LSpec1Direct, opcode.LSpec2Direct, opcode.LSpec3Direct, opcode.LSpec4Direct, opcode.LSpec5Direct:
		n, _, _ := op.LineSpecialArgs()
		ops, err := s.operands(in, n+1)
		if err != nil {
			return stepResult{}, err
		}
		s.lineSpecial(in, ops[0], ops[1:])
		return cont, nil

	case opcode.Add, opcode.Subtract, opcode.Multiply, opcode.Divide, opcode.Modulus,
		opcode.EQ, opcode.NE, opcode.LT, opcode.GT, opcode.LE, opcode.GE,
		opcode.AndLogical, opcode.OrLogical, opcode.AndBitwise, opcode.OrBitwise, opcode.EorBitwise,
		opcode.LShift, opcode.RShift:
		v, err := in.popN(2)
		if err != nil {
			return stepResult{}, err
		}
		r, ok := binaryOp(op, v[0], v[1])
		if !ok {
			return stepResult{}, in.fault(ErrorDivisionByZero, "%s by zero", op)
		}
		return cont, in.push(r)

	case opcode.NegateLogical:
		v, err := in.pop()
		if err != nil {
			return stepResult{}, err
		}
		return cont, in.push(boolInt(v == 0))

	case opcode.UnaryMinus:
		v, err := in.pop()
		if err != nil {
			return stepResult{}, err
		}
		return cont, in.push(-v)

	case opcode.AssignScriptVar, opcode.AssignMapVar, opcode.AssignWorldVar,
		opcode.PushScriptVar, opcode.PushMapVar, opcode.PushWorldVar,
		opcode.AddScriptVar, opcode.AddMapVar, opcode.AddWorldVar,
		opcode.SubScriptVar, opcode.SubMapVar, opcode.SubWorldVar,
		opcode.MulScriptVar, opcode.MulMapVar, opcode.MulWorldVar,
		opcode.DivScriptVar, opcode.DivMapVar, opcode.DivWorldVar,
		opcode.ModScriptVar, opcode.ModMapVar, opcode.ModWorldVar,
		opcode.IncScriptVar, opcode.IncMapVar, opcode.IncWorldVar,
		opcode.DecScriptVar, opcode.DecMapVar, opcode.DecWorldVar:
		return cont, s.varOp(in, op)

	case opcode.Goto:
		t, err := s.operands(in, 1)
		if err != nil {
			return stepResult{}, err
		}
		return cont, s.jump(in, t[0])

	case opcode.IfGoto, opcode.IfNotGoto:
		t, err := s.operands(in, 1)
		if err != nil {
			return stepResult{}, err
		}
		target := t[0]
		v, err := in.pop()
		if err != nil {
			return stepResult{}, err
		}
		if (v != 0) == (op == opcode.IfGoto) {
			return cont, s.jump(in, target)
		}
		return cont, nil

	case opcode.CaseGoto:
		ops, err := s.operands(in, 2)
		if err != nil {
			return stepResult{}, err
		}
		value, target := ops[0], ops[1]
		v, err := in.top()
		if err != nil {
			return stepResult{}, err
		}
		if v == value {
			in.stack = in.stack[:len(in.stack)-1]
			return cont, s.jump(in, target)
		}
		return cont, nil

	case opcode.Drop:
		_, err := in.pop()
		return cont, err

	case opcode.Delay, opcode.DelayDirect:
		v, err := s.valueOrOperand(in, op == opcode.DelayDirect)
		if err != nil {
			return stepResult{}, err
		}
		in.delay = max(int(v), 0)
		return blocked(StateRunning), nil

	case opcode.Random, opcode.RandomDirect:
		v, err := s.valuesOrOperands(in, 2, op == opcode.RandomDirect)
		if err != nil {
			return stepResult{}, err
		}
		return cont, in.push(s.random(v[0], v[1]))

	case opcode.ThingCount, opcode.ThingCountDirect:
		v, err := s.valuesOrOperands(in, 2, op == opcode.ThingCountDirect)
		if err != nil {
			return stepResult{}, err
		}
		return cont, in.push(s.world.CountThings(v[0], v[1]))

	case opcode.TagWait, opcode.TagWaitDirect:
		v, err := s.valueOrOperand(in, op == opcode.TagWaitDirect)
		if err != nil {
			return stepResult{}, err
		}
		return s.wait(in, StateWaitingForTag, v), nil

	case opcode.PolyWait, opcode.PolyWaitDirect:
		v, err := s.valueOrOperand(in, op == opcode.PolyWaitDirect)
		if err != nil {
			return stepResult{}, err
		}
		return s.wait(in, StateWaitingForPolyobject, v), nil

	case opcode.ScriptWait, opcode.ScriptWaitDirect:
		v, err := s.valueOrOperand(in, op == opcode.ScriptWaitDirect)
		if err != nil {
			return stepResult{}, err
		}
		if _, ok := s.byNumber[v]; !ok {
			return cont, nil
		}
		return s.wait(in, StateWaitingForScript, v), nil

	case opcode.ChangeFloor, opcode.ChangeFloorDirect,
		opcode.ChangeCeiling, opcode.ChangeCeilingDirect:
		direct := op == opcode.ChangeFloorDirect || op == opcode.ChangeCeilingDirect
		v, err := s.valuesOrOperands(in, 2, direct)
		if err != nil {
			return stepResult{}, err
		}
		plane := PlaneFloor
		if op == opcode.ChangeCeiling || op == opcode.ChangeCeilingDirect {
			plane = PlaneCeiling
		}
		return cont, s.changeSectorMaterial(in, v[0], plane, v[1])

	case opcode.Restart:
		in.ip = in.entry.def.Entry
		return cont, nil

	case opcode.LineSide:
		return cont, in.push(in.side)

	case opcode.ClearLineSpecial:
		if in.line != NoLine {
			s.world.ClearLineSpecial(in.line)
		}
		return cont, nil

	case opcode.BeginPrint:
		in.beginPrint()
		return cont, nil

	case opcode.PrintString:
		v, err := in.pop()
		if err != nil {
			return stepResult{}, err
		}
		str, err := s.str(in, v)
		if err != nil {
			return stepResult{}, err
		}
		in.appendPrint(str)
		return cont, nil

	case opcode.PrintNumber:
		v, err := in.pop()
		if err != nil {
			return stepResult{}, err
		}
		in.appendPrint(strconv.Itoa(int(v)))
		return cont, nil

	case opcode.PrintCharacter:
		v, err := in.pop()
		if err != nil {
			return stepResult{}, err
		}
		in.appendPrint(string(s.charset.DecodeByte(byte(v))))
		return cont, nil

	case opcode.EndPrint:
		s.endPrint(in, false)
		return cont, nil

	case opcode.EndPrintBold:
		s.endPrint(in, true)
		return cont, nil

	case opcode.PlayerCount:
		return cont, in.push(int32(len(s.world.PlayersInGame())))

	case opcode.GameType:
		return cont, in.push(int32(s.world.GameMode()))

	case opcode.GameSkill:
		return cont, in.push(s.world.Skill())

	case opcode.Timer:
		return cont, in.push(s.world.MapTime())

	case opcode.SectorSound:
		v, err := in.popN(2)
		if err != nil {
			return stepResult{}, err
		}
		name, err := s.str(in, v[0])
		if err != nil {
			return stepResult{}, err
		}
		s.world.StartSound(SoundRequest{Name: name, Origin: s.lineOrigin(in), Volume: volume(v[1])})
		return cont, nil

	case opcode.AmbientSound:
		v, err := in.popN(2)
		if err != nil {
			return stepResult{}, err
		}
		name, err := s.str(in, v[0])
		if err != nil {
			return stepResult{}, err
		}
		s.world.StartSound(SoundRequest{Name: name, Origin: s.ambientOrigin(), Volume: volume(v[1])})
		return cont, nil

	case opcode.SoundSequence:
		v, err := in.pop()
		if err != nil {
			return stepResult{}, err
		}
		name, err := s.str(in, v)
		if err != nil {
			return stepResult{}, err
		}
		s.world.StartSoundSequence(name, s.lineOrigin(in))
		return cont, nil

	case opcode.ThingSound:
		v, err := in.popN(3)
		if err != nil {
			return stepResult{}, err
		}
		tid, nameIdx, vol := v[0], v[1], v[2]
		name, err := s.str(in, nameIdx)
		if err != nil {
			return stepResult{}, err
		}
		for _, th := range s.world.FindThings(tid) {
			s.world.StartSound(SoundRequest{
				Name:   name,
				Origin: SoundOrigin{Kind: OriginThing, Thing: th},
				Volume: volume(vol),
			})
		}
		return cont, nil

	case opcode.SetLineTexture:
		v, err := in.popN(4)
		if err != nil {
			return stepResult{}, err
		}
		return cont, s.setLineTexture(in, v[0], v[1], TexturePart(v[2]), v[3])

	case opcode.SetLineBlocking:
		v, err := in.popN(2)
		if err != nil {
			return stepResult{}, err
		}
		tag, blocking := v[0], v[1] != 0
		for _, line := range s.world.FindLines(tag) {
			s.world.SetLineBlocking(line, blocking)
		}
		return cont, nil

	case opcode.SetLineSpecial:
		v, err := in.popN(7)
		if err != nil {
			return stepResult{}, err
		}
		tag, special := v[0], v[1]
		var args [5]byte
		for i := range args {
			args[i] = byte(v[2+i])
		}
		for _, line := range s.world.FindLines(tag) {
			s.world.SetLineSpecial(line, special, args)
		}
		return cont, nil
	}

	return stepResult{}, in.fault(ErrorBytecodeFault, "unknown opcode %d", word)
}

// valueOrOperand returns the inline operand of a direct instruction or pops
// the value of its stack variant.
func (s *Session) valueOrOperand(in *Instance, direct bool) (int32, error) {
	if direct {
		v, err := s.operands(in, 1)
		if err != nil {
			return 0, err
		}
		return v[0], nil
	}
	return in.pop()
}

func (s *Session) valuesOrOperands(in *Instance, n int, direct bool) ([]int32, error) {
	if direct {
		return s.operands(in, n)
	}
	return in.popN(n)
}

// wait blocks in until value is released. A script whose state was changed
// during its run (for example suspended by a line special) keeps that state.
func (s *Session) wait(in *Instance, state State, value int32) stepResult {
	if in.entry.state == StateRunning {
		in.entry.state = state
		in.entry.waitValue = value
	}
	return blocked(state)
}

func (s *Session) varOp(in *Instance, op opcode.Op) error {
	idx, err := s.operands(in, 1)
	if err != nil {
		return err
	}
	i := idx[0]

	var scope Scope
	var store *VarStore
	switch op {
	case opcode.AssignScriptVar, opcode.PushScriptVar, opcode.AddScriptVar, opcode.SubScriptVar,
		opcode.MulScriptVar, opcode.DivScriptVar, opcode.ModScriptVar, opcode.IncScriptVar, opcode.DecScriptVar:
		scope, store = ScopeScript, in.locals
	case opcode.AssignMapVar, opcode.PushMapVar, opcode.AddMapVar, opcode.SubMapVar,
		opcode.MulMapVar, opcode.DivMapVar, opcode.ModMapVar, opcode.IncMapVar, opcode.DecMapVar:
		scope, store = ScopeMap, s.mapVars
	default:
		scope, store = ScopeWorld, s.worldVars
	}

	cur, ok := store.Get(i)
	if !ok {
		return in.fault(ErrorBytecodeFault, "%s variable %d out of range (%d)", scope, i, store.Len())
	}

	var next int32
	switch op {
	case opcode.PushScriptVar, opcode.PushMapVar, opcode.PushWorldVar:
		return in.push(cur)
	case opcode.IncScriptVar, opcode.IncMapVar, opcode.IncWorldVar:
		next = cur + 1
	case opcode.DecScriptVar, opcode.DecMapVar, opcode.DecWorldVar:
		next = cur - 1
	default:
		v, err := in.pop()
		if err != nil {
			return err
		}
		switch op {
		case opcode.AssignScriptVar, opcode.AssignMapVar, opcode.AssignWorldVar:
			next = v
		case opcode.AddScriptVar, opcode.AddMapVar, opcode.AddWorldVar:
			next = cur + v
		case opcode.SubScriptVar, opcode.SubMapVar, opcode.SubWorldVar:
			next = cur - v
		case opcode.MulScriptVar, opcode.MulMapVar, opcode.MulWorldVar:
			next = cur * v
		case opcode.DivScriptVar, opcode.DivMapVar, opcode.DivWorldVar:
			if v == 0 {
				return in.fault(ErrorDivisionByZero, "%s by zero", op)
			}
			next = cur / v
		default: // modulus
			if v == 0 {
				return in.fault(ErrorDivisionByZero, "%s by zero", op)
			}
			next = cur % v
		}
	}
	store.Set(i, next)
	return nil
}

// binaryOp applies a two-operand instruction with 32-bit wrap-around.
// ok is false for division or modulus by zero.
func binaryOp(op opcode.Op, a, b int32) (r int32, ok bool) {
	switch op {
	case opcode.Add:
		return a + b, true
	case opcode.Subtract:
		return a - b, true
	case opcode.Multiply:
		return a * b, true
	case opcode.Divide:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case opcode.Modulus:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case opcode.EQ:
		return boolInt(a == b), true
	case opcode.NE:
		return boolInt(a != b), true
	case opcode.LT:
		return boolInt(a < b), true
	case opcode.GT:
		return boolInt(a > b), true
	case opcode.LE:
		return boolInt(a <= b), true
	case opcode.GE:
		return boolInt(a >= b), true
	case opcode.AndLogical:
		return boolInt(a != 0 && b != 0), true
	case opcode.OrLogical:
		return boolInt(a != 0 || b != 0), true
	case opcode.AndBitwise:
		return a & b, true
	case opcode.OrBitwise:
		return a | b, true
	case opcode.EorBitwise:
		return a ^ b, true
	case opcode.LShift:
		return a << (uint32(b) & 31), true
	case opcode.RShift:
		return a >> (uint32(b) & 31), true
	}
	return 0, true
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// random returns a value in [low, high]. An empty range yields low.
func (s *Session) random(low, high int32) int32 {
	if high <= low {
		return low
	}
	span := int64(high) - int64(low) + 1
	return int32(int64(low) + s.rng.Int64N(span))
}

// volume converts a 0..127 script volume.
func volume(v int32) float32 {
	return float32(min(max(v, 0), 127)) / 127
}
