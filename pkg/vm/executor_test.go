package vm

import (
	"math"
	"strings"
	"testing"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/module"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/opcode"
	"golang.org/x/text/encoding/charmap"
)

// TestEveryOpcodeHandled executes each defined instruction once and checks
// that none of them reaches the unknown-opcode fault.
func TestEveryOpcodeHandled(t *testing.T) {
	for _, op := range opcode.All() {
		t.Run(op.String(), func(t *testing.T) {
			s, _ := newTestSession(t, func(b *module.Builder) {
				b.String("A")
				b.Script(1, 0)
				for i := 0; i < 7; i++ {
					b.Push(0)
				}
				b.Emit(op, make([]int32, op.Operands())...)
				b.Emit(opcode.Terminate)
			})
			if err := s.Start(StartRequest{Script: 1}); err != nil {
				t.Fatal(err)
			}
			in, _ := s.Instance(1)
			for i := 0; i < 7; i++ {
				if _, err := s.step(in); err != nil {
					t.Fatalf("push %d: %v", i, err)
				}
			}
			_, err := s.step(in)
			if err != nil && strings.Contains(err.Error(), "unknown opcode") {
				t.Errorf("%s is not handled", op)
			}
		})
	}

	t.Run("undefined opcode faults", func(t *testing.T) {
		s, _ := newTestSession(t, func(b *module.Builder) {
			b.Script(1, 0).Raw(int32(opcode.Count))
		})
		_ = s.Start(StartRequest{Script: 1})
		in, _ := s.Instance(1)
		_, err := s.step(in)
		rerr := asRuntimeError(t, err)
		if rerr.Type != ErrorBytecodeFault || !rerr.IsFatal() {
			t.Errorf("expected fatal bytecode fault, got %v", rerr)
		}
	})
}

func TestExpressions(t *testing.T) {
	tests := []struct {
		name string
		body func(b *module.Builder)
		want int32
	}{
		{"add", func(b *module.Builder) { b.Push(2).Push(3).Emit(opcode.Add) }, 5},
		{"subtract", func(b *module.Builder) { b.Push(2).Push(3).Emit(opcode.Subtract) }, -1},
		{"multiply", func(b *module.Builder) { b.Push(-4).Push(3).Emit(opcode.Multiply) }, -12},
		{"divide truncates", func(b *module.Builder) { b.Push(-7).Push(2).Emit(opcode.Divide) }, -3},
		{"modulus sign", func(b *module.Builder) { b.Push(-7).Push(2).Emit(opcode.Modulus) }, -1},
		{"add wraps", func(b *module.Builder) { b.Push(math.MaxInt32).Push(1).Emit(opcode.Add) }, math.MinInt32},
		{"lt", func(b *module.Builder) { b.Push(1).Push(2).Emit(opcode.LT) }, 1},
		{"ge", func(b *module.Builder) { b.Push(1).Push(2).Emit(opcode.GE) }, 0},
		{"eq", func(b *module.Builder) { b.Push(4).Push(4).Emit(opcode.EQ) }, 1},
		{"and logical", func(b *module.Builder) { b.Push(4).Push(0).Emit(opcode.AndLogical) }, 0},
		{"or logical", func(b *module.Builder) { b.Push(4).Push(0).Emit(opcode.OrLogical) }, 1},
		{"and bitwise", func(b *module.Builder) { b.Push(6).Push(3).Emit(opcode.AndBitwise) }, 2},
		{"eor bitwise", func(b *module.Builder) { b.Push(6).Push(3).Emit(opcode.EorBitwise) }, 5},
		{"lshift", func(b *module.Builder) { b.Push(1).Push(4).Emit(opcode.LShift) }, 16},
		{"lshift masks count", func(b *module.Builder) { b.Push(1).Push(33).Emit(opcode.LShift) }, 2},
		{"rshift is arithmetic", func(b *module.Builder) { b.Push(-16).Push(2).Emit(opcode.RShift) }, -4},
		{"negate logical", func(b *module.Builder) { b.Push(0).Emit(opcode.NegateLogical) }, 1},
		{"unary minus", func(b *module.Builder) { b.Push(9).Emit(opcode.UnaryMinus) }, -9},
		{"drop", func(b *module.Builder) { b.Push(8).Push(9).Emit(opcode.Drop) }, 8},
		{"script vars", func(b *module.Builder) {
			b.Push(10).Emit(opcode.AssignScriptVar, 3).
				Push(5).Emit(opcode.SubScriptVar, 3).
				Push(3).Emit(opcode.MulScriptVar, 3).
				Push(4).Emit(opcode.ModScriptVar, 3).
				Emit(opcode.IncScriptVar, 3).
				Emit(opcode.PushScriptVar, 3)
		}, 4},
		{"map vars", func(b *module.Builder) {
			b.Push(20).Emit(opcode.AssignMapVar, 1).
				Push(2).Emit(opcode.DivMapVar, 1).
				Push(1).Emit(opcode.AddMapVar, 1).
				Emit(opcode.DecMapVar, 1).
				Emit(opcode.PushMapVar, 1)
		}, 10},
		{"if goto taken", func(b *module.Builder) {
			b.Push(1).Jump(opcode.IfGoto, "yes").Push(0).Jump(opcode.Goto, "end").
				Label("yes").Push(1).Label("end")
		}, 1},
		{"if not goto taken", func(b *module.Builder) {
			b.Push(0).Jump(opcode.IfNotGoto, "yes").Push(0).Jump(opcode.Goto, "end").
				Label("yes").Push(1).Label("end")
		}, 1},
		{"case goto", func(b *module.Builder) {
			b.Push(3).Case(1, "one").Case(3, "three").Emit(opcode.Drop).Push(0).Jump(opcode.Goto, "end").
				Label("one").Push(10).Jump(opcode.Goto, "end").
				Label("three").Push(30).Label("end")
		}, 30},
		{"case goto falls through", func(b *module.Builder) {
			b.Push(7).Case(1, "one").Jump(opcode.Goto, "end").
				Label("one").Push(10).Label("end")
		}, 7},
		{"random in empty range", func(b *module.Builder) { b.Push(9).Push(3).Emit(opcode.Random) }, 9},
		{"random direct single value", func(b *module.Builder) { b.Emit(opcode.RandomDirect, 4, 4) }, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := runScript(t, func(b *module.Builder) {
				tc.body(b)
				b.Emit(opcode.AssignWorldVar, 0).Emit(opcode.Terminate)
			})
			if stateOf(t, s, 1) != StateInactive {
				t.Fatalf("script did not finish, state %s", stateOf(t, s, 1))
			}
			if got := worldVar(t, s, 0); got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestRandomRange(t *testing.T) {
	s, _ := newTestSession(t, func(b *module.Builder) {
		b.Script(1, 0).Label("loop").
			Emit(opcode.RandomDirect, -2, 2).Emit(opcode.AssignScriptVar, 0).
			Emit(opcode.DelayDirect, 1).Jump(opcode.Goto, "loop")
	}, WithSeed(42))
	_ = s.Start(StartRequest{Script: 1})
	seen := map[int32]bool{}
	for i := 0; i < 200; i++ {
		s.Tick()
		in, _ := s.Instance(1)
		v := in.Locals()[0]
		if v < -2 || v > 2 {
			t.Fatalf("random value %d out of range", v)
		}
		seen[v] = true
	}
	if len(seen) != 5 {
		t.Errorf("expected all 5 values, saw %v", seen)
	}
}

func TestRestart(t *testing.T) {
	s, _ := runScript(t, func(b *module.Builder) {
		b.Emit(opcode.IncWorldVar, 0).Emit(opcode.DelayDirect, 1).Emit(opcode.Restart)
	})
	s.Tick()
	s.Tick()
	if worldVar(t, s, 0) != 3 {
		t.Errorf("expected 3 iterations, got %d", worldVar(t, s, 0))
	}
}

func TestLineSpecials(t *testing.T) {
	t.Run("stack arguments", func(t *testing.T) {
		s, w := newTestSession(t, func(b *module.Builder) {
			b.Script(1, 0).Push(1).Push(2).Push(300).Emit(opcode.LSpec3, 12).Emit(opcode.Terminate)
		})
		_ = s.Start(StartRequest{Script: 1, Line: 4, Side: 1, Activator: 9})
		s.Tick()
		if len(w.specials) != 1 {
			t.Fatalf("expected 1 special, got %d", len(w.specials))
		}
		c := w.specials[0]
		if c.Special != 12 || string(c.Args) != string([]byte{1, 2, 44}) {
			t.Errorf("unexpected call %+v", c)
		}
		if c.Line != 4 || c.Side != 1 || c.Activator != 9 {
			t.Errorf("activation context lost: %+v", c)
		}
	})

	t.Run("direct arguments", func(t *testing.T) {
		_, w := runScript(t, func(b *module.Builder) {
			b.Emit(opcode.LSpec5Direct, 20, 1, 2, 3, 4, 5).Emit(opcode.Terminate)
		})
		if len(w.specials) != 1 || string(w.specials[0].Args) != string([]byte{1, 2, 3, 4, 5}) {
			t.Errorf("unexpected specials %+v", w.specials)
		}
	})
}

func TestSectorMaterials(t *testing.T) {
	_, w := runScript(t, func(b *module.Builder) {
		b.Push(3).PushString("FLOOR1").Emit(opcode.ChangeFloor)
		b.Emit(opcode.ChangeCeilingDirect, 4, b.String("CEIL1"))
		b.Push(5).PushString("MISSING").Emit(opcode.ChangeFloor)
		b.Push(1).Emit(opcode.AssignWorldVar, 0).Emit(opcode.Terminate)
	})
	want := []sectorChange{{3, PlaneFloor, 1}, {4, PlaneCeiling, 2}}
	if len(w.sectorChanges) != len(want) {
		t.Fatalf("expected %d changes, got %+v", len(want), w.sectorChanges)
	}
	for i := range want {
		if w.sectorChanges[i] != want[i] {
			t.Errorf("change %d: expected %+v, got %+v", i, want[i], w.sectorChanges[i])
		}
	}
}

func TestLineOperations(t *testing.T) {
	s, w := newTestSession(t, func(b *module.Builder) {
		b.Script(1, 0).
			Push(7).Push(int32(SideBack)).Push(int32(TextureMiddle)).PushString("WALL1").Emit(opcode.SetLineTexture).
			Push(7).Push(1).Emit(opcode.SetLineBlocking).
			Push(7).Push(121).Push(1).Push(2).Push(3).Push(4).Push(260).Emit(opcode.SetLineSpecial).
			Emit(opcode.ClearLineSpecial).
			Emit(opcode.LineSide).Emit(opcode.AssignWorldVar, 0).
			Emit(opcode.Terminate)
	})
	w.lines[7] = []LineID{10, 11}
	_ = s.Start(StartRequest{Script: 1, Line: 3, Side: 1})
	s.Tick()

	if len(w.textureChanges) != 2 {
		t.Fatalf("expected 2 texture changes, got %+v", w.textureChanges)
	}
	if c := w.textureChanges[1]; c != (textureChange{11, SideBack, TextureMiddle, 3}) {
		t.Errorf("unexpected texture change %+v", c)
	}
	if !w.blocking[10] || !w.blocking[11] {
		t.Errorf("lines not blocked: %v", w.blocking)
	}
	if len(w.lineSpecials) != 2 {
		t.Fatalf("expected 2 special changes, got %+v", w.lineSpecials)
	}
	if c := w.lineSpecials[0]; c.Special != 121 || c.Args != [5]byte{1, 2, 3, 4, 4} {
		t.Errorf("unexpected special change %+v", c)
	}
	if len(w.cleared) != 1 || w.cleared[0] != 3 {
		t.Errorf("expected activating line cleared, got %v", w.cleared)
	}
	if worldVar(t, s, 0) != 1 {
		t.Errorf("expected line side 1, got %d", worldVar(t, s, 0))
	}
}

func TestSounds(t *testing.T) {
	t.Run("sector sound from line front sector", func(t *testing.T) {
		s, w := newTestSession(t, func(b *module.Builder) {
			b.Script(1, 0).
				PushString("DoorOpen").Push(127).Emit(opcode.SectorSound).
				PushString("Seq").Emit(opcode.SoundSequence).
				Emit(opcode.Terminate)
		})
		w.frontSectors[2] = 8
		_ = s.Start(StartRequest{Script: 1, Line: 2})
		s.Tick()
		if len(w.sounds) != 1 {
			t.Fatalf("expected 1 sound, got %d", len(w.sounds))
		}
		snd := w.sounds[0]
		if snd.Name != "DoorOpen" || snd.Volume != 1 || snd.Origin.Kind != OriginSector || snd.Origin.Sector != 8 {
			t.Errorf("unexpected sound %+v", snd)
		}
		if len(w.sequences) != 1 || w.sequences[0] != "Seq" {
			t.Errorf("unexpected sequences %v", w.sequences)
		}
	})

	t.Run("sector sound without line has no origin", func(t *testing.T) {
		_, w := runScript(t, func(b *module.Builder) {
			b.PushString("Hum").Push(64).Emit(opcode.SectorSound).Emit(opcode.Terminate)
		})
		if len(w.sounds) != 1 || w.sounds[0].Origin.Kind != OriginNone {
			t.Errorf("unexpected sounds %+v", w.sounds)
		}
	})

	t.Run("thing sound on every match", func(t *testing.T) {
		s, w := newTestSession(t, func(b *module.Builder) {
			b.Script(1, 0).Push(6).PushString("Growl").Push(127).Emit(opcode.ThingSound).Emit(opcode.Terminate)
		})
		w.things[6] = []ThingID{1, 2, 3}
		_ = s.Start(StartRequest{Script: 1})
		s.Tick()
		if len(w.sounds) != 3 {
			t.Fatalf("expected 3 sounds, got %d", len(w.sounds))
		}
		for i, snd := range w.sounds {
			if snd.Origin.Kind != OriginThing || snd.Origin.Thing != ThingID(i+1) {
				t.Errorf("unexpected sound %+v", snd)
			}
		}
	})

	t.Run("ambient sound", func(t *testing.T) {
		_, w := runScript(t, func(b *module.Builder) {
			b.PushString("Wind").Push(127).Emit(opcode.AmbientSound).Emit(opcode.Terminate)
		})
		if len(w.sounds) != 1 || w.sounds[0].Origin.Kind != OriginNone {
			t.Errorf("unexpected sounds %+v", w.sounds)
		}
	})

	t.Run("ambient sound in 3-D", func(t *testing.T) {
		s, w := newTestSession(t, func(b *module.Builder) {
			b.Script(1, 0).PushString("Wind").Push(127).Emit(opcode.AmbientSound).Emit(opcode.Terminate)
		}, WithSound3D(true))
		w.positions[0] = [3]float64{1000, 2000, 0}
		_ = s.Start(StartRequest{Script: 1})
		s.Tick()
		if len(w.sounds) != 1 {
			t.Fatalf("expected 1 sound, got %d", len(w.sounds))
		}
		o := w.sounds[0].Origin
		if o.Kind != OriginPoint {
			t.Fatalf("expected point origin, got %+v", o)
		}
		if o.X < 1000-254 || o.X > 1000+256 || o.Y < 2000-254 || o.Y > 2000+256 || o.Z < 5 || o.Z > 260 {
			t.Errorf("origin too far from the player: %+v", o)
		}
	})
}

func TestPrinting(t *testing.T) {
	t.Run("mixed items", func(t *testing.T) {
		s, w := newTestSession(t, func(b *module.Builder) {
			b.Script(1, 0).
				Emit(opcode.BeginPrint).
				PushString("Score: ").Emit(opcode.PrintString).
				Push(-42).Emit(opcode.PrintNumber).
				Push(0x82).Emit(opcode.PrintCharacter).
				Emit(opcode.EndPrint).
				Emit(opcode.Terminate)
		})
		_ = s.Start(StartRequest{Script: 1})
		s.Tick()
		if len(w.messages) != 1 || w.messages[0].Text != "Score: -42é" {
			t.Errorf("unexpected messages %+v", w.messages)
		}
	})

	t.Run("charset option", func(t *testing.T) {
		_, w := runScript(t, func(b *module.Builder) {
			b.Emit(opcode.BeginPrint).Push(0xE9).Emit(opcode.PrintCharacter).Emit(opcode.EndPrint).Emit(opcode.Terminate)
		}, WithCharset(charmap.ISO8859_1))
		if len(w.messages) != 1 || w.messages[0].Text != "é" {
			t.Errorf("unexpected messages %+v", w.messages)
		}
	})

	t.Run("bold broadcasts priority", func(t *testing.T) {
		s, w := newTestSession(t, func(b *module.Builder) {
			b.Script(1, 0).Emit(opcode.BeginPrint).PushString("Alert").Emit(opcode.PrintString).
				Emit(opcode.EndPrintBold).Emit(opcode.Terminate)
		})
		w.inGame = []int{0, 1}
		w.owners[3] = 1
		_ = s.Start(StartRequest{Script: 1, Activator: 3})
		s.Tick()
		if len(w.messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(w.messages))
		}
		for _, m := range w.messages {
			if !m.Priority || m.Text != "Alert" {
				t.Errorf("unexpected message %+v", m)
			}
		}
	})

	t.Run("buffer is bounded", func(t *testing.T) {
		l := DefaultLimits()
		l.PrintBuffer = 8
		_, w := runScript(t, func(b *module.Builder) {
			b.Emit(opcode.BeginPrint)
			for i := 0; i < 5; i++ {
				b.PushString("abc").Emit(opcode.PrintString)
			}
			b.Emit(opcode.EndPrint).Emit(opcode.Terminate)
		}, WithLimits(l))
		if len(w.messages) != 1 || w.messages[0].Text != "abcabcab" {
			t.Errorf("unexpected messages %+v", w.messages)
		}
	})
}

func TestEnvironmentQueries(t *testing.T) {
	s, w := newTestSession(t, func(b *module.Builder) {
		b.Script(1, 0).
			Emit(opcode.PlayerCount).Emit(opcode.AssignWorldVar, 0).
			Emit(opcode.GameType).Emit(opcode.AssignWorldVar, 1).
			Emit(opcode.GameSkill).Emit(opcode.AssignWorldVar, 2).
			Emit(opcode.Timer).Emit(opcode.AssignWorldVar, 3).
			Emit(opcode.ThingCountDirect, 30, 4).Emit(opcode.AssignWorldVar, 4).
			Emit(opcode.Terminate)
	})
	w.inGame = []int{0, 1, 2}
	w.mode = GameDeathmatch
	w.skill = 3
	w.mapTime = 700
	w.thingCount = 6
	_ = s.Start(StartRequest{Script: 1})
	s.Tick()

	want := []int32{3, 2, 3, 700, 6}
	for i, v := range want {
		if got := worldVar(t, s, int32(i)); got != v {
			t.Errorf("world var %d: expected %d, got %d", i, v, got)
		}
	}
	if w.countQuery != [2]int32{30, 4} {
		t.Errorf("unexpected thing count query %v", w.countQuery)
	}
}
