package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/config"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/logger"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/module"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/opcode"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/vm"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/world"
)

func newTestConsole(t *testing.T) (*Console, *vm.Session, *world.World, *bytes.Buffer) {
	t.Helper()
	b := module.NewBuilder()
	b.Script(1, 2).
		Emit(opcode.PushScriptVar, 0).Emit(opcode.PushScriptVar, 1).Emit(opcode.Add).
		Emit(opcode.AssignWorldVar, 3).
		Emit(opcode.DelayDirect, 100).
		Emit(opcode.Terminate)
	b.Script(2, 0).
		Emit(opcode.PushNumber, 9).Emit(opcode.AssignMapVar, 1).
		Emit(opcode.DelayDirect, 100).
		Emit(opcode.Terminate)

	w, err := world.New(config.Default().World, world.WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.EnterMap(1)
	s := vm.NewSession(w, vm.WithLogger(logger.Discard()))
	if err := s.LoadMap(1, b.MustBytes()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out bytes.Buffer
	return New(s, &out), s, w, &out
}

func TestExec_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"未知のコマンド", "noclip"},
		{"引数不足", "puke"},
		{"引数過多", "puke 1 2 3 4 5 6"},
		{"数値でない引数", "stopscript abc"},
		{"余分な引数", "worldvars 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _, _ := newTestConsole(t)
			if err := c.Exec(tt.line); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	t.Run("未知のコマンドのエラー種別", func(t *testing.T) {
		c, _, _, _ := newTestConsole(t)
		if err := c.Exec("bogus"); !errors.Is(err, ErrUnknownCommand) {
			t.Errorf("expected ErrUnknownCommand, got %v", err)
		}
	})

	t.Run("空行", func(t *testing.T) {
		c, _, _, out := newTestConsole(t)
		if err := c.Exec("   "); err != nil || out.Len() != 0 {
			t.Errorf("blank line should be ignored: %v %q", err, out.String())
		}
	})
}

func TestPuke(t *testing.T) {
	c, s, w, out := newTestConsole(t)
	if err := c.Exec("PUKE 1 20 22"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Running script 1") {
		t.Errorf("unexpected output %q", out.String())
	}
	s.Tick()
	if v, _ := s.WorldVars().Get(3); v != 42 {
		t.Errorf("arguments not passed, got %d", v)
	}

	out.Reset()
	_ = c.Exec("puke 1")
	if !strings.Contains(out.String(), string(vm.ErrorDuplicateScript)) {
		t.Errorf("expected duplicate error, got %q", out.String())
	}

	out.Reset()
	_ = c.Exec("puke 77")
	msgs := w.Messages()
	if len(msgs) != 1 || msgs[0].Text != "Unknown script 77" || !msgs[0].Priority {
		t.Errorf("expected unknown script message, got %+v", msgs)
	}
}

func TestStopAndPause(t *testing.T) {
	c, s, _, out := newTestConsole(t)
	_ = c.Exec("puke 1")
	_ = c.Exec("puke 2")
	s.Tick()

	_ = c.Exec("pausescript 2")
	if st, _, _ := s.ScriptState(2); st != vm.StateSuspended {
		t.Errorf("expected suspended, got %s", st)
	}
	_ = c.Exec("stopscript 1")
	s.Tick()
	if st, _, _ := s.ScriptState(1); st != vm.StateInactive {
		t.Errorf("expected inactive, got %s", st)
	}

	out.Reset()
	_ = c.Exec("stopscript 1")
	if !strings.Contains(out.String(), "not running") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestScriptInfo(t *testing.T) {
	c, s, _, out := newTestConsole(t)
	_ = c.Exec("puke 1 5 6")
	s.Tick()

	out.Reset()
	_ = c.Exec("scriptinfo")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out.String())
	}
	if lines[0] != "1: Running wait:0 locals:5 6 0 0" {
		t.Errorf("unexpected line %q", lines[0])
	}
	if lines[1] != "2: Inactive wait:0 locals:0 0 0 0" {
		t.Errorf("unexpected line %q", lines[1])
	}

	out.Reset()
	_ = c.Exec("scriptinfo 9")
	if !strings.Contains(out.String(), "Unknown script 9") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestVars(t *testing.T) {
	c, s, _, out := newTestConsole(t)
	_ = c.Exec("worldvars")
	if !strings.Contains(out.String(), "All world vars are zero") {
		t.Errorf("unexpected output %q", out.String())
	}

	_ = c.Exec("puke 1 1 2")
	_ = c.Exec("puke 2")
	s.Tick()
	out.Reset()
	_ = c.Exec("worldvars")
	_ = c.Exec("mapvars")
	for _, want := range []string{"World var 3 = 3", "Map var 1 = 9"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q: %q", want, out.String())
		}
	}
}

func TestCommands(t *testing.T) {
	got := Commands()
	if len(got) != len(commands) || !strings.HasPrefix(got[0], "mapvars") {
		t.Errorf("unexpected command list %v", got)
	}
}
