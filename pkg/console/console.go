// Package console はスクリプトを操作するコンソールコマンドを提供する。
// コマンドは1行ずつ解釈され、結果は io.Writer に出力される。
package console

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/logger"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/vm"
)

// ErrUnknownCommand は未知のコマンドを表す
var ErrUnknownCommand = errors.New("unknown command")

// Console はセッションに対するコマンドを実行する。
// Exec はセッションを進めるゴルーチンから呼ぶこと。
type Console struct {
	session *vm.Session
	out     io.Writer
	log     *slog.Logger
}

type command struct {
	usage    string
	min, max int // 引数の個数
	run      func(c *Console, args []int32)
}

var commands = map[string]command{
	"puke":        {"puke <script> [arg1..arg4]", 1, 5, (*Console).puke},
	"stopscript":  {"stopscript <script>", 1, 1, (*Console).stop},
	"pausescript": {"pausescript <script>", 1, 1, (*Console).pause},
	"scriptinfo":  {"scriptinfo [script]", 0, 1, (*Console).info},
	"worldvars":   {"worldvars", 0, 0, (*Console).worldVars},
	"mapvars":     {"mapvars", 0, 0, (*Console).mapVars},
}

// New は Console を作成する
func New(session *vm.Session, out io.Writer) *Console {
	return &Console{session: session, out: out, log: logger.GetLogger()}
}

// Commands はコマンドの使い方を名前順で返す
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = commands[name].usage
	}
	return out
}

// Exec は1行のコマンドを実行する。空行は無視する。
func (c *Console) Exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name := strings.ToLower(fields[0])
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}

	if n := len(fields) - 1; n < cmd.min || n > cmd.max {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	args := make([]int32, 0, len(fields)-1)
	for _, f := range fields[1:] {
		v, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return fmt.Errorf("usage: %s", cmd.usage)
		}
		args = append(args, int32(v))
	}
	c.log.Debug("Console command", "command", name, "args", args)
	cmd.run(c, args)
	return nil
}

func (c *Console) printf(format string, a ...any) {
	fmt.Fprintf(c.out, format+"\n", a...)
}

// puke はスクリプトを明示的に起動する
func (c *Console) puke(args []int32) {
	req := vm.StartRequest{Script: args[0], Explicit: true}
	for i, a := range args[1:] {
		req.Args[i] = byte(a)
	}
	if err := c.session.Start(req); err != nil {
		c.printf("%v", err)
		return
	}
	c.printf("Running script %d", args[0])
}

func (c *Console) stop(args []int32) {
	if !c.session.RequestTerminate(args[0]) {
		c.printf("Script %d is not running", args[0])
		return
	}
	c.printf("Stopping script %d", args[0])
}

func (c *Console) pause(args []int32) {
	if !c.session.RequestSuspend(args[0]) {
		c.printf("Script %d is not running", args[0])
		return
	}
	c.printf("Pausing script %d", args[0])
}

// info はスクリプトごとに番号、状態、待機値、先頭4個のローカル変数を出力する
func (c *Console) info(args []int32) {
	scripts := c.session.Scripts()
	if len(scripts) == 0 {
		c.printf("No scripts loaded")
		return
	}
	found := false
	for _, st := range scripts {
		if len(args) == 1 && st.Number != args[0] {
			continue
		}
		found = true
		var locals [4]int32
		copy(locals[:], st.Locals)
		open := ""
		if st.Open {
			open = " (open)"
		}
		c.printf("%d%s: %s wait:%d locals:%d %d %d %d",
			st.Number, open, st.State, st.WaitValue,
			locals[0], locals[1], locals[2], locals[3])
	}
	if !found {
		c.printf("Unknown script %d", args[0])
	}
}

func (c *Console) worldVars([]int32) {
	c.printVars("World", c.session.WorldVars().Values())
}

func (c *Console) mapVars([]int32) {
	c.printVars("Map", c.session.MapVars().Values())
}

// printVars は0でない変数だけを出力する
func (c *Console) printVars(kind string, vals []int32) {
	n := 0
	for i, v := range vals {
		if v != 0 {
			c.printf("%s var %d = %d", kind, i, v)
			n++
		}
	}
	if n == 0 {
		c.printf("All %s vars are zero", strings.ToLower(kind))
	}
}
