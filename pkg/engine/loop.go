// Package engine drives an ACS session and its world at the game tick rate.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/logger"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/vm"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/world"
)

// ErrTerminated is returned when the loop is terminated.
var ErrTerminated = errors.New("engine terminated")

// TickDuration is the wall-clock length of one tick in realtime mode.
const TickDuration = time.Second / vm.TicsPerSecond

// ModuleSource provides the compiled script module of a map.
// A map without scripts yields a nil blob and no error.
type ModuleSource interface {
	Module(mapID int) ([]byte, error)
}

// Loop owns a session and its world. Every method except Submit,
// Terminate and IsTerminated must be called from the goroutine that runs
// the loop.
type Loop struct {
	session *vm.Session
	world   *world.World
	source  ModuleSource
	log     *slog.Logger

	commands   chan func()
	terminated atomic.Bool
	timeout    time.Duration
	realtime   bool
	startTime  time.Time
	ticks      uint64
}

// Option is a functional option for configuring the Loop.
type Option func(*Loop)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) {
		l.log = log
	}
}

// WithTimeout stops Run after d of wall-clock time. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Loop) {
		l.timeout = d
	}
}

// WithRealtime paces Run at TicsPerSecond instead of running as fast as
// possible.
func WithRealtime(enabled bool) Option {
	return func(l *Loop) {
		l.realtime = enabled
	}
}

// New creates a loop. The world's script host is set to the session.
func New(session *vm.Session, w *world.World, source ModuleSource, opts ...Option) *Loop {
	l := &Loop{
		session:  session,
		world:    w,
		source:   source,
		log:      logger.GetLogger(),
		commands: make(chan func(), 64),
	}
	for _, opt := range opts {
		opt(l)
	}
	w.SetScriptHost(session)
	return l
}

// Session returns the VM session.
func (l *Loop) Session() *vm.Session {
	return l.session
}

// World returns the world.
func (l *Loop) World() *world.World {
	return l.world
}

// MapID returns the current map.
func (l *Loop) MapID() int {
	return l.world.MapID()
}

// Ticks returns the number of steps taken.
func (l *Loop) Ticks() uint64 {
	return l.ticks
}

// Start enters mapID and starts the timeout clock.
func (l *Loop) Start(mapID int) error {
	l.startTime = time.Now()
	l.terminated.Store(false)
	l.log.Info("Engine started", "map", mapID)
	return l.EnterMap(mapID)
}

// EnterMap loads mapID into the world and the session. The map is entered
// even when its module cannot be read or loaded; the error is returned for
// reporting.
func (l *Loop) EnterMap(mapID int) error {
	l.world.EnterMap(mapID)
	blob, err := l.source.Module(mapID)
	if err != nil {
		l.log.Warn("Map module not available", "map", mapID, "error", err)
		_ = l.session.LoadMap(mapID, nil)
		return fmt.Errorf("map %d: %w", mapID, err)
	}
	if err := l.session.LoadMap(mapID, blob); err != nil {
		return fmt.Errorf("map %d: %w", mapID, err)
	}
	return nil
}

// Submit queues fn to run on the loop goroutine before the next tick.
// It is safe to call from any goroutine. It returns false if the queue is
// full.
func (l *Loop) Submit(fn func()) bool {
	select {
	case l.commands <- fn:
		return true
	default:
		return false
	}
}

// Step runs one tick: queued commands, the scripts, the world, wait
// notifications and finally any map change requested during the tick.
func (l *Loop) Step() {
	l.drainCommands()

	l.session.Tick()
	idleTags, idlePolys := l.world.Tick()
	for _, tag := range idleTags {
		l.session.NotifyTagIdle(tag)
	}
	for _, po := range idlePolys {
		l.session.NotifyPolyobjectIdle(po)
	}

	if mc, ok := l.world.TakeMapChange(); ok {
		l.log.Info("Map change", "from", l.world.MapID(), "to", mc.Map, "position", mc.Position)
		if err := l.EnterMap(mc.Map); err != nil {
			l.log.Warn("Map entered without scripts", "map", mc.Map, "error", err)
		}
	}
	l.ticks++
}

func (l *Loop) drainCommands() {
	for {
		select {
		case fn := <-l.commands:
			fn()
		default:
			return
		}
	}
}

// Run steps the loop until ticks steps have been taken (0 means no limit),
// the context is cancelled, the loop is terminated or the timeout expires.
func (l *Loop) Run(ctx context.Context, ticks int) error {
	var pace <-chan time.Time
	if l.realtime {
		t := time.NewTicker(TickDuration)
		defer t.Stop()
		pace = t.C
	}

	for n := 0; ticks <= 0 || n < ticks; n++ {
		if pace != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-pace:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if l.CheckTermination() {
			return ErrTerminated
		}
		l.Step()
	}
	l.log.Info("Engine finished", "ticks", l.ticks)
	return nil
}

// Terminate stops Run before its next step.
func (l *Loop) Terminate() {
	if !l.terminated.Load() {
		l.terminated.Store(true)
		l.log.Info("Engine termination requested")
	}
}

// IsTerminated returns whether the loop has been terminated.
func (l *Loop) IsTerminated() bool {
	return l.terminated.Load()
}

// CheckTermination reports whether the loop should stop. It returns true
// if termination was requested or the timeout was exceeded.
func (l *Loop) CheckTermination() bool {
	if l.terminated.Load() {
		return true
	}
	if l.timeout > 0 && !l.startTime.IsZero() {
		if elapsed := time.Since(l.startTime); elapsed >= l.timeout {
			l.log.Info("Timeout exceeded", "elapsed", elapsed)
			l.terminated.Store(true)
			return true
		}
	}
	return false
}
