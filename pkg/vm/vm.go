// Package vm provides the virtual machine for executing ACS bytecode.
// It implements a cooperative, tick-driven execution model with support for:
// - Module loading per map, with open scripts started automatically
// - World, map and script variable stores
// - A per-script-number state machine with blocking waits
// - Deferred starts for maps that are not loaded yet
// - Save and restore of the complete VM state
//
// A Session is not safe for concurrent use. It must be ticked by a single
// goroutine.
package vm

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"golang.org/x/text/encoding/charmap"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/logger"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/module"
)

// TicsPerSecond is the simulation rate.
const TicsPerSecond = 35

// Limits sizes the fixed resources of a session.
type Limits struct {
	StackDepth     int
	ScriptVars     int
	MapVars        int
	WorldVars      int
	StoreSize      int
	PrintBuffer    int
	OpenScriptBase int32
	OpenDelay      int // ticks before open and deferred scripts first run
	MaxRunSteps    int // instructions per run before a script is declared runaway
}

// DefaultLimits returns the stock engine limits.
func DefaultLimits() Limits {
	return Limits{
		StackDepth:     32,
		ScriptVars:     10,
		MapVars:        32,
		WorldVars:      64,
		StoreSize:      20,
		PrintBuffer:    256,
		OpenScriptBase: module.OpenScriptBase,
		OpenDelay:      TicsPerSecond,
		MaxRunSteps:    500000,
	}
}

// Validate checks that every limit is usable.
func (l Limits) Validate() error {
	switch {
	case l.StackDepth <= 0:
		return fmt.Errorf("stack depth must be positive, got %d", l.StackDepth)
	case l.ScriptVars < 4:
		return fmt.Errorf("script vars must hold the 4 arguments, got %d", l.ScriptVars)
	case l.MapVars <= 0:
		return fmt.Errorf("map vars must be positive, got %d", l.MapVars)
	case l.WorldVars <= 0:
		return fmt.Errorf("world vars must be positive, got %d", l.WorldVars)
	case l.StoreSize <= 0:
		return fmt.Errorf("store size must be positive, got %d", l.StoreSize)
	case l.PrintBuffer <= 0:
		return fmt.Errorf("print buffer must be positive, got %d", l.PrintBuffer)
	case l.OpenScriptBase <= 0:
		return fmt.Errorf("open script base must be positive, got %d", l.OpenScriptBase)
	case l.OpenDelay < 0:
		return fmt.Errorf("open delay must not be negative, got %d", l.OpenDelay)
	case l.MaxRunSteps <= 0:
		return fmt.Errorf("max run steps must be positive, got %d", l.MaxRunSteps)
	}
	return nil
}

// scriptEntry is the registry record of one script number.
type scriptEntry struct {
	def       module.Script
	state     State
	waitValue int32
	inst      *Instance
}

// StartRequest asks for a script to be started.
type StartRequest struct {
	Script    int32
	Map       int // 0 means the current map
	Args      [4]byte
	Activator ThingID
	Line      LineID
	Side      int32
	// Explicit marks requests typed by a user. Only these produce a
	// user-visible message when the script does not exist.
	Explicit bool
}

// ScriptStatus is a read-only view of one registry entry.
type ScriptStatus struct {
	Number    int32
	ArgCount  int
	Open      bool
	State     State
	WaitValue int32
	Locals    []int32 // nil when the script has no instance
}

// Session is one game session of the VM: world variables and deferred
// starts that persist across maps, plus the currently loaded map's module,
// map variables and script instances.
type Session struct {
	world   World
	log     *slog.Logger
	limits  Limits
	sound3D bool
	rng     *rand.Rand
	charset *charmap.Charmap

	worldVars *VarStore
	store     *DeferredStore

	mapID     int
	mod       *module.Module
	mapVars   *VarStore
	entries   []*scriptEntry
	byNumber  map[int32]*scriptEntry
	instances []*Instance
	nextID    uint64

	tick    uint64
	ticking bool
	pending []release
}

// Option is a functional option for configuring the Session.
type Option func(*Session)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// WithLimits overrides the default limits.
func WithLimits(l Limits) Option {
	return func(s *Session) {
		s.limits = l
	}
}

// WithSeed seeds the random number generator used by RANDOM.
func WithSeed(seed uint64) Option {
	return func(s *Session) {
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithSound3D makes ambient sounds originate from a random point near the
// console player instead of having no origin.
func WithSound3D(enabled bool) Option {
	return func(s *Session) {
		s.sound3D = enabled
	}
}

// WithCharset sets the code page used for module strings and printed
// characters.
func WithCharset(cm *charmap.Charmap) Option {
	return func(s *Session) {
		s.charset = cm
	}
}

// NewSession creates a session for a new game.
// Invalid limits are replaced by the defaults.
func NewSession(world World, opts ...Option) *Session {
	s := &Session{
		world:   world,
		log:     logger.GetLogger(),
		limits:  DefaultLimits(),
		charset: charmap.CodePage437,
	}
	WithSeed(0)(s)

	for _, opt := range opts {
		opt(s)
	}

	if err := s.limits.Validate(); err != nil {
		s.log.Warn("Invalid VM limits, using defaults", "error", err)
		s.limits = DefaultLimits()
	}

	s.worldVars = NewVarStore(s.limits.WorldVars)
	s.mapVars = NewVarStore(s.limits.MapVars)
	s.store = NewDeferredStore(s.limits.StoreSize)
	s.byNumber = make(map[int32]*scriptEntry)
	return s
}

// NewGame resets the world variables and drops every deferred start.
func (s *Session) NewGame() {
	s.worldVars.Reset()
	s.store.Clear()
	s.log.Debug("ACS session reset for new game")
}

// LoadMap replaces the current map's scripts with the module in blob.
// Map variables are reset, open scripts are started and deferred starts for
// mapID are executed. An empty blob means the map has no scripts. A malformed
// module is discarded; the map then runs without scripts and the load error
// is returned.
func (s *Session) LoadMap(mapID int, blob []byte) error {
	s.unloadMap()
	s.mapID = mapID

	var loadErr error
	if len(blob) > 0 {
		mod, err := module.Load(blob,
			module.WithCharset(s.charset),
			module.WithOpenScriptBase(s.limits.OpenScriptBase))
		if err != nil {
			s.log.Warn("ACS module discarded", "map", mapID, "error", err)
			loadErr = err
		} else {
			s.installModule(mod)
		}
	} else {
		s.log.Debug("Map has no ACS module", "map", mapID)
	}

	s.drainStore()
	return loadErr
}

func (s *Session) unloadMap() {
	s.mod = nil
	s.entries = nil
	clear(s.byNumber)
	s.instances = nil
	s.pending = nil
	s.mapVars.Reset()
}

func (s *Session) installModule(mod *module.Module) {
	s.mod = mod
	scripts := mod.Scripts()
	s.entries = make([]*scriptEntry, 0, len(scripts))
	for _, def := range scripts {
		e := &scriptEntry{def: def}
		s.entries = append(s.entries, e)
		s.byNumber[def.Number] = e
	}

	open := 0
	for _, e := range s.entries {
		if e.def.Open {
			in := s.spawn(e, StartRequest{Script: e.def.Number})
			in.delay = s.limits.OpenDelay
			open++
		}
	}
	s.log.Info("ACS module loaded",
		"map", s.mapID,
		"scripts", len(s.entries),
		"open", open,
		"strings", mod.NumStrings())
}

func (s *Session) drainStore() {
	for _, e := range s.store.Take(s.mapID) {
		in, err := s.startLocal(StartRequest{Script: e.Script, Args: e.Args})
		if err != nil {
			s.log.Debug("Deferred start failed", "map", s.mapID, "script", e.Script, "error", err)
			continue
		}
		if in != nil {
			in.delay = s.limits.OpenDelay
		}
		s.log.Debug("Deferred start executed", "map", s.mapID, "script", e.Script)
	}
}

// Start starts, resumes or defers a script. A request for another map is
// queued in the deferred store. It returns a *RuntimeError describing why
// the request had no effect.
func (s *Session) Start(req StartRequest) error {
	if req.Map != 0 && req.Map != s.mapID {
		err := s.store.Add(StoreEntry{Map: req.Map, Script: req.Script, Args: req.Args})
		switch {
		case errors.Is(err, ErrStoreDuplicate):
			return scriptError(ErrorDuplicateScript, req.Script, "already deferred for map %d", req.Map)
		case errors.Is(err, ErrStoreFull):
			return scriptError(ErrorStoreFull, req.Script, "%v", err)
		}
		s.log.Debug("Script start deferred", "map", req.Map, "script", req.Script)
		return nil
	}
	_, err := s.startLocal(req)
	return err
}

// RequestStart is Start reduced to a success flag.
func (s *Session) RequestStart(req StartRequest) bool {
	return s.Start(req) == nil
}

// startLocal starts req on the current map. The returned instance is nil
// when a suspended script was resumed.
func (s *Session) startLocal(req StartRequest) (*Instance, error) {
	e, ok := s.byNumber[req.Script]
	if !ok {
		if req.Explicit {
			s.world.PlayerMessage(s.world.ConsolePlayer(),
				fmt.Sprintf("Unknown script %d", req.Script), true)
		}
		return nil, NewUnknownScriptError(req.Script)
	}

	switch e.state {
	case StateSuspended:
		e.state = StateRunning
		s.log.Debug("Script resumed", "script", req.Script)
		return nil, nil
	case StateInactive:
		return s.spawn(e, req), nil
	default:
		return nil, NewDuplicateScriptError(req.Script, e.state)
	}
}

func (s *Session) spawn(e *scriptEntry, req StartRequest) *Instance {
	s.nextID++
	in := newInstance(s.nextID, e, s.limits)
	in.activator = req.Activator
	in.line = req.Line
	in.side = req.Side
	for i := 0; i < e.def.ArgCount && i < len(req.Args); i++ {
		in.locals.Set(int32(i), int32(req.Args[i]))
	}

	e.state = StateRunning
	e.waitValue = 0
	e.inst = in
	s.instances = append(s.instances, in)
	s.log.Debug("Script started", "script", e.def.Number, "instance", in.id)
	return in
}

// RequestTerminate marks a script for termination. The instance is removed
// the next time the scheduler reaches it.
func (s *Session) RequestTerminate(number int32) bool {
	e, ok := s.byNumber[number]
	if !ok || e.state == StateInactive || e.state == StateTerminating {
		return false
	}
	e.state = StateTerminating
	return true
}

// RequestSuspend suspends a running or waiting script.
func (s *Session) RequestSuspend(number int32) bool {
	e, ok := s.byNumber[number]
	if !ok {
		return false
	}
	switch e.state {
	case StateInactive, StateSuspended, StateTerminating:
		return false
	}
	e.state = StateSuspended
	return true
}

// MapID returns the number of the loaded map.
func (s *Session) MapID() int {
	return s.mapID
}

// Module returns the loaded module, or nil.
func (s *Session) Module() *module.Module {
	return s.mod
}

// Ticks returns the number of completed ticks in this session.
func (s *Session) Ticks() uint64 {
	return s.tick
}

// Limits returns the active limits.
func (s *Session) Limits() Limits {
	return s.limits
}

// WorldVars returns the world variable store.
func (s *Session) WorldVars() *VarStore {
	return s.worldVars
}

// MapVars returns the map variable store.
func (s *Session) MapVars() *VarStore {
	return s.mapVars
}

// Store returns the deferred start store.
func (s *Session) Store() *DeferredStore {
	return s.store
}

// ScriptState returns the state and wait value of a script number.
func (s *Session) ScriptState(number int32) (State, int32, bool) {
	e, ok := s.byNumber[number]
	if !ok {
		return StateInactive, 0, false
	}
	return e.state, e.waitValue, true
}

// Instance returns the live instance of a script number.
func (s *Session) Instance(number int32) (*Instance, bool) {
	e, ok := s.byNumber[number]
	if !ok || e.inst == nil {
		return nil, false
	}
	return e.inst, true
}

// Instances returns the live instances in scheduling order.
func (s *Session) Instances() []*Instance {
	out := make([]*Instance, 0, len(s.instances))
	for _, in := range s.instances {
		if !in.removed {
			out = append(out, in)
		}
	}
	return out
}

// Scripts returns the status of every script of the loaded module.
func (s *Session) Scripts() []ScriptStatus {
	out := make([]ScriptStatus, 0, len(s.entries))
	for _, e := range s.entries {
		st := ScriptStatus{
			Number:    e.def.Number,
			ArgCount:  e.def.ArgCount,
			Open:      e.def.Open,
			State:     e.state,
			WaitValue: e.waitValue,
		}
		if e.inst != nil {
			st.Locals = e.inst.Locals()
		}
		out = append(out, st)
	}
	return out
}
