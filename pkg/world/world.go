// Package world provides an in-memory map that implements vm.World.
// It holds just enough game state for scripts to run outside the engine:
// tagged sectors and lines, things, polyobjects, movers with a fixed
// duration, players with a message log, and a sound log.
package world

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/config"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/logger"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/vm"
)

// ScriptHost receives the ACS control specials.
type ScriptHost interface {
	RequestStart(req vm.StartRequest) bool
	RequestSuspend(number int32) bool
	RequestTerminate(number int32) bool
}

// Message is one line shown to a player.
type Message struct {
	Tick     int32
	Player   int
	Text     string
	Priority bool
}

// SpecialCall records one executed line special.
type SpecialCall struct {
	Special   int32
	Args      []byte
	Line      vm.LineID
	Activator vm.ThingID
}

// MapChange is a pending transition requested by Teleport_NewMap.
type MapChange struct {
	Map      int
	Position int
}

type sector struct {
	tag     int32
	floor   vm.MaterialID
	ceiling vm.MaterialID
}

type line struct {
	tag      int32
	special  int32
	args     [5]byte
	blocking bool
	front    vm.SectorID
	textures [2][3]vm.MaterialID
}

type thing struct {
	typ    int32
	tid    int32
	player int // -1 when not a player
	pos    [3]float64
}

type mover struct {
	id        int32 // tag or polyobject number
	remaining int
}

// World is the reference implementation of vm.World.
type World struct {
	log *slog.Logger
	cfg config.WorldConfig

	mode    vm.GameMode
	players []int

	materials map[string]vm.MaterialID
	matNames  []string

	sectors []sector
	lines   []line
	things  []thing
	polys   map[int32]bool

	mapID      int
	mapTime    int32
	tagMovers  []mover
	polyMovers []mover

	host      ScriptHost
	mapChange *MapChange

	messages  []Message
	onMessage func(Message)
	onSound   func(vm.SoundRequest)
	sounds    []vm.SoundRequest
	sequences []string
	specials  []SpecialCall
}

// Option is a functional option for configuring the World.
type Option func(*World)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(w *World) {
		w.log = log
	}
}

// WithMessageHandler sets a function called for every player message.
func WithMessageHandler(fn func(Message)) Option {
	return func(w *World) {
		w.onMessage = fn
	}
}

// WithSoundHandler sets a function called for every sound a script starts.
func WithSoundHandler(fn func(vm.SoundRequest)) Option {
	return func(w *World) {
		w.onSound = fn
	}
}

// New builds a world from its configuration.
func New(cfg config.WorldConfig, opts ...Option) (*World, error) {
	mode, err := config.ParseGameMode(cfg.GameMode)
	if err != nil {
		return nil, err
	}
	if cfg.MoverTics <= 0 {
		return nil, fmt.Errorf("mover tics must be positive, got %d", cfg.MoverTics)
	}

	w := &World{
		log:       logger.GetLogger(),
		cfg:       cfg,
		mode:      mode,
		players:   slices.Clone(cfg.Players),
		materials: make(map[string]vm.MaterialID),
		polys:     make(map[int32]bool),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, name := range cfg.Materials {
		w.material(name)
	}
	for _, s := range cfg.Sectors {
		w.material(s.Floor)
		w.material(s.Ceiling)
	}
	for _, po := range cfg.Polyobjects {
		w.polys[po] = true
	}
	w.resetGeometry()
	return w, nil
}

// material interns name and returns its id. The empty name is no material.
func (w *World) material(name string) vm.MaterialID {
	if name == "" {
		return 0
	}
	if id, ok := w.materials[name]; ok {
		return id
	}
	w.matNames = append(w.matNames, name)
	id := vm.MaterialID(len(w.matNames))
	w.materials[name] = id
	return id
}

func (w *World) resetGeometry() {
	w.sectors = w.sectors[:0]
	for _, s := range w.cfg.Sectors {
		w.sectors = append(w.sectors, sector{
			tag:     s.Tag,
			floor:   w.materials[s.Floor],
			ceiling: w.materials[s.Ceiling],
		})
	}
	w.lines = w.lines[:0]
	for _, l := range w.cfg.Lines {
		ln := line{
			tag:      l.Tag,
			special:  l.Special,
			blocking: l.Blocking,
			front:    vm.SectorID(l.FrontSector),
		}
		for i, a := range l.Args {
			ln.args[i] = byte(a)
		}
		w.lines = append(w.lines, ln)
	}
	w.things = w.things[:0]
	for _, t := range w.cfg.Things {
		th := thing{typ: t.Type, tid: t.TID, player: -1, pos: t.Pos}
		if t.Player != nil {
			th.player = *t.Player
		}
		w.things = append(w.things, th)
	}
}

// SetScriptHost connects the ACS control specials to a session.
func (w *World) SetScriptHost(h ScriptHost) {
	w.host = h
}

// EnterMap resets the map state for mapID: geometry returns to its
// configured state, the map timer restarts and movers stop.
func (w *World) EnterMap(mapID int) {
	w.mapID = mapID
	w.mapTime = 0
	w.tagMovers = nil
	w.polyMovers = nil
	w.mapChange = nil
	w.resetGeometry()
}

// MapID returns the current map.
func (w *World) MapID() int {
	return w.mapID
}

// Tick advances the map timer and the movers. It returns the tags and
// polyobjects whose last mover stopped this tick.
func (w *World) Tick() (idleTags, idlePolys []int32) {
	w.mapTime++
	var stopped []int32
	w.tagMovers, stopped = advance(w.tagMovers)
	for _, tag := range stopped {
		if !w.TagBusy(tag) && !slices.Contains(idleTags, tag) {
			idleTags = append(idleTags, tag)
		}
	}
	w.polyMovers, stopped = advance(w.polyMovers)
	for _, po := range stopped {
		if !w.PolyobjectBusy(po) && !slices.Contains(idlePolys, po) {
			idlePolys = append(idlePolys, po)
		}
	}
	return idleTags, idlePolys
}

func advance(ms []mover) (kept []mover, stopped []int32) {
	kept = ms[:0]
	for _, m := range ms {
		m.remaining--
		if m.remaining > 0 {
			kept = append(kept, m)
		} else {
			stopped = append(stopped, m.id)
		}
	}
	return kept, stopped
}

// TakeMapChange returns and clears the pending map change.
func (w *World) TakeMapChange() (MapChange, bool) {
	if w.mapChange == nil {
		return MapChange{}, false
	}
	mc := *w.mapChange
	w.mapChange = nil
	return mc, true
}

// Messages returns the message log.
func (w *World) Messages() []Message {
	return slices.Clone(w.messages)
}

// Sounds returns the sound log.
func (w *World) Sounds() []vm.SoundRequest {
	return slices.Clone(w.sounds)
}

// Specials returns every line special executed so far.
func (w *World) Specials() []SpecialCall {
	return slices.Clone(w.specials)
}

// MaterialName returns the name of a material id.
func (w *World) MaterialName(id vm.MaterialID) string {
	if id <= 0 || int(id) > len(w.matNames) {
		return ""
	}
	return w.matNames[id-1]
}

// SectorMaterial returns the material of one plane of sector id.
func (w *World) SectorMaterial(id vm.SectorID, plane vm.Plane) (vm.MaterialID, bool) {
	if id <= 0 || int(id) > len(w.sectors) {
		return 0, false
	}
	s := w.sectors[id-1]
	if plane == vm.PlaneCeiling {
		return s.ceiling, true
	}
	return s.floor, true
}

// LineState returns the special, arguments and blocking flag of line id.
func (w *World) LineState(id vm.LineID) (special int32, args [5]byte, blocking bool, ok bool) {
	l := w.lineAt(id)
	if l == nil {
		return 0, args, false, false
	}
	return l.special, l.args, l.blocking, true
}

// LineTexture returns a wall texture of line id.
func (w *World) LineTexture(id vm.LineID, side int32, part vm.TexturePart) (vm.MaterialID, bool) {
	l := w.lineAt(id)
	if l == nil || side < 0 || side > 1 || part < vm.TextureTop || part > vm.TextureBottom {
		return 0, false
	}
	return l.textures[side][part], true
}

func (w *World) lineAt(id vm.LineID) *line {
	if id <= 0 || int(id) > len(w.lines) {
		return nil
	}
	return &w.lines[id-1]
}
