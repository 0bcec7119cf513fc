package vm

import (
	"errors"
	"testing"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/module"
)

type specialCall struct {
	Special   int32
	Args      []byte
	Line      LineID
	Side      int32
	Activator ThingID
}

type message struct {
	Player   int
	Text     string
	Priority bool
}

type sectorChange struct {
	Tag   int32
	Plane Plane
	Mat   MaterialID
}

type textureChange struct {
	Line LineID
	Side int32
	Part TexturePart
	Mat  MaterialID
}

type lineSpecialChange struct {
	Line    LineID
	Special int32
	Args    [5]byte
}

var errNoMaterial = errors.New("no such material")

// fakeWorld records every call the VM makes.
type fakeWorld struct {
	onSpecial func(special int32, args []byte) bool
	specials  []specialCall

	materials     map[string]MaterialID
	sectorChanges []sectorChange
	frontSectors  map[LineID]SectorID

	lines          map[int32][]LineID
	textureChanges []textureChange
	blocking       map[LineID]bool
	lineSpecials   []lineSpecialChange
	cleared        []LineID

	things     map[int32][]ThingID
	thingCount int32
	countQuery [2]int32
	owners     map[ThingID]int

	busyTags  map[int32]bool
	busyPolys map[int32]bool

	sounds    []SoundRequest
	sequences []string

	inGame    []int
	console   int
	positions map[int][3]float64
	messages  []message

	mode    GameMode
	skill   int32
	mapTime int32
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		materials:    map[string]MaterialID{"FLOOR1": 1, "CEIL1": 2, "WALL1": 3},
		frontSectors: map[LineID]SectorID{},
		lines:        map[int32][]LineID{},
		blocking:     map[LineID]bool{},
		things:       map[int32][]ThingID{},
		owners:       map[ThingID]int{},
		busyTags:     map[int32]bool{},
		busyPolys:    map[int32]bool{},
		inGame:       []int{0},
		positions:    map[int][3]float64{},
	}
}

func (w *fakeWorld) ExecuteLineSpecial(special int32, args []byte, line LineID, side int32, activator ThingID) bool {
	w.specials = append(w.specials, specialCall{
		Special:   special,
		Args:      append([]byte(nil), args...),
		Line:      line,
		Side:      side,
		Activator: activator,
	})
	if w.onSpecial != nil {
		return w.onSpecial(special, args)
	}
	return true
}

func (w *fakeWorld) ResolveFlat(name string) (MaterialID, error) {
	return w.resolve(name)
}

func (w *fakeWorld) ResolveTexture(name string) (MaterialID, error) {
	return w.resolve(name)
}

func (w *fakeWorld) resolve(name string) (MaterialID, error) {
	if m, ok := w.materials[name]; ok {
		return m, nil
	}
	return 0, errNoMaterial
}

func (w *fakeWorld) SetSectorMaterial(tag int32, plane Plane, mat MaterialID) {
	w.sectorChanges = append(w.sectorChanges, sectorChange{tag, plane, mat})
}

func (w *fakeWorld) LineFrontSector(line LineID) (SectorID, bool) {
	s, ok := w.frontSectors[line]
	return s, ok
}

func (w *fakeWorld) FindLines(tag int32) []LineID {
	return w.lines[tag]
}

func (w *fakeWorld) SetLineTexture(line LineID, side int32, part TexturePart, mat MaterialID) {
	w.textureChanges = append(w.textureChanges, textureChange{line, side, part, mat})
}

func (w *fakeWorld) SetLineBlocking(line LineID, blocking bool) {
	w.blocking[line] = blocking
}

func (w *fakeWorld) SetLineSpecial(line LineID, special int32, args [5]byte) {
	w.lineSpecials = append(w.lineSpecials, lineSpecialChange{line, special, args})
}

func (w *fakeWorld) ClearLineSpecial(line LineID) {
	w.cleared = append(w.cleared, line)
}

func (w *fakeWorld) CountThings(thingType, tid int32) int32 {
	w.countQuery = [2]int32{thingType, tid}
	return w.thingCount
}

func (w *fakeWorld) FindThings(tid int32) []ThingID {
	return w.things[tid]
}

func (w *fakeWorld) PlayerOf(thing ThingID) (int, bool) {
	p, ok := w.owners[thing]
	return p, ok
}

func (w *fakeWorld) TagBusy(tag int32) bool {
	return w.busyTags[tag]
}

func (w *fakeWorld) PolyobjectBusy(po int32) bool {
	return w.busyPolys[po]
}

func (w *fakeWorld) StartSound(req SoundRequest) {
	w.sounds = append(w.sounds, req)
}

func (w *fakeWorld) StartSoundSequence(name string, origin SoundOrigin) {
	w.sequences = append(w.sequences, name)
}

func (w *fakeWorld) PlayersInGame() []int {
	return w.inGame
}

func (w *fakeWorld) ConsolePlayer() int {
	return w.console
}

func (w *fakeWorld) PlayerPosition(player int) (x, y, z float64, ok bool) {
	p, ok := w.positions[player]
	return p[0], p[1], p[2], ok
}

func (w *fakeWorld) PlayerMessage(player int, text string, priority bool) {
	w.messages = append(w.messages, message{player, text, priority})
}

func (w *fakeWorld) GameMode() GameMode {
	return w.mode
}

func (w *fakeWorld) Skill() int32 {
	return w.skill
}

func (w *fakeWorld) MapTime() int32 {
	return w.mapTime
}

// newTestSession loads the module built by build as map 1.
func newTestSession(t *testing.T, build func(b *module.Builder), opts ...Option) (*Session, *fakeWorld) {
	t.Helper()
	b := module.NewBuilder()
	build(b)
	blob, err := b.Bytes()
	if err != nil {
		t.Fatalf("build module: %v", err)
	}
	w := newFakeWorld()
	s := NewSession(w, opts...)
	if err := s.LoadMap(1, blob); err != nil {
		t.Fatalf("load map: %v", err)
	}
	return s, w
}

// runScript builds script 1 from body, starts it and runs one tick.
func runScript(t *testing.T, body func(b *module.Builder), opts ...Option) (*Session, *fakeWorld) {
	t.Helper()
	s, w := newTestSession(t, func(b *module.Builder) {
		b.Script(1, 0)
		body(b)
	}, opts...)
	if err := s.Start(StartRequest{Script: 1}); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Tick()
	return s, w
}

func worldVar(t *testing.T, s *Session, i int32) int32 {
	t.Helper()
	v, ok := s.WorldVars().Get(i)
	if !ok {
		t.Fatalf("world var %d out of range", i)
	}
	return v
}

func stateOf(t *testing.T, s *Session, number int32) State {
	t.Helper()
	st, _, ok := s.ScriptState(number)
	if !ok {
		t.Fatalf("script %d not defined", number)
	}
	return st
}
