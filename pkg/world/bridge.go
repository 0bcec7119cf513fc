package world

import (
	"fmt"
	"slices"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/vm"
)

// Line specials handled by World.
const (
	SpecialTeleportNewMap   = 74
	SpecialACSExecute       = 80
	SpecialACSSuspend       = 81
	SpecialACSTerminate     = 82
	SpecialACSLockedExecute = 83
)

var _ vm.World = (*World)(nil)

// tagSpecials move sectors; their first argument is a sector tag.
var tagSpecials = map[int32]bool{
	10: true, 11: true, 12: true, 13: true, // doors
	20: true, 21: true, 22: true, 23: true, 24: true, 25: true, // floors
	26: true, 27: true, 28: true, 29: true, 30: true, 31: true, 32: true,
	35: true, 36: true, 46: true, 66: true, 67: true, 68: true,
	40: true, 41: true, 42: true, 43: true, 44: true, 45: true, 69: true, // ceilings
	60: true, 61: true, 62: true, 63: true, 64: true, 65: true, // plats
	94: true, 95: true, 96: true,
}

// polySpecials move polyobjects; their first argument is the polyobject.
var polySpecials = map[int32]bool{
	2: true, 3: true, 4: true, 6: true, 7: true, 8: true,
	90: true, 91: true, 92: true, 93: true,
}

func (w *World) ExecuteLineSpecial(special int32, args []byte, line vm.LineID, side int32, activator vm.ThingID) bool {
	var a [5]byte
	copy(a[:], args)
	w.specials = append(w.specials, SpecialCall{
		Special:   special,
		Args:      slices.Clone(args),
		Line:      line,
		Activator: activator,
	})
	w.log.Debug("Line special", "special", special, "args", a, "line", line)

	switch {
	case special == SpecialACSExecute || special == SpecialACSLockedExecute:
		if w.host == nil {
			return false
		}
		return w.host.RequestStart(vm.StartRequest{
			Script:    int32(a[0]),
			Map:       int(a[1]),
			Args:      [4]byte{a[2], a[3], a[4]},
			Activator: activator,
			Line:      line,
			Side:      side,
		})
	case special == SpecialACSSuspend:
		if w.host == nil || !w.onThisMap(a[1]) {
			return false
		}
		return w.host.RequestSuspend(int32(a[0]))
	case special == SpecialACSTerminate:
		if w.host == nil || !w.onThisMap(a[1]) {
			return false
		}
		return w.host.RequestTerminate(int32(a[0]))
	case special == SpecialTeleportNewMap:
		w.mapChange = &MapChange{Map: int(a[0]), Position: int(a[1])}
		return true
	case tagSpecials[special]:
		return w.startMover(&w.tagMovers, int32(a[0]))
	case polySpecials[special]:
		po := int32(a[0])
		if !w.polys[po] {
			return false
		}
		return w.startMover(&w.polyMovers, po)
	}
	return true
}

func (w *World) onThisMap(m byte) bool {
	return m == 0 || int(m) == w.mapID
}

// startMover starts a mover for id unless one is already running.
func (w *World) startMover(ms *[]mover, id int32) bool {
	for _, m := range *ms {
		if m.id == id {
			return false
		}
	}
	*ms = append(*ms, mover{id: id, remaining: w.cfg.MoverTics})
	return true
}

func (w *World) ResolveFlat(name string) (vm.MaterialID, error) {
	return w.resolve(name)
}

func (w *World) ResolveTexture(name string) (vm.MaterialID, error) {
	return w.resolve(name)
}

func (w *World) resolve(name string) (vm.MaterialID, error) {
	id, ok := w.materials[name]
	if !ok {
		return 0, fmt.Errorf("unknown material %q", name)
	}
	return id, nil
}

func (w *World) SetSectorMaterial(tag int32, plane vm.Plane, mat vm.MaterialID) {
	for i := range w.sectors {
		s := &w.sectors[i]
		if s.tag != tag {
			continue
		}
		if plane == vm.PlaneCeiling {
			s.ceiling = mat
		} else {
			s.floor = mat
		}
	}
}

func (w *World) LineFrontSector(id vm.LineID) (vm.SectorID, bool) {
	l := w.lineAt(id)
	if l == nil || l.front == vm.NoSector {
		return vm.NoSector, false
	}
	return l.front, true
}

func (w *World) FindLines(tag int32) []vm.LineID {
	var out []vm.LineID
	for i, l := range w.lines {
		if l.tag == tag {
			out = append(out, vm.LineID(i+1))
		}
	}
	return out
}

func (w *World) SetLineTexture(id vm.LineID, side int32, part vm.TexturePart, mat vm.MaterialID) {
	l := w.lineAt(id)
	if l == nil || side < 0 || side > 1 || part < vm.TextureTop || part > vm.TextureBottom {
		return
	}
	l.textures[side][part] = mat
}

func (w *World) SetLineBlocking(id vm.LineID, blocking bool) {
	if l := w.lineAt(id); l != nil {
		l.blocking = blocking
	}
}

func (w *World) SetLineSpecial(id vm.LineID, special int32, args [5]byte) {
	if l := w.lineAt(id); l != nil {
		l.special = special
		l.args = args
	}
}

func (w *World) ClearLineSpecial(id vm.LineID) {
	if l := w.lineAt(id); l != nil {
		l.special = 0
	}
}

// CountThings counts things matching type and tid. Zero matches anything.
func (w *World) CountThings(thingType, tid int32) int32 {
	var n int32
	for _, t := range w.things {
		if (thingType == 0 || t.typ == thingType) && (tid == 0 || t.tid == tid) {
			n++
		}
	}
	return n
}

func (w *World) FindThings(tid int32) []vm.ThingID {
	var out []vm.ThingID
	for i, t := range w.things {
		if t.tid == tid {
			out = append(out, vm.ThingID(i+1))
		}
	}
	return out
}

func (w *World) PlayerOf(id vm.ThingID) (int, bool) {
	if id <= 0 || int(id) > len(w.things) {
		return 0, false
	}
	t := w.things[id-1]
	if t.player < 0 || !slices.Contains(w.players, t.player) {
		return 0, false
	}
	return t.player, true
}

func (w *World) TagBusy(tag int32) bool {
	return slices.ContainsFunc(w.tagMovers, func(m mover) bool { return m.id == tag })
}

func (w *World) PolyobjectBusy(po int32) bool {
	return slices.ContainsFunc(w.polyMovers, func(m mover) bool { return m.id == po })
}

func (w *World) StartSound(req vm.SoundRequest) {
	w.sounds = append(w.sounds, req)
	w.log.Debug("Sound", "name", req.Name, "volume", req.Volume, "origin", req.Origin.Kind)
	if w.onSound != nil {
		w.onSound(req)
	}
}

func (w *World) StartSoundSequence(name string, origin vm.SoundOrigin) {
	w.sequences = append(w.sequences, name)
	w.log.Debug("Sound sequence", "name", name, "origin", origin.Kind)
}

func (w *World) PlayersInGame() []int {
	return slices.Clone(w.players)
}

func (w *World) ConsolePlayer() int {
	return w.cfg.ConsolePlayer
}

func (w *World) PlayerPosition(player int) (x, y, z float64, ok bool) {
	for _, t := range w.things {
		if t.player == player {
			return t.pos[0], t.pos[1], t.pos[2], true
		}
	}
	return 0, 0, 0, false
}

func (w *World) PlayerMessage(player int, text string, priority bool) {
	m := Message{Tick: w.mapTime, Player: player, Text: text, Priority: priority}
	w.messages = append(w.messages, m)
	w.log.Info("Player message", "player", player, "text", text, "priority", priority)
	if w.onMessage != nil {
		w.onMessage(m)
	}
}

func (w *World) GameMode() vm.GameMode {
	return w.mode
}

func (w *World) Skill() int32 {
	return w.cfg.Skill
}

func (w *World) MapTime() int32 {
	return w.mapTime
}
