package vm

// Handles into the live map. The VM never holds pointers into map data; it
// keeps these ids and resolves them through the World when they are used.
// Ids are 1-based, zero means "none".
type (
	ThingID    int32
	LineID     int32
	SectorID   int32
	MaterialID int32
)

const (
	NoThing  ThingID  = 0
	NoLine   LineID   = 0
	NoSector SectorID = 0
)

// Plane selects a sector surface.
type Plane int

const (
	PlaneFloor Plane = iota
	PlaneCeiling
)

// TexturePart selects a wall section of a line side.
type TexturePart int32

const (
	TextureTop TexturePart = iota
	TextureMiddle
	TextureBottom
)

// Line sides.
const (
	SideFront int32 = 0
	SideBack  int32 = 1
)

// GameMode is the value pushed by the GAMETYPE instruction.
type GameMode int32

const (
	GameSingle GameMode = iota
	GameCooperative
	GameDeathmatch
)

// OriginKind says where a sound is emitted from.
type OriginKind int

const (
	OriginNone OriginKind = iota
	OriginSector
	OriginThing
	OriginPoint
)

// SoundOrigin locates a sound in the world.
type SoundOrigin struct {
	Kind    OriginKind
	Sector  SectorID
	Thing   ThingID
	X, Y, Z float64
}

// SoundRequest is one sound emission.
type SoundRequest struct {
	Name   string
	Origin SoundOrigin
	Volume float32 // 0..1
}

// LineSpecials executes line specials on behalf of scripts.
type LineSpecials interface {
	ExecuteLineSpecial(special int32, args []byte, line LineID, side int32, activator ThingID) bool
}

// Materials resolves surface material names.
type Materials interface {
	ResolveFlat(name string) (MaterialID, error)
	ResolveTexture(name string) (MaterialID, error)
}

// Sectors mutates sectors.
type Sectors interface {
	// SetSectorMaterial changes the plane material of every sector with tag.
	SetSectorMaterial(tag int32, plane Plane, mat MaterialID)
	LineFrontSector(line LineID) (SectorID, bool)
}

// Lines finds and mutates lines.
type Lines interface {
	FindLines(tag int32) []LineID
	SetLineTexture(line LineID, side int32, part TexturePart, mat MaterialID)
	SetLineBlocking(line LineID, blocking bool)
	SetLineSpecial(line LineID, special int32, args [5]byte)
	ClearLineSpecial(line LineID)
}

// Things queries map things.
type Things interface {
	CountThings(thingType, tid int32) int32
	FindThings(tid int32) []ThingID
	// PlayerOf returns the player number controlling thing.
	PlayerOf(thing ThingID) (int, bool)
}

// Movers reports whether tagged sectors or polyobjects are still moving.
type Movers interface {
	TagBusy(tag int32) bool
	PolyobjectBusy(po int32) bool
}

// Sounds emits sounds.
type Sounds interface {
	StartSound(req SoundRequest)
	StartSoundSequence(name string, origin SoundOrigin)
}

// Players delivers messages and reports player presence.
type Players interface {
	PlayersInGame() []int
	ConsolePlayer() int
	PlayerPosition(player int) (x, y, z float64, ok bool)
	// PlayerMessage shows text to a player. Priority messages are the
	// highlighted variant.
	PlayerMessage(player int, text string, priority bool)
}

// Environment answers game-state queries.
type Environment interface {
	GameMode() GameMode
	Skill() int32
	// MapTime is the number of ticks elapsed on the current map.
	MapTime() int32
}

// World is everything the VM needs from the host simulation.
type World interface {
	LineSpecials
	Materials
	Sectors
	Lines
	Things
	Movers
	Sounds
	Players
	Environment
}
