package vm

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// SnapshotVersion is the version written by Save.
const SnapshotVersion = 1

// ErrSnapshot is wrapped by every error Restore returns for a snapshot that
// does not fit the session.
var ErrSnapshot = errors.New("invalid snapshot")

var snapshotEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: cbor enc mode: %v", err))
	}
	snapshotEncMode = em
}

type snapshot struct {
	Version     int            `cbor:"version"`
	Tick        uint64         `cbor:"tick"`
	NextID      uint64         `cbor:"next_id"`
	WorldVars   []int32        `cbor:"world_vars"`
	Store       []StoreEntry   `cbor:"store"`
	Map         int            `cbor:"map"`
	HasModule   bool           `cbor:"has_module"`
	Fingerprint uint32         `cbor:"fingerprint"`
	MapVars     []int32        `cbor:"map_vars"`
	Scripts     []scriptSnap   `cbor:"scripts"`
	Instances   []instanceSnap `cbor:"instances"`
}

type scriptSnap struct {
	Number    int32 `cbor:"number"`
	State     State `cbor:"state"`
	WaitValue int32 `cbor:"wait"`
}

type instanceSnap struct {
	ID        uint64  `cbor:"id"`
	Number    int32   `cbor:"number"`
	IP        int     `cbor:"ip"`
	Stack     []int32 `cbor:"stack"`
	Locals    []int32 `cbor:"locals"`
	Delay     int     `cbor:"delay"`
	Activator ThingID `cbor:"activator"`
	Line      LineID  `cbor:"line"`
	Side      int32   `cbor:"side"`
	Print     string  `cbor:"print"`
}

// Save encodes the complete runtime state of the session. It must be called
// between ticks.
func (s *Session) Save() ([]byte, error) {
	if s.ticking {
		return nil, NewRuntimeError(ErrorInvalidRequest, "save during tick")
	}
	snap := snapshot{
		Version:   SnapshotVersion,
		Tick:      s.tick,
		NextID:    s.nextID,
		WorldVars: s.worldVars.Values(),
		Store:     s.store.Entries(),
		Map:       s.mapID,
		MapVars:   s.mapVars.Values(),
	}
	if s.mod != nil {
		snap.HasModule = true
		snap.Fingerprint = s.mod.Fingerprint()
	}
	for _, e := range s.entries {
		snap.Scripts = append(snap.Scripts, scriptSnap{
			Number:    e.def.Number,
			State:     e.state,
			WaitValue: e.waitValue,
		})
	}
	for _, in := range s.Instances() {
		snap.Instances = append(snap.Instances, instanceSnap{
			ID:        in.id,
			Number:    in.Number(),
			IP:        in.ip,
			Stack:     in.Stack(),
			Locals:    in.Locals(),
			Delay:     in.delay,
			Activator: in.activator,
			Line:      in.line,
			Side:      in.side,
			Print:     in.print.String(),
		})
	}

	data, err := snapshotEncMode.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces the runtime state with a snapshot taken by Save. The
// module the snapshot was taken with must already be loaded for the same
// map. A snapshot that does not fit is rejected and the session is left
// untouched.
func (s *Session) Restore(data []byte) error {
	if s.ticking {
		return NewRuntimeError(ErrorInvalidRequest, "restore during tick")
	}
	var snap snapshot
	if err := decodeSnapshot(data, &snap); err != nil {
		return err
	}
	if err := s.checkSnapshot(&snap); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshot, err)
	}

	s.worldVars.load(snap.WorldVars)
	s.store.Clear()
	for _, e := range snap.Store {
		_ = s.store.Add(e) // checked above
	}
	s.mapVars.load(snap.MapVars)
	s.tick = snap.Tick
	s.nextID = snap.NextID
	s.pending = nil

	for _, e := range s.entries {
		e.state = StateInactive
		e.waitValue = 0
		e.inst = nil
	}
	for _, ss := range snap.Scripts {
		e := s.byNumber[ss.Number]
		e.state = ss.State
		e.waitValue = ss.WaitValue
	}
	for _, in := range s.instances {
		in.removed = true
	}
	s.instances = nil
	for _, is := range snap.Instances {
		e := s.byNumber[is.Number]
		in := newInstance(is.ID, e, s.limits)
		in.ip = is.IP
		in.opStart = is.IP
		in.stack = append(in.stack, is.Stack...)
		in.locals.load(is.Locals)
		in.delay = is.Delay
		in.activator = is.Activator
		in.line = is.Line
		in.side = is.Side
		in.print.WriteString(is.Print)
		e.inst = in
		s.instances = append(s.instances, in)
	}
	s.log.Info("ACS state restored", "map", s.mapID, "instances", len(s.instances), "tick", s.tick)
	return nil
}

func decodeSnapshot(data []byte, snap *snapshot) error {
	if err := cbor.Unmarshal(data, snap); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	return nil
}

func (s *Session) checkSnapshot(snap *snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("version %d, want %d", snap.Version, SnapshotVersion)
	}
	if snap.Map != s.mapID {
		return fmt.Errorf("taken on map %d, map %d is loaded", snap.Map, s.mapID)
	}
	if snap.HasModule != (s.mod != nil) {
		return errors.New("module presence does not match the loaded map")
	}
	if s.mod != nil && snap.Fingerprint != s.mod.Fingerprint() {
		return fmt.Errorf("module fingerprint %08x, loaded module is %08x", snap.Fingerprint, s.mod.Fingerprint())
	}
	if len(snap.WorldVars) > s.limits.WorldVars || len(snap.MapVars) > s.limits.MapVars {
		return errors.New("variable arrays exceed limits")
	}

	store := NewDeferredStore(s.limits.StoreSize)
	for _, e := range snap.Store {
		if err := store.Add(e); err != nil {
			return err
		}
	}

	active := make(map[int32]bool)
	seen := make(map[int32]bool)
	for _, ss := range snap.Scripts {
		if _, ok := s.byNumber[ss.Number]; !ok {
			return fmt.Errorf("script %d not in module", ss.Number)
		}
		if seen[ss.Number] {
			return fmt.Errorf("script %d listed twice", ss.Number)
		}
		seen[ss.Number] = true
		if !ss.State.Valid() {
			return fmt.Errorf("script %d has invalid state %d", ss.Number, ss.State)
		}
		if ss.State.Active() {
			active[ss.Number] = true
		}
	}

	for _, is := range snap.Instances {
		if !active[is.Number] {
			return fmt.Errorf("instance of script %d that is not active", is.Number)
		}
		delete(active, is.Number)
		if is.ID == 0 || is.ID > snap.NextID {
			return fmt.Errorf("script %d has instance id %d beyond %d", is.Number, is.ID, snap.NextID)
		}
		if !s.mod.InCode(is.IP) {
			return fmt.Errorf("script %d ip %d outside code", is.Number, is.IP)
		}
		if len(is.Stack) > s.limits.StackDepth {
			return fmt.Errorf("script %d stack depth %d exceeds %d", is.Number, len(is.Stack), s.limits.StackDepth)
		}
		if len(is.Locals) > s.limits.ScriptVars {
			return fmt.Errorf("script %d has %d locals", is.Number, len(is.Locals))
		}
		if is.Delay < 0 {
			return fmt.Errorf("script %d has negative delay", is.Number)
		}
		if len(is.Print) > s.limits.PrintBuffer {
			return fmt.Errorf("script %d print buffer too long", is.Number)
		}
	}
	for n := range active {
		return fmt.Errorf("active script %d has no instance", n)
	}
	return nil
}
