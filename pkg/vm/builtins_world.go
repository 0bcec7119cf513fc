package vm

// World-facing instructions. Failures reported by the world are logged and
// the script continues.

// lineSpecial executes a line special with the instance's activation context.
// Arguments are truncated to bytes.
func (s *Session) lineSpecial(in *Instance, special int32, args []int32) {
	var b [5]byte
	n := min(len(args), len(b))
	for i := 0; i < n; i++ {
		b[i] = byte(args[i])
	}
	if !s.world.ExecuteLineSpecial(special, b[:n], in.line, in.side, in.activator) {
		s.log.Debug("Line special had no effect", "script", in.Number(), "special", special)
	}
}

func (s *Session) changeSectorMaterial(in *Instance, tag int32, plane Plane, nameIdx int32) error {
	name, err := s.str(in, nameIdx)
	if err != nil {
		return err
	}
	mat, err := s.world.ResolveFlat(name)
	if err != nil {
		s.log.Debug("Flat not changed",
			"script", in.Number(), "tag", tag, "plane", plane,
			"error", scriptError(ErrorResourceBridge, in.Number(), "flat %q: %v", name, err))
		return nil
	}
	s.world.SetSectorMaterial(tag, plane, mat)
	return nil
}

func (s *Session) setLineTexture(in *Instance, tag, side int32, part TexturePart, nameIdx int32) error {
	name, err := s.str(in, nameIdx)
	if err != nil {
		return err
	}
	if part < TextureTop || part > TextureBottom {
		s.log.Debug("Line texture part out of range", "script", in.Number(), "part", part)
		return nil
	}
	mat, err := s.world.ResolveTexture(name)
	if err != nil {
		s.log.Debug("Line texture not changed",
			"script", in.Number(), "tag", tag,
			"error", scriptError(ErrorResourceBridge, in.Number(), "texture %q: %v", name, err))
		return nil
	}
	for _, line := range s.world.FindLines(tag) {
		s.world.SetLineTexture(line, side, part, mat)
	}
	return nil
}

// endPrint delivers the print buffer. A normal print goes to the player
// controlling the activator, or to every player when there is none. A bold
// print always goes to every player as a priority message.
func (s *Session) endPrint(in *Instance, bold bool) {
	text := in.print.String()
	in.print.Reset()

	if !bold && in.activator != NoThing {
		if p, ok := s.world.PlayerOf(in.activator); ok {
			s.world.PlayerMessage(p, text, false)
			return
		}
	}
	for _, p := range s.world.PlayersInGame() {
		s.world.PlayerMessage(p, text, bold)
	}
}

// lineOrigin is the front sector of the activating line, or no origin.
func (s *Session) lineOrigin(in *Instance) SoundOrigin {
	if in.line == NoLine {
		return SoundOrigin{}
	}
	sec, ok := s.world.LineFrontSector(in.line)
	if !ok {
		return SoundOrigin{}
	}
	return SoundOrigin{Kind: OriginSector, Sector: sec}
}

// ambientOrigin has no position unless 3-D ambient sounds are enabled, in
// which case it is a random point near the console player.
func (s *Session) ambientOrigin() SoundOrigin {
	if !s.sound3D {
		return SoundOrigin{}
	}
	x, y, z, ok := s.world.PlayerPosition(s.world.ConsolePlayer())
	if !ok {
		return SoundOrigin{}
	}
	r := func() float64 { return float64(s.rng.IntN(256)) }
	return SoundOrigin{
		Kind: OriginPoint,
		X:    x + (r()-127)*2,
		Y:    y + (r()-127)*2,
		Z:    z + r() + 5,
	}
}
