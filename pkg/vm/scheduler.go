package vm

// release un-blocks every script waiting in state on value.
type release struct {
	state State
	value int32
}

// Tick runs one simulation step. Instances are visited in creation order.
// Each runnable instance executes until it blocks or terminates. Scripts
// started during the tick are appended and reached in the same pass.
// Wait releases produced during the tick take effect when it ends, so the
// released scripts run on the next tick.
func (s *Session) Tick() {
	s.ticking = true
	for i := 0; i < len(s.instances); i++ {
		s.think(s.instances[i])
	}
	s.ticking = false

	s.sweep()
	s.flushReleases()
	s.tick++
}

func (s *Session) think(in *Instance) {
	if in.removed {
		return
	}
	switch in.entry.state {
	case StateTerminating:
		s.finish(in)
		return
	case StateRunning:
	default:
		return
	}

	if in.delay > 0 {
		in.delay--
		if in.delay > 0 {
			return
		}
	}
	s.run(in)
}

// run executes in until it blocks, terminates or faults. A fault ends only
// this instance.
func (s *Session) run(in *Instance) {
	for steps := 0; ; steps++ {
		if steps >= s.limits.MaxRunSteps {
			err := in.fault(ErrorRunaway, "no suspension point after %d instructions", steps)
			s.log.Warn("Script terminated", "script", in.Number(), "ip", in.opStart, "error", err)
			s.finish(in)
			return
		}

		res, err := s.step(in)
		if err != nil {
			s.log.Warn("Script terminated", "script", in.Number(), "ip", in.opStart, "error", err)
			s.finish(in)
			return
		}

		switch res.kind {
		case stepTerminated:
			s.finish(in)
			return
		case stepBlocked:
			return
		}

		// A line special may have suspended or terminated this script.
		if in.entry.state != StateRunning {
			return
		}
	}
}

// finish destroys in and releases the scripts waiting for it.
func (s *Session) finish(in *Instance) {
	e := in.entry
	e.state = StateInactive
	e.waitValue = 0
	if e.inst == in {
		e.inst = nil
	}
	in.removed = true
	s.log.Debug("Script finished", "script", e.def.Number, "instance", in.id)
	s.release(StateWaitingForScript, e.def.Number)
}

func (s *Session) sweep() {
	kept := s.instances[:0]
	for _, in := range s.instances {
		if !in.removed {
			kept = append(kept, in)
		}
	}
	clear(s.instances[len(kept):])
	s.instances = kept
}

func (s *Session) release(state State, value int32) {
	if s.ticking {
		s.pending = append(s.pending, release{state: state, value: value})
		return
	}
	s.applyRelease(release{state: state, value: value})
}

func (s *Session) flushReleases() {
	pending := s.pending
	s.pending = nil
	for _, r := range pending {
		s.applyRelease(r)
	}
}

func (s *Session) applyRelease(r release) {
	for _, e := range s.entries {
		if e.state == r.state && e.waitValue == r.value {
			e.state = StateRunning
			e.waitValue = 0
			s.log.Debug("Script released", "script", e.def.Number, "from", r.state.String(), "value", r.value)
		}
	}
}

// NotifyTagIdle tells the VM that movers on sectors with tag have stopped.
// Scripts waiting for the tag are released unless another mover with the
// same tag is still active.
func (s *Session) NotifyTagIdle(tag int32) {
	if s.world.TagBusy(tag) {
		return
	}
	s.release(StateWaitingForTag, tag)
}

// NotifyPolyobjectIdle tells the VM that polyobject po has stopped.
func (s *Session) NotifyPolyobjectIdle(po int32) {
	if s.world.PolyobjectBusy(po) {
		return
	}
	s.release(StateWaitingForPolyobject, po)
}

// ScanWaits releases every tag and polyobject wait whose resource is idle.
// Hosts that do not send per-tag notifications call it after movers have
// run for the tick.
func (s *Session) ScanWaits() {
	for _, e := range s.entries {
		switch e.state {
		case StateWaitingForTag:
			if !s.world.TagBusy(e.waitValue) {
				s.release(StateWaitingForTag, e.waitValue)
			}
		case StateWaitingForPolyobject:
			if !s.world.PolyobjectBusy(e.waitValue) {
				s.release(StateWaitingForPolyobject, e.waitValue)
			}
		}
	}
}
