// Package sound plays the sounds scripts request as WAV files using
// Ebitengine/audio. A sound named "DoorOpen" is looked up as
// "DoorOpen.wav" in the sound directory, ignoring case.
package sound

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/logger"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/vm"
)

// SampleRate is the output sample rate.
const SampleRate = 44100

var (
	// ErrNotFound is returned when no file exists for a sound name.
	ErrNotFound = errors.New("sound not found")

	// ErrInvalidFormat is returned when the file is not a usable WAV file.
	ErrInvalidFormat = errors.New("invalid WAV file format")
)

// Player plays sounds from a directory. Several sounds may play at once;
// Ebitengine/audio mixes them.
type Player struct {
	audioCtx *audio.Context
	dir      string
	log      *slog.Logger

	players []*audio.Player
	muted   bool
	mu      sync.Mutex
}

// NewPlayer creates a player for the sounds in dir. If audioCtx is nil a
// context is created; only one may exist per process.
func NewPlayer(audioCtx *audio.Context, dir string) *Player {
	if audioCtx == nil {
		audioCtx = audio.NewContext(SampleRate)
	}
	return &Player{
		audioCtx: audioCtx,
		dir:      dir,
		log:      logger.GetLogger(),
	}
}

// Resolve returns the path of the WAV file for a sound name.
func (p *Player) Resolve(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	want := name + ".wav"
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return "", fmt.Errorf("failed to read sound directory %s: %w", p.dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), want) {
			return filepath.Join(p.dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: %s (searched in %s)", ErrNotFound, name, p.dir)
}

// Play starts playback of a sound at volume 0..1.
func (p *Player) Play(name string, volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cleanupFinishedPlayers()

	path, err := p.Resolve(name)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read WAV file: %w", err)
	}
	stream, err := wav.DecodeWithSampleRate(SampleRate, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	player, err := p.audioCtx.NewPlayer(stream)
	if err != nil {
		return fmt.Errorf("failed to create audio player: %w", err)
	}
	if p.muted {
		player.SetVolume(0)
	} else {
		player.SetVolume(volume)
	}
	player.Play()
	p.players = append(p.players, player)
	return nil
}

// Handle plays a script sound request. Failures are logged and ignored.
// Positional origins are played without attenuation.
func (p *Player) Handle(req vm.SoundRequest) {
	if err := p.Play(req.Name, float64(req.Volume)); err != nil {
		p.log.Debug("Sound not played", "name", req.Name, "error", err)
	}
}

// SetMuted silences all current and future playback.
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.muted = muted
	for _, player := range p.players {
		if muted {
			player.SetVolume(0)
		} else {
			player.SetVolume(1)
		}
	}
}

// IsMuted returns whether the player is muted.
func (p *Player) IsMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// StopAll stops all playback.
func (p *Player) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, player := range p.players {
		player.Close()
	}
	p.players = nil
}

// ActiveCount returns the number of sounds still playing.
func (p *Player) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanupFinishedPlayers()
	return len(p.players)
}

// cleanupFinishedPlayers must be called with p.mu held.
func (p *Player) cleanupFinishedPlayers() {
	active := p.players[:0]
	for _, player := range p.players {
		if player.IsPlaying() {
			active = append(active, player)
		} else {
			player.Close()
		}
	}
	clear(p.players[len(active):])
	p.players = active
}
