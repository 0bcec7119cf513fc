package sound

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/vm"
)

var (
	sharedAudioCtx     *audio.Context
	sharedAudioCtxOnce sync.Once
)

// getSharedAudioContext returns the shared audio context for tests.
func getSharedAudioContext() *audio.Context {
	sharedAudioCtxOnce.Do(func() {
		sharedAudioCtx = audio.NewContext(SampleRate)
	})
	return sharedAudioCtx
}

// wavBytes builds a short 16-bit mono PCM WAV file.
func wavBytes(samples int) []byte {
	var buf bytes.Buffer
	dataLen := uint32(samples * 2)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(SampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	for i := 0; i < samples; i++ {
		binary.Write(&buf, binary.LittleEndian, int16(i%64*256))
	}
	return buf.Bytes()
}

func soundDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string][]byte{
		"DoorOpen.WAV": wavBytes(4410),
		"broken.wav":   []byte("not a valid wav file"),
		"readme.txt":   []byte("x"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
	}
	return dir
}

func TestResolve(t *testing.T) {
	dir := soundDir(t)
	p := NewPlayer(getSharedAudioContext(), dir)

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"doorOPEN", "DoorOpen.WAV", false},
		{"broken", "broken.wav", false},
		{"readme", "", true},
		{"", "", true},
		{"../DoorOpen", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Resolve(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("expected ErrNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if filepath.Base(got) != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestPlay(t *testing.T) {
	p := NewPlayer(getSharedAudioContext(), soundDir(t))
	p.SetMuted(true)
	defer p.StopAll()

	if err := p.Play("DoorOpen", 0.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Play("broken", 1); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
	if err := p.Play("missing", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	p.StopAll()
	if n := p.ActiveCount(); n != 0 {
		t.Errorf("expected no active sounds, got %d", n)
	}
}

func TestHandle(t *testing.T) {
	p := NewPlayer(getSharedAudioContext(), soundDir(t))
	p.SetMuted(true)
	defer p.StopAll()

	// Failures are only logged.
	p.Handle(vm.SoundRequest{Name: "missing", Volume: 1})
	p.Handle(vm.SoundRequest{Name: "DoorOpen", Volume: 0.25})
}

func TestSetMuted(t *testing.T) {
	p := NewPlayer(getSharedAudioContext(), t.TempDir())
	if p.IsMuted() {
		t.Error("player should not be muted initially")
	}
	p.SetMuted(true)
	if !p.IsMuted() {
		t.Error("player should be muted after SetMuted(true)")
	}
	p.SetMuted(false)
	if p.IsMuted() {
		t.Error("player should not be muted after SetMuted(false)")
	}
}
