package modfile

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"testing/fstest"
)

func TestMapNumber(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"MAP01.o", 1, true},
		{"map12.O", 12, true},
		{"e2m4.o", 2, true},
		{"7.o", 7, true},
		{"scripts.o", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MapNumber(tt.name)
			if got != tt.want || ok != tt.ok {
				t.Errorf("MapNumber(%q) = %d, %v; want %d, %v", tt.name, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestIsModuleFile(t *testing.T) {
	for name, want := range map[string]bool{
		"map01.o":   true,
		"MAP01.O":   true,
		"map01.obj": false,
		"map01.acs": false,
		"o":         false,
	} {
		if got := IsModuleFile(name); got != want {
			t.Errorf("IsModuleFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestScan(t *testing.T) {
	t.Run("大文字小文字を区別しない", func(t *testing.T) {
		fsys := fstest.MapFS{
			"MAP01.O":         {Data: []byte{1}},
			"map02.o":         {Data: []byte{2}},
			"sub/Map10.o":     {Data: []byte{10}},
			"readme.txt":      {Data: []byte("x")},
			"scripts/lib.acs": {Data: []byte("x")},
		}
		files, err := Scan(fsys)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(files) != 3 || files[1] != "MAP01.O" || files[10] != "sub/Map10.o" {
			t.Errorf("unexpected files %v", files)
		}
	})

	t.Run("番号のない単一ファイル", func(t *testing.T) {
		files, err := Scan(fstest.MapFS{"behavior.o": {Data: []byte{1}}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if files[1] != "behavior.o" {
			t.Errorf("unexpected files %v", files)
		}
	})

	t.Run("番号のないファイルは無視", func(t *testing.T) {
		files, err := Scan(fstest.MapFS{
			"behavior.o": {Data: []byte{1}},
			"map03.o":    {Data: []byte{3}},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(files) != 1 || files[3] != "map03.o" {
			t.Errorf("unexpected files %v", files)
		}
	})

	t.Run("重複したマップ番号", func(t *testing.T) {
		_, err := Scan(fstest.MapFS{
			"map01.o": {Data: []byte{1}},
			"MAP1x.o": {Data: []byte{1}},
		})
		if err == nil {
			t.Error("expected error for duplicate map number")
		}
	})

	t.Run("モジュールなし", func(t *testing.T) {
		_, err := Scan(fstest.MapFS{"readme.txt": {Data: []byte("x")}})
		if !errors.Is(err, ErrNoModules) {
			t.Errorf("expected ErrNoModules, got %v", err)
		}
	})
}

func TestSource(t *testing.T) {
	fsys := fstest.MapFS{
		"map01.o": {Data: []byte("one")},
		"map02.o": {Data: []byte("two")},
	}
	s := NewSource(fsys, map[int]string{1: "map01.o", 2: "MAP02.O", 3: "missing.o"})

	if got := s.Maps(); !slices.Equal(got, []int{1, 2, 3}) {
		t.Errorf("unexpected maps %v", got)
	}
	data, err := s.Module(1)
	if err != nil || string(data) != "one" {
		t.Errorf("unexpected module %q %v", data, err)
	}
	data, err = s.Module(2)
	if err != nil || string(data) != "two" {
		t.Errorf("case-insensitive lookup failed: %q %v", data, err)
	}
	if _, err := s.Module(3); err == nil {
		t.Error("expected error for missing file")
	}
	data, err = s.Module(9)
	if data != nil || err != nil {
		t.Errorf("map without a module should yield nil, got %q %v", data, err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "MAP05.o"), []byte("five"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("ディレクトリ", func(t *testing.T) {
		s, err := Open(dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := s.Module(5)
		if err != nil || string(data) != "five" {
			t.Errorf("unexpected module %q %v", data, err)
		}
	})

	t.Run("単一ファイル", func(t *testing.T) {
		s, err := Open(filepath.Join(dir, "MAP05.o"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := s.Module(1)
		if err != nil || string(data) != "five" {
			t.Errorf("unexpected module %q %v", data, err)
		}
	})

	t.Run("OSパスの大文字小文字", func(t *testing.T) {
		s := FromFiles(map[int]string{2: filepath.Join(dir, "map05.O")})
		data, err := s.Module(2)
		if err != nil || string(data) != "five" {
			t.Errorf("unexpected module %q %v", data, err)
		}
	})

	t.Run("存在しないパス", func(t *testing.T) {
		if _, err := Open(filepath.Join(dir, "nope")); err == nil {
			t.Error("expected error")
		}
	})
}
