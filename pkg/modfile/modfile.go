// Package modfile はマップごとのコンパイル済みACSモジュールを探して読み込む。
//
// モジュールは次のいずれかから解決される:
//   - ディレクトリ: "*.o" ファイル（大文字小文字を区別しない）を走査し、
//     ファイル名に含まれる数字をマップ番号とする（MAP01.o → 1）
//   - 単一のファイル: マップ1のモジュールとする
//   - 設定ファイルの [maps] テーブル
package modfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"

	"golang.org/x/text/cases"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/logger"
)

// Ext はモジュールファイルの拡張子
const Ext = ".o"

// ErrNoModules はモジュールファイルが見つからないことを表す
var ErrNoModules = errors.New("no module files found")

// Source はマップ番号からモジュールを読み込む
type Source struct {
	fsys  fs.FS // nil のときは OS のパスをそのまま使う
	files map[int]string
	log   *slog.Logger
}

// NewSource は fsys 内のファイルを使う Source を作成する
func NewSource(fsys fs.FS, files map[int]string) *Source {
	return &Source{fsys: fsys, files: files, log: logger.GetLogger()}
}

// FromFiles は OS のパスを使う Source を作成する
func FromFiles(files map[int]string) *Source {
	return NewSource(nil, files)
}

// Open はパスがディレクトリなら走査し、ファイルならマップ1として扱う
func Open(p string) (*Source, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	if !info.IsDir() {
		return FromFiles(map[int]string{1: p}), nil
	}
	fsys := os.DirFS(p)
	files, err := Scan(fsys)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return NewSource(fsys, files), nil
}

// Scan は fsys を再帰的に走査してモジュールファイルを集める。
// 番号のないファイルが1つだけならマップ1とする。
func Scan(fsys fs.FS) (map[int]string, error) {
	var found, unnumbered []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsModuleFile(p) {
			return nil
		}
		found = append(found, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNoModules
	}

	files := make(map[int]string)
	for _, p := range found {
		n, ok := MapNumber(path.Base(p))
		if !ok {
			unnumbered = append(unnumbered, p)
			continue
		}
		if prev, dup := files[n]; dup {
			return nil, fmt.Errorf("map %d has two modules: %s and %s", n, prev, p)
		}
		files[n] = p
	}
	if len(found) == 1 && len(unnumbered) == 1 {
		files[1] = unnumbered[0]
	} else if len(unnumbered) > 0 {
		logger.GetLogger().Warn("Module files without a map number ignored", "files", unnumbered)
	}
	return files, nil
}

// IsModuleFile は名前がモジュールファイルの拡張子を持つかを返す
func IsModuleFile(name string) bool {
	return cases.Fold().String(path.Ext(name)) == Ext
}

// MapNumber はファイル名の最初の数字の並びをマップ番号として返す
func MapNumber(name string) (int, bool) {
	start := -1
	for i := 0; i <= len(name); i++ {
		digit := i < len(name) && name[i] >= '0' && name[i] <= '9'
		switch {
		case digit && start < 0:
			start = i
		case !digit && start >= 0:
			n, err := strconv.Atoi(name[start:i])
			if err != nil {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}

// Maps はモジュールを持つマップ番号を昇順で返す
func (s *Source) Maps() []int {
	out := make([]int, 0, len(s.files))
	for n := range s.files {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Path はマップのモジュールファイルのパスを返す
func (s *Source) Path(mapID int) (string, bool) {
	p, ok := s.files[mapID]
	return p, ok
}

// Module はマップのモジュールを読み込む。
// モジュールのないマップは nil を返す。
func (s *Source) Module(mapID int) ([]byte, error) {
	p, ok := s.files[mapID]
	if !ok {
		return nil, nil
	}
	data, err := s.readFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read module %s: %w", p, err)
	}
	s.log.Debug("Module read", "map", mapID, "path", p, "size", len(data))
	return data, nil
}

// readFile はファイルを読み込む。見つからない場合は大文字小文字を無視して探す。
func (s *Source) readFile(p string) ([]byte, error) {
	if s.fsys == nil {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			dir, name := filepath.Dir(p), filepath.Base(p)
			if actual, ferr := findFold(os.DirFS(dir), ".", name); ferr == nil {
				return os.ReadFile(filepath.Join(dir, filepath.FromSlash(actual)))
			}
		}
		return data, err
	}

	data, err := fs.ReadFile(s.fsys, p)
	if errors.Is(err, fs.ErrNotExist) {
		if actual, ferr := findFold(s.fsys, path.Dir(p), path.Base(p)); ferr == nil {
			return fs.ReadFile(s.fsys, actual)
		}
	}
	return data, err
}

// findFold は dir 内で name と大文字小文字を無視して一致するファイルを探す
func findFold(fsys fs.FS, dir, name string) (string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	want := cases.Fold().String(name)
	for _, e := range entries {
		if !e.IsDir() && cases.Fold().String(e.Name()) == want {
			return path.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("file not found: %s (searched in %s)", name, dir)
}
