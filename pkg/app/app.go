package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/cli"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/config"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/console"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/engine"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/logger"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/modfile"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/sound"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/vm"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/window"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/world"
)

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	opts   *cli.Options
	cfg    *config.Config
	log    *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	source  *modfile.Source
	world   *world.World
	session *vm.Session
	loop    *engine.Loop
	console *console.Console
	game    *window.Game
}

// New Applicationを作成
func New(stdin io.Reader, stdout, stderr io.Writer) *Application {
	return &Application{stdin: stdin, stdout: stdout, stderr: stderr}
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	// 1. コマンドライン引数の解析
	opts, err := cli.ParseArgs(args)
	if err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}
	app.opts = opts

	if opts.ShowHelp {
		cli.PrintHelp(app.stdout)
		return nil
	}

	// 2. ロガーの初期化
	if err := logger.InitLogger(opts.LogLevel, opts.LogFormat, app.stderr); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.log = logger.GetLogger()

	// サンプルモジュールの書き出しだけを行う
	if opts.SamplePath != "" {
		return app.writeSample(opts.SamplePath)
	}

	app.log.Info("Application started")

	// 3. 設定とモジュールの読み込み
	if err := app.loadConfig(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := app.loadModules(); err != nil {
		return fmt.Errorf("failed to load modules: %w", err)
	}

	// 4. ワールド、セッション、ループの構築
	if err := app.build(); err != nil {
		return err
	}

	startMap := app.startMap()
	if err := app.loop.Start(startMap); err != nil {
		return fmt.Errorf("failed to start map %d: %w", startMap, err)
	}

	// 5. 実行
	runErr := app.run()

	// 6. スナップショットの保存
	if opts.SavePath != "" {
		if err := app.saveSnapshot(opts.SavePath); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	app.log.Info("Application terminated normally", "ticks", app.loop.Ticks())
	return nil
}

// loadConfig は -c で指定された設定ファイル、またはモジュールの隣の acsrun.toml を読み込む
func (app *Application) loadConfig() error {
	if app.opts.ConfigPath != "" {
		cfg, err := config.Load(app.opts.ConfigPath)
		if err != nil {
			return err
		}
		app.cfg = cfg
		return nil
	}

	dir := "."
	if p := app.opts.ModulePath; p != "" {
		dir = p
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			dir = filepath.Dir(p)
		}
	}
	cfg, err := config.FindAndLoad(dir)
	if err != nil {
		return err
	}
	app.cfg = cfg
	return nil
}

// loadModules はモジュールの場所を解決する。
// 引数のパスが設定ファイルの [maps] より優先される。
func (app *Application) loadModules() error {
	if p := app.opts.ModulePath; p != "" {
		src, err := modfile.Open(p)
		if err != nil {
			return err
		}
		app.source = src
	} else if files := app.cfg.MapFiles(); len(files) > 0 {
		app.source = modfile.FromFiles(files)
	} else {
		return errors.New("no module path given and no [maps] in the configuration")
	}
	app.log.Info("Modules found", "maps", app.source.Maps())
	return nil
}

// build はワールドとセッションを作成してループに接続する
func (app *Application) build() error {
	worldOpts := []world.Option{world.WithMessageHandler(app.showMessage)}
	if dir := app.cfg.SoundDir(); dir != "" && !app.opts.Headless {
		player := sound.NewPlayer(nil, dir)
		worldOpts = append(worldOpts, world.WithSoundHandler(player.Handle))
		app.log.Info("Sound playback enabled", "dir", dir)
	}
	w, err := world.New(app.cfg.World, worldOpts...)
	if err != nil {
		return fmt.Errorf("failed to build world: %w", err)
	}

	vmOpts, err := app.cfg.SessionOptions()
	if err != nil {
		return fmt.Errorf("failed to configure vm: %w", err)
	}
	app.world = w
	app.session = vm.NewSession(w, vmOpts...)
	app.loop = engine.New(app.session, w, app.source,
		engine.WithTimeout(app.opts.Timeout),
		engine.WithRealtime(app.opts.Realtime))
	app.console = console.New(app.session, app.stdout)
	return nil
}

// startMap は開始マップを決める: --map、設定の start、最初のモジュールの順
func (app *Application) startMap() int {
	if app.opts.Map > 0 {
		return app.opts.Map
	}
	start := app.cfg.Maps.Start
	if _, ok := app.source.Path(start); ok {
		return start
	}
	if maps := app.source.Maps(); len(maps) > 0 {
		return maps[0]
	}
	return start
}

// run はヘッドレスまたはウィンドウでループを実行する
func (app *Application) run() error {
	if app.opts.Headless {
		app.log.Info("Headless mode: reading console commands from stdin")
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		err := window.RunHeadless(ctx, app.loop, app.stdin, app.exec, app.opts.Ticks)
		if errors.Is(err, engine.ErrTerminated) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	app.game = window.NewGame(app.loop, app.opts.Timeout)
	app.game.SetScriptKeyHandler(func(script int32) {
		app.exec(fmt.Sprintf("puke %d", script))
	})
	return window.Run(app.game)
}

// exec はコンソールコマンドを実行し、エラーを出力する
func (app *Application) exec(line string) {
	if err := app.console.Exec(line); err != nil {
		fmt.Fprintln(app.stdout, err)
	}
}

// showMessage はプレイヤーメッセージをウィンドウまたは標準出力に表示する
func (app *Application) showMessage(m world.Message) {
	if app.game != nil {
		app.game.AddMessage(m)
		return
	}
	prefix := ""
	if m.Priority {
		prefix = "!"
	}
	fmt.Fprintf(app.stdout, "[%d] %sP%d: %s\n", m.Tick, prefix, m.Player, m.Text)
}

// saveSnapshot はセッションの状態を CBOR で書き出す
func (app *Application) saveSnapshot(path string) error {
	data, err := app.session.Save()
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	app.log.Info("Snapshot written", "path", path, "size", len(data))
	return nil
}

// writeSample はサンプルモジュールを書き出す
func (app *Application) writeSample(path string) error {
	blob, err := SampleModule()
	if err != nil {
		return fmt.Errorf("failed to build sample: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}
	fmt.Fprintf(app.stdout, "Sample module written to %s (%d bytes)\n", path, len(blob))
	return nil
}
