package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Options はコマンドライン引数から解析された設定を保持する
type Options struct {
	ModulePath string        // モジュールのディレクトリまたは .o ファイル
	ConfigPath string        // 設定ファイル（acsrun.toml）のパス
	LogLevel   string        // ログレベル（debug, info, warn, error）
	LogFormat  string        // ログ形式（text, json）
	Headless   bool          // ヘッドレスモード
	Ticks      int           // 実行するティック数（0は無制限）
	Map        int           // 開始マップ番号（0は設定ファイルに従う）
	Realtime   bool          // ヘッドレスでも35Hzで実行
	Timeout    time.Duration // タイムアウト時間（0は無制限）
	SavePath   string        // 終了時にスナップショットを書き出すパス
	SamplePath string        // サンプルモジュールの書き出し先
	ShowHelp   bool          // ヘルプ表示フラグ
}

// boolFlags 値を取らないフラグ
var boolFlags = map[string]bool{
	"-h": true, "--h": true, "-help": true, "--help": true,
	"-headless": true, "--headless": true,
	"-realtime": true, "--realtime": true,
}

// ParseArgs コマンドライン引数を解析してOptionsを返す
func ParseArgs(args []string) (*Options, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("acsrun", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	opts := &Options{}

	var timeoutSec int
	fs.StringVar(&opts.ConfigPath, "config", "", "設定ファイルのパス")
	fs.StringVar(&opts.ConfigPath, "c", "", "設定ファイルのパス（短縮形）")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&opts.LogLevel, "l", "info", "ログレベル（短縮形）")
	fs.StringVar(&opts.LogFormat, "log-format", "text", "ログ形式（text, json）")
	fs.BoolVar(&opts.Headless, "headless", false, "ヘッドレスモード")
	fs.IntVar(&opts.Ticks, "ticks", 0, "実行するティック数")
	fs.IntVar(&opts.Ticks, "n", 0, "実行するティック数（短縮形）")
	fs.IntVar(&opts.Map, "map", 0, "開始マップ番号")
	fs.IntVar(&opts.Map, "m", 0, "開始マップ番号（短縮形）")
	fs.BoolVar(&opts.Realtime, "realtime", false, "ヘッドレスでも実時間で実行")
	fs.IntVar(&timeoutSec, "timeout", 0, "タイムアウト時間（秒）")
	fs.IntVar(&timeoutSec, "t", 0, "タイムアウト時間（秒）（短縮形）")
	fs.StringVar(&opts.SavePath, "save", "", "終了時のスナップショット出力先")
	fs.StringVar(&opts.SamplePath, "sample", "", "サンプルモジュールの出力先")
	fs.BoolVar(&opts.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&opts.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}

	// 環境変数からの設定（コマンドラインフラグが優先）
	if !opts.Headless {
		if headlessEnv := os.Getenv("ACS_HEADLESS"); headlessEnv != "" {
			opts.Headless = headlessEnv == "1" || strings.ToLower(headlessEnv) == "true"
		}
	}

	// 環境変数からティック数を取得（コマンドラインフラグが優先）
	if opts.Ticks == 0 {
		if ticksEnv := os.Getenv("ACS_TICKS"); ticksEnv != "" {
			if n, err := strconv.Atoi(ticksEnv); err == nil && n > 0 {
				opts.Ticks = n
			}
		}
	}

	// 環境変数からログレベルを取得（コマンドラインフラグが優先）
	if opts.LogLevel == "info" {
		if logLevelEnv := os.Getenv("ACS_LOG_LEVEL"); logLevelEnv != "" {
			opts.LogLevel = strings.ToLower(logLevelEnv)
		}
	}

	if opts.Ticks < 0 {
		return nil, fmt.Errorf("ticks must be non-negative, got %d", opts.Ticks)
	}
	if opts.Map < 0 {
		return nil, fmt.Errorf("map must be non-negative, got %d", opts.Map)
	}
	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	opts.Timeout = time.Duration(timeoutSec) * time.Second

	// ログレベルの検証
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[opts.LogLevel] {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", opts.LogLevel)
	}
	if opts.LogFormat != "text" && opts.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log format: %s (must be text or json)", opts.LogFormat)
	}

	// 位置引数（モジュールのパス）
	if fs.NArg() > 0 {
		opts.ModulePath = fs.Arg(0)
	}

	return opts, nil
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// フラグかどうかを判定（-または--で始まる）
		if len(arg) > 0 && arg[0] == '-' {
			flags = append(flags, arg)

			// 次の引数が値である可能性をチェック
			// （-n 35 のような場合。-=形式は値を含む）
			if strings.Contains(arg, "=") || boolFlags[arg] {
				continue
			}
			if i+1 < len(args) && len(args[i+1]) > 0 && args[i+1][0] != '-' {
				i++
				flags = append(flags, args[i])
			}
		} else {
			// 位置引数
			positional = append(positional, arg)
		}
	}

	// フラグを前に、位置引数を後ろに配置
	return append(flags, positional...)
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp(w io.Writer) {
	fmt.Fprintf(w, `acsrun - ACS bytecode runner

Usage:
  acsrun [options] <module-dir|module.o>

Arguments:
  module-dir    コンパイル済みACSモジュール（*.o）を含むディレクトリ
                ファイル名の数字部分がマップ番号になる（MAP01.o → 1）
  module.o      単一のモジュールファイル（マップ1として読み込む）

Options:
  -c, --config <path>         設定ファイル（デフォルト: <module-dir>/acsrun.toml）
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  --log-format <format>       ログ形式: text, json（デフォルト: text）
  --headless                  ヘッドレスモード（GUIなし、標準入力からコンソールコマンド）
  -n, --ticks <n>             指定ティック数で終了（デフォルト: 無制限）
  -m, --map <n>               開始マップ番号
  --realtime                  ヘッドレスでも35ティック/秒で実行
  -t, --timeout <seconds>     指定秒数後にプログラムを終了
  --save <path>               終了時にVMスナップショット（CBOR）を書き出す
  --sample <path>             サンプルモジュールを書き出して終了
  -h, --help                  このヘルプを表示

Console commands (headless):
  puke <n> [a1..a4]           スクリプトを開始
  stopscript <n>              スクリプトを終了
  pausescript <n>             スクリプトを一時停止
  scriptinfo [n]              スクリプトの状態を表示
  worldvars / mapvars         変数を表示

Environment Variables:
  ACS_HEADLESS=1              ヘッドレスモードを有効化
  ACS_TICKS=<n>               実行するティック数
  ACS_LOG_LEVEL=<level>       ログレベル

Examples:
  acsrun ./maps                   ディレクトリ内の全モジュールを使用
  acsrun --headless -n 350 map01.o  10秒分だけヘッドレスで実行
  acsrun --sample demo.o          サンプルモジュールを作成
`)
}
