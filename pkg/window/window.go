package window

import (
	"bufio"
	"context"
	"fmt"
	"image/color"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/logger"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/vm"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/world"
)

const (
	screenWidth  = 640
	screenHeight = 400
	lineHeight   = 16
	// 画面に残すメッセージの数
	maxMessages = 20
)

var (
	// 背景色 #0087C8
	backgroundColor = color.RGBA{0x00, 0x87, 0xC8, 0xFF}
	// テキスト色（白）
	textColor = color.White
	// 優先メッセージの色（黄色）
	priorityTextColor = color.RGBA{0xFF, 0xFF, 0x00, 0xFF}
	// デフォルトフォント
	defaultFace = text.NewGoXFace(basicfont.Face7x13)
)

var scriptKeys = []ebiten.Key{
	ebiten.KeyDigit1, ebiten.KeyDigit2, ebiten.KeyDigit3, ebiten.KeyDigit4, ebiten.KeyDigit5,
	ebiten.KeyDigit6, ebiten.KeyDigit7, ebiten.KeyDigit8, ebiten.KeyDigit9,
}

// Loop はウィンドウから駆動するティックループ
type Loop interface {
	Step()
	Terminate()
	CheckTermination() bool
	Submit(fn func()) bool
	Run(ctx context.Context, ticks int) error
	MapID() int
	Ticks() uint64
}

// Game はEbitengineのゲームインターフェースを実装する
type Game struct {
	loop      Loop
	timeout   time.Duration // タイムアウト時間
	startTime time.Time     // 開始時刻

	// 数字キー1-9で呼ばれる（スクリプト番号を渡す）
	onScriptKey func(script int32)

	messages []world.Message
	mu       sync.RWMutex
}

// NewGame Gameを作成
func NewGame(loop Loop, timeout time.Duration) *Game {
	return &Game{
		loop:      loop,
		timeout:   timeout,
		startTime: time.Now(),
	}
}

// SetScriptKeyHandler sets the function called when a digit key is pressed
func (g *Game) SetScriptKeyHandler(fn func(script int32)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onScriptKey = fn
}

// AddMessage はプレイヤーメッセージを画面に追加する。
// world.WithMessageHandler に渡して使う。
func (g *Game) AddMessage(m world.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages = append(g.messages, m)
	if n := len(g.messages) - maxMessages; n > 0 {
		g.messages = append(g.messages[:0], g.messages[n:]...)
	}
}

// Messages は表示中のメッセージを返す
func (g *Game) Messages() []world.Message {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]world.Message, len(g.messages))
	copy(out, g.messages)
	return out
}

// Update ゲームロジックの更新（Ebitengineが毎ティック呼び出す）
func (g *Game) Update() error {
	// タイムアウトチェック
	if g.timeout > 0 && time.Since(g.startTime) >= g.timeout {
		g.loop.Terminate()
		return ebiten.Termination
	}

	// Escキーで終了（1回だけ反応）
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		g.loop.Terminate()
		return ebiten.Termination
	}
	if g.loop.CheckTermination() {
		return ebiten.Termination
	}

	g.processKeyboardEvents()
	g.loop.Step()
	return nil
}

// processKeyboardEvents は数字キーをスクリプトの起動に変換する
func (g *Game) processKeyboardEvents() {
	g.mu.RLock()
	handler := g.onScriptKey
	g.mu.RUnlock()
	if handler == nil {
		return
	}

	for i, k := range scriptKeys {
		if inpututil.IsKeyJustPressed(k) {
			handler(int32(i + 1))
		}
	}
}

// Draw 画面描画（Ebitengineが毎フレーム呼び出す）
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)

	header := fmt.Sprintf("MAP %02d  TIC %d", g.loop.MapID(), g.loop.Ticks())
	drawLine(screen, header, 8, textColor)

	for i, m := range g.Messages() {
		c := color.Color(textColor)
		if m.Priority {
			c = priorityTextColor
		}
		drawLine(screen, m.Text, float64(8+(i+2)*lineHeight), c)
	}

	help := "1-9: run script  ESC: quit"
	drawLine(screen, help, screenHeight-lineHeight-8, textColor)
}

func drawLine(screen *ebiten.Image, s string, y float64, c color.Color) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(8, y)
	op.ColorScale.ScaleWithColor(c)
	text.Draw(screen, s, defaultFace, op)
}

// Layout 画面サイズを返す
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

// RunHeadless ヘッドレスモードでループを実行する。
// reader から読んだ行はコンソールコマンドとして次のティックの前に実行される。
func RunHeadless(ctx context.Context, loop Loop, reader io.Reader, exec func(line string), ticks int) error {
	if reader != nil {
		scanner := bufio.NewScanner(reader)
		go func() {
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if !loop.Submit(func() { exec(line) }) {
					logger.GetLogger().Warn("Console command dropped", "command", line)
				}
			}
			if err := scanner.Err(); err != nil {
				logger.GetLogger().Warn("Failed to read console input", "error", err)
			}
		}()
	}
	return loop.Run(ctx, ticks)
}

// Run GUIモードでウィンドウを実行
func Run(game *Game) error {
	ebiten.SetWindowSize(screenWidth*2, screenHeight*2)
	ebiten.SetWindowTitle("acsrun - ACS script runner")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(vm.TicsPerSecond)

	if err := ebiten.RunGame(game); err != nil {
		return fmt.Errorf("failed to run game: %w", err)
	}
	return nil
}
