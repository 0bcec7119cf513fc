package app

import (
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/module"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/opcode"
	"github.com/skyjake/Doomsday-Engine-sub054/pkg/world"
)

// SampleTag はサンプルモジュールが動かすセクタのタグ
const SampleTag = 1

// SampleModule はデモ用のモジュールを組み立てる。
//
//	open script 1: 挨拶を表示し、1秒後にスクリプト2を引数3で起動
//	script 2 (count): カウントダウンを表示し、床を下げて完了を待つ
func SampleModule() ([]byte, error) {
	b := module.NewBuilder()

	b.OpenScript(1).
		Print("Welcome to acsrun").
		Emit(opcode.DelayDirect, 35).
		Emit(opcode.LSpec5Direct, world.SpecialACSExecute, 2, 0, 3, 0, 0).
		Emit(opcode.Terminate)

	b.Script(2, 1).
		Label("countdown").
		Emit(opcode.BeginPrint).
		PushString("Countdown: ").Emit(opcode.PrintString).
		Emit(opcode.PushScriptVar, 0).Emit(opcode.PrintNumber).
		Emit(opcode.EndPrint).
		Emit(opcode.DelayDirect, 35).
		Emit(opcode.DecScriptVar, 0).
		Emit(opcode.PushScriptVar, 0).
		Jump(opcode.IfGoto, "countdown").
		Emit(opcode.LSpec3Direct, 20, SampleTag, 8, 64).
		Emit(opcode.TagWaitDirect, SampleTag).
		Emit(opcode.BeginPrint).
		PushString("The floor has lowered").Emit(opcode.PrintString).
		Emit(opcode.EndPrintBold).
		Emit(opcode.Terminate)

	return b.Bytes()
}
