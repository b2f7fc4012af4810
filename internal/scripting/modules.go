package scripting

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules installs the chat.* helper table into L.
//
//	chat.log(msg)          logs msg at info level on the script logger
//	chat.words(text)       returns the whitespace-separated words of text
//
// Precondition: L must be from NewSandboxedState.
func RegisterModules(L *lua.LState, logger *zap.Logger) {
	mod := L.NewTable()
	L.SetField(mod, "log", L.NewFunction(func(L *lua.LState) int {
		logger.Info("lua", zap.String("msg", L.CheckString(1)))
		return 0
	}))
	L.SetField(mod, "words", L.NewFunction(func(L *lua.LState) int {
		text := L.CheckString(1)
		t := L.NewTable()
		for _, w := range strings.Fields(text) {
			t.Append(lua.LString(w))
		}
		L.Push(t)
		return 1
	}))
	L.SetGlobal("chat", mod)
}
