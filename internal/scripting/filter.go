package scripting

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// FilterHook is the global function a filter script must define:
//
//	function on_message(sender, text) ... end
//
// Returning a string replaces the text, false drops the message and nil
// passes it through unchanged.
const FilterHook = "on_message"

// Filter runs a chat message filter script. A single LState serves every
// call; calls are serialized.
type Filter struct {
	mu     sync.Mutex
	L      *lua.LState
	limit  int
	logger *zap.Logger
}

// LoadFilter executes the script at path and checks that it defines
// FilterHook.
//
// Precondition: logger must be non-nil.
func LoadFilter(path string, limit int, logger *zap.Logger) (*Filter, error) {
	L := NewSandboxedState()
	RegisterModules(L, logger.Named("lua"))
	if err := Limited(L, limit, func() error { return L.DoFile(path) }); err != nil {
		L.Close()
		return nil, fmt.Errorf("scripting: loading filter %q: %w", path, err)
	}
	return newFilter(L, limit, logger)
}

// NewFilterFromString is LoadFilter for an in-memory script.
func NewFilterFromString(src string, limit int, logger *zap.Logger) (*Filter, error) {
	L := NewSandboxedState()
	RegisterModules(L, logger.Named("lua"))
	if err := Limited(L, limit, func() error { return L.DoString(src) }); err != nil {
		L.Close()
		return nil, fmt.Errorf("scripting: loading filter: %w", err)
	}
	return newFilter(L, limit, logger)
}

func newFilter(L *lua.LState, limit int, logger *zap.Logger) (*Filter, error) {
	if _, ok := L.GetGlobal(FilterHook).(*lua.LFunction); !ok {
		L.Close()
		return nil, fmt.Errorf("scripting: filter does not define %s", FilterHook)
	}
	return &Filter{L: L, limit: limit, logger: logger}, nil
}

// Filter returns the text to deliver for a message from sender, and false
// when the message must be dropped. Script errors and limit overruns pass
// the original text through.
func (f *Filter) Filter(sender, text string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := Limited(f.L, f.limit, func() error {
		return f.L.CallByParam(lua.P{
			Fn:      f.L.GetGlobal(FilterHook),
			NRet:    1,
			Protect: true,
		}, lua.LString(sender), lua.LString(text))
	})
	if err != nil {
		f.logger.Warn("filter script failed",
			zap.String("sender", sender),
			zap.Error(err),
		)
		return text, true
	}

	ret := f.L.Get(-1)
	f.L.Pop(1)
	switch v := ret.(type) {
	case lua.LString:
		return string(v), true
	case lua.LBool:
		if !bool(v) {
			return "", false
		}
	}
	return text, true
}

// Close releases the Lua state.
func (f *Filter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.L.Close()
}
