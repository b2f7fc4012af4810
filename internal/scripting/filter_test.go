package scripting_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/tcpchat/internal/scripting"
)

const censor = `
local banned = { darn = true, heck = true }

function on_message(sender, text)
	if sender == "spammer" then
		return false
	end
	local changed = false
	local out = {}
	for _, w in ipairs(chat.words(text)) do
		if banned[string.lower(w)] then
			out[#out + 1] = string.rep("*", #w)
			changed = true
		else
			out[#out + 1] = w
		end
	end
	if changed then
		return table.concat(out, " ")
	end
	return nil
end
`

func TestFilter_RewritesDropsAndPasses(t *testing.T) {
	f, err := scripting.NewFilterFromString(censor, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer f.Close()

	text, ok := f.Filter("alice", "well darn it")
	assert.True(t, ok)
	assert.Equal(t, "well **** it", text)

	text, ok = f.Filter("alice", "hello  there")
	assert.True(t, ok)
	assert.Equal(t, "hello  there", text, "nil return keeps the original text")

	_, ok = f.Filter("spammer", "buy now")
	assert.False(t, ok)
}

func TestFilter_ScriptErrorPassesThrough(t *testing.T) {
	f, err := scripting.NewFilterFromString(`function on_message(s, t) error("boom") end`, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer f.Close()

	text, ok := f.Filter("alice", "hi")
	assert.True(t, ok)
	assert.Equal(t, "hi", text)
}

func TestFilter_RunawayScriptPassesThrough(t *testing.T) {
	f, err := scripting.NewFilterFromString(`function on_message(s, t) while true do end end`, 500, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer f.Close()

	text, ok := f.Filter("alice", "hi")
	assert.True(t, ok)
	assert.Equal(t, "hi", text)

	// The state stays usable after an aborted call.
	text, ok = f.Filter("bob", "again")
	assert.True(t, ok)
	assert.Equal(t, "again", text)
}

func TestFilter_MissingHook(t *testing.T) {
	_, err := scripting.NewFilterFromString(`x = 1`, 0, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), scripting.FilterHook)
}

func TestLoadFilter_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.lua")
	require.NoError(t, os.WriteFile(path, []byte(censor), 0o644))

	f, err := scripting.LoadFilter(path, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer f.Close()

	text, ok := f.Filter("alice", "HECK yes")
	assert.True(t, ok)
	assert.Equal(t, "**** yes", text)
}

func TestLoadFilter_MissingFile(t *testing.T) {
	_, err := scripting.LoadFilter(filepath.Join(t.TempDir(), "nope.lua"), 0, zaptest.NewLogger(t))
	assert.Error(t, err)
}
