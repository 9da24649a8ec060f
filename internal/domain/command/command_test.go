package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinsComeFirst(t *testing.T) {
	r := NewRegistry()
	r.Register("lab.a", "lab.a:open", "Open Lab")

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, RefreshID, all[0].ID)
	assert.Equal(t, ConsoleID, all[1].ID)
	assert.True(t, all[0].Builtin())
	assert.Equal(t, "lab.a:open", all[2].ID)
	assert.False(t, all[2].Builtin())
}

func TestDuplicateIDsAreRetained(t *testing.T) {
	r := NewRegistry()
	r.Register("lab.a", "refresh", "Refresh A")
	r.Register("lab.b", "refresh", "Refresh B")
	r.Register("lab.a", "refresh", "Refresh A again")

	assert.Len(t, r.Live(), 3)

	c, ok := r.Find("lab.b", "refresh")
	require.True(t, ok)
	assert.Equal(t, "Refresh B", c.Title)

	assert.True(t, r.Unregister("lab.a", "refresh"))
	live := r.Live()
	require.Len(t, live, 2)
	assert.Equal(t, "Refresh B", live[0].Title)
	assert.Equal(t, "Refresh A again", live[1].Title)
}

func TestRemoveExtension(t *testing.T) {
	r := NewRegistry()
	r.Register("lab.a", "one", "One")
	r.Register("lab.b", "two", "Two")
	r.Register("lab.a", "three", "Three")

	assert.Equal(t, 2, r.RemoveExtension("lab.a"))
	live := r.Live()
	require.Len(t, live, 1)
	assert.Equal(t, "lab.b", live[0].ExtensionID)
	assert.Equal(t, 0, r.RemoveExtension("lab.a"))
}

func TestTitlesArePlainText(t *testing.T) {
	r := NewRegistry()
	c := r.Register("lab.a", "x", "<img src=x onerror=alert(1)><b>Run</b>")
	assert.Equal(t, "Run", c.Title)

	c = r.Register("lab.a", "y", "")
	assert.Equal(t, "y", c.Title)
}

func TestFindBuiltin(t *testing.T) {
	r := NewRegistry()
	c, ok := r.Find(HostID, ConsoleID)
	require.True(t, ok)
	assert.True(t, c.Builtin())

	_, ok = r.Find(HostID, "lab.a:open")
	assert.False(t, ok)
}

func TestFilterIsCaseInsensitiveSubstring(t *testing.T) {
	cmds := []Command{
		{ID: "a", Title: "Refresh data"},
		{ID: "b", Title: "Open Specimens"},
		{ID: "c", Title: "Export DATA"},
	}
	got := Filter(cmds, "data")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)

	assert.Len(t, Filter(cmds, "  "), 3)
	assert.Empty(t, Filter(cmds, "zzz"))
}

func TestRankPrefersTighterMatches(t *testing.T) {
	cmds := []Command{
		{ID: "a", Title: "Toggle extension console"},
		{ID: "b", Title: "Open specimens"},
		{ID: "c", Title: "Open settings"},
	}
	got := Rank(cmds, "opset")
	require.NotEmpty(t, got)
	assert.Equal(t, "c", got[0].ID)
	assert.NotEmpty(t, got[0].Matched)

	assert.Len(t, Rank(cmds, ""), 3)
}
