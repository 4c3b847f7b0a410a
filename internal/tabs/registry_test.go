package tabs

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/mission-deck/internal/statedb"
)

// fakeStore records saves and serves canned loads.
type fakeStore struct {
	rows     []*statedb.TabRow
	activeID string
	loadErr  error
	saveErr  error
	saves    int
}

func (s *fakeStore) SaveTabs(tabs []*statedb.TabRow, activeID string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.rows = tabs
	s.activeID = activeID
	s.saves++
	return nil
}

func (s *fakeStore) LoadTabs() ([]*statedb.TabRow, string, error) {
	return s.rows, s.activeID, s.loadErr
}

func TestRegistryDefaultsWhenEmpty(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(store)

	tabs := r.Tabs()
	require.Len(t, tabs, 2)
	assert.Equal(t, KindTerminal, tabs[0].Kind)
	assert.Equal(t, "Terminal 1", tabs[0].Title)
	assert.Equal(t, KindFileBrowser, tabs[1].Kind)
	assert.Equal(t, "Files 1", tabs[1].Title)
	assert.Equal(t, tabs[0].ID, r.ActiveID())

	// The defaults are persisted immediately.
	assert.Equal(t, 1, store.saves)
}

func TestRegistryDefaultsOnLoadError(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("disk gone")}
	r := NewRegistry(store)
	assert.Len(t, r.Tabs(), 2)
	assert.Equal(t, "Terminal 1", r.Active().Title)
}

func TestRegistryDefaultsOnMalformedRows(t *testing.T) {
	tests := []struct {
		name string
		rows []*statedb.TabRow
	}{
		{"unknown kind", []*statedb.TabRow{{ID: "a", Kind: "popup", Title: "X"}}},
		{"empty id", []*statedb.TabRow{{ID: "", Kind: "terminal", Title: "X"}}},
		{"empty title", []*statedb.TabRow{{ID: "a", Kind: "terminal", Title: ""}}},
		{"workspace shell without workspace", []*statedb.TabRow{
			{ID: "a", Kind: "workspace_shell", Title: "Build"},
		}},
		{"duplicate ids", []*statedb.TabRow{
			{ID: "a", Kind: "terminal", Title: "One"},
			{ID: "a", Kind: "terminal", Title: "Two"},
		}},
		{"one bad row poisons the set", []*statedb.TabRow{
			{ID: "a", Kind: "terminal", Title: "Fine"},
			{ID: "b", Kind: "bogus", Title: "Broken"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(&fakeStore{rows: tt.rows, activeID: "a"})
			tabs := r.Tabs()
			require.Len(t, tabs, 2)
			assert.Equal(t, "Terminal 1", tabs[0].Title)
			assert.Equal(t, "Files 1", tabs[1].Title)
		})
	}
}

func TestRegistryHydratesFromStore(t *testing.T) {
	store := &fakeStore{
		rows: []*statedb.TabRow{
			{ID: "t1", Kind: "terminal", Title: "Terminal 1"},
			{ID: "w1", Kind: "workspace_shell", Title: "Build", WorkspaceID: "ws-1", WorkspaceName: "Build"},
			{ID: "f1", Kind: "file_browser", Title: "Files 1"},
		},
		activeID: "w1",
	}
	r := NewRegistry(store)

	tabs := r.Tabs()
	require.Len(t, tabs, 3)
	assert.Equal(t, "w1", r.ActiveID())
	require.NotNil(t, tabs[1].Workspace)
	assert.Equal(t, "ws-1", tabs[1].Workspace.ID)

	// Hydration does not write back.
	assert.Equal(t, 0, store.saves)
}

func TestRegistryUnknownActiveFallsBackToFirst(t *testing.T) {
	store := &fakeStore{
		rows: []*statedb.TabRow{
			{ID: "t1", Kind: "terminal", Title: "Terminal 1"},
			{ID: "f1", Kind: "file_browser", Title: "Files 1"},
		},
		activeID: "gone",
	}
	r := NewRegistry(store)
	assert.Equal(t, "t1", r.ActiveID())
}

func TestRegistryAdd(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(store)

	tab := r.Add(KindTerminal)
	assert.Equal(t, "Terminal 2", tab.Title)
	assert.Equal(t, tab.ID, r.ActiveID())
	assert.Equal(t, 3, r.Len())

	files := r.Add(KindFileBrowser)
	assert.Equal(t, "Files 2", files.Title)

	// Every mutation persists.
	assert.Equal(t, 3, store.saves)
	assert.Equal(t, files.ID, store.activeID)
	require.Len(t, store.rows, 4)
	assert.Equal(t, 3, store.rows[3].Order)
}

func TestRegistryTitleNumberingSkipsGaps(t *testing.T) {
	store := &fakeStore{
		rows: []*statedb.TabRow{
			{ID: "t5", Kind: "terminal", Title: "Terminal 5"},
			{ID: "f1", Kind: "file_browser", Title: "Files 1"},
		},
		activeID: "t5",
	}
	r := NewRegistry(store)
	tab := r.Add(KindTerminal)
	assert.Equal(t, "Terminal 6", tab.Title)
}

func TestRegistryCloseRefusesLastTab(t *testing.T) {
	r := NewRegistry(&fakeStore{
		rows:     []*statedb.TabRow{{ID: "t1", Kind: "terminal", Title: "Terminal 1"}},
		activeID: "t1",
	})
	require.Equal(t, 1, r.Len())
	assert.False(t, r.Close("t1"))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryCloseActivatesNearestByIndex(t *testing.T) {
	store := &fakeStore{
		rows: []*statedb.TabRow{
			{ID: "a", Kind: "terminal", Title: "Terminal 1"},
			{ID: "b", Kind: "terminal", Title: "Terminal 2"},
			{ID: "c", Kind: "terminal", Title: "Terminal 3"},
		},
		activeID: "b",
	}
	r := NewRegistry(store)

	// Closing the active middle tab activates the tab that took its slot.
	require.True(t, r.Close("b"))
	assert.Equal(t, "c", r.ActiveID())

	// Closing the active last tab falls back to the previous one.
	require.True(t, r.Close("c"))
	assert.Equal(t, "a", r.ActiveID())
}

func TestRegistryCloseInactiveKeepsActive(t *testing.T) {
	store := &fakeStore{
		rows: []*statedb.TabRow{
			{ID: "a", Kind: "terminal", Title: "Terminal 1"},
			{ID: "b", Kind: "terminal", Title: "Terminal 2"},
		},
		activeID: "a",
	}
	r := NewRegistry(store)
	require.True(t, r.Close("b"))
	assert.Equal(t, "a", r.ActiveID())
}

func TestRegistryActivate(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(store)
	tabs := r.Tabs()

	assert.True(t, r.Activate(tabs[1].ID))
	assert.Equal(t, tabs[1].ID, r.ActiveID())
	assert.False(t, r.Activate("nope"))
	assert.Equal(t, tabs[1].ID, r.ActiveID())
}

func TestRegistryWorkspaceLaunchDedupe(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(store)
	before := r.Len()

	tab := r.LaunchWorkspace("w1", "Build")
	require.NotNil(t, tab)
	assert.Equal(t, KindWorkspaceShell, tab.Kind)
	assert.Equal(t, "Build", tab.Title)
	require.NotNil(t, tab.Workspace)
	assert.Equal(t, "w1", tab.Workspace.ID)
	assert.Equal(t, tab.ID, r.ActiveID())
	assert.Equal(t, before+1, r.Len())

	// Switch away, then launch again: the existing tab is re-activated,
	// no duplicate is created.
	r.Activate(r.Tabs()[0].ID)
	again := r.LaunchWorkspace("w1", "Build")
	assert.Equal(t, tab.ID, again.ID)
	assert.Equal(t, tab.ID, r.ActiveID())
	assert.Equal(t, before+1, r.Len())
}

func TestRegistryOnChange(t *testing.T) {
	r := NewRegistry(&fakeStore{})
	changes := 0
	r.SetOnChange(func() { changes++ })

	r.Add(KindTerminal)
	r.Activate(r.Tabs()[0].ID)
	r.Close(r.Tabs()[2].ID)
	assert.Equal(t, 3, changes)
}

func TestRegistryReadOnlySkipsPersist(t *testing.T) {
	store := &fakeStore{
		rows: []*statedb.TabRow{
			{ID: "a", Kind: "terminal", Title: "Terminal 1"},
			{ID: "f", Kind: "file_browser", Title: "Files 1"},
		},
		activeID: "a",
	}
	r := NewRegistry(store)
	r.SetWritable(false)
	r.Add(KindTerminal)
	assert.Equal(t, 0, store.saves)
}

func TestRegistryReload(t *testing.T) {
	store := &fakeStore{
		rows: []*statedb.TabRow{
			{ID: "a", Kind: "terminal", Title: "Terminal 1"},
			{ID: "f", Kind: "file_browser", Title: "Files 1"},
		},
		activeID: "a",
	}
	r := NewRegistry(store)

	// Identical stored state: no change.
	assert.False(t, r.Reload())

	// Another instance appended a tab and moved the active pointer.
	store.rows = append(store.rows, &statedb.TabRow{ID: "b", Kind: "terminal", Title: "Terminal 2"})
	store.activeID = "b"
	assert.True(t, r.Reload())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, "b", r.ActiveID())

	// Malformed external state is ignored, memory stays authoritative.
	store.rows = []*statedb.TabRow{{ID: "", Kind: "terminal", Title: "X"}}
	assert.False(t, r.Reload())
	assert.Equal(t, 3, r.Len())
}

// TestRegistryPersistRoundTrip exercises the registry against a real
// database file.
func TestRegistryPersistRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := statedb.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	r := NewRegistry(db)
	term2 := r.Add(KindTerminal)
	r.LaunchWorkspace("w9", "Deploy")
	r.Activate(term2.ID)

	// A second registry over the same database sees the same world.
	r2 := NewRegistry(db)
	require.Equal(t, r.Len(), r2.Len())
	assert.Equal(t, term2.ID, r2.ActiveID())

	titles := make([]string, 0, r2.Len())
	for _, tab := range r2.Tabs() {
		titles = append(titles, tab.Title)
	}
	assert.Equal(t, []string{"Terminal 1", "Files 1", "Terminal 2", "Deploy"}, titles)
}
