package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/mission-deck/internal/api"
	"github.com/asheshgoplani/mission-deck/internal/auth"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.AppToken == "" {
		cfg.AppToken = "mission-deck"
	}
	if cfg.FilesRoot == "" {
		cfg.FilesRoot = t.TempDir()
	}
	s := NewServer(cfg)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func apiClient(srv *httptest.Server, token string) *api.Client {
	var source auth.TokenSource
	if token != "" {
		source = auth.StaticToken(token)
	}
	return api.NewClient(api.ClientConfig{
		BaseURL:     srv.URL,
		Credentials: auth.New("mission-deck", source),
		RateLimit:   1000,
	})
}

func TestHealthz(t *testing.T) {
	_, srv := newTestServer(t, Config{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])
}

func TestMissionLifecycle(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	c := apiClient(srv, "")
	ctx := context.Background()

	missions, err := c.ListMissions(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, missions)

	created, err := c.CreateMission(ctx, api.CreateMissionRequest{Name: "smoke"})
	require.NoError(t, err)
	assert.Equal(t, "queued", created.Status)

	got, err := c.GetMission(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "smoke", got.Name)

	require.NoError(t, c.ArchiveMission(ctx, created.ID))
	got, err = c.GetMission(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)

	_, err = c.GetMission(ctx, "missing")
	assert.True(t, errors.Is(err, api.ErrNotFound))
}

func TestWorkspaceLifecycle(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	c := apiClient(srv, "")
	ctx := context.Background()

	ws, err := c.CreateWorkspace(ctx, api.CreateWorkspaceRequest{Name: "Scratch", Image: "alpine:3"})
	require.NoError(t, err)

	got, err := c.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "Scratch", got.Name)

	require.NoError(t, c.DeleteWorkspace(ctx, ws.ID))
	_, err = c.GetWorkspace(ctx, ws.ID)
	assert.True(t, errors.Is(err, api.ErrNotFound))
}

func TestSkillToggle(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	c := apiClient(srv, "")
	ctx := context.Background()

	skills, err := c.ListSkills(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, skills)

	target := skills[0]
	require.NoError(t, c.SetSkillEnabled(ctx, target.ID, !target.Enabled))

	skills, err = c.ListSkills(ctx)
	require.NoError(t, err)
	assert.Equal(t, !target.Enabled, skills[0].Enabled)
}

func TestSecretsEndToEnd(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	c := apiClient(srv, "")
	ctx := context.Background()

	require.NoError(t, c.SetSecret(ctx, "DB_PASSWORD", "hunter2"))

	metas, err := c.ListSecrets(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(metas))
	for _, m := range metas {
		names = append(names, m.Name)
	}
	assert.Contains(t, names, "DB_PASSWORD")

	require.NoError(t, c.DeleteSecret(ctx, "DB_PASSWORD"))
}

func TestProfileApply(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	c := apiClient(srv, "")
	ctx := context.Background()

	require.NoError(t, c.ApplyProfile(ctx, "p-2"))
	profiles, err := c.ListProfiles(ctx)
	require.NoError(t, err)
	for _, p := range profiles {
		assert.Equal(t, p.ID == "p-2", p.Active, "profile %s", p.ID)
	}

	err = c.ApplyProfile(ctx, "missing")
	assert.True(t, errors.Is(err, api.ErrNotFound))
}

func TestFileBrowser(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main\n"), 0644))

	_, srv := newTestServer(t, Config{FilesRoot: root})
	c := apiClient(srv, "")
	ctx := context.Background()

	entries, err := c.ListDir(ctx, "/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "src", entries[0].Name)
	assert.True(t, entries[0].IsDir)

	info, err := c.Stat(ctx, "/src/main.go")
	require.NoError(t, err)
	assert.Equal(t, int64(13), info.Size)

	data, err := c.ReadFile(ctx, "/src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(data))
}

func TestFileBrowserConfinedToRoot(t *testing.T) {
	root := t.TempDir()
	_, srv := newTestServer(t, Config{FilesRoot: root})
	c := apiClient(srv, "")

	// Traversal collapses inside the (empty) root instead of escaping it.
	_, err := c.ListDir(context.Background(), "../../etc")
	var apiErr *api.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestRESTAuthGate(t *testing.T) {
	_, srv := newTestServer(t, Config{Token: "sekrit"})

	// No credential: rejected.
	_, err := apiClient(srv, "").ListMissions(context.Background())
	var apiErr *api.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	// Wrong credential: rejected.
	_, err = apiClient(srv, "wrong").ListMissions(context.Background())
	require.Error(t, err)

	// Right credential: accepted.
	_, err = apiClient(srv, "sekrit").ListMissions(context.Background())
	require.NoError(t, err)

	// Health stays open for probes.
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
