package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/mission-deck/internal/auth"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL:     srv.URL,
		Credentials: auth.New("mission-deck", auth.StaticToken("tok-123")),
		RateLimit:   1000,
	})
}

func TestListMissions(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/missions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]Mission{
			{ID: "m1", Name: "deploy prod", Status: "running"},
			{ID: "m2", Name: "nightly sync", Status: "queued"},
		})
	}))

	missions, err := c.ListMissions(context.Background())
	require.NoError(t, err)
	require.Len(t, missions, 2)
	assert.Equal(t, "deploy prod", missions[0].Name)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestGetMissionNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no such mission"})
	}))

	_, err := c.GetMission(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "no such mission")
}

func TestCreateMission(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req CreateMissionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(Mission{ID: "m9", Name: req.Name, Status: "queued"})
	}))

	m, err := c.CreateMission(context.Background(), CreateMissionRequest{Name: "smoke test"})
	require.NoError(t, err)
	assert.Equal(t, "m9", m.ID)
	assert.Equal(t, "smoke test", m.Name)
}

func TestArchiveMissionPathEscaping(t *testing.T) {
	var gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
	}))

	require.NoError(t, c.ArchiveMission(context.Background(), "m/1"))
	assert.Equal(t, "/api/missions/m%2F1/archive", gotPath)
}

func TestSetSkillEnabled(t *testing.T) {
	var got map[string]bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/skills/s1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))

	require.NoError(t, c.SetSkillEnabled(context.Background(), "s1", true))
	assert.Equal(t, map[string]bool{"enabled": true}, got)
}

func TestSecretsAreWriteOnly(t *testing.T) {
	var mu sync.Mutex
	stored := map[string]string{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut:
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			stored[r.URL.Path] = body["value"]
			mu.Unlock()
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode([]SecretMeta{{Name: "API_KEY"}})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	ctx := context.Background()
	require.NoError(t, c.SetSecret(ctx, "API_KEY", "hunter2"))
	assert.Equal(t, "hunter2", stored["/api/secrets/API_KEY"])

	metas, err := c.ListSecrets(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "API_KEY", metas[0].Name)

	require.NoError(t, c.DeleteSecret(ctx, "API_KEY"))
}

func TestListDirQueryEncoding(t *testing.T) {
	var gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Query().Get("path")
		_ = json.NewEncoder(w).Encode([]FileEntry{{Name: "main.go", Path: "/src/main.go"}})
	}))

	entries, err := c.ListDir(context.Background(), "/src dir/with spaces")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/src dir/with spaces", gotPath)
}

func TestReadFile(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/files/content", r.URL.Path)
		_, _ = w.Write([]byte("package main\n"))
	}))

	data, err := c.ReadFile(context.Background(), "/src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(data))
}

func TestFetchDashboardParallel(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/api/missions":
			_ = json.NewEncoder(w).Encode([]Mission{{ID: "m1"}})
		case "/api/workspaces":
			_ = json.NewEncoder(w).Encode([]Workspace{{ID: "w1"}, {ID: "w2"}})
		case "/api/skills":
			_ = json.NewEncoder(w).Encode([]Skill{{ID: "s1"}})
		default:
			http.NotFound(w, r)
		}
	}))

	d, err := c.FetchDashboard(context.Background())
	require.NoError(t, err)
	assert.Len(t, d.Missions, 1)
	assert.Len(t, d.Workspaces, 2)
	assert.Len(t, d.Skills, 1)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchDashboardPropagatesFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/workspaces" {
			http.Error(w, `{"error":"backend down"}`, http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]Mission{})
	}))

	_, err := c.FetchDashboard(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestFetchDashboardCoalescesConcurrentCalls(t *testing.T) {
	var hits atomic.Int32
	block := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-block
		_ = json.NewEncoder(w).Encode([]any{})
	}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.FetchDashboard(context.Background())
		}()
	}
	// Let every caller join the in-flight fetch before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	// One fetch, three list endpoints.
	assert.Equal(t, int32(3), hits.Load())
}

func TestNoAuthorizationHeaderWithoutCredential(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]Mission{})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(ClientConfig{
		BaseURL:     srv.URL,
		Credentials: auth.New("mission-deck", nil),
		RateLimit:   1000,
	})
	_, err := c.ListMissions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestRateLimiterHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Mission{})
	}))
	t.Cleanup(srv.Close)

	// Burst of 1 at a very low rate: the second call has to wait, and a
	// cancelled context aborts that wait.
	c := NewClient(ClientConfig{BaseURL: srv.URL, RateLimit: 0.001})

	_, err := c.ListMissions(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ListMissions(ctx)
	require.Error(t, err)
}
