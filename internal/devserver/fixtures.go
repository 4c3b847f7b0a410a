package devserver

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asheshgoplani/mission-deck/internal/api"
)

// fixtureStore is the in-memory control plane the dev server serves. It
// exists so panels and the API client have something real to talk to
// during development; nothing persists.
type fixtureStore struct {
	mu         sync.Mutex
	missions   []api.Mission
	workspaces []api.Workspace
	skills     []api.Skill
	secrets    map[string]time.Time
	profiles   []api.ConfigProfile
	filesRoot  string
}

func newFixtureStore(filesRoot string) *fixtureStore {
	now := time.Now().UTC()
	return &fixtureStore{
		missions: []api.Mission{
			{ID: "m-1", Name: "nightly index rebuild", Status: "running", WorkspaceID: "w-1", CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now},
			{ID: "m-2", Name: "dependency audit", Status: "queued", CreatedAt: now.Add(-30 * time.Minute), UpdatedAt: now},
		},
		workspaces: []api.Workspace{
			{ID: "w-1", Name: "Build", Image: "ubuntu:24.04", Status: "ready", CreatedAt: now.Add(-48 * time.Hour)},
			{ID: "w-2", Name: "Staging", Image: "debian:12", Status: "ready", CreatedAt: now.Add(-24 * time.Hour)},
		},
		skills: []api.Skill{
			{ID: "s-1", Name: "code-review", Description: "review diffs before merge", Enabled: true},
			{ID: "s-2", Name: "web-search", Description: "search the web for context", Enabled: false},
		},
		secrets: map[string]time.Time{
			"GITHUB_TOKEN": now.Add(-72 * time.Hour),
		},
		profiles: []api.ConfigProfile{
			{ID: "p-1", Name: "default", Active: true},
			{ID: "p-2", Name: "restricted", Active: false},
		},
		filesRoot: filesRoot,
	}
}

func (s *Server) handleMissions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/missions")
	rest = strings.TrimPrefix(rest, "/")

	switch {
	case rest == "" && r.Method == http.MethodGet:
		s.store.mu.Lock()
		out := append([]api.Mission(nil), s.store.missions...)
		s.store.mu.Unlock()
		writeJSON(w, out)

	case rest == "" && r.Method == http.MethodPost:
		var req api.CreateMissionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			writeError(w, http.StatusBadRequest, "mission name is required")
			return
		}
		m := api.Mission{
			ID:          "m-" + uuid.NewString()[:8],
			Name:        req.Name,
			Status:      "queued",
			WorkspaceID: req.WorkspaceID,
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		}
		s.store.mu.Lock()
		s.store.missions = append(s.store.missions, m)
		s.store.mu.Unlock()
		writeJSON(w, m)

	case strings.HasSuffix(rest, "/archive") && r.Method == http.MethodPost:
		id := pathSegment(strings.TrimSuffix(rest, "/archive"))
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		for i := range s.store.missions {
			if s.store.missions[i].ID == id {
				s.store.missions[i].Archived = true
				s.store.missions[i].UpdatedAt = time.Now().UTC()
				writeJSON(w, s.store.missions[i])
				return
			}
		}
		writeError(w, http.StatusNotFound, "no such mission")

	case r.Method == http.MethodGet:
		id := pathSegment(rest)
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		for i := range s.store.missions {
			if s.store.missions[i].ID == id {
				writeJSON(w, s.store.missions[i])
				return
			}
		}
		writeError(w, http.StatusNotFound, "no such mission")

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/workspaces")
	rest = strings.TrimPrefix(rest, "/")

	switch {
	case rest == "" && r.Method == http.MethodGet:
		s.store.mu.Lock()
		out := append([]api.Workspace(nil), s.store.workspaces...)
		s.store.mu.Unlock()
		writeJSON(w, out)

	case rest == "" && r.Method == http.MethodPost:
		var req api.CreateWorkspaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			writeError(w, http.StatusBadRequest, "workspace name is required")
			return
		}
		ws := api.Workspace{
			ID:        "w-" + uuid.NewString()[:8],
			Name:      req.Name,
			Image:     req.Image,
			Status:    "ready",
			CreatedAt: time.Now().UTC(),
		}
		s.store.mu.Lock()
		s.store.workspaces = append(s.store.workspaces, ws)
		s.store.mu.Unlock()
		writeJSON(w, ws)

	case r.Method == http.MethodGet:
		id := pathSegment(rest)
		if ws, ok := s.store.workspace(id); ok {
			writeJSON(w, ws)
			return
		}
		writeError(w, http.StatusNotFound, "no such workspace")

	case r.Method == http.MethodDelete:
		id := pathSegment(rest)
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		for i := range s.store.workspaces {
			if s.store.workspaces[i].ID == id {
				s.store.workspaces = append(s.store.workspaces[:i], s.store.workspaces[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		writeError(w, http.StatusNotFound, "no such workspace")

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (st *fixtureStore) workspace(id string) (api.Workspace, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, ws := range st.workspaces {
		if ws.ID == id {
			return ws, true
		}
	}
	return api.Workspace{}, false
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/skills")
	rest = strings.TrimPrefix(rest, "/")

	switch {
	case rest == "" && r.Method == http.MethodGet:
		s.store.mu.Lock()
		out := append([]api.Skill(nil), s.store.skills...)
		s.store.mu.Unlock()
		writeJSON(w, out)

	case rest != "" && r.Method == http.MethodPut:
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		id := pathSegment(rest)
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		for i := range s.store.skills {
			if s.store.skills[i].ID == id {
				s.store.skills[i].Enabled = body.Enabled
				writeJSON(w, s.store.skills[i])
				return
			}
		}
		writeError(w, http.StatusNotFound, "no such skill")

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSecrets(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/secrets")
	rest = strings.TrimPrefix(rest, "/")

	switch {
	case rest == "" && r.Method == http.MethodGet:
		s.store.mu.Lock()
		out := make([]api.SecretMeta, 0, len(s.store.secrets))
		for name, updated := range s.store.secrets {
			out = append(out, api.SecretMeta{Name: name, UpdatedAt: updated})
		}
		s.store.mu.Unlock()
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		writeJSON(w, out)

	case rest != "" && r.Method == http.MethodPut:
		var body struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == "" {
			writeError(w, http.StatusBadRequest, "secret value is required")
			return
		}
		// Values are write-only: record only the update time.
		s.store.mu.Lock()
		s.store.secrets[pathSegment(rest)] = time.Now().UTC()
		s.store.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	case rest != "" && r.Method == http.MethodDelete:
		s.store.mu.Lock()
		delete(s.store.secrets, pathSegment(rest))
		s.store.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/profiles")
	rest = strings.TrimPrefix(rest, "/")

	switch {
	case rest == "" && r.Method == http.MethodGet:
		s.store.mu.Lock()
		out := append([]api.ConfigProfile(nil), s.store.profiles...)
		s.store.mu.Unlock()
		writeJSON(w, out)

	case strings.HasSuffix(rest, "/apply") && r.Method == http.MethodPost:
		id := pathSegment(strings.TrimSuffix(rest, "/apply"))
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		found := false
		for i := range s.store.profiles {
			if s.store.profiles[i].ID == id {
				found = true
			}
		}
		if !found {
			writeError(w, http.StatusNotFound, "no such profile")
			return
		}
		for i := range s.store.profiles {
			s.store.profiles[i].Active = s.store.profiles[i].ID == id
		}
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodGet:
		id := pathSegment(rest)
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		for i := range s.store.profiles {
			if s.store.profiles[i].ID == id {
				writeJSON(w, s.store.profiles[i])
				return
			}
		}
		writeError(w, http.StatusNotFound, "no such profile")

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleFiles serves the file browser from filesRoot, confined to it.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	reqPath := r.URL.Query().Get("path")
	abs, ok := s.resolvePath(reqPath)
	if !ok {
		writeError(w, http.StatusBadRequest, "path escapes the served root")
		return
	}

	switch r.URL.Path {
	case "/api/files":
		entries, err := os.ReadDir(abs)
		if err != nil {
			writeError(w, http.StatusNotFound, "cannot read directory")
			return
		}
		out := make([]api.FileEntry, 0, len(entries))
		for _, e := range entries {
			info, err := e.Info()
			if err != nil {
				continue
			}
			out = append(out, api.FileEntry{
				Name:    e.Name(),
				Path:    filepath.Join(reqPath, e.Name()),
				IsDir:   e.IsDir(),
				Size:    info.Size(),
				ModTime: info.ModTime().UTC(),
			})
		}
		writeJSON(w, out)

	case "/api/files/stat":
		info, err := os.Stat(abs)
		if err != nil {
			writeError(w, http.StatusNotFound, "no such file")
			return
		}
		writeJSON(w, api.FileEntry{
			Name:    info.Name(),
			Path:    reqPath,
			IsDir:   info.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})

	case "/api/files/content":
		data, err := os.ReadFile(abs)
		if err != nil {
			writeError(w, http.StatusNotFound, "no such file")
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)

	default:
		writeError(w, http.StatusNotFound, "unknown files endpoint")
	}
}

// resolvePath confines a browser path to the served root.
func (s *Server) resolvePath(reqPath string) (string, bool) {
	cleaned := filepath.Clean("/" + reqPath)
	abs := filepath.Join(s.store.filesRoot, cleaned)
	if abs != s.store.filesRoot && !strings.HasPrefix(abs, s.store.filesRoot+string(filepath.Separator)) {
		return "", false
	}
	return abs, true
}

func pathSegment(raw string) string {
	if unescaped, err := url.PathUnescape(raw); err == nil {
		return unescaped
	}
	return raw
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
