package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/asheshgoplani/mission-deck/internal/auth"
	"github.com/asheshgoplani/mission-deck/internal/logging"
)

var apiLog = logging.ForComponent(logging.CompAPI)

// maxFileRead bounds a single file-browser read.
const maxFileRead = 4 << 20

// ErrNotFound marks a 404 from the control plane.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the control plane.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("control plane returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("control plane returned %d", e.Status)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// ClientConfig wires a Client to the control plane.
type ClientConfig struct {
	// BaseURL is the control plane root, e.g. https://deck.example.com.
	BaseURL string

	// Credentials supplies the bearer token per request.
	Credentials *auth.Credentials

	// Timeout bounds each request. Zero means 15s.
	Timeout time.Duration

	// RateLimit caps requests per second. Zero means 10.
	RateLimit float64
}

// Client is a typed REST client for the control plane. All methods are
// safe for concurrent use; requests share one rate limiter so panel
// refreshes cannot stampede the backend.
type Client struct {
	baseURL string
	creds   *auth.Credentials
	http    *http.Client
	limiter *rate.Limiter
	single  singleflight.Group
}

// NewClient builds a client. The base URL's trailing slash is trimmed.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 10
	}
	burst := int(limit)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		creds:   cfg.Credentials,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
	}
}

// --- missions ---

func (c *Client) ListMissions(ctx context.Context) ([]Mission, error) {
	var out []Mission
	err := c.do(ctx, http.MethodGet, "/api/missions", nil, &out)
	return out, err
}

func (c *Client) GetMission(ctx context.Context, id string) (*Mission, error) {
	var out Mission
	if err := c.do(ctx, http.MethodGet, "/api/missions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateMission(ctx context.Context, req CreateMissionRequest) (*Mission, error) {
	var out Mission
	if err := c.do(ctx, http.MethodPost, "/api/missions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ArchiveMission(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/missions/"+url.PathEscape(id)+"/archive", nil, nil)
}

// --- workspaces ---

func (c *Client) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	var out []Workspace
	err := c.do(ctx, http.MethodGet, "/api/workspaces", nil, &out)
	return out, err
}

func (c *Client) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	var out Workspace
	if err := c.do(ctx, http.MethodGet, "/api/workspaces/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateWorkspace(ctx context.Context, req CreateWorkspaceRequest) (*Workspace, error) {
	var out Workspace
	if err := c.do(ctx, http.MethodPost, "/api/workspaces", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteWorkspace(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/workspaces/"+url.PathEscape(id), nil, nil)
}

// --- skills ---

func (c *Client) ListSkills(ctx context.Context) ([]Skill, error) {
	var out []Skill
	err := c.do(ctx, http.MethodGet, "/api/skills", nil, &out)
	return out, err
}

func (c *Client) SetSkillEnabled(ctx context.Context, id string, enabled bool) error {
	body := map[string]bool{"enabled": enabled}
	return c.do(ctx, http.MethodPut, "/api/skills/"+url.PathEscape(id), body, nil)
}

// --- secrets (values are write-only) ---

func (c *Client) ListSecrets(ctx context.Context) ([]SecretMeta, error) {
	var out []SecretMeta
	err := c.do(ctx, http.MethodGet, "/api/secrets", nil, &out)
	return out, err
}

func (c *Client) SetSecret(ctx context.Context, name, value string) error {
	body := map[string]string{"value": value}
	return c.do(ctx, http.MethodPut, "/api/secrets/"+url.PathEscape(name), body, nil)
}

func (c *Client) DeleteSecret(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/secrets/"+url.PathEscape(name), nil, nil)
}

// --- config profiles ---

func (c *Client) ListProfiles(ctx context.Context) ([]ConfigProfile, error) {
	var out []ConfigProfile
	err := c.do(ctx, http.MethodGet, "/api/profiles", nil, &out)
	return out, err
}

func (c *Client) GetProfile(ctx context.Context, id string) (*ConfigProfile, error) {
	var out ConfigProfile
	if err := c.do(ctx, http.MethodGet, "/api/profiles/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ApplyProfile(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/profiles/"+url.PathEscape(id)+"/apply", nil, nil)
}

// --- file browser ---

func (c *Client) ListDir(ctx context.Context, path string) ([]FileEntry, error) {
	var out []FileEntry
	err := c.do(ctx, http.MethodGet, "/api/files?path="+url.QueryEscape(path), nil, &out)
	return out, err
}

func (c *Client) Stat(ctx context.Context, path string) (*FileEntry, error) {
	var out FileEntry
	if err := c.do(ctx, http.MethodGet, "/api/files/stat?path="+url.QueryEscape(path), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadFile fetches a file's content, bounded at maxFileRead bytes.
func (c *Client) ReadFile(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.roundTrip(ctx, http.MethodGet, "/api/files/content?path="+url.QueryEscape(path), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFileRead))
}

// FetchDashboard loads missions, workspaces, and skills in parallel.
// Concurrent callers share one in-flight fetch.
func (c *Client) FetchDashboard(ctx context.Context) (*Dashboard, error) {
	v, err, _ := c.single.Do("dashboard", func() (any, error) {
		var d Dashboard
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			d.Missions, err = c.ListMissions(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			d.Workspaces, err = c.ListWorkspaces(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			d.Skills, err = c.ListSkills(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return &d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dashboard), nil
}

// do performs one JSON request/response cycle.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.roundTrip(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		apiLog.Warn("request_failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil {
		header, err := c.creds.AuthorizationHeader()
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		if header != "" {
			req.Header.Set("Authorization", header)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// checkStatus maps a non-2xx response to an APIError, lifting the message
// from an {"error": "..."} body when present.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}
