package api

import "time"

// Mission is one orchestration run on the control plane.
type Mission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Archived    bool      `json:"archived"`
}

// CreateMissionRequest is the payload for creating a mission.
type CreateMissionRequest struct {
	Name        string `json:"name"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// Workspace is a named execution environment missions run in.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Image     string    `json:"image,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateWorkspaceRequest is the payload for creating a workspace.
type CreateWorkspaceRequest struct {
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Skill is an agent capability that can be toggled per deployment.
type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// SecretMeta describes a stored secret. Values are write-only; the
// control plane never returns them.
type SecretMeta struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConfigProfile is a named bundle of control-plane settings.
type ConfigProfile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// FileEntry is one entry in the remote file browser.
type FileEntry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Dashboard is the aggregate view the TUI paints on startup.
type Dashboard struct {
	Missions   []Mission
	Workspaces []Workspace
	Skills     []Skill
}
