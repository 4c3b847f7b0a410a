package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		path    string
		want    string
		wantErr bool
	}{
		{
			name: "http to ws",
			base: "http://localhost:4317",
			path: ConsolePath,
			want: "ws://localhost:4317/ws/console",
		},
		{
			name: "https to wss",
			base: "https://deck.example.com",
			path: ConsolePath,
			want: "wss://deck.example.com/ws/console",
		},
		{
			name: "trailing slash collapsed",
			base: "http://localhost:4317/",
			path: ConsolePath,
			want: "ws://localhost:4317/ws/console",
		},
		{
			name: "base path preserved",
			base: "https://example.com/deck",
			path: ConsolePath,
			want: "wss://example.com/deck/ws/console",
		},
		{
			name: "ws passthrough",
			base: "ws://localhost:4317",
			path: ConsolePath,
			want: "ws://localhost:4317/ws/console",
		},
		{
			name: "query and fragment stripped",
			base: "http://localhost:4317/?token=abc#frag",
			path: ConsolePath,
			want: "ws://localhost:4317/ws/console",
		},
		{
			name:    "unsupported scheme",
			base:    "ftp://example.com",
			path:    ConsolePath,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveEndpoint(tt.base, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWorkspaceShellPath(t *testing.T) {
	assert.Equal(t, "/ws/workspace/ws-42/shell", WorkspaceShellPath("ws-42"))

	// IDs with reserved characters survive the round trip.
	assert.Equal(t, "/ws/workspace/a%2Fb/shell", WorkspaceShellPath("a/b"))
}
