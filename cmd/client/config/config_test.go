package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	testCases := []struct {
		name        string
		body        string
		expected    *ClientConfig
		expectError bool
	}{
		{
			name:     "defaults buffer size",
			body:     "state_stream_url: ws://127.0.0.1:8545\n",
			expected: &ClientConfig{StateStreamURL: "ws://127.0.0.1:8545", BufferSize: 100},
		},
		{
			name:     "explicit buffer size",
			body:     "state_stream_url: ws://127.0.0.1:8545\nbuffer_size: 8\n",
			expected: &ClientConfig{StateStreamURL: "ws://127.0.0.1:8545", BufferSize: 8},
		},
		{name: "missing url", body: "buffer_size: 8\n", expectError: true},
		{name: "malformed", body: "state_stream_url: [\n", expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "client.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.body), 0o600))

			cfg, err := LoadConfig(path)
			if tc.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, cfg)
		})
	}
}
