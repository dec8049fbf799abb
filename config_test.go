package h2out

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, TokensOn, cfg.ServerTokens)
	require.Equal(t, 8<<10, cfg.ChunkSize)
	require.True(t, cfg.AbsoluteRedirect)
	require.True(t, cfg.PortInRedirect)
	require.False(t, cfg.ServerNameInRedirect)
	require.False(t, cfg.GzipVary)
	require.NotEmpty(t, cfg.ServerVersion)
	require.Equal(t, cfg.ServerVersion, cfg.ServerBuild)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig([]byte(`
server_tokens: "off"
chunk_size: 4096
absolute_redirect: false
gzip_vary: true
server_name: www.example.org
`))
	require.NoError(t, err)

	require.Equal(t, TokensOff, cfg.ServerTokens)
	require.Equal(t, 4096, cfg.ChunkSize)
	require.False(t, cfg.AbsoluteRedirect)
	require.True(t, cfg.GzipVary)
	require.Equal(t, "www.example.org", cfg.ServerName)

	// untouched fields keep their defaults
	require.True(t, cfg.PortInRedirect)
	require.NotEmpty(t, cfg.ServerVersion)
}

func TestLoadConfigInvalidTokens(t *testing.T) {
	_, err := LoadConfig([]byte("server_tokens: sometimes\n"))
	require.Error(t, err)
}

func TestLoadConfigInvalidChunkSize(t *testing.T) {
	_, err := LoadConfig([]byte("chunk_size: -1\n"))
	require.Error(t, err)
}

func TestLoadConfigBadYaml(t *testing.T) {
	_, err := LoadConfig([]byte("chunk_size: ["))
	require.Error(t, err)
}
