package h2out

import (
	"github.com/elastic/go-ucfg/yaml"
	"github.com/pkg/errors"
)

// Server token modes for the generated server header.
const (
	TokensOn    = "on"
	TokensOff   = "off"
	TokensBuild = "build"
)

// Config holds the output filter settings.
type Config struct {
	// ServerTokens selects the server header value: the full version
	// string ("on"), the build string ("build") or the bare product
	// token ("off").
	ServerTokens string `config:"server_tokens"`

	// AbsoluteRedirect rewrites Location values starting with "/" into
	// absolute URLs.
	AbsoluteRedirect bool `config:"absolute_redirect"`

	// ServerNameInRedirect uses ServerName as the redirect host instead
	// of the request authority.
	ServerNameInRedirect bool `config:"server_name_in_redirect"`

	// PortInRedirect appends the listening port to redirect URLs when
	// it differs from the scheme default.
	PortInRedirect bool `config:"port_in_redirect"`

	// GzipVary allows a "vary: Accept-Encoding" header on responses
	// that went through content encoding.
	GzipVary bool `config:"gzip_vary"`

	// ChunkSize caps the DATA frame payload produced by the body
	// pipeline. The peer's max frame size still applies on top.
	ChunkSize int `config:"chunk_size"`

	ServerName    string `config:"server_name"`
	ServerVersion string `config:"server_version"`
	ServerBuild   string `config:"server_build"`
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() *Config {
	cfg := &Config{
		AbsoluteRedirect: true,
		PortInRedirect:   true,
	}
	cfg.defaults()
	return cfg
}

func (cfg *Config) defaults() {
	if cfg.ServerTokens == "" {
		cfg.ServerTokens = TokensOn
	}

	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 8 << 10
	}

	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "nginx/1.27.0"
	}

	if cfg.ServerBuild == "" {
		cfg.ServerBuild = cfg.ServerVersion
	}
}

func (cfg *Config) validate() error {
	switch cfg.ServerTokens {
	case TokensOn, TokensOff, TokensBuild:
	default:
		return errors.Errorf("invalid server_tokens %q", cfg.ServerTokens)
	}

	if cfg.ChunkSize <= 0 || cfg.ChunkSize > maxFrameSize {
		return errors.Errorf("invalid chunk_size %d", cfg.ChunkSize)
	}

	return nil
}

// LoadConfig parses a yaml document into a Config, applying defaults
// for anything unset.
func LoadConfig(data []byte) (*Config, error) {
	c, err := yaml.NewConfig(data)
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	cfg := DefaultConfig()

	if err := c.Unpack(cfg); err != nil {
		return nil, errors.Wrap(err, "unpack config")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
