package config

// Config represents the main configuration for a triggermux bridge node.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Mux     MuxConfig     `yaml:"mux"`
	Gateway GatewayConfig `yaml:"gateway"`
	Logging LoggingConfig `yaml:"logging"`
}

// NodeConfig contains libp2p host configuration.
type NodeConfig struct {
	ListenAddresses []string `yaml:"listen_addresses"` // LibP2P listen multiaddrs
	BootstrapPeers  []string `yaml:"bootstrap_peers"`  // Peer multiaddrs to connect to at startup
}

// MuxConfig contains subscription multiplexer configuration.
type MuxConfig struct {
	// Namespace is prepended to every topic as "<namespace>.<trigger>".
	// Empty means triggers map to topics unchanged.
	Namespace string `yaml:"namespace"`

	// PayloadEncoding selects the wire codec: "json" (default) or "base64".
	PayloadEncoding string `yaml:"payload_encoding"`
}

// GatewayConfig contains the HTTP/WS bridge configuration.
type GatewayConfig struct {
	ListenAddr string `yaml:"listen_addr"` // e.g. ":8080"
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	EnableColors bool `yaml:"enable_colors"`
}

// Default returns a config with working defaults for local development.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ListenAddresses: []string{"/ip4/127.0.0.1/tcp/0"},
		},
		Mux: MuxConfig{
			PayloadEncoding: "json",
		},
		Gateway: GatewayConfig{
			ListenAddr: ":8080",
		},
		Logging: LoggingConfig{
			EnableColors: true,
		},
	}
}
