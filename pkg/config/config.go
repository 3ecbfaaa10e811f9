package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nidzo732/fleetwork/pkg/lifecycle"
	"github.com/nidzo732/fleetwork/pkg/log"
	"github.com/nidzo732/fleetwork/pkg/security"
	"github.com/nidzo732/fleetwork/pkg/types"
	"github.com/nidzo732/fleetwork/pkg/wire"
)

// SecurityConfig selects spec §4.1's transport variant and supplies
// whatever key or certificate material it needs.
type SecurityConfig struct {
	Variant string `yaml:"variant"`

	// SendKey/RecvKey authenticate or encrypt outbound/inbound traffic for
	// the HMAC, AES, and AES+HMAC variants (spec §6: "keys for inbound and
	// for messages sent back to the master"), given here in the clear.
	SendKey string `yaml:"sendKey,omitempty"`
	RecvKey string `yaml:"recvKey,omitempty"`

	// SendKeyEncrypted/RecvKeyEncrypted are base64-encoded ciphertext
	// produced by security.SecretsManager.Encrypt, for an operator who
	// would rather not commit SendKey/RecvKey to a config file in the
	// clear. KeystorePassphrase unlocks them. When both the plain and
	// encrypted form of a key are set, the plain form wins.
	SendKeyEncrypted   string `yaml:"sendKeyEncrypted,omitempty"`
	RecvKeyEncrypted   string `yaml:"recvKeyEncrypted,omitempty"`
	KeystorePassphrase string `yaml:"keystorePassphrase,omitempty"`

	CertFile      string `yaml:"certFile,omitempty"`
	KeyFile       string `yaml:"keyFile,omitempty"`
	KeyPassphrase string `yaml:"keyPassphrase,omitempty"`
	CAPath        string `yaml:"caPath,omitempty"`
	ServerName    string `yaml:"serverName,omitempty"`
}

// WireConfig resolves s into the wire.Config every socket the process opens
// will use for the lifetime of the run (spec §4.1: "a process-wide setting
// chosen at startup"), decrypting SendKeyEncrypted/RecvKeyEncrypted with
// KeystorePassphrase if present.
func (s SecurityConfig) WireConfig(timeoutSeconds int) (*wire.Config, error) {
	sendKey, err := s.resolveKey(s.SendKey, s.SendKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("config: sendKey: %w", err)
	}
	recvKey, err := s.resolveKey(s.RecvKey, s.RecvKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("config: recvKey: %w", err)
	}

	cfg := &wire.Config{
		Variant: wire.Variant(s.Variant),
		SendKey: sendKey,
		RecvKey: recvKey,
	}
	if timeoutSeconds > 0 {
		cfg.Timeout = time.Duration(timeoutSeconds) * time.Second
	}
	if s.CertFile != "" || s.KeyFile != "" || s.CAPath != "" {
		cfg.TLS = &wire.TLSConfig{
			CertFile:      s.CertFile,
			KeyFile:       s.KeyFile,
			KeyPassphrase: s.KeyPassphrase,
			CAPath:        s.CAPath,
			ServerName:    s.ServerName,
		}
	}
	return cfg, nil
}

// resolveKey prefers a plaintext key; absent that, it decrypts encoded
// ciphertext with KeystorePassphrase.
func (s SecurityConfig) resolveKey(plain, encoded string) ([]byte, error) {
	if plain != "" {
		return []byte(plain), nil
	}
	if encoded == "" {
		return nil, nil
	}
	if s.KeystorePassphrase == "" {
		return nil, fmt.Errorf("encrypted key set without keystorePassphrase")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	sm, err := security.NewSecretsManagerFromPassword(s.KeystorePassphrase)
	if err != nil {
		return nil, err
	}
	return sm.Decrypt(ciphertext)
}

// LoggingConfig configures pkg/log.
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`
	JSONOutput bool   `yaml:"jsonOutput,omitempty"`
}

func (l LoggingConfig) logConfig() log.Config {
	level := log.InfoLevel
	if l.Level != "" {
		level = log.Level(l.Level)
	}
	return log.Config{Level: level, JSONOutput: l.JSONOutput}
}

// WorkerEntry is one statically configured worker in a master's config.
type WorkerEntry struct {
	ID   int    `yaml:"id"`
	Addr string `yaml:"addr"`
}

// MasterConfig is the YAML document a master process loads at startup.
type MasterConfig struct {
	ListenAddr     string          `yaml:"listenAddr"`
	Workers        []WorkerEntry   `yaml:"workers"`
	Security       SecurityConfig  `yaml:"security"`
	Logging        LoggingConfig   `yaml:"logging,omitempty"`
	TimeoutSeconds int             `yaml:"timeoutSeconds,omitempty"`
	QueueCapacity  int             `yaml:"queueCapacity,omitempty"`
	Salvage        bool            `yaml:"salvage,omitempty"`
	Discovery      DiscoveryConfig `yaml:"discovery,omitempty"`
}

// DiscoveryConfig configures the best-effort UDP multicast worker
// auto-discovery supplement (pkg/discovery), off by default — spec §1
// treats worker configuration as static, so this only ever supplements,
// never replaces, the Workers list above.
type DiscoveryConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	GroupAddr string `yaml:"groupAddr,omitempty"`
	Interval  int    `yaml:"intervalSeconds,omitempty"`
}

// IntervalDuration returns the configured announce interval, or zero if
// unset so that pkg/discovery falls back to its own default.
func (d DiscoveryConfig) IntervalDuration() time.Duration {
	if d.Interval <= 0 {
		return 0
	}
	return time.Duration(d.Interval) * time.Second
}

// WorkerConfig is the YAML document a worker process loads at startup.
type WorkerConfig struct {
	ListenAddr     string          `yaml:"listenAddr"`
	MasterAddr     string          `yaml:"masterAddr"`
	Security       SecurityConfig  `yaml:"security"`
	Logging        LoggingConfig   `yaml:"logging,omitempty"`
	TimeoutSeconds int             `yaml:"timeoutSeconds,omitempty"`
	QueueCapacity  int             `yaml:"queueCapacity,omitempty"`
	Discovery      DiscoveryConfig `yaml:"discovery,omitempty"`
}

// LoadMaster reads and parses a master config file at path.
func LoadMaster(path string) (*MasterConfig, error) {
	var cfg MasterConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = fmt.Sprintf(":%d", wire.DefaultPort)
	}
	return &cfg, nil
}

// LoadWorker reads and parses a worker config file at path.
func LoadWorker(path string) (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// WorkerIDs and addresses, converted for pkg/workgroup.Config.
func (c *MasterConfig) WorkerSpecs() []WorkerSpecEntry {
	out := make([]WorkerSpecEntry, len(c.Workers))
	for i, w := range c.Workers {
		out[i] = WorkerSpecEntry{ID: types.WorkerID(w.ID), Addr: w.Addr}
	}
	return out
}

// WorkerSpecEntry mirrors pkg/workgroup.WorkerSpec without importing that
// package here, keeping pkg/config free of a dependency on the master's
// runtime package (cmd/master performs the final conversion).
type WorkerSpecEntry struct {
	ID   types.WorkerID
	Addr string
}

// SalvagePolicy resolves the Salvage flag into a concrete policy value for
// pkg/lifecycle. Only NoSalvage is supported today (spec §4.8 area, "no
// salvage policy is the default").
func (c *MasterConfig) SalvagePolicy() lifecycle.SalvagePolicy {
	return lifecycle.NoSalvage{}
}

// LogConfig resolves the Logging section into pkg/log.Config.
func (c *MasterConfig) LogConfig() log.Config { return c.Logging.logConfig() }

// LogConfig resolves the Logging section into pkg/log.Config.
func (c *WorkerConfig) LogConfig() log.Config { return c.Logging.logConfig() }
