package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nidzo732/fleetwork/pkg/security"
	"github.com/nidzo732/fleetwork/pkg/types"
	"github.com/nidzo732/fleetwork/pkg/wire"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadMasterParsesWorkersAndSecurity(t *testing.T) {
	path := writeFile(t, `
listenAddr: ":32151"
workers:
  - id: 0
    addr: "10.0.0.1:32151"
  - id: 1
    addr: "10.0.0.2:32151"
security:
  variant: "HMAC"
  sendKey: "send-secret"
  recvKey: "recv-secret"
timeoutSeconds: 10
queueCapacity: 64
`)

	cfg, err := LoadMaster(path)
	require.NoError(t, err)
	require.Equal(t, ":32151", cfg.ListenAddr)
	require.Len(t, cfg.Workers, 2)
	require.Equal(t, WorkerEntry{ID: 1, Addr: "10.0.0.2:32151"}, cfg.Workers[1])

	specs := cfg.WorkerSpecs()
	require.Equal(t, []WorkerSpecEntry{
		{ID: types.WorkerID(0), Addr: "10.0.0.1:32151"},
		{ID: types.WorkerID(1), Addr: "10.0.0.2:32151"},
	}, specs)

	wireCfg, err := cfg.Security.WireConfig(cfg.TimeoutSeconds)
	require.NoError(t, err)
	require.Equal(t, wire.VariantHMAC, wireCfg.Variant)
	require.Equal(t, []byte("send-secret"), wireCfg.SendKey)
	require.Equal(t, []byte("recv-secret"), wireCfg.RecvKey)
}

func TestLoadMasterDefaultsListenAddr(t *testing.T) {
	path := writeFile(t, `
workers: []
security:
  variant: "TCP"
`)

	cfg, err := LoadMaster(path)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.ListenAddr)
}

func TestLoadWorkerParsesMasterAddr(t *testing.T) {
	path := writeFile(t, `
listenAddr: "0.0.0.0:40000"
masterAddr: "10.0.0.1:32151"
security:
  variant: "TCP"
`)

	cfg, err := LoadWorker(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:40000", cfg.ListenAddr)
	require.Equal(t, "10.0.0.1:32151", cfg.MasterAddr)
}

func TestSecurityConfigWireConfigBuildsTLS(t *testing.T) {
	sec := SecurityConfig{
		Variant:    "TLS",
		CertFile:   "cert.pem",
		KeyFile:    "key.pem",
		CAPath:     "ca.pem",
		ServerName: "fleetwork-master",
	}
	wireCfg, err := sec.WireConfig(0)
	require.NoError(t, err)
	require.Equal(t, wire.VariantTLS, wireCfg.Variant)
	require.NotNil(t, wireCfg.TLS)
	require.Equal(t, "fleetwork-master", wireCfg.TLS.ServerName)
}

func TestLoadMasterMissingFileFails(t *testing.T) {
	_, err := LoadMaster(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSecurityConfigWireConfigDecryptsEncryptedKey(t *testing.T) {
	sm, err := security.NewSecretsManagerFromPassword("correct-horse-battery-staple")
	require.NoError(t, err)
	ciphertext, err := sm.Encrypt([]byte("send-secret"))
	require.NoError(t, err)

	sec := SecurityConfig{
		Variant:            "HMAC",
		SendKeyEncrypted:   base64.StdEncoding.EncodeToString(ciphertext),
		KeystorePassphrase: "correct-horse-battery-staple",
	}
	wireCfg, err := sec.WireConfig(0)
	require.NoError(t, err)
	require.Equal(t, []byte("send-secret"), wireCfg.SendKey)
}

func TestSecurityConfigWireConfigEncryptedKeyWithoutPassphraseFails(t *testing.T) {
	sec := SecurityConfig{
		Variant:          "HMAC",
		SendKeyEncrypted: base64.StdEncoding.EncodeToString([]byte("not-real-ciphertext")),
	}
	_, err := sec.WireConfig(0)
	require.Error(t, err)
}

func TestSecurityConfigWireConfigPlainKeyWinsOverEncrypted(t *testing.T) {
	sm, err := security.NewSecretsManagerFromPassword("p")
	require.NoError(t, err)
	ciphertext, err := sm.Encrypt([]byte("encrypted-value"))
	require.NoError(t, err)

	sec := SecurityConfig{
		Variant:            "HMAC",
		SendKey:            "plain-value",
		SendKeyEncrypted:   base64.StdEncoding.EncodeToString(ciphertext),
		KeystorePassphrase: "p",
	}
	wireCfg, err := sec.WireConfig(0)
	require.NoError(t, err)
	require.Equal(t, []byte("plain-value"), wireCfg.SendKey)
}
