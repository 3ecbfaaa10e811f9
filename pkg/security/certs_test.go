package security

import (
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCA(t *testing.T) *CertAuthority {
	ca := NewCertAuthority()
	require.NoError(t, ca.Initialize())
	return ca
}

func TestSaveLoadCertToFile(t *testing.T) {
	ca := newTestCA(t)
	cert, err := ca.IssueNodeCertificate("test-node", "worker", []string{}, []net.IP{})
	require.NoError(t, err)

	certDir := t.TempDir()
	require.NoError(t, SaveCertToFile(cert, certDir))

	require.FileExists(t, filepath.Join(certDir, "node.crt"))
	require.FileExists(t, filepath.Join(certDir, "node.key"))

	loaded, err := LoadCertFromFile(certDir)
	require.NoError(t, err)
	require.Equal(t, cert.Leaf.Subject.CommonName, loaded.Leaf.Subject.CommonName)
}

func TestSaveLoadCACertToFile(t *testing.T) {
	ca := newTestCA(t)
	certDir := t.TempDir()
	require.NoError(t, SaveCACertToFile(ca.RootCert().Raw, certDir))
	require.FileExists(t, filepath.Join(certDir, "ca.crt"))

	loaded, err := LoadCACertFromFile(certDir)
	require.NoError(t, err)
	require.True(t, loaded.Equal(ca.RootCert()))
}

func TestCertExists(t *testing.T) {
	dir := t.TempDir()
	require.False(t, CertExists(dir))

	for _, name := range []string{"node.crt", "node.key", "ca.crt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600))
	}
	require.True(t, CertExists(dir))

	require.NoError(t, os.Remove(filepath.Join(dir, "node.key")))
	require.False(t, CertExists(dir))
}

func TestCertNeedsRotation(t *testing.T) {
	cases := []struct {
		name     string
		notAfter time.Time
		want     bool
	}{
		{"expiring in 1 day", time.Now().Add(24 * time.Hour), true},
		{"expiring in 29 days", time.Now().Add(29 * 24 * time.Hour), true},
		{"expiring in 31 days", time.Now().Add(31 * 24 * time.Hour), false},
		{"expiring in 60 days", time.Now().Add(60 * 24 * time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, CertNeedsRotation(&x509.Certificate{NotAfter: tc.notAfter}))
		})
	}
	require.True(t, CertNeedsRotation(nil))
}

func TestGetCertExpiry(t *testing.T) {
	want := time.Now().Add(90 * 24 * time.Hour)
	require.True(t, GetCertExpiry(&x509.Certificate{NotAfter: want}).Equal(want))
	require.True(t, GetCertExpiry(nil).IsZero())
}

func TestGetCertTimeRemaining(t *testing.T) {
	want := 45 * 24 * time.Hour
	remaining := GetCertTimeRemaining(&x509.Certificate{NotAfter: time.Now().Add(want)})
	require.InDelta(t, want, remaining, float64(time.Second))
	require.Zero(t, GetCertTimeRemaining(nil))
}

func TestValidateCertChain(t *testing.T) {
	ca := newTestCA(t)
	cert, err := ca.IssueNodeCertificate("test-node", "worker", []string{}, []net.IP{})
	require.NoError(t, err)

	require.NoError(t, ValidateCertChain(cert.Leaf, ca.RootCert()))
	require.Error(t, ValidateCertChain(nil, ca.RootCert()))
	require.Error(t, ValidateCertChain(cert.Leaf, nil))
}

func TestGetCertInfo(t *testing.T) {
	ca := newTestCA(t)
	cert, err := ca.IssueNodeCertificate("test-node", "worker", []string{}, []net.IP{})
	require.NoError(t, err)

	info := GetCertInfo(cert.Leaf)
	require.Equal(t, "worker-test-node", info["subject"])
	require.Equal(t, "fleetwork root CA", info["issuer"])
	require.Equal(t, false, info["is_ca"])

	require.Contains(t, GetCertInfo(nil), "error")
}

func TestGetCertDir(t *testing.T) {
	for _, tt := range []struct{ nodeType, nodeID string }{
		{"master", "node1"},
		{"worker", "node2"},
	} {
		dir, err := GetCertDir(tt.nodeType, tt.nodeID)
		require.NoError(t, err)
		require.Equal(t, tt.nodeType+"-"+tt.nodeID, filepath.Base(dir))
	}
}

func TestGetCLICertDir(t *testing.T) {
	dir, err := GetCLICertDir()
	require.NoError(t, err)
	require.Equal(t, "cli", filepath.Base(dir))
}

func TestRemoveCerts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node.crt"), []byte("cert"), 0600))
	require.NoError(t, RemoveCerts(dir))
	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}
