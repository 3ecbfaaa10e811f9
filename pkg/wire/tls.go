package wire

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// buildTLSConfig loads certFile/keyFile plus the CA at caPath and returns a
// *tls.Config requiring mutual authentication: the local side presents its
// certificate and demands + verifies the peer's, per spec §4.1 "TLS".
func buildTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	cert, err := loadKeyPair(cfg.CertFile, cfg.KeyFile, cfg.KeyPassphrase)
	if err != nil {
		return nil, err
	}
	pool, err := loadCAPool(cfg.CAPath)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ServerName:   cfg.ServerName,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func loadKeyPair(certFile, keyFile, passphrase string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("wire: tls: read cert: %w", err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("wire: tls: read key: %w", err)
	}
	if passphrase != "" {
		keyPEM, err = decryptPEM(keyPEM, passphrase)
		if err != nil {
			return tls.Certificate{}, err
		}
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("wire: tls: x509 key pair: %w", err)
	}
	return cert, nil
}

//lint:ignore SA1019 encrypted PEM private keys are a legacy but still
// supported deployment path for the TLS variant's optional passphrase.
func decryptPEM(keyPEM []byte, passphrase string) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("wire: tls: no PEM block in key file")
	}
	if !x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck
		return keyPEM, nil
	}
	der, err := x509.DecryptPEMBlock(block, []byte(passphrase)) //nolint:staticcheck
	if err != nil {
		return nil, fmt.Errorf("wire: tls: decrypt private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
}

// loadCAPool reads either a single PEM file or every PEM file in a
// directory into one certificate pool, matching spec §4.1's "a configured
// CA file or directory".
func loadCAPool(caPath string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()

	info, err := os.Stat(caPath)
	if err != nil {
		return nil, fmt.Errorf("wire: tls: stat ca path: %w", err)
	}
	if !info.IsDir() {
		if err := appendCAFile(pool, caPath); err != nil {
			return nil, err
		}
		return pool, nil
	}

	entries, err := os.ReadDir(caPath)
	if err != nil {
		return nil, fmt.Errorf("wire: tls: read ca dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := appendCAFile(pool, filepath.Join(caPath, e.Name())); err != nil {
			return nil, err
		}
	}
	return pool, nil
}

func appendCAFile(pool *x509.CertPool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("wire: tls: read ca file %s: %w", path, err)
	}
	if !pool.AppendCertsFromPEM(data) {
		return fmt.Errorf("wire: tls: no certificates found in %s", path)
	}
	return nil
}
