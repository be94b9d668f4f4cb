// Package tls builds the server-side TLS configuration for the control API,
// including on-demand self-signed certificates for local setups.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/solo/internal/config"
)

// File names used for directory-based certificates.
const (
	CACertName = "tls_ca.crt"
	CertName   = "tls.crt"
	KeyName    = "tls.key"
)

// Setup builds a *tls.Config from the server TLS settings. A nil or disabled
// config yields (nil, nil), which keeps the server on plain HTTP.
func Setup(tc *config.TLSConfig) (*tls.Config, error) {
	if tc == nil || !tc.Enabled {
		return nil, nil
	}

	minVer, maxVer := resolveVersions(tc)

	if tc.CertFile != "" && tc.KeyFile != "" {
		return newConfig(tc.CertFile, tc.KeyFile, minVer, maxVer), nil
	}

	if tc.Dir != "" {
		certPath := filepath.Join(tc.Dir, CertName)
		keyPath := filepath.Join(tc.Dir, KeyName)
		if tc.AutoGenerate && !exists(certPath, keyPath) {
			if err := generateInto(tc.Dir); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
		return newConfig(certPath, keyPath, minVer, maxVer), nil
	}

	return nil, errors.New("tls enabled but neither cert_file/key_file nor dir configured")
}

// parseVersion maps a config string to a TLS version constant. The bool is
// false for empty or unknown strings, leaving the default in place.
func parseVersion(ver string) (uint16, bool) {
	switch strings.ToLower(ver) {
	case "1.2", "tls1.2":
		return tls.VersionTLS12, true
	case "1.3", "tls1.3":
		return tls.VersionTLS13, true
	default:
		return 0, false
	}
}

func resolveVersions(tc *config.TLSConfig) (uint16, uint16) {
	minVer, maxVer := uint16(tls.VersionTLS13), uint16(tls.VersionTLS13)
	if v, ok := parseVersion(tc.MinVersion); ok {
		minVer = v
	}
	if v, ok := parseVersion(tc.MaxVersion); ok {
		maxVer = v
	}
	return minVer, maxVer
}

// newConfig defers certificate loading to the handshake, so a rotated
// certificate on disk takes effect without a restart.
func newConfig(certPath, keyPath string, minVer, maxVer uint16) *tls.Config {
	baseDir := filepath.Dir(certPath)
	// #nosec G402 -- min version is 1.2 at the lowest, set from config
	return &tls.Config{
		MinVersion: minVer,
		MaxVersion: maxVer,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			certPEM, err := readWithin(baseDir, certPath)
			if err != nil {
				return nil, err
			}
			keyPEM, err := readWithin(baseDir, keyPath)
			if err != nil {
				return nil, err
			}
			cert, err := tls.X509KeyPair(certPEM, keyPEM)
			if err != nil {
				return nil, err
			}
			return &cert, nil
		},
	}
}

// readWithin reads a file, refusing paths that escape baseDir.
func readWithin(baseDir, p string) ([]byte, error) {
	clean := filepath.Clean(p)
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	absFile, err := filepath.Abs(clean)
	if err != nil {
		return nil, err
	}
	if absFile != absBase && !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) {
		return nil, errors.New("certificate path escapes its directory")
	}
	return os.ReadFile(clean)
}

func exists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// generateInto writes a fresh self-signed localhost certificate set into dir.
func generateInto(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	return GenerateSelfSigned(CertSpec{
		CommonName:   "localhost",
		Organization: "solo",
		DNSNames:     []string{"localhost"},
		IPAddresses:  []string{"127.0.0.1", "::1"},
		NotAfter:     time.Now().AddDate(1, 0, 0),
		CertPath:     filepath.Join(dir, CertName),
		KeyPath:      filepath.Join(dir, KeyName),
		CACertPath:   filepath.Join(dir, CACertName),
	})
}
