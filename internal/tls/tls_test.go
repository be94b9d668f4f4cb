package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/loykin/solo/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	cfg, err := Setup(nil)
	if err != nil || cfg != nil {
		t.Fatalf("nil settings: got (%v, %v), want (nil, nil)", cfg, err)
	}
	cfg, err = Setup(&config.TLSConfig{Enabled: false, Dir: t.TempDir()})
	if err != nil || cfg != nil {
		t.Fatalf("disabled settings: got (%v, %v), want (nil, nil)", cfg, err)
	}
}

func TestSetupRequiresSource(t *testing.T) {
	_, err := Setup(&config.TLSConfig{Enabled: true})
	if err == nil {
		t.Fatal("expected error when neither files nor dir are configured")
	}
}

func TestSetupAutoGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	cfg, err := Setup(&config.TLSConfig{Enabled: true, Dir: dir, AutoGenerate: true})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if cfg == nil || cfg.GetCertificate == nil {
		t.Fatal("expected a config with GetCertificate set")
	}

	for _, name := range []string{CertName, KeyName, CACertName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing generated file %s: %v", name, err)
		}
	}
	info, err := os.Stat(filepath.Join(dir, KeyName))
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("key file mode = %o, want 600", perm)
	}

	cert, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}
	if len(leaf.DNSNames) == 0 || leaf.DNSNames[0] != "localhost" {
		t.Errorf("leaf DNS names = %v, want [localhost]", leaf.DNSNames)
	}
	if len(leaf.IPAddresses) != 2 {
		t.Errorf("leaf IP addresses = %v, want loopback v4 and v6", leaf.IPAddresses)
	}
}

func TestSetupExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	if err := generateInto(dir); err != nil {
		t.Fatalf("generateInto: %v", err)
	}
	cfg, err := Setup(&config.TLSConfig{
		Enabled:  true,
		CertFile: filepath.Join(dir, CertName),
		KeyFile:  filepath.Join(dir, KeyName),
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if _, err := cfg.GetCertificate(&tls.ClientHelloInfo{}); err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
}

func TestGetCertificateReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Setup(&config.TLSConfig{Enabled: true, Dir: dir, AutoGenerate: true})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	first, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil {
		t.Fatalf("first GetCertificate: %v", err)
	}

	// Rotate the files on disk; the next handshake must pick them up.
	if err := generateInto(dir); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	second, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil {
		t.Fatalf("second GetCertificate: %v", err)
	}

	a, _ := x509.ParseCertificate(first.Certificate[0])
	b, _ := x509.ParseCertificate(second.Certificate[0])
	if a.SerialNumber.Cmp(b.SerialNumber) == 0 {
		t.Error("expected a new serial number after rotating the certificate")
	}
}

func TestParseVersion(t *testing.T) {
	cases := []struct {
		in   string
		want uint16
		ok   bool
	}{
		{"1.2", tls.VersionTLS12, true},
		{"tls1.2", tls.VersionTLS12, true},
		{"TLS1.3", tls.VersionTLS13, true},
		{"1.3", tls.VersionTLS13, true},
		{"", 0, false},
		{"ssl3", 0, false},
	}
	for _, c := range cases {
		got, ok := parseVersion(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("parseVersion(%q) = (%d, %v), want (%d, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestResolveVersionsDefaultsToTLS13(t *testing.T) {
	minVer, maxVer := resolveVersions(&config.TLSConfig{})
	if minVer != tls.VersionTLS13 || maxVer != tls.VersionTLS13 {
		t.Fatalf("defaults = (%d, %d), want TLS 1.3 for both", minVer, maxVer)
	}
	minVer, maxVer = resolveVersions(&config.TLSConfig{MinVersion: "1.2"})
	if minVer != tls.VersionTLS12 || maxVer != tls.VersionTLS13 {
		t.Fatalf("min 1.2 = (%d, %d), want (TLS 1.2, TLS 1.3)", minVer, maxVer)
	}
}

func TestReadWithinRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "outside.pem")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readWithin(dir, outside); err == nil {
		t.Error("expected an error for a path outside the base directory")
	}
	if _, err := readWithin(dir, filepath.Join(dir, "..", "escape.pem")); err == nil {
		t.Error("expected an error for a .. traversal")
	}
}

func TestGenerateSelfSignedPEMShape(t *testing.T) {
	dir := t.TempDir()
	if err := generateInto(dir); err != nil {
		t.Fatalf("generateInto: %v", err)
	}
	certPEM, err := os.ReadFile(filepath.Join(dir, CertName))
	if err != nil {
		t.Fatal(err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatalf("cert file is not a CERTIFICATE PEM block")
	}
	keyPEM, err := os.ReadFile(filepath.Join(dir, KeyName))
	if err != nil {
		t.Fatal(err)
	}
	block, _ = pem.Decode(keyPEM)
	if block == nil || block.Type != "PRIVATE KEY" {
		t.Fatalf("key file is not a PRIVATE KEY PEM block")
	}
	caPEM, err := os.ReadFile(filepath.Join(dir, CACertName))
	if err != nil {
		t.Fatal(err)
	}
	if string(caPEM) != string(certPEM) {
		t.Error("CA copy should match the self-signed certificate")
	}
}
