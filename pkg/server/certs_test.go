package server

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTLSSelfSigned(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CertDir = filepath.Join(t.TempDir(), "certs")

	first, err := SetupTLS(cfg)
	require.NoError(t, err)
	assert.Equal(t, "self-signed", first.Source)
	assert.Nil(t, first.Manager)
	require.Len(t, first.Config.Certificates, 1)

	info, err := os.Stat(filepath.Join(cfg.CertDir, "self-signed.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second, err := SetupTLS(cfg)
	require.NoError(t, err)
	assert.Equal(t, first.Config.Certificates[0].Certificate[0], second.Config.Certificates[0].Certificate[0],
		"the stored certificate is reused")
}

func TestSetupTLSFiles(t *testing.T) {
	dir := t.TempDir()
	certPEM, keyPEM, err := newSelfSignedPEM("test", time.Now())
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.TLSCert = filepath.Join(dir, "a.crt")
	cfg.TLSKey = filepath.Join(dir, "a.key")
	require.NoError(t, os.WriteFile(cfg.TLSCert, certPEM, 0644))
	require.NoError(t, os.WriteFile(cfg.TLSKey, keyPEM, 0600))

	setup, err := SetupTLS(cfg)
	require.NoError(t, err)
	assert.Equal(t, "files", setup.Source)

	cfg.TLSKey = filepath.Join(dir, "missing.key")
	_, err = SetupTLS(cfg)
	assert.Error(t, err)
}

func TestSetupTLSAutocert(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CertDir = t.TempDir()
	cfg.WebDomain = "mud.example.org"

	setup, err := SetupTLS(cfg)
	require.NoError(t, err)
	assert.Equal(t, "acme", setup.Source)
	require.NotNil(t, setup.Manager)
	assert.DirExists(t, filepath.Join(cfg.CertDir, "autocert-cache"))
}

func TestSelfSignedCertificateFields(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	certPEM, _, err := newSelfSignedPEM("", now)
	require.NoError(t, err)

	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, []string{"kmud"}, cert.Subject.Organization)
	assert.Equal(t, now.Add(365*24*time.Hour), cert.NotAfter.UTC())
	assert.Contains(t, cert.DNSNames, "localhost")
}
