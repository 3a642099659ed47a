package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

// TLSSetup is the certificate source shared by the telnet TLS listener
// and the web server.
type TLSSetup struct {
	Config  *tls.Config
	Manager *autocert.Manager // set when certificates come from Let's Encrypt
	Source  string            // "acme", "files" or "self-signed"
}

// SetupTLS picks a certificate source: Let's Encrypt when web_domain is
// set, else the tls_cert/tls_key pair, else a self-signed certificate
// kept in cert_dir.
func SetupTLS(cfg Config) (*TLSSetup, error) {
	switch {
	case cfg.WebDomain != "":
		return acmeTLS(cfg.WebDomain, cfg.CertDir)
	case cfg.TLSCert != "" && cfg.TLSKey != "":
		log.Printf("tls: loading cert from %s, key from %s", cfg.TLSCert, cfg.TLSKey)
		cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("tls: loading cert: %w", err)
		}
		return &TLSSetup{Config: &tls.Config{Certificates: []tls.Certificate{cert}}, Source: "files"}, nil
	default:
		cert, err := selfSigned(cfg.CertDir, cfg.MudName)
		if err != nil {
			return nil, err
		}
		return &TLSSetup{Config: &tls.Config{Certificates: []tls.Certificate{cert}}, Source: "self-signed"}, nil
	}
}

func acmeTLS(domain, certDir string) (*TLSSetup, error) {
	log.Printf("tls: using Let's Encrypt for domain %q", domain)
	cacheDir := filepath.Join(certDir, "autocert-cache")
	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return nil, fmt.Errorf("tls: creating autocert cache dir: %w", err)
	}
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domain),
		Cache:      autocert.DirCache(cacheDir),
	}
	return &TLSSetup{Config: m.TLSConfig(), Manager: m, Source: "acme"}, nil
}

// selfSigned loads the certificate in certDir, creating it on first use.
func selfSigned(certDir, org string) (tls.Certificate, error) {
	certPath := filepath.Join(certDir, "self-signed.crt")
	keyPath := filepath.Join(certDir, "self-signed.key")

	if cert, err := tls.LoadX509KeyPair(certPath, keyPath); err == nil {
		log.Printf("tls: loaded self-signed cert from %s", certDir)
		return cert, nil
	}

	if err := os.MkdirAll(certDir, 0700); err != nil {
		return tls.Certificate{}, fmt.Errorf("tls: creating cert dir: %w", err)
	}
	certPEM, keyPEM, err := newSelfSignedPEM(org, time.Now())
	if err != nil {
		return tls.Certificate{}, err
	}
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return tls.Certificate{}, fmt.Errorf("tls: writing cert: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return tls.Certificate{}, fmt.Errorf("tls: writing key: %w", err)
	}
	log.Printf("tls: self-signed cert written to %s", certDir)
	return tls.X509KeyPair(certPEM, keyPEM)
}

// newSelfSignedPEM makes a one-year P-256 certificate for localhost.
func newSelfSignedPEM(org string, now time.Time) (certPEM, keyPEM []byte, err error) {
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("tls: generating key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("tls: generating serial: %w", err)
	}
	if org == "" {
		org = "kmud"
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{org},
			CommonName:   "localhost",
		},
		NotBefore:             now,
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &privKey.PublicKey, privKey)
	if err != nil {
		return nil, nil, fmt.Errorf("tls: creating certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(privKey)
	if err != nil {
		return nil, nil, fmt.Errorf("tls: marshaling key: %w", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}
