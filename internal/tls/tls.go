// Package tls builds the daemon's server-side TLS configuration.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File names used when certificates live in Config.Dir.
const (
	CACertName = "tls_ca.crt"
	CertName   = "tls.crt"
	KeyName    = "tls.key"
)

// Config mirrors the [server.tls] table.
type Config struct {
	Enabled      bool     `mapstructure:"enabled"`
	CertFile     string   `mapstructure:"cert_file"`
	KeyFile      string   `mapstructure:"key_file"`
	Dir          string   `mapstructure:"dir"`
	AutoGenerate bool     `mapstructure:"auto_generate"`
	MinVersion   string   `mapstructure:"min_version"`
	DNSNames     []string `mapstructure:"dns_names"`
	ValidDays    int      `mapstructure:"valid_days"`
}

func parseVersion(ver string) (uint16, bool) {
	switch strings.ToLower(ver) {
	case "1.2", "tls1.2":
		return tls.VersionTLS12, true
	case "1.3", "tls1.3":
		return tls.VersionTLS13, true
	}
	return 0, false
}

// Setup returns the server TLS config, or nil when TLS is disabled.
// Explicit cert/key files win over Dir; with AutoGenerate a missing pair in Dir
// is created as a self-signed certificate.
func Setup(c Config) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	minVer := uint16(tls.VersionTLS12)
	if c.MinVersion != "" {
		v, ok := parseVersion(c.MinVersion)
		if !ok {
			return nil, fmt.Errorf("unsupported tls min_version %q", c.MinVersion)
		}
		minVer = v
	}

	if c.CertFile != "" && c.KeyFile != "" {
		return build(c.CertFile, c.KeyFile, minVer), nil
	}
	if c.Dir == "" {
		return nil, errors.New("TLS enabled but no valid certificate configuration found")
	}
	certPath := filepath.Join(c.Dir, CertName)
	keyPath := filepath.Join(c.Dir, KeyName)
	if !exists(certPath) || !exists(keyPath) {
		if !c.AutoGenerate {
			return nil, fmt.Errorf("no certificate in %s and auto_generate is off", c.Dir)
		}
		if err := os.MkdirAll(c.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create certificate directory: %w", err)
		}
		days := c.ValidDays
		if days <= 0 {
			days = 365 * 5
		}
		dns := c.DNSNames
		if len(dns) == 0 {
			dns = []string{"localhost"}
		}
		err := GenerateSelfSignedCert(CertConfig{
			CommonName:   "localhost",
			Organization: "toystudio",
			DNSNames:     dns,
			IPAddresses:  []string{"127.0.0.1", "::1"},
			NotAfter:     time.Now().AddDate(0, 0, days),
			CertPath:     certPath,
			KeyPath:      keyPath,
			CACertPath:   filepath.Join(c.Dir, CACertName),
		})
		if err != nil {
			return nil, fmt.Errorf("certificate generation failed: %w", err)
		}
	}
	return build(certPath, keyPath, minVer), nil
}

// build reloads the pair on every handshake so rotated files are picked up.
func build(certPath, keyPath string, minVer uint16) *tls.Config {
	return &tls.Config{
		MinVersion: minVer,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			cert, err := tls.LoadX509KeyPair(filepath.Clean(certPath), filepath.Clean(keyPath))
			if err != nil {
				return nil, err
			}
			return &cert, nil
		},
	}
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
