package tls

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSetupDisabled(t *testing.T) {
	c, err := Setup(Config{})
	if err != nil || c != nil {
		t.Fatalf("disabled TLS: %v %v", c, err)
	}
}

func TestSetupRequiresCertificates(t *testing.T) {
	if _, err := Setup(Config{Enabled: true}); err == nil {
		t.Fatal("expected error without cert files or dir")
	}
	if _, err := Setup(Config{Enabled: true, Dir: t.TempDir()}); err == nil {
		t.Fatal("expected error without auto_generate")
	}
	if _, err := Setup(Config{Enabled: true, Dir: t.TempDir(), AutoGenerate: true, MinVersion: "1.1"}); err == nil {
		t.Fatal("expected error for unsupported min version")
	}
}

func TestSetupAutoGenerateServesHTTPS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	cfg, err := Setup(Config{Enabled: true, Dir: dir, AutoGenerate: true, MinVersion: "1.3"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS13 {
		t.Fatalf("min version = %x", cfg.MinVersion)
	}
	for _, n := range []string{CertName, KeyName, CACertName} {
		if _, err := os.Stat(filepath.Join(dir, n)); err != nil {
			t.Fatalf("%s not generated: %v", n, err)
		}
	}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", cfg)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Close() }()

	ca, err := os.ReadFile(filepath.Join(dir, CACertName))
	if err != nil {
		t.Fatal(err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		t.Fatal("bad CA pem")
	}
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}}}
	resp, err := client.Get("https://" + ln.Addr().String())
	if err != nil {
		t.Fatalf("https get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestSetupExplicitFilesAndReuse(t *testing.T) {
	dir := t.TempDir()
	if _, err := Setup(Config{Enabled: true, Dir: dir, AutoGenerate: true}); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(filepath.Join(dir, CertName))
	if _, err := Setup(Config{Enabled: true, Dir: dir, AutoGenerate: true}); err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(filepath.Join(dir, CertName))
	if string(before) != string(after) {
		t.Fatal("existing certificate was regenerated")
	}

	cfg, err := Setup(Config{Enabled: true, CertFile: filepath.Join(dir, CertName), KeyFile: filepath.Join(dir, KeyName)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.GetCertificate(&tls.ClientHelloInfo{}); err != nil {
		t.Fatalf("load pair: %v", err)
	}

	bad, err := Setup(Config{Enabled: true, CertFile: filepath.Join(dir, "missing.crt"), KeyFile: filepath.Join(dir, KeyName)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bad.GetCertificate(&tls.ClientHelloInfo{}); err == nil {
		t.Fatal("expected load error for missing cert")
	}
}
