package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":       "",
		"/":      "",
		"api":    "/api",
		"/api/":  "/api",
		" /v1/ ": "/v1",
		"a/b//":  "/a/b",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidProductID(t *testing.T) {
	for _, id := range []string{"comfyui.toml", "stable-diffusion_webui.toml", "v1.2.toml"} {
		if !validProductID(id, ".toml") {
			t.Fatalf("expected %q to be accepted", id)
		}
	}
	for _, id := range []string{"", ".toml", "comfyui", "comfyui.json", "..toml", "a..b.toml", "x/y.toml", `x\y.toml`, "a b.toml", "ui한.toml"} {
		if validProductID(id, ".toml") {
			t.Fatalf("expected %q to be rejected", id)
		}
	}
	if !validProductID("demo.json", ".json") {
		t.Fatal("custom extension should be honored")
	}
	if validProductID("demo.toml", "") {
		t.Fatal("empty extension accepts nothing")
	}
}

func TestIsCleanAbsPath(t *testing.T) {
	if !isCleanAbsPath("") {
		t.Fatal("empty dir should be accepted")
	}
	dir := seedSourceDir()
	if !isCleanAbsPath(dir) || !isCleanAbsPath(dir+string(filepath.Separator)) {
		t.Fatalf("clean absolute dir rejected: %s", dir)
	}
	if isCleanAbsPath(filepath.Join("seed", "products")) {
		t.Fatal("relative dir should be rejected")
	}
	sep := string(filepath.Separator)
	if bad := dir + sep + ".." + sep + "etc"; isCleanAbsPath(bad) {
		t.Fatalf("traversal accepted: %s", bad)
	}
}

func TestWriteJSONSetsContentType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/status", func(c *gin.Context) { writeJSON(c, http.StatusAccepted, okResp{OK: true}) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q", ct)
	}
	if body := rec.Body.String(); body != "{\"ok\":true}\n" {
		t.Fatalf("body = %q", body)
	}
}
