package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/toystudio/internal/errs"
	"github.com/loykin/toystudio/internal/explorer"
	"github.com/loykin/toystudio/internal/history"
	"github.com/loykin/toystudio/internal/lifecycle"
	"github.com/loykin/toystudio/internal/manifest"
	"github.com/loykin/toystudio/internal/metrics"
	"github.com/loykin/toystudio/internal/paths"
	"github.com/loykin/toystudio/internal/pyenv"
)

// Service is the lifecycle surface the router exposes.
type Service interface {
	ListAll(ctx context.Context) ([]*manifest.Product, error)
	ListInstalled(ctx context.Context) ([]*manifest.Product, error)
	Status(ctx context.Context, id string) (*lifecycle.Status, error)
	Install(ctx context.Context, id string) error
	Reinstall(ctx context.Context, id string) error
	Uninstall(ctx context.Context, id string) error
	Upgrade(ctx context.Context, id string) error
	Startup(ctx context.Context, id string) error
	Shutdown(ctx context.Context, id string) error
	Seed(srcDir string) ([]string, error)
	Layout() paths.Layout
}

// UV answers the environment-manager queries.
type UV interface {
	CacheDir() (string, error)
	Pythons() ([]pyenv.Python, error)
}

// Router provides embeddable HTTP handlers for the product lifecycle.
// Endpoints (relative to basePath):
//
//	GET  /products[?installed=true]
//	GET  /products/:id
//	POST /products/:id/{install,reinstall,uninstall,upgrade,startup,shutdown}
//	POST /seed          body: {"dir": "/abs/path"}
//	POST /open?target=products|apps|backup|output|root|<id>
//	GET  /uv/cache-dir, /uv/pythons
//	GET  /history?product=&limit=
//	GET  /metrics
type Router struct {
	svc      Service
	basePath string
	uv       UV
	history  history.Querier
	open     func(path string) error
	metrics  bool
	logger   *slog.Logger
}

type Option func(*Router)

func WithUV(uv UV) Option { return func(r *Router) { r.uv = uv } }

// WithHistory enables GET /history.
func WithHistory(q history.Querier) Option { return func(r *Router) { r.history = q } }

// WithOpener replaces the file-manager integration.
func WithOpener(open func(path string) error) Option { return func(r *Router) { r.open = open } }

// WithMetrics mounts the prometheus handler under /metrics.
func WithMetrics() Option { return func(r *Router) { r.metrics = true } }

func WithLogger(l *slog.Logger) Option { return func(r *Router) { r.logger = l } }

// NewRouter constructs a Router. Example basePath "/api" yields /api/products etc.
func NewRouter(svc Service, basePath string, opts ...Option) *Router {
	r := &Router{svc: svc, basePath: sanitizeBase(basePath), open: explorer.Open}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/products", r.handleList)
	group.GET("/products/:id", r.handleStatus)
	group.POST("/products/:id/install", r.lifecycle(r.svc.Install))
	group.POST("/products/:id/reinstall", r.lifecycle(r.svc.Reinstall))
	group.POST("/products/:id/uninstall", r.lifecycle(r.svc.Uninstall))
	group.POST("/products/:id/upgrade", r.lifecycle(r.svc.Upgrade))
	group.POST("/products/:id/startup", r.lifecycle(r.svc.Startup))
	group.POST("/products/:id/shutdown", r.lifecycle(r.svc.Shutdown))
	group.POST("/seed", r.handleSeed)
	group.POST("/open", r.handleOpen)
	if r.uv != nil {
		group.GET("/uv/cache-dir", r.handleUVCacheDir)
		group.GET("/uv/pythons", r.handleUVPythons)
	}
	if r.history != nil {
		group.GET("/history", r.handleHistory)
	}
	if r.metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer wraps the router in an http.Server. The caller runs ListenAndServe.
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no write timeout: install and upgrade block on git and uv
		IdleTimeout: 60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type valueResp struct {
	Value string `json:"value"`
}

type seedReq struct {
	Dir string `json:"dir"`
}

type seedResp struct {
	Added []string `json:"added"`
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.KindSchema, errs.KindUnsupportedPlatform:
		return http.StatusUnprocessableEntity
	case errs.KindConflict, errs.KindState:
		return http.StatusConflict
	case errs.KindIO:
		if errors.Is(err, os.ErrNotExist) {
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}

func (r *Router) manifestExt() string {
	if ext := r.svc.Layout().Ext; ext != "" {
		return ext
	}
	return paths.DefaultManifestExt
}

func (r *Router) fail(c *gin.Context, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		r.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	writeJSON(c, code, errorResp{Error: err.Error()})
}

// productID validates the :id path parameter.
func (r *Router) productID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !validProductID(id, r.manifestExt()) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid product id: want <name>" + r.manifestExt() + " with [A-Za-z0-9._-] and no '..'"})
		return "", false
	}
	return id, true
}

func (r *Router) handleList(c *gin.Context) {
	list := r.svc.ListAll
	if installed, _ := strconv.ParseBool(c.Query("installed")); installed {
		list = r.svc.ListInstalled
	}
	products, err := list(c.Request.Context())
	if err != nil {
		r.fail(c, err)
		return
	}
	if products == nil {
		products = []*manifest.Product{}
	}
	writeJSON(c, http.StatusOK, products)
}

func (r *Router) handleStatus(c *gin.Context) {
	id, ok := r.productID(c)
	if !ok {
		return
	}
	st, err := r.svc.Status(c.Request.Context(), id)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) lifecycle(op func(context.Context, string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := r.productID(c)
		if !ok {
			return
		}
		if err := op(c.Request.Context(), id); err != nil {
			r.fail(c, err)
			return
		}
		writeJSON(c, http.StatusOK, okResp{OK: true})
	}
}

func (r *Router) handleSeed(c *gin.Context) {
	var req seedReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Dir == "" || !isCleanAbsPath(req.Dir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid dir: must be absolute path without traversal"})
		return
	}
	added, err := r.svc.Seed(req.Dir)
	if err != nil {
		r.fail(c, err)
		return
	}
	if added == nil {
		added = []string{}
	}
	writeJSON(c, http.StatusOK, seedResp{Added: added})
}

func (r *Router) handleOpen(c *gin.Context) {
	dir, err := explorer.Resolve(r.svc.Layout(), c.Query("target"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	if err := r.open(dir); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleUVCacheDir(c *gin.Context) {
	dir, err := r.uv.CacheDir()
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, valueResp{Value: dir})
}

func (r *Router) handleUVPythons(c *gin.Context) {
	pys, err := r.uv.Pythons()
	if err != nil {
		r.fail(c, err)
		return
	}
	if pys == nil {
		pys = []pyenv.Python{}
	}
	writeJSON(c, http.StatusOK, pys)
}

func (r *Router) handleHistory(c *gin.Context) {
	f := history.Filter{Product: c.Query("product")}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid limit"})
			return
		}
		f.Limit = n
	}
	if f.Product != "" && !validProductID(f.Product, r.manifestExt()) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid product"})
		return
	}
	events, err := r.history.Query(c.Request.Context(), f)
	if err != nil {
		r.fail(c, err)
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(c, http.StatusOK, events)
}
