// Package server exposes health, metrics, the chat webhook and the plan API
// over HTTP.
package server

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"capillaire/internal/diagnosis"
	"capillaire/internal/logging"
	"capillaire/internal/metrics"
	"capillaire/internal/planner"
	"capillaire/internal/session"
	"capillaire/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generator produces plans for the form path.
type Generator interface {
	GeneratePlan(ctx context.Context, d diagnosis.Diagnosis) (*planner.Plan, error)
}

// Tipper answers quick tips.
type Tipper interface {
	FastTip(ctx context.Context, problem string, d *diagnosis.Diagnosis) string
}

// Deps are what the routes need. Webhook, Generator and Tipper are optional.
type Deps struct {
	Plans           store.PlanStore
	Subscriptions   store.SubscriptionStore
	Issuer          *session.Issuer
	Generator       Generator
	Tipper          Tipper
	Webhook         http.Handler
	Gatherer        prometheus.Gatherer
	Collectors      *metrics.Collectors
	DatabasePath    string
	ExportTaskCount int
	Logger          logging.Logger
	Now             func() time.Time
}

// NewRouter builds the gin engine.
func NewRouter(d Deps) *gin.Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{deps: d}

	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware())

	r.GET("/health", h.health)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	if d.Webhook != nil {
		r.POST("/webhook", gin.WrapH(d.Webhook))
	}

	api := r.Group("/api", AuthMiddleware(d.Issuer))
	api.GET("/plan", h.getPlan)
	api.GET("/plan/export", h.exportPlan)
	api.POST("/plan/tasks/:day/toggle", h.toggleTask)
	api.GET("/subscription", h.getSubscription)
	api.POST("/diagnosis", h.postDiagnosis)
	api.POST("/tip", h.postTip)

	return r
}

// NewHTTPServer wraps router with the timeouts used in production.
func NewHTTPServer(addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      90 * time.Second,
	}
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"system": metrics.GetSysHealth(filepath.Dir(h.deps.DatabasePath)),
	})
}
