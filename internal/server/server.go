// Package server exposes the tracker over a local HTTP API and serves the
// generated artifacts (reports, maps, charts) from the out directory.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"yukemuri/internal/domain"
	"yukemuri/internal/logging"
	"yukemuri/internal/store"

	"github.com/gin-gonic/gin"
)

// Options configures the server.
type Options struct {
	// Addr is the listen address, e.g. "127.0.0.1:8807".
	Addr string
	// OutDir is served at / for browsing generated artifacts.
	OutDir string
	// Debug enables gin's request logging.
	Debug bool
}

// Router builds the gin engine without binding a listener. Tests drive it
// through httptest.
func Router(s *store.Store, opts Options) *gin.Engine {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.Debug {
		r.Use(gin.Logger())
	}

	api := r.Group("/api")
	{
		api.GET("/healthz", handleHealthz(s))
		api.GET("/onsens", handleOnsens(s))
		api.GET("/onsens/:id", handleOnsen(s))
		api.GET("/visits", handleVisits(s))
		api.GET("/insights", handleInsights(s))
	}

	if opts.OutDir != "" {
		// Artifacts are browsable at the root; /api keeps priority.
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(opts.OutDir))))
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, s *store.Store, opts Options) error {
	log := logging.L(logging.SubServe)

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           Router(s, opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("serving on http://%s", opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func handleHealthz(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := s.Stats()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "counts": stats})
	}
}

func handleOnsens(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		onsens, err := s.ListOnsens()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if onsens == nil {
			onsens = []*domain.Onsen{}
		}
		c.JSON(http.StatusOK, onsens)
	}
}

func handleOnsen(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid onsen id"})
			return
		}
		o, err := s.GetOnsen(id)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "onsen not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

func handleVisits(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var f store.VisitFilter
		if v := c.Query("onsen"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid onsen id"})
				return
			}
			f.OnsenID = id
		}
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			f.Limit = n
		}
		if v := c.Query("since"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
				return
			}
			f.Since = t
		}
		visits, err := s.ListVisits(f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, visits)
	}
}

func handleInsights(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := s.LatestRun()
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"run": nil, "insights": []any{}})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		insights, err := s.InsightsForRun(run.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"run": run, "insights": insights})
	}
}
