// Package httpd serves an app's functions in the local development
// context. Every registration becomes a gin route; binding, invocation
// and error mapping run through the shared dispatch pipeline.
package httpd

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gantryhq/gantry"
	"github.com/gantryhq/gantry/dispatch"
)

// Server is the local development HTTP server.
type Server struct {
	app    *gantry.App
	engine *gin.Engine
}

// New wires every registered function into a gin engine.
func New(app *gantry.App) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestID())
	engine.Use(RequestLogger(app.Logger()))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().UTC()})
	})

	d := dispatch.New(app)
	for _, reg := range app.Functions(nil) {
		engine.Handle(reg.Method, ginPath(reg.Path), route(d, reg))
	}
	return &Server{app: app, engine: engine}
}

// Handler exposes the underlying engine, mostly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.app.Logger().WithField("addr", addr).Info("server started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.app.Logger().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func route(d *dispatch.Dispatcher, reg *gantry.FunctionRegistration) gin.HandlerFunc {
	return func(c *gin.Context) {
		in := dispatch.Input{
			Method: c.Request.Method,
			Route:  make(map[string]string, len(c.Params)),
			Query:  make(map[string]string),
		}
		for _, p := range c.Params {
			in.Route[p.Key] = p.Value
		}
		for k, vs := range c.Request.URL.Query() {
			if len(vs) > 0 {
				in.Query[k] = vs[0]
			}
		}
		if c.Request.Body != nil {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
				return
			}
			in.Body = body
		}

		res := d.Call(c.Request.Context(), reg, in)
		c.Data(res.Status, "application/json", res.Body)
	}
}

// ginPath rewrites {placeholder} route segments into gin's :param form.
func ginPath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			segments[i] = ":" + seg[1:len(seg)-1]
		}
	}
	return strings.Join(segments, "/")
}
