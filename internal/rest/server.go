package rest

import (
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/uptrace/bunrouter"
	"github.com/vestiapp/vesti/internal/recommend"
	"github.com/vestiapp/vesti/internal/rest/handler"
	"go.uber.org/zap"
)

// Server implements the REST API service.
type Server struct {
	recommendHandler *handler.RecommendHandler
}

// NewServer creates the REST API handler tree. requestTimeout is the hard
// per-request deadline applied to the recommendation pipeline.
func NewServer(engine *recommend.Engine, requestTimeout time.Duration, logger *zap.Logger) http.Handler {
	server := &Server{
		recommendHandler: handler.NewRecommendHandler(engine, requestTimeout, logger),
	}

	router := bunrouter.New()

	router.WithGroup("/v1", func(g *bunrouter.Group) {
		g.POST("/recommendations", server.recommendHandler.CreateRecommendations)
	})

	router.GET("/healthz", func(w http.ResponseWriter, req bunrouter.Request) error {
		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write([]byte(`{"status":"ok"}`))
		return err
	})

	// Add gzip compression
	return gzhttp.GzipHandler(router)
}

// NewHTTPServer wraps the handler tree in an http.Server with sane timeouts.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
