package devserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cloudsdk/cloudxfer/internal/config"
	"github.com/cloudsdk/cloudxfer/internal/constants"
	"github.com/cloudsdk/cloudxfer/internal/logging"
)

// multipartSlack covers the multipart framing around an upload at the size limit.
const multipartSlack = 64 * 1024

// Server is the dev control endpoint:
//
//	GET /api/v1/urls/upload?category=&folder=&filename=    -> pre-signed PUT URL
//	GET /api/v1/urls/download?category=&folder=&filename=  -> object content
//	PUT /objects/<key>?expires=&signature=                 -> local backend only
//	GET /healthz
type Server struct {
	cfg          config.DevServerConfig
	backend      Backend
	local        *LocalBackend
	logger       *logging.Logger
	sizeLimit    int64
	bulkCategory int
	engine       *gin.Engine
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLimits sets the upload ceiling and the category exempt from it.
func WithLimits(sizeLimit int64, bulkCategory int) ServerOption {
	return func(s *Server) {
		s.sizeLimit = sizeLimit
		s.bulkCategory = bulkCategory
	}
}

// NewServer builds the routes. When backend is a *LocalBackend the server
// also accepts the PUTs it signs.
func NewServer(cfg config.DevServerConfig, backend Backend, logger *logging.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = constants.PresignTTL
	}
	s := &Server{
		cfg:          cfg,
		backend:      backend,
		logger:       logger,
		sizeLimit:    constants.SizeLimit,
		bulkCategory: constants.CategoryMobileResources,
	}
	if local, ok := backend.(*LocalBackend); ok {
		s.local = local
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), s.accessLog)

	engine.GET("/healthz", s.handleHealth)

	urls := engine.Group("/api/v1/urls", s.requireToken)
	{
		urls.GET("/upload", s.handleResolveUpload)
		urls.GET("/download", s.handleResolveDownload)
	}

	if s.local != nil {
		engine.PUT(ObjectRoute+"*key", s.handlePutObject)
	}
	return engine
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("listen", s.cfg.Listen).
			Str("public_url", s.cfg.PublicURL).
			Str("backend", s.backend.Name()).
			Msg("Dev control endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.closeBackend()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-errCh
	s.closeBackend()
	return err
}

func (s *Server) closeBackend() {
	if c, ok := s.backend.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close backend")
		}
	}
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug().
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", c.Writer.Status()).
		Dur("latency", time.Since(start)).
		Msg("Request")
}

// requireToken rejects requests without a bearer token, or with a token
// other than the configured one.
func (s *Server) requireToken(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	if s.cfg.APIToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": s.backend.Name()})
}

// objectKey reads the resolution query of c.
func objectKey(c *gin.Context) (string, error) {
	category, err := strconv.Atoi(c.Query("category"))
	if err != nil {
		return "", errors.New("category must be an integer")
	}
	return ObjectKey(c.Query("folder"), category, c.Query("filename"))
}

func (s *Server) handleResolveUpload(c *gin.Context) {
	key, err := objectKey(c)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	u, err := s.backend.PresignPut(c.Request.Context(), key, s.cfg.URLTTL)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Presign failed")
		c.String(http.StatusBadGateway, "presign failed")
		return
	}

	s.logger.Info().Str("key", key).Dur("ttl", s.cfg.URLTTL).Msg("Issued upload URL")
	c.String(http.StatusOK, u)
}

func (s *Server) handleResolveDownload(c *gin.Context) {
	key, err := objectKey(c)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	data, err := s.backend.Get(c.Request.Context(), key)
	if errors.Is(err, ErrNotFound) {
		c.String(http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Download failed")
		c.String(http.StatusBadGateway, "download failed")
		return
	}

	s.logger.Info().Str("key", key).Int("bytes", len(data)).Msg("Served download")
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// handlePutObject stores a signed upload. Multipart bodies are unwrapped to
// their "file" part; anything else is stored as sent.
func (s *Server) handlePutObject(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if !validKey(key) {
		c.String(http.StatusBadRequest, "invalid key")
		return
	}
	if err := s.local.Verify(key, c.Query("expires"), c.Query("signature")); err != nil {
		c.String(http.StatusForbidden, err.Error())
		return
	}

	if limit := s.limitFor(key); limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartSlack)
	}

	var body io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fh, err := c.FormFile("file")
		if err != nil {
			s.rejectBody(c, key, err)
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		defer f.Close()
		body = f
	}

	n, err := s.local.Put(key, body)
	if err != nil {
		s.rejectBody(c, key, err)
		return
	}

	s.logger.Info().Str("key", key).Int64("bytes", n).Msg("Stored object")
	c.Status(http.StatusOK)
}

func (s *Server) rejectBody(c *gin.Context, key string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.String(http.StatusRequestEntityTooLarge, "payload exceeds size limit")
		return
	}
	s.logger.Error().Err(err).Str("key", key).Msg("Failed to store object")
	c.String(http.StatusBadRequest, err.Error())
}

// limitFor returns the body limit of key, 0 for the bulk category.
func (s *Server) limitFor(key string) int64 {
	parts := strings.Split(key, "/")
	if len(parts) == 3 {
		if category, err := strconv.Atoi(parts[1]); err == nil && category == s.bulkCategory {
			return 0
		}
	}
	return s.sizeLimit
}
