package voice

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/twilio/twilio-go/client"
	"github.com/xaenox/voice-intent-bot/internal/models"
	"go.uber.org/zap"
)

// Dialogue runs the conversation for the webhook handlers.
type Dialogue interface {
	StartCall(ctx context.Context, callID string) models.Turn
	Process(ctx context.Context, callID, speech string) models.Turn
}

// RecordingFetcher downloads finished call recordings.
type RecordingFetcher interface {
	DownloadRecording(ctx context.Context, recordingURL, sid, dir string) (string, error)
}

type Config struct {
	Port              int
	PublicURL         string
	AuthToken         string
	ValidateSignature bool
	RecordingsDir     string
	TranscriptsDir    string
	MaxSpeechLength   int
	Speech            Speech
}

// Server answers the Twilio voice webhooks.
type Server struct {
	cfg        Config
	dialogue   Dialogue
	recordings RecordingFetcher
	validator  *client.RequestValidator
	router     *gin.Engine
	logger     *zap.Logger
}

func NewServer(cfg Config, dialogue Dialogue, recordings RecordingFetcher, logger *zap.Logger) (*Server, error) {
	if dialogue == nil {
		return nil, fmt.Errorf("voice: dialogue is required")
	}
	if cfg.ValidateSignature && (cfg.AuthToken == "" || cfg.PublicURL == "") {
		return nil, fmt.Errorf("voice: signature validation needs an auth token and public url")
	}
	if cfg.Port <= 0 {
		cfg.Port = 5000
	}

	s := &Server{
		cfg:        cfg,
		dialogue:   dialogue,
		recordings: recordings,
		logger:     logger,
	}
	if cfg.ValidateSignature {
		v := client.NewRequestValidator(cfg.AuthToken)
		s.validator = &v
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger(logger))
	router.SetHTMLTemplate(template.Must(template.New("play").Parse(playPage)))
	s.registerRoutes(router)
	s.router = router
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shut down voice server", zap.Error(err))
		}
	}()

	s.logger.Info("Voice webhook server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("voice server: %w", err)
	}
	return nil
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")))
	}
}

// twilioSignature rejects webhook calls that were not signed with the
// account auth token.
func (s *Server) twilioSignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.validator == nil {
			c.Next()
			return
		}
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		params := make(map[string]string, len(c.Request.PostForm))
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		url := s.cfg.PublicURL + c.Request.URL.RequestURI()
		if !s.validator.Validate(url, params, c.GetHeader("X-Twilio-Signature")) {
			s.logger.Warn("Rejected unsigned webhook",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetString("request_id")))
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
