package voice

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/xaenox/voice-intent-bot/internal/bot"
	"github.com/xaenox/voice-intent-bot/internal/storage"
	"go.uber.org/zap"
)

const playPage = `<html>
<head><title>Play Recording</title></head>
<body>
    <h2>Call Recording: {{.SID}}</h2>
    <audio controls autoplay>
        <source src="{{.URL}}" type="audio/mpeg">
        Your browser does not support the audio tag.
    </audio>
    <br>
    <a href="{{.URL}}" download>Download Recording</a>
</body>
</html>`

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/", s.handleIndex)

	hooks := router.Group("/", s.twilioSignature())
	hooks.POST("/voice", s.handleVoice)
	hooks.POST("/gather", s.handleGather)
	hooks.POST("/recording-complete", s.handleRecordingComplete)
	hooks.POST("/transcription-complete", s.handleTranscriptionComplete)

	router.GET("/recordings/:file", s.serveFrom(s.cfg.RecordingsDir))
	router.GET("/transcripts/:file", s.serveFrom(s.cfg.TranscriptsDir))
	router.GET("/play/:sid", s.handlePlay)
}

func (s *Server) handleIndex(c *gin.Context) {
	c.String(http.StatusOK, "Voice intent bot is running.")
}

func (s *Server) handleVoice(c *gin.Context) {
	callID := c.PostForm("CallSid")
	if callID == "" {
		c.String(http.StatusBadRequest, "missing CallSid")
		return
	}

	turn := s.dialogue.StartCall(c.Request.Context(), callID)
	body, err := s.cfg.Speech.greeting(turn.Prompt)
	s.writeTwiML(c, body, err)
}

func (s *Server) handleGather(c *gin.Context) {
	callID := c.PostForm("CallSid")
	if callID == "" {
		c.String(http.StatusBadRequest, "missing CallSid")
		return
	}

	speech := bot.NormalizeSpeech(c.PostForm("SpeechResult"), s.cfg.MaxSpeechLength)
	turn := s.dialogue.Process(c.Request.Context(), callID, speech)

	s.logger.Info("Handled gather",
		zap.String("call_id", callID),
		zap.String("action", string(turn.Action)),
		zap.String("request_id", c.GetString("request_id")))

	body, err := s.cfg.Speech.turn(turn)
	s.writeTwiML(c, body, err)
}

func (s *Server) writeTwiML(c *gin.Context, body string, err error) {
	if err != nil {
		s.logger.Error("Failed to render TwiML", zap.Error(err))
		c.String(http.StatusInternalServerError, "")
		return
	}
	c.Data(http.StatusOK, "text/xml", []byte(body))
}

func (s *Server) handleRecordingComplete(c *gin.Context) {
	recordingURL := c.PostForm("RecordingUrl")
	sid := c.PostForm("RecordingSid")

	switch {
	case recordingURL == "" || sid == "":
		s.logger.Warn("No recording URL found")
	case s.recordings == nil:
		s.logger.Warn("Recording downloads are disabled", zap.String("recording_sid", sid))
	default:
		if _, err := s.recordings.DownloadRecording(c.Request.Context(), recordingURL, sid, s.cfg.RecordingsDir); err != nil {
			s.logger.Error("Failed to download recording", zap.Error(err), zap.String("recording_sid", sid))
		}
	}
	c.String(http.StatusOK, "Recording saved")
}

func (s *Server) handleTranscriptionComplete(c *gin.Context) {
	text := c.PostForm("TranscriptionText")
	sid := c.PostForm("RecordingSid")

	if text == "" || sid == "" {
		s.logger.Warn("Missing transcription or SID")
		c.String(http.StatusOK, "Transcription saved")
		return
	}

	path := filepath.Join(s.cfg.TranscriptsDir, storage.SafeName(sid)+".txt")
	err := os.MkdirAll(s.cfg.TranscriptsDir, 0o755)
	if err == nil {
		err = os.WriteFile(path, []byte(text), 0o644)
	}
	if err != nil {
		s.logger.Error("Failed to save transcription", zap.Error(err), zap.String("recording_sid", sid))
	} else {
		s.logger.Info("Transcription saved", zap.String("path", path))
	}
	c.String(http.StatusOK, "Transcription saved")
}

func (s *Server) serveFrom(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := filepath.Join(dir, storage.SafeName(c.Param("file")))
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			c.String(http.StatusNotFound, "not found")
			return
		}
		c.File(path)
	}
}

func (s *Server) handlePlay(c *gin.Context) {
	sid := storage.SafeName(c.Param("sid"))
	c.HTML(http.StatusOK, "play", gin.H{
		"SID": sid,
		"URL": "/recordings/" + sid + ".mp3",
	})
}
