package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/xaenox/voice-intent-bot/internal/storage"
	"go.uber.org/zap"
)

// DefaultRecordingHost is the only host recordings are fetched from unless
// the client is configured otherwise.
const DefaultRecordingHost = "api.twilio.com"

// ErrUntrustedRecordingURL is returned for recording URLs outside the
// allowed https hosts. Credentials are never sent to such URLs.
var ErrUntrustedRecordingURL = errors.New("telephony: untrusted recording url")

type callCreator interface {
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
}

// Client places outbound calls and fetches call recordings from Twilio.
type Client struct {
	calls      callCreator
	httpClient *http.Client
	accountSID string
	authToken  string
	// recordingHosts are the hosts DownloadRecording will authenticate to.
	recordingHosts []string
	logger         *zap.Logger
}

func NewClient(accountSID, authToken string, logger *zap.Logger) *Client {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Client{
		calls:      rest.Api,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		accountSID:     accountSID,
		authToken:      authToken,
		recordingHosts: []string{DefaultRecordingHost},
		logger:         logger,
	}
}

func (c *Client) checkRecordingURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUntrustedRecordingURL, err)
	}
	if u.Scheme != "https" || u.User != nil {
		return fmt.Errorf("%w: %s", ErrUntrustedRecordingURL, u.Redacted())
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range c.recordingHosts {
		if host == strings.ToLower(allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q", ErrUntrustedRecordingURL, host)
}

// PlaceCall dials to from the given number. The call is recorded and its
// webhooks point at baseURL.
func (c *Client) PlaceCall(ctx context.Context, to, from, baseURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if to == "" || from == "" || baseURL == "" {
		return "", errors.New("telephony: to, from and base url are required")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetUrl(baseURL + "/voice")
	params.SetRecord(true)
	params.SetRecordingStatusCallback(baseURL + "/recording-complete")
	params.SetRecordingStatusCallbackMethod(http.MethodPost)
	params.SetRecordingStatusCallbackEvent([]string{"completed"})

	call, err := c.calls.CreateCall(params)
	if err != nil {
		c.logger.Error("Failed to place call", zap.Error(err), zap.String("to", to))
		return "", fmt.Errorf("creating call: %w", err)
	}
	if call == nil || call.Sid == nil {
		return "", errors.New("telephony: call created without sid")
	}

	c.logger.Info("Call initiated", zap.String("call_sid", *call.Sid), zap.String("to", to))
	return *call.Sid, nil
}

// DownloadRecording saves the MP3 rendition of a recording as <dir>/<sid>.mp3
// and returns the file path.
func (c *Client) DownloadRecording(ctx context.Context, recordingURL, sid, dir string) (string, error) {
	if err := c.checkRecordingURL(recordingURL); err != nil {
		c.logger.Warn("Refused recording download", zap.Error(err), zap.String("recording_sid", sid))
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL+".mp3", nil)
	if err != nil {
		return "", fmt.Errorf("building recording request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading recording: unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating recordings dir: %w", err)
	}
	path := filepath.Join(dir, storage.SafeName(sid)+".mp3")
	tmp := filepath.Join(dir, ".tmp-"+uuid.New().String())

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("creating recording file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("writing recording: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("writing recording: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("saving recording: %w", err)
	}

	c.logger.Info("Recording saved", zap.String("path", path))
	return path, nil
}
