package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

type fakeCalls struct {
	params *openapi.CreateCallParams
	sid    string
	err    error
}

func (f *fakeCalls) CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &openapi.ApiV2010Call{Sid: &f.sid}, nil
}

func newTestClient(calls callCreator, httpClient *http.Client) *Client {
	return &Client{
		calls:      calls,
		httpClient: httpClient,
		accountSID:     "AC123",
		authToken:      "secret",
		recordingHosts: []string{"127.0.0.1"},
		logger:         zap.NewNop(),
	}
}

func TestPlaceCall(t *testing.T) {
	calls := &fakeCalls{sid: "CA42"}
	c := newTestClient(calls, http.DefaultClient)

	sid, err := c.PlaceCall(context.Background(), "+15550001", "+15550002", "https://example.ngrok.io/")
	require.NoError(t, err)
	assert.Equal(t, "CA42", sid)

	require.NotNil(t, calls.params)
	assert.Equal(t, "+15550001", *calls.params.To)
	assert.Equal(t, "+15550002", *calls.params.From)
	assert.Equal(t, "https://example.ngrok.io/voice", *calls.params.Url)
	assert.True(t, *calls.params.Record)
	assert.Equal(t, "https://example.ngrok.io/recording-complete", *calls.params.RecordingStatusCallback)
	assert.Equal(t, []string{"completed"}, *calls.params.RecordingStatusCallbackEvent)
}

func TestPlaceCall_Errors(t *testing.T) {
	c := newTestClient(&fakeCalls{err: errors.New("401 unauthorized")}, http.DefaultClient)

	_, err := c.PlaceCall(context.Background(), "+15550001", "+15550002", "https://example.ngrok.io")
	assert.ErrorContains(t, err, "401 unauthorized")

	_, err = c.PlaceCall(context.Background(), "", "+15550002", "https://example.ngrok.io")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.PlaceCall(ctx, "+15550001", "+15550002", "https://example.ngrok.io")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDownloadRecording(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/Recordings/RE1.mp3" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "recordings")
	c := newTestClient(&fakeCalls{}, srv.Client())

	path, err := c.DownloadRecording(context.Background(), srv.URL+"/Recordings/RE1", "RE1", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "RE1.mp3"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID3fake", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestDownloadRecording_BadStatus(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := newTestClient(&fakeCalls{}, srv.Client())

	_, err := c.DownloadRecording(context.Background(), srv.URL+"/Recordings/RE2", "RE2", dir)
	assert.ErrorContains(t, err, "404")

	_, statErr := os.Stat(filepath.Join(dir, "RE2.mp3"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadRecording_RefusesForeignHosts(t *testing.T) {
	var hits int
	var authHeaders []string
	foreign := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		w.Write([]byte("stolen"))
	}))
	defer foreign.Close()

	c := newTestClient(&fakeCalls{}, foreign.Client())
	c.recordingHosts = []string{DefaultRecordingHost}
	dir := t.TempDir()

	_, err := c.DownloadRecording(context.Background(), foreign.URL+"/x", "RE1", dir)
	assert.ErrorIs(t, err, ErrUntrustedRecordingURL)
	assert.Zero(t, hits)
	assert.Empty(t, authHeaders)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCheckRecordingURL(t *testing.T) {
	c := newTestClient(&fakeCalls{}, http.DefaultClient)
	c.recordingHosts = []string{DefaultRecordingHost}

	tests := []struct {
		url string
		ok  bool
	}{
		{"https://api.twilio.com/2010-04-01/Accounts/AC1/Recordings/RE1", true},
		{"https://API.twilio.com/2010-04-01/Accounts/AC1/Recordings/RE1", true},
		{"http://api.twilio.com/2010-04-01/Accounts/AC1/Recordings/RE1", false},
		{"https://api.twilio.com.attacker.example/Recordings/RE1", false},
		{"https://attacker.example/Recordings/RE1", false},
		{"https://user:pw@api.twilio.com/Recordings/RE1", false},
		{"://bad", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := c.checkRecordingURL(tt.url)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUntrustedRecordingURL)
			}
		})
	}
}
