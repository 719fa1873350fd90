package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voice-lending-go/internal/artifact"
	"voice-lending-go/internal/logger"
	"voice-lending-go/internal/types"
)

type MockProcessor struct{ mock.Mock }

func (m *MockProcessor) Process(ctx context.Context, ev types.InboundEvent) types.Result {
	return m.Called(ctx, ev).Get(0).(types.Result)
}

func (m *MockProcessor) Chat(ctx context.Context, message string) string {
	return m.Called(ctx, message).String(0)
}

func newTestHandler(t *testing.T, proc Processor, opts Options) (*Handler, *artifact.Store) {
	t.Helper()
	st, err := artifact.New(t.TempDir(), time.Hour, logger.Discard().Entry)
	require.NoError(t, err)
	return NewHandler(proc, st, opts, logger.Discard()), st
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func sign(token, u string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := u
	for _, k := range keys {
		s += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(s))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhook_ReturnsTwiML(t *testing.T) {
	proc := new(MockProcessor)
	proc.On("Process", mock.Anything, mock.MatchedBy(func(ev types.InboundEvent) bool {
		return ev.MessageID == "SM1" && ev.Body == "help"
	})).Return(types.Result{State: types.StateResponded, Reply: "Available commands: & more"})

	h, _ := newTestHandler(t, proc, Options{})
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, postForm("/webhook", url.Values{
		"MessageSid": {"SM1"}, "From": {"whatsapp:+91"}, "To": {"whatsapp:+1"}, "Body": {"help"},
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<Message>")
	assert.Contains(t, rec.Body.String(), "Available commands: &amp; more")
	proc.AssertExpectations(t)
}

func TestWebhook_Signature(t *testing.T) {
	form := url.Values{"MessageSid": {"SM1"}, "Body": {"hi"}}
	proc := new(MockProcessor)
	proc.On("Process", mock.Anything, mock.Anything).Return(types.Result{Reply: "ok"})
	h, _ := newTestHandler(t, proc, Options{
		AuthToken:         "secret",
		ValidateSignature: true,
		PublicBaseURL:     "https://bot.example.com",
	})

	req := postForm("/webhook", form)
	req.Header.Set("X-Twilio-Signature", sign("secret", "https://bot.example.com/webhook", form))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = postForm("/webhook", form)
	req.Header.Set("X-Twilio-Signature", "forged")
	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	proc.AssertNumberOfCalls(t, "Process", 1)
}

func TestWebhook_AppliesRequestTimeout(t *testing.T) {
	proc := new(MockProcessor)
	proc.On("Process", mock.MatchedBy(func(ctx context.Context) bool {
		dl, ok := ctx.Deadline()
		return ok && time.Until(dl) <= 5*time.Second
	}), mock.Anything).Return(types.Result{Reply: "ok"})

	h, _ := newTestHandler(t, proc, Options{RequestTimeout: 5 * time.Second})
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, postForm("/webhook", url.Values{"Body": {"hi"}}))
	assert.Equal(t, http.StatusOK, rec.Code)
	proc.AssertExpectations(t)
}

func TestWebhook_GetNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t, new(MockProcessor), Options{})
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChat(t *testing.T) {
	proc := new(MockProcessor)
	proc.On("Chat", mock.Anything, "loan:50000,20000,750").Return("Loan Eligibility Analysis:\n\nok")
	h, _ := newTestHandler(t, proc, Options{AllowedOrigins: []string{"https://www.stratolending.com"}})

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"loan:50000,20000,750"}`))
	req.Header.Set("Origin", "https://www.stratolending.com")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://www.stratolending.com", rec.Header().Get("Access-Control-Allow-Origin"))
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Loan Eligibility Analysis:\n\nok", out["reply"])
}

func TestChat_CORS(t *testing.T) {
	h, _ := newTestHandler(t, new(MockProcessor), Options{AllowedOrigins: []string{"https://www.stratolending.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://www.stratolending.com")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	req = httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestChat_BadBody(t *testing.T) {
	proc := new(MockProcessor)
	h, _ := newTestHandler(t, proc, Options{})
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	proc.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestAudio(t *testing.T) {
	h, st := newTestHandler(t, new(MockProcessor), Options{})
	p, err := st.Write("SM1", "tts", "mp3", []byte("ID3 payload"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/"+filepath.Base(p), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3 payload", rec.Body.String())

	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/missing.mp3", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// files outside the store are never served
	outside := filepath.Join(filepath.Dir(st.Dir()), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))
	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/..%2Fsecret.txt", nil))
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t, new(MockProcessor), Options{})
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
