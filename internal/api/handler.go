// Package api exposes the webhook, the web chat endpoint and locally
// published audio over net/http.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"voice-lending-go/internal/gateway"
	"voice-lending-go/internal/logger"
	"voice-lending-go/internal/types"
)

const maxChatBody = 64 << 10

type Processor interface {
	Process(ctx context.Context, ev types.InboundEvent) types.Result
	Chat(ctx context.Context, message string) string
}

type ArtifactLookup interface {
	Lookup(name string) (string, error)
}

type Options struct {
	AuthToken         string
	ValidateSignature bool
	// PublicBaseURL is the externally visible origin used to rebuild the
	// signed webhook URL behind a tunnel or proxy.
	PublicBaseURL  string
	RequestTimeout time.Duration
	AllowedOrigins []string
}

type Handler struct {
	proc      Processor
	artifacts ArtifactLookup
	opts      Options
	log       *logger.Logger
}

func NewHandler(proc Processor, artifacts ArtifactLookup, opts Options, log *logger.Logger) *Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	return &Handler{proc: proc, artifacts: artifacts, opts: opts, log: log}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("POST /webhook", h.webhook)
	mux.Handle("/chat", h.cors(http.HandlerFunc(h.chat)))
	mux.HandleFunc("GET /audio/{name}", h.audio)
	return mux
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.log.WithRequest(r).Debug("health check")
	fmt.Fprint(w, "ok")
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	reqLog := h.log.WithRequest(r).WithField("handler", "webhook")
	if err := r.ParseForm(); err != nil {
		reqLog.WithError(err).Warn("bad webhook form")
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if h.opts.ValidateSignature {
		sig := r.Header.Get("X-Twilio-Signature")
		if !gateway.ValidateSignature(h.opts.AuthToken, h.signedURL(r), r.PostForm, sig) {
			reqLog.Warn("twilio signature mismatch")
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
	}

	ev := gateway.ParseEvent(r.PostForm)
	reqLog = reqLog.WithFields(logrus.Fields{"message_id": ev.MessageID, "media": len(ev.Media)})
	reqLog.Info("webhook received")

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.RequestTimeout)
	defer cancel()
	res := h.proc.Process(ctx, ev)

	body, err := gateway.RenderTwiML(res.Reply)
	if err != nil {
		reqLog.WithError(err).Error("render twiml failed")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	if _, err := w.Write([]byte(body)); err != nil {
		reqLog.WithError(err).Warn("failed to write response")
	}
}

// signedURL rebuilds the URL Twilio signed. Behind a tunnel r.Host is not
// the public host, so PublicBaseURL wins when set.
func (h *Handler) signedURL(r *http.Request) string {
	if h.opts.PublicBaseURL != "" {
		return h.opts.PublicBaseURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	reqLog := h.log.WithRequest(r).WithField("handler", "chat")
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, chatResponse{Error: "method not allowed"}, reqLog)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		reqLog.WithError(err).Warn("bad chat payload")
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: "invalid JSON body"}, reqLog)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.RequestTimeout)
	defer cancel()
	start := time.Now()
	reply := h.proc.Chat(ctx, req.Message)
	reqLog.WithField("duration_ms", time.Since(start).Milliseconds()).Info("chat answered")
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply}, reqLog)
}

func (h *Handler) audio(w http.ResponseWriter, r *http.Request) {
	path, err := h.artifacts.Lookup(r.PathValue("name"))
	if err != nil {
		h.log.WithRequest(r).WithError(err).Debug("audio not found")
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

// cors allows the configured origins only; "*" allows any.
func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && h.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) originAllowed(origin string) bool {
	origin = strings.TrimSuffix(origin, "/")
	return slices.ContainsFunc(h.opts.AllowedOrigins, func(o string) bool {
		return o == "*" || strings.EqualFold(strings.TrimSuffix(o, "/"), origin)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any, log *logrus.Entry) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to write response")
	}
}
