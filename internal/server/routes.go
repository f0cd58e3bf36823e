package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rxlens/rxlens/internal/analysis"
	"github.com/rxlens/rxlens/internal/chat"
	"github.com/rxlens/rxlens/internal/session"
	"github.com/rxlens/rxlens/internal/vision"
)

type analyzeRequest struct {
	// Image is a data URL or bare base64-encoded image.
	Image string `json:"image"`
}

type analyzeResponse struct {
	ID       string           `json:"id,omitempty"`
	Restored bool             `json:"restored"`
	Rejected bool             `json:"rejected"`
	Analysis *analysis.Result `json:"analysis"`
	History  []chat.Turn      `json:"history"`
}

// handleAnalyze runs the pipeline over an uploaded image. A previously
// seen image restores its stored session without re-running the model;
// a gate-rejected image returns the rejection but is never persisted.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	imageData, dataURL, err := decodeImage(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash := session.ImageHash(imageData)
	if sess, err := s.sessions.FindByImageHash(r.Context(), hash); err == nil {
		writeJSON(w, http.StatusOK, analyzeResponse{
			ID:       sess.ID,
			Restored: true,
			Analysis: sess.Analysis,
			History:  historyOrEmpty(sess.History),
		})
		return
	} else if !errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}

	res, err := s.analyzer.Analyze(r.Context(), dataURL)
	if err != nil {
		writeModelError(w, err)
		return
	}

	if res.Rejected() {
		writeJSON(w, http.StatusOK, analyzeResponse{
			Rejected: true,
			Analysis: res,
			History:  []chat.Turn{},
		})
		return
	}

	sess, err := s.sessions.Create(r.Context(), hash, dataURL, res)
	if err != nil {
		log.Printf("server: persisting analysis: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to persist analysis")
		return
	}
	writeJSON(w, http.StatusCreated, analyzeResponse{
		ID:       sess.ID,
		Analysis: sess.Analysis,
		History:  []chat.Turn{},
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list prescriptions")
		return
	}
	if summaries == nil {
		summaries = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	sess.History = historyOrEmpty(sess.History)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "prescription not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete prescription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chatRequest struct {
	Mode string `json:"mode"`
	Text string `json:"text"`

	// Optional sampling overrides; zero values fall back to the
	// configured chat defaults.
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

func (s *Server) chatParams(req chatRequest) vision.Params {
	p := s.cfg.ChatParams
	if req.Temperature > 0 {
		p.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		p.MaxTokens = req.MaxTokens
	}
	if req.TopP > 0 {
		p.TopP = req.TopP
	}
	return p
}

// handleChat streams one chat turn as server-sent events. Each fragment
// goes out as a `token` event; the final disclaimer fragment is part of
// the same stream, followed by a `done` event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	stream, err := s.chat.Continue(r.Context(), sess.Analysis, chat.Mode(req.Mode),
		req.Text, sess.ImageDataURL, sess.History, sess, s.chatParams(req))
	if err != nil {
		var cfgErr *vision.ConfigurationError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusBadRequest, cfgErr.Error())
			return
		}
		writeModelError(w, err)
		return
	}
	defer stream.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeSSE(w, map[string]string{"type": "error", "error": "model stream failed"})
			flusher.Flush()
			log.Printf("server: chat stream: %v", err)
			return
		}
		writeSSE(w, map[string]string{"type": "token", "content": frag})
		flusher.Flush()
	}
	writeSSE(w, map[string]string{"type": "done"})
	flusher.Flush()
}

type resolveRequest struct {
	Action string `json:"action"`

	// For action "resolve".
	MedicineName string `json:"medicine_name,omitempty"`
	Field        string `json:"field,omitempty"`
	Chosen       string `json:"chosen,omitempty"`

	// For action "dismiss".
	Index int `json:"index,omitempty"`

	// For action "add_manual".
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// handleResolve applies a human-resolution operation and persists the
// updated analysis.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var err error
	switch req.Action {
	case "resolve":
		err = analysis.ResolveAmbiguity(sess.Analysis, req.MedicineName, req.Field, req.Chosen)
	case "dismiss":
		err = analysis.DismissAmbiguity(sess.Analysis, req.Index)
	case "add_manual":
		err = analysis.AddManualMedicine(sess.Analysis, req.Name, req.Type)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := sess.SaveAnalysis(); err != nil {
		log.Printf("server: saving resolved analysis: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to persist analysis")
		return
	}
	writeJSON(w, http.StatusOK, sess.Analysis)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	plan, err := s.scheduler.Generate(r.Context(), sess.Analysis)
	if err != nil {
		writeModelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "prescription not found")
		} else {
			writeError(w, http.StatusInternalServerError, "session lookup failed")
		}
		return nil, false
	}
	return sess, true
}

// decodeImage accepts a data URL or bare base64 payload and returns the
// raw bytes plus a normalized data URL for the model.
func decodeImage(input string) ([]byte, string, error) {
	if input == "" {
		return nil, "", fmt.Errorf("image is required")
	}
	payload := input
	if strings.HasPrefix(input, "data:") {
		_, rest, ok := strings.Cut(input, ",")
		if !ok {
			return nil, "", fmt.Errorf("malformed data URL")
		}
		payload = rest
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 image data")
	}
	return data, vision.DataURL(vision.SniffMIME(data), data), nil
}

func historyOrEmpty(turns []chat.Turn) []chat.Turn {
	if turns == nil {
		return []chat.Turn{}
	}
	return turns
}

// writeModelError maps vision client failures to 502 responses. Only
// the upstream status code is exposed; response bodies stay in the logs.
func writeModelError(w http.ResponseWriter, err error) {
	var apiErr *vision.APIError
	if errors.As(err, &apiErr) {
		log.Printf("server: model API error: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":           "model request failed",
			"upstream_status": apiErr.StatusCode,
		})
		return
	}
	var transportErr *vision.TransportError
	if errors.As(err, &transportErr) {
		log.Printf("server: model transport error: %v", err)
		writeError(w, http.StatusBadGateway, "model unreachable")
		return
	}
	log.Printf("server: analysis error: %v", err)
	writeError(w, http.StatusInternalServerError, "analysis failed")
}

func writeSSE(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
