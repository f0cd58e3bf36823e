package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rxlens/rxlens/internal/analysis"
	"github.com/rxlens/rxlens/internal/chat"
	"github.com/rxlens/rxlens/internal/db"
	"github.com/rxlens/rxlens/internal/schedule"
	"github.com/rxlens/rxlens/internal/session"
	"github.com/rxlens/rxlens/internal/vision"
)

// testImageB64 decodes to the JPEG magic bytes.
const testImageB64 = "/9j/4A=="

var cleanAnalysisScript = []string{
	`{"is_prescription": true, "confidence": 0.92, "reason": "clear prescription"}`,
	`Amox 500mg 1-0-1 x5days`,
	`{"medicines": [{"name": "Amoxicillin 500mg", "confidence": 0.9, "timing": ["morning","night"]}], "overall_confidence": 0.9}`,
	`{"ambiguities": [], "safety_flags": [], "is_safe_to_display": true}`,
}

// scriptedModel serves one canned reply per model call as SSE events.
// calls tracks how many requests the model has seen.
func scriptedModel(t *testing.T, calls *int, replies ...string) *vision.Client {
	t.Helper()
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		idx := *calls
		*calls++
		mu.Unlock()
		if idx >= len(replies) {
			t.Errorf("unexpected model call %d", idx)
			http.Error(w, "script exhausted", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		ev, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"delta": map[string]any{"content": replies[idx]}}},
		})
		fmt.Fprintf(w, "data: %s\n", ev)
		io.WriteString(w, "data: [DONE]\n")
	}))
	t.Cleanup(srv.Close)

	client, err := vision.NewClient("test-key", srv.URL, "test-model")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

// setupServer builds a full API server over an in-memory database and a
// scripted model, returning the API base URL.
func setupServer(t *testing.T, calls *int, replies ...string) string {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	client := scriptedModel(t, calls, replies...)
	s := New(Config{Port: 0, ChatParams: vision.DefaultParams()},
		session.NewStore(database),
		analysis.NewAnalyzer(client),
		chat.NewStreamer(client),
		schedule.NewGenerator(client),
	)

	api := httptest.NewServer(s.Router())
	t.Cleanup(api.Close)
	return api.URL
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

func analyzeImage(t *testing.T, base string) analyzeResponse {
	t.Helper()
	resp := postJSON(t, base+"/api/prescriptions", analyzeRequest{Image: testImageB64})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("analyze status = %d, want 201", resp.StatusCode)
	}
	return decodeBody[analyzeResponse](t, resp)
}

func TestAnalyzeCreatesSession(t *testing.T) {
	var calls int
	base := setupServer(t, &calls, cleanAnalysisScript...)

	got := analyzeImage(t, base)
	if got.ID == "" {
		t.Error("ID empty, want a session id")
	}
	if got.Restored || got.Rejected {
		t.Errorf("Restored=%v Rejected=%v, want false/false", got.Restored, got.Rejected)
	}
	if got.Analysis.AmbiguityState != analysis.StateClear {
		t.Errorf("AmbiguityState = %q, want CLEAR", got.Analysis.AmbiguityState)
	}
	if len(got.History) != 0 {
		t.Errorf("History = %v, want empty", got.History)
	}
	if calls != 4 {
		t.Errorf("model calls = %d, want 4", calls)
	}
}

func TestAnalyzeRestoresKnownImage(t *testing.T) {
	var calls int
	base := setupServer(t, &calls, cleanAnalysisScript...)

	first := analyzeImage(t, base)

	resp := postJSON(t, base+"/api/prescriptions", analyzeRequest{Image: testImageB64})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restore status = %d, want 200", resp.StatusCode)
	}
	second := decodeBody[analyzeResponse](t, resp)
	if !second.Restored {
		t.Error("Restored = false, want true")
	}
	if second.ID != first.ID {
		t.Errorf("ID = %q, want %q", second.ID, first.ID)
	}
	if calls != 4 {
		t.Errorf("model calls = %d, want 4 (restore must not re-run the pipeline)", calls)
	}
}

func TestAnalyzeGateRejectionNotPersisted(t *testing.T) {
	var calls int
	base := setupServer(t, &calls,
		`{"is_prescription": false, "confidence": 0.95, "reason": "a cat photo"}`,
	)

	resp := postJSON(t, base+"/api/prescriptions", analyzeRequest{Image: testImageB64})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decodeBody[analyzeResponse](t, resp)
	if !got.Rejected {
		t.Error("Rejected = false, want true")
	}
	if got.ID != "" {
		t.Errorf("ID = %q, want empty for rejected image", got.ID)
	}

	listResp, err := http.Get(base + "/api/prescriptions")
	if err != nil {
		t.Fatalf("GET list: %v", err)
	}
	if got := decodeBody[[]session.Summary](t, listResp); len(got) != 0 {
		t.Errorf("list = %v, want empty after rejection", got)
	}
}

func TestAnalyzeBadImage(t *testing.T) {
	var calls int
	base := setupServer(t, &calls)

	for _, image := range []string{"", "not-base64!!!", "data:image/jpeg;nocomma"} {
		resp := postJSON(t, base+"/api/prescriptions", analyzeRequest{Image: image})
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("image %q: status = %d, want 400", image, resp.StatusCode)
		}
	}
	if calls != 0 {
		t.Errorf("model calls = %d, want 0", calls)
	}
}

func TestAnalyzeModelFailureIs502(t *testing.T) {
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "secret upstream detail", http.StatusTooManyRequests)
	}))
	t.Cleanup(upstream.Close)
	client, err := vision.NewClient("test-key", upstream.URL, "test-model")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	s := New(Config{ChatParams: vision.DefaultParams()},
		session.NewStore(database), analysis.NewAnalyzer(client),
		chat.NewStreamer(client), schedule.NewGenerator(client))
	api := httptest.NewServer(s.Router())
	t.Cleanup(api.Close)

	resp := postJSON(t, api.URL+"/api/prescriptions", analyzeRequest{Image: testImageB64})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["upstream_status"] != float64(http.StatusTooManyRequests) {
		t.Errorf("upstream_status = %v, want 429", body["upstream_status"])
	}
	if strings.Contains(fmt.Sprint(body), "secret upstream detail") {
		t.Error("upstream body leaked into the response")
	}
}

func TestGetAndDelete(t *testing.T) {
	var calls int
	base := setupServer(t, &calls, cleanAnalysisScript...)
	created := analyzeImage(t, base)

	resp, err := http.Get(base + "/api/prescriptions/" + created.ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}
	sess := decodeBody[session.Session](t, resp)
	if len(sess.Analysis.Extraction.Medicines) != 1 {
		t.Errorf("Medicines = %v, want 1", sess.Analysis.Extraction.Medicines)
	}

	req, _ := http.NewRequest(http.MethodDelete, base+"/api/prescriptions/"+created.ID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", delResp.StatusCode)
	}

	resp, err = http.Get(base + "/api/prescriptions/" + created.ID)
	if err != nil {
		t.Fatalf("GET after delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestChatStreamsTokensAndPersistsHistory(t *testing.T) {
	var calls int
	script := append(append([]string{}, cleanAnalysisScript...),
		"Take it twice daily.")
	base := setupServer(t, &calls, script...)
	created := analyzeImage(t, base)

	resp := postJSON(t, base+"/api/prescriptions/"+created.ID+"/chat",
		chatRequest{Mode: "explain", Text: "How often should I take this?"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	var tokens []string
	var sawDone bool
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		switch frame.Type {
		case "token":
			tokens = append(tokens, frame.Content)
		case "done":
			sawDone = true
		}
	}
	if !sawDone {
		t.Error("no done event")
	}
	full := strings.Join(tokens, "")
	if !strings.HasPrefix(full, "Take it twice daily.") {
		t.Errorf("reply = %q, want model text first", full)
	}
	if !strings.HasSuffix(full, chat.Disclaimer) {
		t.Error("reply does not end with the disclaimer")
	}

	getResp, err := http.Get(base + "/api/prescriptions/" + created.ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	sess := decodeBody[session.Session](t, getResp)
	if len(sess.History) != 2 {
		t.Fatalf("History len = %d, want 2", len(sess.History))
	}
	if sess.History[0].Role != "user" || sess.History[1].Role != "assistant" {
		t.Errorf("history roles = %q/%q", sess.History[0].Role, sess.History[1].Role)
	}
}

func TestChatUnknownModeIs400(t *testing.T) {
	var calls int
	base := setupServer(t, &calls, cleanAnalysisScript...)
	created := analyzeImage(t, base)

	resp := postJSON(t, base+"/api/prescriptions/"+created.ID+"/chat",
		chatRequest{Mode: "diagnose", Text: "What do I have?"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if calls != 4 {
		t.Errorf("model calls = %d, want 4 (no chat call for bad mode)", calls)
	}
}

func TestResolveAddManualPersists(t *testing.T) {
	var calls int
	base := setupServer(t, &calls, cleanAnalysisScript...)
	created := analyzeImage(t, base)

	resp := postJSON(t, base+"/api/prescriptions/"+created.ID+"/resolve",
		resolveRequest{Action: "add_manual", Name: "Paracetamol", Type: "tablet"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d, want 200", resp.StatusCode)
	}
	res := decodeBody[analysis.Result](t, resp)
	if len(res.Extraction.Medicines) != 2 {
		t.Fatalf("Medicines = %d, want 2", len(res.Extraction.Medicines))
	}

	getResp, err := http.Get(base + "/api/prescriptions/" + created.ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	sess := decodeBody[session.Session](t, getResp)
	if len(sess.Analysis.Extraction.Medicines) != 2 {
		t.Error("manual medicine not persisted")
	}
}

func TestResolveUnknownActionIs400(t *testing.T) {
	var calls int
	base := setupServer(t, &calls, cleanAnalysisScript...)
	created := analyzeImage(t, base)

	resp := postJSON(t, base+"/api/prescriptions/"+created.ID+"/resolve",
		resolveRequest{Action: "merge"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestScheduleEndpoint(t *testing.T) {
	var calls int
	script := append(append([]string{}, cleanAnalysisScript...),
		`{"schedule": [{"medicine": "Amoxicillin 500mg", "morning": true, "night": true, "dosage": "500mg", "duration_days": 5}]}`)
	base := setupServer(t, &calls, script...)
	created := analyzeImage(t, base)

	resp := postJSON(t, base+"/api/prescriptions/"+created.ID+"/schedule", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("schedule status = %d, want 200", resp.StatusCode)
	}
	plan := decodeBody[schedule.Plan](t, resp)
	if len(plan.Schedule) != 1 || plan.Schedule[0].Medicine != "Amoxicillin 500mg" {
		t.Errorf("plan = %+v", plan)
	}
}

func TestHealthz(t *testing.T) {
	var calls int
	base := setupServer(t, &calls)
	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
