package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trackjudge/internal/domain"
	"github.com/kailas-cloud/trackjudge/internal/repository/submissionlog"
	healthuc "github.com/kailas-cloud/trackjudge/internal/usecase/health"
	judgeuc "github.com/kailas-cloud/trackjudge/internal/usecase/judge"
	scoringuc "github.com/kailas-cloud/trackjudge/internal/usecase/scoring"
)

// --- Mocks ---

type mockCapability struct {
	mu    sync.Mutex
	raw   string
	err   error
	calls int
}

func (m *mockCapability) Invoke(context.Context, string, []domain.Message) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return json.RawMessage(m.raw), nil
}

func (m *mockCapability) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockChecker struct{ err error }

func (m *mockChecker) HealthCheck(context.Context) error { return m.err }

// stepClock advances one millisecond per reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type testEnv struct {
	agent   *mockCapability
	log     *submissionlog.Log
	checker *mockChecker
	handler http.Handler
}

func newTestEnv(t *testing.T, agent *mockCapability) *testEnv {
	t.Helper()

	log := submissionlog.New()
	adapter := judgeuc.New(agent, "system prompt", zap.NewNop())
	scoring := scoringuc.New(adapter, log).WithClock(&stepClock{now: time.UnixMilli(1700000000000)})
	checker := &mockChecker{}
	health := healthuc.New(checker, "test")

	r := chi.NewRouter()
	NewServer(scoring, health, zap.NewNop()).WithMaxBodyBytes(4096).Register(r)

	return &testEnv{agent: agent, log: log, checker: checker, handler: r}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

const breatheBody = `{"query":{"track":"Breathe","album":"Dark Side of the Moon","artist":"Pink Floyd"},` +
	`"track":{"filename":"breathe.flac","username":"peerA","size":30000000}}`

// --- Tests ---

func TestGreet(t *testing.T) {
	env := newTestEnv(t, &mockCapability{})

	rec := env.do(http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != Greeting {
		t.Errorf("body = %q, want %q", rec.Body.String(), Greeting)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
}

func TestScore_Success(t *testing.T) {
	env := newTestEnv(t, &mockCapability{raw: `{"score":0.92}`})

	rec := env.do(http.MethodPost, "/score", breatheBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := domain.Response{
		Track: domain.DownloadableFile{Filename: "breathe.flac", Username: "peerA", Size: 30000000},
		Score: 0.92,
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}

	entries := env.log.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Payload != breatheBody {
		t.Errorf("logged payload = %s", entries[0].Payload)
	}
}

func TestScore_MalformedSubmission(t *testing.T) {
	env := newTestEnv(t, &mockCapability{raw: `{"score":0.5}`})

	for _, body := range []string{
		`{"query":{"track":"a","album":"b","artist":"c"}}`,
		`not json`,
		``,
	} {
		rec := env.do(http.MethodPost, "/score", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
			continue
		}
		if resp := decodeError(t, rec); resp.Code != ErrorCodeBadRequest {
			t.Errorf("body %q: code = %q", body, resp.Code)
		}
	}

	if env.agent.callCount() != 0 {
		t.Errorf("judge must not be invoked for malformed input, got %d calls", env.agent.callCount())
	}
	if env.log.Len() != 0 {
		t.Errorf("log must stay empty, got %d entries", env.log.Len())
	}
}

func TestScore_JudgeFailures(t *testing.T) {
	tests := []struct {
		name  string
		agent *mockCapability
		code  ErrorCode
	}{
		{"score out of range", &mockCapability{raw: `{"score":1.7}`}, ErrorCodeMalformedJudgeOutput},
		{"missing score", &mockCapability{raw: `{"verdict":"good"}`}, ErrorCodeMalformedJudgeOutput},
		{"transport failure", &mockCapability{err: errors.New("dial tcp: refused")}, ErrorCodeJudgeUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, tc.agent)

			rec := env.do(http.MethodPost, "/score", breatheBody)
			if rec.Code != http.StatusBadGateway {
				t.Fatalf("expected 502, got %d", rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Code != tc.code {
				t.Errorf("code = %q, want %q", resp.Code, tc.code)
			}
			if strings.Contains(resp.Message, "refused") {
				t.Errorf("message leaks internals: %q", resp.Message)
			}
			if env.log.Len() != 0 {
				t.Errorf("failed request must not be logged, got %d entries", env.log.Len())
			}
		})
	}
}

func TestScore_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, &mockCapability{raw: `{"score":0.5}`})

	rec := env.do(http.MethodPost, "/score", `{"pad":"`+strings.Repeat("x", 5000)+`"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != ErrorCodePayloadTooLarge {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestListLog_Empty(t *testing.T) {
	env := newTestEnv(t, &mockCapability{})

	rec := env.do(http.MethodGet, "/score", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "{}" {
		t.Errorf("body = %q, want {}", got)
	}
}

func TestListLog_InsertionOrder(t *testing.T) {
	env := newTestEnv(t, &mockCapability{raw: `{"score":0.5}`})

	for _, name := range []string{"c.flac", "a.flac", "b.flac"} {
		body := strings.Replace(breatheBody, "breathe.flac", name, 1)
		if rec := env.do(http.MethodPost, "/score", body); rec.Code != http.StatusOK {
			t.Fatalf("score %s: %d", name, rec.Code)
		}
	}

	rec := env.do(http.MethodGet, "/score", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var log map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &log); err != nil {
		t.Fatalf("body is not a JSON object of strings: %v", err)
	}
	if len(log) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(log))
	}

	raw := rec.Body.String()
	ic, ia, ib := strings.Index(raw, "c.flac"), strings.Index(raw, "a.flac"), strings.Index(raw, "b.flac")
	if ic >= ia || ia >= ib {
		t.Errorf("entries out of insertion order: %s", raw)
	}

	for ts, payload := range log {
		if _, err := domain.ParseSubmission([]byte(payload)); err != nil {
			t.Errorf("entry %s does not hold a submission: %v", ts, err)
		}
	}
}

func TestListLog_Idempotent(t *testing.T) {
	env := newTestEnv(t, &mockCapability{raw: `{"score":0.5}`})
	env.do(http.MethodPost, "/score", breatheBody)

	first := env.do(http.MethodGet, "/score", "").Body.String()
	second := env.do(http.MethodGet, "/score", "").Body.String()
	if first != second {
		t.Errorf("consecutive reads differ:\n%s\n%s", first, second)
	}
	if env.agent.callCount() != 1 {
		t.Errorf("reads must not invoke the judge, got %d calls", env.agent.callCount())
	}
}

func TestGetLogEntry(t *testing.T) {
	env := newTestEnv(t, &mockCapability{raw: `{"score":0.5}`})
	env.do(http.MethodPost, "/score", breatheBody)

	ts := env.log.Snapshot()[0].Timestamp

	rec := env.do(http.MethodGet, "/score/"+jsonNumber(ts), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got LogEntryResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(LogEntryResponse{Timestamp: ts, Submission: breatheBody}, got); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}

	rec = env.do(http.MethodGet, "/score/1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing entry: expected 404, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != ErrorCodeNotFound {
		t.Errorf("code = %q", resp.Code)
	}

	rec = env.do(http.MethodGet, "/score/yesterday", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-integer timestamp: expected 400, got %d", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, &mockCapability{})

	rec := env.do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Checks["judge"] != "ok" || resp.Version != "test" {
		t.Errorf("unexpected report %+v", resp)
	}

	env.checker.err = errors.New("401 unauthorized")
	rec = env.do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, &mockCapability{})

	rec := env.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestScore_ConcurrentRequests(t *testing.T) {
	env := newTestEnv(t, &mockCapability{raw: `{"score":0.5}`})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := env.do(http.MethodPost, "/score", breatheBody)
			if rec.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", rec.Code)
			}
		}()
	}
	wg.Wait()

	if env.log.Len() != 20 {
		t.Errorf("expected 20 distinct entries, got %d", env.log.Len())
	}
}

func TestEncodeLog(t *testing.T) {
	body, err := encodeLog([]submissionlog.Entry{
		{Timestamp: 2, Payload: `{"a":"<b>"}`},
		{Timestamp: 1, Payload: "plain"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(body, []byte(`{"2":`)) {
		t.Errorf("first key should be 2: %s", body)
	}

	var decoded map[string]string
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["2"] != `{"a":"<b>"}` || decoded["1"] != "plain" {
		t.Errorf("decoded = %v", decoded)
	}
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
