package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emiliopalmerini/mexp/internal/adapters/memory"
	"github.com/emiliopalmerini/mexp/internal/adapters/prometheus"
	"github.com/emiliopalmerini/mexp/internal/domain"
	"github.com/emiliopalmerini/mexp/internal/feed"
	"github.com/emiliopalmerini/mexp/internal/service"
)

type testEnv struct {
	server *Server
	broker *feed.Broker
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	broker := feed.NewBroker()
	svc := service.NewService(memory.NewExperimentRepository(), service.WithNotifier(broker))
	poller := feed.NewPoller(svc, broker, time.Hour, nil)

	opts = append([]Option{WithPoller(poller)}, opts...)
	return &testEnv{server: NewServer(svc, 0, opts...), broker: broker}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeExperiment(t *testing.T, rec *httptest.ResponseRecorder) domain.Experiment {
	t.Helper()

	var e domain.Experiment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()

	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func TestExperimentLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/experiments", `{
		"name": "work1",
		"description": "first run",
		"date_time_start": "2024-11-28T10:00:00.000+03:00",
		"time_points": [
			{"name": "point 1", "date_time": "2024-11-28T11:00:00.000+03:00"},
			{"name": "point 2", "date_time": "2024-11-28T12:00:00.000+03:00"}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeExperiment(t, rec)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/experiments/"+created.ID, rec.Header().Get("Location"))
	assert.Len(t, created.TimePoints, 2)

	rec = env.do(t, http.MethodPut, "/experiments/"+created.ID+"/time_points", `[
		{"name": "point 3", "date_time": "2024-11-28T13:00:00.000+03:00"},
		{"name": "point 4", "date_time": "2024-11-28T14:00:00.000+03:00"}
	]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/experiments/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeExperiment(t, rec)
	require.Len(t, got.TimePoints, 4)
	for i, name := range []string{"point 1", "point 2", "point 3", "point 4"} {
		assert.Equal(t, name, got.TimePoints[i].Name)
	}
	assert.Contains(t, rec.Body.String(), `"date_time_start":"2024-11-28T10:00:00.000+03:00"`)

	rec = env.do(t, http.MethodGet, "/experiments", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var all []domain.Experiment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, created.ID, all[0].ID)
}

func TestListExperiments_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/experiments", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "get", method: http.MethodGet, path: "/experiments/missing"},
		{name: "replace", method: http.MethodPut, path: "/experiments/missing", body: `{"name":"x"}`},
		{
			name:   "append",
			method: http.MethodPut,
			path:   "/experiments/missing/time_points",
			body:   `[{"name":"p","date_time":"2024-11-28T10:00:00.000Z"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)

			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, msgNotFound, decodeError(t, rec).Message)
		})
	}

	rec := env.do(t, http.MethodGet, "/experiments", "")
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()), "failed updates must not create records")
}

func TestCreateExperiment_Invalid(t *testing.T) {
	env := newTestEnv(t)
	long := strings.Repeat("d", domain.MaxDescriptionLength+1)

	rec := env.do(t, http.MethodPost, "/experiments", `{"description":"`+long+`","time_points":[{"name":"p"}]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, msgValidationFailed, body.Message)
	assert.Equal(t, "Name must not be empty", body.Errors["name"])
	assert.Equal(t, "Description should not exceed 255 characters", body.Errors["description"])
	assert.Contains(t, body.Errors, "time_points[0].date_time")
}

func TestMalformedJSON(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
		verb string
		body string
	}{
		{name: "create", verb: http.MethodPost, path: "/experiments", body: `{"name":`},
		{name: "bad timestamp", verb: http.MethodPost, path: "/experiments", body: `{"name":"n","date_time_start":"28/11/2024"}`},
		{name: "append expects array", verb: http.MethodPut, path: "/experiments/x/time_points", body: `{"name":"p"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.verb, tt.path, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.True(t, strings.HasPrefix(decodeError(t, rec).Message, msgInvalidInput), rec.Body.String())
		})
	}
}

func TestReplaceExperiment_KeepsID(t *testing.T) {
	env := newTestEnv(t)

	created := decodeExperiment(t, env.do(t, http.MethodPost, "/experiments", `{"name":"old"}`))

	rec := env.do(t, http.MethodPut, "/experiments/"+created.ID, `{"id":"other","name":"new","description":"changed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decodeExperiment(t, rec)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "new", got.Name)
	assert.Equal(t, "changed", got.Description)
}

func TestReplaceExperiment_WithoutStartKeepsStart(t *testing.T) {
	env := newTestEnv(t)

	created := decodeExperiment(t, env.do(t, http.MethodPost, "/experiments",
		`{"name":"a","date_time_start":"2024-11-28T10:00:00.000+03:00"}`))

	rec := env.do(t, http.MethodPut, "/experiments/"+created.ID, `{"name":"b"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"date_time_start":"2024-11-28T10:00:00.000+03:00"`)

	rec = env.do(t, http.MethodGet, "/experiments/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"b"`)
	assert.Contains(t, rec.Body.String(), `"date_time_start":"2024-11-28T10:00:00.000+03:00"`)
}

func TestAddExperiment_SubMillisecondInputMatchesStored(t *testing.T) {
	env := newTestEnv(t)

	created := decodeExperiment(t, env.do(t, http.MethodPost, "/experiments",
		`{"name":"a","date_time_start":"2024-11-28T10:00:00.123456789Z"}`))
	got := decodeExperiment(t, env.do(t, http.MethodGet, "/experiments/"+created.ID, ""))

	assert.True(t, created.StartTime.Equal(got.StartTime))
	assert.Equal(t, 123_000_000, got.StartTime.Nanosecond())
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/experiments", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))

	rec = env.do(t, http.MethodGet, "/experiments", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))
	assert.Equal(t, "ok", rec.Body.String())
}

// stubService returns fixed results for every call.
type stubService struct {
	err   error
	panic bool
}

func (s stubService) List(context.Context) ([]domain.Experiment, error) {
	if s.panic {
		panic("boom")
	}
	return nil, s.err
}

func (s stubService) Get(context.Context, string) (*domain.Experiment, error) {
	return nil, s.err
}

func (s stubService) Add(context.Context, domain.Experiment) (*domain.Experiment, error) {
	return nil, s.err
}

func (s stubService) Replace(context.Context, string, domain.Experiment) (*domain.Experiment, error) {
	return nil, s.err
}

func (s stubService) AppendTimePoints(context.Context, string, []domain.TimePoint) (*domain.Experiment, error) {
	return nil, s.err
}

func TestStorageErrorIs500(t *testing.T) {
	srv := NewServer(stubService{err: errors.New("connection refused")}, 0)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/experiments/abc", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestPanicRecovered(t *testing.T) {
	srv := NewServer(stubService{panic: true}, 0)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/experiments", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

func TestMetricsEndpoint(t *testing.T) {
	exp := prometheus.NewExporter()
	env := newTestEnv(t, WithMetricsHandler(exp.Handler()), WithRequestObserver(exp))

	env.do(t, http.MethodGet, "/experiments/missing", "")
	rec := env.do(t, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mexp_http_requests_total{code="404",method="GET",route="GET /experiments/{id}"} 1`)
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()

	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return ev
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func openStream(t *testing.T, ctx context.Context, url string, accept string) *bufio.Reader {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, contentTypeEventStream, resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

func TestStreamExperiments(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream := openStream(t, ctx, ts.URL+"/experiments/stream", "")

	first := readEvent(t, stream)
	assert.Equal(t, eventExperiments, first.name)
	assert.Equal(t, "[]", first.data)

	resp, err := http.Post(ts.URL+"/experiments", "application/json", strings.NewReader(`{"name":"streamed"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	second := readEvent(t, stream)
	assert.Equal(t, eventExperiments, second.name)

	var items []domain.Experiment
	require.NoError(t, json.Unmarshal([]byte(second.data), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "streamed", items[0].Name)
}

func TestListExperiments_AcceptEventStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream := openStream(t, ctx, ts.URL+"/experiments", "text/event-stream")

	ev := readEvent(t, stream)
	assert.Equal(t, eventExperiments, ev.name)
	assert.Equal(t, "[]", ev.data)
}
