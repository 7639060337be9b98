package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/semanticallynull/rentaldesk-backend/api"
	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/events"
	"github.com/semanticallynull/rentaldesk-backend/handover"
	"github.com/semanticallynull/rentaldesk-backend/internal/o11y"
	"github.com/semanticallynull/rentaldesk-backend/internal/querycache"
	"github.com/semanticallynull/rentaldesk-backend/lifecycle"
	"github.com/semanticallynull/rentaldesk-backend/recents"
	"github.com/semanticallynull/rentaldesk-backend/registration"
	"github.com/semanticallynull/rentaldesk-backend/rentalapi"
	"github.com/semanticallynull/rentaldesk-backend/reservation"
)

// now is the wall clock of every test server; the upstream agrees on the date.
var now = time.Date(2024, 6, 20, 10, 0, 0, 0, time.UTC)

type TestServer struct {
	Router   *gin.Engine
	API      *api.API
	Upstream *FakeUpstream
	Events   *recordingChannel
	Registry *prometheus.Registry
}

func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	gin.SetMode(gin.TestMode)

	upstream := NewFakeUpstream(t, calendar.Of(now))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client := rentalapi.New(upstream.URL(), 5*time.Second, logger)

	ch := &recordingChannel{}
	hooks := []lifecycle.PostSaveHook{
		registration.NewHook(client, logger),
		events.NewPublisher(ch, "rentaldesk.test", logger),
	}

	hs, err := handover.NewService(client, 1, logger)
	if err != nil {
		t.Fatalf("failed to create handover service: %v", err)
	}

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	obs := &o11y.Observability{
		Logger:   logger,
		Tracer:   tp,
		Registry: prometheus.NewRegistry(),
	}

	a, err := api.New(client, hs, recents.NewService(recents.NewMemoryStore()), querycache.New(time.Minute), hooks, obs, api.Config{
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("failed to create api: %v", err)
	}

	return &TestServer{
		Router:   a.Router(),
		API:      a,
		Upstream: upstream,
		Events:   ch,
		Registry: obs.Registry,
	}
}

// recordingChannel stands in for the broker and keeps the routing keys.
type recordingChannel struct {
	mu   sync.Mutex
	keys []string
}

func (c *recordingChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, _ amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	return nil
}

func (c *recordingChannel) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.keys...)
}

func userHeaders(userID string) map[string]string {
	return map[string]string{"X-User-ID": userID}
}

// Helper methods for making requests
func (ts *TestServer) GET(path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) POST(path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) DELETE(path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodDelete, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

type upload struct {
	Field    string
	FileName string
	Data     []byte
}

// POSTMultipart sends fields and files as multipart/form-data.
func (ts *TestServer) POSTMultipart(t *testing.T, path string, fields map[string]string, files []upload, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field %s: %v", k, err)
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.Field, f.FileName)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		fw.Write(f.Data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

type notification struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type sessionResponse struct {
	ID            string             `json:"id"`
	State         lifecycle.State    `json:"state"`
	Form          *reservation.Form  `json:"form"`
	Outcome       *lifecycle.Outcome `json:"outcome"`
	Notifications []notification     `json:"notifications"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to unmarshal response: %v: %s", err, w.Body.String())
	}
	return out
}

// OpenSession opens a booking form, editing reservationID when it is not 0.
func (ts *TestServer) OpenSession(t *testing.T, userID string, reservationID int64) sessionResponse {
	t.Helper()

	var body interface{}
	if reservationID != 0 {
		body = map[string]int64{"reservationId": reservationID}
	}
	w := ts.POST("/sessions", body, userHeaders(userID))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	return decode[sessionResponse](t, w)
}

func hasNotification(resp sessionResponse, level string) bool {
	for _, n := range resp.Notifications {
		if n.Level == level {
			return true
		}
	}
	return false
}

func day(t *testing.T, s string) calendar.Date {
	t.Helper()
	d, err := calendar.Parse(s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

func datePtr(t *testing.T, s string) *calendar.Date {
	t.Helper()
	return calendar.Ptr(day(t, s))
}

func intPtr(i int) *int { return &i }
