package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"deskline/internal/cache"
	"deskline/internal/config"
	"deskline/internal/connectivity"
	"deskline/internal/events"
	"deskline/internal/gateway"
	"deskline/internal/kvstore"
	"deskline/internal/models"
	"deskline/internal/queue"
	"deskline/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	callback func(online bool)
}

func (p *stubProvider) Subscribe(callback func(online bool)) func() {
	p.callback = callback
	return func() { p.callback = nil }
}

type stubSyncer struct{}

func (s *stubSyncer) Trigger(ctx context.Context) {}
func (s *stubSyncer) Syncing() bool               { return false }

type stubGateway struct{}

func (g *stubGateway) SendMessage(ctx context.Context, ticketID int64, body string, quotedMessageID int64) (models.CachedMessage, error) {
	return models.CachedMessage{}, nil
}

func (g *stubGateway) UpdateTicket(ctx context.Context, ticketID int64, patch models.TicketPatch) (models.CachedTicket, error) {
	return models.CachedTicket{}, nil
}

func (g *stubGateway) SendMedia(ctx context.Context, ticketID int64, payload models.MediaUploadPayload) (models.CachedMessage, error) {
	return models.CachedMessage{}, nil
}

func (g *stubGateway) ListTickets(ctx context.Context) ([]models.CachedTicket, error) {
	return nil, nil
}

func (g *stubGateway) ListMessages(ctx context.Context, ticketID int64) ([]models.CachedMessage, error) {
	return nil, nil
}

var _ gateway.Gateway = (*stubGateway)(nil)

type fixture struct {
	srv      *HTTPServer
	offline  *service.Offline
	outbox   *queue.Outbox
	letters  *queue.DeadLetters
	provider *stubProvider
}

func newFixture(t *testing.T, cfg config.APIConfig) *fixture {
	t.Helper()

	logger := zerolog.Nop()
	kv, err := kvstore.Open("memory", "")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	cacheStore := cache.New(kv, &logger)
	outbox := queue.NewOutbox(kv, &logger)
	letters := queue.NewDeadLetters(nil, kv, &logger)

	provider := &stubProvider{}
	monitor := connectivity.NewMonitor(provider, events.NewBus(), &logger)
	monitor.Start()
	t.Cleanup(monitor.Stop)

	offline := service.NewOffline(cacheStore, outbox, letters, monitor, &stubSyncer{}, &stubGateway{}, &logger)
	srv := NewHTTPServer(cfg, offline, &logger)

	return &fixture{srv: srv, offline: offline, outbox: outbox, letters: letters, provider: provider}
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, config.APIConfig{Port: 8080})

	_, err := f.outbox.Enqueue(context.Background(), models.QueueMessage, models.MessagePayload{
		TicketID: 7, Body: "pending", TempID: "temp_abc",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["offline"])
	assert.Equal(t, false, body["syncing"])
	assert.Equal(t, float64(1), body["pending_count"])
}

func TestStatusReflectsConnectivity(t *testing.T) {
	f := newFixture(t, config.APIConfig{Port: 8080})
	f.provider.callback(true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["offline"])
}

func TestDeadLettersEndpoint(t *testing.T) {
	f := newFixture(t, config.APIConfig{Port: 8080})

	f.letters.Add(context.Background(), models.DeadLetter{
		Item: models.QueueItem{
			ID:      "dead-1",
			Type:    models.QueueMessage,
			Payload: models.MessagePayload{TicketID: 7, Body: "never made it", TempID: "temp_dead"},
		},
		Reason:   "gave up",
		Attempts: 3,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deadletters", nil)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count       int                 `json:"count"`
		DeadLetters []models.DeadLetter `json:"dead_letters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "dead-1", body.DeadLetters[0].Item.ID)
	assert.Equal(t, 3, body.DeadLetters[0].Attempts)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, config.APIConfig{Port: 8080})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	f := newFixture(t, config.APIConfig{Port: 8080, APIKey: "sekret"})

	t.Run("MissingKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("WrongKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		req.Header.Set("x-api-key", "nope")
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("ValidKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		req.Header.Set("x-api-key", "sekret")
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("HealthStaysOpen", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, config.APIConfig{
		Port:      8080,
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1},
	})

	first := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
