package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deskline/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const defaultTimeout = 15 * time.Second

// HTTPGateway talks JSON over HTTP with a bearer credential. Calls fail
// fast; whether a failure is worth retrying is encoded in the returned
// error via ErrPermanent.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	logger  *zerolog.Logger
}

// apiResponse is the server envelope shared by every endpoint.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewHTTP builds a gateway around the given base URL. The token source
// comes from the external authentication module; a static token works for
// tests and simple deployments.
func NewHTTP(baseURL string, source oauth2.TokenSource, timeout time.Duration, logger *zerolog.Logger) *HTTPGateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := oauth2.NewClient(context.Background(), source)
	client.Timeout = timeout

	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// StaticToken adapts a raw bearer token into an oauth2 token source.
func StaticToken(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

func (g *HTTPGateway) SendMessage(ctx context.Context, ticketID int64, body string, quotedMessageID int64) (models.CachedMessage, error) {
	payload := map[string]any{"body": body}
	if quotedMessageID != 0 {
		payload["quoted_message_id"] = quotedMessageID
	}

	var msg models.CachedMessage
	err := g.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/tickets/%d/messages", ticketID), payload, &msg)
	return msg, err
}

func (g *HTTPGateway) UpdateTicket(ctx context.Context, ticketID int64, patch models.TicketPatch) (models.CachedTicket, error) {
	var ticket models.CachedTicket
	err := g.do(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/tickets/%d", ticketID), patch, &ticket)
	return ticket, err
}

func (g *HTTPGateway) SendMedia(ctx context.Context, ticketID int64, payload models.MediaUploadPayload) (models.CachedMessage, error) {
	var msg models.CachedMessage
	err := g.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/tickets/%d/media", ticketID), payload, &msg)
	return msg, err
}

func (g *HTTPGateway) ListTickets(ctx context.Context) ([]models.CachedTicket, error) {
	var tickets []models.CachedTicket
	err := g.do(ctx, http.MethodGet, "/api/v1/tickets", nil, &tickets)
	return tickets, err
}

func (g *HTTPGateway) ListMessages(ctx context.Context, ticketID int64) ([]models.CachedMessage, error) {
	var messages []models.CachedMessage
	err := g.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/tickets/%d/messages", ticketID), nil, &messages)
	return messages, err
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, payload, out any) error {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Permanent(fmt.Errorf("encode request: %w", err))
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return Permanent(fmt.Errorf("build request: %w", err))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		// Connectivity loss, DNS failure, timeout: all retryable.
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return g.statusError(method, path, resp.StatusCode, raw)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !envelope.Success {
		message := "request rejected"
		if envelope.Error != nil {
			message = envelope.Error.Message
		}
		return Permanent(fmt.Errorf("%s %s: %s", method, path, message))
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

// statusError classifies an HTTP failure. Server errors and throttling are
// retryable; every remaining client error is permanent.
func (g *HTTPGateway) statusError(method, path string, status int, raw []byte) error {
	message := strings.TrimSpace(string(raw))
	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		message = envelope.Error.Message
	}

	err := fmt.Errorf("%s %s: status %d: %s", method, path, status, message)
	if status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return err
	}
	g.logger.Debug().Int("status", status).Str("path", path).Msg("Non-retryable gateway response")
	return Permanent(err)
}
