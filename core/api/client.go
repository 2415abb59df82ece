package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/koscakluka/ema-discuss/core/dialog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to the dialog backend over HTTP. It holds no session state;
// every call names the session it acts on.
type Client struct {
	baseURL *url.URL

	// httpClient serves request/response calls, streamClient serves event
	// streams and therefore has no overall timeout.
	httpClient   *http.Client
	streamClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces both underlying HTTP clients.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
		c.streamClient = httpClient
	}
}

// WithRequestTimeout bounds start, intervene, pause, delete and state calls.
// Streams are not affected.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		copied := *c.httpClient
		copied.Timeout = timeout
		c.httpClient = &copied
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", baseURL)
	}

	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
			return operationName + " " + request.URL.Path
		}),
	)

	c := &Client{
		baseURL:      parsed,
		httpClient:   &http.Client{Transport: transport, Timeout: defaultRequestTimeout},
		streamClient: &http.Client{Transport: transport},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// StartSession creates a session for cfg and returns its id.
//
// A rejected config yields a [dialog.ValidationError], any other failure a
// [dialog.TransportError].
func (c *Client) StartSession(ctx context.Context, cfg dialog.Config) (string, error) {
	ctx, span := tracer.Start(ctx, "start dialog session")
	defer span.End()
	span.SetAttributes(attribute.Int("request.max_turns", cfg.MaxTurns))

	wireConfig, err := toDialogConfig(cfg)
	if err != nil {
		err = fmt.Errorf("error converting config: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var response startResponse
	if err := c.doJSON(ctx, "start", http.MethodPost, "/api/dialog/start", startRequest{Config: wireConfig}, &response); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if response.SessionID == "" {
		err := &dialog.TransportError{Op: "start", Err: errors.New("response did not contain a session id")}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.String("response.session_id", response.SessionID))
	return response.SessionID, nil
}

// Intervene injects a moderator message into the session.
func (c *Client) Intervene(ctx context.Context, sessionID string, message string) (dialog.InterventionResult, error) {
	ctx, span := tracer.Start(ctx, "intervene in dialog session")
	defer span.End()
	span.SetAttributes(attribute.String("request.session_id", sessionID))

	var response interveneResponse
	if err := c.doJSON(ctx, "intervene", http.MethodPost, sessionPath(sessionID, "intervene"), interveneRequest{Message: message}, &response); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dialog.InterventionResult{}, err
	}

	result := dialog.InterventionResult{Continued: response.Continued}
	if response.Continued && response.MaxTurns != nil {
		result.MaxTurns = response.MaxTurns
		span.SetAttributes(attribute.Int("response.max_turns", *response.MaxTurns))
	}
	span.SetAttributes(attribute.Bool("response.continued", result.Continued))
	return result, nil
}

// TogglePause flips the session's pause state and returns the state the
// server reports.
func (c *Client) TogglePause(ctx context.Context, sessionID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "toggle dialog pause")
	defer span.End()
	span.SetAttributes(attribute.String("request.session_id", sessionID))

	var response pauseResponse
	if err := c.doJSON(ctx, "pause", http.MethodPost, sessionPath(sessionID, "pause"), nil, &response); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	span.SetAttributes(attribute.Bool("response.paused", response.Paused))
	return response.Paused, nil
}

// DeleteSession removes the session. Deleting an unknown or already
// finished session is not an error.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "delete dialog session")
	defer span.End()
	span.SetAttributes(attribute.String("request.session_id", sessionID))

	err := c.doJSON(ctx, "delete", http.MethodDelete, sessionPath(sessionID), nil, nil)
	var transportErr *dialog.TransportError
	if errors.As(err, &transportErr) && transportErr.StatusCode == http.StatusNotFound {
		span.AddEvent("session already gone")
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// SessionState fetches the backend's view of the session.
func (c *Client) SessionState(ctx context.Context, sessionID string) (dialog.State, error) {
	ctx, span := tracer.Start(ctx, "get dialog session state")
	defer span.End()
	span.SetAttributes(attribute.String("request.session_id", sessionID))

	var response stateResponse
	if err := c.doJSON(ctx, "state", http.MethodGet, sessionPath(sessionID, "state"), nil, &response); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dialog.State{}, err
	}

	return response.toState(), nil
}

func (c *Client) doJSON(ctx context.Context, op string, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		requestBodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshalling JSON: %w", err)
		}
		reader = bytes.NewReader(requestBodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &dialog.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &dialog.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("error unmarshalling JSON: %w", err)}
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.JoinPath(path).String()
}

func sessionPath(sessionID string, segments ...string) string {
	return "/api/dialog/" + sessionID + strings.Join(append([]string{""}, segments...), "/")
}

// responseError maps a non-2xx response. Rejected start requests are the
// operator's to fix and become validation errors.
func responseError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var body errorResponse
	detail := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil {
		if message := body.message(); message != "" {
			detail = message
		}
	}
	if detail == "" {
		detail = resp.Status
	}

	if op == "start" && resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &dialog.ValidationError{Field: body.field(), Reason: detail}
	}

	return &dialog.TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(detail)}
}
