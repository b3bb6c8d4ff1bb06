package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/edimap/pkg/domain/flow"
	"github.com/felixgeelhaar/edimap/pkg/domain/grid"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/google/uuid"
)

// RequestIDHeader carries a fresh id on every call for server-side correlation.
const RequestIDHeader = "X-Request-ID"

// Client is a typed Go client for the mapping server. It is safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	timeout  time.Duration
	retryCfg retry.Config
	logger   *slog.Logger
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    o.httpClient,
		timeout: o.timeout,
		retryCfg: retry.Config{
			MaxAttempts:   o.maxAttempts,
			InitialDelay:  o.initialDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
		logger: o.logger,
	}
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// --- Session lifecycle ---

// Upload submits the flow's documents and returns the new session id.
func (c *Client) Upload(ctx context.Context, kind flow.Kind, docs []Document) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, d := range docs {
		part, err := mw.CreateFormFile(string(d.Slot), d.Name)
		if err != nil {
			return nil, fmt.Errorf("upload: %w", err)
		}
		if _, err := io.Copy(part, d.Body); err != nil {
			return nil, fmt.Errorf("upload: read %s: %w", d.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	payload := buf.Bytes()

	body, err := call(ctx, c, false, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, "upload", http.MethodPost, c.path("api", kind.String(), "upload"), mw.FormDataContentType(), payload)
	})
	if err != nil {
		return nil, err
	}
	var res UploadResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("upload: %w: %v", ErrInvalidPayload, err)
	}
	if res.SessionID == "" {
		return nil, ErrNoSessionID
	}
	return &res, nil
}

// Generate runs server-side generation for a session.
func (c *Client) Generate(ctx context.Context, kind flow.Kind, sessionID string) (*Mapping, error) {
	body, err := call(ctx, c, false, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, "generate", http.MethodPost, c.path("api", kind.String(), "generate", sessionID), "", nil)
	})
	if err != nil {
		return nil, err
	}
	m, err := decodeMapping(body)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return m, nil
}

// FetchMapping returns the server's canonical grid and metadata.
func (c *Client) FetchMapping(ctx context.Context, sessionID string) (*Mapping, error) {
	body, err := call(ctx, c, true, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, "fetch mapping", http.MethodGet, c.path("api", "mappings", sessionID), "", nil)
	})
	if err != nil {
		return nil, err
	}
	m, err := decodeMapping(body)
	if err != nil {
		return nil, fmt.Errorf("fetch mapping: %w", err)
	}
	return m, nil
}

// UpdateCell persists a single cell edit.
func (c *Client) UpdateCell(ctx context.Context, sessionID string, edit CellUpdate) error {
	payload, err := json.Marshal(edit)
	if err != nil {
		return fmt.Errorf("update cell: %w", err)
	}
	_, err = call(ctx, c, false, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, "update cell", http.MethodPost, c.path("api", "mappings", sessionID, "update"), "application/json", payload)
	})
	return err
}

// Persister binds UpdateCell to one session for the grid engine.
func (c *Client) Persister(sessionID string) grid.Persister {
	return cellPersister{client: c, sessionID: sessionID}
}

type cellPersister struct {
	client    *Client
	sessionID string
}

func (p cellPersister) PersistCell(ctx context.Context, edit grid.Edit) error {
	return p.client.UpdateCell(ctx, p.sessionID, edit)
}

// Download fetches the session's spreadsheet export and writes it to w.
func (c *Client) Download(ctx context.Context, sessionID string, w io.Writer) (*DownloadResult, error) {
	type download struct {
		body   []byte
		header http.Header
	}
	res, err := call(ctx, c, true, func(ctx context.Context) (download, error) {
		resp, err := c.do(ctx, "download", http.MethodGet, c.path("api", "download", sessionID), "", nil)
		if err != nil {
			return download{}, err
		}
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return download{}, fmt.Errorf("download: read body: %w", err)
		}
		return download{body: body, header: resp.Header}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(res.body) == 0 {
		return nil, ErrNoContent
	}
	n, err := w.Write(res.body)
	if err != nil {
		return nil, fmt.Errorf("download: write: %w", err)
	}
	return &DownloadResult{
		Filename:    attachmentName(res.header.Get("Content-Disposition")),
		ContentType: res.header.Get("Content-Type"),
		Size:        int64(n),
	}, nil
}

// Chat posts query and hands every body chunk to onChunk as it arrives.
// The stream has no client-side timeout; cancel ctx to abandon it.
func (c *Client) Chat(ctx context.Context, sessionID, query string, onChunk func([]byte)) error {
	payload, err := json.Marshal(ChatRequest{Query: query})
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	resp, err := c.do(ctx, "chat", http.MethodPost, c.path("api", "chat", sessionID), "application/json", payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			onChunk(append([]byte(nil), buf[:n]...))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("chat: read stream: %w", err)
		}
	}
}

// --- transport ---

// call runs fn under the configured timeout. Idempotent calls are retried
// when retry is enabled.
func call[T any](ctx context.Context, c *Client, idempotent bool, fn func(context.Context) (T, error)) (T, error) {
	run := fn
	if idempotent && c.retryCfg.MaxAttempts > 1 {
		r := retry.New[T](c.retryCfg)
		run = func(ctx context.Context) (T, error) {
			return r.Do(ctx, fn)
		}
	}
	if c.timeout <= 0 {
		return run(ctx)
	}
	t := timeout.New[T](timeout.Config{DefaultTimeout: c.timeout})
	return t.Execute(ctx, c.timeout, run)
}

// send performs a request and returns the full body of a 2xx response.
func (c *Client) send(ctx context.Context, op, method, target, contentType string, payload []byte) ([]byte, error) {
	resp, err := c.do(ctx, op, method, target, contentType, payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}
	return body, nil
}

// do issues the request. Non-2xx responses are consumed and returned as *APIError.
func (c *Client) do(ctx context.Context, op, method, target, contentType string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	requestID := uuid.New().String()
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("api request failed", "op", op, "request_id", requestID, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("api request",
		"op", op,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &APIError{Op: op, Status: resp.StatusCode, Detail: parseDetail(data)}
	}
	return resp, nil
}

func (c *Client) path(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

func attachmentName(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
