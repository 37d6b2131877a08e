// Package session owns one in-flight generation stream at a time. It
// opens the connection, feeds response bytes through the sse decoder
// into a [quill.Accumulator], and guarantees a single terminal outcome
// (complete, error, or cancellation) per session.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/quillworks/quill"
)

const (
	generatePathFmt = "/documents/%s/generate"
	commandsPath    = "/commands"
)

// Client opens event-stream connections to the generation endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     quill.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger shared by the client and its sessions.
func WithLogger(l quill.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a [Client] for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		logger:     quill.NopLogger{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Request is a sealed interface over the two ways a stream can be
// opened. Both shapes share the identical decode pipeline downstream of
// byte receipt.
type Request interface {
	httpRequest(ctx context.Context, baseURL string) (*http.Request, error)
}

// GenerateRequest opens a stream for a document resource, with optional
// query parameters encoded into the connection target.
type GenerateRequest struct {
	DocumentID string
	Params     url.Values
}

func (r GenerateRequest) httpRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	target := baseURL + fmt.Sprintf(generatePathFmt, url.PathEscape(r.DocumentID))
	if len(r.Params) > 0 {
		target += "?" + r.Params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	return req, nil
}

// CommandRequest opens a stream for a command invocation, sending its
// parameters as a structured request body.
type CommandRequest struct {
	Command      string
	SelectedText string
	Context      string
	SectionID    string
}

type commandBody struct {
	Command      string `json:"command"`
	SelectedText string `json:"selected_text"`
	Context      string `json:"context"`
	SectionID    string `json:"section_id"`
}

func (r CommandRequest) httpRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	body, err := json.Marshal(commandBody{
		Command:      r.Command,
		SelectedText: r.SelectedText,
		Context:      r.Context,
		SectionID:    r.SectionID,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+commandsPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	return req, nil
}

// Interface compliance checks.
var (
	_ Request = GenerateRequest{}
	_ Request = CommandRequest{}
)

// open issues the request and returns the response body on success.
// Non-2xx responses are transport errors for the session.
func (c *Client) open(ctx context.Context, req Request) (io.ReadCloser, error) {
	httpReq, err := req.httpRequest(ctx, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}

	return resp.Body, nil
}

// errorBody is the JSON body the server returns on non-200 responses.
type errorBody struct {
	Error string `json:"error"`
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("session: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error == "" {
		return fmt.Errorf("session: HTTP %d: %s", resp.StatusCode, string(body))
	}
	return fmt.Errorf("session: HTTP %d: %s", resp.StatusCode, eb.Error)
}
