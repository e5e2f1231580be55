// internal/piston/client.go
package piston

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jason-s-yu/codincod/internal/models"
)

// Error is returned for any failure talking to the execution service: transport
// errors, non-2xx answers and undecodable bodies. The judge treats it as transient.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return "piston: " + e.Message
	}
	return fmt.Sprintf("piston: status %d: %s", e.Status, e.Message)
}

// Client talks to a Piston compatible execution service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for baseURL, e.g. "http://localhost:2000/api/v2".
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type file struct {
	Content string `json:"content"`
}

type executeRequest struct {
	Language   string `json:"language"`
	Version    string `json:"version"`
	Files      []file `json:"files"`
	Stdin      string `json:"stdin"`
	RunTimeout int64  `json:"run_timeout,omitempty"`
}

type stage struct {
	Stdout string  `json:"stdout"`
	Stderr string  `json:"stderr"`
	Output string  `json:"output"`
	Code   *int    `json:"code"`
	Signal *string `json:"signal"`
}

type executeResponse struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Run      stage  `json:"run"`
	Compile  *stage `json:"compile,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Execute runs code once with stdin and returns the program's stdout. A run that
// fails to compile or crashes still succeeds here; its output simply won't match.
func (c *Client) Execute(ctx context.Context, lang models.Language, code, stdin string, runTimeout time.Duration) (string, error) {
	body, err := json.Marshal(executeRequest{
		Language:   lang.Name,
		Version:    lang.Version,
		Files:      []file{{Content: code}},
		Stdin:      stdin,
		RunTimeout: runTimeout.Milliseconds(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal execute request: %w", err)
	}

	var resp executeResponse
	if err := c.do(ctx, http.MethodPost, "/execute", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if resp.Compile != nil && resp.Compile.Code != nil && *resp.Compile.Code != 0 {
		return resp.Compile.Output, nil
	}
	return resp.Run.Stdout, nil
}

type runtime struct {
	Language string   `json:"language"`
	Version  string   `json:"version"`
	Aliases  []string `json:"aliases"`
	Runtime  string   `json:"runtime,omitempty"`
}

// Runtimes lists every language the service has installed.
func (c *Client) Runtimes(ctx context.Context) ([]models.Language, error) {
	var rts []runtime
	if err := c.do(ctx, http.MethodGet, "/runtimes", nil, &rts); err != nil {
		return nil, err
	}
	langs := make([]models.Language, 0, len(rts))
	for _, rt := range rts {
		if rt.Language == "" || rt.Version == "" {
			return nil, &Error{Message: "wrong runtimes response: empty language or version"}
		}
		aliases := rt.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		langs = append(langs, models.Language{
			Name:    rt.Language,
			Version: rt.Version,
			Aliases: aliases,
			Runtime: rt.Runtime,
		})
	}
	return langs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build piston request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Message: err.Error()}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return &Error{Status: res.StatusCode, Message: err.Error()}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &msg) != nil || msg.Message == "" {
			msg.Message = http.StatusText(res.StatusCode)
		}
		return &Error{Status: res.StatusCode, Message: msg.Message}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Status: res.StatusCode, Message: "undecodable response: " + err.Error()}
	}
	return nil
}
