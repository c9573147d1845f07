package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/shikibetsu/internal/intent"
	"github.com/hyperjump/shikibetsu/internal/models"
	"github.com/hyperjump/shikibetsu/internal/server"
)

// remoteBackend talks to a running shikibetsu server.
type remoteBackend struct {
	base   string
	client *http.Client
}

func newRemoteBackend(serverURL string) *remoteBackend {
	return &remoteBackend{
		base:   strings.TrimRight(serverURL, "/"),
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// do sends body as JSON and decodes a successful response into out.
func (b *remoteBackend) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// responseError turns an error response back into the matching sentinel where one exists.
func responseError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var e struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(b))
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	var sentinel error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		sentinel = models.ErrInvalidArgument
	case http.StatusNotFound:
		sentinel = models.ErrNotFound
	case http.StatusConflict:
		sentinel = models.ErrDuplicateExample
	case http.StatusUnprocessableEntity:
		sentinel = models.ErrUnknownIntent
	}
	if sentinel != nil {
		return fmt.Errorf("server returned %d: %w (%s)", resp.StatusCode, sentinel, msg)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
}

func (b *remoteBackend) Add(ctx context.Context, in models.ExampleInput, existOK bool) (bool, error) {
	var out struct {
		Status string `json:"status"`
	}
	err := b.do(ctx, http.MethodPost, "/api/v1/examples", server.AddRequest{Text: in.Text, Label: in.Label, ExistOK: existOK}, &out)
	if err != nil {
		return false, err
	}
	return out.Status == "added", nil
}

func (b *remoteBackend) AddBatch(ctx context.Context, inputs []models.ExampleInput, existOK bool) (int, error) {
	var out struct {
		Added int `json:"added"`
	}
	if err := b.do(ctx, http.MethodPost, "/api/v1/examples/batch", server.BatchRequest{Examples: inputs, ExistOK: existOK}, &out); err != nil {
		return 0, err
	}
	return out.Added, nil
}

func (b *remoteBackend) Remove(ctx context.Context, key models.Key) error {
	return b.do(ctx, http.MethodDelete, "/api/v1/examples", key, nil)
}

func (b *remoteBackend) Clear(ctx context.Context) error {
	return b.do(ctx, http.MethodPost, "/api/v1/examples/clear", nil, nil)
}

func (b *remoteBackend) Recognize(ctx context.Context, text string, opts intent.Options) (*models.Decision, error) {
	var d models.Decision
	req := server.RecognizeRequest{Text: text, Detail: opts.Detail, Candidates: opts.Candidates, Voting: string(opts.Voting)}
	if err := b.do(ctx, http.MethodPost, "/api/v1/recognize", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (b *remoteBackend) Examples(ctx context.Context, q server.ListQuery) ([]server.ExampleView, int, error) {
	params := url.Values{}
	if q.Query != "" {
		params.Set("q", q.Query)
	}
	if q.Label != "" {
		params.Set("label", q.Label)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Fuzzy {
		params.Set("fuzzy", "true")
	}
	path := "/api/v1/examples"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var out struct {
		Examples []server.ExampleView `json:"examples"`
		Total    int                  `json:"total"`
	}
	if err := b.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Examples, out.Total, nil
}

func (b *remoteBackend) Status(ctx context.Context) (*server.StatusResponse, error) {
	var st server.StatusResponse
	if err := b.do(ctx, http.MethodGet, "/api/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (b *remoteBackend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
