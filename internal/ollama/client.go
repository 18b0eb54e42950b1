// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://127.0.0.1:11434"
	defaultTimeout = 30 * time.Second

	// maxLine bounds one NDJSON line; tool calls arrive in a single line.
	maxLine = 1 << 20
)

// Config locates the daemon.
type Config struct {
	BaseURL string
	// Timeout applies to Ping only. Streams end with their context.
	Timeout time.Duration
}

// Client talks to a local Ollama daemon. It is safe for concurrent use.
type Client struct {
	baseURL string
	ping    *http.Client
	stream  *http.Client
}

// New returns a client for cfg, filling unset fields with defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		ping:    &http.Client{Timeout: cfg.Timeout},
		stream:  &http.Client{},
	}
}

// Ping checks that the daemon answers on its root endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return protocolError("build ping request", err)
	}
	resp, err := c.ping.Do(req)
	if err != nil {
		return dialError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindUnreachable, Msg: "ollama answered " + resp.Status}
	}
	return nil
}

// chat posts req and hands each streamed line to fn in order. It returns
// after the done line, or with the first error from the transport, the
// daemon or fn.
func (c *Client) chat(ctx context.Context, req chatRequest, fn func(chatLine) error) error {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return protocolError("encode chat request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return protocolError("build chat request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return dialError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &Error{Kind: KindModelMissing, Msg: "model " + req.Model + " not found"}
	case resp.StatusCode != http.StatusOK:
		var failure struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&failure) == nil && failure.Error != "" {
			return protocolError(failure.Error, nil)
		}
		return protocolError("chat answered "+resp.Status, nil)
	}

	return readLines(ctx, resp.Body, fn)
}

// readLines decodes NDJSON from r. Blank and undecodable lines are
// skipped. A stream that ends before its done line is an error.
func readLines(ctx context.Context, r io.Reader, fn func(chatLine) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return dialError(err)
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line chatLine
		if json.Unmarshal(raw, &line) != nil {
			continue
		}
		if line.Error != "" {
			return protocolError(line.Error, nil)
		}
		if err := fn(line); err != nil {
			return err
		}
		if line.Done {
			return nil
		}
	}

	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return dialError(ctx.Err())
		}
		return protocolError("read chat stream", err)
	}
	if err := ctx.Err(); err != nil {
		return dialError(err)
	}
	return protocolError("chat stream ended early", io.ErrUnexpectedEOF)
}
