package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/crypto"
	"github.com/alanyoungcy/nftmarket/internal/genesis"
)

// apiClient talks to the node's HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// do sends in as JSON (when non-nil) and decodes the response into out.
// Non-2xx responses are returned as errors carrying the server message.
func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("api: %s %s: %d %s", method, path, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("api: %s %s: %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func (c *apiClient) nonce(ctx context.Context, addr common.Address) (uint64, error) {
	var acct struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/accounts/"+addr.Hex(), nil, &acct); err != nil {
		return 0, err
	}
	return acct.Nonce, nil
}

func (c *apiClient) deployments(ctx context.Context) (genesis.Deployments, error) {
	var d genesis.Deployments
	err := c.do(ctx, http.MethodGet, "/api/deployments", nil, &d)
	return d, err
}

func (c *apiClient) submit(ctx context.Context, env *crypto.CallEnvelope) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/tx", env, &out); err != nil {
		return nil, err
	}
	return out, nil
}
