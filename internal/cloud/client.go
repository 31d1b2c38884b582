// Package cloud is the daemon's client for the sync server: full-snapshot
// upload and download, status, deletion, and public guest library lookups.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mhalvorsen/achievo/internal/apperror"
	"github.com/mhalvorsen/achievo/internal/model"
)

// Client talks to one sync server. The session token is provided per call —
// the daemon refreshes tokens independently of the client's lifetime.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			// Uploads of large libraries dominate; everything else
			// finishes in well under this.
			Timeout: 5 * time.Minute,
		},
	}
}

// Status fetches the account's remote aggregate state.
func (c *Client) Status(ctx context.Context, token string) (*model.SyncStatus, error) {
	var status model.SyncStatus
	if err := c.do(ctx, http.MethodGet, "/api/sync/status", token, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Download fetches the account's full remote snapshot.
func (c *Client) Download(ctx context.Context, token string) (*model.SyncBundle, error) {
	var bundle model.SyncBundle
	if err := c.do(ctx, http.MethodGet, "/api/sync/download", token, nil, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// Upload replaces the remote state with the bundle and returns the resulting
// status.
func (c *Client) Upload(ctx context.Context, token string, bundle *model.SyncBundle) (*model.SyncStatus, error) {
	var status model.SyncStatus
	if err := c.do(ctx, http.MethodPost, "/api/sync/upload", token, bundle, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Delete removes the account's remote data.
func (c *Client) Delete(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/api/sync/", token, nil, nil)
}

// GuestLibrary resolves a public handle on the sync server. No token; this
// is the one unauthenticated call.
func (c *Client) GuestLibrary(ctx context.Context, shortID string) (*model.GuestLibrary, error) {
	var lib model.GuestLibrary
	path := "/api/guest/" + url.PathEscape(shortID)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &lib); err != nil {
		return nil, err
	}
	return &lib, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("cloud: encoding request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("cloud: building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.Upstream(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return translateStatus(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Upstream(method+" "+path, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// translateStatus maps the server's error statuses back onto the domain
// taxonomy so callers handle remote and local failures the same way.
func translateStatus(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Field string `json:"field"`
	}
	// Best effort; an empty or non-JSON body just leaves the message blank.
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	if body.Error == "" {
		body.Error = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return apperror.Auth()
	case http.StatusForbidden:
		return apperror.Forbidden(body.Error)
	case http.StatusNotFound:
		return apperror.NotFound("resource", body.Error)
	case http.StatusBadRequest:
		return apperror.ValidationFailed(body.Field, body.Error)
	case http.StatusConflict:
		return apperror.Conflict("resource", body.Error)
	default:
		return apperror.Upstream("sync server", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body.Error))
	}
}
