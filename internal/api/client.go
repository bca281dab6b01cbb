package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/alexxxstep/djwr-client/internal/credentials"
	"github.com/rs/zerolog/log"
)

// authExemptPaths are the endpoints where a 401 is a credential rejection
// rather than an expiry: renewal must not be attempted and the error
// propagates unchanged.
var authExemptPaths = []string{
	"auth/login/",
	"auth/register/",
	"auth/refresh/",
}

// Request describes one logical backend call.
type Request struct {
	Method string
	Path   string // relative to the client's base URL
	Query  url.Values
	Body   any // JSON-marshalled when non-nil

	// Header entries override the defaults built by the pipeline
	// (Content-Type in particular).
	Header http.Header
}

// Client executes logical requests against the backend: it attaches the
// bearer credential, dispatches, and on an authentication failure performs a
// one-shot silent renewal followed by exactly one retry.
type Client struct {
	base  *url.URL
	http  *http.Client
	creds *credentials.Store
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying transport client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.http = client
	}
}

// NewClient creates a pipeline for the backend rooted at baseURL (the fixed
// API base path, e.g. "http://localhost:8000/api").
func NewClient(baseURL string, creds *credentials.Store, opts ...ClientOption) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	c := &Client{
		base:  base,
		http:  http.DefaultClient,
		creds: creds,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Get issues a GET request, decoding a JSON response into out when non-nil.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, nil)
}

// Do executes one logical request. On a 401 from a non-auth endpoint it
// attempts a single silent renewal and, if that succeeds, resends the
// original request exactly once with the refreshed credential. A failed
// renewal clears the credential store and fails the call. The returned error,
// when non-nil, is always a *Error.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	payload, err := marshalBody(req.Body)
	if err != nil {
		return transportError(err)
	}

	resp, err := c.send(ctx, req, payload)
	if err != nil {
		return transportError(err)
	}

	if resp.StatusCode == http.StatusUnauthorized && !isAuthExempt(req.Path) {
		drain(resp)

		if !c.creds.Renew(ctx) {
			// Renewal failed or no refresh credential exists: the session is
			// over. Clearing also purges cached authenticated data.
			c.creds.Clear()
			return &Error{
				Kind:    KindAuthExpired,
				Status:  http.StatusUnauthorized,
				Message: "authentication required",
			}
		}

		// The retry rebuilds headers from scratch, picking up the renewed
		// credential. Whatever it returns is decoded as-is: there is no
		// second renewal attempt.
		resp, err = c.send(ctx, req, payload)
		if err != nil {
			return transportError(err)
		}
	}

	defer drain(resp)

	return c.decode(resp, req.Path, out)
}

func marshalBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("could not encode request body: %w", err)
	}

	return payload, nil
}

// send builds and dispatches the request. Headers are constructed here on
// every call so a retry after renewal never reuses a stale credential.
func (c *Client) send(ctx context.Context, req Request, payload []byte) (*http.Response, error) {
	u := c.base.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if token, ok := c.creds.Access(); ok {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	for name, values := range req.Header {
		httpReq.Header[name] = values
	}

	return c.http.Do(httpReq)
}

// decode inspects the response's declared content type: structured JSON is
// parsed (a parse failure yields an absent body, not a hard error), anything
// else is treated as opaque text.
func (c *Client) decode(resp *http.Response, path string, out any) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}

	isJSON := declaresJSON(resp.Header.Get("Content-Type"))

	if resp.StatusCode >= http.StatusBadRequest {
		var body any
		if isJSON && len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				body = nil
			}
		} else if len(raw) > 0 {
			body = string(raw)
		}

		kind := KindRequestRejected
		if resp.StatusCode == http.StatusUnauthorized && isAuthExempt(path) {
			kind = KindAuthRejected
		}

		return responseError(kind, resp.StatusCode, body)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if !isJSON {
		// opaque text: only a *string destination can receive it
		if text, ok := out.(*string); ok {
			*text = string(raw)
		}
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		// tolerated: an unparseable success body decodes to nothing
		log.Debug().Err(err).Str("path", path).Msg("response body not decodable")
	}

	return nil
}

func isAuthExempt(path string) bool {
	path = strings.TrimPrefix(path, "/")
	for _, exempt := range authExemptPaths {
		if path == exempt || path == strings.TrimSuffix(exempt, "/") {
			return true
		}
	}

	return false
}

func declaresJSON(contentType string) bool {
	if contentType == "" {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
