package transports

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	maxAttempts   = 3
	overallBudget = 15 * time.Second
)

// classifyFunc inspects a non-success response and turns it into a
// *TransportError. Returning nil falls back to the default classification.
type classifyFunc func(status int, body []byte) error

type request struct {
	method   string
	url      string
	headers  map[string]string
	body     []byte
	user     string
	password string
	classify classifyFunc
}

// httpSender implements the shared delivery policy for HTTP-based
// transports: up to three attempts within a 15 second budget, with
// permanent errors stopping retries early.
type httpSender struct {
	client *http.Client
}

func newHTTPSender(deps Deps) *httpSender {
	return &httpSender{client: deps.httpClient()}
}

func isSuccess(status int) bool {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return true
	}
	return false
}

func (s *httpSender) do(ctx context.Context, req request) error {
	ctx, cancel := context.WithTimeout(ctx, overallBudget)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = s.once(ctx, req)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

func (s *httpSender) once(ctx context.Context, req request) error {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return permanentError("bad request: %s", err)
	}
	httpReq.Header.Set("User-Agent", "pulsekeep")
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	if req.user != "" || req.password != "" {
		httpReq.SetBasicAuth(req.user, req.password)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return temporaryError("connection timed out")
		}
		return temporaryError("connection failed: %s", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if isSuccess(resp.StatusCode) {
		return nil
	}

	if req.classify != nil {
		if cerr := req.classify(resp.StatusCode, respBody); cerr != nil {
			return cerr
		}
	}
	return temporaryError("received status code %d", resp.StatusCode)
}

func (s *httpSender) postForm(ctx context.Context, u string, form url.Values, classify classifyFunc) error {
	return s.do(ctx, request{
		method:   http.MethodPost,
		url:      u,
		headers:  map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		body:     []byte(form.Encode()),
		classify: classify,
	})
}

func (s *httpSender) postJSON(ctx context.Context, url string, payload []byte, classify classifyFunc) error {
	return s.do(ctx, request{
		method:   http.MethodPost,
		url:      url,
		headers:  map[string]string{"Content-Type": "application/json"},
		body:     payload,
		classify: classify,
	})
}
