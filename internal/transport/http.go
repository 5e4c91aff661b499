package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"rtb-client/internal/observability"
	"rtb-client/internal/worker"
)

const maxBodyBytes = 4 << 20

// HTTPTransport posts over net/http on a worker pool.
type HTTPTransport struct {
	client  *http.Client
	pool    *worker.Pool
	timeout time.Duration
}

func NewHTTP(pool *worker.Pool, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client:  &http.Client{Transport: observability.MeasureTransport(http.DefaultTransport)},
		pool:    pool,
		timeout: timeout,
	}
}

// Timeout is the per-request deadline.
func (t *HTTPTransport) Timeout() time.Duration { return t.timeout }

func (t *HTTPTransport) Post(rawURL string, form map[string]string, cb Callback) {
	t.pool.Submit(func() {
		o, body := t.do(rawURL, form)
		if !o.OK() {
			log.Warn().Str("url", redact(rawURL)).Int("code", o.Code).Str("text", o.Text).Msg("request failed")
		}
		if cb != nil {
			cb(o, body)
		}
	})
}

func (t *HTTPTransport) do(rawURL string, form map[string]string) (Outcome, string) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		vals := url.Values{}
		for k, v := range form {
			vals.Set(k, v)
		}
		body = strings.NewReader(vals.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return BadRequest.With(err.Error()), ""
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return Timeout.With(err.Error()), ""
		}
		return NetworkError.With(err.Error()), ""
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return NetworkError.With(err.Error()), ""
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{Code: resp.StatusCode, Text: http.StatusText(resp.StatusCode)}, string(b)
	}
	return Success, string(b)
}

// redact strips the query so signatures and device ids stay out of logs.
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
