package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-notify/core"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const KindREST = "rest"

const (
	defaultClientTimeout           = 10 * time.Second
	defaultResponseBodyLimit int64 = 1 << 20
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewInstrumentedClient returns an http.Client whose transport records an
// OpenTelemetry client span per request.
func NewInstrumentedClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// RESTAdapter performs one HTTP exchange per call. It never retries; push
// delivery and hub lookups both report the first failure.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = NewInstrumentedClient(defaultClientTimeout)
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

// JSONRequest builds a request carrying payload as a JSON body.
func JSONRequest(method string, rawURL string, payload any) (core.TransportRequest, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return core.TransportRequest{}, failure(err, goerrors.CategoryBadInput, "transport: encode json body", nil)
	}
	return core.TransportRequest{
		Method: method,
		URL:    rawURL,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		Body: body,
	}, nil
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, failure(nil, goerrors.CategoryInternal, "transport: rest adapter requires an http client", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := a.newHTTPRequest(ctx, req)
	if err != nil {
		return core.TransportResponse{}, err
	}

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, failure(err, goerrors.CategoryExternal, "transport: execute http request", map[string]any{
			"method":  httpReq.Method,
			"host":    httpReq.URL.Host,
			"timeout": IsTimeout(err),
		})
	}
	defer httpRes.Body.Close()

	body, err := readLimited(httpRes, firstPositive(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes, defaultResponseBodyLimit))
	if err != nil {
		return core.TransportResponse{}, err
	}
	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"kind":        KindREST,
		},
	}, nil
}

func (a *RESTAdapter) newHTTPRequest(ctx context.Context, req core.TransportRequest) (*http.Request, error) {
	rawURL := strings.TrimSpace(req.URL)
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, failure(err, goerrors.CategoryBadInput, "transport: invalid request url", map[string]any{"url": rawURL})
	}
	if !target.IsAbs() || target.Host == "" {
		return nil, failure(nil, goerrors.CategoryBadInput, "transport: request url must be absolute", map[string]any{"url": target.String()})
	}
	if len(req.Query) > 0 {
		query := target.Query()
		for key, value := range req.Query {
			if key = strings.TrimSpace(key); key != "" {
				query.Set(key, strings.TrimSpace(value))
			}
		}
		target.RawQuery = query.Encode()
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, failure(err, goerrors.CategoryBadInput, "transport: create http request", map[string]any{"method": method})
	}
	setHeaders(httpReq.Header, a.DefaultHeaders)
	setHeaders(httpReq.Header, req.Headers)
	return httpReq, nil
}

// readLimited fails instead of truncating when the body is larger than limit.
func readLimited(res *http.Response, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, failure(err, goerrors.CategoryExternal, "transport: read response body", map[string]any{"status_code": res.StatusCode})
	}
	if int64(len(body)) > limit {
		return nil, failure(nil, goerrors.CategoryExternal,
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit),
			map[string]any{"status_code": res.StatusCode, "response_limit_b": limit},
		)
	}
	return body, nil
}

// IsTimeout reports whether err was caused by a deadline, either the
// context's or the client's.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}

func setHeaders(dst http.Header, src map[string]string) {
	for key, value := range src {
		if key = strings.TrimSpace(key); key != "" {
			dst.Set(key, strings.TrimSpace(value))
		}
	}
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func firstPositive(values ...int64) int64 {
	for _, value := range values {
		if value > 0 {
			return value
		}
	}
	return 0
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
