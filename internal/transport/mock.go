package transport

import (
	"bytes"
	"errors"
	"io"
	"net/url"
	"strconv"
	"sync"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/bandwidth"
)

// ErrNoMockResponse is returned by MockHTTPClient when its queue is empty
var ErrNoMockResponse = errors.New("no mock response queued")

// MockResponse is one canned reply
type MockResponse struct {
	StatusCode int
	Body       []byte
	Header     fhttp.Header
	Err        error
}

// JSONResponse builds a MockResponse with a JSON content type
func JSONResponse(statusCode int, body string) MockResponse {
	h := make(fhttp.Header)
	h.Set("Content-Type", "application/json")
	return MockResponse{StatusCode: statusCode, Body: []byte(body), Header: h}
}

// ErrorResponse builds a MockResponse that fails at the transport level
func ErrorResponse(err error) MockResponse {
	return MockResponse{Err: err}
}

// CapturedRequest records what was sent through the mock
type CapturedRequest struct {
	Method string
	URL    string
	Header fhttp.Header
	Body   []byte
}

// MockHTTPClient is a tls_client.HttpClient that replays queued responses in
// order and records every request.
type MockHTTPClient struct {
	mu        sync.Mutex
	responses []MockResponse
	requests  []CapturedRequest
}

var _ tls_client.HttpClient = (*MockHTTPClient)(nil)

// NewMockHTTPClient creates a mock with the given response queue
func NewMockHTTPClient(responses ...MockResponse) *MockHTTPClient {
	return &MockHTTPClient{responses: responses}
}

// Enqueue appends a response to the queue
func (m *MockHTTPClient) Enqueue(r MockResponse) {
	m.mu.Lock()
	m.responses = append(m.responses, r)
	m.mu.Unlock()
}

// Requests returns the captured requests
func (m *MockHTTPClient) Requests() []CapturedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CapturedRequest(nil), m.requests...)
}

// LastRequest returns the most recent request, or a zero value
func (m *MockHTTPClient) LastRequest() CapturedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return CapturedRequest{}
	}
	return m.requests[len(m.requests)-1]
}

// Do implements the tls_client.HttpClient interface
func (m *MockHTTPClient) Do(req *fhttp.Request) (*fhttp.Response, error) {
	captured := CapturedRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
	}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
		captured.Body = body
	}

	m.mu.Lock()
	m.requests = append(m.requests, captured)
	if len(m.responses) == 0 {
		m.mu.Unlock()
		return nil, ErrNoMockResponse
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	m.mu.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}
	header := r.Header
	if header == nil {
		header = make(fhttp.Header)
	}
	return &fhttp.Response{
		StatusCode: r.StatusCode,
		Status:     statusLine(r.StatusCode),
		Body:       io.NopCloser(bytes.NewReader(r.Body)),
		Header:     header,
		Request:    req,
	}, nil
}

func statusLine(code int) string {
	text := fhttp.StatusText(code)
	if text == "" {
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code) + " " + text
}

// Get implements the tls_client.HttpClient interface
func (m *MockHTTPClient) Get(rawURL string) (*fhttp.Response, error) {
	req, err := fhttp.NewRequest(fhttp.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return m.Do(req)
}

// Head implements the tls_client.HttpClient interface
func (m *MockHTTPClient) Head(rawURL string) (*fhttp.Response, error) {
	req, err := fhttp.NewRequest(fhttp.MethodHead, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return m.Do(req)
}

// Post implements the tls_client.HttpClient interface
func (m *MockHTTPClient) Post(rawURL, contentType string, body io.Reader) (*fhttp.Response, error) {
	req, err := fhttp.NewRequest(fhttp.MethodPost, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return m.Do(req)
}

// GetCookies implements the tls_client.HttpClient interface
func (m *MockHTTPClient) GetCookies(u *url.URL) []*fhttp.Cookie {
	return nil
}

// SetCookies implements the tls_client.HttpClient interface
func (m *MockHTTPClient) SetCookies(u *url.URL, cookies []*fhttp.Cookie) {}

// SetCookieJar implements the tls_client.HttpClient interface
func (m *MockHTTPClient) SetCookieJar(jar fhttp.CookieJar) {}

// GetCookieJar implements the tls_client.HttpClient interface
func (m *MockHTTPClient) GetCookieJar() fhttp.CookieJar {
	return nil
}

// SetProxy implements the tls_client.HttpClient interface
func (m *MockHTTPClient) SetProxy(proxyURL string) error {
	return nil
}

// GetProxy implements the tls_client.HttpClient interface
func (m *MockHTTPClient) GetProxy() string {
	return ""
}

// SetFollowRedirect implements the tls_client.HttpClient interface
func (m *MockHTTPClient) SetFollowRedirect(followRedirect bool) {}

// GetFollowRedirect implements the tls_client.HttpClient interface
func (m *MockHTTPClient) GetFollowRedirect() bool {
	return false
}

// CloseIdleConnections implements the tls_client.HttpClient interface
func (m *MockHTTPClient) CloseIdleConnections() {}

// GetBandwidthTracker implements the tls_client.HttpClient interface
func (m *MockHTTPClient) GetBandwidthTracker() bandwidth.BandwidthTracker {
	return nil
}
