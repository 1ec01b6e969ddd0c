package transport

import (
	"errors"
	"io"
	"strings"
	"testing"

	fhttp "github.com/bogdanfinn/fhttp"
)

func TestMockHTTPClient_ReplaysInOrder(t *testing.T) {
	m := NewMockHTTPClient(
		JSONResponse(200, `{"n":1}`),
		JSONResponse(502, `{"n":2}`),
	)

	req, _ := fhttp.NewRequest(fhttp.MethodPost, "http://relay/api/chat-messages", strings.NewReader("hello"))
	req.Header.Set("X-Test", "yes")

	resp, err := m.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || string(body) != `{"n":1}` {
		t.Errorf("first response = %d %s", resp.StatusCode, body)
	}

	resp, _ = m.Get("http://relay/health")
	if resp.StatusCode != 502 || resp.Status != "502 Bad Gateway" {
		t.Errorf("second response = %d %q", resp.StatusCode, resp.Status)
	}

	if _, err := m.Get("http://relay/health"); !errors.Is(err, ErrNoMockResponse) {
		t.Errorf("empty queue error = %v, want ErrNoMockResponse", err)
	}

	reqs := m.Requests()
	if len(reqs) != 3 {
		t.Fatalf("captured %d requests, want 3", len(reqs))
	}
	if string(reqs[0].Body) != "hello" || reqs[0].Header.Get("X-Test") != "yes" {
		t.Errorf("first captured request = %+v", reqs[0])
	}
	if m.LastRequest().Method != fhttp.MethodGet {
		t.Errorf("LastRequest().Method = %s", m.LastRequest().Method)
	}
}

func TestMockHTTPClient_TransportError(t *testing.T) {
	cause := errors.New("connection refused")
	m := NewMockHTTPClient(ErrorResponse(cause))

	if _, err := m.Post("http://relay/x", "application/json", strings.NewReader("{}")); !errors.Is(err, cause) {
		t.Errorf("Post() error = %v, want %v", err, cause)
	}
	if got := m.LastRequest().Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestNewHTTPClient(t *testing.T) {
	c, err := NewHTTPClient(0)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	if c == nil {
		t.Fatal("NewHTTPClient() returned nil")
	}
}
