// Package api implements the client for the chat relay.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/tidwall/gjson"

	apperrors "github.com/tale555/dify-chat-webapp/internal/errors"
	"github.com/tale555/dify-chat-webapp/internal/transport"
)

const (
	// ResponseModeBlocking is the only response mode used
	ResponseModeBlocking = "blocking"
	// DefaultUser identifies the end user when none is configured
	DefaultUser = "web_user"
	// EmptyAnswer replaces a successful response without an answer
	EmptyAnswer = "The response was empty."
	// DefaultImageQuery is sent upstream for an image without text
	DefaultImageQuery = "Please analyze this image"

	chatPath = "/chat-messages"
)

// ChatRequest is one message to send
type ChatRequest struct {
	Query          string
	User           string
	ConversationID string
	Image          *Attachment
}

// ChatResult is the assistant's reply
type ChatResult struct {
	Answer         string
	ConversationID string
	MessageID      string
}

// ChatClient sends chat messages
type ChatClient interface {
	Send(ctx context.Context, req ChatRequest) (*ChatResult, error)
}

// Client talks to the relay's chat endpoint
type Client struct {
	httpClient tls_client.HttpClient
	baseURL    string
	timeout    time.Duration
}

var _ ChatClient = (*Client)(nil)

// ClientOption is a function that configures the client
type ClientOption func(*Client)

// WithHTTPClient sets the transport
func WithHTTPClient(c tls_client.HttpClient) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout sets the timeout of the default transport
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		cl.timeout = d
	}
}

// NewClient creates a client for the relay at baseURL, e.g.
// http://localhost:3001/api
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: transport.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		httpClient, err := transport.NewHTTPClient(c.timeout)
		if err != nil {
			return nil, err
		}
		c.httpClient = httpClient
	}
	return c, nil
}

// Endpoint returns the chat endpoint URL
func (c *Client) Endpoint() string {
	return c.baseURL + chatPath
}

// Send posts a message and waits for the complete answer. Requests with an
// image are sent as multipart form data, others as JSON. There is no retry.
func (c *Client) Send(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	endpoint := c.Endpoint()
	if req.User == "" {
		req.User = DefaultUser
	}
	if err := ValidateAttachment(req.Image); err != nil {
		return nil, err
	}

	body, contentType, err := encodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := fhttp.NewRequest(fhttp.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq = httpReq.WithContext(ctx)
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewNetworkError(endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewNetworkError(endpoint, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.NewRemoteError(resp.StatusCode, endpoint, ErrorMessage(resp.StatusCode, data))
	}

	return ParseChatResponse(endpoint, data)
}

type jsonChatRequest struct {
	Query          string `json:"query"`
	User           string `json:"user"`
	ResponseMode   string `json:"response_mode"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func encodeRequest(req ChatRequest) ([]byte, string, error) {
	if req.Image == nil {
		data, err := json.Marshal(jsonChatRequest{
			Query:          req.Query,
			User:           req.User,
			ResponseMode:   ResponseModeBlocking,
			ConversationID: req.ConversationID,
		})
		return data, "application/json", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := [][2]string{
		{"query", req.Query},
		{"user", req.User},
		{"response_mode", ResponseModeBlocking},
	}
	if req.ConversationID != "" {
		fields = append(fields, [2]string{"conversation_id", req.ConversationID})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, escapeQuotes(req.Image.Name)))
	h.Set("Content-Type", req.Image.MIMEType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Image.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// ParseChatResponse extracts the answer from a successful response body
func ParseChatResponse(endpoint string, data []byte) (*ChatResult, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, apperrors.NewMalformedResponseError(endpoint, "response body is empty")
	}
	if !gjson.ValidBytes(data) {
		return nil, apperrors.NewMalformedResponseError(endpoint, "response is not valid JSON")
	}

	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return nil, apperrors.NewMalformedResponseError(endpoint, "response is not a JSON object")
	}

	answer := parsed.Get("answer").String()
	if answer == "" {
		answer = EmptyAnswer
	}

	return &ChatResult{
		Answer:         answer,
		ConversationID: parsed.Get("conversation_id").String(),
		MessageID:      parsed.Get("message_id").String(),
	}, nil
}

// ErrorMessage extracts a human readable message from a failed response:
// the JSON "message", "error.message" or "error" string, the raw text when
// the body is not JSON, else the HTTP status.
func ErrorMessage(statusCode int, data []byte) string {
	if gjson.ValidBytes(data) {
		parsed := gjson.ParseBytes(data)
		if msg := parsed.Get("message"); msg.Type == gjson.String && msg.String() != "" {
			return msg.String()
		}
		if msg := parsed.Get("error.message"); msg.Type == gjson.String && msg.String() != "" {
			return msg.String()
		}
		if msg := parsed.Get("error"); msg.Type == gjson.String && msg.String() != "" {
			return msg.String()
		}
		return statusMessage(statusCode)
	}

	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return statusMessage(statusCode)
}

func statusMessage(statusCode int) string {
	return fmt.Sprintf("HTTP %d: %s", statusCode, fhttp.StatusText(statusCode))
}
