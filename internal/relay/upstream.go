package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/tidwall/gjson"
)

// ErrMissingFileID is returned when an upload response carries no file id
var ErrMissingFileID = errors.New("upload response has no file id")

// StatusError is a non-2xx response from the upstream API
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// UploadFile is an image to upload
type UploadFile struct {
	Name     string
	MIMEType string
	Data     []byte
}

// FileRef references an uploaded file in a chat message
type FileRef struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	UploadFileID   string `json:"upload_file_id"`
}

// ChatPayload is the body sent to the upstream chat endpoint
type ChatPayload struct {
	Inputs         map[string]interface{} `json:"inputs"`
	Query          string                 `json:"query"`
	User           string                 `json:"user"`
	ResponseMode   string                 `json:"response_mode"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	Files          []FileRef              `json:"files,omitempty"`
}

// Upstream calls the Dify API with the server-side key
type Upstream struct {
	httpClient tls_client.HttpClient
	baseURL    string
	apiKey     string
}

// NewUpstream creates an upstream client
func NewUpstream(httpClient tls_client.HttpClient, baseURL, apiKey string) *Upstream {
	return &Upstream{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Upload sends an image to /files/upload and returns its file id.
// A non-2xx reply is a *StatusError.
func (u *Upstream) Upload(ctx context.Context, user string, file UploadFile) (string, []byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, strings.ReplaceAll(file.Name, `"`, "")))
	h.Set("Content-Type", file.MIMEType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", nil, fmt.Errorf("failed to write file data: %w", err)
	}
	if err := writer.WriteField("user", user); err != nil {
		return "", nil, fmt.Errorf("failed to write user field: %w", err)
	}
	_ = writer.Close()

	status, data, err := u.post(ctx, "/files/upload", writer.FormDataContentType(), body.Bytes())
	if err != nil {
		return "", nil, err
	}
	if status < 200 || status > 299 {
		return "", data, &StatusError{StatusCode: status, Body: data}
	}

	parsed := gjson.ParseBytes(data)
	for _, path := range []string{"id", "file_id", "data.id"} {
		if id := parsed.Get(path).String(); id != "" {
			return id, data, nil
		}
	}
	return "", data, ErrMissingFileID
}

// ChatMessages posts payload to /chat-messages and returns the raw reply
func (u *Upstream) ChatMessages(ctx context.Context, payload ChatPayload) (int, []byte, error) {
	if payload.Inputs == nil {
		payload.Inputs = map[string]interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return u.post(ctx, "/chat-messages", "application/json", body)
}

func (u *Upstream) post(ctx context.Context, path, contentType string, body []byte) (int, []byte, error) {
	req, err := fhttp.NewRequest(fhttp.MethodPost, u.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+u.apiKey)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	return resp.StatusCode, data, nil
}
