package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"

	"github.com/tale555/dify-chat-webapp/internal/api"
)

type chatRequest struct {
	Query          string `json:"query"`
	User           string `json:"user"`
	ConversationID string `json:"conversation_id"`
	ResponseMode   string `json:"response_mode"`
}

func errorBody(msg string) map[string]interface{} {
	return map[string]interface{}{"error": msg}
}

// chatMessages relays one chat message, uploading the image first when present
func (s *Server) chatMessages(c echo.Context) error {
	ctx := c.Request().Context()

	req, image, err := s.readChatRequest(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	if req.User == "" {
		req.User = api.DefaultUser
	}
	if req.ResponseMode == "" {
		req.ResponseMode = api.ResponseModeBlocking
	}

	s.logger.Debug().
		Str("user", req.User).
		Str("conversation_id", req.ConversationID).
		Bool("has_image", image != nil).
		Msg("chat message received")

	payload := ChatPayload{
		Inputs:         map[string]interface{}{},
		Query:          req.Query,
		User:           req.User,
		ResponseMode:   req.ResponseMode,
		ConversationID: req.ConversationID,
	}

	if image != nil {
		fileID, raw, err := s.upstream.Upload(ctx, req.User, *image)
		if err != nil {
			return s.uploadFailure(c, err, raw)
		}
		s.logger.Debug().Str("file_id", fileID).Msg("image uploaded")

		if payload.Query == "" {
			payload.Query = api.DefaultImageQuery
		}
		payload.Files = []FileRef{{
			Type:           "image",
			TransferMethod: "local_file",
			UploadFileID:   fileID,
		}}
	}

	status, body, err := s.upstream.ChatMessages(ctx, payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("chat request failed")
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	if status < 200 || status > 299 {
		s.logger.Warn().Int("status", status).Str("body", string(body)).Msg("upstream rejected chat request")
		return c.JSON(status, errorBody(string(body)))
	}
	if !gjson.ValidBytes(body) {
		return c.JSON(http.StatusInternalServerError, errorBody("upstream returned invalid JSON"))
	}

	return c.JSONBlob(http.StatusOK, body)
}

func (s *Server) readChatRequest(c echo.Context) (*chatRequest, *UploadFile, error) {
	var req chatRequest
	contentType := c.Request().Header.Get(echo.HeaderContentType)

	if !strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("invalid request body: %v", err)
		}
		return &req, nil, nil
	}

	req.Query = c.FormValue("query")
	req.User = c.FormValue("user")
	req.ConversationID = c.FormValue("conversation_id")
	req.ResponseMode = c.FormValue("response_mode")

	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return &req, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("invalid multipart body: %v", err)
	}

	mimeType := fh.Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, nil, fmt.Errorf("only image files can be uploaded")
	}
	if fh.Size > s.cfg.MaxUploadBytes {
		return nil, nil, fmt.Errorf("image exceeds the %d byte limit", s.cfg.MaxUploadBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read image: %v", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read image: %v", err)
	}

	return &req, &UploadFile{Name: fh.Filename, MIMEType: mimeType, Data: data}, nil
}

func (s *Server) uploadFailure(c echo.Context, err error, raw []byte) error {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		s.logger.Error().Int("status", statusErr.StatusCode).Str("body", string(statusErr.Body)).Msg("image upload failed")

		var details interface{} = string(statusErr.Body)
		if gjson.ValidBytes(statusErr.Body) {
			details = json.RawMessage(statusErr.Body)
		}
		return c.JSON(statusErr.StatusCode, map[string]interface{}{
			"error":   "image upload failed: " + strings.TrimSpace(string(statusErr.Body)),
			"status":  statusErr.StatusCode,
			"details": details,
		})

	case errors.Is(err, ErrMissingFileID):
		s.logger.Error().Str("body", string(raw)).Msg("upload response has no file id")
		resp := errorBody("could not get a file id from the upload response")
		if gjson.ValidBytes(raw) {
			resp["response"] = json.RawMessage(raw)
		}
		return c.JSON(http.StatusInternalServerError, resp)

	default:
		s.logger.Error().Err(err).Msg("image upload failed")
		return c.JSON(http.StatusInternalServerError, errorBody("image upload failed: "+err.Error()))
	}
}
