package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"askcorpus/internal/app"
	"askcorpus/internal/transport/http/response"
)

type QueryHandler struct {
	queries *app.QueryService
}

type AskRequest struct {
	SessionID uint   `json:"session_id" binding:"required,gt=0"`
	Question  string `json:"question" binding:"required"`
	TopK      int    `json:"top_k"`
}

type askDonePayload struct {
	TaskID    string `json:"task_id"`
	Citations []uint `json:"citations"`
}

func NewQueryHandler(queries *app.QueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

// Ask streams the answer over SSE. The first event carries the task id
// so the client can cancel; answer text follows as data events and a
// done event closes the stream with the citations.
func (h *QueryHandler) Ask(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	started := false
	writeEvent := func(event, data string) {
		if _, err := c.Writer.Write([]byte("event: " + event + "\ndata: " + sanitizeSSE(data) + "\n\n")); err == nil {
			flusher.Flush()
		}
	}

	result, err := h.queries.StreamAnswer(c.Request.Context(), app.QueryInput{
		UserID:    userID,
		SessionID: req.SessionID,
		Question:  req.Question,
		TopK:      req.TopK,
	}, func(taskID string) error {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		started = true
		writeEvent("task", taskID)
		return nil
	}, func(delta string) error {
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(delta) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !started {
			h.writeAskError(c, err)
			return
		}
		switch {
		case errors.Is(err, app.ErrCancelled):
			writeEvent("cancelled", "generation cancelled")
		default:
			writeEvent("error", err.Error())
		}
		return
	}

	payload, marshalErr := json.Marshal(askDonePayload{
		TaskID:    result.TaskID,
		Citations: result.Citations,
	})
	if marshalErr != nil {
		writeEvent("error", "encode result failed")
		return
	}
	writeEvent("done", string(payload))
}

// Cancel stops the caller's running generation task.
func (h *QueryHandler) Cancel(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	taskID := strings.TrimSpace(c.Param("id"))
	if taskID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid task id")
		return
	}

	if err := h.queries.Cancel(taskID, userID); err != nil {
		switch {
		case errors.Is(err, app.ErrTaskNotFound):
			response.Error(c, http.StatusNotFound, response.CodeTaskNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "cancel task failed")
		}
		return
	}

	response.OK(c, gin.H{"cancelled_task_id": taskID})
}

func (h *QueryHandler) writeAskError(c *gin.Context, err error) {
	var upErr *app.UpstreamError
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	case errors.As(err, &upErr):
		response.Error(c, http.StatusServiceUnavailable, response.CodeUpstreamFailed, upErr.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "answer question failed")
	}
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
