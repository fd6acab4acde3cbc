package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docqa-service/internal/app"
	"docqa-service/internal/fetch"
	"docqa-service/internal/model"
	"docqa-service/internal/transport/http/response"
)

type QAService interface {
	Run(ctx context.Context, documentURL string, questions []string) (*app.QAResult, error)
	ExtractText(ctx context.Context, documentURL string) (model.ExtractedText, error)
	RequestPurge(ctx context.Context, documentURL string) (bool, error)
}

type QAHandler struct {
	qaService QAService
}

type RunRequest struct {
	Documents string   `json:"documents" binding:"required"`
	Questions []string `json:"questions" binding:"required,min=1"`
}

// ExtractRequest accepts the document URL under any of the names older
// clients send.
type ExtractRequest struct {
	URL       string `json:"url"`
	PDFURL    string `json:"pdfUrl"`
	Documents string `json:"documents"`
}

func (r ExtractRequest) documentURL() string {
	for _, v := range []string{r.URL, r.PDFURL, r.Documents} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

type ExtractResponse struct {
	Text    string     `json:"text"`
	Tier    model.Tier `json:"tier"`
	Warning string     `json:"warning,omitempty"`
}

type PurgeRequest struct {
	Documents string `json:"documents" binding:"required"`
}

func NewQAHandler(qaService QAService) *QAHandler {
	return &QAHandler{qaService: qaService}
}

func (h *QAHandler) Run(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "invalid request payload", err.Error())
		return
	}
	result, err := h.qaService.Run(c.Request.Context(), req.Documents, req.Questions)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *QAHandler) Extract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "invalid request payload", err.Error())
		return
	}
	documentURL := req.documentURL()
	if documentURL == "" {
		response.ErrorWithDetails(c, http.StatusBadRequest, "invalid request payload", "one of url, pdfUrl or documents is required")
		return
	}
	extracted, err := h.qaService.ExtractText(c.Request.Context(), documentURL)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, ExtractResponse{
		Text:    extracted.Text,
		Tier:    extracted.Tier,
		Warning: extracted.Warning,
	})
}

func (h *QAHandler) Purge(c *gin.Context) {
	var req PurgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "invalid request payload", err.Error())
		return
	}
	queued, err := h.qaService.RequestPurge(c.Request.Context(), req.Documents)
	if err != nil {
		writeError(c, err)
		return
	}
	if queued {
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
		return
	}
	response.OK(c, gin.H{"status": "purged"})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		response.ErrorWithDetails(c, http.StatusBadRequest, "invalid request", err.Error())
	case errors.Is(err, fetch.ErrTooLarge):
		response.ErrorWithDetails(c, http.StatusRequestEntityTooLarge, "document too large", err.Error())
	case errors.Is(err, fetch.ErrFetch):
		response.ErrorWithDetails(c, http.StatusBadGateway, "document fetch failed", err.Error())
	case errors.Is(err, app.ErrNoText):
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, "no extractable text", err.Error())
	default:
		response.ErrorWithDetails(c, http.StatusInternalServerError, "internal error", err.Error())
	}
}
