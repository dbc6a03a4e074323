package annotator

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"medtrak/internal/annotation"
	"medtrak/internal/transport/http/response"
)

const maxMediaSize = 25 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func NewRouter(service *Service, ginMode string) *gin.Engine {
	gin.SetMode(ginMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	h := NewHandler(service)
	router.GET("/healthz", h.Health)
	router.POST("/transcribe_audio", h.TranscribeAudio)
	router.POST("/transcribe_image", h.TranscribeImage)
	router.POST("/followup", h.FollowUp)
	router.POST("/summarize", h.Summarize)
	return router
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) TranscribeAudio(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing audio file (form field 'file')")
		return
	}
	if file.Size > maxMediaSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "audio too large")
		return
	}
	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to open uploaded file")
		return
	}
	defer f.Close()

	text, err := h.service.TranscribeAudio(c.Request.Context(), file.Filename, f)
	if err != nil {
		response.Error(c, http.StatusBadGateway, response.CodeInternalServer, err.Error())
		return
	}
	c.String(http.StatusOK, text)
}

func (h *Handler) TranscribeImage(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing image file (form field 'file')")
		return
	}
	if file.Size > maxMediaSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "image too large")
		return
	}
	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to open uploaded file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to read image")
		return
	}

	text, err := h.service.DescribeImage(c.Request.Context(), data)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.String(http.StatusOK, text)
}

func (h *Handler) FollowUp(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxMediaSize))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to read body")
		return
	}

	questions, err := h.service.FollowUpQuestions(c.Request.Context(), string(body))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, questions)
}

func (h *Handler) Summarize(c *gin.Context) {
	var req annotation.SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request body")
		return
	}

	summary, err := h.service.Summarize(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, ErrEmptyInput) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}
	response.Error(c, http.StatusBadGateway, response.CodeInternalServer, err.Error())
}
