package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"medtrak/internal/app"
	"medtrak/internal/model"
	"medtrak/internal/storage"
	"medtrak/internal/transport/http/response"
)

type RecordHandler struct {
	records *app.RecordService
}

type CreateTextRecordRequest struct {
	Text      string `json:"text" binding:"required"`
	CreatedAt int64  `json:"created_at" binding:"gte=0"`
}

type FollowUpResponseRequest struct {
	Answer string `json:"answer" binding:"required"`
}

func NewRecordHandler(records *app.RecordService) *RecordHandler {
	return &RecordHandler{records: records}
}

func (h *RecordHandler) CreateText(c *gin.Context) {
	uid, ok := patientUID(c)
	if !ok {
		return
	}

	var req CreateTextRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	record, err := h.records.SaveTextRecord(c.Request.Context(), app.TextRecordInput{
		PatientUID: uid,
		Text:       req.Text,
		CreatedAt:  req.CreatedAt,
	})
	if err != nil {
		writeRecordError(c, err, "save record failed")
		return
	}
	response.OK(c, record)
}

func (h *RecordHandler) CreateImage(c *gin.Context) {
	uid, ok := patientUID(c)
	if !ok {
		return
	}

	caption := strings.TrimSpace(c.PostForm("caption"))
	if caption == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "image caption is required")
		return
	}
	url, ok := h.upload(c, uid, model.KindImage, "image")
	if !ok {
		return
	}

	record, err := h.records.SaveImageRecord(c.Request.Context(), app.ImageRecordInput{
		PatientUID: uid,
		ImageURL:   url,
		Caption:    caption,
		CreatedAt:  formInt64(c, "created_at"),
	})
	if err != nil {
		writeRecordError(c, err, "save record failed")
		return
	}
	response.OK(c, record)
}

func (h *RecordHandler) CreateVoice(c *gin.Context) {
	uid, ok := patientUID(c)
	if !ok {
		return
	}

	duration, ok := parseDuration(c)
	if !ok {
		return
	}
	url, ok := h.upload(c, uid, model.KindVoice, "audio")
	if !ok {
		return
	}

	record, err := h.records.SaveVoiceRecord(c.Request.Context(), app.VoiceRecordInput{
		PatientUID:  uid,
		AudioURL:    url,
		DurationSec: duration,
		CreatedAt:   formInt64(c, "created_at"),
	})
	if err != nil {
		writeRecordError(c, err, "save record failed")
		return
	}
	response.OK(c, record)
}

// List returns the caller's records grouped by UTC day.
func (h *RecordHandler) List(c *gin.Context) {
	uid, ok := patientUID(c)
	if !ok {
		return
	}

	grouped, err := h.records.FetchGroupedByDay(c.Request.Context(), uid)
	if err != nil {
		writeRecordError(c, err, "list records failed")
		return
	}
	response.OK(c, grouped)
}

func (h *RecordHandler) Get(c *gin.Context) {
	uid, ok := patientUID(c)
	if !ok {
		return
	}

	record, err := h.records.GetPatientRecord(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		writeRecordError(c, err, "get record failed")
		return
	}
	response.OK(c, record)
}

func (h *RecordHandler) AnswerFollowUp(c *gin.Context) {
	uid, ok := patientUID(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid follow-up index")
		return
	}
	var req FollowUpResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Answer) == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	id := c.Param("id")
	if _, err := h.records.GetPatientRecord(c.Request.Context(), uid, id); err != nil {
		writeRecordError(c, err, "answer follow-up failed")
		return
	}

	applied, err := h.records.SetFollowUpResponse(c.Request.Context(), id, index, strings.TrimSpace(req.Answer))
	if err != nil {
		writeRecordError(c, err, "answer follow-up failed")
		return
	}
	if !applied {
		response.Error(c, http.StatusNotFound, response.CodeFollowUpNotFound, "follow-up question not found")
		return
	}

	record, err := h.records.GetRecord(c.Request.Context(), id)
	if err != nil {
		writeRecordError(c, err, "answer follow-up failed")
		return
	}
	response.OK(c, record)
}

// StreamFollowUps pushes the record's follow-up list as server-sent events,
// starting with its current value.
func (h *RecordHandler) StreamFollowUps(c *gin.Context) {
	uid, ok := patientUID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if _, err := h.records.GetPatientRecord(c.Request.Context(), uid, id); err != nil {
		writeRecordError(c, err, "subscribe follow-ups failed")
		return
	}

	sub, err := h.records.Subscribe(c.Request.Context(), id)
	if err != nil {
		writeRecordError(c, err, "subscribe follow-ups failed")
		return
	}
	defer sub.Cancel()

	flusher, ok := startSSE(c)
	if !ok {
		return
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-sub.Done():
			return
		case u := <-sub.Updates():
			if err := writeSSE(c, flusher, "followUps", gin.H{"recordId": u.RecordID, "followUps": u.FollowUps}); err != nil {
				return
			}
		}
	}
}

func (h *RecordHandler) upload(c *gin.Context, uid string, kind model.RecordKind, field string) (string, bool) {
	file, err := c.FormFile(field)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file (form field '"+field+"')")
		return "", false
	}
	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to open uploaded file")
		return "", false
	}
	defer f.Close()

	url, err := h.records.Upload(c.Request.Context(), uid, kind, file.Filename, f)
	if err != nil {
		writeRecordError(c, err, "upload failed")
		return "", false
	}
	return url, true
}

func writeRecordError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrUnauthenticated):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrMessageEmpty), errors.Is(err, model.ErrUnknownRecordKind):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, storage.ErrObjectTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, err.Error())
	case errors.Is(err, app.ErrRecordNotFound):
		response.Error(c, http.StatusNotFound, response.CodeRecordNotFound, err.Error())
	case errors.Is(err, app.ErrSummaryUnavailable):
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func parseDuration(c *gin.Context) (*int, bool) {
	raw := strings.TrimSpace(c.PostForm("duration_sec"))
	if raw == "" {
		return nil, true
	}
	duration, err := strconv.Atoi(raw)
	if err != nil || duration < 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid duration_sec")
		return nil, false
	}
	return &duration, true
}

func formInt64(c *gin.Context, key string) int64 {
	value, err := strconv.ParseInt(strings.TrimSpace(c.PostForm(key)), 10, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
