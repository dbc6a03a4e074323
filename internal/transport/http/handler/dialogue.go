package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"medtrak/internal/dialogue"
	"medtrak/internal/model"
	"medtrak/internal/storage"
	"medtrak/internal/transport/http/response"
)

type DialogueHandler struct {
	registry *dialogue.Registry
}

type SendTextRequest struct {
	Text string `json:"text" binding:"required"`
}

type ModeRequest struct {
	Mode string `json:"mode" binding:"required,oneof=text image voice"`
}

func NewDialogueHandler(registry *dialogue.Registry) *DialogueHandler {
	return &DialogueHandler{registry: registry}
}

func (h *DialogueHandler) Create(c *gin.Context) {
	uid, ok := patientUID(c)
	if !ok {
		return
	}

	session, err := h.registry.Create(uid)
	if err != nil {
		writeDialogueError(c, err, "create session failed")
		return
	}
	response.OK(c, sessionView(session))
}

func (h *DialogueHandler) Messages(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	response.OK(c, sessionView(session))
}

// SendText answers the pending follow-up or, when none is pending, saves a
// new text record.
func (h *DialogueHandler) SendText(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req SendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if err := session.SendText(c.Request.Context(), req.Text); err != nil {
		writeDialogueError(c, err, "save record failed")
		return
	}
	response.OK(c, sessionView(session))
}

func (h *DialogueHandler) SendImage(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing image file (form field 'image')")
		return
	}
	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to open uploaded file")
		return
	}
	defer f.Close()

	attachment := dialogue.Attachment{Filename: file.Filename, Body: f}
	if err := session.SendImage(c.Request.Context(), attachment, c.PostForm("caption")); err != nil {
		writeDialogueError(c, err, "save image record failed")
		return
	}
	response.OK(c, sessionView(session))
}

func (h *DialogueHandler) SendVoice(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	duration, ok := parseDuration(c)
	if !ok {
		return
	}
	file, err := c.FormFile("audio")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing audio file (form field 'audio')")
		return
	}
	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to open uploaded file")
		return
	}
	defer f.Close()

	attachment := dialogue.Attachment{Filename: file.Filename, Body: f}
	if err := session.SendVoice(c.Request.Context(), attachment, duration); err != nil {
		writeDialogueError(c, err, "save voice record failed")
		return
	}
	response.OK(c, sessionView(session))
}

func (h *DialogueHandler) Mode(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if err := session.RequestMode(model.RecordKind(req.Mode)); err != nil {
		writeDialogueError(c, err, "change mode failed")
		return
	}
	response.OK(c, session.Snapshot())
}

// Events streams transcript messages appended after the call.
func (h *DialogueHandler) Events(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	events, stop := session.Watch()
	defer stop()

	flusher, ok := startSSE(c)
	if !ok {
		return
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case msg, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(c, flusher, "message", msg); err != nil {
				return
			}
			if err := writeSSE(c, flusher, "state", session.Snapshot()); err != nil {
				return
			}
		}
	}
}

func (h *DialogueHandler) Delete(c *gin.Context) {
	uid, ok := patientUID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.registry.Delete(id, uid); err != nil {
		writeDialogueError(c, err, "delete session failed")
		return
	}
	response.OK(c, gin.H{"deleted_session_id": id})
}

func (h *DialogueHandler) session(c *gin.Context) (*dialogue.Session, bool) {
	uid, ok := patientUID(c)
	if !ok {
		return nil, false
	}
	session, err := h.registry.Get(c.Param("id"), uid)
	if err != nil {
		writeDialogueError(c, err, "get session failed")
		return nil, false
	}
	return session, true
}

func sessionView(session *dialogue.Session) gin.H {
	return gin.H{
		"id":       session.ID(),
		"state":    session.Snapshot(),
		"messages": session.Messages(),
	}
}

func writeDialogueError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, dialogue.ErrFollowUpsActive):
		notice := strings.TrimPrefix(err.Error(), dialogue.ErrFollowUpsActive.Error()+": ")
		response.Error(c, http.StatusConflict, response.CodeFollowUpsActive, notice)
	case errors.Is(err, dialogue.ErrMessageEmpty), errors.Is(err, dialogue.ErrInvalidMode):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, dialogue.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	case errors.Is(err, dialogue.ErrSessionClosed):
		response.Error(c, http.StatusGone, response.CodeSessionClosed, err.Error())
	case errors.Is(err, storage.ErrObjectTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, err.Error())
	default:
		writeRecordError(c, err, fallback)
	}
}
