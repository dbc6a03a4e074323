package handler

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"medtrak/internal/model"
	"medtrak/internal/storage"
	"medtrak/internal/transport/http/middleware"
	"medtrak/internal/transport/http/response"
)

// MediaHandler serves stored attachments. Objects live under
// <kind>/<patient uid>/<name>; patients read only their own, providers read
// any.
type MediaHandler struct {
	store *storage.Store
}

func NewMediaHandler(store *storage.Store) *MediaHandler {
	return &MediaHandler{store: store}
}

func (h *MediaHandler) Serve(c *gin.Context) {
	uid, ok := patientUID(c)
	if !ok {
		return
	}

	key := strings.TrimPrefix(path.Clean("/"+c.Param("filepath")), "/")
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, storage.ErrObjectNotFound.Error())
		return
	}
	if c.GetString(middleware.ContextRoleKey) != string(model.RoleProvider) && parts[1] != uid {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, storage.ErrObjectNotFound.Error())
		return
	}

	f, info, err := h.store.OpenObject(key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "open attachment failed")
		return
	}
	defer f.Close()

	c.Header("Cache-Control", "private, max-age=3600")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}
