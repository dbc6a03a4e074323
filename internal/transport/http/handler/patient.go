package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medtrak/internal/app"
	"medtrak/internal/transport/http/response"
)

// PatientHandler serves the provider views of patients.
type PatientHandler struct {
	auth    *app.AuthService
	records *app.RecordService
	summary *app.SummaryService
}

func NewPatientHandler(auth *app.AuthService, records *app.RecordService, summary *app.SummaryService) *PatientHandler {
	return &PatientHandler{auth: auth, records: records, summary: summary}
}

func (h *PatientHandler) List(c *gin.Context) {
	patients, err := h.auth.ListPatients(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list patients failed")
		return
	}

	views := make([]gin.H, 0, len(patients))
	for i := range patients {
		views = append(views, gin.H{
			"uid":          patients[i].UID(),
			"username":     patients[i].Username,
			"display_name": patients[i].DisplayName,
		})
	}
	response.OK(c, views)
}

func (h *PatientHandler) Records(c *gin.Context) {
	grouped, err := h.records.FetchGroupedByDay(c.Request.Context(), c.Param("uid"))
	if err != nil {
		writeRecordError(c, err, "list records failed")
		return
	}
	response.OK(c, grouped)
}

func (h *PatientHandler) Summary(c *gin.Context) {
	summary, err := h.summary.Summarize(c.Request.Context(), c.Param("uid"))
	if err != nil {
		writeRecordError(c, err, "summarize records failed")
		return
	}
	response.OK(c, summary)
}
