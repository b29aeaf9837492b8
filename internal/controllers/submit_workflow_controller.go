package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/modelhub/internal/services"
)

type submitWorkflowController struct{ svc services.WorkflowService }

func NewSubmitWorkflowController(svc services.WorkflowService) *submitWorkflowController {
	return &submitWorkflowController{svc}
}

// Handle starts a run in the background and answers 202 with the
// Processing run; clients poll GET /v1/workflows/:id for progress.
func (h *submitWorkflowController) Handle(c *gin.Context) {
	wf, err := h.svc.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	run, err := wf.SubmitAsync(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}
