package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/modelhub/internal/services"
)

type stopWorkflowController struct{ svc services.WorkflowService }

func NewStopWorkflowController(svc services.WorkflowService) *stopWorkflowController {
	return &stopWorkflowController{svc}
}

func (h *stopWorkflowController) Handle(c *gin.Context) {
	if err := h.svc.Stop(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
