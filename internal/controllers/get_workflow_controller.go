package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/modelhub/internal/services"
)

type getWorkflowController struct{ svc services.WorkflowService }

func NewGetWorkflowController(svc services.WorkflowService) *getWorkflowController {
	return &getWorkflowController{svc}
}

func (h *getWorkflowController) Handle(c *gin.Context) {
	wf, err := h.svc.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(c.Request.Context(), wf))
}
