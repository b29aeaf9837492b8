package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/modelhub/internal/services"
)

type startWorkflowController struct{ svc services.WorkflowService }

func NewStartWorkflowController(svc services.WorkflowService) *startWorkflowController {
	return &startWorkflowController{svc}
}

type startReq struct {
	ModelID  string `json:"modelId" binding:"required"`
	ImageURL string `json:"imageUrl,omitempty"`
}

func (h *startWorkflowController) Handle(c *gin.Context) {
	var req startReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	wf, err := h.svc.Start(c.Request.Context(), req.ModelID, req.ImageURL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(c.Request.Context(), wf))
}
