package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/modelhub/internal/services"
)

type chainWorkflowController struct{ svc services.WorkflowService }

func NewChainWorkflowController(svc services.WorkflowService) *chainWorkflowController {
	return &chainWorkflowController{svc}
}

type chainReq struct {
	ModelID string `json:"modelId" binding:"required"`
}

func (h *chainWorkflowController) Handle(c *gin.Context) {
	var req chainReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	next, err := h.svc.Chain(c.Request.Context(), c.Param("id"), req.ModelID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(c.Request.Context(), next))
}
