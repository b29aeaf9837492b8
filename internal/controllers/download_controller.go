package controllers

import (
	"os"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/modelhub/internal/services"
	"github.com/osvaldoandrade/modelhub/pkg/present"
)

type downloadController struct{ svc services.WorkflowService }

func NewDownloadController(svc services.WorkflowService) *downloadController {
	return &downloadController{svc}
}

func (h *downloadController) Handle(c *gin.Context) {
	wf, err := h.svc.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	dir, err := os.MkdirTemp("", "modelhub-download-*")
	if err != nil {
		writeError(c, err)
		return
	}
	defer os.RemoveAll(dir)

	path, err := wf.Download(c.Request.Context(), dir)
	if err != nil {
		writeError(c, err)
		return
	}
	c.FileAttachment(path, present.DownloadName)
}
