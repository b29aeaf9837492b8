package controllers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/modelhub/internal/middleware"
	"github.com/osvaldoandrade/modelhub/internal/services"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
	"github.com/osvaldoandrade/modelhub/pkg/form"
)

const maxUploadBytes = 32 << 20

type uploadFieldController struct{ svc services.WorkflowService }

func NewUploadFieldController(svc services.WorkflowService) *uploadFieldController {
	return &uploadFieldController{svc}
}

// Handle stores the multipart "file" in a temp dir, checks it is an image
// and runs the upload sub-flow for the field.
func (h *uploadFieldController) Handle(c *gin.Context) {
	wf, err := h.svc.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	dir, err := os.MkdirTemp("", "modelhub-upload-*")
	if err != nil {
		writeError(c, err)
		return
	}
	defer os.RemoveAll(dir)

	dst := filepath.Join(dir, filepath.Base(fh.Filename))
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		writeError(c, err)
		return
	}
	file, err := form.OpenLocal(dst, domain.FieldImage)
	if err != nil {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
		return
	}
	if err := wf.Upload(c.Request.Context(), c.Param("key"), file); err != nil {
		middleware.Logger(c, nil).Warn("shell upload failed", "workflow_id", wf.ID(), "field", c.Param("key"), "err", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(c.Request.Context(), wf))
}
