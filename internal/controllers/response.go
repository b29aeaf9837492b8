package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/modelhub/internal/services"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
	"github.com/osvaldoandrade/modelhub/pkg/present"
	"github.com/osvaldoandrade/modelhub/pkg/workflow"
)

// workflowView is the JSON shape of one workflow instance.
type workflowView struct {
	ID     string              `json:"id"`
	Model  *domain.Model       `json:"model"`
	Inputs map[string]any      `json:"inputs"`
	Run    domain.JobRun       `json:"run"`
	Gate   workflow.GateResult `json:"gate"`
	Frame  present.Frame       `json:"frame"`
}

func viewOf(ctx context.Context, wf *workflow.Workflow) workflowView {
	return workflowView{
		ID:     wf.ID(),
		Model:  wf.Model(),
		Inputs: wf.Inputs(),
		Run:    wf.Run(),
		Gate:   wf.Gate(ctx),
		Frame:  wf.Frame(),
	}
}

// writeError maps workflow errors onto status codes.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	var (
		verr *domain.ValidationError
		cerr *domain.CreditError
		uerr *domain.UploadError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Error(), "missing": verr.Missing})
	case errors.As(err, &cerr):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": cerr.Error(), "cost": cerr.Cost, "credits": cerr.Credits})
	case errors.Is(err, domain.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in to process images"})
	case errors.Is(err, services.ErrWorkflowNotFound), errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrUnknownField):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRunInProgress), errors.Is(err, domain.ErrUploadInProgress), errors.Is(err, domain.ErrNoResult):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrStopped), errors.Is(err, workflow.ErrNotStarted):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.As(err, &uerr), errors.Is(err, domain.ErrNetwork):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
