package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/modelhub/internal/services"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
	"github.com/osvaldoandrade/modelhub/pkg/form"
)

type setFieldController struct{ svc services.WorkflowService }

func NewSetFieldController(svc services.WorkflowService) *setFieldController {
	return &setFieldController{svc}
}

type setFieldReq struct {
	Value any `json:"value"`
}

// Handle accepts JSON values as-is. Strings for non-text fields go through
// form.Parse, so "3" sets a number and a path selects a video or audio file.
func (h *setFieldController) Handle(c *gin.Context) {
	wf, err := h.svc.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req setFieldReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	key := c.Param("key")
	m := wf.Model()
	if m == nil {
		writeError(c, domain.ErrStopped)
		return
	}
	field, ok := m.Field(key)
	if !ok {
		writeError(c, fmt.Errorf("%w: %s", domain.ErrUnknownField, key))
		return
	}

	value := req.Value
	if s, isString := value.(string); isString && field.Type != domain.FieldText {
		parsed, err := form.Parse(field, s)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		if _, local := parsed.(*domain.LocalFile); local && field.Type == domain.FieldImage {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "local images must be uploaded"})
			return
		}
		value = parsed
	}
	if err := wf.SetField(key, value); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(c.Request.Context(), wf))
}
