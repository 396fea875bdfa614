package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"template-ingest/internal/common/errors"
	"template-ingest/internal/common/logger"
	"template-ingest/internal/template/pipeline"
)

const successMessage = "Template processed successfully"

type Handler struct {
	processor Processor
	runs      RunReader
	logger    logger.Logger
}

type ProcessRequest struct {
	TemplateID string `json:"templateId"`
	ZipURL     string `json:"zipUrl"`
}

type ProcessResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	AssetCount    int    `json:"assetCount"`
	PreviewImages int    `json:"previewImages"`
	RunID         string `json:"runId"`
}

// ProcessTemplateZip handles POST /functions/process-template-zip.
func (h *Handler) ProcessTemplateZip(c *gin.Context) {
	var req ProcessRequest
	// an unreadable body is reported as missing fields, after the role check
	_ = c.ShouldBindJSON(&req)

	res, err := h.processor.Run(c.Request.Context(), pipeline.Request{
		Identity:   identityFrom(c),
		TemplateID: req.TemplateID,
		ZipURL:     req.ZipURL,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ProcessResponse{
		Success:       true,
		Message:       successMessage,
		AssetCount:    res.AssetCount,
		PreviewImages: len(res.PreviewImages),
		RunID:         res.RunID,
	})
}

// GetRun handles GET /functions/process-template-zip/runs/:runId.
func (h *Handler) GetRun(c *gin.Context) {
	status, err := h.runs.Get(c.Request.Context(), c.Param("runId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	stdErr := errors.AsStandardError(err)
	status := errors.HTTPStatus(stdErr.Code)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": stdErr.Message})
}
