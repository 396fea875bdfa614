package processtemplatezip

import (
	"template-ingest/internal/common/logger"
)

type Input struct {
	TemplateID string `json:"templateId"`
	ZipURL     string `json:"zipUrl"`
	UserID     string `json:"userId"`
}

type Output struct {
	Processed         bool     `json:"processed"`
	AssetCount        int      `json:"assetCount"`
	PreviewImageCount int      `json:"previewImageCount"`
	PreviewImages     []string `json:"previewImages"`
	RunID             string   `json:"runId"`
}

type ServiceDependencies struct {
	Processor Processor
	Logger    logger.Logger
}
