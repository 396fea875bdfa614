package processtemplatezip

import (
	"context"

	"template-ingest/internal/common/auth"
	"template-ingest/internal/common/logger"
	"template-ingest/internal/template/pipeline"
)

// Processor runs one ingest. *pipeline.Pipeline implements it.
type Processor interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type Service struct {
	config    *Config
	logger    logger.Logger
	processor Processor
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config:    config,
		logger:    deps.Logger,
		processor: deps.Processor,
	}
}

// Execute runs the pipeline on behalf of the process's user. The BPMN caller
// is trusted for identity, but the user must still hold the admin role.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	s.logger.Info("Executing template ingest", map[string]interface{}{
		"templateId": input.TemplateID,
		"userId":     input.UserID,
	})

	res, err := s.processor.Run(ctx, pipeline.Request{
		Identity:   &auth.Identity{UserID: input.UserID, Source: "zeebe"},
		TemplateID: input.TemplateID,
		ZipURL:     input.ZipURL,
	})
	if err != nil {
		return nil, err
	}

	previews := res.PreviewImages
	if previews == nil {
		previews = []string{}
	}
	return &Output{
		Processed:         true,
		AssetCount:        res.AssetCount,
		PreviewImageCount: len(previews),
		PreviewImages:     previews,
		RunID:             res.RunID,
	}, nil
}
