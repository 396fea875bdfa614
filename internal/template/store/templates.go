// Package store persists ingest results and answers the lookups the pipeline
// needs: template existence, caller roles, run status and the search catalog.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/lib/pq"

	"template-ingest/internal/common/errors"
	"template-ingest/internal/common/logger"
)

// ProcessedTemplate is the single write a successful run makes.
type ProcessedTemplate struct {
	TemplateID     string
	HTML           string
	AssetURLs      map[string]string
	PreviewImages  []string
	EditableFields map[string]string
}

type TemplateStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewTemplateStore(db *sql.DB, log logger.Logger) *TemplateStore {
	return &TemplateStore{db: db, logger: log}
}

func (s *TemplateStore) Exists(ctx context.Context, templateID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM templates WHERE id = $1)`
	if err := s.db.QueryRowContext(ctx, query, templateID).Scan(&exists); err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return false, errors.NewQueryTimeoutError("template_exists")
		}
		return false, errors.NewQueryExecutionFailedError("template_exists", err)
	}
	return exists, nil
}

// SaveProcessed overwrites the processed columns. Concurrent runs on the same
// template race here and the last write wins.
func (s *TemplateStore) SaveProcessed(ctx context.Context, p ProcessedTemplate) error {
	assetURLs, err := json.Marshal(nonNilMap(p.AssetURLs))
	if err != nil {
		return errors.NewPersistenceFailedError(err)
	}
	fields, err := json.Marshal(nonNilMap(p.EditableFields))
	if err != nil {
		return errors.NewPersistenceFailedError(err)
	}

	var previews interface{}
	if len(p.PreviewImages) > 0 {
		previews = pq.Array(p.PreviewImages)
	}

	query := `UPDATE templates
		SET html_content = $2, asset_urls = $3, preview_images = $4, editable_fields = $5, updated_at = NOW()
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, p.TemplateID, p.HTML, assetURLs, previews, fields)
	if err != nil {
		return errors.NewPersistenceFailedError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewPersistenceFailedError(err)
	}
	if affected == 0 {
		// deleted between validation and persistence
		return errors.NewTemplateNotFoundError(p.TemplateID)
	}

	s.logger.Debug("Processed template saved", map[string]interface{}{
		"templateId":    p.TemplateID,
		"assetCount":    len(p.AssetURLs),
		"previewImages": len(p.PreviewImages),
		"htmlBytes":     len(p.HTML),
	})
	return nil
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
