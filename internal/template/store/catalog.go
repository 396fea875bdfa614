package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"template-ingest/internal/common/errors"
)

// CatalogDocument is what the template gallery searches on.
type CatalogDocument struct {
	TemplateID     string            `json:"templateId"`
	AssetCount     int               `json:"assetCount"`
	PreviewImages  []string          `json:"previewImages"`
	EditableFields map[string]string `json:"editableFields"`
	ProcessedAt    time.Time         `json:"processedAt"`
}

type Catalog struct {
	client *elasticsearch.Client
	index  string
}

func NewCatalog(client *elasticsearch.Client, index string) *Catalog {
	return &Catalog{client: client, index: index}
}

// IndexTemplate upserts the document under the template id.
func (c *Catalog) IndexTemplate(ctx context.Context, doc CatalogDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.NewIndexingFailedError(c.index, err)
	}

	res, err := c.client.Index(
		c.index,
		bytes.NewReader(body),
		c.client.Index.WithDocumentID(doc.TemplateID),
		c.client.Index.WithContext(ctx),
	)
	if err != nil {
		return errors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewIndexingFailedError(c.index, fmt.Errorf("index response: %s", res.Status()))
	}
	return nil
}
