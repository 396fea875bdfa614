// internal/common/database/elasticsearch.go
package database

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"template-ingest/internal/common/config"
	"template-ingest/internal/common/errors"

	"github.com/elastic/go-elasticsearch/v8"
)

// catalogMapping is the template gallery's search schema.
const catalogMapping = `{
  "mappings": {
    "properties": {
      "templateId":     {"type": "keyword"},
      "assetCount":     {"type": "integer"},
      "previewImages":  {"type": "keyword", "index": false},
      "editableFields": {"type": "flattened"},
      "processedAt":    {"type": "date"}
    }
  }
}`

type ElasticsearchClient struct {
	Client *elasticsearch.Client
}

func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	addresses := cfg.Addresses
	if len(addresses) == 0 && cfg.URL != "" {
		addresses = []string{cfg.URL}
	}

	esCfg := elasticsearch.Config{Addresses: addresses}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticsearchClient{Client: es}, nil
}

func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	res, err := c.Client.Ping(c.Client.Ping.WithContext(ctx))
	if err != nil {
		return errors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewElasticsearchConnectionFailedError(fmt.Errorf("ping: %s", res.Status()))
	}
	return nil
}

// EnsureIndex creates the catalog index with its mapping unless it exists.
func (c *ElasticsearchClient) EnsureIndex(ctx context.Context, index string) error {
	res, err := c.Client.Indices.Exists([]string{index}, c.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return errors.NewElasticsearchConnectionFailedError(err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return errors.NewIndexingFailedError(index, fmt.Errorf("exists check: %s", res.Status()))
	}

	res, err = c.Client.Indices.Create(
		index,
		c.Client.Indices.Create.WithBody(strings.NewReader(catalogMapping)),
		c.Client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return errors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()

	// another replica may have created it first
	if res.IsError() && res.StatusCode != http.StatusBadRequest {
		return errors.NewIndexingFailedError(index, fmt.Errorf("create: %s", res.Status()))
	}
	return nil
}
