package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/fadedpez/spinz/internal/logging"
	"github.com/fadedpez/spinz/pkg/entities"
)

const indexDateLayout = "2006.01"

// ElasticsearchConfig holds configuration options for the analytics sink
type ElasticsearchConfig struct {
	URL             string
	Username        string
	Password        string
	IndexPrefix     string
	RetentionPeriod time.Duration     // How long monthly indices are kept
	Transport       http.RoundTripper // Optional, defaults to http.DefaultTransport
}

// DefaultElasticsearchConfig returns a default configuration for Elasticsearch
func DefaultElasticsearchConfig() *ElasticsearchConfig {
	return &ElasticsearchConfig{
		URL:             "http://localhost:9200",
		IndexPrefix:     "spinz",
		RetentionPeriod: 365 * 24 * time.Hour,
	}
}

// ElasticsearchSink indexes settled results into monthly indices
// named <prefix>_results_<yyyy.mm>, all reachable through the
// <prefix>_results alias
type ElasticsearchSink struct {
	client       *elasticsearch.Client
	config       *ElasticsearchConfig
	logger       *logging.Logger
	now          func() time.Time
	mu           sync.Mutex
	currentIndex string
}

// NewElasticsearchSink creates a sink. No request is made until the first result is indexed.
func NewElasticsearchSink(config *ElasticsearchConfig, logger *logging.Logger) (*ElasticsearchSink, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{config.URL},
		Transport: config.Transport,
	}

	// Add authentication if provided
	if config.Username != "" && config.Password != "" {
		cfg.Username = config.Username
		cfg.Password = config.Password
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}

	if config.IndexPrefix == "" {
		config.IndexPrefix = "spinz"
	}
	if config.RetentionPeriod == 0 {
		config.RetentionPeriod = 365 * 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Default
	}

	return &ElasticsearchSink{
		client: client,
		config: config,
		logger: logger.With("component", "analytics"),
		now:    time.Now,
	}, nil
}

func (s *ElasticsearchSink) aliasName() string {
	return s.config.IndexPrefix + "_results"
}

func (s *ElasticsearchSink) indexName(t time.Time) string {
	return s.aliasName() + "_" + t.UTC().Format(indexDateLayout)
}

// Publish indexes a settled result
func (s *ElasticsearchSink) Publish(ctx context.Context, result *entities.GameResult) error {
	return s.IndexResult(ctx, result)
}

// IndexResult indexes a result into the current monthly index. The result
// ID is the document ID so re-publishing overwrites instead of duplicating.
func (s *ElasticsearchSink) IndexResult(ctx context.Context, result *entities.GameResult) error {
	index, err := s.ensureIndex(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(newESResult(result))
	if err != nil {
		return fmt.Errorf("error marshaling result: %w", err)
	}

	res, err := s.client.Index(
		index,
		bytes.NewReader(data),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(result.ID),
	)
	if err != nil {
		return fmt.Errorf("error indexing result: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing result: %s", res.String())
	}
	return nil
}

func (s *ElasticsearchSink) ensureIndex(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := s.indexName(s.now())
	if s.currentIndex == want {
		return want, nil
	}
	if err := s.rotateLocked(ctx, want); err != nil {
		return "", err
	}
	return want, nil
}

// RotateIndices creates the index for the current month if needed and adds it to the alias
func (s *ElasticsearchSink) RotateIndices(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateLocked(ctx, s.indexName(s.now()))
}

func (s *ElasticsearchSink) rotateLocked(ctx context.Context, index string) error {
	res, err := s.client.Indices.Exists([]string{index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error checking if index exists: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		req := esapi.IndicesCreateRequest{
			Index: index,
			Body:  strings.NewReader(resultMapping),
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return fmt.Errorf("error creating index %s: %w", index, err)
		}
		defer res.Body.Close()

		// Another process may have created it in between
		if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
			return fmt.Errorf("error creating index %s: %s", index, res.String())
		}
		s.logger.Info("Created analytics index %s", index)
	}

	aliasActions := map[string]interface{}{
		"actions": []map[string]interface{}{
			{"add": map[string]interface{}{"index": index, "alias": s.aliasName()}},
		},
	}
	aliasJSON, err := json.Marshal(aliasActions)
	if err != nil {
		return fmt.Errorf("error marshaling alias actions: %w", err)
	}

	aliasReq := esapi.IndicesUpdateAliasesRequest{Body: bytes.NewReader(aliasJSON)}
	aliasRes, err := aliasReq.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("error updating alias: %w", err)
	}
	defer aliasRes.Body.Close()

	if aliasRes.IsError() {
		return fmt.Errorf("error updating alias: %s", aliasRes.String())
	}

	s.currentIndex = index
	return nil
}

// GetIndices returns the monthly result indices, oldest first
func (s *ElasticsearchSink) GetIndices(ctx context.Context) ([]string, error) {
	res, err := s.client.Indices.Get(
		[]string{s.aliasName() + "_*"},
		s.client.Indices.Get.WithContext(ctx),
		s.client.Indices.Get.WithExpandWildcards("open"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get indices: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error getting indices: %s", res.String())
	}

	var indices map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&indices); err != nil {
		return nil, fmt.Errorf("error parsing indices response: %w", err)
	}

	names := make([]string, 0, len(indices))
	for name := range indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// PruneOldIndices deletes monthly indices whose month ended before the
// retention period. Returns the deleted index names.
func (s *ElasticsearchSink) PruneOldIndices(ctx context.Context) ([]string, error) {
	indices, err := s.GetIndices(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-s.config.RetentionPeriod)
	prefix := s.aliasName() + "_"
	deleted := make([]string, 0)

	for _, name := range indices {
		month, err := time.Parse(indexDateLayout, strings.TrimPrefix(name, prefix))
		if err != nil {
			s.logger.Warn("Skipping index %s: %v", name, err)
			continue
		}
		if !month.AddDate(0, 1, 0).Before(cutoff) {
			continue
		}

		req := esapi.IndicesDeleteRequest{Index: []string{name}}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			s.logger.Error("Error deleting index %s: %v", name, err)
			continue
		}
		res.Body.Close()

		if res.IsError() {
			s.logger.Error("Error deleting index %s: %s", name, res.String())
			continue
		}

		s.logger.Info("Deleted index %s (older than retention period of %v)", name, s.config.RetentionPeriod)
		deleted = append(deleted, name)
	}

	return deleted, nil
}
