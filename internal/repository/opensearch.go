package repository

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/telhawk-systems/agent-events/common/database"
	"github.com/telhawk-systems/agent-events/internal/codec"
	"github.com/telhawk-systems/agent-events/internal/models"
)

const defaultSearchPageSize = 1000

// OpenSearchConfig holds connection settings for OpenSearchRepository.
type OpenSearchConfig struct {
	URL      string
	Username string
	Password string
	Insecure bool
	Index    string
	PageSize int
}

// OpenSearchRepository stores events as documents in a single OpenSearch index.
type OpenSearchRepository struct {
	client   *opensearch.Client
	index    string
	pageSize int
	pipeline *codec.Pipeline
	timeouts database.Timeouts
	seq      atomic.Int64
}

type osDocument struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp float64         `json:"timestamp"`
	Tags      []string        `json:"tags"`
	Seq       int64           `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
}

type osSearchResponse struct {
	Hits struct {
		Hits []struct {
			Source osDocument        `json:"_source"`
			Sort   []json.RawMessage `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

var osIndexMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":        map[string]any{"type": "keyword"},
			"type":      map[string]any{"type": "keyword"},
			"timestamp": map[string]any{"type": "double"},
			"tags":      map[string]any{"type": "keyword"},
			"seq":       map[string]any{"type": "long"},
			"payload":   map[string]any{"type": "object", "enabled": false},
		},
	},
}

// NewOpenSearchRepository connects to OpenSearch and creates the index if missing.
func NewOpenSearchRepository(ctx context.Context, cfg OpenSearchConfig, pipeline *codec.Pipeline, opts ...Option) (*OpenSearchRepository, error) {
	o := applyOptions(opts)
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Insecure, //nolint:gosec
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	r := &OpenSearchRepository{
		client:   client,
		index:    cfg.Index,
		pageSize: cfg.PageSize,
		pipeline: pipeline,
		timeouts: o.timeouts,
	}
	if r.pageSize <= 0 {
		r.pageSize = defaultSearchPageSize
	}
	r.seq.Store(time.Now().UnixNano())

	if err := r.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OpenSearchRepository) ensureIndex(ctx context.Context) error {
	ctx, cancel := r.timeouts.MigrationContext(ctx)
	defer cancel()

	exists, err := r.client.Indices.Exists([]string{r.index}, r.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", r.index, err)
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(osIndexMapping)
	if err != nil {
		return err
	}
	res, err := r.client.Indices.Create(r.index,
		r.client.Indices.Create.WithBody(bytes.NewReader(body)),
		r.client.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", r.index, err)
	}
	defer res.Body.Close()

	if res.IsError() && !strings.Contains(readBody(res), "resource_already_exists_exception") {
		return fmt.Errorf("failed to create index %s: %s", r.index, res.Status())
	}
	return nil
}

// Save implements Writer. Documents are refreshed immediately so they are
// visible to the next query.
func (r *OpenSearchRepository) Save(ctx context.Context, e models.Event) error {
	payload, err := r.pipeline.EncodeOne(e)
	if err != nil {
		return err
	}
	h := e.Header()

	doc, err := json.Marshal(osDocument{
		ID:        h.ID.String(),
		Type:      string(e.Type()),
		Timestamp: h.Timestamp,
		Tags:      h.Tags,
		Seq:       r.seq.Add(1),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	ctx, cancel := r.timeouts.WriteContext(ctx)
	defer cancel()

	res, err := r.client.Index(r.index, bytes.NewReader(doc),
		r.client.Index.WithDocumentID(h.ID.String()),
		r.client.Index.WithOpType("create"),
		r.client.Index.WithRefresh("true"),
		r.client.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to index event: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		return ErrDuplicate
	}
	if res.IsError() {
		return fmt.Errorf("failed to index event: %s - %s", res.Status(), readBody(res))
	}
	return nil
}

// Events implements Reader.
func (r *OpenSearchRepository) Events(ctx context.Context) ([]models.Event, error) {
	return r.search(ctx, map[string]any{"match_all": map[string]any{}})
}

// EventsByType implements Reader.
func (r *OpenSearchRepository) EventsByType(ctx context.Context, t models.EventType) ([]models.Event, error) {
	return r.search(ctx, map[string]any{"term": map[string]any{"type": string(t)}})
}

// EventsByTag implements Reader.
func (r *OpenSearchRepository) EventsByTag(ctx context.Context, tag string) ([]models.Event, error) {
	return r.search(ctx, map[string]any{"term": map[string]any{"tags": tag}})
}

// Close is a no-op; the client holds no persistent resources.
func (r *OpenSearchRepository) Close() error { return nil }

// search pages through every hit in (timestamp, seq) order using search_after.
func (r *OpenSearchRepository) search(ctx context.Context, query map[string]any) ([]models.Event, error) {
	ctx, cancel := r.timeouts.QueryContext(ctx)
	defer cancel()

	events := []models.Event{}
	var after []json.RawMessage
	for {
		req := map[string]any{
			"size":  r.pageSize,
			"query": query,
			"sort": []map[string]any{
				{"timestamp": "asc"},
				{"seq": "asc"},
			},
		}
		if after != nil {
			req["search_after"] = after
		}
		body, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}

		res, err := r.client.Search(
			r.client.Search.WithIndex(r.index),
			r.client.Search.WithBody(bytes.NewReader(body)),
			r.client.Search.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to search events: %w", err)
		}

		page, err := decodeSearch(res)
		if err != nil {
			return nil, err
		}

		hits := page.Hits.Hits
		for _, hit := range hits {
			e, err := decodeStored(r.pipeline, hit.Source.Payload)
			if err != nil {
				return nil, err
			}
			events = append(events, e)
		}
		if len(hits) < r.pageSize {
			return events, nil
		}
		after = hits[len(hits)-1].Sort
	}
}

func decodeSearch(res *opensearchapi.Response) (*osSearchResponse, error) {
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("failed to search events: %s - %s", res.Status(), readBody(res))
	}
	var page osSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &page, nil
}

func readBody(res *opensearchapi.Response) string {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return string(b)
}
