package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/toystudio/internal/history"
)

// DefaultIndex is used when the DSN names no index.
const DefaultIndex = "product-history"

// Sink indexes events into OpenSearch (or Elasticsearch) over HTTP.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	if index == "" {
		index = DefaultIndex
	}
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	resp, err := s.post(ctx, fmt.Sprintf("%s/%s/_doc", s.baseURL, s.index), b)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source history.Event `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Query runs a _search sorted by occurred_at descending.
func (s *Sink) Query(ctx context.Context, f history.Filter) ([]history.Event, error) {
	query := map[string]any{"match_all": map[string]any{}}
	if f.Product != "" {
		query = map[string]any{"term": map[string]any{"product.keyword": f.Product}}
	}
	body, err := json.Marshal(map[string]any{
		"size":  f.EffectiveLimit(),
		"sort":  []any{map[string]any{"occurred_at": map[string]any{"order": "desc"}}},
		"query": query,
	})
	if err != nil {
		return nil, err
	}
	resp, err := s.post(ctx, fmt.Sprintf("%s/%s/_search", s.baseURL, s.index), body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("opensearch search status %d", resp.StatusCode)
	}
	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode opensearch response: %w", err)
	}
	out := make([]history.Event, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

func (s *Sink) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.client.Do(req)
}
