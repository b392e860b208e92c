package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/apex/log"
)

// indexTarget maps a logical collection onto a physical index host and an
// optional namespace within it. The deployment uses three physical indexes:
// one per semantic collection and a shared metadata store.
type indexTarget struct {
	Host      string
	Namespace string
}

// PineconeStore implements Store over the Pinecone HTTP data-plane API.
type PineconeStore struct {
	apiKey  string
	targets map[string]indexTarget
	client  *http.Client
}

// NewPineconeStore creates a store client. Hosts are the data-plane URLs of
// the three physical indexes (e.g. "https://complaints-xxxx.svc.pinecone.io").
func NewPineconeStore(apiKey, complaintsHost, proofsHost, metadataHost string) *PineconeStore {
	return &PineconeStore{
		apiKey: apiKey,
		targets: map[string]indexTarget{
			CollectionComplaints:     {Host: complaintsHost},
			CollectionProofs:         {Host: proofsHost},
			CollectionReferencePairs: {Host: proofsHost, Namespace: "reference_pairs"},
			CollectionChunks:         {Host: metadataHost, Namespace: "chunks"},
			CollectionPhashIndex:     {Host: metadataHost, Namespace: "phash"},
			CollectionAudits:         {Host: metadataHost, Namespace: "audits"},
		},
		client: &http.Client{},
	}
}

func (p *PineconeStore) target(collection string) (indexTarget, error) {
	t, ok := p.targets[collection]
	if !ok {
		return indexTarget{}, fmt.Errorf("unknown collection: %s", collection)
	}
	return t, nil
}

func (p *PineconeStore) post(ctx context.Context, host, path string, reqBody, respBody any) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+path, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Api-Key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("store API error (status %d): %s", resp.StatusCode, string(body))
	}
	if respBody != nil {
		if err := json.Unmarshal(body, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Put upserts a single vector with its payload as metadata.
func (p *PineconeStore) Put(ctx context.Context, collection, key string, vector []float32, payload map[string]any) error {
	t, err := p.target(collection)
	if err != nil {
		return err
	}

	reqBody := struct {
		Vectors   []pineconeVector `json:"vectors"`
		Namespace string           `json:"namespace,omitempty"`
	}{
		Vectors:   []pineconeVector{{ID: key, Values: vector, Metadata: payload}},
		Namespace: t.Namespace,
	}

	if err := p.post(ctx, t.Host, "/vectors/upsert", reqBody, nil); err != nil {
		return err
	}
	log.Infof("upserted %s into collection %s", key, collection)
	return nil
}

// Get fetches a single vector by id; ErrNotFound when absent.
func (p *PineconeStore) Get(ctx context.Context, collection, key string) (*Entry, error) {
	t, err := p.target(collection)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("ids", key)
	if t.Namespace != "" {
		q.Set("namespace", t.Namespace)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.Host+"/vectors/fetch?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("store API error (status %d): %s", resp.StatusCode, string(body))
	}

	var fetchResp struct {
		Vectors map[string]pineconeVector `json:"vectors"`
	}
	if err := json.Unmarshal(body, &fetchResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	v, ok := fetchResp.Vectors[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &Entry{Key: v.ID, Vector: v.Values, Payload: v.Metadata}, nil
}

// Query runs a bounded top-K similarity search with an optional equality
// filter on payload fields.
func (p *PineconeStore) Query(ctx context.Context, collection string, probe []float32, topK int, filter map[string]any) ([]Match, error) {
	t, err := p.target(collection)
	if err != nil {
		return nil, err
	}

	reqBody := struct {
		Vector          []float32      `json:"vector"`
		TopK            int            `json:"topK"`
		IncludeMetadata bool           `json:"includeMetadata"`
		IncludeValues   bool           `json:"includeValues"`
		Filter          map[string]any `json:"filter,omitempty"`
		Namespace       string         `json:"namespace,omitempty"`
	}{
		Vector:          probe,
		TopK:            topK,
		IncludeMetadata: true,
		IncludeValues:   true,
		Filter:          filter,
		Namespace:       t.Namespace,
	}

	var queryResp struct {
		Matches []struct {
			ID       string         `json:"id"`
			Score    float64        `json:"score"`
			Values   []float32      `json:"values"`
			Metadata map[string]any `json:"metadata"`
		} `json:"matches"`
	}
	if err := p.post(ctx, t.Host, "/query", reqBody, &queryResp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(queryResp.Matches))
	for _, m := range queryResp.Matches {
		matches = append(matches, Match{Key: m.ID, Score: m.Score, Vector: m.Values, Payload: m.Metadata})
	}
	return matches, nil
}
