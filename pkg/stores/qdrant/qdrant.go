package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/theapemachine/recall/pkg/errors"
)

// Client wraps an endpoint + collection.
type Client struct {
	Endpoint   string // e.g. http://localhost:6333
	Collection string // e.g. "alice_episodic"
	httpClient *http.Client
}

// New returns a Client with sane defaults.
func New(endpoint, collection string) *Client {
	return &Client{
		Endpoint:   endpoint,
		Collection: collection,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type wirePoint struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score,omitempty"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (client *Client) url(format string, args ...any) string {
	return client.Endpoint + fmt.Sprintf(format, args...)
}

/*
do sends a JSON request and decodes the "result" member of the response into
out, when out is non-nil. A 404 maps onto errors.ErrNotFound.
*/
func (client *Client) do(
	ctx context.Context, method, url string, body any, out any,
) error {
	var reader io.Reader

	if body != nil {
		b, err := json.Marshal(body)

		if err != nil {
			return err
		}

		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)

	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.httpClient.Do(req)

	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.ErrNotFound
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant: %s %s status %s", method, url, resp.Status)
	}

	if out == nil {
		return nil
	}

	envelope := struct {
		Result any `json:"result"`
	}{Result: out}

	return json.NewDecoder(resp.Body).Decode(&envelope)
}

/*
EnsureCollection creates the collection with cosine distance when it does not
exist yet. It doubles as the connectivity check for the backend.
*/
func (client *Client) EnsureCollection(ctx context.Context, dim int) error {
	err := client.do(ctx, http.MethodGet, client.url("/collections/%s", client.Collection), nil, nil)

	if err == nil {
		return nil
	}

	if !errors.Is(err, errors.ErrNotFound) {
		return err
	}

	return client.do(ctx, http.MethodPut, client.url("/collections/%s", client.Collection), map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}, nil)
}

// DeleteCollection drops the collection and every point in it.
func (client *Client) DeleteCollection(ctx context.Context) error {
	err := client.do(ctx, http.MethodDelete, client.url("/collections/%s", client.Collection), nil, nil)

	if errors.Is(err, errors.ErrNotFound) {
		return nil
	}

	return err
}

// Upsert writes a batch of points, waiting for the write to be applied.
func (client *Client) Upsert(ctx context.Context, points []Point) error {
	wire := make([]wirePoint, 0, len(points))

	for _, p := range points {
		wire = append(wire, wirePoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
	}

	return client.do(
		ctx,
		http.MethodPut,
		client.url("/collections/%s/points?wait=true", client.Collection),
		map[string]any{"points": wire},
		nil,
	)
}

// Get retrieves a point by key including its payload and vector.
func (client *Client) Get(ctx context.Context, key string) (*Point, error) {
	var out wirePoint

	if err := client.do(
		ctx,
		http.MethodGet,
		client.url("/collections/%s/points/%s", client.Collection, PointID(key)),
		nil,
		&out,
	); err != nil {
		return nil, err
	}

	return &Point{ID: out.ID, Vector: out.Vector, Payload: out.Payload}, nil
}

// Search returns up to limit points ordered by descending similarity.
func (client *Client) Search(ctx context.Context, queryVec []float32, limit int) ([]ScoredPoint, error) {
	var out []wirePoint

	if err := client.do(
		ctx,
		http.MethodPost,
		client.url("/collections/%s/points/search", client.Collection),
		map[string]any{
			"vector":       queryVec,
			"limit":        limit,
			"with_payload": true,
			"with_vector":  true,
		},
		&out,
	); err != nil {
		return nil, err
	}

	points := make([]ScoredPoint, 0, len(out))

	for _, r := range out {
		points = append(points, ScoredPoint{
			Point: Point{ID: r.ID, Vector: r.Vector, Payload: r.Payload},
			Score: r.Score,
		})
	}

	return points, nil
}

// SetPayload merges payload keys into an existing point.
func (client *Client) SetPayload(ctx context.Context, key string, payload map[string]any) error {
	return client.do(
		ctx,
		http.MethodPost,
		client.url("/collections/%s/points/payload?wait=true", client.Collection),
		map[string]any{
			"payload": payload,
			"points":  []string{PointID(key)},
		},
		nil,
	)
}

// Count returns the exact number of points in the collection.
func (client *Client) Count(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}

	if err := client.do(
		ctx,
		http.MethodPost,
		client.url("/collections/%s/points/count", client.Collection),
		map[string]any{"exact": true},
		&out,
	); err != nil {
		return 0, err
	}

	return out.Count, nil
}
