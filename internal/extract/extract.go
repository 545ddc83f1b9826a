// Package extract wraps the image extraction backend behind an HTTP client
// and maps its raw output onto the canonical order field set.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"snackngo/internal/timeparse"
)

// StageContext tells the backend which screenshot it is looking at.
type StageContext string

const (
	ContextPlacement StageContext = "placement"
	ContextArrival   StageContext = "arrival"
)

// Fields is the canonical extraction result. Every value is optional; a nil
// field is a recoverable miss, not an error.
type Fields struct {
	RestaurantName               *string
	RestaurantAddress            *string
	OrderPlacementTime           *int64
	EarliestEstimatedArrivalTime *int64
	LatestEstimatedArrivalTime   *int64
	OrderCompletionTime          *int64
}

// Empty reports whether extraction produced nothing usable.
func (f *Fields) Empty() bool {
	return f.RestaurantName == nil &&
		f.RestaurantAddress == nil &&
		f.OrderPlacementTime == nil &&
		f.EarliestEstimatedArrivalTime == nil &&
		f.LatestEstimatedArrivalTime == nil &&
		f.OrderCompletionTime == nil
}

// rawResult is the backend's reply: free text per field, times unresolved.
type rawResult struct {
	RestaurantName               string `json:"restaurant_name"`
	RestaurantAddress            string `json:"restaurant_address"`
	OrderPlacementTime           string `json:"order_placement_time"`
	EarliestEstimatedArrivalTime string `json:"earliest_estimated_arrival_time"`
	LatestEstimatedArrivalTime   string `json:"latest_estimated_arrival_time"`
	OrderCompletionTime          string `json:"order_completion_time"`
}

type extractRequest struct {
	ImagePath string       `json:"image_path"`
	Stage     StageContext `json:"stage"`
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Extract sends the stored screenshot to the backend and returns the
// normalized field set. I/O-level failure is an error; a reply with no
// recognizable fields comes back as empty Fields.
func (c *Client) Extract(ctx context.Context, imagePath string, stage StageContext) (*Fields, error) {
	body, err := json.Marshal(extractRequest{ImagePath: imagePath, Stage: stage})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/extract", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var raw rawResult
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return normalize(raw, time.Now()), nil
	case http.StatusNoContent:
		return &Fields{}, nil
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status: %d, body: %s", resp.StatusCode, string(respBody))
	}
}

// normalize resolves the backend's free-text times into timestamps. Bare
// times with no AM/PM designator borrow the majority designator among the
// reply's own time candidates.
func normalize(raw rawResult, now time.Time) *Fields {
	fields := &Fields{
		RestaurantName:    optText(raw.RestaurantName),
		RestaurantAddress: optText(raw.RestaurantAddress),
	}

	candidates := timeparse.DedupeCandidates(nonEmpty(
		raw.OrderPlacementTime,
		raw.EarliestEstimatedArrivalTime,
		raw.LatestEstimatedArrivalTime,
		raw.OrderCompletionTime,
	))
	hint := timeparse.DominantMeridiem(candidates)

	fields.OrderPlacementTime = optTime(raw.OrderPlacementTime, hint, now)
	fields.EarliestEstimatedArrivalTime = optTime(raw.EarliestEstimatedArrivalTime, hint, now)
	fields.LatestEstimatedArrivalTime = optTime(raw.LatestEstimatedArrivalTime, hint, now)
	fields.OrderCompletionTime = optTime(raw.OrderCompletionTime, hint, now)

	return fields
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func optText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optTime(s, hint string, now time.Time) *int64 {
	ts, ok := timeparse.NormalizeExtracted(s, hint, now)
	if !ok {
		return nil
	}
	return &ts
}
