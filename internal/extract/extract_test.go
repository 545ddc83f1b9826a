package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractParsesBackendReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/extract", r.URL.Path)

		var req extractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "/tmp/shots/a.png", req.ImagePath)
		assert.Equal(t, ContextPlacement, req.Stage)

		json.NewEncoder(w).Encode(map[string]string{
			"restaurant_name":                 "Hey Tea",
			"order_placement_time":            "8:17 PM",
			"earliest_estimated_arrival_time": "8:45",
		})
	}))
	defer srv.Close()

	fields, err := NewClient(srv.URL).Extract(context.Background(), "/tmp/shots/a.png", ContextPlacement)
	require.NoError(t, err)
	require.NotNil(t, fields)
	assert.False(t, fields.Empty())

	assert.Equal(t, "Hey Tea", *fields.RestaurantName)
	assert.Nil(t, fields.RestaurantAddress)

	require.NotNil(t, fields.OrderPlacementTime)
	placed := time.Unix(*fields.OrderPlacementTime, 0).Local()
	assert.Equal(t, 20, placed.Hour())
	assert.Equal(t, 17, placed.Minute())

	// The bare 8:45 borrows the PM designator from its sibling.
	require.NotNil(t, fields.EarliestEstimatedArrivalTime)
	earliest := time.Unix(*fields.EarliestEstimatedArrivalTime, 0).Local()
	assert.Equal(t, 20, earliest.Hour())
	assert.Equal(t, 45, earliest.Minute())
}

func TestExtractNoContentMeansEmptyFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	fields, err := NewClient(srv.URL).Extract(context.Background(), "/tmp/shots/a.png", ContextArrival)
	require.NoError(t, err)
	assert.True(t, fields.Empty())
}

func TestExtractBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Extract(context.Background(), "/tmp/shots/a.png", ContextPlacement)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestNormalizeBorrowsDominantMeridiem(t *testing.T) {
	now := time.Date(2025, 3, 29, 12, 0, 0, 0, time.Local)

	fields := normalize(rawResult{
		OrderPlacementTime:           "8:17 PM",
		EarliestEstimatedArrivalTime: "8:45",
		LatestEstimatedArrivalTime:   "9:15 PM",
	}, now)

	want := func(h, m int) int64 {
		return time.Date(2025, 3, 29, h, m, 0, 0, time.Local).Unix()
	}
	assert.Equal(t, want(20, 17), *fields.OrderPlacementTime)
	assert.Equal(t, want(20, 45), *fields.EarliestEstimatedArrivalTime)
	assert.Equal(t, want(21, 15), *fields.LatestEstimatedArrivalTime)
	assert.Nil(t, fields.OrderCompletionTime)
}

func TestNormalizeKeepsUnparsableTimesNil(t *testing.T) {
	now := time.Date(2025, 3, 29, 12, 0, 0, 0, time.Local)

	fields := normalize(rawResult{
		RestaurantAddress:  "100 Main St",
		OrderPlacementTime: "as soon as possible",
	}, now)

	assert.Equal(t, "100 Main St", *fields.RestaurantAddress)
	assert.Nil(t, fields.OrderPlacementTime)
	assert.False(t, fields.Empty())
}
