package geocoding

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
	"github.com/nemaec/nemaec-engine/pkg/retry"
)

const testAPIKey = "AIzaTESTKEY0123456789abcdef"

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func newTestGoogleClient(t *testing.T, handler http.HandlerFunc, logger *zap.Logger) *GoogleClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewGoogleClient(GoogleConfig{
		APIKey:            testAPIKey,
		BaseURL:           server.URL,
		Region:            "pe",
		Language:          "es",
		RequestsPerSecond: 1000,
		Retry:             fastRetry(),
	}, logger)
}

const searchBody = `{
  "status": "OK",
  "results": [
    {
      "place_id": "ChIJ-miraflores",
      "name": "Comisaría de Miraflores",
      "formatted_address": "Calle Gral. Borgoño 290, Miraflores 15074, Peru",
      "geometry": {"location": {"lat": -12.1211, "lng": -77.0297}},
      "address_components": [{"long_name": "Miraflores", "short_name": "Miraflores", "types": ["locality", "political"]}]
    },
    {
      "place_id": "ChIJ-parque",
      "name": "Parque Kennedy",
      "formatted_address": "Av. Larco, Miraflores, Peru",
      "geometry": {"location": {"lat": -12.1219, "lng": -77.0301}}
    },
    {
      "place_id": "ChIJ-serenazgo",
      "name": "Base de Serenazgo",
      "formatted_address": "Av. Arequipa 4500, Miraflores, Peru",
      "geometry": {"location": {"lat": -12.115, "lng": -77.031}}
    }
  ]
}`

func TestGoogleClient_Search(t *testing.T) {
	var gotQuery, gotPath string
	client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(searchBody))
	}, nil)

	places, err := client.Search(context.Background(), "Miraflores")
	require.NoError(t, err)

	assert.Equal(t, "/textsearch/json", gotPath)
	assert.Contains(t, gotQuery, "region=pe")
	assert.Contains(t, gotQuery, "language=es")
	assert.Contains(t, gotQuery, "key="+testAPIKey)
	assert.Contains(t, gotQuery, "CPNP+Miraflores")

	require.Len(t, places, 2, "non-police results are filtered out")
	assert.Equal(t, "ChIJ-miraflores", places[0].PlaceID)
	assert.InDelta(t, -12.1211, places[0].Lat, 1e-9)
	assert.Equal(t, "Miraflores", places[0].Component("locality"))
	assert.Equal(t, "ChIJ-serenazgo", places[1].PlaceID)
	assert.NotNil(t, places[1].AddressComponents)
}

func TestGoogleClient_SearchKeepsFirstTenResults(t *testing.T) {
	client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		var results []string
		for i := range 15 {
			results = append(results, fmt.Sprintf(
				`{"place_id":"p%d","name":"Comisaria %d","formatted_address":"Lima","geometry":{"location":{"lat":0,"lng":0}}}`, i, i))
		}
		_, _ = fmt.Fprintf(w, `{"status":"OK","results":[%s]}`, strings.Join(results, ","))
	}, nil)

	places, err := client.Search(context.Background(), "lima")
	require.NoError(t, err)
	require.Len(t, places, MaxResults)
	assert.Equal(t, "p9", places[9].PlaceID)
}

func TestGoogleClient_ZeroResults(t *testing.T) {
	client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	}, nil)

	places, err := client.Search(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Empty(t, places)
}

func TestGoogleClient_RetriesTransientFailures(t *testing.T) {
	tests := []struct {
		name  string
		first func(w http.ResponseWriter)
	}{
		{"over query limit", func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"status":"OVER_QUERY_LIMIT","results":[]}`))
		}},
		{"server error", func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusBadGateway)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					tt.first(w)
					return
				}
				_, _ = w.Write([]byte(searchBody))
			}, nil)

			places, err := client.Search(context.Background(), "Miraflores")
			require.NoError(t, err)
			assert.Len(t, places, 2)
			assert.Equal(t, int32(2), calls.Load())
		})
	}
}

func TestGoogleClient_Unavailable(t *testing.T) {
	t.Run("request denied is not retried", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid."}`))
		}, nil)

		_, err := client.Search(context.Background(), "Miraflores")
		assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("persistent server error", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}, nil)

		_, err := client.Search(context.Background(), "Miraflores")
		assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
		assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
	})

	t.Run("missing key", func(t *testing.T) {
		client := NewGoogleClient(GoogleConfig{}, zap.NewNop())
		_, err := client.Search(context.Background(), "Miraflores")
		assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
	})
}

func TestGoogleClient_Details(t *testing.T) {
	var gotQuery string
	client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if r.URL.Query().Get("place_id") == "missing" {
			_, _ = w.Write([]byte(`{"status":"NOT_FOUND"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"OK","result":{
			"place_id":"ChIJ-miraflores","name":"Comisaría de Miraflores",
			"formatted_address":"Calle Gral. Borgoño 290, Miraflores, Peru",
			"geometry":{"location":{"lat":-12.1211,"lng":-77.0297}}}}`))
	}, nil)

	place, err := client.Details(context.Background(), "ChIJ-miraflores")
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "place_id=ChIJ-miraflores")
	assert.Equal(t, "Comisaría de Miraflores", place.Name)
	assert.InDelta(t, -77.0297, place.Lng, 1e-9)

	_, err = client.Details(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGoogleClient_LogsWithoutAPIKey(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, zap.New(core))

	_, err := client.Search(context.Background(), "Miraflores")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testAPIKey)

	require.Equal(t, 1, logs.Len())
	for _, v := range logs.All()[0].ContextMap() {
		assert.NotContains(t, fmt.Sprint(v), testAPIKey)
	}
}

func TestGoogleClient_CanceledContext(t *testing.T) {
	client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchBody))
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Search(ctx, "Miraflores")
	assert.ErrorIs(t, err, context.Canceled)
}
