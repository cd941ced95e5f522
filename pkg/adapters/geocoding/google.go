package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
	"github.com/nemaec/nemaec-engine/pkg/logging"
	"github.com/nemaec/nemaec-engine/pkg/metrics"
	"github.com/nemaec/nemaec-engine/pkg/models"
	"github.com/nemaec/nemaec-engine/pkg/retry"
)

// DefaultBaseURL is the Google Places web service root.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// Places API status values.
const (
	statusOK             = "OK"
	statusZeroResults    = "ZERO_RESULTS"
	statusNotFound       = "NOT_FOUND"
	statusInvalidRequest = "INVALID_REQUEST"
	statusOverQueryLimit = "OVER_QUERY_LIMIT"
	statusRequestDenied  = "REQUEST_DENIED"
	statusUnknownError   = "UNKNOWN_ERROR"
)

// GoogleConfig configures the Google Places client.
type GoogleConfig struct {
	APIKey            string
	BaseURL           string
	Region            string
	Language          string
	RequestsPerSecond float64
	Timeout           time.Duration
	Retry             *retry.Config
}

// GoogleClient searches police facilities through the Google Places web service.
type GoogleClient struct {
	cfg        GoogleConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewGoogleClient creates a Places client. Outbound calls are rate limited
// and transient failures are retried.
func NewGoogleClient(cfg GoogleConfig, logger *zap.Logger) *GoogleClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}
	burst := max(1, int(cfg.RequestsPerSecond))
	return &GoogleClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		logger:     logger.Named("google-places"),
	}
}

var _ Provider = (*GoogleClient)(nil)

func (c *GoogleClient) Name() string { return "google" }

// placesAPIError is a non-OK status in a Places response body.
type placesAPIError struct {
	Status  string
	Message string
}

func (e *placesAPIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("places API status %s: %s", e.Status, e.Message)
	}
	return "places API status " + e.Status
}

func (e *placesAPIError) IsRetryable() bool {
	return e.Status == statusOverQueryLimit || e.Status == statusUnknownError
}

type placeResult struct {
	PlaceID          string `json:"place_id"`
	Name             string `json:"name"`
	FormattedAddress string `json:"formatted_address"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	AddressComponents []models.AddressComponent `json:"address_components"`
}

func (r placeResult) toPlace() models.Place {
	components := r.AddressComponents
	if components == nil {
		components = []models.AddressComponent{}
	}
	return models.Place{
		PlaceID:           r.PlaceID,
		Name:              r.Name,
		FormattedAddress:  r.FormattedAddress,
		Lat:               r.Geometry.Location.Lat,
		Lng:               r.Geometry.Location.Lng,
		AddressComponents: components,
	}
}

type textSearchResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Results      []placeResult `json:"results"`
}

type detailsResponse struct {
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message"`
	Result       placeResult `json:"result"`
}

// policeQuery widens free text into the phrasings police stations are listed under.
func policeQuery(q string) string {
	return fmt.Sprintf(`"comisaria de %[1]s" OR "comisaria %[1]s" OR "CPNP %[1]s" OR "estacion policial %[1]s" Peru`, q)
}

// Search runs a text search biased to police facilities and keeps only
// results whose name or address mentions a police keyword.
func (c *GoogleClient) Search(ctx context.Context, query string) ([]models.Place, error) {
	params := url.Values{
		"query":    {policeQuery(strings.TrimSpace(query))},
		"region":   {c.cfg.Region},
		"language": {c.cfg.Language},
	}

	var resp textSearchResponse
	if err := c.get(ctx, opSearch, "textsearch/json", params, &resp); err != nil {
		return nil, err
	}

	results := resp.Results
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	places := make([]models.Place, 0, len(results))
	for _, r := range results {
		p := r.toPlace()
		if isPoliceRelated(p) {
			places = append(places, p)
		}
	}

	c.logger.Debug("Place search",
		zap.String("query", query),
		zap.Int("returned", len(results)),
		zap.Int("kept", len(places)))
	return places, nil
}

// Details fetches one place by id.
func (c *GoogleClient) Details(ctx context.Context, placeID string) (*models.Place, error) {
	params := url.Values{
		"place_id": {placeID},
		"language": {c.cfg.Language},
		"fields":   {"place_id,name,formatted_address,geometry,address_components"},
	}

	var resp detailsResponse
	if err := c.get(ctx, opDetails, "details/json", params, &resp); err != nil {
		return nil, err
	}
	p := resp.Result.toPlace()
	return &p, nil
}

// get performs one rate-limited, retried call and decodes the body into out.
// out must be a *textSearchResponse or *detailsResponse.
func (c *GoogleClient) get(ctx context.Context, op, path string, params url.Values, out any) error {
	if c.cfg.APIKey == "" {
		return fmt.Errorf("google places has no API key: %w", apperrors.ErrProviderUnavailable)
	}
	params.Set("key", c.cfg.APIKey)
	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + path + "?" + params.Encode()

	err := retry.DoIfRetryable(ctx, c.cfg.Retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.do(ctx, endpoint, out)
	})
	if err == nil {
		metrics.GeocodingLookups.WithLabelValues(c.Name(), op, metrics.LookupResultOK).Inc()
		return nil
	}

	metrics.GeocodingLookups.WithLabelValues(c.Name(), op, metrics.LookupResultError).Inc()
	c.logger.Warn("Places request failed",
		zap.String("operation", op),
		zap.String("url", logging.SanitizeURL(endpoint)),
		zap.String("error", logging.SanitizeError(err)))
	return classify(err)
}

func (c *GoogleClient) do(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call places API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &retry.StatusError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	var status, message string
	switch r := out.(type) {
	case *textSearchResponse:
		status, message = r.Status, r.ErrorMessage
	case *detailsResponse:
		status, message = r.Status, r.ErrorMessage
	}
	if status == statusOK || status == statusZeroResults {
		return nil
	}
	return &placesAPIError{Status: status, Message: message}
}

// classify maps a final failure onto the errors callers branch on.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *placesAPIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case statusNotFound, statusInvalidRequest:
			return fmt.Errorf("%s: %w", apiErr.Status, apperrors.ErrNotFound)
		case statusRequestDenied, statusOverQueryLimit, statusUnknownError:
			return fmt.Errorf("%s: %w", apiErr.Status, apperrors.ErrProviderUnavailable)
		}
		return err
	}

	// Transport failures, timeouts and HTTP errors all mean the provider is unreachable.
	return fmt.Errorf("%s: %w", logging.SanitizeError(err), apperrors.ErrProviderUnavailable)
}
