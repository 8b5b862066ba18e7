package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/domain"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/observability"
)

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	country    string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client restricted to the given
// comma-separated ISO country codes.
func NewClient(token, country string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token:   token,
		country: country,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		metrics: metrics,
		logger:  logger,
	}
}

// Geocode forward-geocodes a street address. An empty feature list maps to
// NO_RESULT with a nil error.
func (c *Client) Geocode(ctx context.Context, query string) (domain.GeocodeResult, error) {
	if strings.TrimSpace(query) == "" {
		return domain.GeocodeResult{Status: domain.GeocodeEmptyInput}, nil
	}

	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"address"},
		"language":     {"it"},
	}
	if c.country != "" {
		params.Set("country", c.country)
	}

	start := time.Now()
	result, err := c.doRequest(ctx, u+"?"+params.Encode())
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Debug("mapbox request failed", "query", query, "error", err)
	}
	return result, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.GeocodeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodeResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodeResult{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.GeocodeResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.GeocodeResult{}, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 {
		return domain.GeocodeResult{Status: domain.GeocodeNoResult}, nil
	}
	return mapFeature(mapboxResp.Features[0]), nil
}

func mapFeature(f feature) domain.GeocodeResult {
	result := domain.GeocodeResult{
		Status:           domain.GeocodeSuccess,
		FormattedAddress: f.PlaceName,
	}
	if slices.Contains(f.PlaceType, "address") {
		result.StreetName = f.Text
		result.StreetNumber = f.Address
	}
	if len(f.Center) == 2 {
		lon, lat := f.Center[0], f.Center[1]
		result.Lon = &lon
		result.Lat = &lat
	}

	for _, ctx := range f.Context {
		kind, _, _ := strings.Cut(ctx.ID, ".")
		switch kind {
		case "postcode":
			result.PostalCode = ctx.Text
		case "place":
			result.City = ctx.Text
		case "region":
			result.Province = provinceCode(ctx.ShortCode)
		}
	}
	return result
}

// provinceCode turns an ISO 3166-2 code such as "IT-MB" into "MB".
func provinceCode(shortCode string) string {
	_, code, ok := strings.Cut(shortCode, "-")
	if !ok {
		return ""
	}
	return strings.ToUpper(code)
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	PlaceType []string       `json:"place_type"`
	Center    []float64      `json:"center"` // [lon, lat]
	PlaceName string         `json:"place_name"`
	Text      string         `json:"text"`
	Address   string         `json:"address"`
	Relevance float64        `json:"relevance"`
	Context   []contextEntry `json:"context"`
}

type contextEntry struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	ShortCode string `json:"short_code"`
}
