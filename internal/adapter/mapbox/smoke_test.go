//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/domain"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/observability"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return NewClient(token, "it", 10*time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
}

func TestSmoke_Geocode(t *testing.T) {
	c := smokeClient(t)

	result, err := c.Geocode(context.Background(), "Via Monte Grappa 17, Agrate Brianza MB, Italia")
	require.NoError(t, err)

	require.Equal(t, domain.GeocodeSuccess, result.Status)
	require.NotNil(t, result.Lat)
	assert.InDelta(t, 45.57, *result.Lat, 0.1, "lat should be near Agrate Brianza")
	assert.Equal(t, "MB", result.Province)
	assert.NotEmpty(t, result.PostalCode)
}

func TestSmoke_Geocode_Nonsense(t *testing.T) {
	c := smokeClient(t)

	// Fuzzy matching may still return a feature; either way no error.
	_, err := c.Geocode(context.Background(), "XYZNONEXISTENT99, ZZ, Italia")
	require.NoError(t, err)
}

func TestSmoke_CachedGeocoder(t *testing.T) {
	c := smokeClient(t)
	cached := NewCachedGeocoder(c, 10, observability.NewMetricsForTesting())

	r1, err := cached.Geocode(context.Background(), "Piazza del Duomo 1, Milano MI, Italia")
	require.NoError(t, err)

	r2, err := cached.Geocode(context.Background(), "Piazza del Duomo 1, Milano MI, Italia")
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
