package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/domain"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/observability"
)

// GeocodeAddresses resolves every distinct raw address found in the ownership
// rows. Failed lookups are recorded as API_ERROR results so every address has
// an explicit status in the returned set.
func GeocodeAddresses(ctx context.Context, g domain.Geocoder, owners []domain.OwnershipRecord, logger *slog.Logger, metrics *observability.Metrics) (domain.GeocodeSet, error) {
	start := time.Now()
	set := make(domain.GeocodeSet)

	for _, raw := range distinctAddresses(owners) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := domain.AddressKey(raw)
		if key == "" {
			continue
		}

		result, err := g.Geocode(ctx, domain.GeocodeQuery(raw))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("geocode lookup failed", "raw_address", raw, "error", err)
			result = domain.GeocodeResult{Status: domain.GeocodeAPIError, Message: err.Error()}
		}
		metrics.GeocodeRequests.WithLabelValues(outcomeLabel(result.Status)).Inc()
		set[key] = result
	}

	logger.Info("geocoding complete", "addresses", len(set), "duration", time.Since(start))
	return set, nil
}

func distinctAddresses(owners []domain.OwnershipRecord) []string {
	seen := make(map[string]string)
	for _, o := range owners {
		key := domain.AddressKey(o.RawAddress)
		if _, ok := seen[key]; !ok {
			seen[key] = o.RawAddress
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}

func outcomeLabel(s domain.GeocodeStatus) string {
	switch s {
	case domain.GeocodeSuccess:
		return "success"
	case domain.GeocodeNoResult:
		return "no_result"
	case domain.GeocodeEmptyInput:
		return "empty"
	default:
		return "error"
	}
}
