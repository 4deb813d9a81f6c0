// Package storage keeps the write-only history of lookups: fetched records,
// the request audit trail and batch statistics snapshots.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/kjstillabower/city-weather/internal/models"
)

// ErrNotConfigured is returned by Open for the "none" backend.
var ErrNotConfigured = errors.New("storage not configured")

// Store persists history rows. Implementations are safe for concurrent use.
type Store interface {
	SaveWeather(ctx context.Context, rec models.WeatherRecord) error
	SaveRequest(ctx context.Context, entry models.RequestLog) error
	SaveStatistics(ctx context.Context, s models.Statistics) error
	History(ctx context.Context, limits Limits) (models.History, error)
	Ping(ctx context.Context) error
	Close() error
}

// Limits bounds how many rows of each kind History returns.
type Limits struct {
	Weather    int
	Requests   int
	Statistics int
}

// DefaultLimits matches the history page: 20 records, 20 requests, 10 snapshots.
var DefaultLimits = Limits{Weather: 20, Requests: 20, Statistics: 10}

func (l Limits) withDefaults() Limits {
	if l.Weather <= 0 {
		l.Weather = DefaultLimits.Weather
	}
	if l.Requests <= 0 {
		l.Requests = DefaultLimits.Requests
	}
	if l.Statistics <= 0 {
		l.Statistics = DefaultLimits.Statistics
	}
	return l
}

// Open returns the store for backend ("sqlite" or "postgres"). The "none"
// backend returns ErrNotConfigured so callers can run without history.
func Open(ctx context.Context, backend, sqlitePath, databaseURL string) (Store, error) {
	switch backend {
	case "", "none":
		return nil, ErrNotConfigured
	case "sqlite":
		s, err := OpenSQLite(sqlitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := OpenPostgres(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}
