package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/kjstillabower/city-weather/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS cities (
	id           BIGSERIAL PRIMARY KEY,
	name         VARCHAR(100) NOT NULL UNIQUE,
	country_code VARCHAR(10) NOT NULL DEFAULT '',
	latitude     DOUBLE PRECISION,
	longitude    DOUBLE PRECISION,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS weather_data (
	id                  BIGSERIAL PRIMARY KEY,
	city_id             BIGINT NOT NULL REFERENCES cities(id) ON DELETE CASCADE,
	temperature         DOUBLE PRECISION NOT NULL,
	feels_like          DOUBLE PRECISION NOT NULL,
	humidity            INTEGER NOT NULL,
	pressure            INTEGER NOT NULL,
	wind_speed          DOUBLE PRECISION NOT NULL,
	wind_direction      INTEGER,
	visibility          INTEGER,
	weather_main        VARCHAR(50) NOT NULL DEFAULT '',
	weather_description VARCHAR(100) NOT NULL DEFAULT '',
	weather_icon        VARCHAR(10) NOT NULL DEFAULT '',
	units               VARCHAR(10) NOT NULL DEFAULT '',
	timestamp           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_weather_data_timestamp ON weather_data (timestamp DESC);

CREATE TABLE IF NOT EXISTS weather_requests (
	id            BIGSERIAL PRIMARY KEY,
	request_type  VARCHAR(20) NOT NULL,
	city_name     VARCHAR(100) NOT NULL DEFAULT '',
	success       BOOLEAN NOT NULL,
	response_time DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	timestamp     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_weather_requests_timestamp ON weather_requests (timestamp DESC);

CREATE TABLE IF NOT EXISTS weather_statistics (
	id                    BIGSERIAL PRIMARY KEY,
	coldest_city          VARCHAR(100) NOT NULL,
	coldest_temperature   DOUBLE PRECISION NOT NULL,
	average_temperature   DOUBLE PRECISION NOT NULL,
	total_cities          INTEGER NOT NULL,
	calculation_timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresStore is a Store over sqlx and lib/pq.
type PostgresStore struct {
	db *sqlx.DB
}

// OpenPostgres connects to databaseURL, verifies the connection and creates missing tables.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return openStore(ctx, db, postgresSchema)
}

// openStore pings db and applies schema. db is closed when either step fails.
func openStore(ctx context.Context, db *sqlx.DB, schema string) (*PostgresStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps db and applies the schema. The caller keeps
// ownership of db when an error is returned.
func NewPostgresStore(ctx context.Context, db *sqlx.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// SaveWeather upserts the city by name and appends a weather row in one transaction.
func (s *PostgresStore) SaveWeather(ctx context.Context, rec models.WeatherRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var cityID int64
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO cities (name, country_code, latitude, longitude)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET country_code = EXCLUDED.country_code,
		    latitude = EXCLUDED.latitude,
		    longitude = EXCLUDED.longitude,
		    updated_at = NOW()
		RETURNING id`,
		rec.City, rec.Country, rec.Latitude, rec.Longitude,
	).Scan(&cityID)
	if err != nil {
		return fmt.Errorf("upsert city: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO weather_data (
			city_id, temperature, feels_like, humidity, pressure, wind_speed,
			wind_direction, visibility, weather_main, weather_description,
			weather_icon, units, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		cityID, rec.Temperature, rec.FeelsLike, rec.Humidity, rec.Pressure, rec.WindSpeed,
		rec.WindDirection, rec.Visibility, rec.Condition, rec.Description,
		rec.Icon, rec.Units, timestampOrNow(rec.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("insert weather: %w", err)
	}
	return tx.Commit()
}

// SaveRequest appends an audit row.
func (s *PostgresStore) SaveRequest(ctx context.Context, entry models.RequestLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO weather_requests (request_type, city_name, success, response_time, error_message, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.Type, entry.CityName, entry.Success, entry.ResponseTime, entry.ErrorMessage, timestampOrNow(entry.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// SaveStatistics appends a statistics snapshot.
func (s *PostgresStore) SaveStatistics(ctx context.Context, st models.Statistics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO weather_statistics (coldest_city, coldest_temperature, average_temperature, total_cities, calculation_timestamp)
		VALUES ($1, $2, $3, $4, $5)`,
		st.ColdestCity, st.ColdestTemperature, st.AverageTemperature, st.TotalCities, timestampOrNow(st.CalculatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert statistics: %w", err)
	}
	return nil
}

type weatherRow struct {
	Name               string    `db:"name"`
	CountryCode        string    `db:"country_code"`
	Latitude           *float64  `db:"latitude"`
	Longitude          *float64  `db:"longitude"`
	Temperature        float64   `db:"temperature"`
	FeelsLike          float64   `db:"feels_like"`
	Humidity           int       `db:"humidity"`
	Pressure           int       `db:"pressure"`
	WindSpeed          float64   `db:"wind_speed"`
	WindDirection      *int      `db:"wind_direction"`
	Visibility         *int      `db:"visibility"`
	WeatherMain        string    `db:"weather_main"`
	WeatherDescription string    `db:"weather_description"`
	WeatherIcon        string    `db:"weather_icon"`
	Units              string    `db:"units"`
	Timestamp          time.Time `db:"timestamp"`
}

type requestRow struct {
	RequestType  string    `db:"request_type"`
	CityName     string    `db:"city_name"`
	Success      bool      `db:"success"`
	ResponseTime float64   `db:"response_time"`
	ErrorMessage string    `db:"error_message"`
	Timestamp    time.Time `db:"timestamp"`
}

type statisticsRow struct {
	ColdestCity          string    `db:"coldest_city"`
	ColdestTemperature   float64   `db:"coldest_temperature"`
	AverageTemperature   float64   `db:"average_temperature"`
	TotalCities          int       `db:"total_cities"`
	CalculationTimestamp time.Time `db:"calculation_timestamp"`
}

// History returns the most recent rows of each kind, newest first.
func (s *PostgresStore) History(ctx context.Context, limits Limits) (models.History, error) {
	limits = limits.withDefaults()
	var h models.History

	var weather []weatherRow
	err := s.db.SelectContext(ctx, &weather, `
		SELECT c.name, c.country_code, c.latitude, c.longitude,
		       w.temperature, w.feels_like, w.humidity, w.pressure, w.wind_speed,
		       w.wind_direction, w.visibility, w.weather_main, w.weather_description,
		       w.weather_icon, w.units, w.timestamp
		FROM weather_data w
		JOIN cities c ON c.id = w.city_id
		ORDER BY w.timestamp DESC, w.id DESC
		LIMIT $1`, limits.Weather)
	if err != nil {
		return h, fmt.Errorf("query weather: %w", err)
	}
	h.Weather = make([]models.WeatherRecord, 0, len(weather))
	for _, w := range weather {
		h.Weather = append(h.Weather, w.toRecord())
	}

	var requests []requestRow
	err = s.db.SelectContext(ctx, &requests, `
		SELECT request_type, city_name, success, response_time, error_message, timestamp
		FROM weather_requests
		ORDER BY timestamp DESC, id DESC
		LIMIT $1`, limits.Requests)
	if err != nil {
		return h, fmt.Errorf("query requests: %w", err)
	}
	h.Requests = make([]models.RequestLog, 0, len(requests))
	for _, r := range requests {
		h.Requests = append(h.Requests, models.RequestLog{
			Type:         r.RequestType,
			CityName:     r.CityName,
			Success:      r.Success,
			ResponseTime: r.ResponseTime,
			ErrorMessage: r.ErrorMessage,
			Timestamp:    r.Timestamp,
		})
	}

	var stats []statisticsRow
	err = s.db.SelectContext(ctx, &stats, `
		SELECT coldest_city, coldest_temperature, average_temperature, total_cities, calculation_timestamp
		FROM weather_statistics
		ORDER BY calculation_timestamp DESC, id DESC
		LIMIT $1`, limits.Statistics)
	if err != nil {
		return h, fmt.Errorf("query statistics: %w", err)
	}
	h.Statistics = make([]models.Statistics, 0, len(stats))
	for _, st := range stats {
		h.Statistics = append(h.Statistics, models.Statistics{
			ColdestCity:        st.ColdestCity,
			ColdestTemperature: st.ColdestTemperature,
			AverageTemperature: st.AverageTemperature,
			TotalCities:        st.TotalCities,
			CalculatedAt:       st.CalculationTimestamp,
		})
	}
	return h, nil
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (w weatherRow) toRecord() models.WeatherRecord {
	rec := models.WeatherRecord{
		City:        w.Name,
		Country:     w.CountryCode,
		Temperature: w.Temperature,
		FeelsLike:   w.FeelsLike,
		Humidity:    w.Humidity,
		Pressure:    w.Pressure,
		WindSpeed:   w.WindSpeed,
		Condition:   w.WeatherMain,
		Description: w.WeatherDescription,
		Icon:        w.WeatherIcon,
		Units:       w.Units,
		FetchedAt:   w.Timestamp,
	}
	if w.Latitude != nil {
		rec.Latitude = *w.Latitude
	}
	if w.Longitude != nil {
		rec.Longitude = *w.Longitude
	}
	if w.WindDirection != nil {
		rec.WindDirection = *w.WindDirection
	}
	if w.Visibility != nil {
		rec.Visibility = *w.Visibility
	}
	return rec
}
