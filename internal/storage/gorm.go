package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kjstillabower/city-weather/internal/models"
)

// City is one row per distinct upstream city name.
type City struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:100;not null;uniqueIndex"`
	CountryCode string `gorm:"size:10;not null"`
	Latitude    *float64
	Longitude   *float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (City) TableName() string { return "cities" }

// WeatherData is one fetched record.
type WeatherData struct {
	ID                 uint `gorm:"primaryKey"`
	CityID             uint `gorm:"not null;index"`
	City               City `gorm:"constraint:OnDelete:CASCADE"`
	Temperature        float64
	FeelsLike          float64
	Humidity           int
	Pressure           int
	WindSpeed          float64
	WindDirection      *int
	Visibility         *int
	WeatherMain        string    `gorm:"size:50"`
	WeatherDescription string    `gorm:"size:100"`
	WeatherIcon        string    `gorm:"size:10"`
	Units              string    `gorm:"size:10"`
	Timestamp          time.Time `gorm:"index"`
}

func (WeatherData) TableName() string { return "weather_data" }

// WeatherRequest is one audit row.
type WeatherRequest struct {
	ID           uint   `gorm:"primaryKey"`
	RequestType  string `gorm:"size:20;not null"`
	CityName     string `gorm:"size:100"`
	Success      bool
	ResponseTime float64
	ErrorMessage string
	Timestamp    time.Time `gorm:"index"`
}

func (WeatherRequest) TableName() string { return "weather_requests" }

// WeatherStatistics is one batch summary snapshot.
type WeatherStatistics struct {
	ID                   uint   `gorm:"primaryKey"`
	ColdestCity          string `gorm:"size:100"`
	ColdestTemperature   float64
	AverageTemperature   float64
	TotalCities          int
	CalculationTimestamp time.Time `gorm:"index"`
}

func (WeatherStatistics) TableName() string { return "weather_statistics" }

// GormStore is a Store over GORM with the SQLite driver.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if missing) the SQLite database at path and creates missing tables.
func OpenSQLite(path string) (*GormStore, error) {
	if path == "" {
		path = "weather.db"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps db and runs AutoMigrate for the history tables.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&City{}, &WeatherData{}, &WeatherRequest{}, &WeatherStatistics{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveWeather upserts the city by name and appends a weather row for it.
func (s *GormStore) SaveWeather(ctx context.Context, rec models.WeatherRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		city := City{Name: rec.City}
		attrs := City{
			CountryCode: rec.Country,
			Latitude:    &rec.Latitude,
			Longitude:   &rec.Longitude,
		}
		if err := tx.Where(City{Name: rec.City}).Assign(attrs).FirstOrCreate(&city).Error; err != nil {
			return fmt.Errorf("upsert city: %w", err)
		}
		row := WeatherData{
			CityID:             city.ID,
			Temperature:        rec.Temperature,
			FeelsLike:          rec.FeelsLike,
			Humidity:           rec.Humidity,
			Pressure:           rec.Pressure,
			WindSpeed:          rec.WindSpeed,
			WindDirection:      &rec.WindDirection,
			Visibility:         &rec.Visibility,
			WeatherMain:        rec.Condition,
			WeatherDescription: rec.Description,
			WeatherIcon:        rec.Icon,
			Units:              rec.Units,
			Timestamp:          timestampOrNow(rec.FetchedAt),
		}
		if err := tx.Omit("City").Create(&row).Error; err != nil {
			return fmt.Errorf("insert weather: %w", err)
		}
		return nil
	})
}

// SaveRequest appends an audit row.
func (s *GormStore) SaveRequest(ctx context.Context, entry models.RequestLog) error {
	row := WeatherRequest{
		RequestType:  entry.Type,
		CityName:     entry.CityName,
		Success:      entry.Success,
		ResponseTime: entry.ResponseTime,
		ErrorMessage: entry.ErrorMessage,
		Timestamp:    timestampOrNow(entry.Timestamp),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// SaveStatistics appends a statistics snapshot.
func (s *GormStore) SaveStatistics(ctx context.Context, st models.Statistics) error {
	row := WeatherStatistics{
		ColdestCity:          st.ColdestCity,
		ColdestTemperature:   st.ColdestTemperature,
		AverageTemperature:   st.AverageTemperature,
		TotalCities:          st.TotalCities,
		CalculationTimestamp: timestampOrNow(st.CalculatedAt),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert statistics: %w", err)
	}
	return nil
}

// History returns the most recent rows of each kind, newest first.
func (s *GormStore) History(ctx context.Context, limits Limits) (models.History, error) {
	limits = limits.withDefaults()
	db := s.db.WithContext(ctx)
	var h models.History

	var weather []WeatherData
	if err := db.Preload("City").Order("timestamp desc, id desc").Limit(limits.Weather).Find(&weather).Error; err != nil {
		return h, fmt.Errorf("query weather: %w", err)
	}
	h.Weather = make([]models.WeatherRecord, 0, len(weather))
	for _, w := range weather {
		h.Weather = append(h.Weather, w.record())
	}

	var requests []WeatherRequest
	if err := db.Order("timestamp desc, id desc").Limit(limits.Requests).Find(&requests).Error; err != nil {
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

	var stats []WeatherStatistics
	if err := db.Order("calculation_timestamp desc, id desc").Limit(limits.Statistics).Find(&stats).Error; err != nil {
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

// Ping checks the underlying connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (w WeatherData) record() models.WeatherRecord {
	rec := models.WeatherRecord{
		City:        w.City.Name,
		Country:     w.City.CountryCode,
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
	if w.City.Latitude != nil {
		rec.Latitude = *w.City.Latitude
	}
	if w.City.Longitude != nil {
		rec.Longitude = *w.City.Longitude
	}
	if w.WindDirection != nil {
		rec.WindDirection = *w.WindDirection
	}
	if w.Visibility != nil {
		rec.Visibility = *w.Visibility
	}
	return rec
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
