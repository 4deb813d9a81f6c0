package stats

import (
	"errors"
	"time"

	"github.com/kjstillabower/city-weather/internal/models"
)

// ErrNoData is returned when there is nothing to summarize.
var ErrNoData = errors.New("no weather data available")

// Summarize returns the coldest record (first on ties) and the mean temperature
// of records. An empty slice yields ErrNoData.
func Summarize(records []models.WeatherRecord) (models.Statistics, error) {
	if len(records) == 0 {
		return models.Statistics{}, ErrNoData
	}

	coldest := 0
	sum := 0.0
	for i, r := range records {
		sum += r.Temperature
		if r.Temperature < records[coldest].Temperature {
			coldest = i
		}
	}

	return models.Statistics{
		ColdestCity:        records[coldest].City,
		ColdestTemperature: records[coldest].Temperature,
		AverageTemperature: sum / float64(len(records)),
		TotalCities:        len(records),
		CalculatedAt:       time.Now().UTC(),
	}, nil
}
