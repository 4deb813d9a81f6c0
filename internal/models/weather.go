package models

import "time"

// WeatherRecord is one city's current weather as returned by the upstream API.
// Records are never modified after they are fetched.
type WeatherRecord struct {
	City          string    `json:"city"`
	Country       string    `json:"country"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Temperature   float64   `json:"temperature"`
	FeelsLike     float64   `json:"feels_like"`
	Humidity      int       `json:"humidity"`
	Pressure      int       `json:"pressure"`
	WindSpeed     float64   `json:"wind_speed"`
	WindDirection int       `json:"wind_direction"`
	Visibility    int       `json:"visibility"`
	Condition     string    `json:"condition"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon,omitempty"`
	Units         string    `json:"units"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Statistics summarizes a batch of records.
type Statistics struct {
	ColdestCity        string    `json:"coldest_city"`
	ColdestTemperature float64   `json:"coldest_temperature"`
	AverageTemperature float64   `json:"average_temperature"`
	TotalCities        int       `json:"total_cities"`
	CalculatedAt       time.Time `json:"calculated_at"`
}

// Request types recorded in the audit log.
const (
	RequestTypeRandom = "random"
	RequestTypeCity   = "city"
	RequestTypeStatus = "status"
)

// RequestLog is one audit entry describing an upstream lookup or status check.
type RequestLog struct {
	Type         string    `json:"request_type"`
	CityName     string    `json:"city_name,omitempty"`
	Success      bool      `json:"success"`
	ResponseTime float64   `json:"response_time"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Batch is the outcome of a random-cities lookup. Failed lists cities that
// returned no data; they are skipped, not retried. Outcomes holds every
// sampled city in draw order.
type Batch struct {
	Records    []WeatherRecord `json:"weather_data"`
	Failed     []string        `json:"failed,omitempty"`
	Statistics Statistics      `json:"statistics"`
	Outcomes   []Outcome       `json:"-"`
}

// Outcome is the result for one sampled city. Err is nil when Record is set.
type Outcome struct {
	City   string
	Record WeatherRecord
	Err    error
}

// History is the recent write-only trail kept by a storage backend.
type History struct {
	Weather    []WeatherRecord `json:"recent_weather"`
	Requests   []RequestLog    `json:"recent_requests"`
	Statistics []Statistics    `json:"recent_statistics"`
}
