package client

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

	"github.com/kjstillabower/city-weather/internal/models"
	"github.com/kjstillabower/city-weather/internal/observability"
)

// WeatherClient fetches current weather for a single city.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, city string) (models.WeatherRecord, error)
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
)

// DefaultAPIURL is the current-weather-by-city endpoint.
const DefaultAPIURL = "https://api.openweathermap.org/data/2.5/weather"

// maxBodyBytes bounds the upstream body read; real responses are well under 2 KiB.
const maxBodyBytes = 1 << 20

// OpenWeatherClient issues exactly one GET per lookup. It never retries.
type OpenWeatherClient struct {
	apiKey  string
	apiURL  string
	units   string
	timeout time.Duration
	client  *http.Client
}

// NewOpenWeatherClient returns a client for apiURL. units is passed through as
// the upstream "units" parameter (metric, imperial or standard).
func NewOpenWeatherClient(apiKey, apiURL, units string, timeout time.Duration) (*OpenWeatherClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if units == "" {
		units = "metric"
	}

	return &OpenWeatherClient{
		apiKey:  apiKey,
		apiURL:  apiURL,
		units:   units,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Units returns the unit system requested from the upstream.
func (c *OpenWeatherClient) Units() string {
	return c.units
}

type openWeatherResponse struct {
	Coord struct {
		Lon float64 `json:"lon"`
		Lat float64 `json:"lat"`
	} `json:"coord"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Pressure  int     `json:"pressure"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Visibility int `json:"visibility"`
	Wind       struct {
		Speed float64 `json:"speed"`
		Deg   int     `json:"deg"`
	} `json:"wind"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
	Name string `json:"name"`
}

// GetCurrentWeather fetches weather for city. Transport failures, timeouts,
// non-2xx statuses and undecodable bodies are all returned as errors.
func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, city string) (models.WeatherRecord, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.WeatherRecord{}, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.WeatherRecord{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.WeatherRecord{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return models.WeatherRecord{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.WeatherRecord{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherRecord{}, fmt.Errorf("parse response: %w", err)
	}

	return c.mapResponse(apiResp, city), nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := baseURL.Query()
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", c.units)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: upstream rejected key", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func (c *OpenWeatherClient) mapResponse(apiResp openWeatherResponse, city string) models.WeatherRecord {
	var condition, description, icon string
	if len(apiResp.Weather) > 0 {
		condition = apiResp.Weather[0].Main
		description = apiResp.Weather[0].Description
		icon = apiResp.Weather[0].Icon
	}

	name := apiResp.Name
	if name == "" {
		name = city
	}

	return models.WeatherRecord{
		City:          name,
		Country:       apiResp.Sys.Country,
		Latitude:      apiResp.Coord.Lat,
		Longitude:     apiResp.Coord.Lon,
		Temperature:   apiResp.Main.Temp,
		FeelsLike:     apiResp.Main.FeelsLike,
		Humidity:      apiResp.Main.Humidity,
		Pressure:      apiResp.Main.Pressure,
		WindSpeed:     apiResp.Wind.Speed,
		WindDirection: apiResp.Wind.Deg,
		Visibility:    apiResp.Visibility,
		Condition:     condition,
		Description:   description,
		Icon:          icon,
		Units:         c.units,
		FetchedAt:     time.Now().UTC(),
	}
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
