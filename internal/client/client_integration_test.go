//go:build integration
// +build integration

package client

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func integrationClient(t *testing.T) *OpenWeatherClient {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	c, err := NewOpenWeatherClient(apiKey, DefaultAPIURL, "metric", 10*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

func TestOpenWeatherClient_GetCurrentWeather_Integration(t *testing.T) {
	c := integrationClient(t)

	got, err := c.GetCurrentWeather(context.Background(), "London")
	if err != nil {
		t.Fatalf("GetCurrentWeather(London) error = %v", err)
	}
	if got.City == "" || got.Country != "GB" {
		t.Errorf("GetCurrentWeather(London) = %+v, want city name and GB country", got)
	}
	if got.Temperature < -60 || got.Temperature > 60 {
		t.Errorf("Temperature = %v, outside plausible metric range", got.Temperature)
	}
}

func TestOpenWeatherClient_UnknownCity_Integration(t *testing.T) {
	c := integrationClient(t)

	_, err := c.GetCurrentWeather(context.Background(), "Qwzxvbnmlkjh")
	if !errors.Is(err, ErrLocationNotFound) {
		t.Errorf("GetCurrentWeather(unknown) error = %v, want ErrLocationNotFound", err)
	}
}
