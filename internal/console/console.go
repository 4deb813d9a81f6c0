// Package console implements the interactive terminal menu.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kjstillabower/city-weather/internal/client"
	"github.com/kjstillabower/city-weather/internal/models"
	"github.com/kjstillabower/city-weather/internal/stats"
	"github.com/kjstillabower/city-weather/internal/validation"
)

// ErrNoAPIKey is returned by PromptAPIKey when the user enters nothing.
var ErrNoAPIKey = errors.New("API key is required")

// Service is the part of service.WeatherService the menu drives.
type Service interface {
	FetchCity(ctx context.Context, city string) (models.WeatherRecord, error)
	FetchRandom(ctx context.Context, n int) (models.Batch, error)
}

// App is the menu loop. It reads choices line by line from in.
type App struct {
	svc   Service
	in    *bufio.Scanner
	out   io.Writer
	count int
	units string
}

// New creates an App that samples count cities for option 1.
func New(svc Service, in io.Reader, out io.Writer, count int, units string) *App {
	if count <= 0 {
		count = 5
	}
	return &App{svc: svc, in: bufio.NewScanner(in), out: out, count: count, units: units}
}

// PromptAPIKey asks for an OpenWeatherMap key on in.
func PromptAPIKey(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter your OpenWeatherMap API key: ")
	s := bufio.NewScanner(in)
	if !s.Scan() {
		return "", ErrNoAPIKey
	}
	key := strings.TrimSpace(s.Text())
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// Run shows the menu until the user exits, input ends or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.banner()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "\nChoose an option:")
		fmt.Fprintf(a.out, "1. Show weather for %d random cities\n", a.count)
		fmt.Fprintln(a.out, "2. Search weather for a specific city")
		fmt.Fprintln(a.out, "3. Exit")

		choice, ok := a.prompt("\nEnter your choice (1-3): ")
		if !ok {
			fmt.Fprintln(a.out)
			return a.in.Err()
		}
		switch choice {
		case "1":
			a.random(ctx)
		case "2":
			city, ok := a.prompt("\nEnter city name: ")
			if !ok {
				return a.in.Err()
			}
			a.city(ctx, city)
		case "3":
			fmt.Fprintln(a.out, "Goodbye!")
			return nil
		default:
			fmt.Fprintln(a.out, "Invalid choice. Please enter 1, 2, or 3.")
		}
	}
}

func (a *App) banner() {
	fmt.Fprintln(a.out, "City Weather")
	fmt.Fprintln(a.out, strings.Repeat("=", 40))
}

func (a *App) prompt(label string) (string, bool) {
	fmt.Fprint(a.out, label)
	if !a.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(a.in.Text()), true
}

func (a *App) random(ctx context.Context) {
	fmt.Fprintf(a.out, "\nFetching weather for %d random cities...\n", a.count)
	fmt.Fprintln(a.out, strings.Repeat("-", 50))

	batch, err := a.svc.FetchRandom(ctx, a.count)
	WriteBatch(a.out, batch, a.units)
	if err != nil {
		if errors.Is(err, stats.ErrNoData) {
			fmt.Fprintln(a.out, "No weather data available")
		} else {
			fmt.Fprintf(a.out, "Failed to fetch weather data: %v\n", err)
		}
		return
	}

	fmt.Fprintln(a.out, "\nStatistics:")
	fmt.Fprintln(a.out, strings.Repeat("-", 20))
	WriteStatistics(a.out, batch.Statistics, a.units)
}

func (a *App) city(ctx context.Context, city string) {
	if city == "" {
		fmt.Fprintln(a.out, "Please enter a valid city name")
		return
	}
	fmt.Fprintf(a.out, "\nFetching weather for %s...\n", city)
	rec, err := a.svc.FetchCity(ctx, city)
	switch {
	case err == nil:
		WriteRecord(a.out, rec)
	case errors.Is(err, validation.ErrCityTooLong), errors.Is(err, validation.ErrCityInvalidChars), errors.Is(err, validation.ErrCityEmpty):
		fmt.Fprintf(a.out, "Invalid city name: %v\n", err)
	case errors.Is(err, client.ErrInvalidAPIKey):
		fmt.Fprintln(a.out, "The API key was rejected by OpenWeatherMap")
	default:
		fmt.Fprintf(a.out, "Could not find weather data for %s\n", city)
	}
}
