package console

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/kjstillabower/city-weather/internal/models"
)

// TemperatureSymbol returns the display suffix for a unit system.
func TemperatureSymbol(units string) string {
	switch units {
	case "imperial":
		return "°F"
	case "standard":
		return "K"
	default:
		return "°C"
	}
}

// SpeedSymbol returns the wind speed unit for a unit system.
func SpeedSymbol(units string) string {
	if units == "imperial" {
		return "mph"
	}
	return "m/s"
}

// WriteBatch prints one line per sampled city in draw order: ✓ with
// temperature and description, or ✗ for cities that returned nothing.
func WriteBatch(w io.Writer, b models.Batch, units string) {
	sym := TemperatureSymbol(units)
	for _, o := range b.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(w, "✗ Failed to get weather for %s\n", o.City)
			continue
		}
		fmt.Fprintf(w, "✓ %s: %.1f%s, %s\n", o.City, o.Record.Temperature, sym, o.Record.Description)
	}
}

// WriteStatistics prints the coldest city, average and total.
func WriteStatistics(w io.Writer, s models.Statistics, units string) {
	sym := TemperatureSymbol(units)
	fmt.Fprintf(w, "Coldest city: %s (%.1f%s)\n", s.ColdestCity, s.ColdestTemperature, sym)
	fmt.Fprintf(w, "Average temperature: %.1f%s\n", s.AverageTemperature, sym)
	fmt.Fprintf(w, "Total cities: %d\n", s.TotalCities)
}

// WriteRecord prints the detailed view of one city.
func WriteRecord(w io.Writer, r models.WeatherRecord) {
	sym := TemperatureSymbol(r.Units)
	place := r.City
	if r.Country != "" {
		place += ", " + r.Country
	}
	fmt.Fprintf(w, "\nWeather in %s\n", place)
	fmt.Fprintln(w, strings.Repeat("=", 40))
	fmt.Fprintf(w, "Temperature: %.1f%s (feels like %.1f%s)\n", r.Temperature, sym, r.FeelsLike, sym)
	fmt.Fprintf(w, "Condition: %s\n", TitleCase(r.Description))
	fmt.Fprintf(w, "Humidity: %d%%\n", r.Humidity)
	fmt.Fprintf(w, "Pressure: %d hPa\n", r.Pressure)
	fmt.Fprintf(w, "Wind Speed: %g %s\n", r.WindSpeed, SpeedSymbol(r.Units))
}

// TitleCase upper-cases the first letter of every word: "broken clouds" becomes "Broken Clouds".
func TitleCase(s string) string {
	rs := []rune(s)
	start := true
	for i, r := range rs {
		if unicode.IsLetter(r) {
			if start {
				rs[i] = unicode.ToUpper(r)
			} else {
				rs[i] = unicode.ToLower(r)
			}
			start = false
			continue
		}
		start = true
	}
	return string(rs)
}
