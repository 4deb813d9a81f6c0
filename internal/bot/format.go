package bot

import (
	"strings"

	"github.com/kjstillabower/city-weather/internal/console"
	"github.com/kjstillabower/city-weather/internal/models"
)

// FormatBatch renders per-city lines followed by the statistics block.
func FormatBatch(b models.Batch, units string) string {
	var sb strings.Builder
	console.WriteBatch(&sb, b, units)
	if b.Statistics.TotalCities > 0 {
		sb.WriteString("\n")
		console.WriteStatistics(&sb, b.Statistics, units)
	}
	return strings.TrimSpace(sb.String())
}

// FormatRecord renders the detailed view of one city.
func FormatRecord(r models.WeatherRecord) string {
	var sb strings.Builder
	console.WriteRecord(&sb, r)
	return strings.TrimSpace(sb.String())
}
