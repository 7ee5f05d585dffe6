package batch

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/marisma/internal/pipeline"
)

// FormatResults formats the batch processing results in the specified format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r, format)
}

func formatBatchResults(r *Result, format string) (string, error) {
	switch format {
	case "json":
		bts, err := json.MarshalIndent(r, "", "  ")
		return string(bts), err
	case "yaml":
		bts, err := yaml.Marshal(r)
		return string(bts), err
	case "csv":
		return formatCSV(r.Results)
	case "", "text":
		return formatText(r), nil
	}
	return "", fmt.Errorf("unsupported format: %s", format)
}

// csvRow is one scene in the CSV report.
type csvRow struct {
	Scene           string  `csv:"scene"`
	Dir             string  `csv:"dir"`
	Sensor          string  `csv:"sensor"`
	Date            string  `csv:"date"`
	Status          string  `csv:"status"`
	Normalized      int     `csv:"normalized"`
	NotNormalized   string  `csv:"not_normalized"`
	FloodedPixels   int     `csv:"flooded_pixels"`
	DryPixels       int     `csv:"dry_pixels"`
	InvalidPixels   int     `csv:"invalid_pixels"`
	NoDataPixels    int     `csv:"nodata_pixels"`
	FloodedHa       float64 `csv:"flooded_ha"`
	ShadowThreshold string  `csv:"shadow_threshold"`
	DurationMS      int64   `csv:"duration_ms"`
	Error           string  `csv:"error"`
}

func toCSVRow(res *pipeline.SceneResult) csvRow {
	row := csvRow{
		Scene:      res.Scene,
		Dir:        res.Dir,
		Sensor:     string(res.Sensor),
		Status:     "ok",
		Normalized: len(res.Normalized),
		DurationMS: res.Duration.Milliseconds(),
		Error:      res.Error,
	}
	if !res.Date.IsZero() {
		row.Date = res.Date.Format("2006-01-02")
	}
	if !res.OK() {
		row.Status = "failed"
	}
	names := make([]string, len(res.NotNormalized))
	for i, b := range res.NotNormalized {
		names[i] = string(b)
	}
	row.NotNormalized = strings.Join(names, ";")
	if a := res.Area; a != nil {
		row.FloodedPixels, row.DryPixels = a.FloodedPixels, a.DryPixels
		row.InvalidPixels, row.NoDataPixels = a.InvalidPixels, a.NoDataPixels
		row.FloodedHa = a.FloodedHa
	}
	if res.ShadowThreshold != nil {
		row.ShadowThreshold = strconv.FormatFloat(*res.ShadowThreshold, 'f', -1, 64)
	}
	return row
}

// formatCSV writes one row per scene.
func formatCSV(results []*pipeline.SceneResult) (string, error) {
	rows := make([]csvRow, 0, len(results))
	for _, res := range results {
		if res == nil {
			continue
		}
		rows = append(rows, toCSVRow(res))
	}
	return gocsv.MarshalString(&rows)
}

// formatText writes one summary line per scene followed by the totals.
func formatText(r *Result) string {
	var output strings.Builder
	for i, res := range r.Results {
		if res == nil {
			if i < len(r.SceneDirs) {
				fmt.Fprintf(&output, "%s: not processed\n", filepath.Base(r.SceneDirs[i]))
			}
			continue
		}
		output.WriteString(res.Summary())
		output.WriteString("\n")
	}
	s := r.Stats()
	fmt.Fprintf(&output, "%d scenes, %d failed, %d bands not normalized, %.2f ha flooded\n",
		s.Total, s.Failed, s.PartialBands, s.FloodedHa)
	return output.String()
}
