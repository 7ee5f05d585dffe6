package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"
)

// CSVLog appends records to two CSV files, one for parameters and one for
// flood areas. Headers are written when a file is created.
type CSVLog struct {
	ParamsPath string
	AreaPath   string
	mu         sync.Mutex
}

// NewCSVLog returns a log writing to dir/normalization_params.csv and
// dir/flood_area.csv.
func NewCSVLog(dir string) (*CSVLog, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("error creating log directory: %w", err)
	}
	return &CSVLog{
		ParamsPath: filepath.Join(dir, "normalization_params.csv"),
		AreaPath:   filepath.Join(dir, "flood_area.csv"),
	}, nil
}

func appendRows[T any](path string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()

	if fresh {
		err = gocsv.Marshal(&rows, f)
	} else {
		err = gocsv.MarshalWithoutHeaders(&rows, f)
	}
	if err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}

// SaveParams appends parameter records.
func (l *CSVLog) SaveParams(_ context.Context, recs []Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return appendRows(l.ParamsPath, recs)
}

// SaveArea appends one area record.
func (l *CSVLog) SaveArea(_ context.Context, rec AreaRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return appendRows(l.AreaPath, []AreaRecord{rec})
}

// ReadParams loads every parameter record from the log.
func (l *CSVLog) ReadParams() ([]Record, error) {
	f, err := os.Open(l.ParamsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []Record
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("error unmarshalling CSV: %w", err)
	}
	return rows, nil
}

// Close is a no-op; files are opened per write.
func (l *CSVLog) Close() error { return nil }
