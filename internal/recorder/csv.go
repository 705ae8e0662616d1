package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/large-farva/skylock/internal/estimator"
)

// CSVEmitter appends serving estimates to a CSV file with the
// Timestamp, Connected_Satellite, Distance columns downstream analysis
// expects. Reopening an existing file appends without repeating the
// header. Unresolved estimates keep their row so the time series stays
// gap-free; the distance column is left empty.
type CSVEmitter struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

var _ estimator.Emitter = (*CSVEmitter)(nil)

// NewCSVEmitter opens (or creates) the estimate CSV at path.
func NewCSVEmitter(path string) (*CSVEmitter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	fresh := err != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open estimate csv: %w", err)
	}

	e := &CSVEmitter{f: f, w: csv.NewWriter(f)}
	if fresh {
		if err := e.w.Write([]string{"Timestamp", "Connected_Satellite", "Distance"}); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		e.w.Flush()
		if err := e.w.Error(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return e, nil
}

// Emit appends one estimate row and flushes it.
func (e *CSVEmitter) Emit(est estimator.Estimate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	distance := ""
	if est.Resolved {
		distance = strconv.FormatFloat(est.RangeKm, 'f', 3, 64)
	}
	row := []string{
		est.At.UTC().Format("2006-01-02 15:04:05"),
		est.Label(),
		distance,
	}
	if err := e.w.Write(row); err != nil {
		return fmt.Errorf("write estimate row: %w", err)
	}
	e.w.Flush()
	return e.w.Error()
}

// Close flushes and closes the file.
func (e *CSVEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.w.Flush()
	if err := e.w.Error(); err != nil {
		e.f.Close()
		return err
	}
	return e.f.Close()
}
