// Package report turns collected run statistics into the JSON document
// lanesim emits, converting speeds into the requested units.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/lanesim/internal/fsutil"
	"github.com/banshee-data/lanesim/internal/scenario"
	"github.com/banshee-data/lanesim/internal/stats"
	"github.com/banshee-data/lanesim/internal/units"
)

// Vehicle is one row of the report. Speeds are in Report.Units.
type Vehicle struct {
	ID         int64   `json:"id"`
	Lane       int     `json:"lane"`
	Start      float64 `json:"start_position_m"`
	Distance   float64 `json:"distance_m"`
	Elapsed    float64 `json:"elapsed_s"`
	MinSpeed   float64 `json:"min_speed"`
	MaxSpeed   float64 `json:"max_speed"`
	AvgSpeed   float64 `json:"avg_speed"`
	Finished   bool    `json:"finished"`
	FinishTime float64 `json:"finish_time_s,omitempty"`
}

// Report is the document written after a run.
type Report struct {
	RunID    string              `json:"run_id"`
	Version  string              `json:"version"`
	Seed     uint64              `json:"seed"`
	SimTime  float64             `json:"sim_time"`
	Ticks    int                 `json:"ticks"`
	Reason   scenario.StopReason `json:"reason"`
	Units    string              `json:"units"`
	Vehicles []Vehicle           `json:"vehicles"`
}

// Meta identifies the run a report belongs to.
type Meta struct {
	RunID   string
	Version string
	Seed    uint64
	Units   string
}

// Build assembles a report from the run result and per-vehicle rows.
// Unknown units fall back to m/s, as units.ConvertSpeed does.
func Build(meta Meta, res scenario.RunResult, rows []stats.VehicleStats) Report {
	u := meta.Units
	if !units.IsValid(u) {
		u = units.MPS
	}
	r := Report{
		RunID:    meta.RunID,
		Version:  meta.Version,
		Seed:     meta.Seed,
		SimTime:  res.SimTime,
		Ticks:    res.Ticks,
		Reason:   res.Reason,
		Units:    u,
		Vehicles: make([]Vehicle, 0, len(rows)),
	}
	for _, v := range rows {
		r.Vehicles = append(r.Vehicles, Vehicle{
			ID:         int64(v.ID),
			Lane:       v.Lane,
			Start:      v.StartPosition,
			Distance:   v.Distance(),
			Elapsed:    v.Elapsed,
			MinSpeed:   units.ConvertSpeed(v.MinSpeed, u),
			MaxSpeed:   units.ConvertSpeed(v.MaxSpeed, u),
			AvgSpeed:   units.ConvertSpeed(v.AvgSpeed(), u),
			Finished:   v.Finished,
			FinishTime: v.FinishTime,
		})
	}
	return r
}

// Encode writes r as indented JSON.
func (r Report) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteFile stores r as <dir>/<run_id>.json, creating dir if needed, and
// returns the path written.
func (r Report) WriteFile(fsys fsutil.FileSystem, dir string) (string, error) {
	dir = filepath.Clean(dir)
	path := filepath.Join(dir, SanitizeFilename(r.RunID)+".json")
	if filepath.Dir(path) != dir {
		return "", fmt.Errorf("report path %s escapes %s", path, dir)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := fsys.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// SanitizeFilename makes a safe filename from an arbitrary string. Anything
// other than ASCII letters, digits, dot, underscore or dash becomes an
// underscore; runs of underscores collapse and the result is capped at 128
// bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
