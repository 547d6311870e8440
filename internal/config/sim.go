package config

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"

	"github.com/banshee-data/lanesim/internal/fsutil"
	"github.com/banshee-data/lanesim/internal/traffic/vehicle"
	"github.com/banshee-data/lanesim/internal/units"
)

// DefaultConfigPath is the path to the canonical scenario defaults file.
const DefaultConfigPath = "config/lanesim.defaults.json"

// SimConfig is the root configuration for a simulation run. Speeds in the
// file are km/h to match how speed-limit signs are written; everything is
// converted to m/s before it reaches the simulation.
//
// Every field is optional. Get* accessors return the documented default for
// fields omitted from the JSON, so partial configs are safe.
type SimConfig struct {
	// Road
	LaneCount   *int     `json:"lane_count,omitempty"`
	CourseStart *float64 `json:"course_start,omitempty"` // metres
	CourseEnd   *float64 `json:"course_end,omitempty"`   // metres

	// Clock
	TimeStep *float64 `json:"time_step,omitempty"` // seconds per frame
	SubSteps *int     `json:"sub_steps,omitempty"`
	MaxTime  *float64 `json:"max_time,omitempty"` // simulation seconds
	Seed     *uint64  `json:"seed,omitempty"`
	Workers  *int     `json:"workers,omitempty"`
	Realtime *float64 `json:"realtime,omitempty"` // speed-up factor; 0 runs flat out

	// Traffic
	TrafficCount    *int      `json:"traffic_count,omitempty"`
	PlayerLane      *int      `json:"player_lane,omitempty"`
	PlayerSpeedKMH  *float64  `json:"player_speed_kmh,omitempty"`
	StartLimitKMH   *float64  `json:"start_limit_kmh,omitempty"`
	VehicleLength   *float64  `json:"vehicle_length,omitempty"`
	MinGap          *float64  `json:"min_gap,omitempty"`
	GapJitter       *float64  `json:"gap_jitter,omitempty"`
	BaseAccel       *float64  `json:"base_acceleration,omitempty"`
	AccelJitter     *float64  `json:"acceleration_jitter,omitempty"`
	BaseDecel       *float64  `json:"base_deceleration,omitempty"`
	DecelJitter     *float64  `json:"deceleration_jitter,omitempty"`
	SpeedPreference []float64 `json:"speed_preference_offsets,omitempty"` // m/s, indexed by spawn order

	// Signs
	SignLimitsKMH     []float64 `json:"sign_limits_kmh,omitempty"`
	SignSpacingMin    *float64  `json:"sign_spacing_min,omitempty"`
	SignSpacingMax    *float64  `json:"sign_spacing_max,omitempty"`
	FirstSignPosition *float64  `json:"first_sign_position,omitempty"`

	// Driver policy
	LaneChangeOrder       *string  `json:"lane_change_order,omitempty"`
	SpeedTolerance        *float64 `json:"speed_tolerance,omitempty"`
	MinLaneChangeInterval *float64 `json:"min_lane_change_interval,omitempty"`

	// Output
	ReportUnits *string `json:"report_units,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptySimConfig returns a SimConfig with all fields set to nil.
// Use LoadSimConfig to load actual values from the defaults file.
func EmptySimConfig() *SimConfig {
	return &SimConfig{}
}

// LoadSimConfig loads a SimConfig from a JSON file on disk.
// The file must have a .json extension and be under 1MB.
func LoadSimConfig(path string) (*SimConfig, error) {
	return LoadSimConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadSimConfigFS is LoadSimConfig against an arbitrary filesystem.
func LoadSimConfigFS(fsys fsutil.FileSystem, path string) (*SimConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySimConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *SimConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/traffic/sim/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadSimConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Validate checks the values that are set, and the relationships between
// effective values.
func (c *SimConfig) Validate() error {
	if c.LaneCount != nil && *c.LaneCount < 1 {
		return fmt.Errorf("lane_count must be at least 1, got %d", *c.LaneCount)
	}
	if c.TimeStep != nil && (!finite(*c.TimeStep) || *c.TimeStep <= 0) {
		return fmt.Errorf("time_step must be positive, got %v", *c.TimeStep)
	}
	if c.SubSteps != nil && *c.SubSteps < 1 {
		return fmt.Errorf("sub_steps must be at least 1, got %d", *c.SubSteps)
	}
	if c.MaxTime != nil && (!finite(*c.MaxTime) || *c.MaxTime <= 0) {
		return fmt.Errorf("max_time must be positive, got %v", *c.MaxTime)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.Realtime != nil && (!finite(*c.Realtime) || *c.Realtime < 0) {
		return fmt.Errorf("realtime must be non-negative, got %v", *c.Realtime)
	}
	if c.TrafficCount != nil && *c.TrafficCount < 0 {
		return fmt.Errorf("traffic_count must be non-negative, got %d", *c.TrafficCount)
	}
	if pl := c.GetPlayerLane(); pl < 0 || pl >= c.GetLaneCount() {
		return fmt.Errorf("player_lane %d outside [0, %d)", pl, c.GetLaneCount())
	}
	if c.GetCourseEnd() <= c.GetCourseStart() {
		return fmt.Errorf("course_end %v must be beyond course_start %v", c.GetCourseEnd(), c.GetCourseStart())
	}
	if c.GetVehicleLength() < 0 || c.GetMinGap() < 0 || c.GetGapJitter() < 0 {
		return fmt.Errorf("vehicle_length, min_gap and gap_jitter must be non-negative")
	}
	if c.GetBaseAcceleration()-c.GetAccelerationJitter() < 0 {
		return fmt.Errorf("base_acceleration %v minus jitter %v must be non-negative",
			c.GetBaseAcceleration(), c.GetAccelerationJitter())
	}
	if c.GetBaseDeceleration()+c.GetDecelerationJitter() >= 0 {
		return fmt.Errorf("base_deceleration %v plus jitter %v must stay negative",
			c.GetBaseDeceleration(), c.GetDecelerationJitter())
	}
	if c.GetSignSpacingMin() <= 0 || c.GetSignSpacingMax() < c.GetSignSpacingMin() {
		return fmt.Errorf("sign spacing [%v, %v] must be positive and ordered",
			c.GetSignSpacingMin(), c.GetSignSpacingMax())
	}
	for _, limit := range c.GetSignLimitsKMH() {
		if !finite(limit) || limit < 0 {
			return fmt.Errorf("sign_limits_kmh contains invalid limit %v", limit)
		}
	}
	if err := c.Policy().Validate(); err != nil {
		return err
	}
	if !units.IsValid(c.GetReportUnits()) {
		return fmt.Errorf("invalid report_units %q, valid: %s", c.GetReportUnits(), units.GetValidUnitsString())
	}
	return nil
}

// GetLaneCount returns the lane_count value or the default.
func (c *SimConfig) GetLaneCount() int {
	if c.LaneCount == nil {
		return 5
	}
	return *c.LaneCount
}

// GetCourseStart returns the course_start value or the default.
func (c *SimConfig) GetCourseStart() float64 {
	if c.CourseStart == nil {
		return 0
	}
	return *c.CourseStart
}

// GetCourseEnd returns the course_end value or the default.
func (c *SimConfig) GetCourseEnd() float64 {
	if c.CourseEnd == nil {
		return 1000
	}
	return *c.CourseEnd
}

// GetTimeStep returns the time_step value or the default (one 60 Hz frame
// at 50x speed-up).
func (c *SimConfig) GetTimeStep() float64 {
	if c.TimeStep == nil {
		return 50.0 / 60.0
	}
	return *c.TimeStep
}

// GetSubSteps returns the sub_steps value or the default.
func (c *SimConfig) GetSubSteps() int {
	if c.SubSteps == nil {
		return 4
	}
	return *c.SubSteps
}

// GetDt returns the per-tick timestep, time_step divided by sub_steps.
func (c *SimConfig) GetDt() float64 {
	return c.GetTimeStep() / float64(c.GetSubSteps())
}

// GetMaxTime returns the max_time value or the default.
func (c *SimConfig) GetMaxTime() float64 {
	if c.MaxTime == nil {
		return 600
	}
	return *c.MaxTime
}

// GetSeed returns the seed value or the default.
func (c *SimConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetWorkers returns the workers value or the default.
func (c *SimConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}

// GetRealtime returns the realtime value or the default (disabled).
func (c *SimConfig) GetRealtime() float64 {
	if c.Realtime == nil {
		return 0
	}
	return *c.Realtime
}

// GetTrafficCount returns the traffic_count value or the default.
func (c *SimConfig) GetTrafficCount() int {
	if c.TrafficCount == nil {
		return 40
	}
	return *c.TrafficCount
}

// GetPlayerLane returns the player_lane value or the default.
func (c *SimConfig) GetPlayerLane() int {
	if c.PlayerLane == nil {
		return 1
	}
	return *c.PlayerLane
}

// GetPlayerSpeedKMH returns the player_speed_kmh value or the default.
func (c *SimConfig) GetPlayerSpeedKMH() float64 {
	if c.PlayerSpeedKMH == nil {
		return 120
	}
	return *c.PlayerSpeedKMH
}

// GetStartLimitKMH returns the start_limit_kmh value or the default.
func (c *SimConfig) GetStartLimitKMH() float64 {
	if c.StartLimitKMH == nil {
		return 120
	}
	return *c.StartLimitKMH
}

// GetVehicleLength returns the vehicle_length value or the default.
func (c *SimConfig) GetVehicleLength() float64 {
	if c.VehicleLength == nil {
		return 40
	}
	return *c.VehicleLength
}

// GetMinGap returns the min_gap value or the default.
func (c *SimConfig) GetMinGap() float64 {
	if c.MinGap == nil {
		return 35
	}
	return *c.MinGap
}

// GetGapJitter returns the gap_jitter value or the default.
func (c *SimConfig) GetGapJitter() float64 {
	if c.GapJitter == nil {
		return 160
	}
	return *c.GapJitter
}

// GetBaseAcceleration returns the base_acceleration value or the default.
func (c *SimConfig) GetBaseAcceleration() float64 {
	if c.BaseAccel == nil {
		return 8
	}
	return *c.BaseAccel
}

// GetAccelerationJitter returns the acceleration_jitter value or the default.
func (c *SimConfig) GetAccelerationJitter() float64 {
	if c.AccelJitter == nil {
		return 4
	}
	return *c.AccelJitter
}

// GetBaseDeceleration returns the base_deceleration value or the default.
func (c *SimConfig) GetBaseDeceleration() float64 {
	if c.BaseDecel == nil {
		return -12
	}
	return *c.BaseDecel
}

// GetDecelerationJitter returns the deceleration_jitter value or the default.
func (c *SimConfig) GetDecelerationJitter() float64 {
	if c.DecelJitter == nil {
		return 4
	}
	return *c.DecelJitter
}

// GetSpeedPreference returns the fixed speed offset for the vehicle spawned
// at index i, or 0 when none is configured.
func (c *SimConfig) GetSpeedPreference(i int) float64 {
	if i < 0 || i >= len(c.SpeedPreference) {
		return 0
	}
	return c.SpeedPreference[i]
}

// GetSignLimitsKMH returns the sign_limits_kmh value or the default.
func (c *SimConfig) GetSignLimitsKMH() []float64 {
	if len(c.SignLimitsKMH) == 0 {
		return []float64{120, 160, 200, 240, 280}
	}
	return c.SignLimitsKMH
}

// GetSignSpacingMin returns the sign_spacing_min value or the default.
func (c *SimConfig) GetSignSpacingMin() float64 {
	if c.SignSpacingMin == nil {
		return 350
	}
	return *c.SignSpacingMin
}

// GetSignSpacingMax returns the sign_spacing_max value or the default.
func (c *SimConfig) GetSignSpacingMax() float64 {
	if c.SignSpacingMax == nil {
		return 450
	}
	return *c.SignSpacingMax
}

// GetFirstSignPosition returns the first_sign_position value or the default.
func (c *SimConfig) GetFirstSignPosition() float64 {
	if c.FirstSignPosition == nil {
		return -150
	}
	return *c.FirstSignPosition
}

// GetReportUnits returns the report_units value or the default.
func (c *SimConfig) GetReportUnits() string {
	if c.ReportUnits == nil || *c.ReportUnits == "" {
		return units.KMPH
	}
	return *c.ReportUnits
}

// Policy builds the driver policy shared by every spawned vehicle.
func (c *SimConfig) Policy() vehicle.Policy {
	var p vehicle.Policy
	if c.LaneChangeOrder != nil {
		p.LaneChangeOrder = vehicle.LaneChangeOrder(*c.LaneChangeOrder)
	}
	if c.SpeedTolerance != nil {
		tol := *c.SpeedTolerance
		p.SpeedTolerance = &tol
	}
	if c.MinLaneChangeInterval != nil {
		p.MinLaneChangeInterval = *c.MinLaneChangeInterval
	}
	return p
}
