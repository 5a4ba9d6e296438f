package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the alertness engine's
// thresholds, factor weights and debounce counts. Every field is optional;
// the Get* methods fall back to built-in defaults for anything omitted.
type TuningConfig struct {
	// Factor thresholds
	EARThreshold       *float64 `json:"ear_threshold,omitempty"`
	MARThreshold       *float64 `json:"mar_threshold,omitempty"`
	HeadTiltDegrees    *float64 `json:"head_tilt_degrees,omitempty"`
	AttentionThreshold *float64 `json:"attention_threshold,omitempty"`

	// Factor weights
	EyeClosureWeight    *int `json:"eye_closure_weight,omitempty"`
	YawningWeight       *int `json:"yawning_weight,omitempty"`
	HeadTiltWeight      *int `json:"head_tilt_weight,omitempty"`
	AttentionLossWeight *int `json:"attention_loss_weight,omitempty"`

	// Steering anomaly detector
	SteeringDegrees   *float64 `json:"steering_degrees,omitempty"`
	SteeringDeviation *float64 `json:"steering_deviation,omitempty"`
	SteeringFrames    *int     `json:"steering_frames,omitempty"`

	// Episode counting
	EyeClosureFrames *int `json:"eye_closure_frames,omitempty"`

	// Smoothing windows
	EARWindow   *int `json:"ear_window,omitempty"`
	AngleWindow *int `json:"angle_window,omitempty"`

	// Level thresholds
	WarningScore   *int `json:"warning_score,omitempty"`
	CriticalScore  *int `json:"critical_score,omitempty"`
	EmergencyScore *int `json:"emergency_score,omitempty"`

	// Minimum spacing between measurement requests, duration string like "2s"
	MeasurementInterval *string `json:"measurement_interval,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the built-in defaults.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		EARThreshold:        ptrFloat64(0.21),
		MARThreshold:        ptrFloat64(0.5),
		HeadTiltDegrees:     ptrFloat64(10),
		AttentionThreshold:  ptrFloat64(0.25),
		EyeClosureWeight:    ptrInt(40),
		YawningWeight:       ptrInt(25),
		HeadTiltWeight:      ptrInt(20),
		AttentionLossWeight: ptrInt(15),
		SteeringDegrees:     ptrFloat64(15),
		SteeringDeviation:   ptrFloat64(0.3),
		SteeringFrames:      ptrInt(8),
		EyeClosureFrames:    ptrInt(12),
		EARWindow:           ptrInt(15),
		AngleWindow:         ptrInt(10),
		WarningScore:        ptrInt(25),
		CriticalScore:       ptrInt(40),
		EmergencyScore:      ptrInt(65),
		MeasurementInterval: ptrString("2s"),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*float64{
		"ear_threshold":       c.EARThreshold,
		"mar_threshold":       c.MARThreshold,
		"attention_threshold": c.AttentionThreshold,
		"steering_deviation":  c.SteeringDeviation,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}

	for name, v := range map[string]*float64{
		"head_tilt_degrees": c.HeadTiltDegrees,
		"steering_degrees":  c.SteeringDegrees,
	} {
		if v != nil && (*v < 0 || *v > 90) {
			return fmt.Errorf("%s must be between 0 and 90, got %f", name, *v)
		}
	}

	for name, v := range map[string]*int{
		"eye_closure_weight":    c.EyeClosureWeight,
		"yawning_weight":        c.YawningWeight,
		"head_tilt_weight":      c.HeadTiltWeight,
		"attention_loss_weight": c.AttentionLossWeight,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}
	weights := c.GetEyeClosureWeight() + c.GetYawningWeight() + c.GetHeadTiltWeight() + c.GetAttentionLossWeight()
	if weights > 100 {
		return fmt.Errorf("factor weights must sum to at most 100, got %d", weights)
	}

	for name, v := range map[string]*int{
		"steering_frames":    c.SteeringFrames,
		"eye_closure_frames": c.EyeClosureFrames,
		"ear_window":         c.EARWindow,
		"angle_window":       c.AngleWindow,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, *v)
		}
	}

	if !(c.GetWarningScore() <= c.GetCriticalScore() && c.GetCriticalScore() <= c.GetEmergencyScore()) {
		return fmt.Errorf("level scores must be ordered warning <= critical <= emergency, got %d/%d/%d",
			c.GetWarningScore(), c.GetCriticalScore(), c.GetEmergencyScore())
	}

	if c.MeasurementInterval != nil && *c.MeasurementInterval != "" {
		d, err := time.ParseDuration(*c.MeasurementInterval)
		if err != nil {
			return fmt.Errorf("invalid measurement_interval '%s': %w", *c.MeasurementInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("measurement_interval must be non-negative, got %s", d)
		}
	}

	return nil
}

// GetEARThreshold returns the ear_threshold value or the default.
func (c *TuningConfig) GetEARThreshold() float64 {
	if c.EARThreshold == nil {
		return 0.21
	}
	return *c.EARThreshold
}

// GetMARThreshold returns the mar_threshold value or the default.
func (c *TuningConfig) GetMARThreshold() float64 {
	if c.MARThreshold == nil {
		return 0.5
	}
	return *c.MARThreshold
}

// GetHeadTiltDegrees returns the head_tilt_degrees value or the default.
func (c *TuningConfig) GetHeadTiltDegrees() float64 {
	if c.HeadTiltDegrees == nil {
		return 10
	}
	return *c.HeadTiltDegrees
}

// GetAttentionThreshold returns the attention_threshold value or the default.
func (c *TuningConfig) GetAttentionThreshold() float64 {
	if c.AttentionThreshold == nil {
		return 0.25
	}
	return *c.AttentionThreshold
}

// GetEyeClosureWeight returns the eye_closure_weight value or the default.
func (c *TuningConfig) GetEyeClosureWeight() int {
	if c.EyeClosureWeight == nil {
		return 40
	}
	return *c.EyeClosureWeight
}

// GetYawningWeight returns the yawning_weight value or the default.
func (c *TuningConfig) GetYawningWeight() int {
	if c.YawningWeight == nil {
		return 25
	}
	return *c.YawningWeight
}

// GetHeadTiltWeight returns the head_tilt_weight value or the default.
func (c *TuningConfig) GetHeadTiltWeight() int {
	if c.HeadTiltWeight == nil {
		return 20
	}
	return *c.HeadTiltWeight
}

// GetAttentionLossWeight returns the attention_loss_weight value or the default.
func (c *TuningConfig) GetAttentionLossWeight() int {
	if c.AttentionLossWeight == nil {
		return 15
	}
	return *c.AttentionLossWeight
}

// GetSteeringDegrees returns the steering_degrees value or the default.
func (c *TuningConfig) GetSteeringDegrees() float64 {
	if c.SteeringDegrees == nil {
		return 15
	}
	return *c.SteeringDegrees
}

// GetSteeringDeviation returns the steering_deviation value or the default.
func (c *TuningConfig) GetSteeringDeviation() float64 {
	if c.SteeringDeviation == nil {
		return 0.3
	}
	return *c.SteeringDeviation
}

// GetSteeringFrames returns the steering_frames value or the default.
func (c *TuningConfig) GetSteeringFrames() int {
	if c.SteeringFrames == nil {
		return 8
	}
	return *c.SteeringFrames
}

// GetEyeClosureFrames returns the eye_closure_frames value or the default.
func (c *TuningConfig) GetEyeClosureFrames() int {
	if c.EyeClosureFrames == nil {
		return 12
	}
	return *c.EyeClosureFrames
}

// GetEARWindow returns the ear_window value or the default.
func (c *TuningConfig) GetEARWindow() int {
	if c.EARWindow == nil {
		return 15
	}
	return *c.EARWindow
}

// GetAngleWindow returns the angle_window value or the default.
func (c *TuningConfig) GetAngleWindow() int {
	if c.AngleWindow == nil {
		return 10
	}
	return *c.AngleWindow
}

// GetWarningScore returns the warning_score value or the default.
func (c *TuningConfig) GetWarningScore() int {
	if c.WarningScore == nil {
		return 25
	}
	return *c.WarningScore
}

// GetCriticalScore returns the critical_score value or the default.
func (c *TuningConfig) GetCriticalScore() int {
	if c.CriticalScore == nil {
		return 40
	}
	return *c.CriticalScore
}

// GetEmergencyScore returns the emergency_score value or the default.
func (c *TuningConfig) GetEmergencyScore() int {
	if c.EmergencyScore == nil {
		return 65
	}
	return *c.EmergencyScore
}

// GetMeasurementInterval parses and returns the MeasurementInterval as a time.Duration.
func (c *TuningConfig) GetMeasurementInterval() time.Duration {
	if c.MeasurementInterval == nil || *c.MeasurementInterval == "" {
		return 2 * time.Second // default
	}
	d, err := time.ParseDuration(*c.MeasurementInterval)
	if err != nil {
		return 2 * time.Second // default on parse error
	}
	return d
}
