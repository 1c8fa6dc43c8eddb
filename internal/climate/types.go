package climate

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the operating mode of an AC unit.
type Mode string

// Mode constants.
const (
	ModeAuto    Mode = "auto"
	ModeCool    Mode = "cool"
	ModeHeat    Mode = "heat"
	ModeDry     Mode = "dry"
	ModeFanOnly Mode = "fan_only"
	ModeOff     Mode = "off"
)

// AllModes returns every Mode value, including off.
func AllModes() []Mode {
	return []Mode{ModeAuto, ModeCool, ModeHeat, ModeDry, ModeFanOnly, ModeOff}
}

// OperatingModes returns the modes a powered-on unit can run in.
func OperatingModes() []Mode {
	return []Mode{ModeAuto, ModeCool, ModeHeat, ModeDry, ModeFanOnly}
}

// IsOperating reports whether m is a mode a powered-on unit can run in.
func (m Mode) IsOperating() bool {
	switch m {
	case ModeAuto, ModeCool, ModeHeat, ModeDry, ModeFanOnly:
		return true
	default:
		return false
	}
}

// ParseMode converts an exact keyword into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if m == ModeOff || m.IsOperating() {
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidCommand, s)
}

// ParseOperatingMode is ParseMode without off. Used for supported_modes.
func ParseOperatingMode(s string) (Mode, error) {
	m := Mode(s)
	if m.IsOperating() {
		return m, nil
	}
	return "", fmt.Errorf("%w: %q is not an operating mode", ErrInvalidCommand, s)
}

// FanSpeed is the fan setting of an AC unit.
type FanSpeed string

// FanSpeed constants.
const (
	FanAuto   FanSpeed = "auto"
	FanLow    FanSpeed = "low"
	FanMedium FanSpeed = "medium"
	FanHigh   FanSpeed = "high"
	FanQuiet  FanSpeed = "quiet"
)

// AllFanSpeeds returns every FanSpeed value in display order.
func AllFanSpeeds() []FanSpeed {
	return []FanSpeed{FanAuto, FanLow, FanMedium, FanHigh, FanQuiet}
}

// ParseFanSpeed converts an exact keyword into a FanSpeed.
func ParseFanSpeed(s string) (FanSpeed, error) {
	for _, f := range AllFanSpeeds() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unknown fan speed %q", ErrInvalidCommand, s)
}

// Temperature limits in °C.
const (
	MinTemperature     = 16
	MaxTemperature     = 30
	TemperatureStep    = 1
	DefaultTemperature = 22
)

// ValidTemperature reports whether t is inside [MinTemperature, MaxTemperature].
func ValidTemperature(t int) bool {
	return t >= MinTemperature && t <= MaxTemperature
}

// State is the believed current condition of one AC unit.
//
// Mode keeps the last operating mode while Power is false, so turning the
// unit back on resumes it.
type State struct {
	Power       bool      `json:"power"`
	Mode        Mode      `json:"mode"`
	FanSpeed    FanSpeed  `json:"fan_speed"`
	Temperature int       `json:"temperature"`
	LastUpdated time.Time `json:"last_updated"`
}

// DefaultState is the state given to a newly registered device.
func DefaultState(now time.Time) State {
	return State{
		Power:       false,
		Mode:        ModeAuto,
		FanSpeed:    FanAuto,
		Temperature: DefaultTemperature,
		LastUpdated: now.UTC(),
	}
}

// DisplayMode is the mode as shown to Home Assistant: "off" while powered off.
func (s State) DisplayMode() string {
	if !s.Power {
		return string(ModeOff)
	}
	return string(s.Mode)
}

// Action is the HVAC action shown to Home Assistant.
func (s State) Action() string {
	if !s.Power {
		return "off"
	}
	switch s.Mode {
	case ModeCool:
		return "cooling"
	case ModeHeat:
		return "heating"
	default:
		return "idle"
	}
}

// JoinModes renders modes as "a, b, c".
func JoinModes(modes []Mode) string {
	parts := make([]string, len(modes))
	for i, m := range modes {
		parts[i] = string(m)
	}
	return strings.Join(parts, ", ")
}

// JoinFanSpeeds renders fan speeds as "a, b, c".
func JoinFanSpeeds(speeds []FanSpeed) string {
	parts := make([]string, len(speeds))
	for i, f := range speeds {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}
