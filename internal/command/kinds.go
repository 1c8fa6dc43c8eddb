package command

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
)

// Command kind labels, as used in MQTT topics and the API.
const (
	KindMode        = "mode"
	KindTemperature = "temperature"
	KindFanMode     = "fan_mode"
)

// Kinds returns every command kind label.
func Kinds() []string {
	return []string{KindMode, KindTemperature, KindFanMode}
}

// ModeCommand switches power and mode. "off" powers down and keeps the
// last mode; any operating mode powers up into it.
var ModeCommand = Kind[climate.Mode]{
	Label:    KindMode,
	Validate: ParseModeCommand,
	Apply: func(current climate.State, m climate.Mode) climate.State {
		if m == climate.ModeOff {
			current.Power = false
			return current
		}
		current.Power = true
		current.Mode = m
		return current
	},
}

// TemperatureCommand sets the target temperature.
var TemperatureCommand = Kind[int]{
	Label:    KindTemperature,
	Validate: ParseTemperatureCommand,
	Apply: func(current climate.State, t int) climate.State {
		current.Temperature = t
		return current
	},
}

// FanModeCommand sets the fan speed.
var FanModeCommand = Kind[climate.FanSpeed]{
	Label:    KindFanMode,
	Validate: ParseFanModeCommand,
	Apply: func(current climate.State, f climate.FanSpeed) climate.State {
		current.FanSpeed = f
		return current
	},
}

// ParseModeCommand accepts off or an operating mode, ignoring case and
// surrounding whitespace.
func ParseModeCommand(raw string) (climate.Mode, error) {
	m, err := climate.ParseMode(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		valid := append([]climate.Mode{climate.ModeOff}, climate.OperatingModes()...)
		return "", climate.Errorf(climate.ErrInvalidCommand,
			"Unknown mode: %s. Valid options: %s", raw, climate.JoinModes(valid))
	}
	return m, nil
}

// ParseTemperatureCommand accepts a decimal string holding a whole number
// of degrees within range. Values are never clamped.
func ParseTemperatureCommand(raw string) (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, climate.Errorf(climate.ErrInvalidCommand, "Invalid temperature value: %s", raw)
	}
	if f != math.Trunc(f) || !climate.ValidTemperature(int(f)) {
		return 0, climate.Errorf(climate.ErrInvalidCommand,
			"Temperature must be between %d-%d°C, got: %s",
			climate.MinTemperature, climate.MaxTemperature, strconv.FormatFloat(f, 'f', -1, 64))
	}
	return int(f), nil
}

// ParseFanModeCommand accepts an exact fan speed keyword.
func ParseFanModeCommand(raw string) (climate.FanSpeed, error) {
	f, err := climate.ParseFanSpeed(raw)
	if err != nil {
		return "", climate.Errorf(climate.ErrInvalidCommand,
			"Unknown fan mode: %s. Valid options: %s", raw, climate.JoinFanSpeeds(climate.AllFanSpeeds()))
	}
	return f, nil
}

// errUnknownKind is returned by the Dispatcher for an unrecognised kind label.
func errUnknownKind(kind string) error {
	return climate.Errorf(climate.ErrInvalidCommand,
		"Unknown command kind: %s. Valid options: %s", kind, strings.Join(Kinds(), ", "))
}

// describe renders a state for log lines.
func describe(st climate.State) string {
	if !st.Power {
		return "off"
	}
	return fmt.Sprintf("%s/%s/%d", st.Mode, st.FanSpeed, st.Temperature)
}
