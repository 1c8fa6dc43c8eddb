package ircode

import (
	"slices"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
)

// RecordedCode is a captured IR signal tied to the state it produces.
//
// Mode, FanSpeed and Temperature are zero (absent) when Power is false.
// Within one device no two codes share (Power, Mode, FanSpeed, Temperature).
type RecordedCode struct {
	Power       bool
	Mode        climate.Mode
	FanSpeed    climate.FanSpeed
	Temperature int
	Code        string
}

// SameTuple reports whether c and o describe the same state.
func (c RecordedCode) SameTuple(o RecordedCode) bool {
	if !c.Power && !o.Power {
		return true
	}
	return c.Power == o.Power && c.Mode == o.Mode && c.FanSpeed == o.FanSpeed && c.Temperature == o.Temperature
}

// Profile is one AC unit's entry in the code library.
type Profile struct {
	ID             string
	FriendlyName   string
	IRDeviceTopic  string
	SupportedModes []climate.Mode
	Codes          []RecordedCode
}

// Supports reports whether m is in the profile's supported modes.
func (p Profile) Supports(m climate.Mode) bool {
	return slices.Contains(p.SupportedModes, m)
}

// Clone returns a copy that shares no slices with p.
func (p Profile) Clone() Profile {
	p.SupportedModes = slices.Clone(p.SupportedModes)
	p.Codes = slices.Clone(p.Codes)
	return p
}
