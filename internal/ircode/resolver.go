package ircode

import (
	"encoding/json"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
)

// Resolve picks the recorded code that drives the unit into target.
//
// A powered-on target whose mode the profile does not support fails with
// climate.ErrModeNotSupported before any strategy runs. Strategies are then
// tried in fixed order; the first match wins and the first error ends the
// search. If every strategy passes, the result is climate.ErrNoMatchingCode.
//
// Parameters:
//   - profile: Snapshot of the device's library entry
//   - target: Desired state; LastUpdated is ignored
//
// Returns:
//   - string: The opaque IR code to transmit
//   - error: A *climate.Error of kind ErrModeNotSupported or ErrNoMatchingCode
func Resolve(profile Profile, target climate.State) (string, error) {
	if target.Power && !profile.Supports(target.Mode) {
		return "", climate.Errorf(climate.ErrModeNotSupported,
			"Mode %s is not supported by AC %s. Supported modes: %s",
			target.Mode, profile.ID, climate.JoinModes(profile.SupportedModes))
	}

	for _, s := range strategies {
		if !s.canHandle(target) {
			continue
		}
		code, ok, err := s.find(profile.Codes, target)
		if err != nil {
			return "", err
		}
		if ok {
			return code.Code, nil
		}
	}

	return "", climate.Errorf(climate.ErrNoMatchingCode,
		"No matching IR code found for AC %s with state: %s", profile.ID, targetJSON(target))
}

func targetJSON(t climate.State) string {
	data, err := json.Marshal(struct {
		Power       bool             `json:"power"`
		Mode        climate.Mode     `json:"mode"`
		FanSpeed    climate.FanSpeed `json:"fan_speed"`
		Temperature int              `json:"temperature"`
	}{t.Power, t.Mode, t.FanSpeed, t.Temperature})
	if err != nil {
		return "{}"
	}
	return string(data)
}
