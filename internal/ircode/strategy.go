package ircode

import (
	"slices"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
)

// Default temperatures substituted by the dry and fan-only fallbacks.
const (
	DryDefaultTemperature     = 24
	FanOnlyDefaultTemperature = 22
)

// strategy is one mode-scoped matching rule.
//
// find returns (code, true, nil) on a match, (zero, false, nil) when the
// strategy has nothing to say, or an error that ends resolution.
type strategy struct {
	name      string
	canHandle func(target climate.State) bool
	find      func(codes []RecordedCode, target climate.State) (RecordedCode, bool, error)
}

// strategies is tried in order. Power-off must come first.
var strategies = [...]strategy{
	{"power_off", func(t climate.State) bool { return !t.Power }, FindPowerOff},
	{"auto", modeIs(climate.ModeAuto), FindAuto},
	{"cool_heat", modeIs(climate.ModeCool, climate.ModeHeat), FindCoolHeat},
	{"dry", modeIs(climate.ModeDry), FindDry},
	{"fan_only", modeIs(climate.ModeFanOnly), FindFanOnly},
}

func modeIs(modes ...climate.Mode) func(climate.State) bool {
	return func(t climate.State) bool {
		return t.Power && slices.Contains(modes, t.Mode)
	}
}

// FindPowerOff returns the first code with Power false. Other target fields
// are ignored. It never fails: a missing off code is reported as no match.
func FindPowerOff(codes []RecordedCode, target climate.State) (RecordedCode, bool, error) {
	if target.Power {
		return RecordedCode{}, false, nil
	}
	for _, c := range codes {
		if !c.Power {
			return c, true, nil
		}
	}
	return RecordedCode{}, false, nil
}

// FindAuto matches auto mode: exact, then the same temperature with auto fan.
func FindAuto(codes []RecordedCode, target climate.State) (RecordedCode, bool, error) {
	return findTwoTier(codes, target)
}

// FindCoolHeat matches cool and heat with the same two tiers as FindAuto.
func FindCoolHeat(codes []RecordedCode, target climate.State) (RecordedCode, bool, error) {
	return findTwoTier(codes, target)
}

func findTwoTier(codes []RecordedCode, target climate.State) (RecordedCode, bool, error) {
	if c, ok := exact(codes, target); ok {
		return c, true, nil
	}
	if c, ok := withAutoFan(codes, target); ok {
		return c, true, nil
	}
	return RecordedCode{}, false, missError(codes, target, climate.DefaultTemperature)
}

// FindDry matches dry mode. Dry units ignore the set temperature, so after
// an exact miss it retries at 24°C, then at 24°C with auto fan.
func FindDry(codes []RecordedCode, target climate.State) (RecordedCode, bool, error) {
	if c, ok := exact(codes, target); ok {
		return c, true, nil
	}

	atDefault := target
	atDefault.Temperature = DryDefaultTemperature
	if c, ok := exact(codes, atDefault); ok {
		return c, true, nil
	}
	if c, ok := withAutoFan(codes, atDefault); ok {
		return c, true, nil
	}

	return RecordedCode{}, false, missError(codes, target, DryDefaultTemperature)
}

// FindFanOnly matches fan-only mode, where fan speed matters and temperature
// does not. Tiers:
//  1. exact
//  2. exact at 22°C
//  3. any temperature, requested fan
//  4. 22°C, auto fan
//  5. any temperature, auto fan
func FindFanOnly(codes []RecordedCode, target climate.State) (RecordedCode, bool, error) {
	if c, ok := exact(codes, target); ok {
		return c, true, nil
	}

	atDefault := target
	atDefault.Temperature = FanOnlyDefaultTemperature
	if c, ok := exact(codes, atDefault); ok {
		return c, true, nil
	}
	if c, ok := anyTemperature(codes, target, target.FanSpeed); ok {
		return c, true, nil
	}
	if c, ok := withAutoFan(codes, atDefault); ok {
		return c, true, nil
	}
	if c, ok := anyTemperature(codes, target, climate.FanAuto); ok {
		return c, true, nil
	}

	fans := availableFanSpeeds(codes, target, func(RecordedCode) bool { return true })
	label := modeLabel(target.Mode)
	if len(fans) == 0 {
		return RecordedCode{}, false, climate.Errorf(climate.ErrNoMatchingCode, "%s mode not available for this AC", label)
	}
	return RecordedCode{}, false, climate.Errorf(climate.ErrNoMatchingCode,
		"%s mode not available with %s fan speed. Available speeds: %s",
		label, target.FanSpeed, climate.JoinFanSpeeds(fans))
}

func exact(codes []RecordedCode, t climate.State) (RecordedCode, bool) {
	for _, c := range codes {
		if c.Power == t.Power && c.Mode == t.Mode && c.FanSpeed == t.FanSpeed && c.Temperature == t.Temperature {
			return c, true
		}
	}
	return RecordedCode{}, false
}

func withAutoFan(codes []RecordedCode, t climate.State) (RecordedCode, bool) {
	t.FanSpeed = climate.FanAuto
	return exact(codes, t)
}

func anyTemperature(codes []RecordedCode, t climate.State, fan climate.FanSpeed) (RecordedCode, bool) {
	for _, c := range codes {
		if c.Power == t.Power && c.Mode == t.Mode && c.FanSpeed == fan {
			return c, true
		}
	}
	return RecordedCode{}, false
}

// missError describes why a two-tier or dry search failed. A zero target
// temperature counts as absent and is reported as defaultTemp.
func missError(codes []RecordedCode, target climate.State, defaultTemp int) error {
	label := modeLabel(target.Mode)

	temp := target.Temperature
	if temp == 0 {
		temp = defaultTemp
	}

	temps := availableTemperatures(codes, target)
	if len(temps) == 0 {
		return climate.Errorf(climate.ErrNoMatchingCode, "%s mode not available for this AC", label)
	}
	if !slices.Contains(temps, temp) {
		return climate.Errorf(climate.ErrNoMatchingCode,
			"%s mode not available at %d°C. Available temperatures: %s°C", label, temp, joinInts(temps))
	}

	fans := availableFanSpeeds(codes, target, func(c RecordedCode) bool { return c.Temperature == temp })
	if len(fans) == 0 {
		return climate.Errorf(climate.ErrNoMatchingCode, "%s mode not available at %d°C", label, temp)
	}
	return climate.Errorf(climate.ErrNoMatchingCode,
		"%s mode not available with %s fan speed. Available speeds: %s",
		label, target.FanSpeed, climate.JoinFanSpeeds(fans))
}

// availableTemperatures lists recorded temperatures for the target's power
// and mode, deduplicated and ascending.
func availableTemperatures(codes []RecordedCode, t climate.State) []int {
	var temps []int
	for _, c := range codes {
		if c.Power == t.Power && c.Mode == t.Mode && c.Temperature != 0 {
			temps = append(temps, c.Temperature)
		}
	}
	slices.Sort(temps)
	return slices.Compact(temps)
}

// availableFanSpeeds lists recorded fan speeds for the target's power and
// mode that also satisfy keep, deduplicated in first-seen order.
func availableFanSpeeds(codes []RecordedCode, t climate.State, keep func(RecordedCode) bool) []climate.FanSpeed {
	var fans []climate.FanSpeed
	for _, c := range codes {
		if c.Power != t.Power || c.Mode != t.Mode || c.FanSpeed == "" || !keep(c) {
			continue
		}
		if !slices.Contains(fans, c.FanSpeed) {
			fans = append(fans, c.FanSpeed)
		}
	}
	return fans
}

func modeLabel(m climate.Mode) string {
	return strings.ToUpper(string(m))
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
