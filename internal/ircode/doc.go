// Package ircode holds the recorded IR code library and the resolver that
// maps a desired AC state to one of those codes.
//
// Resolution runs a fixed table of mode strategies (power-off, auto,
// cool/heat, dry, fan-only). Each one tries progressively looser matches
// before giving up with a message that names what is available:
//
//	code, err := ircode.Resolve(profile, target)
//	if errors.Is(err, climate.ErrNoMatchingCode) {
//	    // climate.Message(err) == "COOL mode not available at 25°C. Available temperatures: 22, 24°C"
//	}
//
// The Library loads profiles from the devices YAML file and records newly
// learned codes back into it, replacing any entry for the same state.
package ircode
