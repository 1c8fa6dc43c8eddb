package ircode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
)

// Library errors.
var (
	// ErrUnknownDevice is returned by Record for a device not in the file.
	ErrUnknownDevice = errors.New("ircode: unknown device")

	// ErrInvalidLibrary is returned when the devices file fails validation.
	ErrInvalidLibrary = errors.New("ircode: invalid library")
)

// libraryFile is the on-disk YAML layout of the devices file.
type libraryFile struct {
	Devices map[string]deviceEntry `yaml:"devices"`
}

type deviceEntry struct {
	FriendlyName   string      `yaml:"friendly_name"`
	IRDeviceTopic  string      `yaml:"ir_device_topic"`
	SupportedModes []string    `yaml:"supported_modes"`
	IRCodes        []codeEntry `yaml:"ir_codes"`
}

type codeEntry struct {
	Power       bool   `yaml:"power"`
	Mode        string `yaml:"mode,omitempty"`
	FanSpeed    string `yaml:"fan_speed,omitempty"`
	Temperature int    `yaml:"temperature,omitempty"`
	Code        string `yaml:"code"`
}

// Library is the YAML-backed store of device profiles and recorded codes.
//
// Readers get snapshot copies. Record re-reads the file, applies the change
// and writes it back atomically, all under one lock.
//
// Thread Safety: All methods are safe for concurrent use.
type Library struct {
	path     string
	mu       sync.RWMutex
	profiles map[string]Profile
}

// OpenLibrary loads the devices file at path. A missing file yields an
// empty library; Record will create it.
func OpenLibrary(path string) (*Library, error) {
	lib := &Library{path: path, profiles: map[string]Profile{}}
	if _, err := lib.Reload(); err != nil {
		return nil, err
	}
	return lib, nil
}

// Path returns the devices file location.
func (l *Library) Path() string {
	return l.path
}

// Profile returns a snapshot of one device's profile.
func (l *Library) Profile(id string) (Profile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.profiles[id]
	if !ok {
		return Profile{}, false
	}
	return p.Clone(), true
}

// IDs returns all device IDs in ascending order.
func (l *Library) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.profiles))
	for id := range l.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Profiles returns snapshots of every profile ordered by ID.
func (l *Library) Profiles() []Profile {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Profile, 0, len(l.profiles))
	for _, p := range l.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reload re-reads the devices file and swaps in its contents. On error the
// previous contents stay in place.
//
// Returns:
//   - []string: IDs present now that were not before, ascending
//   - error: Read, parse or validation failure
func (l *Library) Reload() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	profiles, err := readLibrary(l.path)
	if err != nil {
		return nil, err
	}

	var added []string
	for id := range profiles {
		if _, ok := l.profiles[id]; !ok {
			added = append(added, id)
		}
	}
	sort.Strings(added)

	l.profiles = profiles
	return added, nil
}

// Record stores code for deviceID. An existing entry with the same
// (power, mode, fan speed, temperature) is replaced in place.
//
// Returns true when an entry was replaced.
func (l *Library) Record(deviceID string, code RecordedCode) (bool, error) {
	if err := validateCode(code); err != nil {
		return false, err
	}
	code = normaliseCode(code)

	l.mu.Lock()
	defer l.mu.Unlock()

	profiles, err := readLibrary(l.path)
	if err != nil {
		return false, err
	}

	p, ok := profiles[deviceID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	var replaced bool
	p.Codes, replaced = upsertCode(p.Codes, code)
	profiles[deviceID] = p

	if err := writeLibrary(l.path, profiles); err != nil {
		return false, err
	}
	l.profiles = profiles
	return replaced, nil
}

// CopyCodes replaces every code of dstID with the codes of srcID. Units of
// the same model share a remote, so one recording session can serve all.
//
// Returns the number of codes copied.
func (l *Library) CopyCodes(srcID, dstID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	profiles, err := readLibrary(l.path)
	if err != nil {
		return 0, err
	}

	src, ok := profiles[srcID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownDevice, srcID)
	}
	if len(src.Codes) == 0 {
		return 0, fmt.Errorf("%w: %s has no IR codes to copy", ErrInvalidLibrary, srcID)
	}
	dst, ok := profiles[dstID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownDevice, dstID)
	}

	dst.Codes = slices.Clone(src.Codes)
	profiles[dstID] = dst

	if err := writeLibrary(l.path, profiles); err != nil {
		return 0, err
	}
	l.profiles = profiles
	return len(src.Codes), nil
}

func upsertCode(codes []RecordedCode, code RecordedCode) ([]RecordedCode, bool) {
	for i, c := range codes {
		if c.SameTuple(code) {
			codes[i] = code
			return codes, true
		}
	}
	return append(codes, code), false
}

// normaliseCode drops the optional fields of a power-off code.
func normaliseCode(c RecordedCode) RecordedCode {
	if !c.Power {
		return RecordedCode{Code: c.Code}
	}
	return c
}

func validateCode(c RecordedCode) error {
	if strings.TrimSpace(c.Code) == "" {
		return fmt.Errorf("%w: code is empty", ErrInvalidLibrary)
	}
	if !c.Power {
		return nil
	}
	if !c.Mode.IsOperating() {
		return fmt.Errorf("%w: power-on code needs an operating mode, got %q", ErrInvalidLibrary, c.Mode)
	}
	if !slices.Contains(climate.AllFanSpeeds(), c.FanSpeed) {
		return fmt.Errorf("%w: power-on code needs a fan speed, got %q", ErrInvalidLibrary, c.FanSpeed)
	}
	if !climate.ValidTemperature(c.Temperature) {
		return fmt.Errorf("%w: temperature %d outside %d-%d", ErrInvalidLibrary,
			c.Temperature, climate.MinTemperature, climate.MaxTemperature)
	}
	return nil
}

func readLibrary(path string) (map[string]Profile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading devices file: %w", err)
	}

	var file libraryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing devices file: %w", err)
	}
	return decodeLibrary(file)
}

// decodeLibrary converts the file layout into profiles, parsing every enum
// and collecting all validation errors.
func decodeLibrary(file libraryFile) (map[string]Profile, error) {
	profiles := make(map[string]Profile, len(file.Devices))
	var errs []string

	for id, entry := range file.Devices {
		if entry.IRDeviceTopic == "" {
			errs = append(errs, fmt.Sprintf("devices.%s.ir_device_topic is required", id))
		}

		p := Profile{
			ID:            id,
			FriendlyName:  entry.FriendlyName,
			IRDeviceTopic: entry.IRDeviceTopic,
		}
		if p.FriendlyName == "" {
			p.FriendlyName = id
		}

		for _, raw := range entry.SupportedModes {
			m, err := climate.ParseOperatingMode(raw)
			if err != nil {
				errs = append(errs, fmt.Sprintf("devices.%s.supported_modes: %v", id, err))
				continue
			}
			if !slices.Contains(p.SupportedModes, m) {
				p.SupportedModes = append(p.SupportedModes, m)
			}
		}

		for i, ce := range entry.IRCodes {
			code, err := decodeCode(ce)
			if err != nil {
				errs = append(errs, fmt.Sprintf("devices.%s.ir_codes[%d]: %v", id, i, err))
				continue
			}
			p.Codes, _ = upsertCode(p.Codes, code)
		}

		profiles[id] = p
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, fmt.Errorf("%w:\n  - %s", ErrInvalidLibrary, strings.Join(errs, "\n  - "))
	}
	return profiles, nil
}

func decodeCode(ce codeEntry) (RecordedCode, error) {
	code := RecordedCode{Power: ce.Power, Code: ce.Code}
	if ce.Power {
		m, err := climate.ParseOperatingMode(ce.Mode)
		if err != nil {
			return RecordedCode{}, err
		}
		f, err := climate.ParseFanSpeed(ce.FanSpeed)
		if err != nil {
			return RecordedCode{}, err
		}
		code.Mode, code.FanSpeed, code.Temperature = m, f, ce.Temperature
	}
	if err := validateCode(code); err != nil {
		return RecordedCode{}, err
	}
	return normaliseCode(code), nil
}

func encodeLibrary(profiles map[string]Profile) libraryFile {
	file := libraryFile{Devices: make(map[string]deviceEntry, len(profiles))}
	for id, p := range profiles {
		entry := deviceEntry{
			FriendlyName:  p.FriendlyName,
			IRDeviceTopic: p.IRDeviceTopic,
		}
		for _, m := range p.SupportedModes {
			entry.SupportedModes = append(entry.SupportedModes, string(m))
		}
		for _, c := range p.Codes {
			entry.IRCodes = append(entry.IRCodes, codeEntry{
				Power:       c.Power,
				Mode:        string(c.Mode),
				FanSpeed:    string(c.FanSpeed),
				Temperature: c.Temperature,
				Code:        c.Code,
			})
		}
		file.Devices[id] = entry
	}
	return file
}

// writeLibrary replaces the devices file via a temp file and rename.
func writeLibrary(path string, profiles map[string]Profile) error {
	data, err := yaml.Marshal(encodeLibrary(profiles))
	if err != nil {
		return fmt.Errorf("encoding devices file: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".devices-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp devices file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("writing temp devices file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // sync error takes precedence
		return fmt.Errorf("syncing temp devices file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp devices file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("setting devices file permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing devices file: %w", err)
	}
	return nil
}
