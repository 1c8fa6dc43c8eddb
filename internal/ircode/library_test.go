package ircode

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
)

const testLibraryYAML = `
devices:
  living_room:
    friendly_name: Living Room AC
    ir_device_topic: ZS06_living
    supported_modes: [auto, cool, heat]
    ir_codes:
      - {power: false, code: "OFF1"}
      - {power: true, mode: cool, fan_speed: auto, temperature: 22, code: "C22A"}
  bedroom:
    ir_device_topic: ZS06_bedroom
    supported_modes: [cool]
    ir_codes: []
`

func writeDevicesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write devices file: %v", err)
	}
	return path
}

func TestOpenLibrary(t *testing.T) {
	lib, err := OpenLibrary(writeDevicesFile(t, testLibraryYAML))
	if err != nil {
		t.Fatalf("OpenLibrary() error = %v", err)
	}

	ids := lib.IDs()
	if len(ids) != 2 || ids[0] != "bedroom" || ids[1] != "living_room" {
		t.Errorf("IDs() = %v, want [bedroom living_room]", ids)
	}

	p, ok := lib.Profile("living_room")
	if !ok {
		t.Fatal("Profile(living_room) not found")
	}
	if p.FriendlyName != "Living Room AC" || p.IRDeviceTopic != "ZS06_living" {
		t.Errorf("Profile() = %+v, want living room details", p)
	}
	if !p.Supports(climate.ModeHeat) || p.Supports(climate.ModeDry) {
		t.Errorf("SupportedModes = %v, want [auto cool heat]", p.SupportedModes)
	}
	if len(p.Codes) != 2 || p.Codes[1].Code != "C22A" || p.Codes[1].Temperature != 22 {
		t.Errorf("Codes = %+v, want OFF1 and C22A", p.Codes)
	}

	// Friendly name defaults to the ID
	b, _ := lib.Profile("bedroom")
	if b.FriendlyName != "bedroom" {
		t.Errorf("bedroom FriendlyName = %q, want %q", b.FriendlyName, "bedroom")
	}

	if _, ok := lib.Profile("garage"); ok {
		t.Error("Profile(garage) found, want missing")
	}
}

func TestOpenLibrary_MissingFile(t *testing.T) {
	lib, err := OpenLibrary(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("OpenLibrary() error = %v", err)
	}
	if len(lib.IDs()) != 0 {
		t.Errorf("IDs() = %v, want empty", lib.IDs())
	}
}

func TestOpenLibrary_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bad yaml",
			content: "devices: [",
			want:    "parsing devices file",
		},
		{
			name: "missing ir topic",
			content: `
devices:
  x:
    supported_modes: [cool]
`,
			want: "devices.x.ir_device_topic is required",
		},
		{
			name: "off is not a supported mode",
			content: `
devices:
  x:
    ir_device_topic: t
    supported_modes: [off]
`,
			want: "devices.x.supported_modes",
		},
		{
			name: "unknown fan speed",
			content: `
devices:
  x:
    ir_device_topic: t
    ir_codes:
      - {power: true, mode: cool, fan_speed: turbo, temperature: 22, code: "a"}
`,
			want: "devices.x.ir_codes[0]",
		},
		{
			name: "temperature out of range",
			content: `
devices:
  x:
    ir_device_topic: t
    ir_codes:
      - {power: true, mode: cool, fan_speed: auto, temperature: 31, code: "a"}
`,
			want: "temperature 31 outside 16-30",
		},
		{
			name: "empty code",
			content: `
devices:
  x:
    ir_device_topic: t
    ir_codes:
      - {power: false, code: ""}
`,
			want: "code is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenLibrary(writeDevicesFile(t, tt.content))
			if err == nil {
				t.Fatal("OpenLibrary() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("OpenLibrary() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestOpenLibrary_DuplicateTuplesCollapse(t *testing.T) {
	lib, err := OpenLibrary(writeDevicesFile(t, `
devices:
  x:
    ir_device_topic: t
    supported_modes: [cool]
    ir_codes:
      - {power: true, mode: cool, fan_speed: low, temperature: 22, code: "first"}
      - {power: false, code: "OFF"}
      - {power: true, mode: cool, fan_speed: low, temperature: 22, code: "second"}
`))
	if err != nil {
		t.Fatalf("OpenLibrary() error = %v", err)
	}

	p, _ := lib.Profile("x")
	if len(p.Codes) != 2 {
		t.Fatalf("len(Codes) = %d, want 2", len(p.Codes))
	}
	if p.Codes[0].Code != "second" {
		t.Errorf("Codes[0] = %q, want %q", p.Codes[0].Code, "second")
	}
}

func TestLibrary_ProfileIsSnapshot(t *testing.T) {
	lib, err := OpenLibrary(writeDevicesFile(t, testLibraryYAML))
	if err != nil {
		t.Fatalf("OpenLibrary() error = %v", err)
	}

	p, _ := lib.Profile("living_room")
	p.Codes[0].Code = "mutated"

	again, _ := lib.Profile("living_room")
	if again.Codes[0].Code != "OFF1" {
		t.Errorf("library changed through snapshot: %q", again.Codes[0].Code)
	}
}

func TestLibrary_Record(t *testing.T) {
	path := writeDevicesFile(t, testLibraryYAML)
	lib, err := OpenLibrary(path)
	if err != nil {
		t.Fatalf("OpenLibrary() error = %v", err)
	}

	replaced, err := lib.Record("living_room", on(climate.ModeHeat, climate.FanLow, 25, "H25L"))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if replaced {
		t.Error("Record() replaced = true for a new tuple")
	}

	replaced, err = lib.Record("living_room", on(climate.ModeCool, climate.FanAuto, 22, "C22A-v2"))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !replaced {
		t.Error("Record() replaced = false for a duplicate tuple")
	}

	p, _ := lib.Profile("living_room")
	if len(p.Codes) != 3 {
		t.Fatalf("len(Codes) = %d, want 3", len(p.Codes))
	}
	if p.Codes[1].Code != "C22A-v2" {
		t.Errorf("Codes[1] = %q, want replaced code", p.Codes[1].Code)
	}

	// Persisted and readable by a fresh library
	fresh, err := OpenLibrary(path)
	if err != nil {
		t.Fatalf("OpenLibrary() reopen error = %v", err)
	}
	fp, _ := fresh.Profile("living_room")
	if len(fp.Codes) != 3 || fp.Codes[2].Code != "H25L" {
		t.Errorf("reopened Codes = %+v, want 3 codes ending in H25L", fp.Codes)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("devices file perm = %o, want 600", perm)
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".devices-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestLibrary_RecordPowerOffDropsFields(t *testing.T) {
	lib, err := OpenLibrary(writeDevicesFile(t, testLibraryYAML))
	if err != nil {
		t.Fatalf("OpenLibrary() error = %v", err)
	}

	replaced, err := lib.Record("living_room", RecordedCode{Power: false, Mode: climate.ModeCool, Temperature: 20, Code: "OFF2"})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !replaced {
		t.Error("Record() replaced = false, want existing off code replaced")
	}

	p, _ := lib.Profile("living_room")
	if p.Codes[0] != (RecordedCode{Code: "OFF2"}) {
		t.Errorf("Codes[0] = %+v, want bare OFF2", p.Codes[0])
	}
}

func TestLibrary_RecordErrors(t *testing.T) {
	lib, err := OpenLibrary(writeDevicesFile(t, testLibraryYAML))
	if err != nil {
		t.Fatalf("OpenLibrary() error = %v", err)
	}

	if _, err := lib.Record("garage", off("X")); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Record(garage) error = %v, want ErrUnknownDevice", err)
	}
	if _, err := lib.Record("living_room", on(climate.ModeOff, climate.FanAuto, 22, "X")); !errors.Is(err, ErrInvalidLibrary) {
		t.Errorf("Record(mode off) error = %v, want ErrInvalidLibrary", err)
	}
	if _, err := lib.Record("living_room", on(climate.ModeCool, climate.FanAuto, 15, "X")); !errors.Is(err, ErrInvalidLibrary) {
		t.Errorf("Record(15°C) error = %v, want ErrInvalidLibrary", err)
	}
}

func TestLibrary_CopyCodes(t *testing.T) {
	path := writeDevicesFile(t, testLibraryYAML)
	lib, err := OpenLibrary(path)
	if err != nil {
		t.Fatalf("OpenLibrary() error = %v", err)
	}

	n, err := lib.CopyCodes("living_room", "bedroom")
	if err != nil {
		t.Fatalf("CopyCodes() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CopyCodes() = %d, want 2", n)
	}

	fresh, err := OpenLibrary(path)
	if err != nil {
		t.Fatalf("OpenLibrary() reopen error = %v", err)
	}
	p, _ := fresh.Profile("bedroom")
	if len(p.Codes) != 2 || p.Codes[1].Code != "C22A" {
		t.Errorf("bedroom Codes = %+v, want copy of living_room", p.Codes)
	}
	if p.IRDeviceTopic != "ZS06_bedroom" {
		t.Errorf("bedroom IRDeviceTopic = %q, want unchanged", p.IRDeviceTopic)
	}

	if _, err := lib.CopyCodes("bedroom", "garage"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("CopyCodes(to garage) error = %v, want ErrUnknownDevice", err)
	}
	if _, err := lib.CopyCodes("garage", "bedroom"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("CopyCodes(from garage) error = %v, want ErrUnknownDevice", err)
	}
}

func TestLibrary_CopyCodesEmptySource(t *testing.T) {
	lib, err := OpenLibrary(writeDevicesFile(t, testLibraryYAML))
	if err != nil {
		t.Fatalf("OpenLibrary() error = %v", err)
	}
	if _, err := lib.CopyCodes("bedroom", "living_room"); !errors.Is(err, ErrInvalidLibrary) {
		t.Errorf("CopyCodes(empty source) error = %v, want ErrInvalidLibrary", err)
	}
	p, _ := lib.Profile("living_room")
	if len(p.Codes) != 2 {
		t.Errorf("living_room codes changed after failed copy: %+v", p.Codes)
	}
}

func TestLibrary_Reload(t *testing.T) {
	path := writeDevicesFile(t, testLibraryYAML)
	lib, err := OpenLibrary(path)
	if err != nil {
		t.Fatalf("OpenLibrary() error = %v", err)
	}

	updated := testLibraryYAML + `
  office:
    ir_device_topic: ZS06_office
    supported_modes: [cool]
`
	if err := os.WriteFile(path, []byte(updated), 0600); err != nil {
		t.Fatalf("failed to rewrite devices file: %v", err)
	}

	added, err := lib.Reload()
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if len(added) != 1 || added[0] != "office" {
		t.Errorf("Reload() added = %v, want [office]", added)
	}

	// A broken file leaves the previous contents in place
	if err := os.WriteFile(path, []byte("devices: ["), 0600); err != nil {
		t.Fatalf("failed to rewrite devices file: %v", err)
	}
	if _, err := lib.Reload(); err == nil {
		t.Error("Reload() expected error for broken file")
	}
	if len(lib.IDs()) != 3 {
		t.Errorf("IDs() after failed reload = %v, want 3 devices", lib.IDs())
	}
}

func TestLibrary_ConcurrentRecord(t *testing.T) {
	lib, err := OpenLibrary(writeDevicesFile(t, testLibraryYAML))
	if err != nil {
		t.Fatalf("OpenLibrary() error = %v", err)
	}

	temps := []int{16, 17, 18, 19, 20, 21, 23, 24}
	var wg sync.WaitGroup
	for _, temp := range temps {
		wg.Add(1)
		go func(temp int) {
			defer wg.Done()
			if _, err := lib.Record("bedroom", on(climate.ModeCool, climate.FanAuto, temp, "code")); err != nil {
				t.Errorf("Record(%d) error = %v", temp, err)
			}
		}(temp)
	}
	wg.Wait()

	p, _ := lib.Profile("bedroom")
	if len(p.Codes) != len(temps) {
		t.Errorf("len(Codes) = %d, want %d (no lost updates)", len(p.Codes), len(temps))
	}
}
