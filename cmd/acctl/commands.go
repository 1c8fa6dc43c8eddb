package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-acbridge/internal/auth"
	"github.com/nerrad567/gray-logic-acbridge/internal/bridge"
	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-acbridge/internal/ircode"
	"github.com/nerrad567/gray-logic-acbridge/internal/learn"
)

// defaultReloadWait bounds how long reload waits for the bridge's answer.
const defaultReloadWait = 10 * time.Second

// parseFlags parses args into fs, turning parse failures into errUsage.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

func newFlagSet(env *cliEnv, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.out.err)
	return fs
}

func openLibrary(env *cliEnv) (*ircode.Library, error) {
	cfg, err := env.config()
	if err != nil {
		return nil, err
	}
	lib, err := ircode.OpenLibrary(cfg.Bridge.DevicesFile)
	if err != nil {
		return nil, fmt.Errorf("loading device library: %w", err)
	}
	return lib, nil
}

// connectMQTT opens a short-lived client that never touches the bridge
// status topic and cannot collide with the bridge's client ID.
func connectMQTT(cfg *config.Config) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT,
		mqtt.WithoutStatus(),
		mqtt.WithClientIDSuffix(fmt.Sprintf("-acctl-%d", os.Getpid())),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	return client, nil
}

func cmdList(_ context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet(env, "list")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	lib, err := openLibrary(env)
	if err != nil {
		return err
	}

	profiles := lib.Profiles()
	if len(profiles) == 0 {
		env.out.Warn("No devices found in %s", lib.Path())
		return nil
	}

	env.out.Header("Devices in %s", lib.Path())
	for _, p := range profiles {
		name := p.FriendlyName
		if name == "" {
			name = p.ID
		}
		env.out.Info("%s (%s)", name, p.ID)
		env.out.Detail("blaster: %s", p.IRDeviceTopic)
		env.out.Detail("modes:   %s", climate.JoinModes(p.SupportedModes))
		env.out.Detail("codes:   %d", len(p.Codes))
	}
	return nil
}

func cmdLearn(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet(env, "learn")
	deviceID := fs.String("device", "", "device ID (required)")
	off := fs.Bool("off", false, "learn the power-off code")
	mode := fs.String("mode", "", "target mode: auto, cool, heat, dry, fan_only")
	fan := fs.String("fan", string(climate.FanAuto), "target fan speed")
	temp := fs.Int("temp", 0, "target temperature in °C (optional for fan_only)")
	timeout := fs.Duration("timeout", 0, "how long to wait for the remote (default learn.timeout_seconds)")
	noReload := fs.Bool("no-reload", false, "do not ask the bridge to reload afterwards")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *deviceID == "" {
		env.out.Fail("-device is required")
		fs.Usage()
		return errUsage
	}
	target, err := parseTarget(*off, *mode, *fan, *temp)
	if err != nil {
		env.out.Fail("%v", err)
		return errUsage
	}

	cfg, err := env.config()
	if err != nil {
		return err
	}
	lib, err := openLibrary(env)
	if err != nil {
		return err
	}
	if *timeout <= 0 {
		*timeout = cfg.GetLearnTimeout()
	}

	client, err := connectMQTT(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	learner := learn.New(mqttAdapter{client: client}, client.QoS(), *timeout)

	env.out.Header("Recording %s for %s", describeTarget(target), *deviceID)
	env.out.Info("Point the remote at the blaster and press the button (waiting %s)", *timeout)

	res, err := learn.Capture(ctx, learner, lib, *deviceID, target)
	if err != nil {
		if errors.Is(err, learn.ErrTimeout) {
			return fmt.Errorf("no IR code received within %s", *timeout)
		}
		return err
	}

	if res.Replaced {
		env.out.Success("Replaced existing code for %s", describeTarget(res.Code))
	} else {
		env.out.Success("Recorded new code for %s", describeTarget(res.Code))
	}
	env.out.Detail("code: %s", abbreviate(res.Code.Code, 48))

	if *noReload {
		return nil
	}
	return requestReload(ctx, env, client, defaultReloadWait)
}

// parseTarget builds the state a learned code will be recorded for.
func parseTarget(off bool, mode, fan string, temp int) (ircode.RecordedCode, error) {
	if off {
		return ircode.RecordedCode{Power: false}, nil
	}
	if mode == "" {
		return ircode.RecordedCode{}, errors.New("either -off or -mode is required")
	}

	m, err := climate.ParseOperatingMode(mode)
	if err != nil {
		return ircode.RecordedCode{}, fmt.Errorf("invalid -mode: %w", err)
	}
	f, err := climate.ParseFanSpeed(fan)
	if err != nil {
		return ircode.RecordedCode{}, fmt.Errorf("invalid -fan: %w", err)
	}

	if temp == 0 {
		if m != climate.ModeFanOnly {
			return ircode.RecordedCode{}, fmt.Errorf("-temp is required for %s mode", m)
		}
		temp = ircode.FanOnlyDefaultTemperature
	}
	if !climate.ValidTemperature(temp) {
		return ircode.RecordedCode{}, fmt.Errorf("-temp must be between %d and %d",
			climate.MinTemperature, climate.MaxTemperature)
	}

	return ircode.RecordedCode{Power: true, Mode: m, FanSpeed: f, Temperature: temp}, nil
}

func describeTarget(c ircode.RecordedCode) string {
	if !c.Power {
		return "power off"
	}
	return fmt.Sprintf("%s %d°C fan %s", c.Mode, c.Temperature, c.FanSpeed)
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func cmdCopy(_ context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet(env, "copy")
	from := fs.String("from", "", "source device ID (required)")
	to := fs.String("to", "", "target device ID (required)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *from == "" || *to == "" {
		env.out.Fail("-from and -to are required")
		fs.Usage()
		return errUsage
	}
	if *from == *to {
		env.out.Fail("-from and -to must differ")
		return errUsage
	}

	lib, err := openLibrary(env)
	if err != nil {
		return err
	}
	n, err := lib.CopyCodes(*from, *to)
	if err != nil {
		return err
	}
	env.out.Success("Copied %d IR codes from %s to %s", n, *from, *to)
	env.out.Detail("run 'acctl reload' to apply them to the running bridge")
	return nil
}

func cmdReload(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet(env, "reload")
	wait := fs.Duration("wait", defaultReloadWait, "how long to wait for the bridge to answer (0 = do not wait)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := env.config()
	if err != nil {
		return err
	}
	client, err := connectMQTT(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return requestReload(ctx, env, client, *wait)
}

// requestReload publishes a reload request and, when wait is positive,
// prints the bridge's status reply.
func requestReload(ctx context.Context, env *cliEnv, client *mqtt.Client, wait time.Duration) error {
	topics := mqtt.Topics{}
	replies := make(chan bridge.ReloadStatus, 1)

	if wait > 0 {
		statusTopic := topics.ConfigReloadStatus()
		err := client.Subscribe(statusTopic, 1, func(_ string, payload []byte) error {
			var st bridge.ReloadStatus
			if err := json.Unmarshal(payload, &st); err != nil {
				return fmt.Errorf("decoding reload status: %w", err)
			}
			select {
			case replies <- st:
			default:
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("subscribing to reload status: %w", err)
		}
		defer func() { _ = client.Unsubscribe(statusTopic) }()
	}

	if err := client.PublishContext(ctx, topics.ConfigReload(), []byte("{}"), client.QoS(), false); err != nil {
		return fmt.Errorf("requesting reload: %w", err)
	}
	env.out.Info("Reload requested")

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case st := <-replies:
		if st.Status != bridge.ReloadSuccess {
			return errors.New(st.Message)
		}
		env.out.Success("%s", st.Message)
		return nil
	case <-timer.C:
		env.out.Warn("No answer from the bridge within %s; is it running?", wait)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cmdToken(_ context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet(env, "token")
	subject := fs.String("sub", "", "token subject, e.g. a user or integration name (required)")
	role := fs.String("role", string(auth.RoleOperator), "operator or viewer")
	ttl := fs.Int("ttl", 0, "lifetime in minutes (default security.jwt.access_token_ttl)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *subject == "" {
		env.out.Fail("-sub is required")
		fs.Usage()
		return errUsage
	}
	r, err := auth.ParseRole(*role)
	if err != nil {
		env.out.Fail("invalid -role %q: must be one of %s", *role, joinRoles())
		return errUsage
	}

	cfg, err := env.config()
	if err != nil {
		return err
	}
	minutes := *ttl
	if minutes <= 0 {
		minutes = cfg.Security.JWT.AccessTokenTTL
	}

	token, err := auth.GenerateToken(*subject, r, cfg.Security.JWT.Secret, time.Duration(minutes)*time.Minute)
	if err != nil {
		if errors.Is(err, auth.ErrWeakSecret) {
			return fmt.Errorf("security.jwt.secret must be at least %d characters (set ACBRIDGE_JWT_SECRET)", auth.MinSecretLength)
		}
		return err
	}
	env.out.Plain(token)
	return nil
}

func joinRoles() string {
	roles := make([]string, 0, len(auth.ValidRoles))
	for _, r := range auth.ValidRoles {
		roles = append(roles, string(r))
	}
	return strings.Join(roles, ", ")
}

func cmdHashKey(_ context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet(env, "hash-key")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		env.out.Fail("usage: acctl hash-key KEY")
		return errUsage
	}

	hash, err := auth.HashAPIKey(fs.Arg(0))
	if err != nil {
		return err
	}
	env.out.Plain(hash)
	return nil
}

// mqttAdapter adapts *mqtt.Client to learn.MQTTClient.
type mqttAdapter struct {
	client *mqtt.Client
}

func (a mqttAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a mqttAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

func (a mqttAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}
