package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/command"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	// commandTimeout bounds one MQTT-triggered command end to end.
	commandTimeout = 15 * time.Second

	// subscribeQoS is used for all bridge subscriptions.
	subscribeQoS = 1
)

// Reload status values published on accontroller/config/reload/status.
const (
	ReloadSuccess = "success"
	ReloadError   = "error"
)

// Options holds everything needed to build a Bridge.
type Options struct {
	// Version is reported in discovery payloads.
	Version string

	// QoS for state, availability and discovery publishes.
	QoS byte

	// DiscoveryEnabled turns Home Assistant discovery on.
	DiscoveryEnabled bool

	// DiscoveryPrefix is the HA discovery prefix. Default "homeassistant".
	DiscoveryPrefix string

	// Intervals for the announcer jobs.
	Intervals Intervals

	MQTT       MQTTClient
	Library    Library
	States     StateStore
	Dispatcher Dispatcher
	Publisher  *StatePublisher
	Errors     *ErrorStatus

	// Logger is optional.
	Logger Logger
}

// ReloadResult summarises a device library reload.
type ReloadResult struct {
	Devices int      `json:"devices"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// ReloadStatus is the JSON body of accontroller/config/reload/status.
type ReloadStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Bridge wires MQTT command topics to the dispatcher and keeps Home
// Assistant informed about every device.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	opts      Options
	topics    mqtt.Topics
	discovery *Discovery
	announcer *Announcer

	// Device IDs with live command subscriptions.
	subscribed map[string]bool
	subMu      sync.Mutex

	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once

	logger Logger
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	switch {
	case opts.MQTT == nil:
		return nil, fmt.Errorf("MQTT client is required")
	case opts.Library == nil:
		return nil, fmt.Errorf("library is required")
	case opts.States == nil:
		return nil, fmt.Errorf("state store is required")
	case opts.Dispatcher == nil:
		return nil, fmt.Errorf("dispatcher is required")
	}
	if opts.Publisher == nil {
		opts.Publisher = NewStatePublisher(opts.MQTT, opts.QoS)
	}
	if opts.Errors == nil {
		opts.Errors = NewErrorStatus(opts.MQTT, opts.QoS)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		opts:       opts,
		discovery:  NewDiscovery(opts.MQTT, opts.QoS, opts.DiscoveryPrefix, opts.Version),
		subscribed: make(map[string]bool),
		ctx:        ctx,
		ctxCancel:  cancel,
		logger:     logger,
	}
	b.announcer = NewAnnouncer(b, opts.Intervals)
	return b, nil
}

// Start seeds default states for new devices, subscribes to command and
// reload topics, and starts the announcer.
func (b *Bridge) Start(ctx context.Context) error {
	ids := b.opts.Library.IDs()
	b.seedStates(ctx, ids)

	if err := b.opts.MQTT.Subscribe(b.topics.ConfigReload(), subscribeQoS, b.handleReload); err != nil {
		return fmt.Errorf("subscribe to config reload: %w", err)
	}

	available, err := b.AvailableDevices(ctx)
	if err != nil {
		return err
	}
	for _, id := range available {
		if err := b.subscribeDevice(id); err != nil {
			return err
		}
	}

	b.announcer.Start(b.ctx)

	b.logger.Info("bridge started", "devices", len(available))
	return nil
}

// Stop stops the announcer (publishing offline availability), cancels
// in-flight commands and waits for handlers to return.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.announcer.Stop()
		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
}

// AvailableDevices returns IDs that have both a library entry and a state
// record, in ascending order.
func (b *Bridge) AvailableDevices(ctx context.Context) ([]string, error) {
	states, err := b.opts.States.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing states: %w", err)
	}
	var ids []string
	for _, id := range b.opts.Library.IDs() {
		if _, ok := states[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Reload re-reads the device library, seeds states for added devices,
// adjusts command subscriptions and republishes discovery and state.
// Devices no longer in the library get their discovery removed and are
// marked offline.
func (b *Bridge) Reload(ctx context.Context) (ReloadResult, error) {
	added, err := b.opts.Library.Reload()
	if err != nil {
		return ReloadResult{}, fmt.Errorf("reloading library: %w", err)
	}
	b.seedStates(ctx, added)

	available, err := b.AvailableDevices(ctx)
	if err != nil {
		return ReloadResult{}, err
	}

	var removed []string
	b.subMu.Lock()
	for id := range b.subscribed {
		if !slices.Contains(available, id) {
			removed = append(removed, id)
		}
	}
	b.subMu.Unlock()
	sort.Strings(removed)

	for _, id := range removed {
		b.unsubscribeDevice(id)
		if err := b.opts.Publisher.PublishAvailability(id, false); err != nil {
			b.logger.Warn("publishing offline availability failed", "device_id", id, "error", err)
		}
		if b.opts.DiscoveryEnabled {
			if err := b.discovery.Remove(id); err != nil {
				b.logger.Warn("removing discovery failed", "device_id", id, "error", err)
			}
		}
	}

	var subErrs []error
	for _, id := range available {
		if err := b.subscribeDevice(id); err != nil {
			subErrs = append(subErrs, err)
		}
	}

	b.announceDiscovery(ctx)
	b.announceAvailability(ctx, true)
	b.announceStates(ctx)

	res := ReloadResult{Devices: len(available), Added: added, Removed: removed}
	b.logger.Info("device library reloaded",
		"devices", res.Devices,
		"added", strings.Join(added, ","),
		"removed", strings.Join(removed, ","))
	return res, errors.Join(subErrs...)
}

// handleCommand routes accontroller/{id}/{attribute}/set to the dispatcher.
func (b *Bridge) handleCommand(topic string, payload []byte) {
	b.wg.Add(1)
	defer b.wg.Done()

	deviceID, attribute, ok := b.topics.ParseCommandTopic(topic)
	if !ok {
		b.logger.Warn("ignoring message on unexpected topic", "topic", topic)
		return
	}
	kind, ok := commandKind(attribute)
	if !ok {
		b.logger.Warn("ignoring unknown command attribute", "topic", topic, "attribute", attribute)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	b.logger.Debug("received command", "device_id", deviceID, "kind", kind, "value", string(payload))
	// Failures are logged and published on the error topic by the pipeline.
	_, _ = b.opts.Dispatcher.Dispatch(ctx, deviceID, kind, string(payload))
}

// handleReload processes accontroller/config/reload and reports the result.
func (b *Bridge) handleReload(_ string, _ []byte) {
	b.wg.Add(1)
	defer b.wg.Done()

	b.logger.Info("configuration reload requested via MQTT")

	status := ReloadStatus{Status: ReloadSuccess, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	res, err := b.Reload(b.ctx)
	if err != nil {
		b.logger.Error("configuration reload failed", "error", err)
		status.Status = ReloadError
		status.Message = fmt.Sprintf("Error reloading configuration: %v", err)
	} else {
		status.Message = fmt.Sprintf("Configuration reloaded successfully (%d devices)", res.Devices)
	}

	payload, err := json.Marshal(status)
	if err != nil {
		b.logger.Error("encoding reload status failed", "error", err)
		return
	}
	if err := b.opts.MQTT.Publish(b.topics.ConfigReloadStatus(), payload, b.opts.QoS, false); err != nil {
		b.logger.Warn("publishing reload status failed", "error", err)
	}
}

// commandKind maps a topic attribute to a dispatcher kind.
func commandKind(attribute string) (string, bool) {
	switch attribute {
	case mqtt.AttrMode:
		return command.KindMode, true
	case mqtt.AttrTemperature:
		return command.KindTemperature, true
	case mqtt.AttrFanMode:
		return command.KindFanMode, true
	default:
		return "", false
	}
}

func (b *Bridge) subscribeDevice(deviceID string) error {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	if b.subscribed[deviceID] {
		return nil
	}
	for _, topic := range b.commandTopics(deviceID) {
		if err := b.opts.MQTT.Subscribe(topic, subscribeQoS, b.handleCommand); err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
	}
	b.subscribed[deviceID] = true
	b.logger.Debug("subscribed to device commands", "device_id", deviceID)
	return nil
}

func (b *Bridge) unsubscribeDevice(deviceID string) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	for _, topic := range b.commandTopics(deviceID) {
		if err := b.opts.MQTT.Unsubscribe(topic); err != nil {
			b.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
		}
	}
	delete(b.subscribed, deviceID)
}

func (b *Bridge) commandTopics(deviceID string) []string {
	return []string{
		b.topics.ModeSet(deviceID),
		b.topics.TemperatureSet(deviceID),
		b.topics.FanModeSet(deviceID),
	}
}

// seedStates gives each device without a state record the default state.
func (b *Bridge) seedStates(ctx context.Context, ids []string) {
	for _, id := range ids {
		inserted, err := b.opts.States.Seed(ctx, id, climate.DefaultState(time.Now()))
		if err != nil {
			b.logger.Error("seeding default state failed", "device_id", id, "error", err)
			continue
		}
		if inserted {
			b.logger.Info("seeded default state", "device_id", id)
		}
	}
}

func (b *Bridge) announceAvailability(ctx context.Context, online bool) {
	var ids []string
	if online {
		var err error
		if ids, err = b.AvailableDevices(ctx); err != nil {
			b.logger.Warn("listing available devices failed", "error", err)
			return
		}
	} else {
		ids = b.opts.Library.IDs()
	}

	for _, id := range ids {
		if err := b.opts.Publisher.PublishAvailability(id, online); err != nil {
			b.logger.Warn("publishing availability failed", "device_id", id, "error", err)
		}
	}
}

func (b *Bridge) announceStates(ctx context.Context) {
	states, err := b.opts.States.List(ctx)
	if err != nil {
		b.logger.Warn("listing states failed", "error", err)
		return
	}
	for id := range states {
		if _, ok := b.opts.Library.Profile(id); !ok {
			delete(states, id)
		}
	}
	if err := b.opts.Publisher.PublishAll(ctx, states); err != nil {
		b.logger.Warn("publishing states failed", "error", err)
	}
}

func (b *Bridge) announceDiscovery(ctx context.Context) {
	if !b.opts.DiscoveryEnabled {
		return
	}
	ids, err := b.AvailableDevices(ctx)
	if err != nil {
		b.logger.Warn("listing available devices failed", "error", err)
		return
	}
	for _, id := range ids {
		p, ok := b.opts.Library.Profile(id)
		if !ok {
			continue
		}
		if err := b.discovery.Publish(p); err != nil {
			b.logger.Warn("publishing discovery failed", "device_id", id, "error", err)
			continue
		}
		b.opts.Errors.Publish(id)
	}
}
