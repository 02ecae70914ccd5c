package companion

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/switchwork/pbsg-core/internal/infrastructure/mqtt"
	"github.com/switchwork/pbsg-core/internal/pbsg"
)

// Broker is the slice of the MQTT client the collection needs.
// Declared here so tests can substitute a fake; *mqtt.Client
// satisfies it.
type Broker interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error
}

// GroupDirectory resolves a group name to its running instance so
// external set messages can become commands. *pbsg.Registry
// satisfies it.
type GroupDirectory interface {
	Get(name string) (*pbsg.Instance, error)
}

// MQTTOptions configures an MQTT-backed switch collection.
type MQTTOptions struct {
	// Broker carries publishes and subscriptions. Required.
	Broker Broker

	// Groups resolves set messages to running groups. Optional; when
	// nil external writes are dropped and switches are outbound-only.
	Groups GroupDirectory

	// QoS applies to every publish and subscription.
	QoS byte

	// Retain controls whether state publishes are retained. Retained
	// states survive restarts and are what rebuild adoption reads.
	Retain bool

	// Logger is optional.
	Logger Logger
}

// MQTTSwitches projects companion switches onto broker topics. Each
// switch owns one state topic; external writes arrive on the matching
// set topic and become activate or deactivate commands on the owning
// group.
type MQTTSwitches struct {
	broker Broker
	groups GroupDirectory
	qos    byte
	retain bool
	logger Logger
	topics mqtt.Topics

	mu       sync.Mutex
	switches map[string]*MQTTSwitch
	started  bool
}

// NewMQTT creates an MQTT-backed switch collection.
// Call Start to begin observing broker traffic.
func NewMQTT(opts MQTTOptions) (*MQTTSwitches, error) {
	if opts.Broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &MQTTSwitches{
		broker:   opts.Broker,
		groups:   opts.Groups,
		qos:      opts.QoS,
		retain:   opts.Retain,
		logger:   logger,
		switches: make(map[string]*MQTTSwitch),
	}, nil
}

// Start subscribes to the switch state and set topics. The broker
// replays retained state messages on subscribe, which seeds the
// observed positions before the first rebuild asks for them.
func (s *MQTTSwitches) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if err := s.broker.Subscribe(s.topics.AllSwitchStates(), s.qos, s.handleState); err != nil {
		return fmt.Errorf("subscribe to switch states: %w", err)
	}
	if err := s.broker.Subscribe(s.topics.AllSwitchSets(), s.qos, s.handleSet); err != nil {
		return fmt.Errorf("subscribe to switch sets: %w", err)
	}
	s.logger.Info("companion switches online",
		"states", s.topics.AllSwitchStates(),
		"sets", s.topics.AllSwitchSets(),
	)
	return nil
}

// Close drops the broker subscriptions. Observed state stays cached so
// reads keep answering during shutdown.
func (s *MQTTSwitches) Close() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	var firstErr error
	for _, topic := range []string{s.topics.AllSwitchStates(), s.topics.AllSwitchSets()} {
		if err := s.broker.Unsubscribe(topic); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Ensure returns the switch mirroring a button, creating it dark on
// first sight. Creation is purely local; nothing reaches the broker
// until the switch is first driven.
func (s *MQTTSwitches) Ensure(group, button string, position int) (Switch, error) {
	if group == "" || button == "" {
		return nil, fmt.Errorf("group and button are required")
	}
	return s.ensure(group, button, position), nil
}

// Len reports how many switches are being mirrored.
func (s *MQTTSwitches) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.switches)
}

func (s *MQTTSwitches) ensure(group, button string, position int) *MQTTSwitch {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := group + "/" + button
	sw, ok := s.switches[key]
	if !ok {
		sw = &MQTTSwitch{owner: s, group: group, button: button}
		s.switches[key] = sw
	}
	if position > 0 {
		sw.setPosition(position)
	}
	return sw
}

func (s *MQTTSwitches) get(group, button string) (*MQTTSwitch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sw, ok := s.switches[group+"/"+button]
	return sw, ok
}

// switchState is the JSON payload on a switch state topic.
type switchState struct {
	On       bool   `json:"on"`
	Button   string `json:"button,omitempty"`
	Position int    `json:"position,omitempty"`
}

// handleState folds a state topic message into the observed cache.
// Retained replays, our own publishes, and third-party writes all land
// here; the last observation wins.
func (s *MQTTSwitches) handleState(topic string, payload []byte) error {
	group, button, ok := splitSwitchTopic(topic)
	if !ok {
		s.logger.Warn("ignoring state on malformed topic", "topic", topic)
		return nil
	}

	// An empty payload is a retained-message delete. Darken the switch
	// if we know it; never create one for a deletion.
	if len(payload) == 0 {
		if sw, known := s.get(group, button); known {
			sw.observe(false)
		}
		return nil
	}

	var msg switchState
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("ignoring malformed switch state", "topic", topic, "error", err)
		return nil
	}
	s.ensure(group, button, msg.Position).observe(msg.On)
	return nil
}

// switchSet is the JSON payload accepted on a switch set topic.
type switchSet struct {
	On    *bool  `json:"on"`
	Trace string `json:"trace,omitempty"`
}

// handleSet turns an external set message into a command on the owning
// group. On activates the button, off deactivates it; a set is a level
// write, never a toggle, so repeating one is harmless.
func (s *MQTTSwitches) handleSet(topic string, payload []byte) error {
	group, button, ok := splitSwitchTopic(topic)
	if !ok {
		s.logger.Warn("ignoring set on malformed topic", "topic", topic)
		return nil
	}
	if s.groups == nil {
		s.logger.Debug("dropping switch set, no group directory wired", "topic", topic)
		return nil
	}

	on, trace, err := parseSet(payload)
	if err != nil {
		s.logger.Warn("ignoring malformed switch set", "topic", topic, "error", err)
		return nil
	}

	in, err := s.groups.Get(group)
	if err != nil {
		s.logger.Warn("switch set for unknown group", "group", group, "button", button)
		return nil
	}

	if trace == "" {
		trace = "switch"
	}
	if on {
		err = in.Activate(button, trace)
	} else {
		err = in.Deactivate(button, trace)
	}
	if err != nil {
		s.logger.Warn("switch set rejected",
			"group", group, "button", button, "on", on, "error", err)
	}
	return nil
}

// parseSet accepts {"on":bool,...} JSON or the bare words on/off,
// which hand-typed broker publishes tend to use.
func parseSet(payload []byte) (on bool, trace string, err error) {
	var msg switchSet
	if jsonErr := json.Unmarshal(payload, &msg); jsonErr == nil && msg.On != nil {
		return *msg.On, msg.Trace, nil
	}
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "on", "true", "1":
		return true, "", nil
	case "off", "false", "0":
		return false, "", nil
	}
	return false, "", fmt.Errorf("payload is neither {\"on\":bool} nor on/off")
}

// splitSwitchTopic extracts group and button from
// pbsg/switch/<group>/<button>/<leaf>.
func splitSwitchTopic(topic string) (group, button string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 {
		return "", "", false
	}
	return parts[2], parts[3], true
}

// MQTTSwitch mirrors one button onto a broker state topic.
type MQTTSwitch struct {
	owner  *MQTTSwitches
	group  string
	button string

	mu       sync.Mutex
	on       bool
	position int
}

// IsOn reports the last observed position: seeded by the retained
// replay on startup, then tracked through every publish and external
// write.
func (s *MQTTSwitch) IsOn() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on, nil
}

// TurnOn drives the switch on and announces it on the state topic.
func (s *MQTTSwitch) TurnOn() error { return s.write(true) }

// TurnOff drives the switch off and announces it on the state topic.
func (s *MQTTSwitch) TurnOff() error { return s.write(false) }

func (s *MQTTSwitch) write(on bool) error {
	s.mu.Lock()
	s.on = on
	state := switchState{On: on, Button: s.button, Position: s.position}
	s.mu.Unlock()

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal switch state: %w", err)
	}
	topic := s.owner.topics.SwitchState(s.group, s.button)
	if err := s.owner.broker.Publish(topic, payload, s.owner.qos, s.owner.retain); err != nil {
		return fmt.Errorf("publish switch state: %w", err)
	}
	return nil
}

func (s *MQTTSwitch) observe(on bool) {
	s.mu.Lock()
	s.on = on
	s.mu.Unlock()
}

func (s *MQTTSwitch) setPosition(p int) {
	s.mu.Lock()
	s.position = p
	s.mu.Unlock()
}
