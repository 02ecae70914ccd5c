package mqtt

import "fmt"

// Topic prefixes for the PBSG MQTT surface.
//
// Group topics carry the authoritative state published by the command
// processor; switch topics mirror the per-button companion switches so
// external dashboards and automations can observe and drive them.
const (
	// TopicPrefixRoot is the base for all PBSG topics.
	TopicPrefixRoot = "pbsg"

	// TopicPrefixCore is the base for group state and command topics.
	TopicPrefixCore = "pbsg/core"

	// TopicPrefixSwitch is the base for companion switch topics.
	TopicPrefixSwitch = "pbsg/switch"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "pbsg/system"
)

// Topics provides builders for PBSG MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.GroupAttribute("lounge-scenes", "active")
//	// Returns: "pbsg/core/lounge-scenes/active"
type Topics struct{}

// =============================================================================
// Group Topics
// =============================================================================

// GroupAttribute returns the topic for a published group attribute.
// Attribute values are retained so late subscribers see current state.
//
// Example: pbsg/core/lounge-scenes/state
func (Topics) GroupAttribute(group, attribute string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixCore, group, attribute)
}

// GroupCommand returns the command intake topic for a group.
// Payloads are JSON command envelopes (activate, deactivate, push).
//
// Example: pbsg/core/lounge-scenes/command
func (Topics) GroupCommand(group string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixCore, group)
}

// =============================================================================
// Switch Topics
// =============================================================================

// SwitchState returns the state topic for one companion switch.
// Retained, so dashboards see the current on/off position immediately.
//
// Example: pbsg/switch/lounge-scenes/Evening/state
func (Topics) SwitchState(group, button string) string {
	return fmt.Sprintf("%s/%s/%s/state", TopicPrefixSwitch, group, button)
}

// SwitchSet returns the write topic for one companion switch.
// External publishers turn buttons on or off here.
//
// Example: pbsg/switch/lounge-scenes/Evening/set
func (Topics) SwitchSet(group, button string) string {
	return fmt.Sprintf("%s/%s/%s/set", TopicPrefixSwitch, group, button)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the service status topic.
// Used for the online birth message and the LWT offline message.
//
// Example: pbsg/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllGroupCommands returns a pattern matching every group's command intake.
//
// Pattern: pbsg/core/+/command
func (Topics) AllGroupCommands() string {
	return fmt.Sprintf("%s/+/command", TopicPrefixCore)
}

// AllGroupAttributes returns a pattern matching every group attribute.
//
// Pattern: pbsg/core/+/+
func (Topics) AllGroupAttributes() string {
	return fmt.Sprintf("%s/+/+", TopicPrefixCore)
}

// AllSwitchStates returns a pattern matching every companion switch state.
//
// Pattern: pbsg/switch/+/+/state
func (Topics) AllSwitchStates() string {
	return fmt.Sprintf("%s/+/+/state", TopicPrefixSwitch)
}

// AllSwitchSets returns a pattern matching every companion switch write.
//
// Pattern: pbsg/switch/+/+/set
func (Topics) AllSwitchSets() string {
	return fmt.Sprintf("%s/+/+/set", TopicPrefixSwitch)
}

// GroupSwitchSets returns a pattern matching switch writes for one group.
//
// Pattern: pbsg/switch/lounge-scenes/+/set
func (Topics) GroupSwitchSets(group string) string {
	return fmt.Sprintf("%s/%s/+/set", TopicPrefixSwitch, group)
}

// AllTopics returns a pattern matching all PBSG topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: pbsg/#
func (Topics) AllTopics() string {
	return "pbsg/#"
}
