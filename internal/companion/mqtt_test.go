package companion

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/switchwork/pbsg-core/internal/infrastructure/mqtt"
	"github.com/switchwork/pbsg-core/internal/pbsg"
)

// fakeBroker records publishes and lets tests inject inbound messages.
type fakeBroker struct {
	mu        sync.Mutex
	published []brokerMessage
	handlers  map[string]mqtt.MessageHandler
}

type brokerMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, brokerMessage{topic, payload, qos, retained})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

func (b *fakeBroker) subscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

func (b *fakeBroker) publishCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func (b *fakeBroker) lastPublished(t *testing.T) brokerMessage {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.published) == 0 {
		t.Fatal("nothing published")
	}
	return b.published[len(b.published)-1]
}

// deliver routes a concrete topic to every handler whose filter
// matches, the way a broker would.
func (b *fakeBroker) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()
	b.mu.Lock()
	var matched []mqtt.MessageHandler
	for filter, h := range b.handlers {
		if filterMatches(filter, topic) {
			matched = append(matched, h)
		}
	}
	b.mu.Unlock()
	if len(matched) == 0 {
		t.Fatalf("no subscription matches %s", topic)
	}
	for _, h := range matched {
		if err := h(topic, payload); err != nil {
			t.Fatalf("handler for %s: %v", topic, err)
		}
	}
}

// filterMatches supports the single-level + wildcard, which is all the
// collection subscribes with.
func filterMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	if len(fp) != len(tp) {
		return false
	}
	for i := range fp {
		if fp[i] != "+" && fp[i] != tp[i] {
			return false
		}
	}
	return true
}

// newTestGroup builds a memory-only registry with one three-button
// group so set messages have something real to command.
func newTestGroup(t *testing.T, name string) (*pbsg.Registry, *pbsg.Instance) {
	t.Helper()
	reg := pbsg.NewRegistry(nil)
	t.Cleanup(reg.Close)
	in, err := reg.Create(context.Background(), name, pbsg.Settings{
		Buttons: []string{"Day", "Evening", "Night"},
		Default: "Day",
	}, "test")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return reg, in
}

func waitForActive(t *testing.T, in *pbsg.Instance, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := in.Status()
		if s.Active == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("active = %q, want %q (history=%v)", s.Active, want, s.History)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewMQTT_RequiresBroker(t *testing.T) {
	if _, err := NewMQTT(MQTTOptions{}); err == nil {
		t.Fatal("expected error without a broker")
	}
}

func TestMQTTStart_SubscribesOnce(t *testing.T) {
	b := newFakeBroker()
	coll, err := NewMQTT(MQTTOptions{Broker: b})
	if err != nil {
		t.Fatalf("NewMQTT: %v", err)
	}

	if err := coll.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := b.subscriptionCount(); got != 2 {
		t.Fatalf("subscriptions = %d, want 2 (states + sets)", got)
	}

	// A second Start must not stack duplicate subscriptions.
	if err := coll.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if got := b.subscriptionCount(); got != 2 {
		t.Errorf("subscriptions after restart = %d, want 2", got)
	}
}

func TestMQTTClose_Unsubscribes(t *testing.T) {
	b := newFakeBroker()
	coll, _ := NewMQTT(MQTTOptions{Broker: b})
	if err := coll.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := coll.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := b.subscriptionCount(); got != 0 {
		t.Errorf("subscriptions after Close = %d, want 0", got)
	}

	// Close is idempotent.
	if err := coll.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestMQTTEnsure_RequiresNames(t *testing.T) {
	b := newFakeBroker()
	coll, _ := NewMQTT(MQTTOptions{Broker: b})

	if _, err := coll.Ensure("", "Day", 1); err == nil {
		t.Error("expected error for empty group")
	}
	if _, err := coll.Ensure("lounge", "", 1); err == nil {
		t.Error("expected error for empty button")
	}
	if coll.Len() != 0 {
		t.Errorf("Len = %d, want 0 after rejected ensures", coll.Len())
	}
}

func TestMQTTTurnOn_PublishesRetainedState(t *testing.T) {
	b := newFakeBroker()
	coll, _ := NewMQTT(MQTTOptions{Broker: b, QoS: 1, Retain: true})

	sw, err := coll.Ensure("lounge", "Evening", 2)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if b.publishCount() != 0 {
		t.Fatal("Ensure alone must not publish")
	}

	if err := sw.TurnOn(); err != nil {
		t.Fatalf("TurnOn: %v", err)
	}

	msg := b.lastPublished(t)
	if msg.topic != "pbsg/switch/lounge/Evening/state" {
		t.Errorf("topic = %s", msg.topic)
	}
	if !msg.retained || msg.qos != 1 {
		t.Errorf("retained=%v qos=%d, want retained at qos 1", msg.retained, msg.qos)
	}
	var state switchState
	if err := json.Unmarshal(msg.payload, &state); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if !state.On || state.Button != "Evening" || state.Position != 2 {
		t.Errorf("payload = %+v", state)
	}
	if on, _ := sw.IsOn(); !on {
		t.Error("IsOn should track the write")
	}

	if err := sw.TurnOff(); err != nil {
		t.Fatalf("TurnOff: %v", err)
	}
	if err := json.Unmarshal(b.lastPublished(t).payload, &state); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if state.On {
		t.Error("TurnOff should publish on=false")
	}
	if on, _ := sw.IsOn(); on {
		t.Error("IsOn should track the TurnOff")
	}
}

func TestMQTTRetainedReplay_SeedsObservedState(t *testing.T) {
	b := newFakeBroker()
	coll, _ := NewMQTT(MQTTOptions{Broker: b})
	if err := coll.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The broker replays a retained state before anyone ensured the
	// switch; the next rebuild must see the observed value.
	b.deliver(t, "pbsg/switch/lounge/Night/state",
		[]byte(`{"on":true,"button":"Night","position":3}`))

	sw, err := coll.Ensure("lounge", "Night", 3)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if on, _ := sw.IsOn(); !on {
		t.Error("retained replay should seed the switch on")
	}
}

func TestMQTTStateTopic_UpdatesKnownSwitch(t *testing.T) {
	b := newFakeBroker()
	coll, _ := NewMQTT(MQTTOptions{Broker: b})
	if err := coll.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sw, _ := coll.Ensure("lounge", "Day", 1)
	b.deliver(t, "pbsg/switch/lounge/Day/state", []byte(`{"on":true}`))
	if on, _ := sw.IsOn(); !on {
		t.Fatal("state delivery should flip the switch on")
	}

	// An empty payload is a retained-message delete: darken the
	// switch, and never create one for an unknown button.
	b.deliver(t, "pbsg/switch/lounge/Day/state", nil)
	if on, _ := sw.IsOn(); on {
		t.Error("retained delete should darken the switch")
	}
	before := coll.Len()
	b.deliver(t, "pbsg/switch/lounge/Ghost/state", nil)
	if coll.Len() != before {
		t.Error("retained delete must not create switches")
	}
}

func TestMQTTStateTopic_MalformedIgnored(t *testing.T) {
	b := newFakeBroker()
	coll, _ := NewMQTT(MQTTOptions{Broker: b})
	if err := coll.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sw, _ := coll.Ensure("lounge", "Day", 1)
	b.deliver(t, "pbsg/switch/lounge/Day/state", []byte("not json"))
	if on, _ := sw.IsOn(); on {
		t.Error("malformed state must not move the switch")
	}
}

func TestMQTTSet_ActivatesOwningGroup(t *testing.T) {
	reg, in := newTestGroup(t, "lounge")
	b := newFakeBroker()
	coll, _ := NewMQTT(MQTTOptions{Broker: b, Groups: reg})
	if err := coll.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	b.deliver(t, "pbsg/switch/lounge/Evening/set", []byte(`{"on":true}`))
	waitForActive(t, in, "Evening")

	// Off deactivates; the default takes over.
	b.deliver(t, "pbsg/switch/lounge/Evening/set", []byte(`{"on":false}`))
	waitForActive(t, in, "Day")
}

func TestMQTTSet_LevelNotToggle(t *testing.T) {
	reg, in := newTestGroup(t, "lounge")
	b := newFakeBroker()
	coll, _ := NewMQTT(MQTTOptions{Broker: b, Groups: reg})
	if err := coll.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	b.deliver(t, "pbsg/switch/lounge/Evening/set", []byte(`{"on":true}`))
	waitForActive(t, in, "Evening")

	// A repeated on is idempotent, never a toggle off.
	b.deliver(t, "pbsg/switch/lounge/Evening/set", []byte(`{"on":true}`))
	time.Sleep(50 * time.Millisecond)
	if got := in.Status().Active; got != "Evening" {
		t.Errorf("active = %q after repeated on, want Evening", got)
	}

	// Off for a button that is not active resolves to a no-op.
	b.deliver(t, "pbsg/switch/lounge/Night/set", []byte(`{"on":false}`))
	time.Sleep(50 * time.Millisecond)
	if got := in.Status().Active; got != "Evening" {
		t.Errorf("active = %q after off on inactive button, want Evening", got)
	}
}

func TestMQTTSet_BareWords(t *testing.T) {
	reg, in := newTestGroup(t, "lounge")
	b := newFakeBroker()
	coll, _ := NewMQTT(MQTTOptions{Broker: b, Groups: reg})
	if err := coll.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	b.deliver(t, "pbsg/switch/lounge/Night/set", []byte("on"))
	waitForActive(t, in, "Night")

	b.deliver(t, "pbsg/switch/lounge/Night/set", []byte("OFF"))
	waitForActive(t, in, "Day")
}

func TestMQTTSet_TraceReachesJournal(t *testing.T) {
	// The sink must be wired before Create; instances only pick up
	// collaborators present at creation time.
	reg := pbsg.NewRegistry(nil)
	t.Cleanup(reg.Close)
	sink := &sinkRecorder{}
	reg.SetTransitionSink(sink)
	in, err := reg.Create(context.Background(), "lounge", pbsg.Settings{
		Buttons: []string{"Day", "Evening", "Night"},
		Default: "Day",
	}, "test")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	b := newFakeBroker()
	coll, _ := NewMQTT(MQTTOptions{Broker: b, Groups: reg})
	if err := coll.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	b.deliver(t, "pbsg/switch/lounge/Evening/set", []byte(`{"on":true,"trace":"wall-panel"}`))
	waitForActive(t, in, "Evening")

	trs := sink.waitForKind(t, "activate", 1)
	if trs[0].Trace != "wall-panel" {
		t.Errorf("trace = %q, want wall-panel", trs[0].Trace)
	}

	// Without a caller trace the intake tags the command itself.
	b.deliver(t, "pbsg/switch/lounge/Night/set", []byte(`{"on":true}`))
	trs = sink.waitForKind(t, "activate", 2)
	if got := trs[1].Trace; got != "switch" {
		t.Errorf("default trace = %q, want switch", got)
	}
}

func TestMQTTSet_MalformedIgnored(t *testing.T) {
	reg, in := newTestGroup(t, "lounge")
	b := newFakeBroker()
	coll, _ := NewMQTT(MQTTOptions{Broker: b, Groups: reg})
	if err := coll.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	b.deliver(t, "pbsg/switch/lounge/Evening/set", []byte("certainly not json"))
	time.Sleep(50 * time.Millisecond)
	if got := in.Status().Active; got != "Day" {
		t.Errorf("active = %q, want Day untouched", got)
	}
}

func TestMQTTSet_UnknownGroupIgnored(t *testing.T) {
	reg, _ := newTestGroup(t, "lounge")
	b := newFakeBroker()
	coll, _ := NewMQTT(MQTTOptions{Broker: b, Groups: reg})
	if err := coll.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Must log and drop, not panic.
	b.deliver(t, "pbsg/switch/attic/Day/set", []byte(`{"on":true}`))
}

func TestMQTTSet_NoDirectoryDrops(t *testing.T) {
	b := newFakeBroker()
	coll, _ := NewMQTT(MQTTOptions{Broker: b})
	if err := coll.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	b.deliver(t, "pbsg/switch/lounge/Day/set", []byte(`{"on":true}`))
}

// sinkRecorder captures transitions handed to the telemetry sink.
type sinkRecorder struct {
	mu          sync.Mutex
	transitions []pbsg.Transition
}

func (r *sinkRecorder) RecordTransition(tr pbsg.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, tr)
}

func (r *sinkRecorder) kind(kind string) []pbsg.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []pbsg.Transition
	for _, tr := range r.transitions {
		if tr.Kind == kind {
			out = append(out, tr)
		}
	}
	return out
}

func (r *sinkRecorder) waitForKind(t *testing.T, kind string, n int) []pbsg.Transition {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		trs := r.kind(kind)
		if len(trs) >= n {
			return trs
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d %q transitions recorded, want %d", len(trs), kind, n)
		}
		time.Sleep(time.Millisecond)
	}
}
