package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bestk/zeeho-widgets/internal/telemetry/poller"
	"github.com/bestk/zeeho-widgets/pkg/log"
	pkgmqtt "github.com/bestk/zeeho-widgets/pkg/mqtt"
	"github.com/bestk/zeeho-widgets/pkg/mqtt/topic"
	"github.com/bestk/zeeho-widgets/pkg/options"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"

	publishTimeout = 5 * time.Second
)

// Source is the poller view the notifier mirrors to the broker.
type Source interface {
	Latest() *poller.Snapshot
	Refresh()
	Subscribe() (<-chan poller.Event, func())
}

// MQTTNotifier publishes every snapshot as a retained message so widgets get
// the current state as soon as they subscribe. Messages on the refresh topic
// trigger a manual poll.
type MQTTNotifier struct {
	client    pkgmqtt.Client
	topics    *topic.TopicBuilder
	vehicleID string
	source    Source
}

type errorMessage struct {
	Error string       `json:"error"`
	State poller.State `json:"state"`
	At    time.Time    `json:"at"`
}

// NewMQTTNotifier creates a notifier with its own client. The broker marks
// the vehicle offline through the will message if the process dies.
func NewMQTTNotifier(opts *options.MqttOptions, vehicleID string, src Source) (*MQTTNotifier, error) {
	topics := topic.NewTopicBuilder(opts.TopicRoot)

	cfg := opts.ToClientConfig()
	cfg.WillTopic = topics.Availability(vehicleID)
	cfg.WillPayload = []byte(availabilityOffline)
	cfg.WillQoS = 1
	cfg.WillRetain = true

	client, err := pkgmqtt.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return NewNotifier(client, opts.TopicRoot, vehicleID, src), nil
}

// NewNotifier creates a notifier on an existing client.
func NewNotifier(client pkgmqtt.Client, topicRoot, vehicleID string, src Source) *MQTTNotifier {
	return &MQTTNotifier{
		client:    client,
		topics:    topic.NewTopicBuilder(topicRoot),
		vehicleID: vehicleID,
		source:    src,
	}
}

// Start connects, mirrors poller events until ctx is done or the poller
// stops, then marks the vehicle offline and disconnects.
func (n *MQTTNotifier) Start(ctx context.Context) error {
	// The connection outlives ctx so that the offline message can be sent.
	clientCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	if err := n.client.Start(clientCtx); err != nil {
		return err
	}

	events, unsubscribe := n.source.Subscribe()
	defer unsubscribe()

	go n.announce(ctx)

	for {
		select {
		case <-ctx.Done():
			n.shutdown()
			return nil
		case ev, ok := <-events:
			if !ok {
				n.shutdown()
				return nil
			}
			n.Notify(ctx, ev)
		}
	}
}

// announce publishes availability, subscribes to refresh requests and
// replays the current snapshot once the first connection is up.
func (n *MQTTNotifier) announce(ctx context.Context) {
	if err := n.client.AwaitConnection(ctx); err != nil {
		return
	}

	n.publish(ctx, n.topics.Availability(n.vehicleID), true, []byte(availabilityOnline))

	err := n.client.Subscribe(ctx, n.topics.Refresh(n.vehicleID), 1, func(_ context.Context, t string, _ []byte) {
		log.Info("Refresh requested over MQTT", "topic", t)
		n.source.Refresh()
	})
	if err != nil {
		log.Warn("Failed to subscribe to refresh topic", "error", err)
	}

	if snap := n.source.Latest(); snap != nil {
		n.publishState(ctx, snap)
	}
}

// Notify publishes the outcome of one poll cycle. A failure leaves the
// retained state untouched and reports on the error topic; a success clears
// the retained error.
func (n *MQTTNotifier) Notify(ctx context.Context, ev poller.Event) {
	if ev.Err != nil {
		payload, err := json.Marshal(errorMessage{Error: ev.Err.Error(), State: ev.State, At: time.Now()})
		if err != nil {
			log.Warn("Failed to encode error message", "error", err)
			return
		}
		n.publish(ctx, n.topics.Error(n.vehicleID), true, payload)
		return
	}

	if ev.Snapshot != nil {
		n.publishState(ctx, ev.Snapshot)
	}
	n.publish(ctx, n.topics.Error(n.vehicleID), true, nil)
}

func (n *MQTTNotifier) publishState(ctx context.Context, snap *poller.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Warn("Failed to encode snapshot", "error", err)
		return
	}
	n.publish(ctx, n.topics.State(n.vehicleID), true, payload)
}

func (n *MQTTNotifier) publish(ctx context.Context, t string, retain bool, payload []byte) {
	if !n.client.IsConnected() {
		log.Debug("MQTT not connected, dropping message", "topic", t)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := n.client.Publish(ctx, t, 1, retain, payload); err != nil {
		log.Warn("Failed to publish", "topic", t, "error", err)
	}
}

func (n *MQTTNotifier) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	n.publish(ctx, n.topics.Availability(n.vehicleID), true, []byte(availabilityOffline))
	n.client.Disconnect(ctx)
	log.Info("MQTT notifier stopped")
}
