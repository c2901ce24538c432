package mqtt_test

import (
	"context"
	"time"

	"github.com/bestk/zeeho-widgets/pkg/log"
	"github.com/bestk/zeeho-widgets/pkg/mqtt"
	"github.com/bestk/zeeho-widgets/pkg/mqtt/topic"
)

// ExampleClient publishes a retained snapshot and listens for refresh requests.
func ExampleClient() {
	topics := topic.NewTopicBuilder("zeeho/v1")
	vehicleID := "358122500002456"

	client, err := mqtt.NewClient(&mqtt.ClientConfig{
		BrokerURL:      "tcp://localhost:1883",
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
		WillTopic:      topics.Availability(vehicleID),
		WillPayload:    []byte("offline"),
		WillRetain:     true,
	})
	if err != nil {
		log.Error(err, "Failed to create MQTT client")
		return
	}

	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		log.Error(err, "Failed to start MQTT client")
		return
	}
	defer client.Disconnect(ctx)

	_ = client.Subscribe(ctx, topics.Refresh(vehicleID), 1, func(ctx context.Context, topic string, payload []byte) {
		log.Info("Refresh requested", "topic", topic)
	})

	if err := client.AwaitConnection(ctx); err != nil {
		return
	}

	_ = client.Publish(ctx, topics.State(vehicleID), 1, true, []byte(`{"data":{"bmssoc":"87"}}`))
}
