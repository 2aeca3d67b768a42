package ingest

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // e.g. "facility/+/sensor/+/reading"
	QoS      byte
}

// MQTTSource subscribes the consumer to the sensor reading topic.
type MQTTSource struct {
	client mqtt.Client
	opts   MQTTOptions
	logger *zap.Logger
}

// StartMQTT connects to the broker and routes every message on the
// configured topic into consumer.HandleMessage. Handler errors are
// logged, not fatal: a malformed reading must not stop ingestion.
func StartMQTT(opts MQTTOptions, consumer *Consumer, logger *zap.Logger) (*MQTTSource, error) {
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.Broker)
	clientOpts.SetClientID(opts.ClientID)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetCleanSession(true)

	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", opts.Broker, token.Error())
	}

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		if err := consumer.HandleMessage(msg.Topic(), msg.Payload()); err != nil {
			logger.Warn("sensor message dropped",
				zap.String("topic", msg.Topic()),
				zap.Error(err),
			)
		}
	}
	if token := client.Subscribe(opts.Topic, opts.QoS, handler); token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("subscribe %s: %w", opts.Topic, token.Error())
	}

	logger.Info("mqtt ingest started",
		zap.String("broker", opts.Broker),
		zap.String("topic", opts.Topic),
	)
	return &MQTTSource{client: client, opts: opts, logger: logger}, nil
}

// Stop unsubscribes and disconnects.
func (s *MQTTSource) Stop() {
	if token := s.client.Unsubscribe(s.opts.Topic); token.Wait() && token.Error() != nil {
		s.logger.Warn("mqtt unsubscribe", zap.Error(token.Error()))
	}
	s.client.Disconnect(250)
}
