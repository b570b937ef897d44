package ingest

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"archaeoscan-gateway/internal/config"
	"archaeoscan-gateway/internal/metrics"
)

// MQTTSource subscribes to device telemetry topics. Paho handles reconnects; the
// connection callbacks keep Health current.
type MQTTSource struct {
	healthState

	cfg config.MQTTConfig
	sub Submitter
	log *zap.Logger
	ctx context.Context
}

func NewMQTTSource(cfg config.MQTTConfig, sub Submitter, m *metrics.Metrics, log *zap.Logger) *MQTTSource {
	s := &MQTTSource{
		cfg: cfg,
		sub: sub,
		log: log.With(zap.String("component", "ingest-mqtt"), zap.String("broker", cfg.Broker)),
		ctx: context.Background(),
	}
	s.init("mqtt", m)
	return s
}

func (s *MQTTSource) Run(ctx context.Context) error {
	s.ctx = ctx
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(DefaultReconnectInterval).
		SetOrderMatters(false)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.set(Connected)
		s.log.Info("mqtt connected")
		// Subscriptions are not kept across clean sessions, so subscribe on every connect.
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
		if token.WaitTimeout(10*time.Second) && token.Error() != nil {
			s.log.Error("mqtt subscribe failed", zap.String("topic", s.cfg.Topic), zap.Error(token.Error()))
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.set(Reconnecting)
		s.log.Warn("mqtt connection lost", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		s.set(Reconnecting)
	})

	client := mqtt.NewClient(opts)
	s.set(Reconnecting)
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			s.set(Offline)
			return fmt.Errorf("mqtt connect %s: %w", s.cfg.Broker, err)
		}
	case <-ctx.Done():
	}

	<-ctx.Done()
	client.Disconnect(250)
	s.set(Offline)
	return nil
}

func (s *MQTTSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	handlePayload(s.ctx, msg.Payload(), "mqtt", s.sub, false, s.log.With(zap.String("topic", msg.Topic())))
}
