// Package telemetry publishes matcher and fixture server events to an MQTT
// broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/smorey2/yojimbo/internal/config"
	"github.com/smorey2/yojimbo/internal/events"
	"github.com/smorey2/yojimbo/internal/util"
)

// Topic suffixes appended to the configured base topic.
const (
	TopicSuffixTrust   = "/trust"
	TopicSuffixChannel = "/channel"
	TopicSuffixServed  = "/served"
	TopicSuffixAdmin   = "/admin"
)

// subscriptions maps each forwarded event to its topic suffix.
var subscriptions = []struct {
	event  events.EventType
	name   string
	suffix string
}{
	{events.EventMatchRequested, "mqtt.matchRequested", ""},
	{events.EventMatchReady, "mqtt.matchReady", ""},
	{events.EventMatchFailed, "mqtt.matchFailed", ""},
	{events.EventSecureChannelUp, "mqtt.secureChannelUp", TopicSuffixChannel},
	{events.EventTrustWarning, "mqtt.trustWarning", TopicSuffixTrust},
	{events.EventMatchServed, "mqtt.matchServed", TopicSuffixServed},
}

// publisher is the subset of mqtt.Client used for publishing.
type publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTHandler forwards events from the EventBus to MQTT topics under the
// configured base topic.
type MQTTHandler struct {
	mu sync.Mutex

	mqttCfg  config.MQTTConfig
	eventBus *events.EventBus
	client   mqtt.Client
	pub      publisher
	logger   zerolog.Logger

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a new MQTT telemetry handler.
func NewMQTTHandler(cfg *config.Config, eventBus *events.EventBus) (*MQTTHandler, error) {
	mqttCfg := cfg.GetApplicationData().MQTT

	if !mqttCfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()
	handler := &MQTTHandler{
		mqttCfg:  mqttCfg,
		eventBus: eventBus,
		logger:   util.ComponentLogger("telemetry"),
		metadata: metadataFrom(sysInfo),
	}

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if mqttCfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, mqttCfg.BrokerURL, mqttCfg.Port))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(mqttCfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("yojimbo-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)

	if mqttCfg.UseTLS {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if mqttCfg.CAFile != "" {
			pemData, err := os.ReadFile(mqttCfg.CAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pemData) {
				return nil, fmt.Errorf("no certificates in MQTT CA file %s", mqttCfg.CAFile)
			}
			tlsConfig.RootCAs = pool
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		handler.logger.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		handler.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)
	handler.pub = handler.client
	return handler, nil
}

func metadataFrom(info util.SystemInfo) map[string]interface{} {
	return map[string]interface{}{
		"hostname":  info.Hostname,
		"os":        info.OS,
		"arch":      info.Architecture,
		"cpu_model": info.CPUModel,
		"cpu_cores": info.CPUCores,
		"memory_mb": info.TotalMemory,
	}
}

// Connect connects to the broker and subscribes to matcher events.
func (h *MQTTHandler) Connect() error {
	h.logger.Info().
		Str("broker", h.mqttCfg.BrokerURL).
		Int("port", h.mqttCfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()
	return nil
}

// Close publishes a shutdown notice and disconnects.
func (h *MQTTHandler) Close() {
	h.unsubscribeEvents()
	h.PublishShutdown()
	h.client.Disconnect(2000)
	h.logger.Info().Msg("MQTT disconnected")
}

// Start connects and blocks until ctx is cancelled.
func (h *MQTTHandler) Start(ctx context.Context) error {
	if err := h.Connect(); err != nil {
		return err
	}
	<-ctx.Done()
	h.Close()
	return nil
}

func (h *MQTTHandler) subscribeEvents() {
	for _, sub := range subscriptions {
		topic := h.mqttCfg.Topic + sub.suffix
		h.eventBus.Subscribe(sub.event, sub.name, func(ctx context.Context, event events.Event) error {
			h.publish(topic, string(event.Type), event.Payload)
			return nil
		})
	}
}

func (h *MQTTHandler) unsubscribeEvents() {
	for _, sub := range subscriptions {
		h.eventBus.Unsubscribe(sub.event, sub.name)
	}
}

// publish sends a JSON message to an MQTT topic.
func (h *MQTTHandler) publish(topic string, event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.pub.IsConnected() {
		return
	}

	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(h.buildMessage(event, payload))
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.pub.Publish(topic, 1, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(event string, payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+3)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["event"] = event
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

// PublishShutdown sends a shutdown message to the broker.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(h.mqttCfg.Topic+TopicSuffixAdmin, string(events.EventShutdown), nil)
}
