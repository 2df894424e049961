//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"hap-ble-bridge/internal/bridge"
	"hap-ble-bridge/internal/hap"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// Bridge publishes accessory state to MQTT with HA autodiscovery and
// accepts identify and write commands.
type Bridge struct {
	client pahomqtt.Client
	br     *bridge.Bridge
	prefix string
	logger *slog.Logger
	unsub  func()

	// Per-accessory state accumulator.
	mu     sync.Mutex
	states map[string]map[string]any // accessory name -> property map
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(br *bridge.Bridge, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := &Bridge{
		br:     br,
		prefix: cfg.TopicPrefix,
		logger: logger.With("component", "mqtt"),
		states: make(map[string]map[string]any),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("hap-ble-bridge").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.publishAllDiscovery()
			b.subscribeCommands()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	b.client = client
	return b, nil
}

// Start subscribes to bridge events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.br.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(event bridge.Event) {
	data, ok := event.Data.(map[string]interface{})
	if !ok {
		return
	}
	name, _ := data["accessory"].(string)
	if name == "" {
		return
	}

	switch event.Type {
	case bridge.EventReachability:
		b.updateAndPublishState(name, "reachable", data["reachable"])
	case bridge.EventLinkQuality:
		b.updateAndPublishState(name, "link_quality", data["link_quality"])
	case bridge.EventCharacteristicValue:
		svc, _ := data["service"].(string)
		char, _ := data["characteristic"].(string)
		if _, opaque := data["value"].([]byte); opaque {
			return
		}
		b.updateAndPublishState(name, propertyName(svc, char), data["value"])
	case bridge.EventAccessoryStarted:
		if acc, ok := b.br.Accessory(name); ok {
			b.publishAccessoryDiscovery(acc)
			b.subscribeAccessoryCommands(acc)
		}
	case bridge.EventUnpaired:
		b.handleUnpaired(name)
	}
}

func (b *Bridge) updateAndPublishState(name, prop string, value any) {
	b.mu.Lock()
	state, ok := b.states[name]
	if !ok {
		state = make(map[string]any)
		b.states[name] = state
	}
	state[prop] = value
	state["last_seen"] = time.Now().Format(time.RFC3339)
	payload := mustJSON(state)
	b.mu.Unlock()

	b.publish(b.prefix+"/"+topicName(name), payload, true)
}

func (b *Bridge) handleUnpaired(name string) {
	if acc, ok := b.br.Accessory(name); ok {
		for _, msg := range buildRemoveDiscovery(buildDiscovery(describe(acc), b.prefix)) {
			b.publish(msg.Topic, msg.Payload, true)
		}
	}
	b.client.Unsubscribe(b.commandTopic(name))

	b.mu.Lock()
	delete(b.states, name)
	b.mu.Unlock()
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) publishAllDiscovery() {
	for _, acc := range b.br.Accessories() {
		if acc.Started() {
			b.publishAccessoryDiscovery(acc)
		}
	}
}

func (b *Bridge) publishAccessoryDiscovery(acc *bridge.Accessory) {
	for _, msg := range buildDiscovery(describe(acc), b.prefix) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.logger.Info("published HA discovery", "accessory", acc.Name())
}

func (b *Bridge) subscribeCommands() {
	for _, acc := range b.br.Accessories() {
		if acc.Started() {
			b.subscribeAccessoryCommands(acc)
		}
	}
}

func (b *Bridge) commandTopic(name string) string {
	return b.prefix + "/" + topicName(name) + "/set"
}

func (b *Bridge) subscribeAccessoryCommands(acc *bridge.Accessory) {
	name := acc.Name()
	b.client.Subscribe(b.commandTopic(name), 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(name, msg.Payload())
	})
}

// command is the JSON body accepted on <prefix>/<name>/set.
type command struct {
	Identify bool          `json:"identify"`
	Write    *writeCommand `json:"write,omitempty"`
}

type writeCommand struct {
	Service        string `json:"service"`
	Characteristic string `json:"characteristic"`
	Value          any    `json:"value"`
}

func parseCommand(payload []byte) (command, hap.Address, error) {
	var cmd command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, hap.Address{}, err
	}
	if !cmd.Identify && cmd.Write == nil {
		return cmd, hap.Address{}, errors.New("empty command")
	}
	if cmd.Write == nil {
		return cmd, hap.Address{}, nil
	}
	addr, err := hap.ParseAddress(cmd.Write.Service, cmd.Write.Characteristic)
	if err != nil {
		return cmd, hap.Address{}, fmt.Errorf("write address: %w", err)
	}
	return cmd, addr, nil
}

func (b *Bridge) handleCommand(name string, payload []byte) {
	acc, ok := b.br.Accessory(name)
	if !ok {
		b.logger.Warn("command for unknown accessory", "accessory", name)
		return
	}
	cmd, addr, err := parseCommand(payload)
	if err != nil {
		b.logger.Warn("invalid command", "accessory", name, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(b.br.Context(), 10*time.Second)
	defer cancel()

	if cmd.Identify {
		acc.Identify(ctx, func(err error) {
			if err != nil {
				b.logger.Warn("identify command failed", "accessory", name, "err", err)
			}
		})
	}
	if cmd.Write != nil {
		if err := acc.WriteCharacteristic(ctx, addr, cmd.Write.Value); err != nil {
			b.logger.Warn("write command failed", "accessory", name, "characteristic", addr.String(), "err", err)
		}
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
