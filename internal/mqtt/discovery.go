//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"hap-ble-bridge/internal/bridge"
	"hap-ble-bridge/internal/hap"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/hapble_kitchen_sensor/link_quality/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic,omitempty"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	PayloadPress      string   `json:"payload_press,omitempty"`
	Device            haDevice `json:"device"`
}

// accessoryInfo is the slice of accessory state discovery is built from.
type accessoryInfo struct {
	Name            string
	Manufacturer    string
	Model           string
	Characteristics []*hap.Characteristic
}

func describe(acc *bridge.Accessory) accessoryInfo {
	info := accessoryInfo{Name: acc.Name()}
	if s, ok := acc.Info().Manufacturer.Value().(string); ok {
		info.Manufacturer = s
	}
	if s, ok := acc.Info().Model.Value().(string); ok {
		info.Model = s
	}
	for _, svc := range acc.Proxies() {
		for _, c := range svc.Proxies() {
			info.Characteristics = append(info.Characteristics, c.Metadata())
		}
	}
	return info
}

// deviceIdentifier returns the unique identifier for HA device registry.
func deviceIdentifier(name string) string {
	return "hapble_" + topicName(name)
}

// topicName sanitizes an accessory name for MQTT topics.
func topicName(name string) string {
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
}

// wellKnown names the state property of common characteristics.
var wellKnown = map[string]struct {
	prop, deviceClass, unit string
}{
	"25": {"on", "", ""},
	"8":  {"brightness", "", "%"},
	"11": {"temperature", "temperature", "°C"},
	"10": {"humidity", "humidity", "%"},
	"6B": {"illuminance", "illuminance", "lx"},
	"68": {"battery", "battery", "%"},
	"71": {"occupancy", "occupancy", ""},
	"22": {"motion", "motion", ""},
	"6A": {"contact", "door", ""},
	"76": {"leak", "moisture", ""},
}

// propertyName maps a characteristic to its state JSON key.
func propertyName(service, characteristic string) string {
	if k, ok := wellKnown[characteristic]; ok {
		return k.prop
	}
	return strings.ReplaceAll(topicName(service+"_"+characteristic), "-", "_")
}

var unitSymbols = map[string]string{
	"celsius":    "°C",
	"percentage": "%",
	"lux":        "lx",
	"seconds":    "s",
	"arcdegrees": "°",
}

// buildDiscovery generates HA discovery messages for an accessory.
func buildDiscovery(acc accessoryInfo, prefix string) []discoveryMsg {
	avail := prefix + "/bridge/state"
	stateTopic := prefix + "/" + topicName(acc.Name)
	cmdTopic := stateTopic + "/set"
	nodeID := deviceIdentifier(acc.Name)

	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: acc.Manufacturer,
		Model:        acc.Model,
		Name:         acc.Name,
	}

	msgs := []discoveryMsg{
		buildBinarySensor(nodeID, acc.Name, stateTopic, avail, haDev,
			"reachable", "Reachable", "connectivity",
			"{{ 'ON' if value_json.reachable else 'OFF' }}"),
		// No device_class: signal_strength requires dB/dBm and link quality is 1..4.
		buildSensor(nodeID, acc.Name, stateTopic, avail, haDev,
			"link_quality", "Link Quality", "", "", "measurement",
			"{{ value_json.link_quality }}"),
		buildButton(nodeID, acc.Name, cmdTopic, avail, haDev),
	}

	for _, c := range acc.Characteristics {
		if !c.Readable() || c.Format.Opaque() {
			continue
		}
		svc := hap.ShortName(c.Address.Service)
		char := hap.ShortName(c.Address.Characteristic)
		prop := propertyName(svc, char)
		suffix := c.Description
		if suffix == "" {
			suffix = prop
		}
		k := wellKnown[char]

		if c.Format == hap.FormatBool {
			msgs = append(msgs, buildBinarySensor(nodeID, acc.Name, stateTopic, avail, haDev,
				prop, suffix, k.deviceClass,
				fmt.Sprintf("{{ 'ON' if value_json.%s else 'OFF' }}", prop)))
			continue
		}

		unit := k.unit
		if u, ok := unitSymbols[c.Unit]; ok {
			unit = u
		}
		stateClass := ""
		if c.Format != hap.FormatString {
			stateClass = "measurement"
		}
		msgs = append(msgs, buildSensor(nodeID, acc.Name, stateTopic, avail, haDev,
			prop, suffix, k.deviceClass, unit, stateClass,
			fmt.Sprintf("{{ value_json.%s }}", prop)))
	}
	return msgs
}

func buildSensor(nodeID, displayName, stateTopic, avail string, haDev haDevice,
	objectID, suffix, deviceClass, unit, stateClass, valueTmpl string) discoveryMsg {

	topic := fmt.Sprintf("homeassistant/sensor/%s/%s/config", nodeID, objectID)
	payload := haDiscovery{
		Name:              displayName + " " + suffix,
		UniqueID:          nodeID + "_" + objectID,
		StateTopic:        stateTopic,
		AvailabilityTopic: avail,
		ValueTemplate:     valueTmpl,
		UnitOfMeasurement: unit,
		DeviceClass:       deviceClass,
		StateClass:        stateClass,
		Device:            haDev,
	}
	return discoveryMsg{Topic: topic, Payload: mustJSON(payload)}
}

func buildBinarySensor(nodeID, displayName, stateTopic, avail string, haDev haDevice,
	objectID, suffix, deviceClass, valueTmpl string) discoveryMsg {

	topic := fmt.Sprintf("homeassistant/binary_sensor/%s/%s/config", nodeID, objectID)
	payload := haDiscovery{
		Name:              displayName + " " + suffix,
		UniqueID:          nodeID + "_" + objectID,
		StateTopic:        stateTopic,
		AvailabilityTopic: avail,
		ValueTemplate:     valueTmpl,
		DeviceClass:       deviceClass,
		PayloadOn:         "ON",
		PayloadOff:        "OFF",
		Device:            haDev,
	}
	return discoveryMsg{Topic: topic, Payload: mustJSON(payload)}
}

func buildButton(nodeID, displayName, cmdTopic, avail string, haDev haDevice) discoveryMsg {
	topic := fmt.Sprintf("homeassistant/button/%s/identify/config", nodeID)
	payload := haDiscovery{
		Name:              displayName + " Identify",
		UniqueID:          nodeID + "_identify",
		CommandTopic:      cmdTopic,
		AvailabilityTopic: avail,
		DeviceClass:       "identify",
		PayloadPress:      `{"identify":true}`,
		Device:            haDev,
	}
	return discoveryMsg{Topic: topic, Payload: mustJSON(payload)}
}

// buildRemoveDiscovery turns discovery messages into empty retained
// messages that remove the entities from HA.
func buildRemoveDiscovery(msgs []discoveryMsg) []discoveryMsg {
	out := make([]discoveryMsg, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, discoveryMsg{Topic: m.Topic})
	}
	return out
}
