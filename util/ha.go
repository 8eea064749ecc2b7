package util

import (
	"encoding/json"
	"fmt"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

const (
	HAPayloadOn  = "ON"
	HAPayloadOff = "OFF"
)

type HAAvdvertisementAvailability struct {
	Topic               string `json:"topic"`                 // : "lamp/online"
	PayloadAvailable    string `json:"payload_available"`     // : "online"
	PayloadNotAvailable string `json:"payload_not_available"` // : "offline"
}

type HADeviceSpec struct {
	Name        string   `json:"name"` // : "oneM2M Lamp"
	Identifiers []string `json:"ids"`  // : ["lamp_controller_lamp"]
	Model       string   `json:"mdl,omitempty"`
}

type HAAdvertisement struct { //nolint:govet // struct layout optimized for JSON field order
	HAAvdvertisementAvailability []HAAvdvertisementAvailability `json:"availability"`
	Device                       HADeviceSpec                   `json:"device"`        // Device info
	UniqueID                     string                         `json:"uniq_id"`       // "lamp_controller-lamp"
	Name                         string                         `json:"name"`          // : "lamp"
	StateTopic                   string                         `json:"state_topic"`   // : "lamp/state"
	CommandTopic                 string                         `json:"command_topic"` // : "lamp/set"
	PayloadOn                    string                         `json:"payload_on"`    // : "ON"
	PayloadOff                   string                         `json:"payload_off"`
	Platform                     string                         `json:"platform"` // "light"
	Qos                          int                            `json:"qos"`
	Retain                       bool                           `json:"retain"`
}

func (ha HAAdvertisement) ToJson() string {
	data, err := json.Marshal(ha)
	if err != nil {
		Logger.Error().Msgf("Error marshalling HAAdvertisement: %v", err)
		return ""
	}
	return string(data)
}

func ConstructHAAdvertisement(name, stateTopic, commandTopic string) HAAdvertisement {
	return HAAdvertisement{
		Name:         name,
		StateTopic:   stateTopic,
		CommandTopic: commandTopic,
		PayloadOn:    HAPayloadOn,
		PayloadOff:   HAPayloadOff,
		HAAvdvertisementAvailability: []HAAvdvertisementAvailability{
			{
				Topic:               availabilityTopic(),
				PayloadAvailable:    "online",
				PayloadNotAvailable: "offline",
			},
		},
		Qos:      0,
		UniqueID: "lamp_controller-" + name,
		Platform: "light",
		Device: HADeviceSpec{
			Name:        "lamp_controller",
			Identifiers: []string{"lamp_controller_" + name},
			Model:       "oneM2M lamp",
		},
	}
}

// HADiscoveryTopic is where Home Assistant looks for the light's config.
func HADiscoveryTopic(name string) string {
	return fmt.Sprintf("%s/light/%s/config", Config.GetString("mqtt.discovery_prefix"), name)
}

func AdvertiseHA(name string, client MQTT.Client) {
	ha := ConstructHAAdvertisement(name, Config.GetString("mqtt.state_topic"), Config.GetString("mqtt.command_topic"))
	if token := client.Publish(HADiscoveryTopic(name), 0, true, ha.ToJson()); token.Wait() && token.Error() != nil {
		Logger.Error().Msgf("Error Publishing: %v", fmt.Errorf("%v", token.Error()))
	}
}

// HAPayload is the state topic payload for a lamp value.
func HAPayload(on bool) string {
	if on {
		return HAPayloadOn
	}
	return HAPayloadOff
}
