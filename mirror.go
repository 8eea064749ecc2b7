package main

import (
	"strings"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/elijahnyp/lamp_controller/onem2m"
	. "github.com/elijahnyp/lamp_controller/util"
)

// startMirror connects the lamp to MQTT: Home Assistant discovery and the
// retained state on connect, commands from the command topic, and every
// change republished on the state topic.
func (a *App) startMirror() {
	RegisterMQTTConnectHook("haadvertise", a.onMQTTConnect)
	RegisterMQTTSubscription(Config.GetString("mqtt.command_topic"), a.mqttCommand)
	a.follow("mqtt", a.publishState)
	if err := MqttInit(); err != nil {
		Logger.Warn().Msgf("Error connecting to MQTT: %v", err)
	}
}

func (a *App) onMQTTConnect(client MQTT.Client) {
	AdvertiseHA(a.model.AE, client)
	token := client.Publish(Config.GetString("mqtt.state_topic"), 0, true, HAPayload(a.state.On()))
	if token.Wait() && token.Error() != nil {
		Logger.Error().Msgf("Error publishing lamp state: %v", token.Error())
	}
}

func (a *App) publishState(on bool) {
	if err := MqttPublish(Config.GetString("mqtt.state_topic"), true, HAPayload(on)); err != nil {
		Logger.Debug().Msgf("lamp state not mirrored: %v", err)
	}
}

// mqttCommand handles ON/OFF on the command topic. Connected lamps post the
// value to the CSE and wait for the notification; standalone lamps apply it.
func (a *App) mqttCommand(client MQTT.Client, message MQTT.Message) {
	payload := strings.ToLower(strings.TrimSpace(string(message.Payload())))
	on, err := onem2m.ParseBoolLike(payload)
	if err != nil {
		Logger.Warn().Msgf("Ignoring command on %s: %v", message.Topic(), err)
		return
	}
	Logger.Info().Msgf("command %s from %s", HAPayload(on), message.Topic())
	if a.client == nil {
		a.state.Set(on)
		return
	}
	a.push(on)
}
