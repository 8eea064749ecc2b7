package util

import (
	"fmt"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

var Client MQTT.Client

// clientMu guards the Client variable, not the client itself.
var clientMu sync.Mutex

var mqttMu sync.Mutex

var subscriptions map[string]MQTT.MessageHandler

var connectHandlers map[string]func(MQTT.Client)

func availabilityTopic() string {
	return Config.GetString("mqtt.availability_topic")
}

var connectHandler MQTT.OnConnectHandler = func(client MQTT.Client) {
	Logger.Info().Msg("MQTT connected")
	subscribe(client)
	client.Publish(availabilityTopic(), 0, true, "online").Wait()
	mqttMu.Lock()
	handlers := make([]func(MQTT.Client), 0, len(connectHandlers))
	for _, handler := range connectHandlers {
		handlers = append(handlers, handler)
	}
	mqttMu.Unlock()
	for _, handler := range handlers {
		handler(client)
	}
}

func RegisterMQTTConnectHook(name string, handler func(MQTT.Client)) {
	mqttMu.Lock()
	defer mqttMu.Unlock()
	if connectHandlers == nil {
		connectHandlers = make(map[string]func(client MQTT.Client))
	}
	if handler == nil {
		delete(connectHandlers, name)
	} else {
		connectHandlers[name] = handler
	}
}

func subscribe(client MQTT.Client) {
	mqttMu.Lock()
	defer mqttMu.Unlock()
	for topic, handler := range subscriptions {
		if token := client.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
			Logger.Error().Msgf("Error Subscribing to %s: %v", topic, fmt.Errorf("%v", token.Error()))
		}
	}
}

func RegisterMQTTSubscription(topic string, handler MQTT.MessageHandler) {
	mqttMu.Lock()
	defer mqttMu.Unlock()
	if subscriptions == nil {
		subscriptions = make(map[string]MQTT.MessageHandler)
	}
	if handler == nil {
		delete(subscriptions, topic)
	} else {
		subscriptions[topic] = handler
	}
}

func receiver(client MQTT.Client, message MQTT.Message) {
	Logger.Warn().Msgf("Received message on %v but no handler", message.Topic())
}

var connectLostHandler MQTT.ConnectionLostHandler = func(client MQTT.Client, err error) {
	Logger.Info().Msgf("MQTT connect lost: %v", err)
}

func currentClient() MQTT.Client {
	clientMu.Lock()
	defer clientMu.Unlock()
	return Client
}

// MqttPublish publishes on the shared client if it is connected.
func MqttPublish(topic string, retained bool, payload interface{}) error {
	client := currentClient()
	if client == nil || !client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	token := client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

// MqttInit creates the shared client and starts connecting. It waits up to
// mqtt.connect_wait for the first connection; after that paho keeps retrying
// every mqtt.connect_retry until it succeeds or MqttClose is called.
func MqttInit() error {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(Config.GetString("mqtt.broker_uri"))
	opts.SetClientID(Config.GetString("mqtt.id_base") + "_" + GetRandString((6)))
	opts.SetUsername(Config.GetString("mqtt.username"))
	opts.SetPassword(Config.GetString("mqtt.password"))
	opts.SetCleanSession(Config.GetBool("mqtt.cleansess"))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(Config.GetDuration("mqtt.connect_retry"))
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(availabilityTopic(), "offline", 0, true)
	opts.OnConnectionLost = connectLostHandler
	opts.OnConnect = connectHandler
	opts.SetDefaultPublishHandler(receiver)

	MqttClose()

	client := MQTT.NewClient(opts)
	clientMu.Lock()
	Client = client
	clientMu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(Config.GetDuration("mqtt.connect_wait")) {
		Logger.Warn().Msgf("mqtt broker %s not reachable yet, retrying in the background", Config.GetString("mqtt.broker_uri"))
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// MqttClose marks the lamp offline and disconnects. It also cancels a
// connection that is still being retried.
func MqttClose() {
	clientMu.Lock()
	client := Client
	Client = nil
	clientMu.Unlock()
	if client == nil {
		return
	}
	Logger.Debug().Msg("Client exists - destroying")
	if client.IsConnected() {
		client.Publish(availabilityTopic(), 0, true, "offline").WaitTimeout(time.Second)
	}
	client.Disconnect(1000)
}
