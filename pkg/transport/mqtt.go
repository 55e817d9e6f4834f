package transport

import (
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
	defaultMQTTTopic   = "markercam/pose"
)

// MQTT publishes every message to one topic with QoS 0.
type MQTT struct {
	client mqtt.Client
	broker string
	topic  string
}

// mqttTarget splits mqtt://host:port/topic into a broker address and a
// topic.
func mqttTarget(u *url.URL) (broker, topic string) {
	broker = "tcp://" + u.Host
	topic = strings.TrimPrefix(u.Path, "/")
	if topic == "" {
		topic = defaultMQTTTopic
	}
	return broker, topic
}

func openMQTT(u *url.URL) (Transport, error) {
	broker, topic := mqttTarget(u)
	return NewMQTT(broker, topic)
}

// NewMQTT connects to broker (e.g. tcp://localhost:1883).
func NewMQTT(broker, topic string) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("markercam-" + uuid.NewString())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logrus.WithField("broker", broker).Info("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logrus.WithError(err).WithField("broker", broker).Warn("mqtt connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, pkgerrors.Errorf("mqtt connection to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, pkgerrors.Wrapf(err, "mqtt connection to %s failed", broker)
	}
	return &MQTT{client: client, broker: broker, topic: topic}, nil
}

func (t *MQTT) Send(payload []byte) error {
	if !t.client.IsConnectionOpen() {
		return pkgerrors.New("mqtt not connected")
	}
	token := t.client.Publish(t.topic, 0, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return pkgerrors.New("mqtt publish timed out")
	}
	return token.Error()
}

func (t *MQTT) Close() error {
	t.client.Disconnect(250)
	return nil
}

func (t *MQTT) String() string {
	return strings.Replace(t.broker, "tcp://", "mqtt://", 1) + "/" + t.topic
}
