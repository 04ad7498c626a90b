package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/envnode/internal/config"
	"github.com/relabs-tech/envnode/internal/env"
)

// RunConsoleMQTT prints every reading and status report seen on the broker
// to w until ctx is done.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, w io.Writer) error {
	log := logrus.WithField("task", "watch")
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientIDWeb + "-watch").
		SetConnectTimeout(cfg.MQTT.ConnectTimeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.WithField("broker", cfg.MQTT.Broker).Info("connected to broker")

	subs := map[string]func([]byte) (string, error){
		cfg.MQTT.Topic:       formatReading,
		cfg.MQTT.StatusTopic: formatStatus,
	}
	lines := make(chan string, 16)
	for topic, format := range subs {
		format := format
		token := client.Subscribe(topic, cfg.MQTT.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			line, err := format(msg.Payload())
			if err != nil {
				log.WithError(err).WithField("topic", msg.Topic()).Warn("unmarshal failed")
				return
			}
			select {
			case lines <- line:
			default:
			}
		})
		if token.Wait() && token.Error() != nil {
			return token.Error()
		}
		log.WithField("topic", topic).Info("subscribed")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			fmt.Fprintln(w, line)
		}
	}
}

func formatReading(b []byte) (string, error) {
	var p env.Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return "", err
	}
	value := func(v *float64, format string) string {
		if v == nil {
			return "--"
		}
		return fmt.Sprintf(format, *v)
	}
	return fmt.Sprintf("[ENV]  #%-6d T=%s  P=%s  H=%s  %s",
		p.Count,
		value(p.Temperature, "%6.2f°C"),
		value(p.Pressure, "%7.2fhPa"),
		value(p.Humidity, "%5.1f%%"),
		p.Timestamp,
	), nil
}

func formatStatus(b []byte) (string, error) {
	var s env.DeviceStatus
	if err := json.Unmarshal(b, &s); err != nil {
		return "", err
	}
	var flags []string
	if !s.SensorActive {
		flags = append(flags, "sensor-down")
	}
	if !s.NetworkConnected {
		flags = append(flags, "net-down")
	}
	return fmt.Sprintf("[STAT] %-8s up=%s readings=%d published=%d failures=%d %s",
		s.Status,
		time.Duration(s.UptimeSeconds)*time.Second,
		s.Readings, s.Published, s.PublishFailures,
		strings.Join(flags, ","),
	), nil
}
