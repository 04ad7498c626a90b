package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/relabs-tech/envnode/internal/bme280"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables overriding configuration
// keys, e.g. ENVNODE_SENSOR_INTERVAL=10s.
const EnvPrefix = "ENVNODE"

// ConfigFileEnv names the environment variable that points at the
// configuration file when no --config flag is given.
const ConfigFileEnv = EnvPrefix + "_CONFIG"

// Config holds all application configuration values. It is read-only once
// loaded.
type Config struct {
	DeviceID string `mapstructure:"device_id" yaml:"device_id"`

	Sensor   SensorConfig   `mapstructure:"sensor" yaml:"sensor"`
	MQTT     MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	Status   StatusConfig   `mapstructure:"status" yaml:"status"`
	Console  ConsoleConfig  `mapstructure:"console" yaml:"console"`
	Display  DisplayConfig  `mapstructure:"display" yaml:"display"`
	Web      WebConfig      `mapstructure:"web" yaml:"web"`
	Features Features       `mapstructure:"features" yaml:"features"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// SensorConfig configures the BME280 and the acquisition loop.
type SensorConfig struct {
	Bus  string `mapstructure:"bus" yaml:"bus"`   // I²C bus name, "" for the first one
	Addr uint16 `mapstructure:"addr" yaml:"addr"` // 0x76, 0x77 or 0 to try both

	Interval             time.Duration `mapstructure:"interval" yaml:"interval"`
	RetryDelay           time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors" yaml:"max_consecutive_errors"`

	// Oversampling codes: 0=skipped, 1=x1, 2=x2, 3=x4, 4=x8, 5=x16
	TemperatureOSR uint8  `mapstructure:"temperature_osr" yaml:"temperature_osr"`
	PressureOSR    uint8  `mapstructure:"pressure_osr" yaml:"pressure_osr"`
	HumidityOSR    uint8  `mapstructure:"humidity_osr" yaml:"humidity_osr"`
	Mode           string `mapstructure:"mode" yaml:"mode"`       // "forced" or "normal"
	Filter         uint8  `mapstructure:"filter" yaml:"filter"`   // 0-4
	Standby        uint8  `mapstructure:"standby" yaml:"standby"` // 0-7

	HumidityModel string `mapstructure:"humidity_model" yaml:"humidity_model"` // "linear" or "full"
}

// MQTTConfig configures the broker session.
type MQTTConfig struct {
	Broker         string        `mapstructure:"broker" yaml:"broker"`
	ClientID       string        `mapstructure:"client_id" yaml:"client_id"`
	ClientIDWeb    string        `mapstructure:"client_id_web" yaml:"client_id_web"`
	Topic          string        `mapstructure:"topic" yaml:"topic"`
	StatusTopic    string        `mapstructure:"status_topic" yaml:"status_topic"`
	QoS            byte          `mapstructure:"qos" yaml:"qos"`
	Retain         bool          `mapstructure:"retain" yaml:"retain"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout" yaml:"publish_timeout"`
}

// NetworkConfig configures the link check.
type NetworkConfig struct {
	Interface   string        `mapstructure:"interface" yaml:"interface"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

// StatusConfig configures the status loop.
type StatusConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// Publish also sends the status report to MQTTConfig.StatusTopic.
	Publish bool `mapstructure:"publish" yaml:"publish"`
}

// ConsoleConfig configures the command console. An empty Port uses
// stdin/stdout.
type ConsoleConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
	Baud uint   `mapstructure:"baud" yaml:"baud"`
}

// DisplayConfig configures the optional SSD1306 status panel.
type DisplayConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Bus     string `mapstructure:"bus" yaml:"bus"`
	Addr    uint16 `mapstructure:"addr" yaml:"addr"`
}

// WebConfig configures the dashboard.
type WebConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// Features selects which capabilities the node is built with.
type Features struct {
	Sensor  bool `mapstructure:"sensor" yaml:"sensor"`
	Network bool `mapstructure:"network" yaml:"network"`
	MQTT    bool `mapstructure:"mqtt" yaml:"mqtt"`
	Console bool `mapstructure:"console" yaml:"console"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		DeviceID: "envnode",
		Sensor: SensorConfig{
			Addr:                 bme280.AddrPrimary,
			Interval:             30 * time.Second,
			RetryDelay:           5 * time.Second,
			MaxConsecutiveErrors: 3,
			TemperatureOSR:       1,
			PressureOSR:          1,
			HumidityOSR:          1,
			Mode:                 "forced",
			HumidityModel:        "linear",
		},
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			ClientID:       "envnode",
			ClientIDWeb:    "envnode-web",
			Topic:          "esp32/sensor/bme280",
			StatusTopic:    "esp32/status",
			ConnectTimeout: 10 * time.Second,
			PublishTimeout: 5 * time.Second,
		},
		Network: NetworkConfig{
			DialTimeout: 10 * time.Second,
		},
		Status: StatusConfig{
			Interval: 60 * time.Second,
		},
		Console: ConsoleConfig{
			Baud: 115200,
		},
		Display: DisplayConfig{
			Addr: 0x3C,
		},
		Web: WebConfig{
			Listen: ":8080",
		},
		Features: Features{
			Sensor:  true,
			Network: true,
			MQTT:    true,
			Console: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"device-id":      "device_id",
	"bus":            "sensor.bus",
	"addr":           "sensor.addr",
	"interval":       "sensor.interval",
	"humidity-model": "sensor.humidity_model",
	"broker":         "mqtt.broker",
	"topic":          "mqtt.topic",
	"console-port":   "console.port",
	"listen":         "web.listen",
	"log-level":      "log.level",
}

// Load builds the configuration from, by increasing precedence, the
// compiled-in defaults, the YAML file at path (or $ENVNODE_CONFIG), ENVNODE_*
// environment variables and the changed flags of fs. path and fs may be
// empty.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, err
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		logrus.Debugf("config: using %s", v.ConfigFileUsed())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and required fields.
func (c *Config) Validate() error {
	var errs []error
	s := c.Sensor
	if s.Addr != 0 && s.Addr != bme280.AddrPrimary && s.Addr != bme280.AddrSecondary {
		errs = append(errs, fmt.Errorf("sensor.addr must be 0x76, 0x77 or 0, got 0x%X", s.Addr))
	}
	if s.Interval <= 0 {
		errs = append(errs, fmt.Errorf("sensor.interval must be positive, got %s", s.Interval))
	}
	if s.RetryDelay <= 0 {
		errs = append(errs, fmt.Errorf("sensor.retry_delay must be positive, got %s", s.RetryDelay))
	}
	if s.MaxConsecutiveErrors <= 0 {
		errs = append(errs, fmt.Errorf("sensor.max_consecutive_errors must be positive, got %d", s.MaxConsecutiveErrors))
	}
	for name, osr := range map[string]uint8{"temperature_osr": s.TemperatureOSR, "pressure_osr": s.PressureOSR, "humidity_osr": s.HumidityOSR} {
		if osr > 5 {
			errs = append(errs, fmt.Errorf("sensor.%s must be 0-5, got %d", name, osr))
		}
	}
	if s.Mode != "forced" && s.Mode != "normal" {
		errs = append(errs, fmt.Errorf("sensor.mode must be forced or normal, got %q", s.Mode))
	}
	if s.Filter > 4 {
		errs = append(errs, fmt.Errorf("sensor.filter must be 0-4, got %d", s.Filter))
	}
	if s.Standby > 7 {
		errs = append(errs, fmt.Errorf("sensor.standby must be 0-7, got %d", s.Standby))
	}
	if s.HumidityModel != "linear" && s.HumidityModel != "full" {
		errs = append(errs, fmt.Errorf("sensor.humidity_model must be linear or full, got %q", s.HumidityModel))
	}
	if c.Features.MQTT {
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required"))
		}
		if c.MQTT.Topic == "" {
			errs = append(errs, errors.New("mqtt.topic is required"))
		}
		if c.Status.Publish && c.MQTT.StatusTopic == "" {
			errs = append(errs, errors.New("mqtt.status_topic is required when status.publish is set"))
		}
		if c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos must be 0-2, got %d", c.MQTT.QoS))
		}
	}
	if c.Status.Interval <= 0 {
		errs = append(errs, fmt.Errorf("status.interval must be positive, got %s", c.Status.Interval))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// SensorOpts converts the sensor section into driver options.
func (c *Config) SensorOpts() bme280.Opts {
	o := bme280.DefaultOpts
	o.Addr = c.Sensor.Addr
	o.Temperature = bme280.Oversampling(c.Sensor.TemperatureOSR)
	o.Pressure = bme280.Oversampling(c.Sensor.PressureOSR)
	o.Humidity = bme280.Oversampling(c.Sensor.HumidityOSR)
	o.Mode = bme280.Forced
	if c.Sensor.Mode == "normal" {
		o.Mode = bme280.Normal
	}
	o.Filter = bme280.Filter(c.Sensor.Filter)
	o.Standby = bme280.Standby(c.Sensor.Standby)
	o.HumidityModel = bme280.Linear
	if c.Sensor.HumidityModel == "full" {
		o.HumidityModel = bme280.Full
	}
	return o
}

// ConfigureLogging applies the log section to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	lvl, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	if c.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// YAML renders the configuration the way it is read back by Load.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
