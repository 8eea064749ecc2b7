package util

import (
	"crypto/rand"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "LAMP"

var Config = viper.New()

var config_listeners []func()

func RegisterNewConfigListener(new_listener func()) {
	for _, listener := range config_listeners {
		if reflect.ValueOf(new_listener).Pointer() == reflect.ValueOf(listener).Pointer() {
			Logger.Warn().Msg("config listener already registered")
			return
		}
	}
	config_listeners = append(config_listeners, new_listener)
}

func OnNewConfig() {
	for _, listener := range config_listeners {
		listener()
	}
}

func GetRandString(n int) string {
	// using crypto/rand for better security
	const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, n)
	for i := range b {
		randBytes := make([]byte, 1)
		if _, err := rand.Read(randBytes); err != nil {
			// fallback to a simple approach if crypto/rand fails
			b[i] = letterBytes[i%len(letterBytes)]
		} else {
			b[i] = letterBytes[int(randBytes[0])%len(letterBytes)]
		}
	}
	return string(b)
}

// BindFlags maps command line flags onto config keys. Flag names use dashes,
// config keys use the dotted form listed here.
func BindFlags(flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"config":       "config_file",
		"log-level":    "log_level",
		"log-file":     "log_file",
		"standalone":   "ui.standalone",
		"local-toggle": "ui.local_toggle",
		"headless":     "ui.headless",
		"discovery":    "discovery.enabled",
		"cse":          "cse.url",
		"notify-port":  "notify.port",
	}
	for flag, key := range bindings {
		f := flags.Lookup(flag)
		if f == nil {
			continue
		}
		if err := Config.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}
	return nil
}

func setDefaults() {
	Config.SetDefault("log_level", "info")
	Config.SetDefault("log_file", "")

	// broker
	Config.SetDefault("cse.url", "http://127.0.0.1:8080/~/in-cse/in-name")
	Config.SetDefault("cse.origin", "CAdmin")
	Config.SetDefault("cse.release", "3")
	Config.SetDefault("cse.timeout", 10*time.Second)
	Config.SetDefault("onem2m.ae", "lamp")
	Config.SetDefault("onem2m.app_id", "Nlamp")
	Config.SetDefault("onem2m.container", "state")
	Config.SetDefault("onem2m.subscription", "lampSub")
	Config.SetDefault("onem2m.max_instances", 10)
	Config.SetDefault("retry.attempts", 3)
	Config.SetDefault("retry.interval", time.Second)
	Config.SetDefault("retry.multiplier", 1.0)
	Config.SetDefault("retry.max_interval", 10*time.Second)

	// notification listener
	Config.SetDefault("notify.port", 8000)
	Config.SetDefault("notify.path", "/notify")
	Config.SetDefault("notify.url", "")

	// dashboard
	Config.SetDefault("details_port", 8081)
	Config.SetDefault("monitor.enabled", true)

	// shell
	Config.SetDefault("ui.standalone", false)
	Config.SetDefault("ui.local_toggle", false)
	Config.SetDefault("ui.headless", false)

	// discovery
	Config.SetDefault("discovery.enabled", false)
	Config.SetDefault("discovery.name", "Lamp")
	Config.SetDefault("discovery.service", "_onem2m-lamp._tcp")
	Config.SetDefault("discovery.domain", "local.")
	Config.SetDefault("discovery.port", 0)
	Config.SetDefault("discovery.txt", []string{})

	// mqtt mirror
	Config.SetDefault("mqtt.enabled", false)
	Config.SetDefault("mqtt.broker_uri", "tcp://mqtt")
	Config.SetDefault("mqtt.cleansess", false)
	Config.SetDefault("mqtt.connect_wait", 2*time.Second)
	Config.SetDefault("mqtt.connect_retry", 5*time.Second)
	Config.SetDefault("mqtt.id_base", "lamp")
	Config.SetDefault("mqtt.username", "")
	Config.SetDefault("mqtt.password", "")
	Config.SetDefault("mqtt.state_topic", "lamp/state")
	Config.SetDefault("mqtt.command_topic", "lamp/set")
	Config.SetDefault("mqtt.availability_topic", "lamp/online")
	Config.SetDefault("mqtt.discovery_prefix", "homeassistant")
}

// SetupConfig layers defaults, the config file, environment variables and
// bound flags. A missing file is only an error when one was named
// explicitly through config_file.
func SetupConfig() error {
	Config.SetEnvPrefix(ENV_PREFIX)
	Config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults()

	// config file
	explicit := Config.GetString("config_file")
	if explicit != "" {
		Config.SetConfigFile(explicit)
	} else {
		Config.SetConfigName("lamp_controller")
		Config.AddConfigPath("/")
		Config.AddConfigPath("./")
		Config.AddConfigPath("./config")
		Config.AddConfigPath("/etc")
		Config.AddConfigPath("/lamp_controller")
		Config.AddConfigPath("/lamp_controller/config")
	}

	// environment variables
	Config.AutomaticEnv()

	if err := Config.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit == "" && errors.As(err, &notFound) {
			Logger.Warn().Msgf("no config file found, using defaults: %v", err)
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}

	// watch for changes
	Config.WatchConfig()
	Config.OnConfigChange(func(e fsnotify.Event) {
		Logger.Info().Msgf("Config file changed: %v", e.Name)
		Logger.Debug().Msgf("Config Additional Info: %v", e.String())
		OnNewConfig()
	})
	return nil
}
