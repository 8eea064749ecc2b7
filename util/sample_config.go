package util

import (
	"fmt"
	"io"
	"text/template"
	"time"
)

// SampleConfig is the data behind the lamp_controller.yaml template.
type SampleConfig struct { //nolint:govet // template data, layout not critical
	CSEURL       string
	Origin       string
	Release      string
	Timeout      time.Duration
	AE           string
	Container    string
	Subscription string
	Attempts     int
	Interval     time.Duration
	NotifyPort   int
	NotifyPath   string
	DetailsPort  int
	Standalone   bool
	LocalToggle  bool
	Headless     bool
	Discovery    bool
	ServiceName  string
	Service      string
	MQTT         bool
	BrokerURI    string
	StateTopic   string
	CommandTopic string
	LogLevel     string
}

const sampleConfigTemplate = `# lamp_controller configuration
log_level: {{ .LogLevel }}

cse:
  url: {{ .CSEURL }}
  origin: {{ .Origin }}
  release: "{{ .Release }}"
  timeout: {{ .Timeout }}

onem2m:
  ae: {{ .AE }}
  container: {{ .Container }}
  subscription: {{ .Subscription }}

retry:
  attempts: {{ .Attempts }}
  interval: {{ .Interval }}

notify:
  port: {{ .NotifyPort }}
  path: {{ .NotifyPath }}

details_port: {{ .DetailsPort }}

ui:
  standalone: {{ .Standalone }}
  local_toggle: {{ .LocalToggle }}
  headless: {{ .Headless }}

discovery:
  enabled: {{ .Discovery }}
  name: {{ .ServiceName }}
  service: {{ .Service }}

mqtt:
  enabled: {{ .MQTT }}
  broker_uri: {{ .BrokerURI }}
  state_topic: {{ .StateTopic }}
  command_topic: {{ .CommandTopic }}
`

var sampleTemplate = template.Must(template.New("lamp_controller.yaml").Option("missingkey=error").Parse(sampleConfigTemplate))

// CurrentSampleConfig fills the template data from the loaded config.
func CurrentSampleConfig() SampleConfig {
	return SampleConfig{
		CSEURL:       Config.GetString("cse.url"),
		Origin:       Config.GetString("cse.origin"),
		Release:      Config.GetString("cse.release"),
		Timeout:      Config.GetDuration("cse.timeout"),
		AE:           Config.GetString("onem2m.ae"),
		Container:    Config.GetString("onem2m.container"),
		Subscription: Config.GetString("onem2m.subscription"),
		Attempts:     Config.GetInt("retry.attempts"),
		Interval:     Config.GetDuration("retry.interval"),
		NotifyPort:   Config.GetInt("notify.port"),
		NotifyPath:   Config.GetString("notify.path"),
		DetailsPort:  Config.GetInt("details_port"),
		Standalone:   Config.GetBool("ui.standalone"),
		LocalToggle:  Config.GetBool("ui.local_toggle"),
		Headless:     Config.GetBool("ui.headless"),
		Discovery:    Config.GetBool("discovery.enabled"),
		ServiceName:  Config.GetString("discovery.name"),
		Service:      Config.GetString("discovery.service"),
		MQTT:         Config.GetBool("mqtt.enabled"),
		BrokerURI:    Config.GetString("mqtt.broker_uri"),
		StateTopic:   Config.GetString("mqtt.state_topic"),
		CommandTopic: Config.GetString("mqtt.command_topic"),
		LogLevel:     Config.GetString("log_level"),
	}
}

func WriteSampleConfig(w io.Writer, data SampleConfig) error {
	if err := sampleTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("rendering sample config: %w", err)
	}
	return nil
}
