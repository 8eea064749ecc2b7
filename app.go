package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elijahnyp/lamp_controller/discovery"
	"github.com/elijahnyp/lamp_controller/lamp"
	"github.com/elijahnyp/lamp_controller/onem2m"
	"github.com/elijahnyp/lamp_controller/shell"
	. "github.com/elijahnyp/lamp_controller/util"
)

// Modes the lamp runs in.
const (
	ModeStandalone  = "standalone"
	ModeLocalToggle = "local-toggle"
	ModeListener    = "listener"
)

type AppOptions struct {
	Standalone  bool
	LocalToggle bool
	Headless    bool
	Discovery   bool
	Dashboard   bool
	MQTT        bool
	LogFile     string

	Client     onem2m.ClientConfig
	Retry      onem2m.RetryPolicy
	NotifyPort int
	NotifyPath string
	DashPort   int

	// Register replaces the DNS-SD registrar, for tests.
	Register discovery.RegisterFunc
}

// ClientConfigFromConfig reads the cse.* keys.
func ClientConfigFromConfig() onem2m.ClientConfig {
	return onem2m.ClientConfig{
		URL:     Config.GetString("cse.url"),
		Origin:  Config.GetString("cse.origin"),
		Release: Config.GetString("cse.release"),
		Timeout: Config.GetDuration("cse.timeout"),
	}
}

func RetryPolicyFromConfig() onem2m.RetryPolicy {
	return onem2m.RetryPolicy{
		Attempts:    Config.GetInt("retry.attempts"),
		Interval:    Config.GetDuration("retry.interval"),
		Multiplier:  Config.GetFloat64("retry.multiplier"),
		MaxInterval: Config.GetDuration("retry.max_interval"),
	}
}

func AppOptionsFromConfig() AppOptions {
	return AppOptions{
		Standalone:  Config.GetBool("ui.standalone"),
		LocalToggle: Config.GetBool("ui.local_toggle"),
		Headless:    Config.GetBool("ui.headless"),
		Discovery:   Config.GetBool("discovery.enabled"),
		Dashboard:   Config.GetBool("monitor.enabled"),
		MQTT:        Config.GetBool("mqtt.enabled"),
		LogFile:     Config.GetString("log_file"),
		Client:      ClientConfigFromConfig(),
		Retry:       RetryPolicyFromConfig(),
		NotifyPort:  Config.GetInt("notify.port"),
		NotifyPath:  Config.GetString("notify.path"),
		DashPort:    Config.GetInt("details_port"),
	}
}

// App wires the lamp state to the broker, the shell, the dashboard, the MQTT
// mirror and the DNS-SD record.
type App struct {
	opts     AppOptions
	model    Model
	state    *lamp.State
	metrics  *LampMetrics
	registry *prometheus.Registry
	client   *onem2m.Client
	hub      *WSHub

	listener   *MonitorServer
	dashboard  *MonitorServer
	advertiser *discovery.Advertiser
	shutdown   *Shutdown

	mu       sync.Mutex
	cancels  []func()
	followWG sync.WaitGroup
}

func NewApp(opts AppOptions) (*App, error) {
	a := &App{
		opts:     opts,
		state:    lamp.NewState(false),
		registry: prometheus.NewRegistry(),
		hub:      NewHub(),
		shutdown: NewShutdown(5 * time.Second),
	}
	if err := a.model.BuildModel(); err != nil {
		return nil, fmt.Errorf("building model: %w", err)
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := NewLampMetrics(a.registry)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	a.metrics = metrics
	if !opts.Standalone {
		a.client = onem2m.NewClient(opts.Client,
			onem2m.WithRetry(opts.Retry),
			onem2m.WithRecorder(a.metrics))
	}

	path := opts.NotifyPath
	if path == "" {
		path = "/notify"
	}
	a.listener = NewMonitorServer("notification", func() int { return a.opts.NotifyPort })
	a.listener.AddRawHandler(path, onem2m.NewNotificationHandler(a.state, a.metrics))

	a.dashboard = NewMonitorServer("dashboard", func() int { return a.opts.DashPort })
	a.dashboard.AddHandler("/", HomeHandler)
	a.dashboard.AddHandler("/api/status", a.APIStatus)
	a.dashboard.AddHandler("/api/toggle", a.APIToggle)
	a.dashboard.AddHandler("/lamp.png", a.LampImage)
	a.dashboard.AddHandler("/ws", a.ServeWebSocket)
	a.dashboard.AddRawHandler("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return a, nil
}

func (a *App) Mode() string {
	switch {
	case a.opts.Standalone:
		return ModeStandalone
	case a.opts.LocalToggle:
		return ModeLocalToggle
	default:
		return ModeListener
	}
}

// LocalToggleEnabled is true in standalone mode and when explicitly enabled.
func (a *App) LocalToggleEnabled() bool {
	return a.opts.Standalone || a.opts.LocalToggle
}

func (a *App) State() *lamp.State { return a.state }

// Toggle flips the lamp and, when connected, pushes the new value to the CSE
// in the background.
func (a *App) Toggle() bool {
	on := a.state.Toggle()
	Logger.Info().Msgf("lamp toggled locally to %s", lamp.Color(on))
	if a.client != nil {
		go a.push(on)
	}
	return on
}

// push posts on as a content instance. Failures are logged and never shown.
func (a *App) push(on bool) {
	ctx, cancel := context.WithTimeout(context.Background(), a.pushTimeout())
	defer cancel()
	if err := a.client.PostContentInstance(ctx, a.model.AE, a.model.Container, on); err != nil {
		Logger.Warn().Msgf("Error pushing lamp state: %v", err)
		return
	}
	Logger.Debug().Msgf("pushed %v to %s", on, a.model.ContainerPath())
}

func (a *App) pushTimeout() time.Duration {
	if a.opts.Client.Timeout > 0 {
		return a.opts.Client.Timeout
	}
	return 10 * time.Second
}

// follow runs fn for every lamp value until the app shuts down.
func (a *App) follow(name string, fn func(on bool)) {
	ch, cancel := a.state.Subscribe()
	a.mu.Lock()
	a.cancels = append(a.cancels, cancel)
	a.mu.Unlock()
	a.followWG.Add(1)
	go func() {
		defer a.followWG.Done()
		for on := range ch {
			fn(on)
		}
		Logger.Debug().Msgf("%s stopped following the lamp", name)
	}()
}

func (a *App) stopFollowing(ctx context.Context) error {
	a.mu.Lock()
	cancels := a.cancels
	a.cancels = nil
	a.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		a.followWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Startup registers the AE, creates the container and the subscription, then
// syncs the lamp with the newest content instance. Only the sync may fail
// without aborting.
func (a *App) Startup(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	nu := NotificationURL(a.listener.Port())
	ae := onem2m.AE{
		Name:              a.model.AE,
		AppID:             a.model.AppID,
		RequestReachable:  true,
		SupportedReleases: []string{a.opts.Client.Release},
		PointOfAccess:     []string{nu},
	}
	if a.opts.Client.Release == "" {
		ae.SupportedReleases = nil
	}
	if err := a.client.RegisterAE(ctx, ae); err != nil {
		return fmt.Errorf("registering AE %s: %w", a.model.AE, err)
	}
	Logger.Info().Msgf("registered AE %s", a.model.AE)

	cnt := onem2m.Container{Name: a.model.Container, MaxInstances: a.model.MaxInstances}
	if err := a.client.CreateContainer(ctx, a.model.AE, cnt); err != nil {
		return fmt.Errorf("creating container %s: %w", a.model.ContainerPath(), err)
	}
	Logger.Info().Msgf("container %s ready", a.model.ContainerPath())

	sub := onem2m.Subscription{Name: a.model.Subscription, NotificationURIs: []string{nu}}
	if err := a.client.CreateSubscription(ctx, a.model.AE, a.model.Container, sub); err != nil {
		return fmt.Errorf("subscribing to %s: %w", a.model.ContainerPath(), err)
	}
	Logger.Info().Msgf("subscribed %s to %s", nu, a.model.ContainerPath())

	cin, err := a.client.Latest(ctx, a.model.AE, a.model.Container)
	if err != nil {
		Logger.Warn().Msgf("Error reading latest lamp value: %v", err)
		return nil
	}
	on, err := cin.LampValue()
	if err != nil {
		Logger.Warn().Msgf("Ignoring latest lamp value: %v", err)
		return nil
	}
	a.state.Set(on)
	Logger.Info().Msgf("lamp synced to %s", lamp.Color(on))
	return nil
}

// Start brings up every component except the shell. On error the components
// already started are torn down by Stop.
func (a *App) Start(ctx context.Context) error {
	mirrored := false
	defer func() {
		a.shutdown.Add("stop following", a.stopFollowing)
		// the mqtt follower publishes on the shared client until it stops
		if mirrored {
			a.shutdown.Add("disconnect mqtt", func(context.Context) error {
				MqttClose()
				return nil
			})
		}
	}()
	a.follow("metrics", a.metrics.SetLamp)
	go a.hub.Run(a.shutdown.Done())
	a.follow("dashboard", func(on bool) {
		a.hub.BroadcastUpdate(MessageLampState, NewLampStatePayload(on))
	})

	if a.client != nil {
		if err := a.listener.Start(); err != nil {
			return err
		}
		a.shutdown.Add("stop listener", a.listener.Stop)
		if err := a.Startup(ctx); err != nil {
			return err
		}
	}

	if a.opts.Dashboard {
		if err := a.dashboard.Start(); err != nil {
			return err
		}
		a.shutdown.Add("stop dashboard", a.dashboard.Stop)
		RegisterNewConfigListener(a.dashboard.Restart)
	}

	if a.opts.MQTT {
		a.startMirror()
		mirrored = true
	}

	if a.opts.Discovery {
		cfg := a.discoveryConfig()
		if a.opts.Register != nil {
			a.advertiser = discovery.NewAdvertiserWithRegister(cfg, a.opts.Register)
		} else {
			a.advertiser = discovery.NewAdvertiser(cfg)
		}
		if err := a.advertiser.Start(); err != nil {
			Logger.Warn().Msgf("Error advertising lamp: %v", err)
		} else {
			a.shutdown.Add("unregister discovery", func(context.Context) error {
				a.advertiser.Stop()
				return nil
			})
		}
	}
	Logger.Info().Msgf("ready (mode %s)", a.Mode())
	return nil
}

func (a *App) discoveryConfig() discovery.Config {
	port := Config.GetInt("discovery.port")
	if port == 0 {
		port = a.listener.Port()
	}
	if port == 0 {
		port = a.dashboard.Port()
	}
	text := []string{
		"cse=" + a.opts.Client.URL,
		"ae=" + a.model.AE,
		"cnt=" + a.model.Container,
	}
	text = append(text, Config.GetStringSlice("discovery.txt")...)
	return discovery.Config{
		Name:    Config.GetString("discovery.name"),
		Service: Config.GetString("discovery.service"),
		Domain:  Config.GetString("discovery.domain"),
		Port:    port,
		Text:    text,
	}
}

// Stop runs the shutdown steps once.
func (a *App) Stop(reason string) {
	a.shutdown.Trigger(reason)
}

// Run starts the app, shows the lamp and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	stopSignals := a.shutdown.TriggerOnSignal()
	defer stopSignals()

	if err := a.Start(ctx); err != nil {
		a.Stop("startup failed")
		return err
	}

	headless := a.opts.Headless || !shell.Interactive()
	updates, cancel := a.state.Subscribe()
	a.shutdown.Add("quit shell", func(context.Context) error {
		cancel()
		return nil
	})
	if headless {
		shell.RunHeadless(updates, a.shutdown.Done())
	} else {
		restore := a.redirectLogs()
		m := shell.NewModel(updates, shell.Options{
			Title:       fmt.Sprintf("%s (%s)", a.model.AE, a.Mode()),
			Initial:     a.state.On(),
			LocalToggle: a.LocalToggleEnabled(),
			OnToggle:    func() { a.Toggle() },
			OnQuit:      func() { a.Stop("window closed") },
		})
		err := shell.RunTUI(m, a.shutdown.Done())
		restore()
		if err != nil {
			a.Stop("shell failed")
			return err
		}
	}
	a.Stop("shell closed")
	return nil
}

// redirectLogs keeps log lines off the terminal while the shell draws on it.
func (a *App) redirectLogs() func() {
	level := Config.GetString("log_level")
	closeLog, err := LogToFile(a.opts.LogFile)
	if err != nil {
		Logger.Warn().Msgf("Error opening log file: %v", err)
		closeLog = func() {}
	}
	if a.opts.LogFile == "" || err != nil {
		LogOutput = io.Discard
	}
	LogInit(level)
	return func() {
		closeLog()
		LogOutput = os.Stderr
		LogInit(level)
	}
}

// HomeHandler serves a minimal page that draws the lamp from the websocket.
func HomeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := io.WriteString(w, homePage); err != nil {
		Logger.Warn().Msgf("Error writing home page: %v", err)
	}
}
