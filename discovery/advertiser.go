package discovery

import (
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/elijahnyp/lamp_controller/util"
)

type Config struct {
	Name    string
	Service string
	Domain  string
	Port    int
	Text    []string
}

// Registration is a live DNS-SD record. *zeroconf.Server satisfies it.
type Registration interface {
	Shutdown()
}

// RegisterFunc publishes a record; zeroconfRegister is the real one.
type RegisterFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (Registration, error)

func zeroconfRegister(instance, service, domain string, port int, text []string, ifaces []net.Interface) (Registration, error) {
	return zeroconf.Register(instance, service, domain, port, text, ifaces)
}

// Advertiser owns one DNS-SD registration for the lamp.
type Advertiser struct {
	cfg      Config
	instance string
	register RegisterFunc

	mu   sync.Mutex
	reg  Registration
	once sync.Once
}

// NewAdvertiser picks a randomized instance name so several lamps on one
// network do not collide.
func NewAdvertiser(cfg Config) *Advertiser {
	return NewAdvertiserWithRegister(cfg, zeroconfRegister)
}

func NewAdvertiserWithRegister(cfg Config, register RegisterFunc) *Advertiser {
	if cfg.Domain == "" {
		cfg.Domain = "local."
	}
	return &Advertiser{
		cfg:      cfg,
		instance: fmt.Sprintf("%s-%s", cfg.Name, util.GetRandString(6)),
		register: register,
	}
}

func (a *Advertiser) Instance() string {
	return a.instance
}

func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reg != nil {
		return fmt.Errorf("already advertising %s", a.instance)
	}
	reg, err := a.register(a.instance, a.cfg.Service, a.cfg.Domain, a.cfg.Port, a.cfg.Text, nil)
	if err != nil {
		return fmt.Errorf("registering %s.%s: %w", a.instance, a.cfg.Service, err)
	}
	a.reg = reg
	util.Logger.Info().Msgf("advertising %s.%s%s on port %d", a.instance, a.cfg.Service, a.cfg.Domain, a.cfg.Port)
	return nil
}

// Stop withdraws the record. Only the first call does anything.
func (a *Advertiser) Stop() {
	a.once.Do(func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.reg == nil {
			return
		}
		a.reg.Shutdown()
		a.reg = nil
		util.Logger.Info().Msgf("withdrew %s.%s", a.instance, a.cfg.Service)
	})
}
