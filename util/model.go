package util

import (
	"fmt"
	"net"
	"strings"
)

// Model names the broker resources the lamp owns.
type Model struct {
	AE           string
	AppID        string
	Container    string
	Subscription string
	MaxInstances int
}

// BuildModel reads the onem2m.* keys. Keys are read one by one so a single
// overridden key does not hide the defaults of its siblings.
func (m *Model) BuildModel() error {
	m.AE = Config.GetString("onem2m.ae")
	m.AppID = Config.GetString("onem2m.app_id")
	m.Container = Config.GetString("onem2m.container")
	m.Subscription = Config.GetString("onem2m.subscription")
	m.MaxInstances = Config.GetInt("onem2m.max_instances")
	if m.AE == "" || m.Container == "" {
		return fmt.Errorf("onem2m.ae and onem2m.container are required")
	}
	if m.AppID == "" {
		m.AppID = "N" + m.AE
	}
	if m.Subscription == "" {
		m.Subscription = m.AE + "Sub"
	}
	return nil
}

// ContainerPath is the resource path of the state container relative to the
// CSE base.
func (m Model) ContainerPath() string {
	return m.AE + "/" + m.Container
}

// NotificationURL is the address the CSE should post notifications to. An
// explicit notify.url wins; otherwise it is built from the outbound address
// and the listener's port.
func NotificationURL(port int) string {
	if u := Config.GetString("notify.url"); u != "" {
		return u
	}
	path := Config.GetString("notify.path")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("http://%s:%d%s", OutboundIP(), port, path)
}

// OutboundIP is the local address used to reach the network, 127.0.0.1 when
// there is none.
func OutboundIP() string {
	conn, err := net.Dial("udp", "192.0.2.1:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
