package onem2m

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Resource types as carried in the ty parameter of Content-Type.
const (
	TypeAE                = 2
	TypeContainer         = 3
	TypeContentInstance   = 4
	TypeSubscription      = 23
	NotificationEventType = 3 // create of direct child resource
)

// AE is an application entity registration.
type AE struct {
	Name              string   `json:"rn"`
	AppID             string   `json:"api"`
	RequestReachable  bool     `json:"rr"`
	SupportedReleases []string `json:"srv,omitempty"`
	PointOfAccess     []string `json:"poa,omitempty"`
}

type Container struct {
	Name         string `json:"rn"`
	MaxInstances int    `json:"mni,omitempty"`
}

type ContentInstance struct {
	Name    string `json:"rn,omitempty"`
	Format  string `json:"cnf,omitempty"`
	Content any    `json:"con"`
	Created string `json:"ct,omitempty"`
}

type EventNotificationCriteria struct {
	NotificationEventTypes []int `json:"net"`
}

type Subscription struct {
	Name                    string                     `json:"rn"`
	NotificationURIs        []string                   `json:"nu"`
	NotificationContentType int                        `json:"nct,omitempty"`
	Criteria                *EventNotificationCriteria `json:"enc,omitempty"`
}

type aeEnvelope struct {
	AE AE `json:"m2m:ae"`
}

type cntEnvelope struct {
	Container Container `json:"m2m:cnt"`
}

type cinEnvelope struct {
	ContentInstance ContentInstance `json:"m2m:cin"`
}

type subEnvelope struct {
	Subscription Subscription `json:"m2m:sub"`
}

// LampValue reads the instance content as an on/off value.
func (c ContentInstance) LampValue() (bool, error) {
	return ParseBoolLike(c.Content)
}

// ParseBoolLike accepts the shapes a lamp value shows up as on the wire: JSON
// booleans, numbers, and strings such as "true", "on", "1".
func ParseBoolLike(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case float64:
		return val != 0, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return false, fmt.Errorf("bad numeric content %q: %w", val, err)
		}
		return f != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "on", "yes":
			return true, nil
		case "off", "no":
			return false, nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return false, fmt.Errorf("content %q is not bool-like", val)
		}
		return b, nil
	case nil:
		return false, fmt.Errorf("content missing")
	default:
		return false, fmt.Errorf("content of type %T is not bool-like", v)
	}
}
