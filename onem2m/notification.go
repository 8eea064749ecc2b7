package onem2m

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedNotification = errors.New("malformed notification")
	ErrNoContentInstance     = errors.New("notification carries no content instance")
)

// Notification is the body of an m2m:sgn request sent by the CSE to a
// subscriber.
type Notification struct {
	Event               *NotificationEvent `json:"nev,omitempty"`
	VerificationRequest bool               `json:"vrq,omitempty"`
	SubscriptionDeleted bool               `json:"sud,omitempty"`
	SubscriptionRef     string             `json:"sur,omitempty"`
	Creator             string             `json:"cr,omitempty"`
}

type NotificationEvent struct {
	Representation *Representation `json:"rep,omitempty"`
	EventType      int             `json:"net,omitempty"`
}

type Representation struct {
	ContentInstance *ContentInstance `json:"m2m:cin,omitempty"`
}

type sgnEnvelope struct {
	Notification *Notification `json:"m2m:sgn"`
}

func ParseNotification(body []byte) (Notification, error) {
	var env sgnEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if env.Notification == nil {
		return Notification{}, fmt.Errorf("%w: missing m2m:sgn", ErrMalformedNotification)
	}
	return *env.Notification, nil
}

// IsControl reports notifications that acknowledge subscription lifecycle
// rather than carry data.
func (n Notification) IsControl() bool {
	return n.VerificationRequest || n.SubscriptionDeleted
}

func (n Notification) ContentInstance() (ContentInstance, error) {
	if n.Event == nil || n.Event.Representation == nil || n.Event.Representation.ContentInstance == nil {
		return ContentInstance{}, ErrNoContentInstance
	}
	return *n.Event.Representation.ContentInstance, nil
}

// LampValue extracts nev.rep.m2m:cin.con as a lamp value.
func (n Notification) LampValue() (bool, error) {
	cin, err := n.ContentInstance()
	if err != nil {
		return false, err
	}
	return cin.LampValue()
}

// NewLampNotification builds the notification a CSE sends when a lamp value
// is posted.
func NewLampNotification(subscriptionRef string, on bool) Notification {
	return Notification{
		SubscriptionRef: subscriptionRef,
		Event: &NotificationEvent{
			EventType: NotificationEventType,
			Representation: &Representation{
				ContentInstance: &ContentInstance{Format: "text/plain:0", Content: on},
			},
		},
	}
}

func (n Notification) MarshalJSON() ([]byte, error) {
	type plain Notification
	p := plain(n)
	return json.Marshal(struct {
		Notification *plain `json:"m2m:sgn"`
	}{&p})
}
