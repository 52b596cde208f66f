// Package notify is the out-of-band notification channel. Clients hold a
// WebSocket open to the hub and receive advisory events such as
// "your access token has expired". Nothing in the authentication path
// waits on, or depends on, a notification being delivered.
package notify

import "context"

// Kind names an event pushed to clients.
type Kind string

// Event kinds understood by the frontend.
const (
	KindLoginSuccess Kind = "loginSuccess"
	KindLoginFailed  Kind = "loginFailed"
	KindTokenExpired Kind = "tokenExpired"
	KindInvalidToken Kind = "invalidToken"
	KindNewDataReady Kind = "newDataReady"
)

// defaultMessages are the human-readable texts sent with each kind.
var defaultMessages = map[Kind]string{
	KindLoginSuccess: "Login successful",
	KindLoginFailed:  "Login failed",
	KindTokenExpired: "Your access token has expired",
	KindInvalidToken: "Your access token is invalid",
	KindNewDataReady: "New data is ready",
}

// Event is a single message pushed to a client.
type Event struct {
	Kind    Kind   `json:"event"`
	Message string `json:"message"`
}

// NewEvent returns an event of the given kind with its default message.
func NewEvent(kind Kind) Event {
	return Event{Kind: kind, Message: defaultMessages[kind]}
}

// Notifier delivers events to connected clients. Implementations never
// block the caller on delivery and never return errors: an unknown
// connection or a broken channel is logged and dropped.
type Notifier interface {
	Notify(ctx context.Context, connID string, ev Event)
	Broadcast(ctx context.Context, ev Event)
}

// Emit sends events to connID. It is the adapter HTTP handlers use to push
// the advisory events returned by the auth core. An empty connID means the
// client has no live connection and the events are discarded.
func Emit(ctx context.Context, n Notifier, connID string, events []Event) {
	if n == nil || connID == "" {
		return
	}
	for _, ev := range events {
		n.Notify(ctx, connID, ev)
	}
}

// ConnectionHeader is the request header carrying the client's connection id.
const ConnectionHeader = "X-Connection-ID"
