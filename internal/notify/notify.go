// Package notify raises desktop notifications over the freedesktop
// session bus.
package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyCall = busName + ".Notify"
	appName    = "macropadd"
)

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(summary, body string) error
}

// Desktop sends notifications to the running notification daemon.
type Desktop struct {
	conn      *dbus.Conn
	timeoutMs int32
}

// NewDesktop opens a private session bus connection.
func NewDesktop() (*Desktop, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("notify: connect to session bus: %w", err)
	}
	return &Desktop{conn: conn, timeoutMs: 5000}, nil
}

func (d *Desktop) Notify(summary, body string) error {
	obj := d.conn.Object(busName, objectPath)
	call := obj.Call(notifyCall, 0,
		appName,                   // app_name
		uint32(0),                 // replaces_id
		"",                        // app_icon
		summary,                   // summary
		body,                      // body
		[]string{},                // actions
		map[string]dbus.Variant{}, // hints
		d.timeoutMs,               // expire_timeout
	)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	return nil
}

// Close releases the bus connection.
func (d *Desktop) Close() error {
	return d.conn.Close()
}

// Log only writes the notification to the log. It stands in when no
// session bus is available.
type Log struct{}

func (Log) Notify(summary, body string) error {
	log.Info().Str("component", "notify").Str("summary", summary).Msg(body)
	return nil
}

// TimerDone returns a completion hook that announces the end of a
// countdown through n.
func TimerDone(n Notifier) func() {
	return func() {
		if err := n.Notify("Pomodoro complete", "Time for a break."); err != nil {
			log.Warn().Str("component", "notify").Err(err).Msg("notification failed")
		}
	}
}
