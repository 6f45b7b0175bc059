// Package systemd integrates with systemd socket activation and sd_notify.
package systemd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// Socket names expected in the accesstime.socket unit, set with
// FileDescriptorName=.
const (
	SocketAPI     = "api"
	SocketMetrics = "metrics"
)

// Listeners holds the systemd-activated listeners.
type Listeners struct {
	API       net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves systemd socket-activated file descriptors.
// Listeners are nil when not running under socket activation.
func GetListeners() (*Listeners, error) {
	listeners := &Listeners{}

	if len(activation.Files(false)) == 0 {
		return listeners, nil
	}
	listeners.Activated = true

	named, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	listeners.API = first(named, SocketAPI)
	listeners.Metrics = first(named, SocketMetrics)

	return listeners, nil
}

func first(named map[string][]net.Listener, name string) net.Listener {
	if lns := named[name]; len(lns) > 0 {
		return lns[0]
	}
	return nil
}

// NotifyReady sends READY=1. It is a no-op outside systemd.
func NotifyReady() error {
	return notify(daemon.SdNotifyReady)
}

// NotifyStopping sends STOPPING=1. It is a no-op outside systemd.
func NotifyStopping() error {
	return notify(daemon.SdNotifyStopping)
}

func notify(state string) error {
	if _, err := daemon.SdNotify(false, state); err != nil {
		return fmt.Errorf("sd_notify %s: %w", state, err)
	}
	return nil
}

// Watchdog pings the systemd watchdog at half its configured interval until
// ctx is done. It returns immediately when the watchdog is not enabled.
func Watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return fmt.Errorf("query watchdog: %w", err)
	}
	if interval == 0 {
		return nil
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := notify(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
