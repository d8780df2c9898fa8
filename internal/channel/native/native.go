// Package native delivers platform notifications through the desktop's
// org.freedesktop.Notifications service on the D-Bus session bus, falling
// back to the notify-send tool when no bus is reachable.
//
// The channel doubles as the permission prompter: desktop servers do not
// gate delivery on a runtime prompt, so reachability of the notification
// service is what "granted" means here.
package native

import (
	"context"
	"fmt"
	"hash/fnv"
	"os/exec"
	"sync"
	"time"

	dbus "github.com/godbus/dbus/v5"

	"chime/internal/notify"
	logx "chime/pkg/logx"
)

const (
	busName   = "org.freedesktop.Notifications"
	objPath   = "/org/freedesktop/Notifications"
	iface     = "org.freedesktop.Notifications"
	autoClose = 8 * time.Second
)

type Config struct {
	AppName string // default "chime"
	Icon    string
}

type Channel struct {
	cfg       Config
	log       logx.Logger
	activator notify.Activator // optional

	mu      sync.Mutex
	conn    *dbus.Conn
	shown   map[uint32]notify.Record // server id -> record, for ActionInvoked
	closers map[uint32]*time.Timer   // fallback auto-close timers
	sigDone chan struct{}
}

func New(cfg Config, activator notify.Activator, log logx.Logger) *Channel {
	if cfg.AppName == "" {
		cfg.AppName = "chime"
	}
	c := &Channel{
		cfg:       cfg,
		log:       log,
		activator: activator,
		shown:     map[uint32]notify.Record{},
		closers:   map[uint32]*time.Timer{},
	}
	if err := c.connect(); err != nil {
		c.log.Debug("session bus unavailable; native channel will use notify-send if present", logx.Err(err))
	}
	return c
}

func (c *Channel) connect() error {
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return err
	}
	if err := conn.Auth(nil); err != nil {
		_ = conn.Close()
		return err
	}
	if err := conn.Hello(); err != nil {
		_ = conn.Close()
		return err
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(iface),
		dbus.WithMatchObjectPath(objPath),
	); err != nil {
		_ = conn.Close()
		return err
	}

	sig := make(chan *dbus.Signal, 16)
	conn.Signal(sig)

	c.mu.Lock()
	c.conn = conn
	c.sigDone = make(chan struct{})
	done := c.sigDone
	c.mu.Unlock()

	go c.signalLoop(sig, done)
	return nil
}

// Available reports whether any native delivery path exists: a reachable
// notification service or the notify-send tool.
func (c *Channel) Available() bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return true
	}
	_, err := exec.LookPath("notify-send")
	return err == nil
}

// Request probes the notification server. It backs the permission prompter:
// a reachable server is a grant, anything else a denial.
func (c *Channel) Request(ctx context.Context) (bool, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		if _, err := exec.LookPath("notify-send"); err == nil {
			return true, nil
		}
		return false, nil
	}
	var caps []string
	err := conn.Object(busName, objPath).
		CallWithContext(ctx, iface+".GetCapabilities", 0).Store(&caps)
	if err != nil {
		return false, fmt.Errorf("notification server probe: %w", err)
	}
	return true, nil
}

// Show posts rec as a desktop notification. The replaces-id is derived from
// the record id, so the server itself also dedups repeated deliveries as a
// second line of defense. Alerts are sticky; everything else auto-closes.
func (c *Channel) Show(ctx context.Context, rec notify.Record) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return c.showExec(ctx, rec)
	}

	var actions []string
	if rec.ActionURL != "" {
		actions = []string{"default", "Open"}
	}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(1)),
	}
	expire := int32(autoClose / time.Millisecond)
	if rec.Category == notify.CategoryAlert {
		// requireInteraction: critical urgency, never expires on its own.
		hints["urgency"] = dbus.MakeVariant(byte(2))
		expire = 0
	}

	var id uint32
	err := conn.Object(busName, objPath).CallWithContext(ctx,
		iface+".Notify", 0,
		c.cfg.AppName,
		tagID(rec.ID),
		c.cfg.Icon,
		rec.Title,
		rec.Message,
		actions,
		hints,
		expire,
	).Store(&id)
	if err != nil {
		return fmt.Errorf("notify call: %w", err)
	}

	c.mu.Lock()
	c.shown[id] = rec
	if rec.Category != notify.CategoryAlert {
		// Some servers ignore the expiry; close explicitly a moment after.
		c.closers[id] = time.AfterFunc(autoClose+500*time.Millisecond, func() {
			c.closeNotification(id)
		})
	}
	c.mu.Unlock()
	return nil
}

func (c *Channel) showExec(ctx context.Context, rec notify.Record) error {
	if _, err := exec.LookPath("notify-send"); err != nil {
		return fmt.Errorf("%w: no session bus and no notify-send", notify.ErrUnavailable)
	}
	args := []string{"-a", c.cfg.AppName}
	if rec.Category == notify.CategoryAlert {
		args = append(args, "-u", "critical")
	} else {
		args = append(args, "-t", fmt.Sprint(autoClose.Milliseconds()))
	}
	if c.cfg.Icon != "" {
		args = append(args, "-i", c.cfg.Icon)
	}
	args = append(args, rec.Title, rec.Message)
	return exec.CommandContext(ctx, "notify-send", args...).Run()
}

func (c *Channel) closeNotification(id uint32) {
	c.mu.Lock()
	conn := c.conn
	delete(c.closers, id)
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if call := conn.Object(busName, objPath).Call(iface+".CloseNotification", 0, id); call.Err != nil {
		c.log.Debug("close notification failed", logx.Err(call.Err))
	}
}

func (c *Channel) signalLoop(sig <-chan *dbus.Signal, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case s, ok := <-sig:
			if !ok {
				return
			}
			switch s.Name {
			case iface + ".ActionInvoked":
				if len(s.Body) < 1 {
					continue
				}
				id, _ := s.Body[0].(uint32)
				c.mu.Lock()
				rec, ok := c.shown[id]
				c.mu.Unlock()
				if ok && c.activator != nil {
					c.activator.Activate(rec)
				}
			case iface + ".NotificationClosed":
				// Closing never affects active-set membership; just forget
				// our bookkeeping for this server id.
				if len(s.Body) < 1 {
					continue
				}
				id, _ := s.Body[0].(uint32)
				c.mu.Lock()
				delete(c.shown, id)
				if t, ok := c.closers[id]; ok {
					t.Stop()
					delete(c.closers, id)
				}
				c.mu.Unlock()
			}
		}
	}
}

func (c *Channel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	done := c.sigDone
	c.sigDone = nil
	for id, t := range c.closers {
		t.Stop()
		delete(c.closers, id)
	}
	c.mu.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// tagID derives the 32-bit replaces-id the server dedups on.
func tagID(id string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	v := h.Sum32()
	if v == 0 {
		v = 1 // 0 means "new notification" to the server
	}
	return v
}
