package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/upb/role-dashboard/internal/session"
	"go.uber.org/zap"
)

const (
	opWrite = "write"
	opClear = "clear"
)

// EncodeChangePayload renders a change as "<origin>:<session_id>:<slot>:<op>"
func EncodeChangePayload(origin string, c session.Change) string {
	op := opWrite
	if c.Cleared {
		op = opClear
	}
	return strings.Join([]string{origin, c.SessionID, string(c.Slot), op}, ":")
}

// ParseChangePayload decodes a payload produced by EncodeChangePayload
func ParseChangePayload(payload string) (string, session.Change, error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 4 {
		return "", session.Change{}, fmt.Errorf("malformed change payload %q", payload)
	}

	origin, sessionID, slot, op := parts[0], parts[1], session.Slot(parts[2]), parts[3]
	if sessionID == "" {
		return "", session.Change{}, fmt.Errorf("change payload %q has no session id", payload)
	}
	if slot != session.SlotToken && slot != session.SlotUser {
		return "", session.Change{}, fmt.Errorf("change payload %q has unknown slot", payload)
	}

	change := session.Change{SessionID: sessionID, Slot: slot}
	switch op {
	case opWrite:
	case opClear:
		change.Cleared = true
	default:
		return "", session.Change{}, fmt.Errorf("change payload %q has unknown op", payload)
	}
	return origin, change, nil
}

// deliverer receives raw change payloads
type deliverer interface {
	Deliver(payload string) error
	Invalidate()
}

// ChangeListener relays ChangeChannel notifications from other instances into
// a SessionStore
type ChangeListener struct {
	listener     *pq.Listener
	store        deliverer
	logger       *zap.Logger
	pingInterval time.Duration
}

// NewChangeListener opens a dedicated LISTEN connection on dsn
func NewChangeListener(dsn string, store *SessionStore, logger *zap.Logger) (*ChangeListener, error) {
	onEvent := func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			logger.Info("session change listener connected")
		case pq.ListenerEventDisconnected:
			logger.Warn("session change listener disconnected", zap.Error(err))
		case pq.ListenerEventReconnected:
			logger.Info("session change listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Warn("session change listener connection attempt failed", zap.Error(err))
		}
	}

	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, onEvent)
	if err := listener.Listen(ChangeChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", ChangeChannel, err)
	}

	return &ChangeListener{
		listener:     listener,
		store:        store,
		logger:       logger,
		pingInterval: 90 * time.Second,
	}, nil
}

// Run relays notifications until ctx is cancelled
func (l *ChangeListener) Run(ctx context.Context) {
	ticker := time.NewTicker(l.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-l.listener.Notify:
			l.handle(n)
		case <-ticker.C:
			if err := l.listener.Ping(); err != nil {
				l.logger.Warn("session change listener ping failed", zap.Error(err))
			}
		}
	}
}

func (l *ChangeListener) handle(n *pq.Notification) {
	// A nil notification follows a reconnect; anything may have been missed.
	if n == nil {
		l.store.Invalidate()
		return
	}
	if err := l.store.Deliver(n.Extra); err != nil {
		l.logger.Warn("dropping session change notification",
			zap.String("payload", n.Extra),
			zap.Error(err))
	}
}

// Close stops listening and closes the connection
func (l *ChangeListener) Close() error {
	return l.listener.Close()
}
