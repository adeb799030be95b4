package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/wamenu/internal/bus"
)

// ErrChannelNotFound is returned by SendToChannel for an unregistered name.
var ErrChannelNotFound = errors.New("channel not registered")

// Manager owns the registered transports and is the outbox's delivery
// target.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// snapshot returns the registered channels sorted by name so lifecycle logs
// are stable.
func (m *Manager) snapshot() []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// StartAll starts every channel. Failures are logged and joined into the
// returned error; the remaining channels still start.
func (m *Manager) StartAll(ctx context.Context) error {
	chans := m.snapshot()
	if len(chans) == 0 {
		slog.Warn("no channels registered")
		return nil
	}

	var errs []error
	for _, ch := range chans {
		if err := ch.Start(ctx); err != nil {
			slog.Error("channel start failed", "channel", ch.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		slog.Info("channel started", "channel", ch.Name())
	}
	return errors.Join(errs...)
}

// StopAll stops every channel, joining failures.
func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	for _, ch := range m.snapshot() {
		if err := ch.Stop(ctx); err != nil {
			slog.Error("channel stop failed", "channel", ch.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	slog.Info("channels stopped")
	return errors.Join(errs...)
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// GetStatus maps channel name to running state, for the health payload.
func (m *Manager) GetStatus() map[string]bool {
	status := make(map[string]bool)
	for _, ch := range m.snapshot() {
		status[ch.Name()] = ch.IsRunning()
	}
	return status
}

// AllRunning is the readiness check: at least one channel, all running.
func (m *Manager) AllRunning() bool {
	chans := m.snapshot()
	for _, ch := range chans {
		if !ch.IsRunning() {
			return false
		}
	}
	return len(chans) > 0
}

// GetEnabledChannels returns the sorted registered names.
func (m *Manager) GetEnabledChannels() []string {
	chans := m.snapshot()
	names := make([]string, len(chans))
	for i, ch := range chans {
		names[i] = ch.Name()
	}
	return names
}

// RegisterChannel adds or replaces a channel under name.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	m.channels[name] = channel
	m.mu.Unlock()
}

func (m *Manager) UnregisterChannel(name string) {
	m.mu.Lock()
	delete(m.channels, name)
	m.mu.Unlock()
}

// SendToChannel implements outbox.Transport.
func (m *Manager) SendToChannel(ctx context.Context, channelName, chatID, content string) error {
	ch, ok := m.GetChannel(channelName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, channelName)
	}
	return ch.Send(ctx, bus.OutboundMessage{Channel: channelName, ChatID: chatID, Content: content})
}
