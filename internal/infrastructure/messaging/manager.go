package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/metrics"
)

const (
	defaultReconnectDelay       = 5 * time.Second
	defaultMaxReconnectAttempts = 10
)

// ManagerConfig configures one managed connection.
type ManagerConfig struct {
	// Name labels the connection in logs and metrics, e.g. "publisher".
	Name string
	URL  string
	// ReconnectDelay is the fixed pause between dial attempts.
	ReconnectDelay time.Duration
	// MaxReconnectAttempts is the number of consecutive failed dials after
	// which the manager gives up until restart. Negative means no limit.
	MaxReconnectAttempts int
}

// SetupFunc runs on every fresh channel before the manager reports Connected.
type SetupFunc func(ch Channel) error

// ErrRetryBudgetExhausted is reported by Err once the manager stops dialing.
var ErrRetryBudgetExhausted = errors.New("broker reconnect budget exhausted")

// Manager owns a single broker connection and its channel. A background
// goroutine dials, runs setup hooks, watches for closure and redials at a
// fixed delay until the attempt budget runs out.
type Manager struct {
	cfg    ManagerConfig
	dialer Dialer
	log    zerolog.Logger

	mu    sync.RWMutex
	state State
	conn  Connection
	ch    Channel
	err   error
	hooks []SetupFunc

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg ManagerConfig, dialer Dialer, log zerolog.Logger) *Manager {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	m := &Manager{
		cfg:    cfg,
		dialer: dialer,
		log:    log.With().Str("connection", cfg.Name).Logger(),
		done:   make(chan struct{}),
	}
	metrics.BrokerConnectionState.WithLabelValues(cfg.Name).Set(float64(StateDisconnected))
	return m
}

// OnConnect registers a hook run on each new channel. Register before Start.
func (m *Manager) OnConnect(fn SetupFunc) {
	m.mu.Lock()
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

// Start launches the connection goroutine. It returns immediately.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	go m.run(ctx)
}

// Close stops reconnecting, closes the connection and waits for the
// goroutine to exit. Safe to call before Start.
func (m *Manager) Close() {
	m.mu.RLock()
	cancel := m.cancel
	m.mu.RUnlock()
	if cancel == nil {
		return
	}
	cancel()
	<-m.done
}

// Done is closed when the connection goroutine has exited, either after
// Close or once the retry budget is exhausted.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Name is the connection label given in ManagerConfig.
func (m *Manager) Name() string {
	return m.cfg.Name
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Err returns the last dial error, or ErrRetryBudgetExhausted once the
// manager has given up.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Channel returns the live channel when Connected.
func (m *Manager) Channel() (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateConnected || m.ch == nil {
		return nil, false
	}
	return m.ch, true
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		m.setState(StateConnecting)
		connClosed, chClosed, err := m.connect()
		if err != nil {
			failures++
			m.setErr(err)
			m.setState(StateDisconnected)
			metrics.BrokerReconnectAttemptsTotal.WithLabelValues(m.cfg.Name, "failed").Inc()

			if m.cfg.MaxReconnectAttempts > 0 && failures >= m.cfg.MaxReconnectAttempts {
				m.setErr(ErrRetryBudgetExhausted)
				m.log.Error().Err(err).Int("attempts", failures).Msg("broker retry budget exhausted, staying disconnected")
				return
			}
			m.log.Warn().
				Err(err).
				Int("attempt", failures).
				Int("max_attempts", m.cfg.MaxReconnectAttempts).
				Dur("retry_in", m.cfg.ReconnectDelay).
				Msg("broker connect failed")
			if !m.sleep(ctx) {
				return
			}
			continue
		}

		if failures > 0 {
			metrics.BrokerReconnectAttemptsTotal.WithLabelValues(m.cfg.Name, "succeeded").Inc()
		}
		failures = 0
		m.setErr(nil)
		m.setState(StateConnected)
		m.log.Info().Msg("broker connected")

		var cause *amqp.Error
		select {
		case <-ctx.Done():
			m.teardown()
			m.setState(StateDisconnected)
			return
		case cause = <-connClosed:
		case cause = <-chClosed:
		}

		m.teardown()
		m.setState(StateDisconnected)
		if cause != nil {
			m.log.Warn().Str("reason", cause.Reason).Int("code", cause.Code).Msg("broker connection lost, reconnecting")
		} else {
			m.log.Warn().Msg("broker connection closed, reconnecting")
		}
		if !m.sleep(ctx) {
			return
		}
	}
}

func (m *Manager) connect() (<-chan *amqp.Error, <-chan *amqp.Error, error) {
	conn, err := m.dialer.Dial(m.cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	m.mu.RLock()
	hooks := append([]SetupFunc(nil), m.hooks...)
	m.mu.RUnlock()
	for _, hook := range hooks {
		if err := hook(ch); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("setup: %w", err)
		}
	}

	m.mu.Lock()
	m.conn, m.ch = conn, ch
	m.mu.Unlock()
	return connClosed, chClosed, nil
}

func (m *Manager) teardown() {
	m.mu.Lock()
	ch, conn := m.ch, m.conn
	m.ch, m.conn = nil, nil
	m.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil && !conn.IsClosed() {
		_ = conn.Close()
	}
}

func (m *Manager) sleep(ctx context.Context) bool {
	t := time.NewTimer(m.cfg.ReconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	metrics.BrokerConnectionState.WithLabelValues(m.cfg.Name).Set(float64(s))
}

func (m *Manager) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}
