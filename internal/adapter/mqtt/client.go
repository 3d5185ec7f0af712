// Package mqtt carries agent samples between the agent and the edge over an
// MQTT v5 broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/couchcryptid/road-telemetry-service/internal/config"
)

// ErrNotConnected is returned while the broker session is down.
var ErrNotConnected = errors.New("mqtt: not connected")

const keepAliveSeconds = 30

// session owns one paho client and can replace it after the connection drops.
type session struct {
	addr     string
	clientID string
	logger   *slog.Logger
	onPub    func(paho.PublishReceived) (bool, error)

	mu        sync.Mutex
	client    *paho.Client
	connected atomic.Bool
}

func newSession(cfg *config.Config, logger *slog.Logger, onPub func(paho.PublishReceived) (bool, error)) *session {
	clientID := cfg.MQTTClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	return &session{
		addr:     net.JoinHostPort(cfg.MQTTBrokerHost, strconv.Itoa(cfg.MQTTBrokerPort)),
		clientID: clientID,
		logger:   logger.With("mqtt_client_id", clientID),
		onPub:    onPub,
	}
}

// connect dials the broker and opens a clean session.
func (s *session) connect(ctx context.Context) (*paho.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected.Load() {
		return s.client, nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("dial mqtt broker %s: %w", s.addr, err)
	}

	cc := paho.ClientConfig{
		ClientID:           s.clientID,
		Conn:               conn,
		OnClientError:      s.onClientError,
		OnServerDisconnect: s.onServerDisconnect,
	}
	if s.onPub != nil {
		cc.OnPublishReceived = []func(paho.PublishReceived) (bool, error){s.onPub}
	}
	client := paho.NewClient(cc)

	ack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   s.clientID,
		KeepAlive:  keepAliveSeconds,
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", s.addr, err)
	}
	if ack.ReasonCode != 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt broker %s refused connection: reason %d", s.addr, ack.ReasonCode)
	}

	s.client = client
	s.connected.Store(true)
	s.logger.Info("mqtt connected", "broker", s.addr)
	return client, nil
}

func (s *session) current() (*paho.Client, error) {
	if !s.connected.Load() {
		return nil, ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client, nil
}

func (s *session) onClientError(err error) {
	if s.connected.Swap(false) {
		s.logger.Warn("mqtt connection lost", "error", err)
	}
}

func (s *session) onServerDisconnect(d *paho.Disconnect) {
	if s.connected.Swap(false) {
		s.logger.Warn("mqtt broker disconnected", "reason_code", d.ReasonCode)
	}
}

// CheckReadiness reports whether the broker session is up.
func (s *session) CheckReadiness(context.Context) error {
	if !s.connected.Load() {
		return ErrNotConnected
	}
	return nil
}

func (s *session) close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || !s.connected.Swap(false) {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- s.client.Disconnect(&paho.Disconnect{ReasonCode: 0}) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
