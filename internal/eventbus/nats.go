/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges the in-process event bus to NATS, so sibling
// processes in the same deployment (a supervisor, a UI shell) learn
// about fatal errors and device loss without polling the HTTP API.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir-playback/internal/events"
)

// bridgedTypes is the set of event types forwarded to NATS. Everything
// else (position ticks, queue snapshots) is high-volume and local-only;
// SSE already carries it to whichever process wants it.
var bridgedTypes = map[events.Type]bool{
	events.TypeFatalError:            true,
	events.TypeAudioDeviceLost:       true,
	events.TypeAudioDeviceReacquired: true,
}

const subject = "playbackcore.events"

// NATSBridge republishes bridgedTypes events from a local *events.Bus
// onto a NATS subject. If the NATS connection is unavailable at startup,
// or maxFailures consecutive publishes fail, it trips to a
// fallback mode that only logs — it never blocks or drops the local
// delivery the in-process bus already did.
type NATSBridge struct {
	conn   *nats.Conn
	logger zerolog.Logger
	nodeID string

	mu          sync.Mutex
	useFallback bool
	failCount   int
	maxFailures int
}

// NATSConfig holds the bridge's connection settings.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
	MaxFailures   int
}

// DefaultNATSConfig returns sane defaults for a local NATS deployment.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
		MaxFailures:   5,
	}
}

// NewNATSBridge connects to NATS and subscribes bus to forward
// bridgedTypes events. A connection failure is not fatal: the bridge
// starts in fallback mode and every publish is a local no-op beyond
// the logger.
func NewNATSBridge(cfg NATSConfig, bus *events.Bus, logger zerolog.Logger) *NATSBridge {
	nb := &NATSBridge{
		logger:      logger,
		nodeID:      nodeID(),
		maxFailures: cfg.MaxFailures,
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(fmt.Sprintf("playbackcore-%s", nb.nodeID)),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("nats connection failed, event bridge running fallback-only")
		nb.useFallback = true
	} else {
		nb.conn = conn
	}

	sub := bus.SubscribeAll()
	go nb.forward(sub)

	return nb
}

func (nb *NATSBridge) forward(sub events.Subscriber) {
	for ev := range sub {
		if !bridgedTypes[ev.Type] {
			continue
		}
		nb.publish(ev)
	}
}

func (nb *NATSBridge) publish(ev events.Event) {
	nb.mu.Lock()
	fallback := nb.useFallback
	nb.mu.Unlock()
	if fallback {
		nb.logger.Info().Str("event_type", string(ev.Type)).Msg("event bridge fallback: not forwarded to nats")
		return
	}

	msg := bridgedMessage{
		MessageID: uuid.New().String(),
		NodeID:    nb.nodeID,
		Event:     ev,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		nb.logger.Error().Err(err).Msg("marshal bridged event")
		return
	}
	if err := nb.conn.Publish(subject, data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(ev.Type)).Msg("publish to nats failed")
		nb.handleFailure()
		return
	}
	nb.mu.Lock()
	nb.failCount = 0
	nb.mu.Unlock()
}

func (nb *NATSBridge) handleFailure() {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	nb.failCount++
	if nb.failCount >= nb.maxFailures && !nb.useFallback {
		nb.logger.Warn().Int("fail_count", nb.failCount).Msg("nats failure threshold reached, switching to fallback")
		nb.useFallback = true
		if nb.conn != nil {
			nb.conn.Close()
		}
	}
}

// Close releases the NATS connection, if any.
func (nb *NATSBridge) Close() error {
	if nb.conn != nil {
		nb.conn.Close()
	}
	return nil
}

type bridgedMessage struct {
	MessageID string       `json:"message_id"`
	NodeID    string       `json:"node_id"`
	Event     events.Event `json:"event"`
}

func nodeID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
}
