/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package events implements the in-process broadcast bus carrying the
// typed playback event union out to SSE clients and internal observers
// (telemetry, the degradation ladder).
package events

import "sync"

// Type enumerates the event categories an SSE client or internal
// observer can subscribe to.
type Type string

const (
	TypePassageStarted        Type = "PassageStarted"
	TypePassageCompleted      Type = "PassageCompleted"
	TypePassageDecodeFailed   Type = "PassageDecodeFailed"
	TypePassageDecoderPanic   Type = "PassageDecoderPanic"
	TypePlaybackProgress      Type = "PlaybackProgress"
	TypePlaybackStateChanged  Type = "PlaybackStateChanged"
	TypeQueueChanged          Type = "QueueChanged"
	TypeVolumeChanged         Type = "VolumeChanged"
	TypeCrossfadeCompleted    Type = "CrossfadeCompleted"
	TypeBufferUnderrun        Type = "BufferUnderrun"
	TypeAudioDeviceLost       Type = "AudioDeviceLost"
	TypeAudioDeviceReacquired Type = "AudioDeviceReacquired"
	TypeFatalError            Type = "FatalError"
)

// Event is the tagged union delivered to subscribers: Type selects which
// concrete payload struct (see payloads.go) is stored in Payload.
type Event struct {
	Type           Type  `json:"event_type"`
	TimestampTicks int64 `json:"timestamp_ticks"`
	Payload        any   `json:"payload"`
}

// Subscriber receives events of the type(s) it was registered for.
type Subscriber chan Event

const subscriberBuffer = 32

// wildcard is the internal key under which SubscribeAll registers its
// subscriber, so Publish only has one extra map lookup to make.
const wildcard Type = ""

// Bus is a simple in-process pub/sub broadcasting Events FIFO per
// subscriber within a type, with no ordering guarantee across types.
type Bus struct {
	mu   sync.RWMutex
	subs map[Type][]Subscriber
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Type][]Subscriber)}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(t Type) Subscriber {
	return b.subscribe(t)
}

// SubscribeAll registers a subscriber for every event type — the mode
// the SSE handler uses, since a reconnecting client re-fetches state
// rather than replaying a filtered history.
func (b *Bus) SubscribeAll() Subscriber {
	return b.subscribe(wildcard)
}

func (b *Bus) subscribe(t Type) Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	b.mu.Lock()
	b.subs[t] = append(b.subs[t], ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers ev to every subscriber of ev.Type and every
// SubscribeAll subscriber, dropping it for any subscriber whose buffer
// is full rather than blocking the publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	typed := append([]Subscriber(nil), b.subs[ev.Type]...)
	all := append([]Subscriber(nil), b.subs[wildcard]...)
	b.mu.RUnlock()

	for _, sub := range typed {
		select {
		case sub <- ev:
		default:
		}
	}
	for _, sub := range all {
		select {
		case sub <- ev:
		default:
		}
	}
}

// Unsubscribe removes sub from t's (or the wildcard's) subscriber list
// and closes its channel.
func (b *Bus) Unsubscribe(t Type, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[t]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[t] = subs
	close(sub)
}
