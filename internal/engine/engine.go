/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine is the top-level playback orchestrator: it owns the
// chain-assignment map, drives startup/shutdown, and translates queue
// and mixer events into the SSE event stream. It composes
// internal/decoder, internal/mixer, internal/output, internal/queue, and
// internal/degradation rather than implementing any of their policies
// itself.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir-playback/internal/decoder"
	"github.com/friendsincode/grimnir-playback/internal/degradation"
	"github.com/friendsincode/grimnir-playback/internal/events"
	"github.com/friendsincode/grimnir-playback/internal/mixer"
	"github.com/friendsincode/grimnir-playback/internal/models"
	"github.com/friendsincode/grimnir-playback/internal/output"
	"github.com/friendsincode/grimnir-playback/internal/queue"
	"github.com/friendsincode/grimnir-playback/internal/telemetry"
	"github.com/friendsincode/grimnir-playback/internal/tick"
)

const (
	skipCooldown            = 5 * time.Second
	completionPollInterval  = 20 * time.Millisecond
	outputFramesPerBuffer   = 1024

	// degradedFadeTicks is the substitute fade-in/fade-out duration baked
	// into a chain's Fader when the degradation ladder has disabled
	// crossfading (Mode2SinglePassageOnly): 250ms, short enough to avoid a
	// hard edit between sequential passages without requiring the mixer to
	// ever hold two sources open at once. Rate is divisible by 4 exactly,
	// so this is an exact quarter-second in ticks.
	degradedFadeTicks = tick.Rate / 4
)

// ErrQueueEmpty is returned by commands that require at least one queue entry.
var ErrQueueEmpty = errors.New("engine: queue is empty")

// ErrSkipCooldown is returned by Skip when called again before skipCooldown
// has elapsed since the last user-initiated skip.
var ErrSkipCooldown = errors.New("engine: skip cooldown active")

// ErrSeekInvalidState is returned by Seek outside Playing/Single.
var ErrSeekInvalidState = errors.New("engine: seek requires a single active source")

// ErrPauseInvalidState is returned by Pause outside Playing.
var ErrPauseInvalidState = errors.New("engine: pause requires the engine to be playing")

// ErrInvalidVolume is returned by SetVolume for values outside [0,1].
var ErrInvalidVolume = errors.New("engine: volume must be within [0,1]")

// Engine is the playback orchestrator described in package doc.
type Engine struct {
	db    *gorm.DB
	bus   *events.Bus
	queue *queue.Manager
	log   zerolog.Logger

	settings Settings
	bm       *decoder.BufferManager
	worker   *decoder.Worker
	mix      *mixer.Mixer
	device   *output.Device
	ladder   *degradation.Ladder

	mu       sync.Mutex
	state    State
	order    []models.QueueEntry         // play_order ascending snapshot
	assigned map[string]int              // queue_entry_id -> chain index
	timing   map[string]models.AppliedTiming
	ready    map[string]bool // queue_entry_id -> has ever reached ReadyForStart
	lastSkip time.Time

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New builds an Engine bound to db and bus. Call Start to bring it up.
func New(db *gorm.DB, bus *events.Bus, log zerolog.Logger) *Engine {
	return &Engine{
		db:       db,
		bus:      bus,
		queue:    queue.NewManager(db, log),
		log:      log,
		state:    StateStopped,
		assigned: make(map[string]int),
		timing:   make(map[string]models.AppliedTiming),
		ready:    make(map[string]bool),
	}
}

// Start runs the startup sequence: load settings, open the audio device,
// restore the queue and pre-fetch chains for its front entries, then
// enter Stopped awaiting an explicit play command.
func (e *Engine) Start(ctx context.Context) error {
	settings, err := LoadSettings(ctx, e.db)
	if err != nil {
		return fmt.Errorf("engine: load settings: %w", err)
	}
	e.settings = settings

	e.ladder = degradation.NewLadder(settings.MaximumDecodeStreams, e.onDegradationChange)
	e.bm = decoder.NewBufferManager(settings.MaximumDecodeStreams, settings.RingbufferSize, settings.RingbufferHeadroom, settings.MinPlaybackBuffer, e.log)
	e.worker = decoder.NewWorker(e.bm, settings.DecodeWorkPeriod, e.queuePositionOf, e.log)
	e.mix = mixer.New(settings.WorkingSampleRate, settings.BufferUnderrunRecoveryTimeout, e.onMixerUnderrun, e.log)

	device, err := output.New(settings.WorkingSampleRate, outputFramesPerBuffer, e.mix, e.onDeviceLost, e.onDeviceReacquired, e.log)
	if err != nil {
		return fmt.Errorf("engine: open audio device: %w", err)
	}
	e.device = device
	e.device.SetVolume(settings.Volume)

	valid, dropped, err := e.queue.LoadFromDB(ctx)
	if err != nil {
		return fmt.Errorf("engine: load queue: %w", err)
	}
	e.mu.Lock()
	e.order = valid
	e.mu.Unlock()

	bgCtx, cancel := context.WithCancel(context.Background())
	e.bgCancel = cancel
	e.spawn(func() { e.worker.Run(bgCtx) })
	e.spawn(func() { e.device.WatchLoss(bgCtx) })
	e.spawn(func() { e.bufferEventLoop(bgCtx) })
	e.spawn(func() { e.completionLoop(bgCtx) })
	e.spawn(func() { e.positionEmitter(bgCtx) })

	e.assignUnassigned(ctx)

	trigger := events.TriggerStartupRestore
	if dropped > 0 {
		trigger = events.TriggerCorruptionRecovery
	}
	e.publishQueueChanged(trigger)

	e.log.Info().Int("queue_len", len(valid)).Int("dropped", dropped).Msg("playback engine started")
	return nil
}

func (e *Engine) spawn(fn func()) {
	e.bgWG.Add(1)
	go func() {
		defer e.bgWG.Done()
		fn()
	}()
}

// Close stops all background loops and releases the audio device.
func (e *Engine) Close() error {
	if e.bgCancel != nil {
		e.bgCancel()
	}
	e.bgWG.Wait()
	if e.device != nil {
		return e.device.Close()
	}
	return nil
}

// State returns the engine's current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// ---- background loops ----

func (e *Engine) bufferEventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.bm.Events:
			if !ok {
				return
			}
			e.handleBufferEvent(ctx, ev)
		}
	}
}

func (e *Engine) handleBufferEvent(ctx context.Context, ev decoder.BufferEvent) {
	switch ev.Kind {
	case decoder.BufferReadyForStart:
		e.mu.Lock()
		e.ready[ev.EntryID] = true
		e.mu.Unlock()
		e.onReadyForStart(ctx, ev)

	case decoder.BufferUnderrun:
		e.ladder.RecordUnderrun()
		telemetry.BufferUnderrunsTotal.Inc()
		e.bus.Publish(events.Event{
			Type:           events.TypeBufferUnderrun,
			TimestampTicks: e.nowTicks(),
			Payload:        events.BufferUnderrunPayload{ChainIndex: ev.ChainIndex, QueueEntryID: ev.EntryID},
		})

	case decoder.BufferExhausted:
		e.onExhausted(ctx, ev)
	}
}

// onReadyForStart attaches the front entry to an idle mixer once its
// chain has buffered enough to play, or arms it as the incoming side of
// a crossfade once it is the entry immediately behind the current one.
func (e *Engine) onReadyForStart(ctx context.Context, ev decoder.BufferEvent) {
	e.mu.Lock()
	order := append([]models.QueueEntry(nil), e.order...)
	at := e.timing[ev.EntryID]
	e.mu.Unlock()

	if len(order) == 0 {
		return
	}

	if e.mix.State() == mixer.StateIdle {
		if order[0].ID == ev.EntryID && e.State() == StatePlaying {
			e.attachFront(ctx, order[0], at)
		}
		return
	}

	if e.mix.State() == mixer.StateSingle && len(order) > 1 && order[1].ID == ev.EntryID && !e.ladder.CrossfadeDisabled() {
		chain := e.chainFor(ev.EntryID)
		if chain == nil {
			return
		}
		_, end := e.frameBounds(at)
		e.mix.ArmIncoming(chain, ev.EntryID, end, e.leadInFrames(at))
	}
}

// onExhausted handles a chain whose ring reached EOF with nothing left to
// read. If its last decode unit panicked, the dedicated panic event fires
// instead of the generic decode-failed one; the ring was already flushed
// to EOF by the chain's own recovery, so playback of whatever buffered
// audio survives continues and the normal completion/advancement path
// below still applies. If the chain never reached ReadyForStart, too
// little of the file decoded to be worth playing; the entry is reported
// failed. If nothing has the chain attached to the mixer yet (it never
// got a chance to play), the entry is dropped and the queue advances
// without it.
func (e *Engine) onExhausted(ctx context.Context, ev decoder.BufferEvent) {
	e.mu.Lock()
	reachedReady := e.ready[ev.EntryID]
	delete(e.ready, ev.EntryID)
	e.mu.Unlock()

	chain := e.chainFor(ev.EntryID)
	panicked := chain != nil && chain.TakePanicked()

	switch {
	case panicked:
		e.bus.Publish(events.Event{
			Type:           events.TypePassageDecoderPanic,
			TimestampTicks: e.nowTicks(),
			Payload:        events.PassageDecoderPanicPayload{QueueEntryID: ev.EntryID},
		})
	case !reachedReady:
		e.bus.Publish(events.Event{
			Type:           events.TypePassageDecodeFailed,
			TimestampTicks: e.nowTicks(),
			Payload:        events.PassageDecodeFailedPayload{QueueEntryID: ev.EntryID, Reason: "less than half of the passage decoded before end of stream"},
		})
	}

	if chain == nil {
		return
	}
	if e.mix.State() != mixer.StateIdle {
		return // already attached; natural completion (PassageCompleted, then the next PassageStarted once the mixer actually transitions) flows through the mixer's completion path
	}

	e.releaseChain(ev.EntryID)
	if err := e.queue.Remove(ctx, ev.EntryID); err != nil && !errors.Is(err, queue.ErrEntryNotFound) {
		e.log.Error().Err(err).Str("queue_entry_id", ev.EntryID).Msg("failed to remove exhausted entry")
	}
	e.refreshOrder(ctx)
	e.assignUnassigned(ctx)
	e.startFrontIfPlaying(ctx)
	e.publishQueueChanged(events.TriggerRemove)
}

func (e *Engine) completionLoop(ctx context.Context) {
	ticker := time.NewTicker(completionPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if outgoingID, incomingID, ok := e.mix.TakeCrossfadeStarted(); ok {
				e.onCrossfadeStarted(outgoingID, incomingID)
			}
			if entryID, wasCrossfade, ok := e.mix.TakeCompleted(); ok {
				e.onCrossfadeCompleted(ctx, entryID, wasCrossfade)
			}
		}
	}
}

// onCrossfadeStarted fires the instant the mixer actually begins mixing
// the incoming source in (Single->Crossfading), whether triggered by the
// fade-out point or by a forced skip. This is the only place a crossfaded
// passage's PassageStarted event is published — arming alone does not
// start audible playback.
func (e *Engine) onCrossfadeStarted(outgoingEntryID, incomingEntryID string) {
	e.mu.Lock()
	at := e.timing[incomingEntryID]
	var passageID string
	for _, entry := range e.order {
		if entry.ID == incomingEntryID {
			passageID = entry.PassageID
			break
		}
	}
	e.mu.Unlock()

	e.bus.Publish(events.Event{
		Type:           events.TypePassageStarted,
		TimestampTicks: e.nowTicks(),
		Payload: events.PassageStartedPayload{
			QueueEntryID:  incomingEntryID,
			PassageID:     passageID,
			AppliedTiming: at,
			MixerStateContext: events.MixerStateContext{
				Crossfading: &events.CrossfadingContext{OutgoingEntryID: outgoingEntryID},
			},
		},
	})
}

// onCrossfadeCompleted retires a finished outgoing entry. wasCrossfade
// distinguishes the two ways a source finishes: true means the mixer
// actually crossfaded into the next source (Crossfading->Single, already
// playing uninterrupted, so only the next-next entry needs arming); false
// means a plain end-of-passage with no crossfade ever started (mixer now
// Idle), which needs the new front entry attached from scratch. Only the
// former is a genuine crossfade completion event.
func (e *Engine) onCrossfadeCompleted(ctx context.Context, entryID string, wasCrossfade bool) {
	e.releaseChain(entryID)
	if err := e.queue.Remove(ctx, entryID); err != nil && !errors.Is(err, queue.ErrEntryNotFound) {
		e.log.Error().Err(err).Str("queue_entry_id", entryID).Msg("failed to remove completed entry")
	}
	e.refreshOrder(ctx)
	e.assignUnassigned(ctx)

	e.bus.Publish(events.Event{
		Type:           events.TypePassageCompleted,
		TimestampTicks: e.nowTicks(),
		Payload:        events.PassageCompletedPayload{QueueEntryID: entryID},
	})

	if wasCrossfade {
		telemetry.CrossfadesTotal.Inc()
		e.mu.Lock()
		order := append([]models.QueueEntry(nil), e.order...)
		e.mu.Unlock()
		if len(order) > 0 {
			e.bus.Publish(events.Event{
				Type:           events.TypeCrossfadeCompleted,
				TimestampTicks: e.nowTicks(),
				Payload:        events.CrossfadeCompletedPayload{OutgoingEntryID: entryID, IncomingEntryID: order[0].ID},
			})
		}
		e.publishQueueChanged(events.TriggerRemove)
		e.armNextIncoming(ctx)
		return
	}

	e.publishQueueChanged(events.TriggerRemove)
	e.startFrontIfPlaying(ctx)
}

func (e *Engine) positionEmitter(ctx context.Context) {
	ticker := time.NewTicker(e.settings.PositionEventInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.ladder.MaybeStepUp()
			e.emitPosition()
		}
	}
}

func (e *Engine) emitPosition() {
	if e.State() != StatePlaying {
		return
	}
	entryID, frames, ok := e.mix.OutgoingPosition()
	if !ok {
		return
	}
	posTicks := tick.FromSamples(frames, e.settings.WorkingSampleRate)
	e.bus.Publish(events.Event{
		Type:           events.TypePlaybackProgress,
		TimestampTicks: e.nowTicks(),
		Payload:        events.PlaybackProgressPayload{QueueEntryID: entryID, PositionTicks: int64(posTicks)},
	})
}

// ---- device/degradation callbacks ----

func (e *Engine) onMixerUnderrun(chainIndex int) {
	e.bm.NotifyUnderrun(chainIndex)
}

func (e *Engine) onDegradationChange(old, new degradation.Mode) {
	telemetry.DegradationMode.Set(float64(new))
	e.log.Warn().Int("old_mode", int(old)).Int("new_mode", int(new)).Msg("degradation mode changed")
}

func (e *Engine) onDeviceLost() {
	e.bus.Publish(events.Event{Type: events.TypeAudioDeviceLost, TimestampTicks: e.nowTicks()})
}

func (e *Engine) onDeviceReacquired() {
	e.bus.Publish(events.Event{Type: events.TypeAudioDeviceReacquired, TimestampTicks: e.nowTicks()})
}

// ---- assignment & queue bookkeeping ----

// queuePositionOf implements decoder.QueuePositionFunc: the position of
// chain idx's assigned entry within the current play order, or -1 if the
// chain is unassigned.
func (e *Engine) queuePositionOf(idx int) int {
	entryID := e.bm.Chains()[idx].EntryID()
	if entryID == "" {
		return -1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, entry := range e.order {
		if entry.ID == entryID {
			return i
		}
	}
	return -1
}

// assignUnassigned allocates chains for queue entries, in play order, up
// to the degradation ladder's current active chain count, skipping
// entries that already have a chain.
func (e *Engine) assignUnassigned(ctx context.Context) {
	e.mu.Lock()
	order := append([]models.QueueEntry(nil), e.order...)
	e.mu.Unlock()

	limit := e.ladder.ActiveChainCount()
	for i, entry := range order {
		if i >= limit {
			break
		}
		e.mu.Lock()
		_, already := e.assigned[entry.ID]
		e.mu.Unlock()
		if already {
			continue
		}
		if err := e.assignChain(ctx, entry); err != nil {
			e.log.Warn().Err(err).Str("queue_entry_id", entry.ID).Msg("failed to assign decode chain")
		}
	}
}

func (e *Engine) assignChain(ctx context.Context, entry models.QueueEntry) error {
	path, at, err := e.resolveEntry(ctx, entry)
	if err != nil {
		return err
	}
	if e.ladder.CrossfadeDisabled() {
		at = degradedTiming(at)
	}
	chain, err := e.bm.Allocate()
	if err != nil {
		return err
	}
	if err := chain.Assign(entry.ID, path, e.settings.WorkingSampleRate, at); err != nil {
		e.bm.Release(chain.Index)
		e.bus.Publish(events.Event{
			Type:           events.TypePassageDecodeFailed,
			TimestampTicks: e.nowTicks(),
			Payload:        events.PassageDecodeFailedPayload{QueueEntryID: entry.ID, Reason: err.Error()},
		})
		return err
	}

	e.mu.Lock()
	e.assigned[entry.ID] = chain.Index
	e.timing[entry.ID] = at
	e.mu.Unlock()
	telemetry.ActiveDecodeChains.Inc()
	e.worker.Wake()
	return nil
}

func (e *Engine) resolveEntry(ctx context.Context, entry models.QueueEntry) (string, models.AppliedTiming, error) {
	var passage models.Passage
	if err := e.db.WithContext(ctx).Where("passage_id = ?", entry.PassageID).First(&passage).Error; err != nil {
		return "", models.AppliedTiming{}, fmt.Errorf("resolve entry %s: %w", entry.ID, err)
	}
	return passage.FilePath, models.ResolveAppliedTiming(&passage, entry.Overrides), nil
}

func (e *Engine) releaseChain(entryID string) {
	e.mu.Lock()
	idx, ok := e.assigned[entryID]
	if ok {
		delete(e.assigned, entryID)
		delete(e.timing, entryID)
		delete(e.ready, entryID)
	}
	e.mu.Unlock()
	if ok {
		e.bm.Release(idx)
		telemetry.ActiveDecodeChains.Dec()
	}
}

func (e *Engine) chainFor(entryID string) *decoder.Chain {
	e.mu.Lock()
	idx, ok := e.assigned[entryID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return e.bm.Chains()[idx]
}

func (e *Engine) refreshOrder(ctx context.Context) {
	entries, err := e.queue.List(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to refresh queue order")
		return
	}
	e.mu.Lock()
	e.order = entries
	e.mu.Unlock()
}

func (e *Engine) frameBounds(at models.AppliedTiming) (fadeOutStart, end int64) {
	rate := e.settings.WorkingSampleRate
	fadeOutStart = tick.Samples(tick.Tick(at.FadeOutStart-at.Start), rate)
	end = tick.Samples(tick.Tick(at.End-at.Start), rate)
	return
}

// leadInFrames returns how far into its own passage the incoming entry's
// lead-in point sits, in working-rate frames. This is how much earlier the
// outgoing source's fade-out trigger must fire so the crossfade overlap
// covers the incoming's lead-in, per the mixer-timing contract lead points
// govern.
func (e *Engine) leadInFrames(at models.AppliedTiming) int64 {
	rate := e.settings.WorkingSampleRate
	return tick.Samples(tick.Tick(at.LeadIn-at.Start), rate)
}

// degradedTiming substitutes a short fade-in/fade-out pair for a passage's
// configured fades, used when the degradation ladder has disabled
// crossfading and sequential playback needs something gentler than a hard
// cut between passages. It only shortens fades, never lengthens a fade that
// was already shorter than the substitute.
func degradedTiming(at models.AppliedTiming) models.AppliedTiming {
	if shortFadeIn := at.Start + degradedFadeTicks; shortFadeIn < at.FadeInEnd {
		at.FadeInEnd = shortFadeIn
	}
	if shortFadeOut := at.End - degradedFadeTicks; shortFadeOut > at.FadeOutStart {
		at.FadeOutStart = shortFadeOut
	}
	if at.FadeOutStart < at.FadeInEnd {
		at.FadeOutStart = at.FadeInEnd
	}
	return at
}

func (e *Engine) attachFront(ctx context.Context, entry models.QueueEntry, at models.AppliedTiming) {
	chain := e.chainFor(entry.ID)
	if chain == nil {
		return
	}
	fadeOutStart, end := e.frameBounds(at)
	e.mix.AttachSingle(chain, entry.ID, fadeOutStart, end)

	e.bus.Publish(events.Event{
		Type:           events.TypePassageStarted,
		TimestampTicks: e.nowTicks(),
		Payload: events.PassageStartedPayload{
			QueueEntryID:  entry.ID,
			PassageID:     entry.PassageID,
			AppliedTiming: at,
		},
	})

	e.armNextIncoming(ctx)
}

func (e *Engine) startFrontIfPlaying(ctx context.Context) {
	if e.State() != StatePlaying {
		return
	}
	e.mu.Lock()
	order := append([]models.QueueEntry(nil), e.order...)
	e.mu.Unlock()
	if len(order) == 0 {
		return
	}
	e.attachFront(ctx, order[0], e.timingFor(order[0].ID))
}

func (e *Engine) armNextIncoming(ctx context.Context) {
	e.mu.Lock()
	order := append([]models.QueueEntry(nil), e.order...)
	e.mu.Unlock()
	if e.mix.State() != mixer.StateSingle || len(order) < 2 || e.ladder.CrossfadeDisabled() {
		return
	}
	next := order[1]
	e.mu.Lock()
	ready := e.ready[next.ID]
	at := e.timing[next.ID]
	e.mu.Unlock()
	if !ready {
		return
	}
	chain := e.chainFor(next.ID)
	if chain == nil {
		return
	}
	_, end := e.frameBounds(at)
	e.mix.ArmIncoming(chain, next.ID, end, e.leadInFrames(at))
}

func (e *Engine) timingFor(entryID string) models.AppliedTiming {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timing[entryID]
}

func (e *Engine) publishQueueChanged(trigger events.QueueChangedTrigger) {
	e.mu.Lock()
	entries := append([]models.QueueEntry(nil), e.order...)
	e.mu.Unlock()
	e.bus.Publish(events.Event{
		Type:           events.TypeQueueChanged,
		TimestampTicks: e.nowTicks(),
		Payload:        events.QueueChangedPayload{Trigger: trigger, Entries: entries},
	})
}

func (e *Engine) publishStateChanged() {
	e.bus.Publish(events.Event{
		Type:           events.TypePlaybackStateChanged,
		TimestampTicks: e.nowTicks(),
		Payload:        events.PlaybackStateChangedPayload{State: string(e.State())},
	})
}

func (e *Engine) nowTicks() int64 {
	t, _ := tick.FromSeconds(float64(time.Now().UnixNano()) / 1e9)
	return int64(t)
}
