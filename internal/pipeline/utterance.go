package pipeline

import (
	"time"

	"github.com/rbright/parla/internal/audio"
)

// SealReason records why an utterance was closed.
type SealReason string

const (
	SealSilence     SealReason = "silence"
	SealMaxDuration SealReason = "max_duration"
	SealFlush       SealReason = "flush"
)

// Utterance is a run of speech frames handed to the recognizer as one unit.
// It is mutated only by the ingest loop until sealed, and read-only after.
type Utterance struct {
	Seq      uint64
	Frames   []audio.Frame
	Duration time.Duration
	OpenedAt time.Time
	SealedAt time.Time
	Reason   SealReason
}

// batcher groups classified frames into utterances.
type batcher struct {
	silenceClose time.Duration
	maxDuration  time.Duration
	now          func() time.Time

	open       *Utterance
	silenceRun time.Duration
}

func newBatcher(silenceClose, maxDuration time.Duration) *batcher {
	return &batcher{silenceClose: silenceClose, maxDuration: maxDuration, now: time.Now}
}

// Push feeds one classified frame and returns any utterances it sealed, in
// order. At most two utterances are sealed by a single frame.
func (b *batcher) Push(frame audio.Frame, speech bool) []*Utterance {
	var sealed []*Utterance

	if !speech {
		if b.open == nil {
			return nil
		}
		b.silenceRun += frame.Duration
		if b.silenceRun > b.silenceClose {
			sealed = append(sealed, b.seal(SealSilence))
		}
		return sealed
	}

	b.silenceRun = 0
	if b.open != nil && b.maxDuration > 0 && b.open.Duration+frame.Duration > b.maxDuration {
		sealed = append(sealed, b.seal(SealMaxDuration))
	}
	if b.open == nil {
		b.open = &Utterance{OpenedAt: b.now()}
	}
	b.open.Frames = append(b.open.Frames, frame)
	b.open.Duration += frame.Duration
	if b.maxDuration > 0 && b.open.Duration >= b.maxDuration {
		sealed = append(sealed, b.seal(SealMaxDuration))
	}
	return sealed
}

// Flush seals the open utterance, if any.
func (b *batcher) Flush() *Utterance {
	if b.open == nil {
		return nil
	}
	return b.seal(SealFlush)
}

// Discard drops the open utterance and reports whether one existed.
func (b *batcher) Discard() bool {
	had := b.open != nil
	b.open = nil
	b.silenceRun = 0
	return had
}

func (b *batcher) seal(reason SealReason) *Utterance {
	u := b.open
	u.SealedAt = b.now()
	u.Reason = reason
	b.open = nil
	b.silenceRun = 0
	return u
}
