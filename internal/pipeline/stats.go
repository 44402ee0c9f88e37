package pipeline

import (
	"sync/atomic"
	"time"
)

// Stats holds live counters written concurrently by the pipeline loops.
type Stats struct {
	FramesProduced       atomic.Uint64
	FramesDropped        atomic.Uint64
	FramesIngested       atomic.Uint64
	FramesSpeech         atomic.Uint64
	GateFailures         atomic.Uint64
	ProcessFailures      atomic.Uint64
	UtterancesSealed     atomic.Uint64
	UtterancesDiscarded  atomic.Uint64
	UtterancesDropped    atomic.Uint64
	UtterancesRecognized atomic.Uint64
	RecognitionFailures  atomic.Uint64
	EmptyResults         atomic.Uint64
	EmitFailures         atomic.Uint64
	CharsEmitted         atomic.Uint64
	LatencySum           atomic.Int64
	LatencyCount         atomic.Uint64
	CaptureRetries       atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats plus derived metrics.
type Snapshot struct {
	FramesProduced       uint64        `json:"frames_produced"`
	FramesDropped        uint64        `json:"frames_dropped"`
	FramesIngested       uint64        `json:"frames_ingested"`
	FramesSpeech         uint64        `json:"frames_speech"`
	GateFailures         uint64        `json:"gate_failures"`
	ProcessFailures      uint64        `json:"process_failures"`
	UtterancesSealed     uint64        `json:"utterances_sealed"`
	UtterancesDiscarded  uint64        `json:"utterances_discarded"`
	UtterancesDropped    uint64        `json:"utterances_dropped"`
	UtterancesRecognized uint64        `json:"utterances_recognized"`
	RecognitionFailures  uint64        `json:"recognition_failures"`
	EmptyResults         uint64        `json:"empty_results"`
	EmitFailures         uint64        `json:"emit_failures"`
	CharsEmitted         uint64        `json:"chars_emitted"`
	CaptureRetries       uint64        `json:"capture_retries"`
	RecognitionLatency   time.Duration `json:"recognition_latency_total"`
	Recognitions         uint64        `json:"recognitions"`

	GateFilterRatio           float64       `json:"gate_filter_ratio"`
	AverageRecognitionLatency time.Duration `json:"average_recognition_latency"`
}

func (s *Stats) observeLatency(d time.Duration) {
	s.LatencySum.Add(int64(d))
	s.LatencyCount.Add(1)
}

// Snapshot copies every counter. Counters are read individually, so a
// snapshot taken mid-session may be off by in-flight increments.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		FramesProduced:       s.FramesProduced.Load(),
		FramesDropped:        s.FramesDropped.Load(),
		FramesIngested:       s.FramesIngested.Load(),
		FramesSpeech:         s.FramesSpeech.Load(),
		GateFailures:         s.GateFailures.Load(),
		ProcessFailures:      s.ProcessFailures.Load(),
		UtterancesSealed:     s.UtterancesSealed.Load(),
		UtterancesDiscarded:  s.UtterancesDiscarded.Load(),
		UtterancesDropped:    s.UtterancesDropped.Load(),
		UtterancesRecognized: s.UtterancesRecognized.Load(),
		RecognitionFailures:  s.RecognitionFailures.Load(),
		EmptyResults:         s.EmptyResults.Load(),
		EmitFailures:         s.EmitFailures.Load(),
		CharsEmitted:         s.CharsEmitted.Load(),
		CaptureRetries:       s.CaptureRetries.Load(),
		RecognitionLatency:   time.Duration(s.LatencySum.Load()),
		Recognitions:         s.LatencyCount.Load(),
	}
	snap.derive()
	return snap
}

// derive fills the ratio fields from the raw counters.
func (s *Snapshot) derive() {
	if s.FramesIngested > 0 {
		filtered := s.FramesIngested - min(s.FramesSpeech, s.FramesIngested)
		s.GateFilterRatio = float64(filtered) / float64(s.FramesIngested)
	}
	if s.Recognitions > 0 {
		s.AverageRecognitionLatency = s.RecognitionLatency / time.Duration(s.Recognitions)
	}
}
