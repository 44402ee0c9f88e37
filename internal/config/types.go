// Package config resolves, parses, validates, and defaults parla configuration.
package config

// Config is the fully materialized runtime configuration used by parla.
type Config struct {
	Audio      AudioConfig
	Gate       GateConfig
	Pipeline   PipelineConfig
	Recognizer RecognizerConfig
	Output     OutputConfig
	Indicator  IndicatorConfig
	History    HistoryConfig
	Events     EventsConfig
	Metrics    MetricsConfig
	Debug      DebugConfig
}

// AudioConfig selects the capture backend and frame shape.
type AudioConfig struct {
	// Backend is "auto" or one of pulse, portaudio, exec, file.
	Backend    string
	Input      string
	Fallback   string
	SampleRate int
	Channels   int
	FrameMS    int
	// Command streams raw s16le for the exec backend.
	Command CommandConfig
	// File is replayed by the file backend; Realtime paces it at capture speed.
	File     string
	Realtime bool
}

// GateConfig tunes the RMS activity gate. Disabled means every frame is speech.
type GateConfig struct {
	Enable           bool
	SpeechThreshold  float64
	SilenceThreshold float64
	OnsetFrames      int
	HangoverFrames   int
}

// PipelineConfig bounds queues and utterance timing.
type PipelineConfig struct {
	QueueCapacity     int
	DispatchCapacity  int
	SilenceCloseMS    int
	MaxUtteranceMS    int
	MinUtteranceMS    int
	StartTimeoutMS    int
	ShutdownTimeoutMS int
	// TrimSilence cuts quiet frames from both ends of each utterance before
	// recognition.
	TrimSilence     bool
	TrimThresholdDB float64
	TrimMinMS       int
}

// RecognizerConfig selects the speech recognizer.
type RecognizerConfig struct {
	// Backend is "auto" or one of whisper, remote, exec.
	Backend   string
	Model     string
	Language  string
	Threads   int
	Command   CommandConfig
	Address   string
	TimeoutMS int
}

// OutputConfig controls how recognized text reaches the focused window.
type OutputConfig struct {
	// Backend is "auto" or one of ydotool, xdotool, wtype, paste, stdout.
	Backend          string
	TypingDelayMS    int
	AddSpaceAfter    bool
	Capitalize       bool
	StripAnnotations bool
	ClipboardCmd     CommandConfig
	PasteCmd         CommandConfig
	PasteShortcut    string
}

// IndicatorConfig controls notifications and audio cues.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	DesktopAppName string
	SoundEnable    bool
	ErrorTimeoutMS int
	TextListening  string
	TextError      string
}

// HistoryConfig controls the local session summary store.
type HistoryConfig struct {
	Enable bool
	Path   string
	Retain int
}

// EventsConfig controls NATS session lifecycle events.
type EventsConfig struct {
	Enable  bool
	URL     string
	Subject string
}

// MetricsConfig controls the Prometheus endpoint served during a session.
type MetricsConfig struct {
	Enable bool
	Listen string
}

// DebugConfig holds troubleshooting switches.
type DebugConfig struct {
	LogLevel       string
	DumpUtterances bool
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning captures non-fatal config parse or validation findings.
type Warning struct {
	Line    int
	Message string
}
