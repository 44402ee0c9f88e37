package config

// DefaultAudioCommand records raw s16le PCM from the default Pulse/PipeWire source.
const DefaultAudioCommand = "parecord --raw --format=s16le --rate={rate} --channels={channels}"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Backend:    "auto",
			Input:      "default",
			Fallback:   "default",
			SampleRate: 16000,
			Channels:   1,
			FrameMS:    20,
			Command:    CommandConfig{Raw: DefaultAudioCommand, Argv: mustParseArgv(DefaultAudioCommand)},
		},
		Gate: GateConfig{
			Enable:           true,
			SpeechThreshold:  0.015,
			SilenceThreshold: 0.008,
			OnsetFrames:      2,
			HangoverFrames:   10,
		},
		Pipeline: PipelineConfig{
			QueueCapacity:     150,
			DispatchCapacity:  2,
			SilenceCloseMS:    1000,
			MaxUtteranceMS:    30000,
			MinUtteranceMS:    200,
			StartTimeoutMS:    5000,
			ShutdownTimeoutMS: 5000,
			TrimThresholdDB:   -40,
			TrimMinMS:         100,
		},
		Recognizer: RecognizerConfig{
			Backend:   "auto",
			Language:  "en",
			Threads:   4,
			Address:   "127.0.0.1:50051",
			TimeoutMS: 20000,
		},
		Output: OutputConfig{
			Backend:          "auto",
			TypingDelayMS:    12,
			AddSpaceAfter:    true,
			Capitalize:       true,
			StripAnnotations: true,
			PasteShortcut:    "CTRL,V",
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "desktop",
			DesktopAppName: "parla",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
			TextListening:  "Listening",
			TextError:      "Dictation error",
		},
		History: HistoryConfig{
			Enable: true,
			Retain: 500,
		},
		Events: EventsConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "parla.session",
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
		Debug: DebugConfig{
			LogLevel: "info",
		},
	}
}
