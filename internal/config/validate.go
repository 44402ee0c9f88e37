package config

import (
	"fmt"
	"slices"
	"strings"
)

var (
	audioBackends      = []string{"auto", "pulse", "portaudio", "exec", "file"}
	recognizerBackends = []string{"auto", "whisper", "remote", "exec"}
	outputBackends     = []string{"auto", "ydotool", "xdotool", "wtype", "paste", "stdout"}
	indicatorBackends  = []string{"desktop", "hypr"}
	logLevels          = []string{"debug", "info", "warn", "error"}
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if err := oneOf("audio.backend", cfg.Audio.Backend, audioBackends); err != nil {
		return nil, err
	}
	if cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 48000 {
		return nil, fmt.Errorf("audio.sample_rate must be between 8000 and 48000")
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		return nil, fmt.Errorf("audio.channels must be 1 or 2")
	}
	if cfg.Audio.FrameMS < 10 || cfg.Audio.FrameMS > 100 {
		return nil, fmt.Errorf("audio.frame_ms must be between 10 and 100")
	}
	if normalized(cfg.Audio.Backend) == "exec" && len(cfg.Audio.Command.Argv) == 0 {
		return nil, fmt.Errorf("audio.command must not be empty when audio.backend=exec")
	}
	if normalized(cfg.Audio.Backend) == "file" && strings.TrimSpace(cfg.Audio.File) == "" {
		return nil, fmt.Errorf("audio.file must be set when audio.backend=file")
	}

	if cfg.Gate.Enable {
		if cfg.Gate.SpeechThreshold <= 0 || cfg.Gate.SpeechThreshold >= 1 {
			return nil, fmt.Errorf("gate.speech_threshold must be in (0,1)")
		}
		if cfg.Gate.SilenceThreshold <= 0 || cfg.Gate.SilenceThreshold > cfg.Gate.SpeechThreshold {
			return nil, fmt.Errorf("gate.silence_threshold must be in (0, speech_threshold]")
		}
		if cfg.Gate.OnsetFrames < 1 {
			return nil, fmt.Errorf("gate.onset_frames must be >= 1")
		}
		if cfg.Gate.HangoverFrames < 0 {
			return nil, fmt.Errorf("gate.hangover_frames must be >= 0")
		}
	}

	p := cfg.Pipeline
	switch {
	case p.QueueCapacity < 1:
		return nil, fmt.Errorf("pipeline.queue_capacity must be >= 1")
	case p.DispatchCapacity < 1:
		return nil, fmt.Errorf("pipeline.dispatch_capacity must be >= 1")
	case p.SilenceCloseMS <= 0:
		return nil, fmt.Errorf("pipeline.silence_close_ms must be > 0")
	case p.MaxUtteranceMS <= 0:
		return nil, fmt.Errorf("pipeline.max_utterance_ms must be > 0")
	case p.MinUtteranceMS < 0 || p.MinUtteranceMS >= p.MaxUtteranceMS:
		return nil, fmt.Errorf("pipeline.min_utterance_ms must be >= 0 and below max_utterance_ms")
	case p.StartTimeoutMS <= 0:
		return nil, fmt.Errorf("pipeline.start_timeout_ms must be > 0")
	case p.ShutdownTimeoutMS <= 0:
		return nil, fmt.Errorf("pipeline.shutdown_timeout_ms must be > 0")
	}
	if p.TrimSilence {
		if p.TrimThresholdDB < -100 || p.TrimThresholdDB >= 0 {
			return nil, fmt.Errorf("pipeline.trim_threshold_db must be in [-100,0)")
		}
		if p.TrimMinMS < 0 {
			return nil, fmt.Errorf("pipeline.trim_min_ms must be >= 0")
		}
	}
	if p.SilenceCloseMS >= p.MaxUtteranceMS {
		warnings = append(warnings, Warning{Message: "pipeline.silence_close_ms >= max_utterance_ms; utterances will only seal at the duration cap"})
	}
	if p.QueueCapacity*cfg.Audio.FrameMS < 1000 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("pipeline.queue_capacity holds only %dms of audio; slow gates will drop frames", p.QueueCapacity*cfg.Audio.FrameMS)})
	}

	r := cfg.Recognizer
	if err := oneOf("recognizer.backend", r.Backend, recognizerBackends); err != nil {
		return nil, err
	}
	if r.Threads < 0 {
		return nil, fmt.Errorf("recognizer.threads must be >= 0")
	}
	if r.TimeoutMS < 0 {
		return nil, fmt.Errorf("recognizer.timeout_ms must be >= 0")
	}
	switch normalized(r.Backend) {
	case "whisper":
		if r.Model == "" {
			return nil, fmt.Errorf("recognizer.model must be set when recognizer.backend=whisper")
		}
	case "remote":
		if r.Address == "" {
			return nil, fmt.Errorf("recognizer.address must be set when recognizer.backend=remote")
		}
	case "exec":
		if len(r.Command.Argv) == 0 {
			return nil, fmt.Errorf("recognizer.command must be set when recognizer.backend=exec")
		}
	}

	o := cfg.Output
	if err := oneOf("output.backend", o.Backend, outputBackends); err != nil {
		return nil, err
	}
	if o.TypingDelayMS < 0 {
		return nil, fmt.Errorf("output.typing_delay_ms must be >= 0")
	}
	if o.PasteCmd.Raw != "" && len(o.PasteCmd.Argv) == 0 {
		return nil, fmt.Errorf("output.paste_cmd is configured but empty")
	}
	if len(o.PasteCmd.Argv) == 0 && o.PasteShortcut == "" {
		return nil, fmt.Errorf("output.paste_shortcut must not be empty when output.paste_cmd is unset")
	}

	if err := oneOf("indicator.backend", cfg.Indicator.Backend, indicatorBackends); err != nil {
		return nil, err
	}
	if normalized(cfg.Indicator.Backend) == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if cfg.History.Retain < 0 {
		return nil, fmt.Errorf("history.retain must be >= 0")
	}

	if cfg.Events.Enable {
		if cfg.Events.URL == "" {
			return nil, fmt.Errorf("events.url must be set when events.enable=true")
		}
		if cfg.Events.Subject == "" {
			return nil, fmt.Errorf("events.subject must be set when events.enable=true")
		}
	}

	if cfg.Metrics.Enable && cfg.Metrics.Listen == "" {
		return nil, fmt.Errorf("metrics.listen must be set when metrics.enable=true")
	}

	if err := oneOf("debug.log_level", cfg.Debug.LogLevel, logLevels); err != nil {
		return nil, err
	}
	if cfg.Debug.DumpUtterances {
		warnings = append(warnings, Warning{Message: "debug.dump_utterances is enabled; utterance audio is written to disk"})
	}

	return warnings, nil
}

func oneOf(key string, value string, allowed []string) error {
	value = normalized(value)
	if value == "" {
		return fmt.Errorf("%s must not be empty", key)
	}
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%s must be one of: %s", key, strings.Join(allowed, ", "))
	}
	return nil
}

func normalized(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
