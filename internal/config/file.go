package config

import "strings"

// fileConfig mirrors the on-disk layout for both JSONC and YAML. Pointer
// fields distinguish "absent" from zero values so defaults survive.
type fileConfig struct {
	Audio      *fileAudio      `json:"audio" yaml:"audio"`
	Gate       *fileGate       `json:"gate" yaml:"gate"`
	Pipeline   *filePipeline   `json:"pipeline" yaml:"pipeline"`
	Recognizer *fileRecognizer `json:"recognizer" yaml:"recognizer"`
	Output     *fileOutput     `json:"output" yaml:"output"`
	Indicator  *fileIndicator  `json:"indicator" yaml:"indicator"`
	History    *fileHistory    `json:"history" yaml:"history"`
	Events     *fileEvents     `json:"events" yaml:"events"`
	Metrics    *fileMetrics    `json:"metrics" yaml:"metrics"`
	Debug      *fileDebug      `json:"debug" yaml:"debug"`
}

type fileAudio struct {
	Backend    *string `json:"backend" yaml:"backend"`
	Input      *string `json:"input" yaml:"input"`
	Fallback   *string `json:"fallback" yaml:"fallback"`
	SampleRate *int    `json:"sample_rate" yaml:"sample_rate"`
	Channels   *int    `json:"channels" yaml:"channels"`
	FrameMS    *int    `json:"frame_ms" yaml:"frame_ms"`
	Command    *string `json:"command,omitempty" yaml:"command,omitempty"`
	File       *string `json:"file" yaml:"file"`
	Realtime   *bool   `json:"realtime" yaml:"realtime"`
}

type fileGate struct {
	Enable           *bool    `json:"enabled" yaml:"enabled"`
	SpeechThreshold  *float64 `json:"speech_threshold" yaml:"speech_threshold"`
	SilenceThreshold *float64 `json:"silence_threshold" yaml:"silence_threshold"`
	OnsetFrames      *int     `json:"onset_frames" yaml:"onset_frames"`
	HangoverFrames   *int     `json:"hangover_frames" yaml:"hangover_frames"`
}

type filePipeline struct {
	QueueCapacity     *int     `json:"queue_capacity" yaml:"queue_capacity"`
	DispatchCapacity  *int     `json:"dispatch_capacity" yaml:"dispatch_capacity"`
	SilenceCloseMS    *int     `json:"silence_close_ms" yaml:"silence_close_ms"`
	MaxUtteranceMS    *int     `json:"max_utterance_ms" yaml:"max_utterance_ms"`
	MinUtteranceMS    *int     `json:"min_utterance_ms" yaml:"min_utterance_ms"`
	StartTimeoutMS    *int     `json:"start_timeout_ms" yaml:"start_timeout_ms"`
	ShutdownTimeoutMS *int     `json:"shutdown_timeout_ms" yaml:"shutdown_timeout_ms"`
	TrimSilence       *bool    `json:"trim_silence" yaml:"trim_silence"`
	TrimThresholdDB   *float64 `json:"trim_threshold_db" yaml:"trim_threshold_db"`
	TrimMinMS         *int     `json:"trim_min_ms" yaml:"trim_min_ms"`
}

type fileRecognizer struct {
	Backend   *string `json:"backend" yaml:"backend"`
	Model     *string `json:"model" yaml:"model"`
	Language  *string `json:"language" yaml:"language"`
	Threads   *int    `json:"threads" yaml:"threads"`
	Command   *string `json:"command,omitempty" yaml:"command,omitempty"`
	Address   *string `json:"address" yaml:"address"`
	TimeoutMS *int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type fileOutput struct {
	Backend          *string `json:"backend" yaml:"backend"`
	TypingDelayMS    *int    `json:"typing_delay_ms" yaml:"typing_delay_ms"`
	AddSpaceAfter    *bool   `json:"add_space_after" yaml:"add_space_after"`
	Capitalize       *bool   `json:"capitalize" yaml:"capitalize"`
	StripAnnotations *bool   `json:"strip_annotations" yaml:"strip_annotations"`
	ClipboardCmd     *string `json:"clipboard_cmd,omitempty" yaml:"clipboard_cmd,omitempty"`
	PasteCmd         *string `json:"paste_cmd,omitempty" yaml:"paste_cmd,omitempty"`
	PasteShortcut    *string `json:"paste_shortcut" yaml:"paste_shortcut"`
}

type fileIndicator struct {
	Enable         *bool   `json:"enable" yaml:"enable"`
	Backend        *string `json:"backend" yaml:"backend"`
	DesktopAppName *string `json:"desktop_app_name" yaml:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable" yaml:"sound_enable"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms" yaml:"error_timeout_ms"`
	TextListening  *string `json:"text_listening" yaml:"text_listening"`
	TextError      *string `json:"text_error" yaml:"text_error"`
}

type fileHistory struct {
	Enable *bool   `json:"enable" yaml:"enable"`
	Path   *string `json:"path" yaml:"path"`
	Retain *int    `json:"retain" yaml:"retain"`
}

type fileEvents struct {
	Enable  *bool   `json:"enable" yaml:"enable"`
	URL     *string `json:"url" yaml:"url"`
	Subject *string `json:"subject" yaml:"subject"`
}

type fileMetrics struct {
	Enable *bool   `json:"enable" yaml:"enable"`
	Listen *string `json:"listen" yaml:"listen"`
}

type fileDebug struct {
	LogLevel       *string `json:"log_level" yaml:"log_level"`
	DumpUtterances *bool   `json:"dump_utterances" yaml:"dump_utterances"`
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setCommand(key string, dst *CommandConfig, src *string) error {
	if src == nil {
		return nil
	}
	cmd, err := parseCommand(key, *src)
	if err != nil {
		return err
	}
	*dst = cmd
	return nil
}

func (payload fileConfig) applyTo(cfg *Config) error {
	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Backend, a.Backend)
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
		set(&cfg.Audio.SampleRate, a.SampleRate)
		set(&cfg.Audio.Channels, a.Channels)
		set(&cfg.Audio.FrameMS, a.FrameMS)
		setString(&cfg.Audio.File, a.File)
		set(&cfg.Audio.Realtime, a.Realtime)
		if err := setCommand("audio.command", &cfg.Audio.Command, a.Command); err != nil {
			return err
		}
	}

	if g := payload.Gate; g != nil {
		set(&cfg.Gate.Enable, g.Enable)
		set(&cfg.Gate.SpeechThreshold, g.SpeechThreshold)
		set(&cfg.Gate.SilenceThreshold, g.SilenceThreshold)
		set(&cfg.Gate.OnsetFrames, g.OnsetFrames)
		set(&cfg.Gate.HangoverFrames, g.HangoverFrames)
	}

	if p := payload.Pipeline; p != nil {
		set(&cfg.Pipeline.QueueCapacity, p.QueueCapacity)
		set(&cfg.Pipeline.DispatchCapacity, p.DispatchCapacity)
		set(&cfg.Pipeline.SilenceCloseMS, p.SilenceCloseMS)
		set(&cfg.Pipeline.MaxUtteranceMS, p.MaxUtteranceMS)
		set(&cfg.Pipeline.MinUtteranceMS, p.MinUtteranceMS)
		set(&cfg.Pipeline.StartTimeoutMS, p.StartTimeoutMS)
		set(&cfg.Pipeline.ShutdownTimeoutMS, p.ShutdownTimeoutMS)
		set(&cfg.Pipeline.TrimSilence, p.TrimSilence)
		set(&cfg.Pipeline.TrimThresholdDB, p.TrimThresholdDB)
		set(&cfg.Pipeline.TrimMinMS, p.TrimMinMS)
	}

	if r := payload.Recognizer; r != nil {
		setString(&cfg.Recognizer.Backend, r.Backend)
		setString(&cfg.Recognizer.Model, r.Model)
		setString(&cfg.Recognizer.Language, r.Language)
		set(&cfg.Recognizer.Threads, r.Threads)
		setString(&cfg.Recognizer.Address, r.Address)
		set(&cfg.Recognizer.TimeoutMS, r.TimeoutMS)
		if err := setCommand("recognizer.command", &cfg.Recognizer.Command, r.Command); err != nil {
			return err
		}
	}

	if o := payload.Output; o != nil {
		setString(&cfg.Output.Backend, o.Backend)
		set(&cfg.Output.TypingDelayMS, o.TypingDelayMS)
		set(&cfg.Output.AddSpaceAfter, o.AddSpaceAfter)
		set(&cfg.Output.Capitalize, o.Capitalize)
		set(&cfg.Output.StripAnnotations, o.StripAnnotations)
		setString(&cfg.Output.PasteShortcut, o.PasteShortcut)
		if err := setCommand("output.clipboard_cmd", &cfg.Output.ClipboardCmd, o.ClipboardCmd); err != nil {
			return err
		}
		if err := setCommand("output.paste_cmd", &cfg.Output.PasteCmd, o.PasteCmd); err != nil {
			return err
		}
	}

	if i := payload.Indicator; i != nil {
		set(&cfg.Indicator.Enable, i.Enable)
		setString(&cfg.Indicator.Backend, i.Backend)
		setString(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		set(&cfg.Indicator.SoundEnable, i.SoundEnable)
		set(&cfg.Indicator.ErrorTimeoutMS, i.ErrorTimeoutMS)
		setString(&cfg.Indicator.TextListening, i.TextListening)
		setString(&cfg.Indicator.TextError, i.TextError)
	}

	if h := payload.History; h != nil {
		set(&cfg.History.Enable, h.Enable)
		setString(&cfg.History.Path, h.Path)
		set(&cfg.History.Retain, h.Retain)
	}

	if e := payload.Events; e != nil {
		set(&cfg.Events.Enable, e.Enable)
		setString(&cfg.Events.URL, e.URL)
		setString(&cfg.Events.Subject, e.Subject)
	}

	if m := payload.Metrics; m != nil {
		set(&cfg.Metrics.Enable, m.Enable)
		setString(&cfg.Metrics.Listen, m.Listen)
	}

	if d := payload.Debug; d != nil {
		setString(&cfg.Debug.LogLevel, d.LogLevel)
		set(&cfg.Debug.DumpUtterances, d.DumpUtterances)
	}

	return nil
}
