package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Render encodes cfg in the on-disk layout, so the output is itself a valid
// config file. JSONC output is plain indented JSON.
func Render(cfg Config, format Format) ([]byte, error) {
	payload := fromConfig(cfg)
	if format == FormatYAML {
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(payload); err != nil {
			return nil, fmt.Errorf("encode yaml config: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml config: %w", err)
		}
		return buf.Bytes(), nil
	}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json config: %w", err)
	}
	return append(out, '\n'), nil
}

func ptr[T any](v T) *T { return &v }

func commandRaw(cmd CommandConfig) *string {
	if cmd.Raw == "" {
		return nil
	}
	return ptr(cmd.Raw)
}

func fromConfig(cfg Config) fileConfig {
	return fileConfig{
		Audio: &fileAudio{
			Backend:    ptr(cfg.Audio.Backend),
			Input:      ptr(cfg.Audio.Input),
			Fallback:   ptr(cfg.Audio.Fallback),
			SampleRate: ptr(cfg.Audio.SampleRate),
			Channels:   ptr(cfg.Audio.Channels),
			FrameMS:    ptr(cfg.Audio.FrameMS),
			Command:    commandRaw(cfg.Audio.Command),
			File:       ptr(cfg.Audio.File),
			Realtime:   ptr(cfg.Audio.Realtime),
		},
		Gate: &fileGate{
			Enable:           ptr(cfg.Gate.Enable),
			SpeechThreshold:  ptr(cfg.Gate.SpeechThreshold),
			SilenceThreshold: ptr(cfg.Gate.SilenceThreshold),
			OnsetFrames:      ptr(cfg.Gate.OnsetFrames),
			HangoverFrames:   ptr(cfg.Gate.HangoverFrames),
		},
		Pipeline: &filePipeline{
			QueueCapacity:     ptr(cfg.Pipeline.QueueCapacity),
			DispatchCapacity:  ptr(cfg.Pipeline.DispatchCapacity),
			SilenceCloseMS:    ptr(cfg.Pipeline.SilenceCloseMS),
			MaxUtteranceMS:    ptr(cfg.Pipeline.MaxUtteranceMS),
			MinUtteranceMS:    ptr(cfg.Pipeline.MinUtteranceMS),
			StartTimeoutMS:    ptr(cfg.Pipeline.StartTimeoutMS),
			ShutdownTimeoutMS: ptr(cfg.Pipeline.ShutdownTimeoutMS),
			TrimSilence:       ptr(cfg.Pipeline.TrimSilence),
			TrimThresholdDB:   ptr(cfg.Pipeline.TrimThresholdDB),
			TrimMinMS:         ptr(cfg.Pipeline.TrimMinMS),
		},
		Recognizer: &fileRecognizer{
			Backend:   ptr(cfg.Recognizer.Backend),
			Model:     ptr(cfg.Recognizer.Model),
			Language:  ptr(cfg.Recognizer.Language),
			Threads:   ptr(cfg.Recognizer.Threads),
			Command:   commandRaw(cfg.Recognizer.Command),
			Address:   ptr(cfg.Recognizer.Address),
			TimeoutMS: ptr(cfg.Recognizer.TimeoutMS),
		},
		Output: &fileOutput{
			Backend:          ptr(cfg.Output.Backend),
			TypingDelayMS:    ptr(cfg.Output.TypingDelayMS),
			AddSpaceAfter:    ptr(cfg.Output.AddSpaceAfter),
			Capitalize:       ptr(cfg.Output.Capitalize),
			StripAnnotations: ptr(cfg.Output.StripAnnotations),
			ClipboardCmd:     commandRaw(cfg.Output.ClipboardCmd),
			PasteCmd:         commandRaw(cfg.Output.PasteCmd),
			PasteShortcut:    ptr(cfg.Output.PasteShortcut),
		},
		Indicator: &fileIndicator{
			Enable:         ptr(cfg.Indicator.Enable),
			Backend:        ptr(cfg.Indicator.Backend),
			DesktopAppName: ptr(cfg.Indicator.DesktopAppName),
			SoundEnable:    ptr(cfg.Indicator.SoundEnable),
			ErrorTimeoutMS: ptr(cfg.Indicator.ErrorTimeoutMS),
			TextListening:  ptr(cfg.Indicator.TextListening),
			TextError:      ptr(cfg.Indicator.TextError),
		},
		History: &fileHistory{
			Enable: ptr(cfg.History.Enable),
			Path:   ptr(cfg.History.Path),
			Retain: ptr(cfg.History.Retain),
		},
		Events: &fileEvents{
			Enable:  ptr(cfg.Events.Enable),
			URL:     ptr(cfg.Events.URL),
			Subject: ptr(cfg.Events.Subject),
		},
		Metrics: &fileMetrics{
			Enable: ptr(cfg.Metrics.Enable),
			Listen: ptr(cfg.Metrics.Listen),
		},
		Debug: &fileDebug{
			LogLevel:       ptr(cfg.Debug.LogLevel),
			DumpUtterances: ptr(cfg.Debug.DumpUtterances),
		},
	}
}
