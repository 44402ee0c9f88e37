package indicator

import (
	"os"
	"strings"
)

type locale string

const (
	localeEnglish locale = "en"
	localeSpanish locale = "es"
)

type messages struct {
	listening string
	errorText string
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "es") {
		return localeSpanish
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeSpanish:
		return messages{
			listening: "Escuchando…",
			errorText: "Error de dictado",
		}
	default:
		return messages{
			listening: "Listening…",
			errorText: "Dictation error",
		}
	}
}

// override replaces locale defaults with configured text when set.
func (m messages) override(listening string, errorText string) messages {
	if strings.TrimSpace(listening) != "" {
		m.listening = listening
	}
	if strings.TrimSpace(errorText) != "" {
		m.errorText = errorText
	}
	return m
}
