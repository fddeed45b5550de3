// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package lang

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// =============================================================================
// LANGUAGE TYPE
// =============================================================================

// Language identifies one of the supported conversation languages.
type Language string

const (
	English Language = "en"
	Chinese Language = "zh"
)

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return l == English || l == Chinese
}

// Or returns l when valid, otherwise the fallback.
func (l Language) Or(fallback Language) Language {
	if l.Valid() {
		return l
	}
	return fallback
}

// Detection thresholds. A text is Chinese when more than 30% of its
// letter-bearing runes are CJK ideographs; English when more than half are
// ASCII letters. Ambiguous input defaults to English.
const (
	chineseShare = 0.3
	englishShare = 0.5
)

// supported is the matcher used to map arbitrary locale tags onto the two
// languages the persona speaks.
var supported = language.NewMatcher([]language.Tag{
	language.English, // first entry is the fallback
	language.Chinese,
})

// =============================================================================
// DETECTION
// =============================================================================

// Detect returns the language of a single text based on character classes.
func Detect(text string) Language {
	l, _ := classify(text)
	return l
}

// classify detects the language and reports whether the text carried enough
// signal to be confident. Pure punctuation or digits are not a signal.
func classify(text string) (Language, bool) {
	if strings.TrimSpace(text) == "" {
		return English, false
	}

	var total, chinese, english int
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		total++
		switch {
		case unicode.Is(unicode.Han, r):
			chinese++
		case r < 128 && unicode.IsLetter(r):
			english++
		}
	}
	if total == 0 {
		return English, false
	}

	if float64(chinese)/float64(total) > chineseShare {
		return Chinese, true
	}
	if float64(english)/float64(total) > englishShare {
		return English, true
	}
	return English, false
}

// Entry is a minimal role/content pair for context-aware detection.
type Entry struct {
	Role    string
	Content string
}

// DetermineOutput decides the reply language for a user input, considering
// the recent conversation context. A confident input detection always wins:
// when the user switches languages, the reply follows them. Low-signal input
// (digits, punctuation, a bare "ok") falls back to the context majority, then
// to the previous language.
func DetermineOutput(input string, previous Language, context []Entry) Language {
	inputLang, confident := classify(input)
	if confident {
		return inputLang
	}

	// Majority vote over the last three messages.
	recent := context
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	var zh, en int
	for _, e := range recent {
		if Detect(e.Content) == Chinese {
			zh++
		} else {
			en++
		}
	}
	if zh > en {
		return Chinese
	}
	if en > zh {
		return English
	}

	return previous.Or(inputLang)
}

// FromLocale maps a BCP 47 locale string (for example the LANG environment
// value "zh_CN.UTF-8" normalized to "zh-CN") onto a supported Language.
// Unknown or unparseable locales default to English.
func FromLocale(locale string) Language {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return English
	}
	// Environment locales use underscores and carry encoding suffixes.
	if i := strings.IndexByte(locale, '.'); i >= 0 {
		locale = locale[:i]
	}
	locale = strings.ReplaceAll(locale, "_", "-")

	tag, err := language.Parse(locale)
	if err != nil {
		return English
	}
	_, index, _ := supported.Match(tag)
	if index == 1 {
		return Chinese
	}
	return English
}
