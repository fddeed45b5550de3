// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package lang provides language detection and the localized persona texts:
// greeting, fallback error message, and the mentor system prompts.
//
// Resonance speaks two languages, English and Chinese. Detection is
// character-class based: a message dominated by CJK ideographs is Chinese,
// one dominated by ASCII letters is English, and ambiguous input defaults
// to English.
package lang
