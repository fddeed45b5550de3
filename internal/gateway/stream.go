// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
)

// STREAMING: Robust SSE parsing with error handling

// readBufferSize is the size of the chunk buffer handed to Read.
const readBufferSize = 4096

// StreamChunk is a single decoded chunk of the streaming response.
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// DeltaContent returns the content delta from the first choice.
func (c *StreamChunk) DeltaContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// Decoder incrementally parses an OpenRouter SSE stream.
//
// Network reads split the stream at arbitrary byte offsets, including inside
// a multi-byte UTF-8 sequence. The decoder therefore keeps an unprocessed
// byte tail between Feed calls and only splits on '\n', which is a single
// byte in UTF-8 and can never land inside a rune.
type Decoder struct {
	carry     []byte
	full      strings.Builder
	sawDone   bool
	onContent func(cumulative string)
}

// NewDecoder creates a decoder. onContent may be nil; when set it is called
// after every content delta with the full accumulated reply.
func NewDecoder(onContent func(cumulative string)) *Decoder {
	return &Decoder{onContent: onContent}
}

// Feed consumes the next raw chunk from the wire. Complete lines are
// processed; a trailing partial line is carried over to the next call.
func (d *Decoder) Feed(p []byte) {
	d.carry = append(d.carry, p...)

	for {
		i := bytes.IndexByte(d.carry, '\n')
		if i < 0 {
			return
		}
		line := d.carry[:i]
		d.carry = d.carry[i+1:]
		d.processLine(line)
	}
}

// Flush processes any final line left without a trailing newline. Call it
// once the underlying stream has reached EOF.
func (d *Decoder) Flush() {
	if len(d.carry) == 0 {
		return
	}
	line := d.carry
	d.carry = nil
	d.processLine(line)
}

// Content returns the full accumulated reply.
func (d *Decoder) Content() string {
	return d.full.String()
}

// SawDone reports whether a [DONE] marker was observed. The marker is
// informational only; end of stream is what terminates decoding.
func (d *Decoder) SawDone() bool {
	return d.sawDone
}

// processLine handles one SSE line. Non-data lines (event:, id:, retry:,
// comments, blank separators) are ignored.
func (d *Decoder) processLine(line []byte) {
	s := strings.TrimRight(string(line), "\r")
	if !strings.HasPrefix(s, "data: ") {
		return
	}
	data := strings.TrimSpace(s[len("data: "):])
	if data == "" {
		return
	}
	if data == "[DONE]" {
		d.sawDone = true
		return
	}

	var chunk StreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// Skip malformed chunks rather than aborting the stream.
		log.Printf("[gateway] skipping malformed stream chunk: %v", err)
		return
	}

	if delta := chunk.DeltaContent(); delta != "" {
		d.full.WriteString(delta)
		if d.onContent != nil {
			d.onContent(d.full.String())
		}
	}
}

// Run drains the reader through the decoder until EOF or context
// cancellation. EOF is the authoritative end of the stream and yields a
// nil error even when no [DONE] marker was seen.
func (d *Decoder) Run(ctx context.Context, r io.Reader) error {
	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			d.Feed(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				d.Flush()
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}
