// Package transport abstracts the chat platforms the pipeline consumes
// events from and sends replies back to.
package transport

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Transport is a connection to one chat platform. Implementations publish
// inbound events to the shared bus and expose the outbound operations the
// dispatcher and handlers use.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// Send posts content to a thread and returns the platform ID of the
	// sent message.
	Send(ctx context.Context, threadID, content string) (string, error)
	// Reply posts content as a reply to messageID within threadID and
	// returns the platform ID of the sent message.
	Reply(ctx context.Context, threadID, messageID, content string) (string, error)
	// React attaches an emoji reaction to messageID.
	React(ctx context.Context, threadID, messageID, emoji string) error
	IsConnected() bool
}

// MessageLengthProvider is an opt-in interface that transports implement
// to advertise their maximum message length. Callers use it via type
// assertion to decide whether to split outbound messages.
type MessageLengthProvider interface {
	MaxMessageLength() int
}

// SplitMessage splits content into chunks of at most max runes,
// preferring newline and space boundaries. A max of 0 means no limit.
func SplitMessage(content string, max int) []string {
	if max <= 0 || utf8.RuneCountInString(content) <= max {
		return []string{content}
	}

	var chunks []string
	remaining := content
	for utf8.RuneCountInString(remaining) > max {
		runes := []rune(remaining)
		window := string(runes[:max])

		// Boundary search is byte-indexed; window is the byte prefix of
		// remaining, so slicing remaining at cut stays consistent.
		half := len(window) / 2
		cut := strings.LastIndexByte(window, '\n')
		if cut < half {
			if sp := strings.LastIndexByte(window, ' '); sp >= half {
				cut = sp
			} else {
				cut = -1
			}
		}
		if cut <= 0 {
			chunks = append(chunks, window)
			remaining = string(runes[max:])
			continue
		}
		chunks = append(chunks, strings.TrimRight(window[:cut], " \n"))
		remaining = strings.TrimLeft(remaining[cut:], " \n")
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}
