// Package chatclient reads the external chat feed and parses crowd
// commands out of it, grounded on the reference client's ndjson-scanner
// shape (lichessapi's Stream) adapted to a generic line reader, and on
// spec.md §6's command grammar.
package chatclient

import (
	"bufio"
	"context"
	"io"
	"log"
	"regexp"
	"strings"

	"chess-crowd/internal/events"
)

// commandPattern matches chat commands of the shape "!move e2e4",
// "!delay", "!draw", "!resign", "!bullet on", "!rapid off", etc. — a
// leading "!" followed by a word, then optional whitespace and an argument
// (spec.md §6).
var commandPattern = regexp.MustCompile(`^!(\w+)(?:\s+(\S+))?\s*$`)

// Command is a parsed chat command.
type Command struct {
	Verb string
	Arg  string
}

// Parse extracts a Command from a raw chat line, if it looks like one.
func Parse(text string) (Command, bool) {
	matches := commandPattern.FindStringSubmatch(strings.TrimSpace(text))
	if matches == nil {
		return Command{}, false
	}
	return Command{Verb: strings.ToLower(matches[1]), Arg: matches[2]}, true
}

// LineSource is anything chatclient can read raw "user: text" style lines
// from. Production wires this to the chat platform's own line reader; the
// engine never depends on which platform that is.
type LineSource interface {
	Lines(ctx context.Context) (<-chan Line, error)
}

// Line is one raw chat message.
type Line struct {
	Username string
	Text     string
}

// ReaderSource adapts any io.Reader (e.g. a Twitch IRC connection, or a
// local FIFO/testing harness) into a LineSource using the same
// bufio.Scanner idiom the Lichess reference client uses for its ndjson
// streams, applied here to plain "username: text" lines.
type ReaderSource struct {
	reader io.Reader
}

// NewReaderSource wraps r.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{reader: r}
}

// Lines starts a goroutine scanning the reader and returns a channel of
// parsed lines, closed when the reader is exhausted or ctx is canceled.
func (s *ReaderSource) Lines(ctx context.Context) (<-chan Line, error) {
	out := make(chan Line, 64)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(s.reader)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			raw := scanner.Text()
			username, text, ok := strings.Cut(raw, ":")
			if !ok {
				continue
			}
			select {
			case out <- Line{Username: strings.TrimSpace(username), Text: strings.TrimSpace(text)}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Printf("[ChatClient] chat line source ended with error: %v", err)
		}
	}()
	return out, nil
}

// Run reads lines from source and publishes each as a ChatEvent on sink,
// matching the engine's single external-event channel (spec.md §4.6).
func Run(ctx context.Context, source LineSource, sink chan<- events.ExternalEvent) error {
	lines, err := source.Lines(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			sink <- events.ExternalEvent{Chat: &events.ChatEvent{Username: line.Username, Text: line.Text}}
		}
	}
}
