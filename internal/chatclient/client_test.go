package chatclient

import (
	"context"
	"strings"
	"testing"
	"time"

	"chess-crowd/internal/events"
)

func TestParseRecognizesCommands(t *testing.T) {
	cases := map[string]Command{
		"!move e2e4": {Verb: "move", Arg: "e2e4"},
		"!delay":     {Verb: "delay"},
		"!resign":    {Verb: "resign"},
		"!BULLET on": {Verb: "bullet", Arg: "on"},
	}
	for input, want := range cases {
		got, ok := Parse(input)
		if !ok {
			t.Fatalf("Parse(%q) failed to match", input)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %+v, want %+v", input, got, want)
		}
	}
}

func TestParseRejectsPlainChat(t *testing.T) {
	if _, ok := Parse("good game everyone"); ok {
		t.Fatalf("expected plain chat to not parse as a command")
	}
}

func TestReaderSourceSplitsUsernameAndText(t *testing.T) {
	src := NewReaderSource(strings.NewReader("alice: !move e2e4\nbob: nice\n"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	lines, err := src.Lines(ctx)
	if err != nil {
		t.Fatalf("Lines() error: %v", err)
	}

	first := <-lines
	if first.Username != "alice" || first.Text != "!move e2e4" {
		t.Fatalf("got %+v", first)
	}
}

func TestRunPublishesChatEvents(t *testing.T) {
	src := NewReaderSource(strings.NewReader("alice: !delay\n"))
	sink := make(chan events.ExternalEvent, 4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, src, sink) }()

	select {
	case ev := <-sink:
		if ev.Chat == nil || ev.Chat.Username != "alice" {
			t.Fatalf("got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for chat event")
	}
	cancel()
	<-done
}
