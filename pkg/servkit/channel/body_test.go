package channel

import (
	"bytes"
	"errors"
	"testing"
)

var errUnexpectedEOF = errors.New("channel: unexpected EOF")

func TestBodyFeedDeliversInOrder(t *testing.T) {
	b := NewBody()
	var got bytes.Buffer
	var eof bool
	b.SetDataCallback(func(data []byte, err error) Result {
		if data == nil && err == nil {
			eof = true
			return Result{}
		}
		got.Write(data)
		return Result{Consumed: len(data)}
	})

	b.Feed([]byte("hello "))
	b.Feed([]byte("world"))
	b.FeedEOF()

	if got.String() != "hello world" {
		t.Fatalf("got %q", got.String())
	}
	if !eof {
		t.Fatal("expected EOF callback")
	}
	if !b.Ended() {
		t.Fatal("expected body to be ended")
	}
}

func TestBodyPartialConsumption(t *testing.T) {
	b := NewBody()
	var calls int
	var got bytes.Buffer
	b.SetDataCallback(func(data []byte, err error) Result {
		calls++
		if data == nil {
			return Result{}
		}
		if len(data) > 2 {
			got.Write(data[:2])
			return Result{Consumed: 2}
		}
		got.Write(data)
		return Result{Consumed: len(data)}
	})

	b.Feed([]byte("abcdef"))
	b.FeedEOF()

	if got.String() != "abcdef" {
		t.Fatalf("got %q", got.String())
	}
}

func TestBodyFeedErrorIsTerminal(t *testing.T) {
	b := NewBody()
	var gotErr error
	b.SetDataCallback(func(data []byte, err error) Result {
		if err != nil {
			gotErr = err
		}
		return Result{Consumed: len(data)}
	})

	sentinelErr := errUnexpectedEOF
	b.FeedError(sentinelErr)

	if gotErr != sentinelErr {
		t.Fatalf("expected sentinel error delivered, got %v", gotErr)
	}
	if !b.Ended() {
		t.Fatal("expected body ended after FeedError")
	}

	// further feeds after error must be no-ops
	b.Feed([]byte("ignored"))
}

func TestBodyPassedThreshold(t *testing.T) {
	b := NewBody()
	b.SetThreshold(8)
	// no data callback installed: nothing drains, so buffered bytes build up
	b.Feed([]byte("0123456789"))

	if !b.PassedThreshold() {
		t.Fatal("expected threshold to be passed with no consumer draining")
	}
}

func TestBodySpillsToDiskAndDrainsInOrder(t *testing.T) {
	b := NewBody()
	b.SetThreshold(4)

	// Hold back delivery until explicitly told to drain, by having the
	// callback refuse everything the first round.
	accepting := false
	var got bytes.Buffer
	b.SetDataCallback(func(data []byte, err error) Result {
		if !accepting {
			return Result{Consumed: 0}
		}
		if data == nil {
			return Result{}
		}
		got.Write(data)
		return Result{Consumed: len(data)}
	})

	b.Feed([]byte("aaaaaaaaaa")) // 10 bytes, over the 4-byte threshold
	b.Feed([]byte("bbbbbbbbbb"))

	if !b.PassedThreshold() {
		t.Fatal("expected threshold passed")
	}

	accepting = true
	b.Feed(nil) // trigger a drain attempt with no new data
	b.FeedEOF()

	if got.String() != "aaaaaaaaaabbbbbbbbbb" {
		t.Fatalf("got %q", got.String())
	}
}

func TestBodyBuffersFlushedCallbackFiresOnceDrained(t *testing.T) {
	b := NewBody()
	b.SetThreshold(1 << 20)

	fired := 0
	b.SetBuffersFlushedCallback(func() { fired++ })
	b.SetDataCallback(func(data []byte, err error) Result {
		return Result{Consumed: len(data)}
	})

	b.Feed([]byte("data"))
	b.FeedEOF()

	if fired != 1 {
		t.Fatalf("expected flushed callback exactly once, got %d", fired)
	}
}

func TestBodyResetReleasesBuffers(t *testing.T) {
	b := NewBody()
	// no consumer: data piles up in pending
	b.Feed([]byte("leftover"))
	if b.bufferedBytes == 0 {
		t.Fatal("expected buffered bytes before reset")
	}
	b.Reset()
	if b.bufferedBytes != 0 || len(b.pending) != 0 || b.Ended() {
		t.Fatal("expected clean state after Reset")
	}
}
