package httpparse

import (
	"testing"

	"github.com/watt-toolkit/servkit/pkg/servkit/memory"
)

func TestHeaderParserSimpleGet(t *testing.T) {
	pool := memory.NewArenaPool()
	a := pool.Get()
	defer a.Release(pool)

	p := NewHeaderParser()
	raw := "GET /hello HTTP/1.1\r\nHost: example.com\r\nX-Foo: bar\r\n\r\nbody-follows"

	consumed, err := p.Feed(a, []byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Done() {
		t.Fatal("expected header parse to be done")
	}
	if p.Method != MethodGET {
		t.Fatalf("expected GET, got %v", p.Method)
	}
	if p.Path.String() != "/hello" {
		t.Fatalf("expected /hello, got %q", p.Path.String())
	}
	if p.Version != 1 {
		t.Fatalf("expected HTTP/1.1, got version %d", p.Version)
	}
	if v := p.Headers.Get("host"); string(v) != "example.com" {
		t.Fatalf("expected Host example.com, got %q", v)
	}
	if v := p.Headers.Get("X-Foo"); string(v) != "bar" {
		t.Fatalf("expected X-Foo bar, got %q", v)
	}

	remainder := raw[consumed:]
	if remainder != "body-follows" {
		t.Fatalf("expected remainder to be body bytes, got %q", remainder)
	}
}

func TestHeaderParserFeedAcrossMultipleCalls(t *testing.T) {
	pool := memory.NewArenaPool()
	a := pool.Get()
	defer a.Release(pool)

	p := NewHeaderParser()
	parts := []string{"GET / HTTP", "/1.1\r\nHost: ex", "ample.com\r\n", "\r\n"}

	for _, part := range parts {
		if _, err := p.Feed(a, []byte(part)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if !p.Done() {
		t.Fatal("expected done after final empty line")
	}
	if v := p.Headers.Get("Host"); string(v) != "example.com" {
		t.Fatalf("got %q", v)
	}
}

func TestHeaderParserRejectsInvalidMethod(t *testing.T) {
	pool := memory.NewArenaPool()
	a := pool.Get()
	defer a.Release(pool)

	p := NewHeaderParser()
	_, err := p.Feed(a, []byte("FROBNICATE / HTTP/1.1\r\n\r\n"))
	if err != ErrInvalidMethod {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}
}

func TestHeaderParserRejectsUnsupportedVersion(t *testing.T) {
	pool := memory.NewArenaPool()
	a := pool.Get()
	defer a.Release(pool)

	p := NewHeaderParser()
	_, err := p.Feed(a, []byte("GET / HTTP/2.0\r\n\r\n"))
	if err != ErrUnsupportedVersion {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestHeaderValidateNoSmugglingRejectsBoth(t *testing.T) {
	pool := memory.NewArenaPool()
	a := pool.Get()
	defer a.Release(pool)

	p := NewHeaderParser()
	_, err := p.Feed(a, []byte("POST / HTTP/1.1\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if err := p.Headers.ValidateNoSmuggling(); err != ErrContentLengthWithTransferEncoding {
		t.Fatalf("expected smuggling rejection, got %v", err)
	}
}

func TestHeaderValidateNoSmugglingRejectsDuplicateContentLength(t *testing.T) {
	pool := memory.NewArenaPool()
	a := pool.Get()
	defer a.Release(pool)

	p := NewHeaderParser()
	_, err := p.Feed(a, []byte("POST / HTTP/1.1\r\nContent-Length: 5\r\nContent-Length: 6\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if err := p.Headers.ValidateNoSmuggling(); err != ErrDuplicateContentLength {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestChunkedParserSimpleBody(t *testing.T) {
	p := NewChunkedParser()
	var out []byte
	raw := "4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"

	consumed, err := p.Feed([]byte(raw), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed != len(raw) {
		t.Fatalf("expected full consumption, got %d/%d", consumed, len(raw))
	}
	if !p.Done() {
		t.Fatal("expected chunked parse to be done")
	}
	if string(out) != "Wikipedia" {
		t.Fatalf("got %q", out)
	}
}

func TestChunkedParserAcrossMultipleFeeds(t *testing.T) {
	p := NewChunkedParser()
	var out []byte

	chunks := []string{"4\r\nWi", "ki\r\n5\r", "\npedia\r\n0", "\r\n\r\n"}
	for _, c := range chunks {
		if _, err := p.Feed([]byte(c), &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if !p.Done() {
		t.Fatal("expected done")
	}
	if string(out) != "Wikipedia" {
		t.Fatalf("got %q", out)
	}
}

func TestChunkedParserIgnoresExtensions(t *testing.T) {
	p := NewChunkedParser()
	var out []byte
	raw := "5;ext=value\r\nhello\r\n0\r\n\r\n"

	if _, err := p.Feed([]byte(raw), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("got %q", out)
	}
}

func TestChunkedParserRejectsBadChunkSize(t *testing.T) {
	p := NewChunkedParser()
	var out []byte
	_, err := p.Feed([]byte("zzz\r\n"), &out)
	if err != ErrInvalidChunkSize {
		t.Fatalf("expected ErrInvalidChunkSize, got %v", err)
	}
}

func TestChunkedParserWithTrailers(t *testing.T) {
	p := NewChunkedParser()
	var out []byte
	raw := "3\r\nfoo\r\n0\r\nX-Trailer: value\r\n\r\n"
	consumed, err := p.Feed([]byte(raw), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed != len(raw) || !p.Done() {
		t.Fatalf("expected full consumption and done, got consumed=%d done=%v", consumed, p.Done())
	}
	if string(out) != "foo" {
		t.Fatalf("got %q", out)
	}
}
