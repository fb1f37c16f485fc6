package bufferevent

import (
	"bytes"
	"testing"

	"github.com/joeycumines/go-reactor/buffer"
	"github.com/joeycumines/go-reactor/reactor"
)

// upperFilter uppercases ASCII bytes as they pass from src to dst,
// exercising a non-identity transform end to end.
func upperFilter(src, dst *buffer.Buffer, dstLimit int, _ FlushMode) (FilterResult, error) {
	n := src.Length()
	if dstLimit > 0 && n > dstLimit {
		n = dstLimit
	}
	if n == 0 {
		return FilterOK, nil
	}
	chunk := make([]byte, n)
	if _, err := src.Remove(chunk); err != nil {
		return FilterError, err
	}
	for i, c := range chunk {
		if c >= 'a' && c <= 'z' {
			chunk[i] = c - ('a' - 'A')
		}
	}
	if err := dst.Append(chunk); err != nil {
		return FilterError, err
	}
	return FilterOK, nil
}

func TestFilterTransformsInputDirection(t *testing.T) {
	base, err := reactor.NewWithConfig()
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer base.Free()

	underlying, peer := PairNew(base)
	f := FilterNew(underlying, upperFilter, nil)

	var got []byte
	f.SetCallbacks(func(be *BufferEvent) {
		buf := make([]byte, be.Input.Length())
		_, _ = be.Read(buf)
		got = append(got, buf...)
	}, nil, nil)

	if err := f.Enable(reactor.Read); err != nil {
		t.Fatalf("f.Enable: %v", err)
	}
	if err := peer.Enable(reactor.Write); err != nil {
		t.Fatalf("peer.Enable: %v", err)
	}

	if err := peer.Write([]byte("hello")); err != nil {
		t.Fatalf("peer.Write: %v", err)
	}

	for i := 0; i < 3 && len(got) == 0; i++ {
		if err := base.Dispatch(reactor.Once); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	if !bytes.Equal(got, []byte("HELLO")) {
		t.Fatalf("got %q, want %q", got, "HELLO")
	}
}

func TestFilterOutputDirectionPassesThrough(t *testing.T) {
	base, err := reactor.NewWithConfig()
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer base.Free()

	underlying, peer := PairNew(base)
	f := FilterNew(underlying, nil, upperFilter)

	var got []byte
	peer.SetCallbacks(func(be *BufferEvent) {
		buf := make([]byte, be.Input.Length())
		_, _ = be.Read(buf)
		got = append(got, buf...)
	}, nil, nil)

	if err := peer.Enable(reactor.Read); err != nil {
		t.Fatalf("peer.Enable: %v", err)
	}
	if err := f.Enable(reactor.Write); err != nil {
		t.Fatalf("f.Enable: %v", err)
	}

	if err := f.Write([]byte("world")); err != nil {
		t.Fatalf("f.Write: %v", err)
	}

	for i := 0; i < 3 && len(got) == 0; i++ {
		if err := base.Dispatch(reactor.Once); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	if !bytes.Equal(got, []byte("WORLD")) {
		t.Fatalf("got %q, want %q", got, "WORLD")
	}
}

func TestFilterPropagatesUnderlyingEOF(t *testing.T) {
	base, err := reactor.NewWithConfig()
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer base.Free()

	underlying, _ := PairNew(base)
	f := FilterNew(underlying, nil, nil)

	var gotEOF bool
	f.SetCallbacks(nil, nil, func(_ *BufferEvent, what reactor.Flag) {
		if what&reactor.EOF != 0 {
			gotEOF = true
		}
	})
	if err := f.Enable(reactor.Read); err != nil {
		t.Fatalf("f.Enable: %v", err)
	}

	underlying.transitionAndFire(stateEOF, reactor.EOF|reactor.Read)

	if !gotEOF {
		t.Fatalf("expected filter to surface underlying EOF")
	}
}
