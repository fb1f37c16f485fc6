package bufferevent

import (
	"testing"

	"github.com/joeycumines/go-reactor/reactor"
)

func TestPairMovesBytesToPeerInput(t *testing.T) {
	base, err := reactor.NewWithConfig()
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer base.Free()

	a, b := PairNew(base)

	var gotA, gotB []byte
	a.SetCallbacks(func(be *BufferEvent) {
		buf := make([]byte, be.Input.Length())
		_, _ = be.Read(buf)
		gotA = append(gotA, buf...)
	}, nil, nil)
	b.SetCallbacks(func(be *BufferEvent) {
		buf := make([]byte, be.Input.Length())
		_, _ = be.Read(buf)
		gotB = append(gotB, buf...)
	}, nil, nil)

	if err := a.Enable(reactor.Read | reactor.Write); err != nil {
		t.Fatalf("a.Enable: %v", err)
	}
	if err := b.Enable(reactor.Read | reactor.Write); err != nil {
		t.Fatalf("b.Enable: %v", err)
	}

	if err := a.Write([]byte("hello")); err != nil {
		t.Fatalf("a.Write: %v", err)
	}

	for i := 0; i < 3 && len(gotB) == 0; i++ {
		if err := base.Dispatch(reactor.Once); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	if string(gotB) != "hello" {
		t.Fatalf("b received %q, want %q", gotB, "hello")
	}

	if err := b.Write([]byte("world")); err != nil {
		t.Fatalf("b.Write: %v", err)
	}
	for i := 0; i < 3 && len(gotA) == 0; i++ {
		if err := base.Dispatch(reactor.Once); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	if string(gotA) != "world" {
		t.Fatalf("a received %q, want %q", gotA, "world")
	}
}

func TestPairPreservesTotalLength(t *testing.T) {
	base, err := reactor.NewWithConfig()
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer base.Free()

	a, b := PairNew(base)
	if err := a.Enable(reactor.Write); err != nil {
		t.Fatalf("a.Enable: %v", err)
	}
	if err := b.Enable(reactor.Read); err != nil {
		t.Fatalf("b.Enable: %v", err)
	}

	payload := []byte("0123456789")
	if err := a.Write(payload); err != nil {
		t.Fatalf("a.Write: %v", err)
	}

	for i := 0; i < 3 && b.Input.Length() == 0; i++ {
		if err := base.Dispatch(reactor.Once); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}

	if got := a.Output.Length() + b.Input.Length(); got != len(payload) {
		t.Fatalf("total length = %d, want %d", got, len(payload))
	}
}
