package reactor

import "testing"

func TestRunQueueFIFO(t *testing.T) {
	var q runQueue
	a, b, c := &Event{}, &Event{}, &Event{}

	q.pushBack(a)
	q.pushBack(b)
	q.pushBack(c)

	if got := q.popFront(); got != a {
		t.Fatalf("expected a first")
	}
	if got := q.popFront(); got != b {
		t.Fatalf("expected b second")
	}
	if got := q.popFront(); got != c {
		t.Fatalf("expected c third")
	}
	if !q.empty() {
		t.Fatalf("expected queue empty after draining")
	}
}

func TestRunQueueRemoveMiddle(t *testing.T) {
	var q runQueue
	a, b, c := &Event{}, &Event{}, &Event{}
	q.pushBack(a)
	q.pushBack(b)
	q.pushBack(c)

	q.remove(b)

	if got := q.popFront(); got != a {
		t.Fatalf("expected a first")
	}
	if got := q.popFront(); got != c {
		t.Fatalf("expected c after removing b, got %v", got)
	}
}

func TestFDListForEach(t *testing.T) {
	var l fdList
	a, b := &Event{}, &Event{}
	l.push(a)
	l.push(b)

	var seen []*Event
	l.forEach(func(ev *Event) { seen = append(seen, ev) })
	if len(seen) != 2 {
		t.Fatalf("expected 2 events, got %d", len(seen))
	}

	l.remove(a)
	if l.head != b {
		t.Fatalf("expected b to remain head after removing a")
	}
	l.remove(b)
	if !l.empty() {
		t.Fatalf("expected list empty")
	}
}
