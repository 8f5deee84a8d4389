package eventbus

import "testing"

func TestPublishReachesSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Type: TypeLoadSample, Data: 42})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != TypeLoadSample || e.Data != 42 {
				t.Fatalf("subscriber %d got %+v", i, e)
			}
			if e.Time.IsZero() {
				t.Fatalf("subscriber %d: event time not stamped", i)
			}
		default:
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	// Second publish overflows the buffer; it must drop, not stall.
	b.Publish(Event{Type: TypeRuntimeSample, Data: 1})
	b.Publish(Event{Type: TypeRuntimeSample, Data: 2})

	e := <-ch
	if e.Data != 1 {
		t.Fatalf("delivered event = %+v, want the first publish", e)
	}
	select {
	case extra := <-ch:
		t.Fatalf("overflow event was delivered: %+v", extra)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)

	unsub()
	unsub() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic or deliver.
	b.Publish(Event{Type: TypeOverrun})
}
