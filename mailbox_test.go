package rtmp

import (
	"sync"
	"testing"
)

func TestMailbox(t *testing.T) {
	m := newMailbox()
	var got []int
	for i := 0; i < 3; i++ {
		i := i
		m.post(func(*Conn) { got = append(got, i) })
	}
	select {
	case <-m.notify:
	default:
		t.Fatal("no notification pending after post")
	}
	select {
	case <-m.notify:
		t.Fatal("more than one notification pending")
	default:
	}

	for _, e := range m.drain() {
		e(nil)
	}
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("events ran in order %v, want [0 1 2]", got)
	}
	if events := m.drain(); len(events) != 0 {
		t.Errorf("got %d events after drain", len(events))
	}
}

func TestMailbox_ConcurrentPost(t *testing.T) {
	m := newMailbox()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.post(func(*Conn) {})
			}
		}()
	}
	wg.Wait()
	if n := len(m.drain()); n != 800 {
		t.Errorf("got %d events, want 800", n)
	}
}
