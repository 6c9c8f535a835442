package rtmp

import (
	"sort"
	"testing"
	"time"

	"github.com/torresjeff/rtmp-ingest/config"
)

func newPublisher(t *testing.T, id, streamKey string) *Conn {
	t.Helper()
	conn, err := NewConn(id, &syncBuffer{}, ConnConfig{Config: config.Default()})
	if err != nil {
		t.Fatalf("NewConn returned error: %v", err)
	}
	conn.setStreamKey(streamKey)
	return conn
}

func TestRegistry(t *testing.T) {
	var frames []string
	registry := NewRegistry(nil, func(streamKey string, conn *Conn, frame DecodedFrame) {
		frames = append(frames, streamKey+"/"+conn.ID())
	})

	a := newPublisher(t, "a", "cam1")
	b := newPublisher(t, "b", "cam2")
	registry.OnPublishStart("cam1")
	registry.OnClientReady(a)
	registry.OnPublishStart("cam2")
	registry.OnClientReady(b)

	if registry.Count() != 2 {
		t.Errorf("got %d streams, want 2", registry.Count())
	}
	keys := registry.StreamKeys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "cam1" || keys[1] != "cam2" {
		t.Errorf("got stream keys %v", keys)
	}
	if conn, ok := registry.Lookup("cam1"); !ok || conn != a {
		t.Errorf("Lookup(cam1) got %v, %v", conn, ok)
	}
	if _, ok := registry.Lookup("cam3"); ok {
		t.Error("Lookup(cam3) found a connection")
	}

	registry.OnFrame(b, DecodedFrame{})
	if len(frames) != 1 || frames[0] != "cam2/b" {
		t.Errorf("got frames %v", frames)
	}

	registry.OnClientDisconnected(a)
	if _, ok := registry.Lookup("cam1"); ok {
		t.Error("cam1 still registered after disconnect")
	}
	if registry.Count() != 1 {
		t.Errorf("got %d streams, want 1", registry.Count())
	}
}

func TestRegistry_Replace(t *testing.T) {
	registry := NewRegistry(nil, nil)
	old := newPublisher(t, "old", "cam")
	newer := newPublisher(t, "new", "cam")
	registry.OnClientReady(old)
	registry.OnClientReady(newer)

	if conn, _ := registry.Lookup("cam"); conn != newer {
		t.Errorf("Lookup got %v, want the newer connection", conn)
	}
	deadline := time.Now().Add(time.Second)
	for !old.isStopped() {
		if time.Now().After(deadline) {
			t.Fatal("replaced connection not stopped")
		}
		time.Sleep(time.Millisecond)
	}
	if newer.isStopped() {
		t.Error("newer connection stopped")
	}

	// The replaced connection disconnecting leaves the newer one in place
	registry.OnClientDisconnected(old)
	if conn, ok := registry.Lookup("cam"); !ok || conn != newer {
		t.Errorf("Lookup got %v, %v, want the newer connection", conn, ok)
	}
	// Connections that never published are ignored
	registry.OnClientDisconnected(newPublisher(t, "idle", ""))
	if registry.Count() != 1 {
		t.Errorf("got %d streams, want 1", registry.Count())
	}
}
