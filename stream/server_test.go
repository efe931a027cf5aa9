package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/hluisi/roguehunter/model"
)

func testWindow() []model.SampleBatch {
	return []model.SampleBatch{{ProcessCount: 3, MaxScore: 42}}
}

func TestServerSendsInitialStateOnAccept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roguehunter.sock")
	srv, err := Listen(path, testWindow, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	go srv.Serve(context.Background())

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read initial_state: %v", err)
	}

	var msg model.InitialStateMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != model.MessageInitialState {
		t.Fatalf("expected initial_state, got %q", msg.Type)
	}
	if msg.SampleCount != 1 {
		t.Fatalf("expected sample_count 1, got %d", msg.SampleCount)
	}
}

func TestServerBroadcastsSampleToConnectedClient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roguehunter.sock")
	srv, err := Listen(path, testWindow, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	go srv.Serve(context.Background())

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := reader.ReadString('\n'); err != nil {
		t.Fatalf("read initial_state: %v", err)
	}

	// Give the accept goroutine time to register the client before
	// broadcasting, since registration happens asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for srv.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	srv.Broadcast(model.SampleBatch{MaxScore: 77, ProcessCount: 5})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	var typ string
	if err := json.Unmarshal(fields["type"], &typ); err != nil || typ != string(model.MessageSample) {
		t.Fatalf("expected sample type field, got %s", fields["type"])
	}
}

func TestCloseUnlinksSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roguehunter.sock")
	srv, err := Listen(path, testWindow, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve(context.Background())

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := net.DialTimeout("unix", path, 200*time.Millisecond); err == nil {
		t.Fatalf("expected socket file to be unlinked after Close")
	}
}
