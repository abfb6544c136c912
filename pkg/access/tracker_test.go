package access

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
)

func TestConsoleTracker(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	tracker := NewConsoleTracker().WithWriter(&buf)

	tracker.Start(2, 20)
	tracker.StartConn(1, "127.0.0.1:5000")
	tracker.CompleteConn(1, Record{Method: "GET", Path: "/index.html", Status: 200, Bytes: 11})
	tracker.StartConn(2, "127.0.0.1:5001")
	tracker.CompleteConn(2, Record{Method: "GET", Path: "/missing", Status: 404, Bytes: 120})
	tracker.StartConn(3, "127.0.0.1:5002")
	tracker.ErrorConn(3, "empty request")
	tracker.Finish()

	output := buf.String()
	expected := []string{
		"Serving with 2 workers, queue capacity 20",
		"127.0.0.1:5000 GET /index.html 200 11B",
		"127.0.0.1:5001 GET /missing 404 120B",
		"127.0.0.1:5002 closed: empty request",
		"Handled 3 connections: 2 answered (1 2xx, 1 4xx, 0 5xx), 1 closed without response, 131 bytes sent",
	}
	for _, e := range expected {
		if !strings.Contains(output, e) {
			t.Errorf("Expected output to contain %q, got:\n%s", e, output)
		}
	}

	completed, errs := tracker.Totals()
	if completed != 2 || errs != 1 {
		t.Errorf("Expected 2 completed and 1 error, got %d and %d", completed, errs)
	}
	if len(tracker.inFlight) != 0 {
		t.Errorf("Expected no connections in flight, got %d", len(tracker.inFlight))
	}
}

func TestTrackerConcurrentWorkers(t *testing.T) {
	tracker := NewConsoleTracker().WithWriter(io.Discard)
	tracker.Start(4, 40)

	const conns = 100
	var wg sync.WaitGroup
	for i := 0; i < conns; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			tracker.StartConn(id, fmt.Sprintf("peer-%d", id))
			if id%10 == 0 {
				tracker.ErrorConn(id, "reset")
				return
			}
			tracker.CompleteConn(id, Record{Method: "GET", Path: "/", Status: 200, Bytes: 1})
		}(uint64(i))
	}
	wg.Wait()
	tracker.Finish()

	completed, errs := tracker.Totals()
	if completed != 90 {
		t.Errorf("Expected 90 completed, got %d", completed)
	}
	if errs != 10 {
		t.Errorf("Expected 10 errors, got %d", errs)
	}
}

func TestCompleteUnknownConnection(t *testing.T) {
	tracker := NewConsoleTracker().WithWriter(io.Discard)
	tracker.Start(1, 1)

	// Must not panic for ids never passed to StartConn
	tracker.CompleteConn(99, Record{Method: "GET", Path: "/", Status: 500})
	tracker.ErrorConn(100, "boom")

	completed, errs := tracker.Totals()
	if completed != 1 || errs != 1 {
		t.Errorf("Expected 1 completed and 1 error, got %d and %d", completed, errs)
	}
}

func TestNopTracker(t *testing.T) {
	var tracker Tracker = NopTracker{}
	tracker.Start(1, 1)
	tracker.StartConn(1, "x")
	tracker.CompleteConn(1, Record{})
	tracker.ErrorConn(1, "x")
	tracker.Finish()
}
