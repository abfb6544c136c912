package access

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Status represents where a connection is in its lifecycle
type Status string

const (
	// StatusProcessing indicates a worker is handling the connection
	StatusProcessing Status = "processing"
	// StatusCompleted indicates a response was sent
	StatusCompleted Status = "completed"
	// StatusError indicates the connection was closed without a full response
	StatusError Status = "error"
)

// Record describes a finished response
type Record struct {
	Method string
	Path   string
	Status int
	Bytes  int64
}

// ConnProgress represents the progress of a single connection
type ConnProgress struct {
	ID        uint64
	Peer      string
	Status    Status
	StartTime time.Time
	EndTime   time.Time
	Message   string
	Record    Record
}

// Tracker receives connection lifecycle events from the workers
type Tracker interface {
	// Start is called once when the pool comes up
	Start(workers, queueCapacity int)
	// StartConn marks a connection as picked up by a worker
	StartConn(id uint64, peer string)
	// CompleteConn marks a connection as answered
	CompleteConn(id uint64, rec Record)
	// ErrorConn marks a connection as closed without a full response
	ErrorConn(id uint64, message string)
	// Finish is called once on shutdown
	Finish()
}

// NopTracker discards every event
type NopTracker struct{}

func (NopTracker) Start(int, int) {}
func (NopTracker) StartConn(uint64, string) {}
func (NopTracker) CompleteConn(uint64, Record) {}
func (NopTracker) ErrorConn(uint64, string) {}
func (NopTracker) Finish() {}

// ConsoleTracker prints one coloured line per connection and a summary on Finish
type ConsoleTracker struct {
	mu        sync.Mutex
	writer    io.Writer
	inFlight  map[uint64]*ConnProgress
	startTime time.Time
	completed int
	errors    int
	byClass   map[int]int // status / 100 -> count
	bytes     int64
}

// NewConsoleTracker creates a new console tracker writing to stdout
func NewConsoleTracker() *ConsoleTracker {
	return &ConsoleTracker{
		writer:   os.Stdout,
		inFlight: make(map[uint64]*ConnProgress),
		byClass:  make(map[int]int),
	}
}

// WithWriter sets the writer for the console tracker
func (t *ConsoleTracker) WithWriter(writer io.Writer) *ConsoleTracker {
	t.writer = writer
	return t
}

// Start records the pool start time and prints the pool shape
func (t *ConsoleTracker) Start(workers, queueCapacity int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startTime = time.Now()
	fmt.Fprintf(t.writer, "Serving with %d workers, queue capacity %d\n", workers, queueCapacity)
}

// StartConn marks a connection as picked up by a worker
func (t *ConsoleTracker) StartConn(id uint64, peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inFlight[id] = &ConnProgress{
		ID:        id,
		Peer:      peer,
		Status:    StatusProcessing,
		StartTime: time.Now(),
	}
}

// CompleteConn prints the access line for a finished response
func (t *ConsoleTracker) CompleteConn(id uint64, rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.take(id)
	p.Status = StatusCompleted
	p.EndTime = time.Now()
	p.Record = rec

	t.completed++
	t.byClass[rec.Status/100]++
	t.bytes += rec.Bytes

	fmt.Fprintf(t.writer, "%s %s %s %s %s %dB %s\n",
		p.EndTime.Format("15:04:05"),
		p.Peer,
		rec.Method,
		color.CyanString(rec.Path),
		colorStatus(rec.Status),
		rec.Bytes,
		p.EndTime.Sub(p.StartTime).Round(time.Microsecond))
}

// ErrorConn prints a line for a connection closed without a full response
func (t *ConsoleTracker) ErrorConn(id uint64, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.take(id)
	p.Status = StatusError
	p.EndTime = time.Now()
	p.Message = message

	t.errors++

	fmt.Fprintf(t.writer, "%s %s %s\n",
		p.EndTime.Format("15:04:05"),
		p.Peer,
		color.RedString("closed: "+message))
}

// Finish prints totals since Start
func (t *ConsoleTracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	duration := time.Since(t.startTime).Round(time.Second)
	fmt.Fprintf(t.writer, "\nServed for %s\n", duration)
	fmt.Fprintf(t.writer, "Handled %d connections: %d answered (%s, %s, %s), %d closed without response, %d bytes sent\n",
		t.completed+t.errors, t.completed,
		color.GreenString("%d 2xx", t.byClass[2]),
		color.YellowString("%d 4xx", t.byClass[4]),
		color.RedString("%d 5xx", t.byClass[5]),
		t.errors, t.bytes)
}

// Totals returns the number of answered and failed connections so far
func (t *ConsoleTracker) Totals() (completed, errors int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed, t.errors
}

// take removes id from the in-flight set, creating an entry for unknown ids
func (t *ConsoleTracker) take(id uint64) *ConnProgress {
	p, ok := t.inFlight[id]
	if !ok {
		now := time.Now()
		return &ConnProgress{ID: id, StartTime: now}
	}
	delete(t.inFlight, id)
	return p
}

// colorStatus colours a status code by class
func colorStatus(code int) string {
	switch {
	case code >= 500:
		return color.RedString("%d", code)
	case code >= 400:
		return color.YellowString("%d", code)
	default:
		return color.GreenString("%d", code)
	}
}
