package engine

import (
	"sync"

	"github.com/roach88/nodesync/internal/graph"
)

// Command is a deferred graph mutation. Commands run at the start of the
// next tick, before any root is reconciled, with exclusive graph access.
type Command func(g graph.Graph) error

// commandQueue is a thread-safe FIFO queue of deferred commands.
//
// The queue is unbounded so reactive code never blocks while queuing.
// Hosts may Defer from any goroutine; only the tick drains.
type commandQueue struct {
	mu       sync.Mutex
	commands []Command
	closed   bool
}

func newCommandQueue() *commandQueue {
	return &commandQueue{commands: make([]Command, 0, 16)}
}

// Enqueue adds a command to the back of the queue.
// Returns false if the queue is closed.
func (q *commandQueue) Enqueue(c Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.commands = append(q.commands, c)
	return true
}

// Take removes and returns the commands queued so far, in FIFO order.
// Commands enqueued after Take returns wait for the next call.
func (q *commandQueue) Take() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return nil
	}
	batch := q.commands
	q.commands = make([]Command, 0, cap(batch))
	return batch
}

// Len returns the current queue length.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Close rejects further commands. Commands already queued still drain.
func (q *commandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
