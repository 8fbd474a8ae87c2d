package transport

import (
	"sync"

	"github.com/BioHazard786/flipboard/internal/command"
)

// Events holds a channel's status and subscriber callbacks and delivers
// events to them serially. Each event is bound to the handler that was
// subscribed when the event happened, so a handler swapped out later
// never sees it.
type Events struct {
	mu        sync.Mutex
	status    Status
	onStatus  StatusHandler
	onCommand CommandHandler

	queue   []func()
	running bool
}

func NewEvents() *Events {
	return &Events{status: StatusDisconnected}
}

func (e *Events) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// SetStatus records s and notifies the status handler. Repeating the
// current status is a no-op.
func (e *Events) SetStatus(s Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == s {
		return
	}
	e.status = s
	if h := e.onStatus; h != nil {
		e.postLocked(func() { h(s) })
	}
}

// OnStatus replaces the status handler and replays the current status.
func (e *Events) OnStatus(h StatusHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStatus = h
	if h != nil {
		s := e.status
		e.postLocked(func() { h(s) })
	}
}

func (e *Events) OnCommand(h CommandHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCommand = h
}

// Dispatch hands cmd to the command handler, if any.
func (e *Events) Dispatch(cmd command.Command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h := e.onCommand; h != nil {
		e.postLocked(func() { h(cmd) })
	}
}

func (e *Events) postLocked(fn func()) {
	e.queue = append(e.queue, fn)
	if !e.running {
		e.running = true
		go e.drain()
	}
}

func (e *Events) drain() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.running = false
			e.mu.Unlock()
			return
		}
		fn := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		fn()
	}
}
