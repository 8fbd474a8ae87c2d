// Package transporttest provides helpers for tests that drive a
// transport.Channel.
package transporttest

import (
	"slices"
	"sync"

	"github.com/BioHazard786/flipboard/internal/command"
	"github.com/BioHazard786/flipboard/internal/transport"
)

// Recorder collects every status and command delivered to its handlers.
type Recorder struct {
	mu       sync.Mutex
	statuses []transport.Status
	commands []command.Command
}

// Subscriber is anything that delivers statuses and commands, a
// transport.Channel or the connection manager in front of one.
type Subscriber interface {
	OnStatus(transport.StatusHandler)
	OnCommand(transport.CommandHandler)
}

// Attach subscribes the recorder to ch.
func Attach(ch Subscriber) *Recorder {
	r := &Recorder{}
	ch.OnStatus(r.Status)
	ch.OnCommand(r.Command)
	return r
}

func (r *Recorder) Status(s transport.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *Recorder) Command(cmd command.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
}

func (r *Recorder) Statuses() []transport.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.statuses)
}

func (r *Recorder) Commands() []command.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.commands)
}

// Last returns the most recent status, or "" if none was seen.
func (r *Recorder) Last() transport.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}

func (r *Recorder) Seen(s transport.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.statuses, s)
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = nil
	r.commands = nil
}
