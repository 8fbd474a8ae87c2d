package transport

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/flipboard/internal/command"
)

type statusLog struct {
	mu   sync.Mutex
	seen []Status
}

func (l *statusLog) add(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, s)
}

func (l *statusLog) get() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Status(nil), l.seen...)
}

func TestEvents_ReplaysLatestStatus(t *testing.T) {
	events := NewEvents()
	events.SetStatus(StatusConnecting)
	events.SetStatus(StatusHostReady)

	var log statusLog
	events.OnStatus(log.add)

	assert.Eventually(t, func() bool {
		return len(log.get()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Status{StatusHostReady}, log.get())
}

func TestEvents_OrderedAndDeduplicated(t *testing.T) {
	events := NewEvents()
	var log statusLog
	events.OnStatus(log.add)

	for _, s := range []Status{StatusConnecting, StatusConnecting, StatusHostReady, StatusConnected} {
		events.SetStatus(s)
	}

	want := []Status{StatusDisconnected, StatusConnecting, StatusHostReady, StatusConnected}
	assert.Eventually(t, func() bool {
		return len(log.get()) == len(want)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, log.get())
	assert.Equal(t, StatusConnected, events.Status())
}

func TestEvents_LastSubscriberWins(t *testing.T) {
	events := NewEvents()
	var first, second statusLog
	events.OnStatus(first.add)
	events.OnStatus(second.add)
	events.SetStatus(StatusConnecting)

	assert.Eventually(t, func() bool {
		return len(second.get()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Status{StatusDisconnected}, first.get())
}

func TestEvents_NilUnsubscribes(t *testing.T) {
	events := NewEvents()
	var log statusLog
	events.OnStatus(log.add)
	events.OnStatus(nil)
	events.SetStatus(StatusError)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []Status{StatusDisconnected}, log.get())
}

func TestEvents_DispatchCommands(t *testing.T) {
	events := NewEvents()

	// no handler yet: dropped
	events.Dispatch(command.StopLiveClock())

	var mu sync.Mutex
	var got []command.Command
	events.OnCommand(func(cmd command.Command) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, cmd)
	})

	events.Dispatch(command.SetSound(command.SoundLoud))
	events.Dispatch(command.StopLiveClock())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, command.TypeSetSound, got[0].Type)
	assert.Equal(t, command.TypeStopLiveClock, got[1].Type)
}

func TestNewRoomID(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-z]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRoomID()
		require.Regexp(t, pattern, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 95)
}

func TestErrorWrapping(t *testing.T) {
	err := WrapError("connect to host", ErrHostNotFound, "abc")
	assert.ErrorIs(t, err, ErrHostNotFound)
	assert.Equal(t, "connect to host: host not found (abc)", err.Error())

	var terr *Error
	require.True(t, errors.As(error(err), &terr))
	assert.Equal(t, "connect to host", terr.Op)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusTimeout, StatusFor(NewError("x", ErrTimeout)))
	assert.Equal(t, StatusHostNotFound, StatusFor(ErrHostNotFound))
	assert.Equal(t, StatusNegotiationError, StatusFor(ErrNegotiation))
	assert.Equal(t, StatusError, StatusFor(errors.New("boom")))
	assert.Equal(t, StatusDisconnected, StatusFor(context.Canceled))
	assert.Equal(t, StatusTimeout, StatusFor(context.DeadlineExceeded))
	assert.True(t, StatusTimeout.Failed())
	assert.False(t, StatusHostReady.Failed())
}
