package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/autopilot/internal/events"
	"github.com/msageha/autopilot/internal/model"
)

type capture struct {
	mu   sync.Mutex
	msgs []string
}

func (c *capture) send(title, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, title+": "+message)
	return nil
}

func (c *capture) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestEscapeAppleScript(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"npm test", "npm test"},
		{`say "hi"`, `say \"hi\"`},
		{`src\app.ts`, `src\\app.ts`},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeAppleScript(tt.input), tt.input)
	}
}

func TestAttach_ErrorWithHint(t *testing.T) {
	bus := events.NewBus(10)
	defer bus.Close()
	c := &capture{}
	unsub := Attach(bus, model.NotificationsConfig{OnError: true, OnHint: true}, c.send, zerolog.Nop())
	defer unsub()

	bus.Publish(events.EventCommandError, events.CommandError("npm test", "src/a.test.ts", "exit status 1", 1, "run npm install"))

	require.Eventually(t, func() bool { return len(c.messages()) == 1 }, time.Second, 5*time.Millisecond)
	msg := c.messages()[0]
	assert.Contains(t, msg, "autopilot: ✗ npm test [src/a.test.ts]")
	assert.Contains(t, msg, "hint: run npm install")
}

func TestAttach_SuccessDisabledByDefault(t *testing.T) {
	bus := events.NewBus(10)
	defer bus.Close()
	c := &capture{}
	unsub := Attach(bus, model.NotificationsConfig{OnError: true}, c.send, zerolog.Nop())
	defer unsub()

	bus.Publish(events.EventCommandSuccess, events.CommandSuccess("npm test", "a.ts", 120*time.Millisecond, ""))
	bus.Publish(events.EventCommandError, events.CommandError("npm run lint", "a.ts", "exit status 2", 2, ""))

	require.Eventually(t, func() bool { return len(c.messages()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.messages(), 1)
	assert.Contains(t, c.messages()[0], "npm run lint")
}

func TestAttach_HintOnly(t *testing.T) {
	bus := events.NewBus(10)
	defer bus.Close()
	c := &capture{}
	unsub := Attach(bus, model.NotificationsConfig{OnHint: true}, c.send, zerolog.Nop())
	defer unsub()

	bus.Publish(events.EventCommandError, events.CommandError("npm test", "a.ts", "boom", 1, ""))
	bus.Publish(events.EventCommandError, events.CommandError("npm test", "a.ts", "enoent", 127, "install it"))

	require.Eventually(t, func() bool { return len(c.messages()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"autopilot: hint: install it"}, c.messages())
}

func TestAttach_SuccessMessageIncludesDuration(t *testing.T) {
	bus := events.NewBus(10)
	defer bus.Close()
	c := &capture{}
	unsub := Attach(bus, model.NotificationsConfig{OnSuccess: true}, c.send, zerolog.Nop())
	defer unsub()

	bus.Publish(events.EventCommandSuccess, events.CommandSuccess("npm test", "a.ts", 1500*time.Millisecond, "ok"))

	require.Eventually(t, func() bool { return len(c.messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "autopilot: ✓ npm test (1500ms)", c.messages()[0])
}
