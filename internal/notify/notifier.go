package notify

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/msageha/autopilot/internal/events"
	"github.com/msageha/autopilot/internal/model"
)

const title = "autopilot"

// Attach subscribes to command results on bus and forwards the ones enabled
// in cfg to send. The returned function unsubscribes.
func Attach(bus *events.Bus, cfg model.NotificationsConfig, send Sender, logger zerolog.Logger) func() {
	logger = logger.With().Str("component", "notify").Logger()
	deliver := func(msg string) {
		if err := send(title, msg); err != nil {
			logger.Debug().Err(err).Msg("notification not delivered")
		}
	}

	var unsubs []func()
	if cfg.OnSuccess {
		unsubs = append(unsubs, bus.Subscribe(events.EventCommandSuccess, func(e events.Event) {
			deliver(successMessage(e.Data))
		}))
	}
	if cfg.OnError || cfg.OnHint {
		unsubs = append(unsubs, bus.Subscribe(events.EventCommandError, func(e events.Event) {
			hint := events.String(e.Data, events.KeyHint)
			switch {
			case cfg.OnError:
				deliver(errorMessage(e.Data, hint, cfg.OnHint))
			case hint != "":
				deliver("hint: " + hint)
			}
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func successMessage(data map[string]interface{}) string {
	msg := "✓ " + events.String(data, events.KeyCommand)
	if ms, ok := data[events.KeyExecutionTime].(int64); ok {
		msg += fmt.Sprintf(" (%dms)", ms)
	}
	return msg
}

func errorMessage(data map[string]interface{}, hint string, withHint bool) string {
	msg := "✗ " + events.String(data, events.KeyCommand)
	if path := events.String(data, events.KeyFilePath); path != "" {
		msg += " [" + path + "]"
	}
	if withHint && hint != "" {
		msg += "\nhint: " + hint
	}
	return msg
}
