package poller

import (
	"github.com/rs/zerolog"

	"github.com/woozymasta/herald/internal/a2s"
)

// TraceObserver logs A2S pipeline events at trace level.
func TraceObserver(logger zerolog.Logger) a2s.Observer {
	return func(ev a2s.Event) {
		if logger.GetLevel() > zerolog.TraceLevel || zerolog.GlobalLevel() > zerolog.TraceLevel {
			return
		}

		e := logger.Trace().Str("event", ev.Kind.String()).Str("address", ev.Addr)
		switch ev.Kind {
		case a2s.EventFragment, a2s.EventStaleFragment:
			e = e.Int("index", ev.Index).Int("total", ev.Total).Int("size", ev.Size)
		case a2s.EventDone:
			if ev.Err != nil {
				e = e.Err(ev.Err)
			}
		default:
			e = e.Int("size", ev.Size)
		}
		e.Msg("A2S")
	}
}
