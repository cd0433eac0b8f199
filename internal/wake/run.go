package wake

import (
	"context"
	"log/slog"

	"github.com/earshot-ai/earshot/pkg/audio"
)

// Run consumes a FrameBus subscription on the calling goroutine, feeds each
// frame to the detector, and forwards wake events to out. Communication with
// the session manager is message passing only; no state is shared.
//
// Run returns when ctx is cancelled or the subscription channel closes.
// Detector errors are logged and the stream continues — a transient spotter
// failure must not kill wake detection.
func Run(ctx context.Context, sub *audio.Subscription, detector Detector, out chan<- WakeEvent, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-sub.C:
			if !ok {
				return
			}
			ev, err := detector.ProcessFrame(frame)
			if err != nil {
				log.Warn("wake detector error", "error", err, "seq", frame.Seq)
				continue
			}
			if ev == nil {
				continue
			}
			log.Info("wake detected",
				"strategy", ev.Strategy,
				"confidence", ev.Confidence,
				"sustained_ms", ev.SustainedMs,
				"phrase", ev.PhraseID,
			)
			select {
			case out <- *ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
