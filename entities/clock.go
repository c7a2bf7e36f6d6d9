package entities

import (
	"fmt"
	"time"

	"github.com/amirrezam75/cncrelay/pkg/logx"

	"go.uber.org/zap"
)

// nextTickDelay schedules the next step relative to the start of the current
// one. An overrun yields zero: the next step runs right away, and missed
// periods are never replayed as a burst.
func nextTickDelay(interval, elapsed time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

// run is the room's single execution context. Commands from sessions, clock
// steps and probes are serialized here.
func (room *Room) run() {
	defer close(room.done)

	tickTimer := time.NewTimer(room.tickInterval)
	defer tickTimer.Stop()

	probeTicker := time.NewTicker(room.config.ProbeInterval)
	defer probeTicker.Stop()

	for {
		select {
		case <-room.ctx.Done():
			room.shutdown(room.closeReason())
			return

		case cmd := <-room.inbox:
			room.execute(cmd)

		case <-tickTimer.C:
			started := time.Now()

			if err := room.safeStep(); err != nil {
				logx.Logger.Errorw(
					err.Error(),
					zap.String("desc", "terminating room"),
					zap.String("roomId", room.Id),
					zap.Uint64("tick", room.state.Tick),
				)
				room.Close(reasonSimulation)
				room.shutdown(room.closeReason())
				return
			}

			elapsed := time.Since(started)
			delay := nextTickDelay(room.tickInterval, elapsed)
			room.metrics.AddTick(elapsed.Nanoseconds(), delay == 0)
			tickTimer.Reset(delay)

		case now := <-probeTicker.C:
			room.probe(now)
		}
	}
}

func (room *Room) safeStep() (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("simulation step panicked: %v", recovered)
		}
	}()

	room.step()

	return nil
}
