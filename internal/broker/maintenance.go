// ABOUTME: Background maintenance: dedup sweeps, stats logging, capacity warnings
// ABOUTME: Independent cadences on one goroutine, stopped by Close

package broker

import "time"

const (
	sweepInterval        = 10 * time.Minute
	statsInterval        = 5 * time.Minute
	capacityInterval     = 5 * time.Minute
	capacityInitialDelay = time.Minute

	roomWarnThreshold = 1_000
	userWarnThreshold = 10_000
)

// maintain runs the periodic maintenance until the broker closes.
func (b *Broker) maintain() {
	defer b.wg.Done()

	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()
	stats := time.NewTicker(statsInterval)
	defer stats.Stop()
	capacity := time.NewTimer(capacityInitialDelay)
	defer capacity.Stop()

	for {
		select {
		case <-sweep.C:
			dropped := b.index.Sweep() + b.window.Sweep()
			if dropped > 0 {
				b.logger.Debug("dedup sweep", "dropped", dropped)
			}

		case <-stats.C:
			s := b.Stats()
			b.logger.Info("broker stats",
				"tracked_rooms", s.TrackedRooms,
				"tracked_users", s.TrackedUsers,
				"index_entries", s.IndexEntries,
				"window_entries", s.WindowEntries)

		case <-capacity.C:
			b.checkCapacity()
			capacity.Reset(capacityInterval)

		case <-b.done:
			return
		}
	}
}

// checkCapacity warns when the tracked interest sets grow past the point
// where a single instance is likely misrouting traffic.
func (b *Broker) checkCapacity() {
	s := b.Stats()
	if s.TrackedRooms > roomWarnThreshold {
		b.logger.Warn("tracked room count above threshold",
			"tracked_rooms", s.TrackedRooms,
			"threshold", roomWarnThreshold)
	}
	if s.TrackedUsers > userWarnThreshold {
		b.logger.Warn("tracked user count above threshold",
			"tracked_users", s.TrackedUsers,
			"threshold", userWarnThreshold)
	}
}
