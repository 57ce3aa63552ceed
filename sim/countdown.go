package sim

// Countdown is a tick-counted interval timer. Each call to Tick advances it by
// one tick and reports whether the interval elapsed; the counter then restarts.
// Timers are driven only by the orchestrator, so their cadence is a pure
// function of the tick count.
type Countdown struct {
	Interval int
	elapsed  int
}

// NewCountdown creates a Countdown firing every interval ticks (minimum 1).
func NewCountdown(interval int) Countdown {
	return Countdown{Interval: max(1, interval)}
}

// Tick advances the countdown by one tick. Returns true on the tick the
// interval elapses.
func (c *Countdown) Tick() bool {
	c.elapsed++
	if c.elapsed < c.Interval {
		return false
	}
	c.elapsed = 0
	return true
}

// Reset restarts the countdown from zero.
func (c *Countdown) Reset() {
	c.elapsed = 0
}

// Elapsed returns the ticks counted since the last firing.
func (c *Countdown) Elapsed() int {
	return c.elapsed
}

// Timers groups the per-subsystem countdowns threaded through each tick.
type Timers struct {
	ObstacleSpawn Countdown
	ObstacleMove  Countdown
	DroneMove     Countdown
	Deploy        Countdown
}

// NewTimers builds the countdown set from cfg.
func NewTimers(cfg Config) Timers {
	return Timers{
		ObstacleSpawn: NewCountdown(cfg.ObstacleSpawnInterval),
		ObstacleMove:  NewCountdown(cfg.ObstacleMoveInterval),
		DroneMove:     NewCountdown(cfg.DroneMoveInterval),
		Deploy:        NewCountdown(cfg.DeployInterval),
	}
}

// Reset restarts every countdown.
func (t *Timers) Reset() {
	t.ObstacleSpawn.Reset()
	t.ObstacleMove.Reset()
	t.DroneMove.Reset()
	t.Deploy.Reset()
}
