// Package movement advances agents along computed waypoint paths.
package movement

import (
	"math"

	"github.com/Faultbox/midgard-sim/internal/grid"
	m "github.com/Faultbox/midgard-sim/pkg/math"
)

// State is the coarse locomotion state consumed by animation.
type State int

const (
	StateIdle State = iota
	StateWalking
)

func (s State) String() string {
	if s == StateWalking {
		return "walking"
	}
	return "idle"
}

// Settings tunes a follower.
type Settings struct {
	Speed         float64 `yaml:"speed"`          // world units per second
	ReachEpsilon  float64 `yaml:"reach_epsilon"`  // squared distance at which a waypoint counts as reached
	CostModulated bool    `yaml:"cost_modulated"` // divide speed by the mean cost of the segment's cells
}

// DefaultSettings returns the standard follower tuning.
func DefaultSettings() Settings {
	return Settings{
		Speed:        4,
		ReachEpsilon: 0.001,
	}
}

// PastCell is the last waypoint reached and the time the transit out of it began.
type PastCell struct {
	Cell  grid.Coord
	Since float64
}

// Pose is the observable result of one update.
type Pose struct {
	Position    m.Vec3
	Orientation m.Quat
	State       State
}

// WorldFunc maps a grid coordinate to its world-space position.
type WorldFunc func(grid.Coord) m.Vec3

// CostFunc returns the movement cost of a cell. Used only when cost modulation is on.
type CostFunc func(grid.Coord) float64

// Follower holds one agent's path state: a queue of remaining waypoints, the
// waypoint currently pursued, and the last one reached. Not safe for
// concurrent use.
type Follower struct {
	settings Settings

	past       PastCell
	current    grid.Coord
	hasCurrent bool
	queue      []grid.Coord

	pose Pose
}

// NewFollower creates an idle follower standing on cell at time now.
func NewFollower(cell grid.Coord, now float64, position m.Vec3, settings Settings) *Follower {
	if settings.Speed <= 0 {
		settings.Speed = DefaultSettings().Speed
	}
	if settings.ReachEpsilon <= 0 {
		settings.ReachEpsilon = DefaultSettings().ReachEpsilon
	}
	return &Follower{
		settings: settings,
		past:     PastCell{Cell: cell, Since: now},
		pose:     Pose{Position: position, Orientation: m.QuatIdentity(), State: StateIdle},
	}
}

// SetPath replaces the remaining waypoints. A path computed from Anchor may
// start with the anchor itself; that waypoint is dropped. If no waypoint is
// being pursued the first one is taken immediately, with transit starting at now.
func (f *Follower) SetPath(path []grid.Coord, now float64) {
	if len(path) > 0 && path[0] == f.Anchor() {
		path = path[1:]
	}
	f.queue = append(f.queue[:0], path...)
	if !f.hasCurrent {
		f.advance(now)
	}
}

// Stop drops the queued waypoints. A waypoint already being pursued is still
// completed so the agent always comes to rest on a cell.
func (f *Follower) Stop() {
	f.queue = f.queue[:0]
}

// Cancel clears the queued waypoints and the pursued one and puts the agent
// back on its PastCell, which becomes the Anchor again.
func (f *Follower) Cancel(now float64, toWorld WorldFunc) {
	f.queue = f.queue[:0]
	f.hasCurrent = false
	f.past.Since = now
	f.pose.Position = toWorld(f.past.Cell)
	f.pose.State = StateIdle
}

// TrimQueue cuts the queued waypoints at the first one valid rejects and
// returns it. The pursued waypoint is not checked.
func (f *Follower) TrimQueue(valid func(grid.Coord) bool) (grid.Coord, bool) {
	for i, c := range f.queue {
		if !valid(c) {
			f.queue = f.queue[:i]
			return c, true
		}
	}
	return grid.Coord{}, false
}

// Anchor is the cell a new path should start from: the pursued waypoint if
// the agent is between cells, else the cell it rests on.
func (f *Follower) Anchor() grid.Coord {
	if f.hasCurrent {
		return f.current
	}
	return f.past.Cell
}

// Past returns the last waypoint reached.
func (f *Follower) Past() PastCell {
	return f.past
}

// Current returns the waypoint being pursued.
func (f *Follower) Current() (grid.Coord, bool) {
	return f.current, f.hasCurrent
}

// Remaining returns a copy of the queued waypoints after Current.
func (f *Follower) Remaining() []grid.Coord {
	return append([]grid.Coord(nil), f.queue...)
}

// Pose returns the result of the last update.
func (f *Follower) Pose() Pose {
	return f.pose
}

// Update moves the agent for time now and returns its pose.
//
// Position is the linear interpolation from the PastCell to the pursued
// waypoint, parameterized by elapsed transit time times speed over segment
// length and clamped to [0, 1]. Dividing by the segment length makes Speed
// a true world-space speed, so a diagonal takes longer than a cardinal step
// where a plain (now-since)*speed factor would not. Once the squared distance to the waypoint
// drops below ReachEpsilon the waypoint becomes the PastCell and the next
// queued waypoint is pursued, or the follower goes idle.
func (f *Follower) Update(now float64, toWorld WorldFunc, cost CostFunc) Pose {
	if !f.hasCurrent {
		f.pose.State = StateIdle
		return f.pose
	}

	from := toWorld(f.past.Cell)
	to := toWorld(f.current)

	t := 1.0
	if length := from.Distance(to); length > 0 {
		t = (now - f.past.Since) * f.speed(cost) / length
		t = math.Min(1, math.Max(0, t))
	}
	pos := from.Lerp(to, t)

	facing := to.Sub(pos)
	if facing.LengthSq() < 1e-12 {
		facing = to.Sub(from)
	}
	if facing.LengthSq() >= 1e-12 {
		// Models face +Z, so turn the -Z look-at around.
		f.pose.Orientation = m.QuatLookAt(facing).Mul(m.QuatFromAxisAngle(m.Up, math.Pi))
	}
	f.pose.Position = pos
	f.pose.State = StateWalking

	if pos.DistanceSq(to) < f.settings.ReachEpsilon {
		f.past = PastCell{Cell: f.current, Since: now}
		f.pose.Position = to
		f.advance(now)
	}
	return f.pose
}

func (f *Follower) speed(cost CostFunc) float64 {
	s := f.settings.Speed
	if !f.settings.CostModulated || cost == nil {
		return s
	}
	c := (cost(f.past.Cell) + cost(f.current)) / 2
	if c > 0 && !math.IsInf(c, 0) && !math.IsNaN(c) {
		s /= c
	}
	return s
}

// advance pops the next waypoint into the pursued slot, or goes idle.
func (f *Follower) advance(now float64) {
	if len(f.queue) == 0 {
		f.hasCurrent = false
		f.pose.State = StateIdle
		return
	}
	f.current = f.queue[0]
	f.queue = f.queue[1:]
	f.hasCurrent = true
	f.past.Since = now
	f.pose.State = StateWalking
}
