// Package refadapter provides a minimal in-memory AgvAdapter used by
// tests and the demo "agv" daemon. It is not the "concrete vehicle
// simulator" spec.md marks out of scope (§1) -- it has no navigation
// model at all -- it only exercises the adapter contract deterministically
// so the controller can be driven end-to-end without real hardware.
package refadapter

import (
	"math"
	"sync"
	"time"

	"github.com/daohu527/vlink/pkg/adapter"
	"github.com/daohu527/vlink/pkg/vda5050"
)

// APIVersion is the adapter API version this package implements.
const APIVersion = 1

// Timing configures how long ExecuteAction and TraverseEdge take, used to
// make scenario 6 of spec §8 ("Instant orderExecutionTime") deterministic
// in tests.
type Timing struct {
	ActionInit     time.Duration
	ActionDuration time.Duration
	EdgeSpeed      float64 // units per second
}

// DefaultTiming matches spec §8 scenario 6: 1s init + 5s duration per
// action, 0.2 units/s edge speed.
func DefaultTiming() Timing {
	return Timing{
		ActionInit:     1 * time.Second,
		ActionDuration: 5 * time.Second,
		EdgeSpeed:      0.2,
	}
}

// Adapter is a minimal, deterministic AgvAdapter.
type Adapter struct {
	timing Timing

	mu       sync.Mutex
	canceled map[string]bool
}

// New creates an Adapter with the given timing.
func New(timing Timing) *Adapter {
	return &Adapter{timing: timing, canceled: make(map[string]bool)}
}

func (a *Adapter) APIVersion() uint { return APIVersion }

func (a *Adapter) Attach(adapter.AttachContext) error { return nil }
func (a *Adapter) Detach(adapter.DetachContext)       {}

func (a *Adapter) IsActionExecutable(ctx adapter.ActionContext) []vda5050.ErrorReference {
	return nil
}

func (a *Adapter) ExecuteAction(ctx adapter.ActionContext) {
	go func() {
		ctx.UpdateStatus(adapter.ActionStatusChange{Status: vda5050.ActionInitializing})
		time.Sleep(a.timing.ActionInit)

		a.mu.Lock()
		canceled := a.canceled[ctx.Action.ActionID]
		a.mu.Unlock()
		if canceled {
			ctx.UpdateStatus(adapter.ActionStatusChange{Status: vda5050.ActionFailed, ResultDescription: "canceled"})
			return
		}

		ctx.UpdateStatus(adapter.ActionStatusChange{Status: vda5050.ActionRunning})
		time.Sleep(a.timing.ActionDuration)

		a.mu.Lock()
		canceled = a.canceled[ctx.Action.ActionID]
		a.mu.Unlock()
		if canceled {
			ctx.UpdateStatus(adapter.ActionStatusChange{Status: vda5050.ActionFailed, ResultDescription: "canceled"})
			return
		}
		ctx.UpdateStatus(adapter.ActionStatusChange{Status: vda5050.ActionFinished, ResultDescription: ctx.Action.ActionType + " complete"})
	}()
}

func (a *Adapter) CancelAction(ctx adapter.ActionContext) {
	a.mu.Lock()
	a.canceled[ctx.Action.ActionID] = true
	a.mu.Unlock()
}

func (a *Adapter) FinishEdgeAction(ctx adapter.EdgeContext) {
	ctx.UpdateStatus(adapter.ActionStatusChange{Status: vda5050.ActionFinished})
}

func (a *Adapter) IsNodeWithinDeviationRange(vda5050.Node) []vda5050.ErrorReference { return nil }

func (a *Adapter) IsRouteTraversable([]vda5050.Node, []vda5050.Edge) []vda5050.ErrorReference {
	return nil
}

func (a *Adapter) TraverseEdge(edge vda5050.Edge, cb adapter.TraverseCallbacks) {
	length := edgeLength(edge)
	speed := a.timing.EdgeSpeed
	if speed <= 0 {
		speed = 1
	}
	duration := time.Duration(length/speed*1000) * time.Millisecond
	go func() {
		time.Sleep(duration)
		cb.EdgeTraversed()
	}()
}

// edgeLength returns the travel distance for edge. The reference adapter
// has no real map, so it uses the straight-line distance between the
// first and last trajectory control points; absent a trajectory, it
// defaults to the spec §8 scenario 6 10-unit edge.
func edgeLength(edge vda5050.Edge) float64 {
	if edge.Trajectory != nil && len(edge.Trajectory.ControlPoints) >= 2 {
		p0 := edge.Trajectory.ControlPoints[0]
		p1 := edge.Trajectory.ControlPoints[len(edge.Trajectory.ControlPoints)-1]
		dx := p1.X - p0.X
		dy := p1.Y - p0.Y
		return math.Sqrt(dx*dx + dy*dy)
	}
	return 10
}

func (a *Adapter) StopTraverse(cb adapter.StopCallbacks) {
	go cb.Stopped()
}

func (a *Adapter) Trajectory(vda5050.Edge) (*vda5050.Trajectory, bool) { return nil, false }
