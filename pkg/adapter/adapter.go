// Package adapter defines the abstract vehicle control plane consumed by
// the AGV order/action state machine (spec §6). The concrete vehicle
// simulator that implements this interface for a real or simulated
// robot is explicitly out of scope (spec §1) — pkg/refadapter provides
// only a minimal in-memory stand-in used by tests and the demo daemon.
package adapter

import (
	"github.com/daohu527/vlink/pkg/vda5050"
)

// ErrorReference is re-exported for adapter implementations that need to
// build structured rejection reasons without importing the full error
// taxonomy package.
type ErrorReference = vda5050.ErrorReference

// ActionStatusChange is reported by the adapter via an ActionContext's
// UpdateStatus callback as an action progresses.
type ActionStatusChange struct {
	Status            vda5050.ActionStatus
	ResultDescription string
	Errors            []vda5050.Error
}

// ActionContext is passed to IsActionExecutable, ExecuteAction, and
// CancelAction. UpdateStatus may be called zero or more times with
// non-terminal statuses, and must be called exactly once with a terminal
// status (FINISHED or FAILED) to signal completion.
type ActionContext struct {
	Action       vda5050.Action
	UpdateStatus func(ActionStatusChange)
}

// EdgeContext is passed to FinishEdgeAction.
type EdgeContext struct {
	Action       vda5050.Action
	Edge         vda5050.Edge
	UpdateStatus func(ActionStatusChange)
}

// TraverseCallbacks is passed to TraverseEdge; the adapter must call
// EdgeTraversed exactly once when the AGV reaches the edge's end node.
type TraverseCallbacks struct {
	EdgeTraversed func()
}

// StopCallbacks is passed to StopTraverse (spec §4.3 "Cancel order" step
// 4). The adapter must call Stopped exactly once. It may call
// DrivingToNextNode before that; it then calls Stopped once the AGV
// actually comes to rest at nextNode.
type StopCallbacks struct {
	Stopped           func()
	DrivingToNextNode func(nextNode vda5050.Node)
}

// AttachContext is passed to Attach, giving the adapter the state the AGV
// controller will start from (typically recovered from the last
// published state, or a fresh zero value on cold start).
type AttachContext struct {
	InitialState vda5050.State
}

// DetachContext is passed to Detach with the final state at the moment
// of detachment.
type DetachContext struct {
	FinalState vda5050.State
}

// AgvAdapter is the abstract vehicle control plane the AgvController
// drives. Implementations own the actual navigation stack, sensor
// fusion, and actuator control; the controller only sequences calls per
// spec §4.3's blocking and ordering rules.
type AgvAdapter interface {
	// APIVersion is compared against the controller's expected adapter
	// API version at construction time; a mismatch is a construction
	// error (spec §6).
	APIVersion() uint

	// Attach/Detach bracket the controller's ownership of the adapter.
	Attach(ctx AttachContext) error
	Detach(ctx DetachContext)

	// IsActionExecutable returns a non-empty slice of ErrorReference if
	// the action cannot be executed right now (safety interlocks, unknown
	// actionType, etc.); an empty slice means "go ahead".
	IsActionExecutable(ctx ActionContext) []ErrorReference

	// ExecuteAction starts the action. The adapter reports progress and
	// completion through ctx.UpdateStatus.
	ExecuteAction(ctx ActionContext)

	// CancelAction requests that an in-progress action stop early. The
	// adapter may decline and run the action to completion; either way it
	// must still call ctx.UpdateStatus with a terminal status eventually.
	CancelAction(ctx ActionContext)

	// FinishEdgeAction is called when an edge has been traversed but one
	// of its actions (typically a NONE-blocking action) is still active,
	// giving the adapter a chance to wind it down.
	FinishEdgeAction(ctx EdgeContext)

	// IsNodeWithinDeviationRange checks whether the AGV's current position
	// is close enough to node to start or stitch onto an order there.
	IsNodeWithinDeviationRange(node vda5050.Node) []ErrorReference

	// IsRouteTraversable checks route-level feasibility (reachability,
	// map validity) before the controller accepts an order.
	IsRouteTraversable(nodes []vda5050.Node, edges []vda5050.Edge) []ErrorReference

	// TraverseEdge starts driving the given edge; the adapter calls
	// cb.EdgeTraversed once the AGV reaches the edge's end node.
	TraverseEdge(edge vda5050.Edge, cb TraverseCallbacks)

	// StopTraverse requests an immediate stop of route traversal (used by
	// order cancelation). See StopCallbacks for the two valid completion
	// paths.
	StopTraverse(cb StopCallbacks)

	// Trajectory is an optional hook; an adapter that doesn't plan
	// trajectories should return (nil, false).
	Trajectory(edge vda5050.Edge) (*vda5050.Trajectory, bool)
}

// InstantActionAdapter is implemented by adapters that also want first
// refusal on instant actions the controller does not special-case itself
// (anything other than cancelOrder/stateRequest/factsheetRequest/
// startPause/stopPause -- spec §4.3 "Instant actions").
type InstantActionAdapter interface {
	AgvAdapter
	ExecuteInstantAction(ctx ActionContext)
	IsInstantActionExecutable(ctx ActionContext) []ErrorReference
}

// PauseAdapter is implemented by adapters that support the startPause /
// stopPause instant actions (spec §4.3 "Pause").
type PauseAdapter interface {
	AgvAdapter
	StartPause(ctx ActionContext)
	StopPause(ctx ActionContext)
}
