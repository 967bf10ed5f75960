package mastercontroller

import "github.com/daohu527/vlink/pkg/vda5050"

// ActionTargetKind distinguishes which part of an order an
// OnActionStateChangedFunc report belongs to, or whether it was an
// instant action with no order association at all.
type ActionTargetKind int

const (
	TargetNode ActionTargetKind = iota
	TargetEdge
	TargetInstant
)

// ActionTarget identifies where a reported action lives.
type ActionTarget struct {
	Kind   ActionTargetKind
	NodeID string
	EdgeID string
}

func nodeActionTarget(nodeID string) ActionTarget { return ActionTarget{Kind: TargetNode, NodeID: nodeID} }
func edgeActionTarget(edgeID string) ActionTarget { return ActionTarget{Kind: TargetEdge, EdgeID: edgeID} }

func actionTargetOf(t actionTarget) ActionTarget {
	if t.edgeID != "" {
		return edgeActionTarget(t.edgeID)
	}
	return nodeActionTarget(t.nodeID)
}

// OnActionStateChangedFunc reports a single action's reported status
// change, for order actions and instant actions alike (spec §4.4 "Order
// progress" / "Instant actions"). err is non-nil only when status is
// FAILED and a correlated orderActionError/instantActionError was found.
type OnActionStateChangedFunc func(id vda5050.AgvId, action vda5050.Action, target ActionTarget, state vda5050.ActionState, err *vda5050.Error)

// OnNodeTraversedFunc fires once per node the AGV reports as its new
// lastNodeId (spec §4.4 "Order progress").
type OnNodeTraversedFunc func(id vda5050.AgvId, node vda5050.Node)

// OnEdgeTraversingFunc fires while the AGV is driving the edge following
// its last traversed node, carrying a delta of the tracked State fields
// that changed since the previous invocation -- the first invocation for
// a given edge carries the full tracked subset (spec §4.4, §8
// "invocationCount").
type OnEdgeTraversingFunc func(id vda5050.AgvId, edge vda5050.Edge, invocationCount int, delta map[string]any)

// OnEdgeTraversedFunc fires once the edge being tracked by
// OnEdgeTraversingFunc disappears from the AGV's reported edgeStates.
type OnEdgeTraversedFunc func(id vda5050.AgvId, edge vda5050.Edge)

// OnOrderProcessedFunc reports either an order-level rejection (err !=
// nil) or an order-progress milestone: active is true for "base done,
// horizon still outstanding" and false for "fully processed, cache
// retired" (spec §4.4 "Order progress" / "order-rejection scan").
type OnOrderProcessedFunc func(id vda5050.AgvId, orderID string, err *vda5050.Error, active bool)

// OnActionErrorFunc reports an instant action error correlated by
// actionId rather than by a status change (spec §4.4 "Instant actions").
type OnActionErrorFunc func(id vda5050.AgvId, actionID string, err vda5050.Error)

// OnOrderRejected registers fn to fire for order-level rejections; kept
// as a thin adapter over OnOrderProcessed for callers that only care
// about rejections (spec §4.4 "order-rejection scan").
func (c *Controller) OnOrderRejected(fn func(id vda5050.AgvId, orderID string, err vda5050.Error)) {
	c.OnOrderProcessed(func(id vda5050.AgvId, orderID string, err *vda5050.Error, active bool) {
		if err != nil {
			fn(id, orderID, *err)
		}
	})
}

// OnOrderComplete registers fn to fire once an order is fully processed
// (base and horizon exhausted, no further stitching possible); kept as a
// thin adapter over OnOrderProcessed for callers that only care about
// completion.
func (c *Controller) OnOrderComplete(fn func(id vda5050.AgvId, orderID string)) {
	c.OnOrderProcessed(func(id vda5050.AgvId, orderID string, err *vda5050.Error, active bool) {
		if err == nil && !active {
			fn(id, orderID)
		}
	})
}

func (c *Controller) OnActionStateChanged(fn OnActionStateChangedFunc) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onActionStateChanged = append(c.onActionStateChanged, fn)
}

func (c *Controller) OnNodeTraversed(fn OnNodeTraversedFunc) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onNodeTraversed = append(c.onNodeTraversed, fn)
}

func (c *Controller) OnEdgeTraversing(fn OnEdgeTraversingFunc) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onEdgeTraversing = append(c.onEdgeTraversing, fn)
}

func (c *Controller) OnEdgeTraversed(fn OnEdgeTraversedFunc) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onEdgeTraversed = append(c.onEdgeTraversed, fn)
}

// OnOrderProcessed registers fn for both rejection and progress/
// completion events; OnOrderRejected and OnOrderComplete are built on
// top of it.
func (c *Controller) OnOrderProcessed(fn OnOrderProcessedFunc) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onOrderProcessed = append(c.onOrderProcessed, fn)
}

func (c *Controller) OnActionError(fn OnActionErrorFunc) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onActionError = append(c.onActionError, fn)
}

func (c *Controller) notifyActionStateChanged(id vda5050.AgvId, action vda5050.Action, target ActionTarget, state vda5050.ActionState, err *vda5050.Error) {
	c.callbackMu.Lock()
	fns := append([]OnActionStateChangedFunc(nil), c.onActionStateChanged...)
	c.callbackMu.Unlock()
	for _, fn := range fns {
		fn(id, action, target, state, err)
	}
}

func (c *Controller) notifyNodeTraversed(id vda5050.AgvId, node vda5050.Node) {
	c.callbackMu.Lock()
	fns := append([]OnNodeTraversedFunc(nil), c.onNodeTraversed...)
	c.callbackMu.Unlock()
	for _, fn := range fns {
		fn(id, node)
	}
}

func (c *Controller) notifyEdgeTraversing(id vda5050.AgvId, edge vda5050.Edge, count int, delta map[string]any) {
	c.callbackMu.Lock()
	fns := append([]OnEdgeTraversingFunc(nil), c.onEdgeTraversing...)
	c.callbackMu.Unlock()
	for _, fn := range fns {
		fn(id, edge, count, delta)
	}
}

func (c *Controller) notifyEdgeTraversed(id vda5050.AgvId, edge vda5050.Edge) {
	c.callbackMu.Lock()
	fns := append([]OnEdgeTraversedFunc(nil), c.onEdgeTraversed...)
	c.callbackMu.Unlock()
	for _, fn := range fns {
		fn(id, edge)
	}
}

func (c *Controller) notifyOrderProcessed(id vda5050.AgvId, orderID string, err *vda5050.Error, active bool) {
	c.callbackMu.Lock()
	fns := append([]OnOrderProcessedFunc(nil), c.onOrderProcessed...)
	c.callbackMu.Unlock()
	for _, fn := range fns {
		fn(id, orderID, err, active)
	}
}

func (c *Controller) notifyActionError(id vda5050.AgvId, actionID string, err vda5050.Error) {
	c.callbackMu.Lock()
	fns := append([]OnActionErrorFunc(nil), c.onActionError...)
	c.callbackMu.Unlock()
	for _, fn := range fns {
		fn(id, actionID, err)
	}
}
