package agvcontroller

import (
	"github.com/daohu527/vlink/pkg/vda5050"
)

// HandleOrder implements the order intake decision tree (spec §4.3):
// validate structure, reject while a cancelOrder is still draining,
// then classify against any currently active order as a fresh order, a
// stitching update, a stale duplicate, or a conflicting order while one
// is still in flight.
func (c *Controller) HandleOrder(order vda5050.Order) {
	if err := order.ValidateStructure(); err != nil {
		c.rejectOrder(order.OrderID, order.OrderUpdateID, vda5050.ErrorTypeOrderValidation, err.Error())
		return
	}

	c.mu.Lock()
	if c.pendingCancel {
		c.mu.Unlock()
		c.rejectOrder(order.OrderID, order.OrderUpdateID, vda5050.ErrorTypeOrder, "a cancelOrder is still in progress")
		return
	}
	current := c.currentOrder
	c.mu.Unlock()

	switch {
	case current == nil:
		c.acceptFreshOrder(order)
	case order.OrderID == current.OrderID:
		c.handleSameOrderID(order, *current)
	default:
		c.handleDifferentOrderID(order, *current)
	}
}

func (c *Controller) handleSameOrderID(order, current vda5050.Order) {
	switch {
	case order.OrderUpdateID == current.OrderUpdateID:
		// Retransmission of an already-accepted order: discard and
		// republish the current state unchanged (spec §4.3 step 6).
		c.log.Debug().Str("orderId", order.OrderID).Uint32("orderUpdateId", order.OrderUpdateID).Msg("duplicate order update discarded, republishing state")
		c.publishState()
	case order.OrderUpdateID > current.OrderUpdateID:
		c.acceptStitchedOrder(order, current)
	default:
		c.rejectOrder(order.OrderID, order.OrderUpdateID, vda5050.ErrorTypeOrderUpdate, "orderUpdateId older than currently active order")
	}
}

// handleDifferentOrderID handles a different orderId arriving while
// another order may still be active. An idle AGV accepts it fresh; an
// active one requires the new order to stitch against the current
// base end, exactly like a same-orderId update (spec §4.3 step 5).
func (c *Controller) handleDifferentOrderID(order, current vda5050.Order) {
	c.mu.Lock()
	idle := c.orderCompleteLocked(current)
	c.mu.Unlock()

	if idle {
		c.acceptFreshOrder(order)
		return
	}
	c.acceptStitchedOrder(order, current)
}

// orderCompleteLocked reports whether every node/edge action of order has
// reached a terminal status and the AGV has reached the order's last base
// node, so a new unrelated orderId may be accepted.
func (c *Controller) orderCompleteLocked(order vda5050.Order) bool {
	for _, n := range order.Nodes {
		for _, a := range n.Actions {
			if s, ok := c.actionStates[a.ActionID]; !ok || !s.ActionStatus.Terminal() {
				return false
			}
		}
	}
	for _, e := range order.Edges {
		for _, a := range e.Actions {
			if s, ok := c.actionStates[a.ActionID]; !ok || !s.ActionStatus.Terminal() {
				return false
			}
		}
	}
	last := order.LastBaseNode()
	return last != nil && c.currentState.LastNodeID == last.NodeID
}

// blockedForNewOrderLocked reports whether the AGV's own reported status
// forbids accepting a new order right now: charging, an active e-stop, a
// field violation, or an operating mode outside AUTOMATIC/SEMIAUTOMATIC
// (spec §4.3 step 4).
func (c *Controller) blockedForNewOrderLocked() bool {
	s := c.currentState
	if s.BatteryState.Charging {
		return true
	}
	if s.SafetyState.EStop != vda5050.EStopNone {
		return true
	}
	if s.SafetyState.FieldViolation {
		return true
	}
	switch s.OperatingMode {
	case vda5050.OperatingAutomatic, vda5050.OperatingSemiautomatic:
		return false
	default:
		return true
	}
}

func (c *Controller) acceptFreshOrder(order vda5050.Order) {
	first := order.Nodes[0]
	if refs := c.ad.IsRouteTraversable(order.Nodes, order.Edges); len(refs) > 0 {
		c.rejectOrderWithRefs(order.OrderID, order.OrderUpdateID, vda5050.ErrorTypeOrderUpdate, "route not traversable", refs)
		return
	}
	if refs := c.ad.IsNodeWithinDeviationRange(first); len(refs) > 0 {
		c.rejectOrderWithRefs(order.OrderID, order.OrderUpdateID, vda5050.ErrorTypeOrderUpdate, "first node outside deviation range", refs)
		return
	}

	c.mu.Lock()
	if c.pendingCancel {
		c.mu.Unlock()
		c.rejectOrder(order.OrderID, order.OrderUpdateID, vda5050.ErrorTypeOrder, "a cancelOrder is still in progress")
		return
	}
	if c.blockedForNewOrderLocked() {
		c.mu.Unlock()
		c.rejectOrder(order.OrderID, order.OrderUpdateID, vda5050.ErrorTypeOrder, "AGV not ready to accept a new order (charging, eStop, field violation, or operating mode)")
		return
	}
	c.currentOrder = &order
	c.actionStates = make(map[string]vda5050.ActionState)
	c.targets = buildTargets(&order)
	c.pendingCancel = false
	c.cancelCh = make(chan struct{})
	c.currentState.OrderID = order.OrderID
	c.currentState.OrderUpdateID = order.OrderUpdateID
	c.currentState.ZoneSetID = order.ZoneSetID
	c.currentState.NodeStates = nodeStatesFor(order.Nodes[1:])
	c.currentState.EdgeStates = edgeStatesFor(order.Edges)
	c.currentState.LastNodeID = first.NodeID
	c.currentState.LastNodeSequenceID = first.SequenceID
	c.rebuildActionStatesLocked()
	c.mu.Unlock()

	c.log.Info().Str("orderId", order.OrderID).Msg("order accepted")
	go c.runOrder(&order, 0)
}

// acceptStitchedOrder grafts an order update onto the in-flight order: the
// new base must start exactly where the old order's base ended (spec §4.3
// "order stitching" / edge-endpoint continuity already checked by
// ValidateStructure on each order independently; here we check the join).
// current and order may carry different orderIds (spec §4.3 step 5).
func (c *Controller) acceptStitchedOrder(order, current vda5050.Order) {
	last := current.LastBaseNode()
	if last == nil || len(order.Nodes) == 0 || order.Nodes[0].NodeID != last.NodeID || order.Nodes[0].SequenceID != last.SequenceID {
		c.rejectOrder(order.OrderID, order.OrderUpdateID, vda5050.ErrorTypeOrderUpdate, "stitched order does not continue from the current base")
		return
	}

	c.mu.Lock()
	if c.pendingCancel {
		c.mu.Unlock()
		c.rejectOrder(order.OrderID, order.OrderUpdateID, vda5050.ErrorTypeOrder, "a cancelOrder is still in progress")
		return
	}
	if c.blockedForNewOrderLocked() {
		c.mu.Unlock()
		c.rejectOrder(order.OrderID, order.OrderUpdateID, vda5050.ErrorTypeOrder, "AGV not ready to accept a new order (charging, eStop, field violation, or operating mode)")
		return
	}
	resumeFromNode := len(c.currentState.NodeStates) == 0 && c.pausedNode == nil
	preserved := c.actionStates
	c.currentOrder = &order
	c.actionStates = preserved
	c.targets = buildTargets(&order)
	c.currentState.OrderID = order.OrderID
	c.currentState.OrderUpdateID = order.OrderUpdateID
	c.currentState.ZoneSetID = order.ZoneSetID
	c.currentState.NodeStates = nodeStatesFor(order.Nodes[1:])
	c.currentState.EdgeStates = edgeStatesFor(order.Edges)
	c.rebuildActionStatesLocked()
	c.mu.Unlock()

	c.log.Info().Str("orderId", order.OrderID).Uint32("orderUpdateId", order.OrderUpdateID).Msg("order updated (stitched)")
	if resumeFromNode {
		go c.runOrder(&order, 0)
	}
	// else: the in-flight runOrder goroutine observes the swapped
	// c.currentOrder on its next node boundary and continues from there.
}

func (c *Controller) rejectOrder(orderID string, orderUpdateID uint32, kind, desc string) {
	c.rejectOrderWithRefs(orderID, orderUpdateID, kind, desc, nil)
}

func (c *Controller) rejectOrderWithRefs(orderID string, orderUpdateID uint32, kind, desc string, refs []vda5050.ErrorReference) {
	all := append([]vda5050.ErrorReference{
		{ReferenceKey: vda5050.RefOrderID, ReferenceValue: orderID},
	}, refs...)
	e := vda5050.NewError(kind, vda5050.ErrorLevelWarning, desc, all...)

	c.mu.Lock()
	c.currentState.Errors = append(c.currentState.Errors, e)
	c.mu.Unlock()
	c.log.Warn().Str("orderId", orderID).Str("reason", desc).Msg("order rejected")
}

func buildTargets(order *vda5050.Order) map[string]*actionTarget {
	targets := make(map[string]*actionTarget)
	for _, n := range order.Nodes {
		for _, a := range n.Actions {
			targets[a.ActionID] = &actionTarget{action: a, nodeID: n.NodeID}
		}
	}
	for _, e := range order.Edges {
		for _, a := range e.Actions {
			targets[a.ActionID] = &actionTarget{action: a, edgeID: e.EdgeID}
		}
	}
	return targets
}

func nodeStatesFor(nodes []vda5050.Node) []vda5050.NodeState {
	states := make([]vda5050.NodeState, 0, len(nodes))
	for _, n := range nodes {
		states = append(states, vda5050.NodeState{
			NodeID:       n.NodeID,
			SequenceID:   n.SequenceID,
			Released:     n.Released,
			NodePosition: n.NodePosition,
		})
	}
	return states
}

func edgeStatesFor(edges []vda5050.Edge) []vda5050.EdgeState {
	states := make([]vda5050.EdgeState, 0, len(edges))
	for _, e := range edges {
		states = append(states, vda5050.EdgeState{
			EdgeID:      e.EdgeID,
			SequenceID:  e.SequenceID,
			Released:    e.Released,
			StartNodeID: e.StartNodeID,
			EndNodeID:   e.EndNodeID,
		})
	}
	return states
}
