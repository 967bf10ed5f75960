package agvcontroller

import (
	"github.com/daohu527/vlink/pkg/adapter"
	"github.com/daohu527/vlink/pkg/vda5050"
)

// runOrder drives an accepted order's released base to completion: node
// actions (respecting blocking semantics), edge traversal, and base
// extension via stitched updates (spec §4.3). It runs in its own
// goroutine for the lifetime of the order.
func (c *Controller) runOrder(order *vda5050.Order, idx int) {
	for {
		c.mu.Lock()
		ord := c.currentOrder
		if ord == nil || ord.OrderID != order.OrderID {
			c.mu.Unlock()
			return // superseded by an unrelated order; a different goroutine owns it
		}
		order = ord
		baseLen := order.BaseLength()
		canceled := c.pendingCancel
		c.mu.Unlock()

		if canceled {
			c.performCancel(order)
			return
		}
		if idx >= len(order.Nodes) {
			return
		}
		if idx >= baseLen {
			if !c.waitForOrderChange(order) {
				c.performCancel(order)
				return
			}
			continue
		}

		c.runNodeActionsBlocking(order.Nodes[idx])
		c.markNodeReached(order.Nodes[idx])

		if idx == len(order.Nodes)-1 {
			c.log.Info().Str("orderId", order.OrderID).Msg("order base complete")
			if !c.waitForOrderChange(order) {
				c.performCancel(order)
				return
			}
			continue
		}

		if !c.traverseEdgeBlocking(order.Edges[idx]) {
			c.performCancel(order)
			return
		}
		idx++
	}
}

// waitForOrderChange blocks until the order is extended by a stitched
// update (spec §4.3) or canceled. Returns false on cancel.
func (c *Controller) waitForOrderChange(order *vda5050.Order) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.currentOrder == order && !c.pendingCancel {
		c.cond.Wait()
	}
	return !c.pendingCancel
}

// startAction kicks off a single action (checking executability first) and
// returns a channel closed once ctx.UpdateStatus reports a terminal status.
func (c *Controller) startAction(a vda5050.Action) <-chan struct{} {
	done := make(chan struct{})
	var closeOnce bool

	ctx := adapter.ActionContext{Action: a}
	ctx.UpdateStatus = func(change adapter.ActionStatusChange) {
		c.mu.Lock()
		c.updateActionStateLocked(a.ActionID, vda5050.ActionState{
			ActionID:          a.ActionID,
			ActionType:        a.ActionType,
			ActionStatus:      change.Status,
			ActionDescription: a.ActionDescription,
			ResultDescription: change.ResultDescription,
		}, change.Errors)
		terminal := change.Status.Terminal()
		c.mu.Unlock()
		if terminal && !closeOnce {
			closeOnce = true
			close(done)
		}
	}

	if refs := c.ad.IsActionExecutable(ctx); len(refs) > 0 {
		ctx.UpdateStatus(adapter.ActionStatusChange{
			Status: vda5050.ActionFailed,
			Errors: []vda5050.Error{vda5050.NewError(vda5050.ErrorTypeOrderAction, vda5050.ErrorLevelWarning, "action not executable", append(refs, vda5050.ErrorReference{ReferenceKey: vda5050.RefActionID, ReferenceValue: a.ActionID})...)},
		})
		return done
	}
	c.ad.ExecuteAction(ctx)
	return done
}

// runNodeActionsBlocking executes a node's actions per their blocking
// type: HARD actions run one at a time to completion; SOFT and NONE
// actions start concurrently once HARD actions are done, but only SOFT
// completion is awaited before the AGV may depart (spec GLOSSARY
// "blockingType").
func (c *Controller) runNodeActionsBlocking(node vda5050.Node) {
	for _, a := range node.Actions {
		if a.BlockingType == vda5050.BlockingHard {
			<-c.startAction(a)
		}
	}
	var softDone []<-chan struct{}
	for _, a := range node.Actions {
		switch a.BlockingType {
		case vda5050.BlockingSoft:
			softDone = append(softDone, c.startAction(a))
		case vda5050.BlockingNone:
			c.startAction(a)
		}
	}
	for _, d := range softDone {
		<-d
	}
}

// traverseEdgeBlocking drives the edge and concurrently runs its actions;
// any action still in flight when the AGV physically reaches the end
// node is wound down via FinishEdgeAction (spec §6 AgvAdapter). Returns
// false if canceled mid-traversal.
func (c *Controller) traverseEdgeBlocking(edge vda5050.Edge) bool {
	c.mu.Lock()
	c.currentState.Driving = true
	c.mu.Unlock()

	traversed := make(chan struct{})
	c.ad.TraverseEdge(edge, adapter.TraverseCallbacks{EdgeTraversed: func() { close(traversed) }})

	actionDone := make([]<-chan struct{}, len(edge.Actions))
	for i, a := range edge.Actions {
		actionDone[i] = c.startAction(a)
	}

	cancelCh := c.cancelSignal()
	select {
	case <-traversed:
	case <-cancelCh:
		// Traversal is stopped uniformly by performCancel (spec §4.3
		// step 4), after handleCancelOrder has already driven every
		// order action to a terminal status.
		return false
	}

	for i, d := range actionDone {
		select {
		case <-d:
		default:
			a := edge.Actions[i]
			c.ad.FinishEdgeAction(adapter.EdgeContext{
				Action: a,
				Edge:   edge,
				UpdateStatus: func(change adapter.ActionStatusChange) {
					c.mu.Lock()
					c.updateActionStateLocked(a.ActionID, vda5050.ActionState{
						ActionID:     a.ActionID,
						ActionType:   a.ActionType,
						ActionStatus: change.Status,
					}, change.Errors)
					c.mu.Unlock()
				},
			})
		}
	}

	c.markEdgeReached(edge)
	return true
}

// markNodeReached records arrival at node: advances LastNodeID and drops
// the now-traversed entry from NodeStates (spec §3 "State merge
// semantics").
func (c *Controller) markNodeReached(node vda5050.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentState.LastNodeID = node.NodeID
	c.currentState.LastNodeSequenceID = node.SequenceID
	c.currentState.Driving = false
	kept := c.currentState.NodeStates[:0]
	for _, n := range c.currentState.NodeStates {
		if n.NodeID == node.NodeID && n.SequenceID == node.SequenceID {
			continue
		}
		kept = append(kept, n)
	}
	c.currentState.NodeStates = kept
}

// markEdgeReached drops a traversed edge from EdgeStates. It leaves the
// Driving flag set; markNodeReached clears it at the end node.
func (c *Controller) markEdgeReached(edge vda5050.Edge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.currentState.EdgeStates[:0]
	for _, e := range c.currentState.EdgeStates {
		if e.EdgeID == edge.EdgeID && e.SequenceID == edge.SequenceID {
			continue
		}
		kept = append(kept, e)
	}
	c.currentState.EdgeStates = kept
}
