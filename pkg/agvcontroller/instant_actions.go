package agvcontroller

import (
	"sync"

	"github.com/daohu527/vlink/pkg/adapter"
	"github.com/daohu527/vlink/pkg/vda5050"
)

// Reserved instantAction actionTypes the controller special-cases rather
// than forwarding to the adapter (spec §4.3 "Instant actions").
const (
	actionTypeCancelOrder     = "cancelOrder"
	actionTypeStateRequest    = "stateRequest"
	actionTypeFactsheetRequest = "factsheetRequest"
	actionTypeStartPause      = "startPause"
	actionTypeStopPause       = "stopPause"
)

// HandleInstantActions processes a batch of instant actions in order.
// Reserved actionTypes are handled directly; everything else is
// forwarded to the adapter if it implements InstantActionAdapter, and
// rejected otherwise (spec §4.3).
func (c *Controller) HandleInstantActions(batch vda5050.InstantActions) {
	for _, a := range batch.Actions {
		switch a.ActionType {
		case actionTypeCancelOrder:
			c.handleCancelOrder(a)
		case actionTypeStateRequest:
			c.publishState()
		case actionTypeFactsheetRequest:
			c.handleFactsheetRequest(a)
		case actionTypeStartPause:
			c.handlePause(a, true)
		case actionTypeStopPause:
			c.handlePause(a, false)
		default:
			c.handleGenericInstantAction(a)
		}
	}
}

// handleCancelOrder runs the full cancelOrder sequence (spec §4.3 "Cancel
// order"): WAITING order-actions are failed immediately with no adapter
// call; cancelOrder itself is reported RUNNING; CancelAction is issued
// against every still-active node/edge action and awaited to completion;
// only once all of them are terminal is the traversal/idle waiter
// released so the runOrder goroutine can stop the AGV and finish
// cancelOrder (spec §4.3, scenario 3 of §8). cancelOrder issued with no
// active order is rejected with instantActionNoOrderToCancel.
func (c *Controller) handleCancelOrder(a vda5050.Action) {
	c.mu.Lock()
	if c.currentOrder == nil {
		c.mu.Unlock()
		c.recordInstantActionTerminal(a, vda5050.ActionFailed, "", []vda5050.Error{
			vda5050.NewError(vda5050.ErrorTypeInstantActionNoOrderToCancel, vda5050.ErrorLevelWarning, "no order to cancel",
				vda5050.ErrorReference{ReferenceKey: vda5050.RefActionID, ReferenceValue: a.ActionID}),
		})
		return
	}
	if c.pendingCancel {
		c.mu.Unlock()
		c.recordInstantActionTerminal(a, vda5050.ActionFinished, "order already canceling", nil)
		return
	}
	c.pendingCancel = true
	c.cancelAction = &a

	var toCancel []actionTarget
	for actionID, t := range c.targets {
		s, started := c.actionStates[actionID]
		switch {
		case !started || s.ActionStatus == vda5050.ActionWaiting:
			c.actionStates[actionID] = vda5050.ActionState{
				ActionID:          actionID,
				ActionType:        t.action.ActionType,
				ActionStatus:      vda5050.ActionFailed,
				ResultDescription: "order canceled",
			}
		case !s.ActionStatus.Terminal():
			toCancel = append(toCancel, *t)
		}
	}
	c.rebuildActionStatesLocked()
	cancelCh := c.cancelCh
	c.mu.Unlock()

	c.recordInstantActionStatus(a, adapter.ActionStatusChange{Status: vda5050.ActionRunning})

	var done []<-chan struct{}
	for _, t := range toCancel {
		target := t
		ch := make(chan struct{})
		var closeOnce sync.Once
		ctx := adapter.ActionContext{Action: target.action}
		ctx.UpdateStatus = func(change adapter.ActionStatusChange) {
			c.mu.Lock()
			c.updateActionStateLocked(target.action.ActionID, vda5050.ActionState{
				ActionID:          target.action.ActionID,
				ActionType:        target.action.ActionType,
				ActionStatus:      change.Status,
				ResultDescription: change.ResultDescription,
			}, change.Errors)
			c.mu.Unlock()
			if change.Status.Terminal() {
				closeOnce.Do(func() { close(ch) })
			}
		}
		done = append(done, ch)
		c.ad.CancelAction(ctx)
	}
	for _, ch := range done {
		<-ch
	}

	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
	if cancelCh != nil {
		close(cancelCh)
	}
}

// cancelSignal returns the channel the in-flight edge traversal selects
// on to notice a cancelOrder request.
func (c *Controller) cancelSignal() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelCh == nil {
		c.cancelCh = make(chan struct{})
	}
	return c.cancelCh
}

// performCancel finishes the cancel sequence once every order action is
// terminal: it unconditionally stops traversal (whether the AGV was
// mid-edge or idle at a node — spec §4.3 step 4), then tears down
// remaining nodeStates/edgeStates, drops currentOrder so a new orderId
// may be accepted, and reports cancelOrder FINISHED.
func (c *Controller) performCancel(order *vda5050.Order) {
	stopped := make(chan struct{})
	c.ad.StopTraverse(adapter.StopCallbacks{
		Stopped: func() { close(stopped) },
		DrivingToNextNode: func(next vda5050.Node) {
			c.mu.Lock()
			c.currentState.LastNodeID = next.NodeID
			c.currentState.LastNodeSequenceID = next.SequenceID
			c.mu.Unlock()
		},
	})
	<-stopped

	c.mu.Lock()
	if c.currentOrder != nil && c.currentOrder.OrderID == order.OrderID {
		c.currentOrder = nil
	}
	c.currentState.NodeStates = nil
	c.currentState.EdgeStates = nil
	c.currentState.Driving = false
	c.pendingCancel = false
	cancelAction := c.cancelAction
	c.cancelAction = nil
	c.rebuildActionStatesLocked()
	c.mu.Unlock()

	if cancelAction != nil {
		c.recordInstantActionTerminal(*cancelAction, vda5050.ActionFinished, "order canceled", nil)
	}
	c.log.Info().Str("orderId", order.OrderID).Msg("order canceled")
}

func (c *Controller) handleFactsheetRequest(a vda5050.Action) {
	c.mu.Lock()
	supported := c.factsheetSupported
	c.mu.Unlock()
	if !supported {
		c.recordInstantActionTerminal(a, vda5050.ActionFailed, "", []vda5050.Error{
			vda5050.NewError(vda5050.ErrorTypeInstantActionValidation, vda5050.ErrorLevelWarning, "factsheetRequest not supported on this protocol version",
				vda5050.ErrorReference{ReferenceKey: vda5050.RefActionID, ReferenceValue: a.ActionID}),
		})
		return
	}
	c.mu.Lock()
	fs := c.factsheet
	c.mu.Unlock()
	if fs != nil {
		if err := c.publisher.PublishFactsheet(fs); err != nil {
			c.log.Error().Err(err).Msg("publish factsheet failed")
		}
	}
	c.recordInstantActionTerminal(a, vda5050.ActionFinished, "", nil)
}

// handlePause delegates to the adapter's PauseAdapter hooks if present;
// if the adapter does not implement pausing, the instant action fails.
func (c *Controller) handlePause(a vda5050.Action, start bool) {
	pa, ok := c.ad.(adapter.PauseAdapter)
	if !ok {
		c.recordInstantActionTerminal(a, vda5050.ActionFailed, "", []vda5050.Error{
			vda5050.NewError(vda5050.ErrorTypeInstantActionValidation, vda5050.ErrorLevelWarning, "adapter does not support pausing",
				vda5050.ErrorReference{ReferenceKey: vda5050.RefActionID, ReferenceValue: a.ActionID}),
		})
		return
	}

	ctx := adapter.ActionContext{Action: a}
	ctx.UpdateStatus = func(change adapter.ActionStatusChange) {
		if change.Status == vda5050.ActionFinished {
			c.mu.Lock()
			paused := start
			c.currentState.Paused = &paused
			c.mu.Unlock()
		}
		c.recordInstantActionStatus(a, change)
	}
	if start {
		pa.StartPause(ctx)
	} else {
		pa.StopPause(ctx)
	}
}

// handleGenericInstantAction forwards an unreserved instantAction to the
// adapter's InstantActionAdapter hooks, or rejects it if unsupported.
func (c *Controller) handleGenericInstantAction(a vda5050.Action) {
	ia, ok := c.ad.(adapter.InstantActionAdapter)
	if !ok {
		c.recordInstantActionTerminal(a, vda5050.ActionFailed, "", []vda5050.Error{
			vda5050.NewError(vda5050.ErrorTypeInstantActionValidation, vda5050.ErrorLevelWarning, "unsupported instant action type: "+a.ActionType,
				vda5050.ErrorReference{ReferenceKey: vda5050.RefActionID, ReferenceValue: a.ActionID}),
		})
		return
	}

	ctx := adapter.ActionContext{Action: a}
	ctx.UpdateStatus = func(change adapter.ActionStatusChange) { c.recordInstantActionStatus(a, change) }
	if refs := ia.IsInstantActionExecutable(ctx); len(refs) > 0 {
		c.recordInstantActionTerminal(a, vda5050.ActionFailed, "", []vda5050.Error{
			vda5050.NewError(vda5050.ErrorTypeInstantAction, vda5050.ErrorLevelWarning, "instant action not executable",
				append(refs, vda5050.ErrorReference{ReferenceKey: vda5050.RefActionID, ReferenceValue: a.ActionID})...),
		})
		return
	}
	ia.ExecuteInstantAction(ctx)
}

// recordInstantActionStatus appends/updates rec for a in the instant
// action queue, inserting a new record on first report.
func (c *Controller) recordInstantActionStatus(a vda5050.Action, change adapter.ActionStatusChange) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := vda5050.ActionState{
		ActionID:          a.ActionID,
		ActionType:        a.ActionType,
		ActionStatus:      change.Status,
		ActionDescription: a.ActionDescription,
		ResultDescription: change.ResultDescription,
	}
	for _, rec := range c.instantQueue {
		if rec.action.ActionID == a.ActionID {
			rec.state = state
			c.currentState.Errors = append(c.currentState.Errors, change.Errors...)
			c.rebuildActionStatesLocked()
			return
		}
	}
	c.instantQueue = append(c.instantQueue, &instantRecord{action: a, state: state})
	c.currentState.Errors = append(c.currentState.Errors, change.Errors...)
	c.rebuildActionStatesLocked()
}

func (c *Controller) recordInstantActionTerminal(a vda5050.Action, status vda5050.ActionStatus, resultDescription string, errs []vda5050.Error) {
	c.recordInstantActionStatus(a, adapter.ActionStatusChange{Status: status, ResultDescription: resultDescription, Errors: errs})
}
