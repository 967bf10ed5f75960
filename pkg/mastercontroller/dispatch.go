package mastercontroller

import (
	"strconv"

	"github.com/daohu527/vlink/pkg/vda5050"
)

// HandleState is the dispatcher entry point: every State message received
// from any AGV is run through the order-rejection scan, order-progress
// reconstruction (with stitch absorption), and instant-action
// reconciliation, in that order (spec §4.4).
func (c *Controller) HandleState(id vda5050.AgvId, state vda5050.State) {
	c.liveness.Update(id, state)
	c.scanRejections(id, state)
	c.processOrderProgress(id, state)
	c.processInstantActions(id, state)
}

// scanRejections reports every order-level Error in state whose
// (orderId, orderUpdateId) reference still names a live arena entry,
// falling back to the AGV's most recently assigned order when the error
// carries no such reference (spec §4.4 "order-rejection scan", §9 open
// question on fallback attribution). A reference whose orderUpdateId
// cannot be parsed correlates to nothing, matching §8 scenario 5.
func (c *Controller) scanRejections(id vda5050.AgvId, state vda5050.State) {
	for _, e := range state.Errors {
		if !e.ErrorType.IsOrderLevel() {
			continue
		}
		key, ok := c.rejectionCacheKey(id, e)
		if !ok {
			continue
		}
		c.mu.Lock()
		cache, exists := c.caches[key]
		if exists {
			delete(c.caches, key)
		}
		c.mu.Unlock()
		if !exists {
			continue
		}
		errCopy := e
		c.notifyOrderProcessed(id, cache.orderID, &errCopy, false)
	}
}

func (c *Controller) rejectionCacheKey(id vda5050.AgvId, e vda5050.Error) (cacheKey, bool) {
	orderID, hasOrder := e.Reference(vda5050.RefOrderID)
	updateStr, hasUpdate := e.Reference(vda5050.RefOrderUpdateID)
	if hasOrder && hasUpdate {
		n, err := strconv.ParseUint(updateStr, 10, 32)
		if err != nil {
			return cacheKey{}, false
		}
		return cacheKey{agv: id, orderID: orderID, orderUpdateID: uint32(n)}, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.latestByAgv[id]
	return key, ok
}

// processOrderProgress reconstructs onActionStateChanged, onNodeTraversed
// and onEdgeTraversing/onEdgeTraversed events for the order named by
// state, absorbing its previous cache (if still alive) first so a
// stitched order's events continue seamlessly (spec §4.4 "Order
// progress", "Order stitch merging").
func (c *Controller) processOrderProgress(id vda5050.AgvId, state vda5050.State) {
	if state.OrderID == "" {
		return
	}
	key := cacheKey{agv: id, orderID: state.OrderID, orderUpdateID: state.OrderUpdateID}

	c.mu.Lock()
	cache, ok := c.caches[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	if cache.previous != nil {
		if prevCache, alive := c.caches[*cache.previous]; alive {
			cache.absorb(prevCache)
			delete(c.caches, *cache.previous)
		}
		cache.previous = nil
	}
	c.mu.Unlock()

	for _, change := range c.diffActionStates(cache, state) {
		var correlated *vda5050.Error
		if change.state.ActionStatus == vda5050.ActionFailed {
			correlated = findErrorByReference(state.Errors, vda5050.ErrorTypeOrderAction, vda5050.RefActionID, change.state.ActionID)
		}
		c.notifyActionStateChanged(id, change.target.action, actionTargetOf(change.target), change.state, correlated)
	}

	c.processEdgeTraversing(id, cache, state)

	advanced := state.LastNodeID != "" && (state.LastNodeID != cache.lastNodeID || state.LastNodeSequenceID != cache.lastNodeSequenceID)
	if advanced {
		cache.lastNodeID = state.LastNodeID
		cache.lastNodeSequenceID = state.LastNodeSequenceID
		if node := findNode(cache.nodes, state.LastNodeID); node != nil {
			c.notifyNodeTraversed(id, *node)
		}
		c.processEdgeTraversing(id, cache, state)
	}

	c.checkCompletion(id, cache, state)
}

// processEdgeTraversing locates the edge leaving the last traversed node
// and reports it RUNNING (delta of tracked fields) while it remains in
// state.EdgeStates, or traversed once it drops out (spec §4.4, §8
// "invocationCount").
func (c *Controller) processEdgeTraversing(id vda5050.AgvId, cache *OrderStateCache, state vda5050.State) {
	edge := findEdgeByStart(cache.edges, cache.lastNodeID)
	if edge == nil {
		return
	}
	if edgeStatePresent(state.EdgeStates, edge.EdgeID) {
		snap := trackedSnapshot(state)
		count := cache.edgeInvocations[edge.EdgeID] + 1
		delta := diffSnapshot(cache.edgeSnapshot[edge.EdgeID], snap, count == 1)
		cache.edgeSnapshot[edge.EdgeID] = snap
		if len(delta) > 0 {
			cache.edgeInvocations[edge.EdgeID] = count
			c.notifyEdgeTraversing(id, *edge, count, delta)
		}
		return
	}
	if cache.edgeInvocations[edge.EdgeID] > 0 && !cache.edgeTraversedFired[edge.EdgeID] {
		cache.edgeTraversedFired[edge.EdgeID] = true
		c.notifyEdgeTraversed(id, *edge)
	}
}

// checkCompletion detects full order completion (no nodeStates/
// edgeStates remain and every mapped action is terminal -- cache is
// retired) and the "processed but active" milestone (the released base
// is exhausted but a horizon remains, so the cache stays alive for a
// possible stitch) (spec §4.4 "Order progress").
func (c *Controller) checkCompletion(id vda5050.AgvId, cache *OrderStateCache, state vda5050.State) {
	if !allTerminal(cache) {
		return
	}
	if len(state.NodeStates) == 0 && len(state.EdgeStates) == 0 {
		c.mu.Lock()
		delete(c.caches, cache.key())
		c.mu.Unlock()
		c.notifyOrderProcessed(id, cache.orderID, nil, false)
		return
	}
	if !cache.baseProcessedFired && allReleasedGone(state) {
		cache.baseProcessedFired = true
		c.notifyOrderProcessed(id, cache.orderID, nil, true)
	}
}

func allTerminal(cache *OrderStateCache) bool {
	for actionID := range cache.actions {
		status, ok := cache.lastActionStatus[actionID]
		if !ok || !status.Terminal() {
			return false
		}
	}
	return true
}

func allReleasedGone(state vda5050.State) bool {
	for _, n := range state.NodeStates {
		if n.Released {
			return false
		}
	}
	for _, e := range state.EdgeStates {
		if e.Released {
			return false
		}
	}
	return true
}

type actionStateChange struct {
	target actionTarget
	state  vda5050.ActionState
}

// diffActionStates reports the order-action ActionStates whose status
// differs from what the cache last saw, and records the new status.
func (c *Controller) diffActionStates(cache *OrderStateCache, state vda5050.State) []actionStateChange {
	var out []actionStateChange
	for _, as := range state.ActionStates {
		target, known := cache.actions[as.ActionID]
		if !known {
			continue // not one of this order's mapped actions -- an instant action, handled separately
		}
		if prev, seen := cache.lastActionStatus[as.ActionID]; seen && prev == as.ActionStatus {
			continue
		}
		cache.lastActionStatus[as.ActionID] = as.ActionStatus
		out = append(out, actionStateChange{target: target, state: as})
	}
	return out
}

func findErrorByReference(errs []vda5050.Error, kind vda5050.ErrorType, refKey, refValue string) *vda5050.Error {
	for i := range errs {
		if errs[i].ErrorType != kind {
			continue
		}
		if v, ok := errs[i].Reference(refKey); ok && v == refValue {
			e := errs[i]
			return &e
		}
	}
	return nil
}

func trackedSnapshot(state vda5050.State) edgeTrackingSnapshot {
	return edgeTrackingSnapshot{
		distanceSinceLastNode: state.DistanceSinceLastNode,
		driving:               state.Driving,
		newBaseRequest:        state.NewBaseRequest,
		operatingMode:         state.OperatingMode,
		paused:                state.Paused,
		safetyState:           state.SafetyState,
	}
}

func diffSnapshot(prev, next edgeTrackingSnapshot, full bool) map[string]any {
	out := make(map[string]any)
	if full || !floatPtrEqual(prev.distanceSinceLastNode, next.distanceSinceLastNode) {
		out["distanceSinceLastNode"] = next.distanceSinceLastNode
	}
	if full || prev.driving != next.driving {
		out["driving"] = next.driving
	}
	if full || !boolPtrEqual(prev.newBaseRequest, next.newBaseRequest) {
		out["newBaseRequest"] = next.newBaseRequest
	}
	if full || prev.operatingMode != next.operatingMode {
		out["operatingMode"] = next.operatingMode
	}
	if full || !boolPtrEqual(prev.paused, next.paused) {
		out["paused"] = next.paused
	}
	if full || prev.safetyState != next.safetyState {
		out["safetyState"] = next.safetyState
	}
	return out
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// processInstantActions matches every instant action the master has
// issued against id to an ActionState (by actionId), an actionId-tagged
// error, or -- failing both -- an issueRef-tagged validation error from
// the batch it was issued in (spec §4.4 "Instant actions", §9).
func (c *Controller) processInstantActions(id vda5050.AgvId, state vda5050.State) {
	c.mu.Lock()
	byID := c.instantByID[id]
	pending := make(map[string]*instantActionCache, len(byID))
	for actionID, ic := range byID {
		pending[actionID] = ic
	}
	c.mu.Unlock()

	for actionID, ic := range pending {
		if as := findActionState(state.ActionStates, actionID); as != nil {
			if ic.seen && ic.lastStatus == as.ActionStatus {
				continue
			}
			ic.seen = true
			ic.lastStatus = as.ActionStatus
			var correlated *vda5050.Error
			if as.ActionStatus == vda5050.ActionFailed {
				correlated = findErrorByReference(state.Errors, vda5050.ErrorTypeInstantAction, vda5050.RefActionID, actionID)
			}
			c.notifyActionStateChanged(id, ic.action, ActionTarget{Kind: TargetInstant}, *as, correlated)
			if as.ActionStatus.Terminal() {
				c.dropInstantAction(id, actionID)
			}
			continue
		}
		if e := findErrorByReference(state.Errors, vda5050.ErrorTypeInstantAction, vda5050.RefActionID, actionID); e != nil {
			c.notifyActionError(id, actionID, *e)
			c.dropInstantAction(id, actionID)
			continue
		}
		if e := findIssueRefError(state.Errors, ic.issueRef); e != nil {
			c.notifyActionError(id, actionID, *e)
			c.dropInstantAction(id, actionID)
		}
	}
}

func (c *Controller) dropInstantAction(id vda5050.AgvId, actionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if byID, ok := c.instantByID[id]; ok {
		delete(byID, actionID)
	}
}

func findActionState(states []vda5050.ActionState, actionID string) *vda5050.ActionState {
	for i := range states {
		if states[i].ActionID == actionID {
			return &states[i]
		}
	}
	return nil
}

func findIssueRefError(errs []vda5050.Error, issueRef uint64) *vda5050.Error {
	want := strconv.FormatUint(issueRef, 10)
	for i := range errs {
		if errs[i].ErrorType != vda5050.ErrorTypeInstantActionValidation {
			continue
		}
		if v, ok := errs[i].Reference(vda5050.RefIssueRef); ok && v == want {
			e := errs[i]
			return &e
		}
	}
	return nil
}
