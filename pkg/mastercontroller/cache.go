package mastercontroller

import "github.com/daohu527/vlink/pkg/vda5050"

// cacheKey identifies a single assigned order instance in the arena,
// exactly as the AGV itself identifies it on the wire (spec §4.4
// "OrderStateCache").
type cacheKey struct {
	agv           vda5050.AgvId
	orderID       string
	orderUpdateID uint32
}

// actionTarget records which node or edge an order-action belongs to.
type actionTarget struct {
	action vda5050.Action
	nodeID string // set if this is a node action
	edgeID string // set if this is an edge action
}

// edgeTrackingSnapshot is the subset of State fields onEdgeTraversing
// reports deltas over while the AGV is driving an edge (spec §4.4 "Order
// progress", §8 invocationCount semantics).
type edgeTrackingSnapshot struct {
	distanceSinceLastNode *float64
	driving               bool
	newBaseRequest        *bool
	operatingMode         vda5050.OperatingMode
	paused                *bool
	safetyState           vda5050.SafetyState
}

// OrderStateCache is the per-order arena entry the master reconstructs
// AGV progress against (spec §4.4, §9 "Cyclic references"). previous is
// a back-chain lookup key into the same arena -- never an owning
// pointer -- and is nulled once absorbed by a stitch.
type OrderStateCache struct {
	agvID         vda5050.AgvId
	orderID       string
	orderUpdateID uint32

	nodes   []vda5050.Node
	edges   []vda5050.Edge
	actions map[string]actionTarget // actionId -> target, unioned across stitches

	lastActionStatus map[string]vda5050.ActionStatus

	lastNodeID         string
	lastNodeSequenceID uint32

	edgeInvocations    map[string]int // edgeId -> 1-based onEdgeTraversing invocation count
	edgeSnapshot       map[string]edgeTrackingSnapshot
	edgeTraversedFired map[string]bool

	previous           *cacheKey // back-chain: the cache (if still alive) this one may absorb
	baseProcessedFired bool      // guards a single "processed but active" event while a horizon remains
}

func newOrderStateCache(id vda5050.AgvId, order vda5050.Order, previous *cacheKey) *OrderStateCache {
	c := &OrderStateCache{
		agvID:              id,
		orderID:            order.OrderID,
		orderUpdateID:      order.OrderUpdateID,
		nodes:              append([]vda5050.Node(nil), order.Nodes...),
		edges:              append([]vda5050.Edge(nil), order.Edges...),
		actions:            make(map[string]actionTarget),
		lastActionStatus:   make(map[string]vda5050.ActionStatus),
		edgeInvocations:    make(map[string]int),
		edgeSnapshot:       make(map[string]edgeTrackingSnapshot),
		edgeTraversedFired: make(map[string]bool),
		previous:           previous,
	}
	for _, n := range c.nodes {
		for _, a := range n.Actions {
			c.actions[a.ActionID] = actionTarget{action: a, nodeID: n.NodeID}
		}
	}
	for _, e := range c.edges {
		for _, a := range e.Actions {
			c.actions[a.ActionID] = actionTarget{action: a, edgeID: e.EdgeID}
		}
	}
	return c
}

func (c *OrderStateCache) key() cacheKey {
	return cacheKey{agv: c.agvID, orderID: c.orderID, orderUpdateID: c.orderUpdateID}
}

// absorb merges prev's stitch point, action map, and traversal progress
// into c (spec §4.4 "Order stitch merging"). The current-base-end node
// of prev is located and its actions appended to c's first node so
// dispatch keeps firing events for both orders' actions at that node;
// prev's un-absorbed horizon is discarded along with prev itself.
func (c *OrderStateCache) absorb(prev *OrderStateCache) {
	if stitchNode := lastReleasedNode(prev.nodes); stitchNode != nil && len(c.nodes) > 0 {
		first := &c.nodes[0]
		if first.NodeID == stitchNode.NodeID {
			first.Actions = append(append([]vda5050.Action(nil), stitchNode.Actions...), first.Actions...)
			for _, a := range stitchNode.Actions {
				if _, exists := c.actions[a.ActionID]; !exists {
					c.actions[a.ActionID] = actionTarget{action: a, nodeID: first.NodeID}
				}
			}
		}
	}
	for actionID, t := range prev.actions {
		if _, exists := c.actions[actionID]; !exists {
			c.actions[actionID] = t
		}
	}
	for actionID, status := range prev.lastActionStatus {
		if _, exists := c.lastActionStatus[actionID]; !exists {
			c.lastActionStatus[actionID] = status
		}
	}
	if c.lastNodeID == "" {
		c.lastNodeID = prev.lastNodeID
		c.lastNodeSequenceID = prev.lastNodeSequenceID
	}
}

func lastReleasedNode(nodes []vda5050.Node) *vda5050.Node {
	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i].Released {
			return &nodes[i]
		}
	}
	return nil
}

func findNode(nodes []vda5050.Node, nodeID string) *vda5050.Node {
	for i := range nodes {
		if nodes[i].NodeID == nodeID {
			return &nodes[i]
		}
	}
	return nil
}

func findEdgeByStart(edges []vda5050.Edge, startNodeID string) *vda5050.Edge {
	if startNodeID == "" {
		return nil
	}
	for i := range edges {
		if edges[i].StartNodeID == startNodeID {
			return &edges[i]
		}
	}
	return nil
}

func edgeStatePresent(states []vda5050.EdgeState, edgeID string) bool {
	for _, s := range states {
		if s.EdgeID == edgeID {
			return true
		}
	}
	return false
}

// instantActionCache tracks a single in-flight instant action the master
// initiated, correlated either by actionId or, failing that, by the
// monotonic issueRef stamped on the whole batch (spec §4.4 "Instant
// actions", §9).
type instantActionCache struct {
	action     vda5050.Action
	issueRef   uint64
	lastStatus vda5050.ActionStatus
	seen       bool
}
