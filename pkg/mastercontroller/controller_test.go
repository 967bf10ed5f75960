package mastercontroller

import (
	"testing"

	"github.com/daohu527/vlink/internal/logging"
	"github.com/daohu527/vlink/pkg/vda5050"
)

type fakeTransport struct {
	orders  []vda5050.Order
	actions []vda5050.InstantActions
}

func (f *fakeTransport) AssignOrder(_ vda5050.AgvId, order vda5050.Order) error {
	f.orders = append(f.orders, order)
	return nil
}
func (f *fakeTransport) SendInstantActions(_ vda5050.AgvId, actions vda5050.InstantActions) error {
	f.actions = append(f.actions, actions)
	return nil
}

func testOrder() vda5050.Order {
	return vda5050.Order{
		OrderID: "o1",
		Nodes: []vda5050.Node{
			{NodeID: "n0", SequenceID: 0, Released: true},
			{NodeID: "n1", SequenceID: 2, Released: true},
		},
		Edges: []vda5050.Edge{
			{EdgeID: "e0", SequenceID: 1, Released: true, StartNodeID: "n0", EndNodeID: "n1"},
		},
	}
}

func threeNodeOrder() vda5050.Order {
	return vda5050.Order{
		OrderID: "o1",
		Nodes: []vda5050.Node{
			{NodeID: "n0", SequenceID: 0, Released: true},
			{NodeID: "n1", SequenceID: 2, Released: true},
			{NodeID: "n2", SequenceID: 4, Released: true},
		},
		Edges: []vda5050.Edge{
			{EdgeID: "e0", SequenceID: 1, Released: true, StartNodeID: "n0", EndNodeID: "n1"},
			{EdgeID: "e1", SequenceID: 3, Released: true, StartNodeID: "n1", EndNodeID: "n2"},
		},
	}
}

func TestAssignOrderSendsUpdateZero(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport, logging.Nop())
	id := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-1"}

	if err := c.AssignOrder(id, testOrder()); err != nil {
		t.Fatalf("AssignOrder: %v", err)
	}
	if len(transport.orders) != 1 || transport.orders[0].OrderUpdateID != 0 {
		t.Fatalf("orders = %+v", transport.orders)
	}
}

func TestAssignOrderDiscardsIdenticallyKeyedRepeat(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport, logging.Nop())
	id := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-1"}

	_ = c.AssignOrder(id, testOrder())
	_ = c.AssignOrder(id, testOrder())

	if len(transport.orders) != 1 {
		t.Errorf("orders sent = %d, want 1 (second identically-keyed order discarded)", len(transport.orders))
	}
}

func TestStitchOrderIncrementsUpdateID(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport, logging.Nop())
	id := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-1"}

	_ = c.AssignOrder(id, testOrder())

	follow := testOrder()
	follow.Nodes = append(follow.Nodes, vda5050.Node{NodeID: "n2", SequenceID: 4, Released: true})
	follow.Edges = append(follow.Edges, vda5050.Edge{EdgeID: "e1", SequenceID: 3, Released: true, StartNodeID: "n1", EndNodeID: "n2"})

	if err := c.StitchOrder(id, follow); err != nil {
		t.Fatalf("StitchOrder: %v", err)
	}
	if transport.orders[1].OrderUpdateID != 1 {
		t.Errorf("stitched orderUpdateId = %d, want 1", transport.orders[1].OrderUpdateID)
	}
}

func TestStitchOrderRejectsMismatchedOrderID(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport, logging.Nop())
	id := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-1"}
	_ = c.AssignOrder(id, testOrder())

	other := testOrder()
	other.OrderID = "different"
	if err := c.StitchOrder(id, other); err == nil {
		t.Error("expected error stitching a mismatched orderId")
	}
}

func TestHandleStateReportsOrderRejection(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport, logging.Nop())
	id := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-1"}
	_ = c.AssignOrder(id, testOrder())

	var got []vda5050.Error
	c.OnOrderRejected(func(_ vda5050.AgvId, _ string, e vda5050.Error) { got = append(got, e) })

	reject := vda5050.State{
		OrderID:       "o1",
		OrderUpdateID: 0,
		Errors: []vda5050.Error{
			vda5050.NewError(vda5050.ErrorTypeOrder, vda5050.ErrorLevelFatal, "route blocked",
				vda5050.ErrorReference{ReferenceKey: vda5050.RefOrderID, ReferenceValue: "o1"},
				vda5050.ErrorReference{ReferenceKey: vda5050.RefOrderUpdateID, ReferenceValue: "0"}),
		},
	}
	c.HandleState(id, reject)
	if len(got) != 1 {
		t.Fatalf("rejections = %d, want 1", len(got))
	}

	// The arena entry backing this (orderId, orderUpdateId) is retired on
	// rejection, so re-delivery of the identical error cannot re-fire.
	c.HandleState(id, reject)
	if len(got) != 1 {
		t.Errorf("rejections after duplicate state = %d, want still 1", len(got))
	}
}

func TestHandleStateFallsBackToLatestOrderWithoutReferences(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport, logging.Nop())
	id := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-1"}
	_ = c.AssignOrder(id, testOrder())

	var orderID string
	c.OnOrderRejected(func(_ vda5050.AgvId, o string, _ vda5050.Error) { orderID = o })

	c.HandleState(id, vda5050.State{
		OrderID: "o1",
		Errors: []vda5050.Error{
			vda5050.NewError(vda5050.ErrorTypeNoRoute, vda5050.ErrorLevelFatal, "blocked, no references"),
		},
	})
	if orderID != "o1" {
		t.Errorf("orderID = %q, want o1 (fallback to most recently assigned order)", orderID)
	}
}

func TestHandleStateReportsCompletionOnce(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport, logging.Nop())
	id := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-1"}
	_ = c.AssignOrder(id, testOrder())

	count := 0
	c.OnOrderComplete(func(vda5050.AgvId, string) { count++ })

	complete := vda5050.State{OrderID: "o1", OrderUpdateID: 0}
	c.HandleState(id, complete)
	c.HandleState(id, complete)

	if count != 1 {
		t.Errorf("completion callbacks = %d, want 1", count)
	}
}

func TestHandleStateReportsActionStateChanged(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport, logging.Nop())
	id := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-1"}

	order := testOrder()
	order.Nodes[0].Actions = []vda5050.Action{{ActionID: "a1", ActionType: "pick"}}
	_ = c.AssignOrder(id, order)

	var reported []vda5050.ActionState
	c.OnActionStateChanged(func(_ vda5050.AgvId, _ vda5050.Action, target ActionTarget, state vda5050.ActionState, _ *vda5050.Error) {
		if target.Kind != TargetNode || target.NodeID != "n0" {
			t.Errorf("target = %+v, want node n0", target)
		}
		reported = append(reported, state)
	})

	c.HandleState(id, vda5050.State{
		OrderID:       "o1",
		OrderUpdateID: 0,
		ActionStates:  []vda5050.ActionState{{ActionID: "a1", ActionType: "pick", ActionStatus: vda5050.ActionRunning}},
	})
	c.HandleState(id, vda5050.State{
		OrderID:       "o1",
		OrderUpdateID: 0,
		ActionStates:  []vda5050.ActionState{{ActionID: "a1", ActionType: "pick", ActionStatus: vda5050.ActionFinished}},
	})

	if len(reported) != 2 {
		t.Fatalf("onActionStateChanged calls = %d, want 2", len(reported))
	}
	if reported[0].ActionStatus != vda5050.ActionRunning || reported[1].ActionStatus != vda5050.ActionFinished {
		t.Errorf("reported statuses = %+v", reported)
	}
}

func TestHandleStateReportsNodeAndEdgeTraversal(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport, logging.Nop())
	id := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-1"}
	_ = c.AssignOrder(id, threeNodeOrder())

	var nodes []string
	c.OnNodeTraversed(func(_ vda5050.AgvId, n vda5050.Node) { nodes = append(nodes, n.NodeID) })

	var traversingCounts []int
	var traversingEdges []string
	c.OnEdgeTraversing(func(_ vda5050.AgvId, e vda5050.Edge, count int, delta map[string]any) {
		traversingEdges = append(traversingEdges, e.EdgeID)
		traversingCounts = append(traversingCounts, count)
		if len(delta) == 0 {
			t.Error("expected a non-empty delta")
		}
	})
	var traversed []string
	c.OnEdgeTraversed(func(_ vda5050.AgvId, e vda5050.Edge) { traversed = append(traversed, e.EdgeID) })

	dist := 0.1
	// Reach n0, start driving e0.
	c.HandleState(id, vda5050.State{
		OrderID: "o1", LastNodeID: "n0",
		NodeStates: []vda5050.NodeState{{NodeID: "n1", SequenceID: 2}, {NodeID: "n2", SequenceID: 4}},
		EdgeStates: []vda5050.EdgeState{{EdgeID: "e0", SequenceID: 1}, {EdgeID: "e1", SequenceID: 3}},
		Driving:    true, DistanceSinceLastNode: &dist,
	})
	// Still driving e0, distance changed.
	dist2 := 0.4
	c.HandleState(id, vda5050.State{
		OrderID: "o1", LastNodeID: "n0",
		NodeStates: []vda5050.NodeState{{NodeID: "n1", SequenceID: 2}, {NodeID: "n2", SequenceID: 4}},
		EdgeStates: []vda5050.EdgeState{{EdgeID: "e0", SequenceID: 1}, {EdgeID: "e1", SequenceID: 3}},
		Driving:    true, DistanceSinceLastNode: &dist2,
	})
	// e0 traversed, now at n1 driving e1.
	c.HandleState(id, vda5050.State{
		OrderID: "o1", LastNodeID: "n1",
		NodeStates: []vda5050.NodeState{{NodeID: "n2", SequenceID: 4}},
		EdgeStates: []vda5050.EdgeState{{EdgeID: "e1", SequenceID: 3}},
		Driving:    true,
	})

	if len(nodes) != 2 || nodes[0] != "n0" || nodes[1] != "n1" {
		t.Errorf("onNodeTraversed nodes = %v, want [n0 n1]", nodes)
	}
	if len(traversingEdges) != 3 {
		t.Fatalf("onEdgeTraversing calls = %d, want 3: %v", len(traversingEdges), traversingEdges)
	}
	if traversingEdges[0] != "e0" || traversingCounts[0] != 1 {
		t.Errorf("first onEdgeTraversing = %s/%d, want e0/1", traversingEdges[0], traversingCounts[0])
	}
	if traversingEdges[1] != "e0" || traversingCounts[1] != 2 {
		t.Errorf("second onEdgeTraversing = %s/%d, want e0/2", traversingEdges[1], traversingCounts[1])
	}
	if traversingEdges[2] != "e1" || traversingCounts[2] != 1 {
		t.Errorf("third onEdgeTraversing = %s/%d, want e1/1", traversingEdges[2], traversingCounts[2])
	}
	if len(traversed) != 1 || traversed[0] != "e0" {
		t.Errorf("onEdgeTraversed = %v, want [e0]", traversed)
	}
}

func TestAssignOrderStitchesDifferentOrderIDAgainstActiveBase(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport, logging.Nop())
	id := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-1"}

	orderA := testOrder()
	orderA.Nodes[1].Actions = []vda5050.Action{{ActionID: "a1", ActionType: "pick"}}
	if err := c.AssignOrder(id, orderA); err != nil {
		t.Fatalf("AssignOrder A: %v", err)
	}

	orderB := vda5050.Order{
		OrderID: "o2",
		Nodes: []vda5050.Node{
			{NodeID: "n1", SequenceID: 0, Released: true},
			{NodeID: "n2", SequenceID: 2, Released: true},
		},
		Edges: []vda5050.Edge{
			{EdgeID: "e1", SequenceID: 1, Released: true, StartNodeID: "n1", EndNodeID: "n2"},
		},
	}
	if err := c.AssignOrder(id, orderB); err != nil {
		t.Fatalf("AssignOrder B: %v", err)
	}

	keyA := cacheKey{agv: id, orderID: "o1", orderUpdateID: 0}
	keyB := cacheKey{agv: id, orderID: "o2", orderUpdateID: 0}

	c.mu.Lock()
	_, aStillLive := c.caches[keyA]
	cacheB, bLive := c.caches[keyB]
	c.mu.Unlock()
	if !aStillLive || !bLive {
		t.Fatalf("expected both caches live before any State absorbs A: a=%v b=%v", aStillLive, bLive)
	}
	if cacheB.previous == nil || *cacheB.previous != keyA {
		t.Fatalf("cacheB.previous = %v, want %v", cacheB.previous, keyA)
	}

	// A State report against order B triggers absorption of A's cache.
	c.HandleState(id, vda5050.State{OrderID: "o2", OrderUpdateID: 0, LastNodeID: "n1"})

	c.mu.Lock()
	_, aLiveAfter := c.caches[keyA]
	_, actionKnown := cacheB.actions["a1"]
	c.mu.Unlock()
	if aLiveAfter {
		t.Error("order A's cache should have been absorbed and removed")
	}
	if !actionKnown {
		t.Error("order B's cache should have absorbed order A's stitch-node action a1")
	}
}

func TestInitiateInstantActionsAssignsActionIDs(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport, logging.Nop())
	id := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-1"}

	if err := c.InitiateInstantActions(id, []vda5050.Action{{ActionType: "startPause"}}); err != nil {
		t.Fatalf("InitiateInstantActions: %v", err)
	}
	if transport.actions[0].Actions[0].ActionID == "" {
		t.Error("expected a generated actionId")
	}
}

func TestInitiateInstantActionsReportsStateChangeAndIssueRefError(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport, logging.Nop())
	id := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-1"}

	var changed []vda5050.ActionState
	c.OnActionStateChanged(func(_ vda5050.AgvId, _ vda5050.Action, target ActionTarget, state vda5050.ActionState, _ *vda5050.Error) {
		if target.Kind != TargetInstant {
			t.Errorf("target.Kind = %v, want TargetInstant", target.Kind)
		}
		changed = append(changed, state)
	})

	_ = c.InitiateInstantActions(id, []vda5050.Action{{ActionID: "ia-1", ActionType: "startPause"}})

	c.HandleState(id, vda5050.State{
		ActionStates: []vda5050.ActionState{{ActionID: "ia-1", ActionType: "startPause", ActionStatus: vda5050.ActionRunning}},
	})
	if len(changed) != 1 || changed[0].ActionStatus != vda5050.ActionRunning {
		t.Fatalf("changed = %+v, want one RUNNING report", changed)
	}

	var errored string
	c.OnActionError(func(_ vda5050.AgvId, actionID string, _ vda5050.Error) { errored = actionID })

	_ = c.InitiateInstantActions(id, []vda5050.Action{{ActionID: "ia-2", ActionType: "factsheetRequest"}})
	c.HandleState(id, vda5050.State{
		Errors: []vda5050.Error{
			vda5050.NewError(vda5050.ErrorTypeInstantActionValidation, vda5050.ErrorLevelWarning, "batch malformed",
				vda5050.ErrorReference{ReferenceKey: vda5050.RefIssueRef, ReferenceValue: "2"}),
		},
	})
	if errored != "ia-2" {
		t.Errorf("errored actionId = %q, want ia-2", errored)
	}
}
