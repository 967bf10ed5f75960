package vda5050

import "testing"

func twoNodeOrder() *Order {
	return &Order{
		OrderID:       "order-1",
		OrderUpdateID: 0,
		Nodes: []Node{
			{NodeID: "n1", SequenceID: 0, Released: true},
			{NodeID: "n2", SequenceID: 2, Released: true},
		},
		Edges: []Edge{
			{EdgeID: "e12", SequenceID: 1, Released: true, StartNodeID: "n1", EndNodeID: "n2"},
		},
	}
}

func TestValidateStructureAccepts(t *testing.T) {
	o := twoNodeOrder()
	if err := o.ValidateStructure(); err != nil {
		t.Fatalf("ValidateStructure: %v", err)
	}
}

func TestValidateStructureRejectsOddFirstSequence(t *testing.T) {
	o := twoNodeOrder()
	o.Nodes[0].SequenceID = 1
	o.Edges[0].SequenceID = 2
	if err := o.ValidateStructure(); err == nil {
		t.Fatal("expected error for odd first sequenceId")
	}
}

func TestValidateStructureRejectsEdgeCountMismatch(t *testing.T) {
	o := twoNodeOrder()
	o.Edges = append(o.Edges, Edge{EdgeID: "stray", SequenceID: 3, StartNodeID: "n2", EndNodeID: "n3"})
	if err := o.ValidateStructure(); err == nil {
		t.Fatal("expected error for |edges| != |nodes|-1")
	}
}

func TestValidateStructureRejectsHorizonOnly(t *testing.T) {
	o := twoNodeOrder()
	o.Nodes[0].Released = false
	o.Nodes[1].Released = false
	o.Edges[0].Released = false
	if err := o.ValidateStructure(); err == nil {
		t.Fatal("expected error for order with no released base node")
	}
}

func TestValidateStructureRejectsNonContiguousBase(t *testing.T) {
	o := twoNodeOrder()
	o.Nodes = append(o.Nodes, Node{NodeID: "n3", SequenceID: 4, Released: true})
	o.Edges = append(o.Edges, Edge{EdgeID: "e23", SequenceID: 3, Released: false, StartNodeID: "n2", EndNodeID: "n3"})
	o.Nodes[1].Released = false // gap: n1 released, n2 not, n3 released
	if err := o.ValidateStructure(); err == nil {
		t.Fatal("expected error for non-contiguous released prefix")
	}
}

func TestValidateStructureRejectsReleasedEdgeToUnreleasedEndNode(t *testing.T) {
	// spec §9: an edge released whose end node is unreleased is rejected.
	o := twoNodeOrder()
	o.Nodes[1].Released = false
	if err := o.ValidateStructure(); err == nil {
		t.Fatal("expected error for released edge ending on unreleased node")
	}
}

func TestValidateStructureRejectsDuplicateActionID(t *testing.T) {
	o := twoNodeOrder()
	a := Action{ActionID: "a1", ActionType: "pick", BlockingType: BlockingHard}
	o.Nodes[0].Actions = []Action{a}
	o.Edges[0].Actions = []Action{a}
	if err := o.ValidateStructure(); err == nil {
		t.Fatal("expected error for duplicate actionId across order")
	}
}

func TestBaseLengthAndLastBaseNode(t *testing.T) {
	o := twoNodeOrder()
	o.Nodes = append(o.Nodes, Node{NodeID: "n3", SequenceID: 4, Released: false})
	o.Edges = append(o.Edges, Edge{EdgeID: "e23", SequenceID: 3, Released: false, StartNodeID: "n2", EndNodeID: "n3"})

	if got := o.BaseLength(); got != 2 {
		t.Errorf("BaseLength = %d, want 2", got)
	}
	last := o.LastBaseNode()
	if last == nil || last.NodeID != "n2" {
		t.Errorf("LastBaseNode = %+v, want n2", last)
	}
}
