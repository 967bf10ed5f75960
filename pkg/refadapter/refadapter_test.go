package refadapter

import (
	"testing"
	"time"

	"github.com/daohu527/vlink/pkg/adapter"
	"github.com/daohu527/vlink/pkg/vda5050"
)

func TestExecuteActionReachesFinished(t *testing.T) {
	a := New(Timing{ActionInit: time.Millisecond, ActionDuration: time.Millisecond, EdgeSpeed: 1})

	statuses := make(chan vda5050.ActionStatus, 8)
	a.ExecuteAction(adapter.ActionContext{
		Action: vda5050.Action{ActionID: "a1", ActionType: "pick"},
		UpdateStatus: func(c adapter.ActionStatusChange) {
			statuses <- c.Status
		},
	})

	want := []vda5050.ActionStatus{vda5050.ActionInitializing, vda5050.ActionRunning, vda5050.ActionFinished}
	for _, w := range want {
		select {
		case got := <-statuses:
			if got != w {
				t.Fatalf("status = %q, want %q", got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for status %q", w)
		}
	}
}

func TestCancelActionFailsInFlight(t *testing.T) {
	a := New(Timing{ActionInit: 10 * time.Millisecond, ActionDuration: time.Second, EdgeSpeed: 1})

	statuses := make(chan vda5050.ActionStatus, 8)
	ctx := adapter.ActionContext{
		Action: vda5050.Action{ActionID: "a1", ActionType: "pick"},
		UpdateStatus: func(c adapter.ActionStatusChange) {
			statuses <- c.Status
		},
	}
	a.ExecuteAction(ctx)
	<-statuses // INITIALIZING

	a.CancelAction(ctx)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-statuses:
			if s == vda5050.ActionFailed {
				return
			}
		case <-timeout:
			t.Fatal("expected eventual FAILED status after cancel")
		}
	}
}

func TestTraverseEdgeCallsBack(t *testing.T) {
	a := New(Timing{EdgeSpeed: 1000})
	done := make(chan struct{})
	a.TraverseEdge(vda5050.Edge{EdgeID: "e1"}, adapter.TraverseCallbacks{
		EdgeTraversed: func() { close(done) },
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EdgeTraversed was not called")
	}
}

func TestStopTraverseCallsStopped(t *testing.T) {
	a := New(DefaultTiming())
	done := make(chan struct{})
	a.StopTraverse(adapter.StopCallbacks{Stopped: func() { close(done) }})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stopped was not called")
	}
}
