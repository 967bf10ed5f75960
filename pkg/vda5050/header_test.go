package vda5050

import "testing"

func TestHeaderCounterIncrementsPerTopic(t *testing.T) {
	c := NewHeaderCounter()
	if got := c.Next(TopicState); got != 0 {
		t.Errorf("first Next(state) = %d, want 0", got)
	}
	if got := c.Next(TopicState); got != 1 {
		t.Errorf("second Next(state) = %d, want 1", got)
	}
	if got := c.Next(TopicOrder); got != 0 {
		t.Errorf("Next(order) = %d, want 0 (independent counter)", got)
	}
}

func TestHeaderCounterWraps(t *testing.T) {
	c := NewHeaderCounter()
	c.counters[TopicState] = 0xFFFFFFFF
	if got := c.Next(TopicState); got != 0xFFFFFFFF {
		t.Fatalf("Next at max = %d, want 0xFFFFFFFF", got)
	}
	if got := c.Next(TopicState); got != 0 {
		t.Errorf("Next after wrap = %d, want 0", got)
	}
}

func TestErrorReference(t *testing.T) {
	e := NewError(ErrorTypeOrderValidation, ErrorLevelWarning, "bad update id",
		ErrorReference{ReferenceKey: RefTopic, ReferenceValue: "order"},
		ErrorReference{ReferenceKey: RefOrderID, ReferenceValue: "o42"},
		ErrorReference{ReferenceKey: "errorDescriptionDetail", ReferenceValue: "foo is not a number"},
	)
	if got, _ := e.Reference(RefOrderID); got != "o42" {
		t.Errorf("Reference(orderId) = %q", got)
	}
	if _, ok := e.Reference("errorDescriptionDetail"); ok {
		t.Error("errorDescriptionDetail must not be serialized as a reference")
	}
	want := "bad update id: foo is not a number"
	if e.ErrorDescription != want {
		t.Errorf("ErrorDescription = %q, want %q", e.ErrorDescription, want)
	}
}
