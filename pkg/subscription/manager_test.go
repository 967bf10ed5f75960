package subscription

import "testing"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(mustCompile(t, DefaultTemplate), "uagv", "2")
}

func TestAddFirstSubscriptionRequestsBroker(t *testing.T) {
	m := newTestManager(t)
	res, err := m.Add("state", "", "", func(string, []byte) {})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !res.NewBrokerTopic {
		t.Error("first subscription at a leaf should require a broker subscribe")
	}
	if res.BrokerTopic != "uagv/v2/+/+/state" {
		t.Errorf("BrokerTopic = %q", res.BrokerTopic)
	}
}

func TestAddSecondSubscriptionSameLeafDoesNotResubscribe(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Add("state", "", "", func(string, []byte) {}); err != nil {
		t.Fatal(err)
	}
	res, err := m.Add("state", "", "", func(string, []byte) {})
	if err != nil {
		t.Fatal(err)
	}
	if res.NewBrokerTopic {
		t.Error("second subscription at the same leaf should not require a resubscribe")
	}
}

func TestFindMatchesWildcardSubscription(t *testing.T) {
	m := newTestManager(t)
	var called int
	if _, err := m.Add("state", "", "", func(string, []byte) { called++ }); err != nil {
		t.Fatal(err)
	}

	matches := m.Find("state", "acme", "car-001")
	if len(matches) != 1 {
		t.Fatalf("Find = %d matches, want 1", len(matches))
	}
	matches[0].Handler("topic", nil)
	if called != 1 {
		t.Errorf("handler called %d times, want 1", called)
	}
}

func TestFindMatchesBothConcreteAndWildcard(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Add("state", "", "", func(string, []byte) {}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add("state", "acme", "car-001", func(string, []byte) {}); err != nil {
		t.Fatal(err)
	}

	matches := m.Find("state", "acme", "car-001")
	if len(matches) != 2 {
		t.Fatalf("Find = %d matches, want 2 (wildcard + concrete)", len(matches))
	}
}

func TestFindDoesNotMatchDifferentConcreteSubject(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Add("state", "acme", "car-001", func(string, []byte) {}); err != nil {
		t.Fatal(err)
	}
	matches := m.Find("state", "acme", "car-002")
	if len(matches) != 0 {
		t.Errorf("Find = %d matches, want 0", len(matches))
	}
}

func TestRemoveLastSubscriptionTriggersUnsubscribe(t *testing.T) {
	m := newTestManager(t)
	res, _ := m.Add("state", "", "", func(string, []byte) {})

	rr, ok := m.Remove(res.ID)
	if !ok {
		t.Fatal("Remove of known id should succeed")
	}
	if !rr.LastGone {
		t.Error("removing the only subscription at a leaf should report LastGone")
	}
	if len(m.Find("state", "acme", "car-001")) != 0 {
		t.Error("no subscriptions should match after removal")
	}
}

func TestRemoveNotLastSubscriptionKeepsBroker(t *testing.T) {
	m := newTestManager(t)
	res1, _ := m.Add("state", "", "", func(string, []byte) {})
	_, _ = m.Add("state", "", "", func(string, []byte) {})

	rr, ok := m.Remove(res1.ID)
	if !ok {
		t.Fatal("Remove should succeed")
	}
	if rr.LastGone {
		t.Error("one remaining subscription should keep the broker subscription alive")
	}
}

func TestRemoveUnknownIDReturnsFalse(t *testing.T) {
	m := newTestManager(t)
	if _, ok := m.Remove("nonexistent"); ok {
		t.Error("Remove of unknown id should return ok=false")
	}
}

func TestBrokerTopicsDeduplicates(t *testing.T) {
	m := newTestManager(t)
	_, _ = m.Add("state", "", "", func(string, []byte) {})
	_, _ = m.Add("state", "", "", func(string, []byte) {})
	_, _ = m.Add("order", "", "", func(string, []byte) {})

	topics := m.BrokerTopics()
	if len(topics) != 2 {
		t.Errorf("BrokerTopics = %v, want 2 distinct topics", topics)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	m := newTestManager(t)
	_, _ = m.Add("state", "", "", func(string, []byte) {})
	m.Clear()
	if len(m.Find("state", "acme", "car-001")) != 0 {
		t.Error("Clear should remove all subscriptions")
	}
	if len(m.BrokerTopics()) != 0 {
		t.Error("Clear should remove all broker topics")
	}
}
