package notify

import (
	"testing"
)

func TestChangeType_String(t *testing.T) {
	tests := []struct {
		ct   ChangeType
		want string
	}{
		{ChangeRecord, "record"},
		{ChangeUndo, "undo"},
		{ChangeRedo, "redo"},
		{ChangeClear, "clear"},
		{ChangeReset, "reset"},
		{ChangeRemove, "remove"},
		{ChangeUpdate, "update"},
		{ChangeBaseline, "baseline"},
		{ChangeCapacity, "capacity"},
		{ChangeAdded, "added"},
		{ChangeRemoved, "removed"},
		{ChangeType(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.ct.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.ct, got, tt.want)
		}
	}
}

func TestNotifier_Subscribe(t *testing.T) {
	n := New()
	defer n.Close()

	var received int
	sub := n.Subscribe(func(change Change) {
		received++
	})

	n.Notify(Change{Key: "a", Type: ChangeRecord})
	if received != 1 {
		t.Errorf("received = %d, want 1", received)
	}

	sub.Unsubscribe()
	sub.Unsubscribe()

	n.Notify(Change{Key: "b", Type: ChangeRecord})
	if received != 1 {
		t.Error("unsubscribed observer received notification")
	}
}

func TestNotifier_SubscribeKey(t *testing.T) {
	n := New()
	defer n.Close()

	var editor, entities int
	n.SubscribeKey("editor", func(Change) { editor++ })
	n.SubscribeKey("entities", func(Change) { entities++ })

	n.Notify(Change{Key: "editor", Type: ChangeUndo})
	n.Notify(Change{Key: "editor", Type: ChangeRedo})
	n.Notify(Change{Key: "other", Type: ChangeRedo})

	if editor != 2 {
		t.Errorf("editor changes = %d, want 2", editor)
	}
	if entities != 0 {
		t.Errorf("entities changes = %d, want 0", entities)
	}
}

func TestNotifier_Order(t *testing.T) {
	n := New()
	defer n.Close()

	var order []string
	n.SubscribeKey("k", func(Change) { order = append(order, "key") })
	n.Subscribe(func(Change) { order = append(order, "global1") })
	n.Subscribe(func(Change) { order = append(order, "global2") })

	n.Notify(Change{Key: "k"})

	want := []string{"global1", "global2", "key"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestNotifier_ChangePayload(t *testing.T) {
	n := New()
	defer n.Close()

	var got Change
	n.Subscribe(func(c Change) { got = c })

	want := Change{Key: "default", Type: ChangeRecord, Label: "add", SnapshotID: 3, Cursor: 2, Length: 3}
	n.Notify(want)

	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestNotifier_Close(t *testing.T) {
	n := New()

	var received bool
	n.Subscribe(func(Change) { received = true })

	n.Close()
	n.Close()

	n.Notify(Change{Key: "a"})
	if received {
		t.Error("observer called after Close")
	}
	if n.Len() != 0 {
		t.Errorf("Len() = %d after Close, want 0", n.Len())
	}
}

func TestNotifier_UnsubscribeKeyCleansUp(t *testing.T) {
	n := New()
	defer n.Close()

	sub := n.SubscribeKey("a", func(Change) {})
	if sub.Key() != "a" {
		t.Errorf("Key() = %q, want %q", sub.Key(), "a")
	}
	if n.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", n.Len())
	}

	sub.Unsubscribe()
	if n.Len() != 0 {
		t.Errorf("Len() = %d after unsubscribe, want 0", n.Len())
	}
	if _, ok := n.keyObservers["a"]; ok {
		t.Error("empty key observer map was not removed")
	}
}

func TestNotifier_ObserverMayUnsubscribe(t *testing.T) {
	n := New()
	defer n.Close()

	var calls int
	var sub *Subscription
	sub = n.Subscribe(func(Change) {
		calls++
		sub.Unsubscribe()
	})

	n.Notify(Change{Key: "a"})
	n.Notify(Change{Key: "a"})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
