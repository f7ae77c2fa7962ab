package models

import "testing"

func TestRemoveNotificationRef(t *testing.T) {
	t.Parallel()

	refs := []NotificationRef{{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "c"}}
	got := RemoveNotificationRef(refs, "a")

	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Errorf("RemoveNotificationRef() = %v", got)
	}
	if len(refs) != 4 || refs[0].ID != "a" || refs[2].ID != "a" {
		t.Errorf("input modified: %v", refs)
	}
	if got := RemoveNotificationRef(nil, "a"); len(got) != 0 {
		t.Errorf("RemoveNotificationRef(nil) = %v", got)
	}
}

func TestAppendNotificationRef(t *testing.T) {
	t.Parallel()

	refs := AppendNotificationRef(nil, NotificationRef{ID: "a", Path: "p/a"})
	refs = AppendNotificationRef(refs, NotificationRef{ID: "b", Path: "p/b"})
	refs = AppendNotificationRef(refs, NotificationRef{ID: "a", Path: "p/a"})

	if len(refs) != 2 {
		t.Fatalf("AppendNotificationRef() = %v, want 2 entries", refs)
	}
	if !HasNotificationRef(refs, "b") || HasNotificationRef(refs, "z") {
		t.Errorf("HasNotificationRef mismatch for %v", refs)
	}
}
