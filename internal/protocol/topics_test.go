package protocol

import "testing"

func TestNewTopics(t *testing.T) {
	topics := NewTopics(" einkaufsliste ")
	if topics.DoneUpdates != "einkaufsliste_doneUpdates" {
		t.Fatalf("unexpected done topic %q", topics.DoneUpdates)
	}
	if topics.NewItem != "einkaufsliste_newItem" {
		t.Fatalf("unexpected new item topic %q", topics.NewItem)
	}
	all := topics.All()
	if len(all) != 2 || all[0] != topics.DoneUpdates || all[1] != topics.NewItem {
		t.Fatalf("unexpected subscription order %v", all)
	}
}
