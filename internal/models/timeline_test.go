package models

import (
	"testing"
	"time"
)

func TestWithDateSeparators(t *testing.T) {
	day1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	items := []TimelineItem{
		MessageItem(Message{Id: "m2", CreatedAt: day2}),
		{Kind: TimelineDateSeparator, Id: "stale", Date: "2020-01-01"},
		MessageItem(Message{Id: "m1", CreatedAt: day1}),
		TransactionItem(Transaction{Id: "t1", CreatedAt: day1.Add(time.Hour)}),
	}

	out := WithDateSeparators(items)

	expected := []string{"date_separator:2025-03-01", "message:m1", "transaction:t1", "date_separator:2025-03-02", "message:m2"}
	if len(out) != len(expected) {
		t.Fatalf("Expected %d items, got %d", len(expected), len(out))
	}
	for i, item := range out {
		if item.RecordId() != expected[i] {
			t.Errorf("Expected item %d to be %s, got %s", i, expected[i], item.RecordId())
		}
	}
}

func TestMessageIsOptimistic(t *testing.T) {
	if (Message{}).IsOptimistic() {
		t.Errorf("Expected message without metadata to be confirmed")
	}
	m := Message{Metadata: map[string]any{"is_optimistic": true}}
	if !m.IsOptimistic() {
		t.Errorf("Expected optimistic flag to be read from metadata")
	}
}
