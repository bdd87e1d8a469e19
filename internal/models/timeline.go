package models

import (
	"sort"
	"time"
)

// Timeline item kinds
const (
	TimelineMessage       = "message"
	TimelineTransaction   = "transaction"
	TimelineDateSeparator = "date_separator"
)

// TimelineItem is one row of an interaction timeline: a message, a transaction
// or a day separator.
type TimelineItem struct {
	Kind        string       `json:"kind"`
	Id          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	Date        string       `json:"date,omitempty"`
	Message     *Message     `json:"message,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

func (t TimelineItem) RecordId() string { return t.Kind + ":" + t.Id }

func MessageItem(m Message) TimelineItem {
	return TimelineItem{Kind: TimelineMessage, Id: m.Id, Timestamp: m.CreatedAt, Message: &m}
}

func TransactionItem(tx Transaction) TimelineItem {
	return TimelineItem{Kind: TimelineTransaction, Id: tx.Id, Timestamp: tx.CreatedAt, Transaction: &tx}
}

// WithDateSeparators strips existing separators, orders items by timestamp and
// inserts a separator before the first item of every calendar day (UTC).
func WithDateSeparators(items []TimelineItem) []TimelineItem {
	content := make([]TimelineItem, 0, len(items))
	for _, item := range items {
		if item.Kind != TimelineDateSeparator {
			content = append(content, item)
		}
	}
	sort.SliceStable(content, func(i, j int) bool {
		return content[i].Timestamp.Before(content[j].Timestamp)
	})

	out := make([]TimelineItem, 0, len(content)+4)
	lastDay := ""
	for _, item := range content {
		day := item.Timestamp.UTC().Format("2006-01-02")
		if day != lastDay {
			out = append(out, TimelineItem{
				Kind:      TimelineDateSeparator,
				Id:        day,
				Timestamp: item.Timestamp,
				Date:      day,
			})
			lastDay = day
		}
		out = append(out, item)
	}
	return out
}
