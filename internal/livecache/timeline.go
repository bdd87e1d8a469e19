package livecache

import (
	"sort"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/querycache"
)

// timelineEdit is applied to every cached timeline variant. items runs once
// per page; first is true for the size-limited list and for the newest page
// of a paginated one.
type timelineEdit struct {
	items    func(items []models.TimelineItem, first bool) ([]models.TimelineItem, bool)
	messages func(messages []models.Message) ([]models.Message, bool)
}

// patchTimelines applies edit to the profile's timelines of interactionId, or
// to all of its timelines when interactionId is empty, and returns how many
// entries changed.
func patchTimelines(cache *querycache.Cache, profileId, interactionId string, edit timelineEdit) int {
	if profileId == "" {
		return 0
	}
	return cache.UpdateWhere(querycache.MatchTimelines(profileId, interactionId), func(_ querycache.Key, prev any) (any, bool) {
		switch v := prev.(type) {
		case []models.TimelineItem:
			if edit.items == nil {
				return nil, false
			}
			return edit.items(v, true)
		case querycache.Pages[models.TimelineItem]:
			if edit.items == nil || len(v.Pages) == 0 {
				return nil, false
			}
			next := querycache.Pages[models.TimelineItem]{Pages: append([]querycache.Page[models.TimelineItem](nil), v.Pages...)}
			changed := false
			for i, page := range next.Pages {
				items, ok := edit.items(page.Items, i == 0)
				if ok {
					next.Pages[i].Items = items
					changed = true
				}
			}
			return next, changed
		case []models.Message:
			if edit.messages == nil {
				return nil, false
			}
			return edit.messages(v)
		}
		return nil, false
	})
}

// upsertItem replaces the item with the same id, or adds it when insert is
// set. Separators are recomputed after any change.
func upsertItem(items []models.TimelineItem, item models.TimelineItem, insert bool) ([]models.TimelineItem, bool) {
	next := append([]models.TimelineItem(nil), items...)
	for i, existing := range next {
		if existing.RecordId() == item.RecordId() {
			next[i] = item
			return models.WithDateSeparators(next), true
		}
	}
	if !insert {
		return items, false
	}
	return models.WithDateSeparators(append(next, item)), true
}

func removeItem(items []models.TimelineItem, kind, id string) ([]models.TimelineItem, bool) {
	next := make([]models.TimelineItem, 0, len(items))
	removed := false
	for _, item := range items {
		if item.Kind == kind && item.Id == id {
			removed = true
			continue
		}
		next = append(next, item)
	}
	if !removed {
		return items, false
	}
	return models.WithDateSeparators(next), true
}

func upsertMessage(messages []models.Message, message models.Message) []models.Message {
	next := append([]models.Message(nil), messages...)
	replaced := false
	for i, existing := range next {
		if existing.Id == message.Id {
			next[i] = message
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, message)
	}
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].CreatedAt.Before(next[j].CreatedAt)
	})
	return next
}

func removeMessage(messages []models.Message, id string) ([]models.Message, bool) {
	for i, m := range messages {
		if m.Id == id {
			next := append([]models.Message(nil), messages[:i]...)
			return append(next, messages[i+1:]...), true
		}
	}
	return messages, false
}
