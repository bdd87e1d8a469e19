package remote

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"go.uber.org/zap"
)

// The remote has returned list payloads in several shapes over time. Each
// detector recognizes one shape; the first match wins and anything
// unrecognized is treated as an empty list.
type shapeDetector func(raw json.RawMessage, depth int) ([]json.RawMessage, bool)

var shapeDetectors []shapeDetector

func init() {
	shapeDetectors = []shapeDetector{
		detectArray,
		detectStringified,
		detectItemsField,
		detectDataItemsField,
		detectDataArray,
		detectNumericKeys,
	}
}

// maxUnwrapDepth bounds nested string-encoded payloads.
const maxUnwrapDepth = 2

// NormalizeList extracts the list elements of raw. It never returns nil.
func NormalizeList(raw json.RawMessage) []json.RawMessage {
	return normalize(raw, 0)
}

func normalize(raw json.RawMessage, depth int) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []json.RawMessage{}
	}
	for _, detect := range shapeDetectors {
		if items, ok := detect(raw, depth); ok {
			return items
		}
	}
	zap.L().Debug("Unrecognized list payload shape", zap.Int("bytes", len(raw)))
	return []json.RawMessage{}
}

// DecodeList normalizes raw and decodes each element into T. Elements that do
// not decode are skipped.
func DecodeList[T any](raw json.RawMessage) []T {
	items := NormalizeList(raw)
	out := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			zap.L().Debug("Skipping undecodable list element", zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out
}

// DecodeObject decodes a single-record response, unwrapping a {"data": {...}}
// envelope when present.
func DecodeObject[T any](raw json.RawMessage) (T, error) {
	var v T
	raw = bytes.TrimSpace(raw)
	var envelope map[string]json.RawMessage
	if json.Unmarshal(raw, &envelope) == nil {
		if data, ok := envelope["data"]; ok && isObject(data) {
			if _, hasId := envelope["id"]; !hasId {
				raw = data
			}
		}
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

// DecodePage reads one cursor page: the items plus next_cursor and
// has_more_next, either at the top level or under "data".
func DecodePage[T any](raw json.RawMessage) (items []T, nextCursor string, hasMore bool) {
	items = DecodeList[T](raw)

	var envelope struct {
		NextCursor  *string         `json:"next_cursor"`
		HasMoreNext *bool           `json:"has_more_next"`
		Data        json.RawMessage `json:"data"`
	}
	if json.Unmarshal(bytes.TrimSpace(raw), &envelope) != nil {
		return items, "", false
	}
	if envelope.NextCursor == nil && envelope.HasMoreNext == nil && isObject(envelope.Data) {
		_ = json.Unmarshal(envelope.Data, &envelope)
	}
	if envelope.NextCursor != nil {
		nextCursor = *envelope.NextCursor
	}
	if envelope.HasMoreNext != nil {
		hasMore = *envelope.HasMoreNext
	} else {
		hasMore = nextCursor != ""
	}
	return items, nextCursor, hasMore
}

func detectArray(raw json.RawMessage, _ int) ([]json.RawMessage, bool) {
	if raw[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, true
}

func detectStringified(raw json.RawMessage, depth int) ([]json.RawMessage, bool) {
	if raw[0] != '"' || depth >= maxUnwrapDepth {
		return nil, false
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, false
	}
	return normalize(json.RawMessage(inner), depth+1), true
}

func detectItemsField(raw json.RawMessage, depth int) ([]json.RawMessage, bool) {
	return detectField(raw, "items", depth)
}

func detectDataItemsField(raw json.RawMessage, depth int) ([]json.RawMessage, bool) {
	var envelope map[string]json.RawMessage
	if raw[0] != '{' || json.Unmarshal(raw, &envelope) != nil {
		return nil, false
	}
	data, ok := envelope["data"]
	if !ok || !isObject(data) {
		return nil, false
	}
	return detectField(data, "items", depth)
}

func detectDataArray(raw json.RawMessage, depth int) ([]json.RawMessage, bool) {
	var envelope map[string]json.RawMessage
	if raw[0] != '{' || json.Unmarshal(raw, &envelope) != nil {
		return nil, false
	}
	data, ok := envelope["data"]
	data = bytes.TrimSpace(data)
	if !ok || len(data) == 0 || data[0] != '[' {
		return nil, false
	}
	return detectArray(data, depth)
}

func detectNumericKeys(raw json.RawMessage, _ int) ([]json.RawMessage, bool) {
	var object map[string]json.RawMessage
	if raw[0] != '{' || json.Unmarshal(raw, &object) != nil || len(object) == 0 {
		return nil, false
	}
	type indexed struct {
		index int
		item  json.RawMessage
	}
	entries := make([]indexed, 0, len(object))
	for key, item := range object {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 {
			return nil, false
		}
		entries = append(entries, indexed{index: index, item: item})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	items := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		items[i] = e.item
	}
	return items, true
}

func detectField(raw json.RawMessage, field string, depth int) ([]json.RawMessage, bool) {
	var envelope map[string]json.RawMessage
	if len(raw) == 0 || raw[0] != '{' || json.Unmarshal(raw, &envelope) != nil {
		return nil, false
	}
	value, ok := envelope[field]
	if !ok {
		return nil, false
	}
	value = bytes.TrimSpace(value)
	if len(value) == 0 || string(value) == "null" {
		return []json.RawMessage{}, true
	}
	return normalize(value, depth+1), true
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
