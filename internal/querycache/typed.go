package querycache

// GetAs returns the value under key when it holds a T.
func GetAs[T any](c *Cache, key Key) (T, bool) {
	var zero T
	data, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := data.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// UpdateAs is Update for entries holding a T. An existing entry of another
// type is left untouched.
func UpdateAs[T any](c *Cache, key Key, fn func(prev T, ok bool) (T, bool)) bool {
	return c.Update(key, func(prev any, ok bool) (any, bool) {
		var typed T
		if ok {
			v, isT := prev.(T)
			if !isT {
				return nil, false
			}
			typed = v
		}
		return fn(typed, ok)
	})
}

// UpdateAllAs is UpdateWhere restricted to entries holding a T.
func UpdateAllAs[T any](c *Cache, match Matcher, fn func(key Key, prev T) (T, bool)) int {
	return c.UpdateWhere(match, func(key Key, prev any) (any, bool) {
		v, ok := prev.(T)
		if !ok {
			return nil, false
		}
		return fn(key, v)
	})
}

// Page is one cursor page of an infinite query.
type Page[T any] struct {
	Items       []T
	NextCursor  string
	HasMoreNext bool
}

// Pages is the cached value of an infinite query, pages in request order.
type Pages[T any] struct {
	Pages []Page[T]
}

func (p Pages[T]) Flatten() []T {
	var out []T
	for _, page := range p.Pages {
		out = append(out, page.Items...)
	}
	return out
}

// HasNextPage reports the continuation flag of the latest page.
func (p Pages[T]) HasNextPage() bool {
	if len(p.Pages) == 0 {
		return false
	}
	return p.Pages[len(p.Pages)-1].HasMoreNext
}
