package strapi

import (
	"net/url"
	"strconv"
	"strings"
)

// Query builds the bracketed filter syntax the content API understands.
// Parameters are encoded in the order they were added.
type Query struct {
	params []param
}

type param struct {
	key   string
	value string
}

// NewQuery returns an empty query.
func NewQuery() *Query {
	return &Query{}
}

// Set appends a raw key/value pair.
func (q *Query) Set(key, value string) *Query {
	q.params = append(q.params, param{key: key, value: value})
	return q
}

// Eq adds filters[field][$eq]=value.
func (q *Query) Eq(field, value string) *Query {
	return q.Set("filters["+field+"][$eq]", value)
}

// Gte adds filters[field][$gte]=value.
func (q *Query) Gte(field, value string) *Query {
	return q.Set("filters["+field+"][$gte]", value)
}

// Lte adds filters[field][$lte]=value.
func (q *Query) Lte(field, value string) *Query {
	return q.Set("filters["+field+"][$lte]", value)
}

// RelationEq adds filters[relation][id][$eq]=id.
func (q *Query) RelationEq(relation, id string) *Query {
	return q.Set("filters["+relation+"][id][$eq]", id)
}

// Sort adds sort=field:dir, dir being "asc" or "desc".
func (q *Query) Sort(field, dir string) *Query {
	return q.Set("sort", field+":"+dir)
}

// Populate asks the backend to expand a relation.
func (q *Query) Populate(field string) *Query {
	return q.Set("populate", field)
}

// Page sets pagination[page] and pagination[pageSize], replacing earlier values.
func (q *Query) Page(page, size int) *Query {
	q.del("pagination[page]")
	q.del("pagination[pageSize]")
	q.Set("pagination[page]", strconv.Itoa(page))
	return q.Set("pagination[pageSize]", strconv.Itoa(size))
}

// Clone copies the query so paging does not mutate the caller's value.
func (q *Query) Clone() *Query {
	if q == nil {
		return NewQuery()
	}
	return &Query{params: append([]param(nil), q.params...)}
}

// Get returns the first value stored for key.
func (q *Query) Get(key string) string {
	if q == nil {
		return ""
	}
	for _, p := range q.params {
		if p.key == key {
			return p.value
		}
	}
	return ""
}

// Encode renders the query string without a leading "?".
func (q *Query) Encode() string {
	if q == nil || len(q.params) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, p := range q.params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.value))
	}
	return sb.String()
}

func (q *Query) del(key string) {
	kept := q.params[:0]
	for _, p := range q.params {
		if p.key != key {
			kept = append(kept, p)
		}
	}
	q.params = kept
}
