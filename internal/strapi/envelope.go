package strapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"lifedesk/internal/core"
)

// maxPages bounds ListAll against a backend that keeps reporting more pages.
const maxPages = 1000

type Pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
}

type Meta struct {
	Pagination Pagination `json:"pagination"`
}

// ListEnvelope is {data: T[], meta: {pagination}}.
type ListEnvelope[T any] struct {
	Data []T  `json:"data"`
	Meta Meta `json:"meta"`
}

// Envelope is {data: T}, used for single records and mutation bodies.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// ListAll fetches every page of path and concatenates the records.
func ListAll[T any](ctx context.Context, c *Client, path string, q *Query) ([]T, error) {
	all := make([]T, 0)
	for page := 1; page <= maxPages; page++ {
		var env ListEnvelope[T]
		if err := c.Do(ctx, http.MethodGet, path, q.Clone().Page(page, c.pageSize), nil, &env); err != nil {
			return nil, err
		}
		all = append(all, env.Data...)
		if env.Meta.Pagination.PageCount <= page || len(env.Data) == 0 {
			break
		}
	}
	return all, nil
}

// GetOne fetches path/id. A null data field is reported as core.ErrNotFound.
func GetOne[T any](ctx context.Context, c *Client, path string, id int64, q *Query) (T, error) {
	var env Envelope[*T]
	var zero T
	if err := c.Do(ctx, http.MethodGet, itemPath(path, id), q, nil, &env); err != nil {
		return zero, err
	}
	if env.Data == nil {
		return zero, fmt.Errorf("%s/%d: %w", path, id, core.ErrNotFound)
	}
	return *env.Data, nil
}

// CreateOne posts {data: payload} and returns the stored record.
func CreateOne[T any](ctx context.Context, c *Client, path string, payload any) (T, error) {
	var env Envelope[T]
	if err := c.Do(ctx, http.MethodPost, path, nil, Envelope[any]{Data: payload}, &env); err != nil {
		var zero T
		return zero, err
	}
	return env.Data, nil
}

// UpdateOne puts {data: payload} to path/id and returns the stored record.
func UpdateOne[T any](ctx context.Context, c *Client, path string, id int64, payload any) (T, error) {
	var env Envelope[T]
	if err := c.Do(ctx, http.MethodPut, itemPath(path, id), nil, Envelope[any]{Data: payload}, &env); err != nil {
		var zero T
		return zero, err
	}
	return env.Data, nil
}

// DeleteOne removes path/id.
func DeleteOne(ctx context.Context, c *Client, path string, id int64) error {
	return c.Do(ctx, http.MethodDelete, itemPath(path, id), nil, nil, nil)
}

func itemPath(path string, id int64) string {
	return path + "/" + strconv.FormatInt(id, 10)
}
