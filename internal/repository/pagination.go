package repository

import "math"

const (
	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 500
)

type PageRequest struct {
	Page     int
	PageSize int
}

func (p PageRequest) Offset() int { return (p.Page - 1) * p.PageSize }

type PageResult[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func NormalizePageRequest(req PageRequest) PageRequest { return normalizePageRequest(req) }

func normalizePageRequest(req PageRequest) PageRequest {
	if req.Page < 1 {
		req.Page = DefaultPage
	}
	if req.PageSize < 1 {
		req.PageSize = DefaultPageSize
	}
	if req.PageSize > MaxPageSize {
		req.PageSize = MaxPageSize
	}
	// Offset must stay representable; such a page is simply empty.
	if maxPage := math.MaxInt / req.PageSize; req.Page > maxPage {
		req.Page = maxPage
	}
	return req
}

func CalcTotalPages(total int64, pageSize int) int { return calcTotalPages(total, pageSize) }

func calcTotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	size := int64(pageSize)
	pages := total / size
	if total%size != 0 {
		pages++
	}
	return int(pages)
}
