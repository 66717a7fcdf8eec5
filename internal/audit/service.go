package audit

import (
	"context"
	"fmt"
	"strings"
)

// Repository menyediakan akses baca ke audit_logs.
type Repository interface {
	Window(ctx context.Context, q WindowQuery) ([]TimelineRow, error)
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Service mengoordinasikan pengambilan data audit.
type Service struct {
	repo Repository
}

// NewService membuat service audit timeline baru.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline mengambil data audit dengan paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.Window(ctx, WindowQuery{
		From:   filters.From,
		To:     filters.To,
		Actor:  strings.TrimSpace(filters.Actor),
		Entity: strings.TrimSpace(filters.Entity),
		Action: strings.TrimSpace(filters.Action),
		Offset: (page - 1) * pageSize,
		Limit:  pageSize + 1,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
