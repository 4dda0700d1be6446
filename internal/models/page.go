package models

// Значения пагинации по умолчанию.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest - номер страницы (с 1) и ее размер.
type PageRequest struct {
	Page int
	Size int
}

// Normalize приводит параметры к допустимым значениям.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size <= 0 || p.Size > MaxPageSize {
		p.Size = DefaultPageSize
	}
	return p
}

// Limit возвращает LIMIT для SQL-запроса.
func (p PageRequest) Limit() int {
	return p.Normalize().Size
}

// Offset возвращает OFFSET для SQL-запроса.
func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Size
}

// Page - страница результатов.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

// NewPage собирает страницу из элементов и общего количества.
func NewPage[T any](items []T, total int, req PageRequest) Page[T] {
	n := req.Normalize()
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: n.Page, Size: n.Size}
}
