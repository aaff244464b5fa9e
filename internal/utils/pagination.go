package utils

import "github.com/gofiber/fiber/v2"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page is a list request window taken from ?page= and ?limit=.
type Page struct {
	Number int
	Size   int
}

// PageFromQuery reads the window, falling back to the first page of 20 and
// capping the size at 100.
func PageFromQuery(c *fiber.Ctx) Page {
	p := Page{
		Number: c.QueryInt("page", 1),
		Size:   c.QueryInt("limit", defaultPageSize),
	}
	if p.Number < 1 {
		p.Number = 1
	}
	switch {
	case p.Size < 1:
		p.Size = defaultPageSize
	case p.Size > maxPageSize:
		p.Size = maxPageSize
	}
	return p
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// PageMeta is the pagination block of a list response.
type PageMeta struct {
	CurrentPage  int   `json:"current_page"`
	ItemsPerPage int   `json:"items_per_page"`
	TotalItems   int64 `json:"total_items"`
	TotalPages   int   `json:"total_pages"`
}

func (p Page) Meta(total int64) PageMeta {
	return PageMeta{
		CurrentPage:  p.Number,
		ItemsPerPage: p.Size,
		TotalItems:   total,
		TotalPages:   int((total + int64(p.Size) - 1) / int64(p.Size)),
	}
}
