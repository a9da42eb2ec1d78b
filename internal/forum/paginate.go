package forum

// DefaultPageSize is the post listing page size when none is given.
const DefaultPageSize = 20

// Pagination describes where a page sits in a listing.
type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalItems  int   `json:"totalItems"`
	PageSize    int   `json:"pageSize"`
	HasPrev     bool  `json:"hasPrev"`
	HasNext     bool  `json:"hasNext"`
	Pages       []int `json:"pages"`
}

// pageWindow is how many page links surround the current page.
const pageWindow = 2

// Paginate computes page links for total items split into pages of limit.
// page is clamped into range.
func Paginate(total, page, limit int) Pagination {
	if limit < 1 {
		limit = DefaultPageSize
	}
	if total < 0 {
		total = 0
	}
	pages := (total + limit - 1) / limit
	if pages < 1 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	lo, hi := page-pageWindow, page+pageWindow
	if lo < 1 {
		lo = 1
	}
	if hi > pages {
		hi = pages
	}
	links := make([]int, 0, hi-lo+1)
	for p := lo; p <= hi; p++ {
		links = append(links, p)
	}

	return Pagination{
		CurrentPage: page,
		TotalPages:  pages,
		TotalItems:  total,
		PageSize:    limit,
		HasPrev:     page > 1,
		HasNext:     page < pages,
		Pages:       links,
	}
}
