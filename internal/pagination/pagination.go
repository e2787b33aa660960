package pagination

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Page  int
	Limit int
}

// New clamps page to >= 1 and limit to [1, MaxLimit], DefaultLimit when unset.
func New(page, limit int) Params {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit}
}

// FromEcho reads ?page and ?limit (or ?per_page) from the request.
func FromEcho(c echo.Context) Params {
	return New(
		atoiDefault(c.QueryParam("page"), DefaultPage),
		atoiDefault(firstNonEmpty(c.QueryParam("limit"), c.QueryParam("per_page")), DefaultLimit),
	)
}

func (p Params) Offset() int { return (p.Page - 1) * p.Limit }

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
