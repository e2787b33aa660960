package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		want        Params
	}{
		{"defaults", 0, 0, Params{Page: 1, Limit: 20}},
		{"negative", -3, -1, Params{Page: 1, Limit: 20}},
		{"within cap", 2, 50, Params{Page: 2, Limit: 50}},
		{"capped", 1, 1000, Params{Page: 1, Limit: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.page, tt.limit); got != tt.want {
				t.Errorf("New(%d, %d) = %+v, want %+v", tt.page, tt.limit, got, tt.want)
			}
		})
	}
}

func TestOffset(t *testing.T) {
	if got := New(3, 25).Offset(); got != 50 {
		t.Errorf("Offset() = %d, want 50", got)
	}
}

func TestFromEcho(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?page=4&per_page=500", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	got := FromEcho(c)
	if got.Page != 4 || got.Limit != MaxLimit {
		t.Errorf("FromEcho() = %+v, want page 4 limit %d", got, MaxLimit)
	}
}
