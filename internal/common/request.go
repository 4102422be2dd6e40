package common

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// ClientIP returns the caller address. Forwarding headers win over
// RemoteAddr; only the first X-Forwarded-For hop is trusted.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// Pagination is the list metadata returned next to "data".
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"perPage"`
	Count   int `json:"count"`
}

// ParsePagination reads ?page and ?limit. Bad values fall back to page 1 and
// defaultPerPage; limit is capped at maxPerPage when that is positive.
func ParsePagination(r *http.Request, defaultPerPage, maxPerPage int) (page, perPage int) {
	q := r.URL.Query()
	page = positiveInt(q.Get("page"), 1)
	perPage = positiveInt(q.Get("limit"), defaultPerPage)
	if maxPerPage > 0 && perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
