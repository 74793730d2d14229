package tppc

import (
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Jar accumulates session cookies from scraped responses. unlike
// net/http/cookiejar it keeps plain name/value pairs with no domain or
// expiry handling, the site only ever sets session cookies on its own
// host. last write wins per cookie name, cookies are never removed.
type Jar struct {
	mu      sync.Mutex
	cookies map[string]string
}

func NewJar() *Jar {
	return &Jar{cookies: map[string]string{}}
}

func (j *Jar) UpdateFrom(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		j.cookies[c.Name] = c.Value
	}
}

// Header renders the jar as a single Cookie header value. names are
// sorted so the rendered header is deterministic.
func (j *Jar) Header() string {
	j.mu.Lock()
	defer j.mu.Unlock()

	names := make([]string, 0, len(j.cookies))
	for name := range j.cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	var out strings.Builder
	for i, name := range names {
		if i > 0 {
			out.WriteString("; ")
		}
		out.WriteString(name)
		out.WriteString("=")
		out.WriteString(j.cookies[name])
	}
	return out.String()
}

func (j *Jar) Get(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	value, ok := j.cookies[name]
	return value, ok
}

func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.cookies)
}
