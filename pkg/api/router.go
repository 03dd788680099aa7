package api

import (
	"sort"
	"strings"
)

// Handler serves one matched request.
type Handler func(*Context) (*Response, error)

type route struct {
	Method   string
	Pattern  string
	Segments []string
	Handler  Handler
}

type router struct {
	routes []route
}

func (r *router) add(method, pattern string, handler Handler) {
	pattern = "/" + strings.Trim(strings.TrimSpace(pattern), "/")
	r.routes = append(r.routes, route{
		Method:   strings.ToUpper(strings.TrimSpace(method)),
		Pattern:  pattern,
		Segments: splitPath(pattern),
		Handler:  handler,
	})
}

type routeMatch struct {
	Route  route
	Params map[string]string
}

// match returns the route for method and path, plus every method registered
// for the path so callers can answer 405 with an Allow header.
func (r *router) match(method, path string) (*routeMatch, []string) {
	method = strings.ToUpper(strings.TrimSpace(method))
	pathSegments := splitPath(path)

	allowed := make([]string, 0, len(r.routes))
	for _, candidate := range r.routes {
		params, ok := matchPath(candidate.Segments, pathSegments)
		if !ok {
			continue
		}
		allowed = append(allowed, candidate.Method)
		if candidate.Method == method {
			return &routeMatch{Route: candidate, Params: params}, allowed
		}
	}
	return nil, allowed
}

func splitPath(path string) []string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func matchPath(patternSegments, pathSegments []string) (map[string]string, bool) {
	if len(patternSegments) != len(pathSegments) {
		return nil, false
	}

	params := map[string]string{}
	for i, pattern := range patternSegments {
		value := pathSegments[i]
		if value == "" {
			return nil, false
		}
		if strings.HasPrefix(pattern, "{") && strings.HasSuffix(pattern, "}") && len(pattern) > 2 {
			params[pattern[1:len(pattern)-1]] = value
			continue
		}
		if pattern != value {
			return nil, false
		}
	}
	return params, true
}

func formatAllowHeader(methods []string) string {
	set := map[string]struct{}{}
	for _, m := range methods {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			set[m] = struct{}{}
		}
	}
	uniq := make([]string, 0, len(set))
	for m := range set {
		uniq = append(uniq, m)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, ", ")
}
