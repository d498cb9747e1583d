package server

import "strings"

type segment struct {
	value   string
	isParam bool
}

// Route matches request paths against prefix+template. Template segments
// starting with ':' capture the corresponding path segment by name. An
// empty Method matches any method.
type Route struct {
	Method   string
	Prefix   string
	Template string

	segments []segment
}

func NewRoute(method, prefix, template string) Route {
	rt := Route{
		Method:   method,
		Prefix:   prefix,
		Template: template,
	}

	if template != "" {
		for _, s := range strings.Split(prefix+template, "/") {
			if name, ok := strings.CutPrefix(s, ":"); ok {
				rt.segments = append(rt.segments, segment{value: name, isParam: true})
			} else {
				rt.segments = append(rt.segments, segment{value: s})
			}
		}
	}

	return rt
}

// Match reports whether method and path select this route. The query string
// is ignored. On a match the returned map holds the captured parameters.
func (rt Route) Match(method, path string) (map[string]string, bool) {
	if rt.Method != "" && rt.Method != method {
		return nil, false
	}

	path, _, _ = strings.Cut(path, "?")

	if rt.Template == "" {
		if path == rt.Prefix || path == rt.Prefix+"/" {
			return map[string]string{}, true
		}
		return nil, false
	}

	parts := strings.Split(path, "/")
	if len(parts) != len(rt.segments) {
		return nil, false
	}

	params := make(map[string]string)
	for i, seg := range rt.segments {
		if seg.isParam {
			params[seg.value] = parts[i]
			continue
		}

		if seg.value != parts[i] {
			return nil, false
		}
	}

	return params, true
}

func (rt Route) String() string {
	if rt.Method == "" {
		return rt.Prefix + rt.Template
	}
	return rt.Method + " " + rt.Prefix + rt.Template
}
