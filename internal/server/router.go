package server

type routeEntry[H any] struct {
	route   Route
	handler H
}

// Router holds routes in registration order. The first matching route wins.
type Router[H any] struct {
	routes []routeEntry[H]
}

func (r *Router[H]) Handle(method, prefix, template string, h H) {
	r.routes = append(r.routes, routeEntry[H]{
		route:   NewRoute(method, prefix, template),
		handler: h,
	})
}

// Lookup returns the handler for the first route matching method and path,
// together with the route's captured parameters.
func (r *Router[H]) Lookup(method, path string) (H, map[string]string, bool) {
	for _, e := range r.routes {
		if params, ok := e.route.Match(method, path); ok {
			return e.handler, params, true
		}
	}

	var zero H
	return zero, nil, false
}

func (r *Router[H]) Routes() []Route {
	routes := make([]Route, 0, len(r.routes))
	for _, e := range r.routes {
		routes = append(routes, e.route)
	}
	return routes
}
