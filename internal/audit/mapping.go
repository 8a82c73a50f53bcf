package audit

import "strings"

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// Route overrides for calls whose verb is not implied by the method.
var routeOverrides = map[string]ActionResource{
	"POST /api/v1/roles/{id}/activate":             {Action: "activate", Resource: "role"},
	"PUT /api/v1/permissions/{name}/active":        {Action: "set_active", Resource: "permission"},
	"PUT /api/v1/roles/{id}/permissions":           {Action: "replace", Resource: "role_permission"},
	"DELETE /api/v1/users/{id}/roles/{role}":       {Action: "remove", Resource: "user_role"},
	"DELETE /api/v1/roles/{id}/permissions/{name}": {Action: "remove", Resource: "role_permission"},
}

// ParseRoute returns action and resource for an HTTP method and mux path template
// (e.g. POST /api/v1/users/{id}/roles -> add user_role).
// Resource is the singular of the first collection, joined with a trailing sub-collection.
// Action is create/update/delete for the collection itself and add/remove on a sub-collection.
func ParseRoute(method, template string) ActionResource {
	method = strings.ToUpper(method)
	if ar, ok := routeOverrides[method+" "+template]; ok {
		return ar
	}
	var collections []string
	for _, seg := range strings.Split(strings.Trim(template, "/"), "/") {
		if seg == "" || seg == "api" || seg == "v1" || strings.HasPrefix(seg, "{") {
			continue
		}
		collections = append(collections, singular(seg))
	}
	if len(collections) == 0 {
		return ActionResource{Action: strings.ToLower(method), Resource: "unknown"}
	}
	resource := strings.Join(collections, "_")
	nested := len(collections) > 1
	switch method {
	case "POST":
		if nested {
			return ActionResource{Action: "add", Resource: resource}
		}
		return ActionResource{Action: "create", Resource: resource}
	case "PUT", "PATCH":
		return ActionResource{Action: "update", Resource: resource}
	case "DELETE":
		if nested {
			return ActionResource{Action: "remove", Resource: resource}
		}
		return ActionResource{Action: "delete", Resource: resource}
	case "GET":
		if strings.HasSuffix(template, "}") {
			return ActionResource{Action: "get", Resource: resource}
		}
		return ActionResource{Action: "list", Resource: resource}
	default:
		return ActionResource{Action: strings.ToLower(method), Resource: resource}
	}
}

func singular(s string) string {
	s = strings.ReplaceAll(s, "-", "_")
	return strings.TrimSuffix(s, "s")
}
