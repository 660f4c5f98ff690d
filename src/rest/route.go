package rest

import (
	"fmt"
	"net/url"
	"strings"
)

// Route identifies one REST call: the verb, the unformatted path template
// (with {param} placeholders) and the parameters to fill it with. Rate
// limit buckets are keyed off the template plus the major parameters, so
// requests to different channels never share a client-side bucket while
// requests to the same channel always do.
type Route struct {
	Method string
	Path   string
	Params map[string]string
}

// Major parameter names Discord scopes its buckets by.
var majorParams = []string{"guild_id", "channel_id", "webhook_id"}

// Key returns the synthetic client-side bucket key for this route. The
// true bucket hash, once discovered from response headers, supersedes it
// via migration.
func (r Route) Key() string {
	var majors [3]string
	for i, name := range majorParams {
		majors[i] = r.Params[name]
	}
	return fmt.Sprintf("%s:%s:%s/%s/%s", r.Method, r.Path, majors[0], majors[1], majors[2])
}

// Endpoint substitutes every {param} placeholder with its URL-escaped
// value.
func (r Route) Endpoint() string {
	endpoint := r.Path
	for name, value := range r.Params {
		endpoint = strings.ReplaceAll(endpoint, "{"+name+"}", url.PathEscape(value))
	}
	return endpoint
}
