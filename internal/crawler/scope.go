package crawler

import (
	"net/url"
	"strings"
)

// IsInternal classifies a raw reference against the target site.
//
// Empty and fragment-only references are not internal. A reference without a
// scheme is internal unless it is protocol-relative ("//host/..."), in which
// case its host decides. An http(s) reference is internal iff its host equals
// the target host exactly; subdomains and scheme differences are not
// normalized. Any other scheme is external.
func IsInternal(raw string, target *url.URL) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") || target == nil {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch {
	case u.Scheme == "" && u.Host == "":
		return true
	case u.Scheme == "":
		return u.Host == target.Host
	case isHTTPScheme(u.Scheme):
		return u.Host == target.Host
	default:
		return false
	}
}
