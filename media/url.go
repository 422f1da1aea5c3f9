package media

import (
	"net/url"
	"strings"
)

// HostIs returns true if u parses as an http(s) url whose host is one of the
// given hosts. Comparison ignores case and any port.
func HostIs(u string, hosts ...string) bool {
	pu, err := url.Parse(u)
	if err != nil || (pu.Scheme != "http" && pu.Scheme != "https") {
		return false
	}

	h := strings.ToLower(pu.Hostname())
	for _, want := range hosts {
		if h == want {
			return true
		}
	}
	return false
}

// HostHasSuffix returns true if u's host equals domain or is a subdomain of
// it.
func HostHasSuffix(u string, domain string) bool {
	pu, err := url.Parse(u)
	if err != nil {
		return false
	}
	h := strings.ToLower(pu.Hostname())
	return h == domain || strings.HasSuffix(h, "."+domain)
}

// PathHasSuffix returns true if u's path (ignoring query and fragment) ends
// with suffix.
func PathHasSuffix(u string, suffix string) bool {
	pu, err := url.Parse(u)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(pu.Path), suffix)
}
