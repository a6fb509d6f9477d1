package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	EnsoBaseURL   = "https://api.enso.finance/api/v1"
	OpenAIBaseURL = "https://api.openai.com/v1"
)

// IsAllowedBaseURL accepts https endpoints, and plain http only on loopback
// hosts so that tests and local backends work.
func IsAllowedBaseURL(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
