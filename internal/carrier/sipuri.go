package carrier

import (
	"strconv"
	"strings"
)

// splitSIPHost extracts host and port from a SIP origination URI like
// "sip:abc.sip.example.com:5060;transport=tcp". Defaults to port 5060.
func splitSIPHost(uri string) (host string, port int) {
	s := strings.TrimPrefix(strings.TrimSpace(uri), "sip:")
	if i := strings.IndexAny(s, ";?"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	host, portStr, ok := strings.Cut(s, ":")
	if !ok {
		return s, 5060
	}
	p, err := strconv.Atoi(portStr)
	if err != nil || p <= 0 {
		return host, 5060
	}
	return host, p
}
