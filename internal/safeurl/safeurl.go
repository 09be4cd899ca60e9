package safeurl

import "net/url"

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to reject file://, ftp://, and other schemes that could lead to SSRF or local file access.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}

// IsAbsolute returns true if u parses as an absolute http(s) URL with a host.
// Parsers call this before an entry may reach the validator; anything that
// fails here is dropped at parse time and never probed.
func IsAbsolute(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

// SameHost returns true if a and b parse and share the same host.
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Host != "" && ua.Host == ub.Host
}

// Resolve resolves ref against base, returning the absolute URL string.
// Returns "" if either side fails to parse.
func Resolve(base, ref string) string {
	ub, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ur, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return ub.ResolveReference(ur).String()
}
