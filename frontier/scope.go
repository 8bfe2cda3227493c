package frontier

import (
	"net/url"
	"strings"
)

// Scope decides whether a discovered URL belongs to the crawl. Host rules are
// derived from the seed; blacklist patterns always exclude; a non-empty
// whitelist restricts to its matches.
type Scope struct {
	seedHost   string
	seedDomain string // registered-ish domain: last two labels of the seed host
	seedName   string // seed domain minus its TLD, for tld-sibling matching

	subdomains bool
	tld        bool

	blacklist []string
	whitelist []string
}

// NewScope builds the scope rule for a seed URL.
func NewScope(seed *url.URL, subdomains, tld bool, blacklist, whitelist []string) *Scope {
	host := strings.ToLower(stripPort(seed.Host))
	domain := baseDomain(host)
	name := domain
	if idx := strings.IndexByte(domain, '.'); idx > 0 {
		name = domain[:idx]
	}
	return &Scope{
		seedHost:   host,
		seedDomain: domain,
		seedName:   name,
		subdomains: subdomains,
		tld:        tld,
		blacklist:  blacklist,
		whitelist:  whitelist,
	}
}

// Allows reports whether u passes the host rules and the pattern lists.
func (s *Scope) Allows(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !s.hostAllowed(strings.ToLower(stripPort(u.Host))) {
		return false
	}
	full := u.String()
	for _, pattern := range s.blacklist {
		if strings.Contains(full, pattern) {
			return false
		}
	}
	if len(s.whitelist) == 0 {
		return true
	}
	for _, pattern := range s.whitelist {
		if strings.Contains(full, pattern) {
			return true
		}
	}
	return false
}

func (s *Scope) hostAllowed(host string) bool {
	if host == s.seedHost {
		return true
	}
	if s.subdomains && (host == s.seedDomain || strings.HasSuffix(host, "."+s.seedDomain)) {
		return true
	}
	if s.tld {
		// Sibling registered domain under another TLD, e.g. example.com vs
		// example.org, including their subdomains when subdomains is on.
		domain := baseDomain(host)
		name := domain
		if idx := strings.IndexByte(domain, '.'); idx > 0 {
			name = domain[:idx]
		}
		if name == s.seedName {
			if host == domain {
				return true
			}
			return s.subdomains
		}
	}
	return false
}

// stripPort removes a trailing :port from a host.
func stripPort(host string) string {
	if idx := strings.LastIndexByte(host, ':'); idx != -1 && !strings.Contains(host[idx:], "]") {
		return host[:idx]
	}
	return host
}

// baseDomain extracts the last two labels of a host.
// "docs.example.com" -> "example.com", "example.com" -> "example.com"
func baseDomain(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}
