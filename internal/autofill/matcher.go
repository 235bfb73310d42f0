// Package autofill picks the credentials relevant to an app or website
// identifier, trying progressively looser strategies and stopping at the
// first one that matches anything.
package autofill

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/lanedirt/AliasVault-sub004/internal/models"
)

var tokenSplit = regexp.MustCompile(`[\s._-]+`)

type predicate func(c models.Credential) bool

// Match returns the credentials matching appInfo, in input order. The
// strategies, from strict to loose:
//  1. service URL equals appInfo (case-insensitive)
//  2. service URL starts with appInfo's scheme://host
//  3. same root domain (last two host labels)
//  4. first label of the root domain found in the service name, or vice versa
//  5. any token of appInfo found in the service name, username or URL, or vice versa
//
// Strategies 2 to 4 only run when appInfo parses as a URL with a host. A bare
// "host.tld" identifier is read as https://host.tld.
func Match(creds []models.Credential, appInfo string) []models.Credential {
	appInfo = strings.TrimSpace(appInfo)
	if appInfo == "" {
		return []models.Credential{}
	}

	strategies := []predicate{exactURL(appInfo)}
	if host, base, ok := parseAppInfo(appInfo); ok {
		root := rootDomain(host)
		strategies = append(strategies,
			baseURL(base),
			sameRootDomain(root),
			domainKeyInName(domainKey(root)),
		)
	}
	strategies = append(strategies, tokens(appInfo))

	for _, p := range strategies {
		if out := filter(creds, p); len(out) > 0 {
			return out
		}
	}
	return []models.Credential{}
}

func filter(creds []models.Credential, p predicate) []models.Credential {
	var out []models.Credential
	for _, c := range creds {
		if p(c) {
			out = append(out, c)
		}
	}
	return out
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// eitherContains is false when either side is empty.
func eitherContains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return containsFold(a, b) || containsFold(b, a)
}

// parseAppInfo returns the lower-cased host and scheme://host of appInfo.
func parseAppInfo(appInfo string) (host, base string, ok bool) {
	raw := appInfo
	if !strings.Contains(raw, "://") {
		if !strings.Contains(raw, ".") || strings.ContainsAny(raw, " \t\r\n") {
			return "", "", false
		}
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", "", false
	}
	host = strings.ToLower(u.Hostname())
	return host, strings.ToLower(u.Scheme) + "://" + host, true
}

func hostOf(serviceURL string) string {
	if serviceURL == "" {
		return ""
	}
	if !strings.Contains(serviceURL, "://") {
		serviceURL = "https://" + serviceURL
	}
	u, err := url.Parse(serviceURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// rootDomain keeps the last two labels: sub.example.com -> example.com.
func rootDomain(host string) string {
	parts := strings.Split(strings.Trim(host, "."), ".")
	if len(parts) < 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// domainKey drops the extension: example.com -> example.
func domainKey(root string) string {
	label, _, _ := strings.Cut(root, ".")
	return label
}

func exactURL(appInfo string) predicate {
	return func(c models.Credential) bool {
		u := value(c.Service.URL)
		return u != "" && strings.EqualFold(u, appInfo)
	}
}

func baseURL(base string) predicate {
	return func(c models.Credential) bool {
		return strings.HasPrefix(strings.ToLower(value(c.Service.URL)), base)
	}
}

func sameRootDomain(root string) predicate {
	return func(c models.Credential) bool {
		h := hostOf(value(c.Service.URL))
		return h != "" && rootDomain(h) == root
	}
}

func domainKeyInName(key string) predicate {
	return func(c models.Credential) bool {
		return eitherContains(value(c.Service.Name), key)
	}
}

func tokens(appInfo string) predicate {
	var terms []string
	for _, t := range tokenSplit.Split(appInfo, -1) {
		if t != "" {
			terms = append(terms, t)
		}
	}

	return func(c models.Credential) bool {
		fields := []string{value(c.Service.Name), value(c.Username), value(c.Service.URL)}
		for _, f := range fields {
			for _, t := range terms {
				if eitherContains(f, t) {
					return true
				}
			}
		}
		return false
	}
}
