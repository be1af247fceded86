package secure

import (
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpproxy"
)

// ProxySettings is an explicit proxy for backend requests
type ProxySettings struct {
	URL      string
	NoProxy  string
	User     string
	Password string
}

// noProxyList normalizes NoProxy to the comma separated form httpproxy
// expects. Entries may also be separated by '|', spaces or newlines.
func (p ProxySettings) noProxyList() string {
	fields := strings.FieldsFunc(p.NoProxy, func(r rune) bool {
		return r == ',' || r == '|' || r == ' ' || r == '\n'
	})
	return strings.Join(fields, ",")
}

// ProxyFunc returns a Transport.Proxy function for these settings. No-proxy
// entries follow the NO_PROXY conventions of httpproxy: "example.com"
// matches the domain and its subdomains, ".example.com" or "*.example.com"
// only subdomains, and CIDR blocks match IP targets. User and Password
// become the proxy's basic credentials.
func (p ProxySettings) ProxyFunc() func(*http.Request) (*url.URL, error) {
	if p.URL == "" {
		return func(*http.Request) (*url.URL, error) { return nil, nil }
	}

	resolve := (&httpproxy.Config{
		HTTPProxy:  p.URL,
		HTTPSProxy: p.URL,
		NoProxy:    p.noProxyList(),
	}).ProxyFunc()

	return func(req *http.Request) (*url.URL, error) {
		proxyURL, err := resolve(req.URL)
		if err != nil || proxyURL == nil {
			return nil, err
		}
		if p.User == "" {
			return proxyURL, nil
		}
		withUser := *proxyURL
		withUser.User = url.UserPassword(p.User, p.Password)
		return &withUser, nil
	}
}
