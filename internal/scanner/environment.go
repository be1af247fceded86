package scanner

import (
	"sort"
	"strings"
)

// lookupProxyVar prefers the lowercase spelling and falls back to uppercase.
// A variable set to the empty string is present and is passed on as is.
func lookupProxyVar(env map[string]string, name string) (string, bool) {
	if v, ok := env[name]; ok {
		return v, true
	}
	v, ok := env[strings.ToUpper(name)]
	return v, ok
}

// ProxyEnvironment derives the proxy variables passed to the scan container.
// https_proxy falls back to http_proxy, and absent variables are omitted.
func ProxyEnvironment(env map[string]string) map[string]string {
	out := make(map[string]string, 3)

	httpProxy, hasHTTP := lookupProxyVar(env, "http_proxy")
	if hasHTTP {
		out["http_proxy"] = httpProxy
	}

	if httpsProxy, ok := lookupProxyVar(env, "https_proxy"); ok {
		out["https_proxy"] = httpsProxy
	} else if hasHTTP {
		out["https_proxy"] = httpProxy
	}

	if noProxy, ok := lookupProxyVar(env, "no_proxy"); ok {
		out["no_proxy"] = noProxy
	}

	return out
}

// BuildEnvironment returns the scan container environment as sorted
// KEY=VALUE pairs.
func BuildEnvironment(cfg BuildConfig, env map[string]string) []string {
	overlay := map[string]string{
		"SYSDIG_API_TOKEN": cfg.Token(),
		"SYSDIG_ADDED_BY":  AddedBy,
	}
	for k, v := range ProxyEnvironment(env) {
		overlay[k] = v
	}

	pairs := make([]string, 0, len(overlay))
	for k, v := range overlay {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}
