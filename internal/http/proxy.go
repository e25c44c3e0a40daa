package http

import (
	"fmt"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpproxy"

	"github.com/cloudsdk/cloudxfer/internal/config"
	"github.com/cloudsdk/cloudxfer/internal/logging"
)

// ProxyMode is the [proxy] mode setting.
type ProxyMode string

const (
	ProxyNone   ProxyMode = "no-proxy"
	ProxySystem ProxyMode = "system"
	ProxyBasic  ProxyMode = "basic"
	ProxyNTLM   ProxyMode = "ntlm"
)

const defaultProxyPort = 8080

func parseProxyMode(s string) (ProxyMode, error) {
	switch m := ProxyMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ProxyNone, nil
	case ProxyNone, ProxySystem, ProxyBasic, ProxyNTLM:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported proxy mode: %s", s)
	}
}

type proxyFunc = func(*nethttp.Request) (*url.URL, error)

// selectProxy returns the transport's proxy function and the effective mode.
// A basic or NTLM config without a host degrades to a direct connection.
func selectProxy(cfg config.ProxyConfig, logger *logging.Logger) (proxyFunc, ProxyMode, error) {
	mode, err := parseProxyMode(cfg.Mode)
	if err != nil {
		return nil, "", err
	}

	switch mode {
	case ProxyNone:
		return nil, ProxyNone, nil
	case ProxySystem:
		// The environment is read per client, so a recycled client sees
		// changed variables.
		env := httpproxy.FromEnvironment()
		if cfg.NoProxy != "" {
			env.NoProxy = cfg.NoProxy
		}
		match := env.ProxyFunc()
		return func(req *nethttp.Request) (*url.URL, error) { return match(req.URL) }, ProxySystem, nil
	}

	if cfg.Host == "" {
		logger.Warn().Str("mode", string(mode)).Msg("Proxy host missing, connecting directly")
		return nil, ProxyNone, nil
	}
	if cfg.User != "" && cfg.Password == "" && mode == ProxyBasic {
		logger.Warn().Msg("Proxy user set without password, proxy auth disabled")
	}
	return proxyFuncWithBypass(buildProxyURL(cfg), cfg.NoProxy, logger), mode, nil
}

// buildProxyURL returns http://[user:password@]host:port. Credentials are
// embedded only when both are set.
func buildProxyURL(cfg config.ProxyConfig) *url.URL {
	port := cfg.Port
	if port == 0 {
		port = defaultProxyPort
	}
	u := &url.URL{Scheme: "http", Host: cfg.Host + ":" + strconv.Itoa(port)}
	if cfg.User != "" && cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u
}

// proxyFuncWithBypass routes every request through proxyURL except hosts
// matching noProxy (comma separated domains, *.wildcards and CIDRs).
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string, logger *logging.Logger) proxyFunc {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	match := (&httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}).ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		u, err := match(req.URL)
		if u == nil {
			logger.Debug().Str("host", req.URL.Host).Msg("Proxy bypass")
		}
		return u, err
	}
}

// NeedsProxyPassword reports whether the CLI must prompt for the proxy
// password before building clients.
func NeedsProxyPassword(cfg config.ProxyConfig) bool {
	mode, err := parseProxyMode(cfg.Mode)
	if err != nil || (mode != ProxyBasic && mode != ProxyNTLM) {
		return false
	}
	return cfg.User != "" && cfg.Password == ""
}
