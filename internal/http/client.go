package http

import (
	"crypto/tls"
	"net"
	nethttp "net/http"
	"os"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/net/http2"

	"github.com/cloudsdk/cloudxfer/internal/config"
	"github.com/cloudsdk/cloudxfer/internal/constants"
	"github.com/cloudsdk/cloudxfer/internal/logging"
)

// ConfigureHTTPClient returns a general purpose client honoring the proxy
// settings. It performs no I/O.
func ConfigureHTTPClient(cfg config.ProxyConfig, logger *logging.Logger) (*nethttp.Client, error) {
	return buildClient(cfg, logger, nil)
}

// NewTransferClient returns the client used for control requests and data
// PUTs: no compression (payloads are opaque), HTTP/2 when it is safe, and
// no overall timeout since callers bound requests through their context.
//
// DISABLE_HTTP2=true forces HTTP/1.1. Behind a proxy HTTP/1.1 is used unless
// FORCE_HTTP2=true.
func NewTransferClient(cfg config.ProxyConfig, logger *logging.Logger) (*nethttp.Client, error) {
	return buildClient(cfg, logger, func(tr *nethttp.Transport, mode ProxyMode) {
		tr.DisableCompression = true
		useHTTP2 := os.Getenv("DISABLE_HTTP2") != "true" &&
			(mode == ProxyNone || os.Getenv("FORCE_HTTP2") == "true")
		if !useHTTP2 {
			tr.ForceAttemptHTTP2 = false
			tr.TLSNextProto = map[string]func(string, *tls.Conn) nethttp.RoundTripper{}
			return
		}
		tr.ForceAttemptHTTP2 = true
		_ = http2.ConfigureTransport(tr)
	})
}

// DefaultClientFactory returns the ClientFactory used by the CLI pool.
func DefaultClientFactory(cfg config.ProxyConfig, logger *logging.Logger) ClientFactory {
	return func() (*nethttp.Client, error) {
		return NewTransferClient(cfg, logger)
	}
}

func buildClient(cfg config.ProxyConfig, logger *logging.Logger, tune func(*nethttp.Transport, ProxyMode)) (*nethttp.Client, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	proxy, mode, err := selectProxy(cfg, logger)
	if err != nil {
		return nil, err
	}

	tr := newTransport()
	tr.Proxy = proxy
	if tune != nil {
		tune(tr, mode)
	}

	if mode == ProxyNTLM {
		return &nethttp.Client{Transport: &ntlmTransport{Negotiator: ntlmssp.Negotiator{RoundTripper: tr}, inner: tr}}, nil
	}
	return &nethttp.Client{Transport: tr}, nil
}

// ntlmTransport keeps the transport under the negotiator reachable so a
// recycled client can drop its idle connections.
type ntlmTransport struct {
	ntlmssp.Negotiator
	inner *nethttp.Transport
}

func (t *ntlmTransport) CloseIdleConnections() {
	t.inner.CloseIdleConnections()
}

// newTransport starts from cleanhttp's pooled transport, which does not
// share state with http.DefaultTransport, and applies the transfer timeouts.
func newTransport() *nethttp.Transport {
	tr := cleanhttp.DefaultPooledTransport()
	tr.Proxy = nil
	tr.DialContext = (&net.Dialer{
		Timeout:   constants.HTTPDialTimeout,
		KeepAlive: constants.HTTPDialKeepAlive,
	}).DialContext
	tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	tr.MaxIdleConns = 100
	tr.MaxIdleConnsPerHost = 100
	tr.MaxConnsPerHost = 100
	tr.IdleConnTimeout = constants.HTTPIdleConnTimeout
	tr.TLSHandshakeTimeout = constants.HTTPTLSHandshakeTimeout
	tr.ExpectContinueTimeout = constants.HTTPExpectContinueTimeout
	tr.ResponseHeaderTimeout = constants.HTTPResponseHeaderTimeout
	return tr
}
