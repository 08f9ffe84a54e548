package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrBlockedTarget はダウンロード先が内部ネットワークを指していることを表す。
var ErrBlockedTarget = errors.New("target is on a private network")

// blockedPrefixes はURLに直接書かれたIPアドレスを拒否する範囲。
// ホスト名経由の接続はsafeurlがDNS解決後に同じ種類の範囲を拒否する。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // クラウドのメタデータIP
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// Target はSSRF対策の検証を通ったダウンロード先。
type Target struct {
	URL  *url.URL
	Port int
}

// ParseTarget はAPI URLを解析し、スキーム、ホスト、ポートを検証する。
// DNS解決は行わない。
func ParseTarget(rawURL string) (*Target, error) {
	if rawURL == "" {
		return nil, errors.New("empty URL")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	var defaultPort int
	switch strings.ToLower(u.Scheme) {
	case "https":
		defaultPort = 443
	case "http":
		defaultPort = 80
	default:
		return nil, fmt.Errorf("disallowed scheme %q (allowed: http, https)", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if err := checkHost(host); err != nil {
		return nil, err
	}

	port := defaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", p)
		}
	}
	return &Target{URL: u, Port: port}, nil
}

func checkHost(host string) error {
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return fmt.Errorf("%s: %w", host, ErrBlockedTarget)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		// ホスト名
		return nil
	}
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return fmt.Errorf("%s: %w", addr, ErrBlockedTarget)
		}
	}
	return nil
}

// Client はTargetのポートだけに接続できるHTTPクライアントを返す。
// 接続のたびにsafeurlが解決後のIPアドレスを検証するため、
// DNS再バインディングやリダイレクトでの内部アドレスへの誘導も拒否される。
func (t *Target) Client(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(t.Port).
		Build()
	return safeurl.Client(config).Client
}
