// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// MaxURLLength は受け付けるURLの最大長。
const MaxURLLength = 2048

// ErrUnsafeURL は利用者指定のURLが受け付けられないことを表す。
var ErrUnsafeURL = errors.New("unsafe url")

// blockedPrefixes はホスト部がIPリテラルの場合に拒否する範囲。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // CGNAT
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // メタデータIPを含む
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// blockedSuffixes は内部向けのホスト名サフィックス。
var blockedSuffixes = []string{".localhost", ".internal", ".local"}

// URLGuard は利用者が指定するURL（アバター）の検証と、
// サーバーが外部へ発行するリクエスト用のSSRF対策済みクライアント生成を担う。
type URLGuard struct {
	// allowedPorts は外部リクエストで許可するポート。
	allowedPorts []int
}

// NewURLGuard はURLGuardを生成する。
func NewURLGuard() *URLGuard {
	return &URLGuard{allowedPorts: []int{80, 443}}
}

// NewSafeClient はDNS解決後の接続先IPも検証するHTTPクライアントを生成する。
// プライベート・ループバック・リンクローカルへの接続はsafeurlが拒否する。
func (g *URLGuard) NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(g.allowedPorts...).
		Build()

	return safeurl.Client(cfg).Client
}

// ValidateURL はURLが公開http(s)の絶対URLかを静的に検証する。
// サーバー自身は取得しないURLのため、DNS解決は行わない。
// 返すエラーはすべてErrUnsafeURLをラップする。
func (g *URLGuard) ValidateURL(rawURL string) error {
	switch {
	case rawURL == "":
		return fmt.Errorf("%w: empty", ErrUnsafeURL)
	case len(rawURL) > MaxURLLength:
		return fmt.Errorf("%w: longer than %d characters", ErrUnsafeURL, MaxURLLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: scheme %q is not allowed", ErrUnsafeURL, u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials in URL", ErrUnsafeURL)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrUnsafeURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if blockedAddr(addr) {
			return fmt.Errorf("%w: address %s is not public", ErrUnsafeURL, addr)
		}
		return nil
	}

	if host == "localhost" {
		return fmt.Errorf("%w: host %s is not public", ErrUnsafeURL, host)
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return fmt.Errorf("%w: host %s is not public", ErrUnsafeURL, host)
		}
	}
	return nil
}

// blockedAddr はIPv4射影アドレスを展開してから照合する。
func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
