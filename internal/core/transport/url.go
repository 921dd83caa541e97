package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/dep2p/go-msgrpc/pkg/types"
)

const schemeSep = "://"

// Target 解析后的接收者地址
type Target struct {
	// Scheme 传输 scheme
	Scheme string

	// Host 主机名或 IP（mem 为监听名称）
	Host string

	// Port 端口，可为空
	Port string

	// Dest 中继目的路径，为空表示直连
	Dest string
}

// ParseURL 解析 [scheme://]host[:port][#relay/path]
//
// 只做语法解析，不检查 scheme 是否已注册，也不补默认端口。
func ParseURL(raw, defaultScheme string) (Target, error) {
	t, err := parse(raw, defaultScheme)
	if err != nil {
		return Target{}, err
	}
	if t.Host == "" {
		return Target{}, invalid(raw, "missing host")
	}
	return t, nil
}

// ParseListenURL 解析监听地址，允许省略主机（监听全部地址），不允许目的路径
func ParseListenURL(raw, defaultScheme string) (Target, error) {
	t, err := parse(raw, defaultScheme)
	if err != nil {
		return Target{}, err
	}
	if t.Dest != "" {
		return Target{}, invalid(raw, "listen address cannot carry a relay path")
	}
	if t.Host == "" && t.Port == "" {
		return Target{}, invalid(raw, "missing host and port")
	}
	return t, nil
}

func parse(raw, defaultScheme string) (Target, error) {
	var t Target
	rest := strings.TrimSpace(raw)
	if rest == "" {
		return t, invalid(raw, "empty")
	}

	if i := strings.IndexByte(rest, '#'); i >= 0 {
		t.Dest = rest[i+1:]
		rest = rest[:i]
		if err := validateDest(t.Dest); err != nil {
			return Target{}, invalid(raw, err.Error())
		}
	}

	t.Scheme = defaultScheme
	if i := strings.Index(rest, schemeSep); i >= 0 {
		t.Scheme = strings.ToLower(rest[:i])
		rest = rest[i+len(schemeSep):]
	}
	if t.Scheme == "" {
		return Target{}, invalid(raw, "missing scheme")
	}
	if strings.ContainsAny(rest, "/?@") {
		return Target{}, invalid(raw, "unexpected path or userinfo")
	}

	host, port, err := splitHostPort(rest)
	if err != nil {
		return Target{}, invalid(raw, err.Error())
	}
	t.Host, t.Port = host, port
	return t, nil
}

func splitHostPort(s string) (string, string, error) {
	if s == "" {
		return "", "", nil
	}
	// 无端口：普通主机名或带方括号的 IPv6
	if !strings.Contains(s, ":") {
		return s, "", nil
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		return s[1 : len(s)-1], "", nil
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", "", err
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return "", "", fmt.Errorf("invalid port %q", port)
	}
	return host, port, nil
}

func validateDest(dest string) error {
	if dest == "" {
		return fmt.Errorf("empty relay path")
	}
	for _, seg := range strings.Split(dest, "/") {
		if seg == "" {
			return fmt.Errorf("empty relay path segment")
		}
	}
	return nil
}

func invalid(raw, reason string) error {
	return fmt.Errorf("%w: %q: %s", types.ErrInvalidURL, raw, reason)
}

// Addr 返回拨号/监听地址（host:port，无端口时为 host）
func (t Target) Addr() string {
	if t.Port == "" {
		return t.Host
	}
	return net.JoinHostPort(t.Host, t.Port)
}

// Endpoint 返回不含中继路径的端点，同一端点的接收者共享连接池
func (t Target) Endpoint() string {
	return t.Scheme + schemeSep + t.Addr()
}

// Relayed 是否经中继转发
func (t Target) Relayed() bool {
	return t.Dest != ""
}

// String 返回规范化的 URL
func (t Target) String() string {
	if t.Dest == "" {
		return t.Endpoint()
	}
	return t.Endpoint() + "#" + t.Dest
}
