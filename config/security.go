package config

import "errors"

// SecurityConfig 安全套接字配置
//
// 启用后连接在 Connecting 与 Active 之间进行 TLS 握手；
// 传输本身已加密（quic）时跳过握手。
type SecurityConfig struct {
	// Enable 启用 TLS
	Enable bool `json:"enable"`

	// Required 策略要求安全连接：未启用 TLS 且传输不加密时连接直接失败
	Required bool `json:"required"`

	// CertFile/KeyFile 本端证书（服务端必需，客户端用于双向认证）
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`

	// CAFile 校验对端证书的 CA（为空时使用系统根证书）
	CAFile string `json:"ca_file,omitempty"`

	// ServerName 客户端校验的服务端名称（为空时使用拨号主机名）
	ServerName string `json:"server_name,omitempty"`

	// ClientAuth 服务端要求并校验客户端证书
	ClientAuth bool `json:"client_auth"`

	// InsecureSkipVerify 跳过证书校验（仅测试）
	InsecureSkipVerify bool `json:"insecure_skip_verify"`
}

// DefaultSecurityConfig 返回默认安全配置（不启用）
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{}
}

// Validate 校验安全配置
func (c SecurityConfig) Validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("cert_file and key_file must be set together")
	}
	return nil
}
