package config

import "fmt"

// CompressionConfig 报文压缩配置
type CompressionConfig struct {
	// Algorithm "none"、"s2" 或 "zstd"
	Algorithm string `json:"algorithm"`
}

// DefaultCompressionConfig 返回默认压缩配置
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{Algorithm: "none"}
}

// Validate 校验压缩配置
func (c CompressionConfig) Validate() error {
	switch c.Algorithm {
	case "", "none", "s2", "zstd":
		return nil
	}
	return fmt.Errorf("unknown compression algorithm %q", c.Algorithm)
}
