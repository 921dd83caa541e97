package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/dep2p/go-msgrpc/config"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// envPrefix 环境变量前缀，键中的 "." 替换为 "_"
//
//	MSGRPC_LISTEN="tcp://0.0.0.0:4510 ws://0.0.0.0:4511"
//	MSGRPC_RELAY_MAX_PENDING=10000
//	MSGRPC_DIAGNOSTICS_STATS_INTERVAL=30s
const envPrefix = "MSGRPC"

// loadConfig 以 relay 预设为基础，依次叠加配置文件（YAML/JSON/TOML）与环境变量
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewPresetConfig(config.PresetRelay)
	if err != nil {
		return nil, err
	}
	cfg.Listen.Addrs = []string{fmt.Sprintf("tcp://0.0.0.0:%d", cfg.Transport.DefaultPort)}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	seedDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	apply(v, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// seedDefaults 注册默认值，环境变量只对已知键生效
func seedDefaults(v *viper.Viper, cfg *config.Config) {
	v.SetDefault("listen", cfg.Listen.Addrs)
	v.SetDefault("max_inbound", cfg.Listen.MaxInbound)

	v.SetDefault("connection.max_messages", cfg.Connection.MaxMessages)
	v.SetDefault("connection.inactivity_timeout", cfg.Connection.InactivityTimeout.Duration())
	v.SetDefault("pool.max_active_connections", cfg.Pool.MaxActiveConnections)
	v.SetDefault("compression.algorithm", cfg.Compression.Algorithm)

	v.SetDefault("transport.enable_tcp", cfg.Transport.EnableTCP)
	v.SetDefault("transport.enable_websocket", cfg.Transport.EnableWebSocket)
	v.SetDefault("transport.enable_quic", cfg.Transport.EnableQUIC)

	v.SetDefault("security.enable", cfg.Security.Enable)
	v.SetDefault("security.required", cfg.Security.Required)
	v.SetDefault("security.cert_file", cfg.Security.CertFile)
	v.SetDefault("security.key_file", cfg.Security.KeyFile)
	v.SetDefault("security.ca_file", cfg.Security.CAFile)
	v.SetDefault("security.client_auth", cfg.Security.ClientAuth)

	v.SetDefault("relay.shards", cfg.Relay.Shards)
	v.SetDefault("relay.max_name_length", cfg.Relay.MaxNameLength)
	v.SetDefault("relay.max_bandwidth", cfg.Relay.MaxBandwidth)
	v.SetDefault("relay.max_pending", cfg.Relay.MaxPending)
	v.SetDefault("relay.max_pending_per_conn", cfg.Relay.MaxPendingPerConn)

	v.SetDefault("diagnostics.enable_introspect", cfg.Diagnostics.EnableIntrospect)
	v.SetDefault("diagnostics.introspect_addr", cfg.Diagnostics.IntrospectAddr)
	v.SetDefault("diagnostics.enable_metrics", cfg.Diagnostics.EnableMetrics)
	v.SetDefault("diagnostics.stats_interval", cfg.Diagnostics.StatsInterval.Duration())
}

func apply(v *viper.Viper, cfg *config.Config) {
	cfg.Listen.Addrs = v.GetStringSlice("listen")
	cfg.Listen.MaxInbound = v.GetInt("max_inbound")

	cfg.Connection.MaxMessages = v.GetInt("connection.max_messages")
	cfg.Connection.InactivityTimeout = duration(v, "connection.inactivity_timeout")
	cfg.Pool.MaxActiveConnections = v.GetInt("pool.max_active_connections")
	cfg.Compression.Algorithm = v.GetString("compression.algorithm")

	cfg.Transport.EnableTCP = v.GetBool("transport.enable_tcp")
	cfg.Transport.EnableWebSocket = v.GetBool("transport.enable_websocket")
	cfg.Transport.EnableQUIC = v.GetBool("transport.enable_quic")

	cfg.Security.Enable = v.GetBool("security.enable")
	cfg.Security.Required = v.GetBool("security.required")
	cfg.Security.CertFile = v.GetString("security.cert_file")
	cfg.Security.KeyFile = v.GetString("security.key_file")
	cfg.Security.CAFile = v.GetString("security.ca_file")
	cfg.Security.ClientAuth = v.GetBool("security.client_auth")

	cfg.Relay.Enable = true
	cfg.Relay.Shards = v.GetInt("relay.shards")
	cfg.Relay.MaxNameLength = v.GetInt("relay.max_name_length")
	cfg.Relay.MaxBandwidth = v.GetInt64("relay.max_bandwidth")
	cfg.Relay.MaxPending = v.GetInt("relay.max_pending")
	cfg.Relay.MaxPendingPerConn = v.GetInt("relay.max_pending_per_conn")

	cfg.Diagnostics.EnableIntrospect = v.GetBool("diagnostics.enable_introspect")
	cfg.Diagnostics.IntrospectAddr = v.GetString("diagnostics.introspect_addr")
	cfg.Diagnostics.EnableMetrics = v.GetBool("diagnostics.enable_metrics")
	cfg.Diagnostics.StatsInterval = duration(v, "diagnostics.stats_interval")
}

func duration(v *viper.Viper, key string) config.Duration {
	return config.Duration(v.GetDuration(key))
}
