package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Format 输出格式
type Format int

const (
	// FormatText logfmt 风格文本
	FormatText Format = iota
	// FormatJSON 每行一个 JSON 对象
	FormatJSON
)

// Env 从环境变量解析出的日志配置
type Env struct {
	Default   slog.Level
	Levels    map[string]slog.Level
	Format    Format
	AddSource bool
}

func (e *Env) levelFor(subsystem string) slog.Level {
	if l, ok := e.Levels[subsystem]; ok {
		return l
	}
	return e.Default
}

var (
	envOnce sync.Once
	envCfg  *Env
)

// EnvConfig 返回进程级日志配置（首次调用时解析 MSGRPC_LOG_*）
func EnvConfig() *Env {
	envOnce.Do(func() {
		envCfg = ParseEnv(os.Getenv("MSGRPC_LOG_LEVEL"), os.Getenv("MSGRPC_LOG_FORMAT"), os.Getenv("MSGRPC_LOG_ADD_SOURCE"))
	})
	return envCfg
}

// ParseEnv 解析日志配置字符串
//
// levels 形如 "conn=debug,relay=warn,info"，不带子系统的项为默认级别。
// 无法识别的项被忽略。
func ParseEnv(levels, format, addSource string) *Env {
	e := &Env{
		Default: slog.LevelInfo,
		Levels:  make(map[string]slog.Level),
		Format:  FormatText,
	}

	for _, item := range strings.Split(levels, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, lvl, scoped := strings.Cut(item, "=")
		if !scoped {
			if l, ok := ParseLevel(name); ok {
				e.Default = l
			}
			continue
		}
		if l, ok := ParseLevel(strings.TrimSpace(lvl)); ok {
			e.Levels[strings.TrimSpace(name)] = l
		}
	}

	if strings.EqualFold(strings.TrimSpace(format), "json") {
		e.Format = FormatJSON
	}

	switch strings.ToLower(strings.TrimSpace(addSource)) {
	case "1", "true", "yes":
		e.AddSource = true
	}
	return e
}

// ParseLevel 解析级别名称（debug/info/warn/error）
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
