// Package logger 提供 msgrpc 的分子系统日志
//
// 基于 log/slog，每个子系统一个 Logger，级别可由环境变量或运行时调整。
//
//	var log = logger.Logger("conn")
//
//	log.Debug("记录已发送", "conn", id, "kind", kind)
//
// 环境变量:
//
//	MSGRPC_LOG_LEVEL=conn=debug,relay=info,warn
//	MSGRPC_LOG_FORMAT=json
//	MSGRPC_LOG_ADD_SOURCE=false
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	registryMu sync.Mutex
	registry   = make(map[string]*entry)

	outMu sync.RWMutex
	out   io.Writer = os.Stderr
)

type entry struct {
	level  *slog.LevelVar
	logger *slog.Logger
}

// Logger 返回子系统 Logger，同名子系统共享同一实例
func Logger(subsystem string) *slog.Logger {
	registryMu.Lock()
	defer registryMu.Unlock()

	if e, ok := registry[subsystem]; ok {
		return e.logger
	}

	env := EnvConfig()
	lv := new(slog.LevelVar)
	lv.Set(env.levelFor(subsystem))

	e := &entry{
		level:  lv,
		logger: slog.New(newHandler(subsystem, lv, env)),
	}
	registry[subsystem] = e
	return e.logger
}

// SetLevel 运行时调整子系统级别（子系统尚未创建时先创建）
func SetLevel(subsystem string, level slog.Level) {
	Logger(subsystem)

	registryMu.Lock()
	registry[subsystem].level.Set(level)
	registryMu.Unlock()
}

// SetAllLevels 调整所有已创建子系统的级别
func SetAllLevels(level slog.Level) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, e := range registry {
		e.level.Set(level)
	}
}

// Level 返回子系统当前级别
func Level(subsystem string) slog.Level {
	Logger(subsystem)

	registryMu.Lock()
	defer registryMu.Unlock()
	return registry[subsystem].level.Level()
}

// SetOutput 替换全部 Logger 的输出目标，已创建的 Logger 同样生效
func SetOutput(w io.Writer) {
	outMu.Lock()
	out = w
	outMu.Unlock()
}

// Discard 返回丢弃全部输出的 Logger
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

type switchWriter struct{}

func (switchWriter) Write(p []byte) (int, error) {
	outMu.RLock()
	w := out
	outMu.RUnlock()
	return w.Write(p)
}
