package pool

import (
	"fmt"
	"strings"

	"github.com/dep2p/go-msgrpc/pkg/types"
)

// ============================================================================
//                              连接池生命周期
// ============================================================================

// CreatePool 显式创建连接池，同名连接池已存在时返回 ErrPoolExists
func (s *Service) CreatePool(recipient string, opts PoolOptions) (types.PoolID, error) {
	if s.closed.Load() {
		return types.PoolID{}, types.ErrServiceStopped
	}
	t, err := s.tr.Parse(recipient)
	if err != nil {
		return types.PoolID{}, err
	}
	maxActive := opts.MaxActiveConnections
	if maxActive <= 0 {
		maxActive = s.cfg.Pool.MaxActiveConnections
	}

	key := t.Endpoint()
	sh := s.nameShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if id, ok := sh.m[key]; ok {
		if _, ok := s.pools.Get(id.Index, id.Generation); ok {
			return types.PoolID{}, types.ErrPoolExists
		}
	}
	p, err := s.newOutboundPool(key, t, maxActive)
	if err != nil {
		return types.PoolID{}, err
	}
	sh.m[key] = p.id
	return p.id, nil
}

// Pool 按句柄查找连接池
func (s *Service) Pool(id types.PoolID) (*Pool, error) {
	return s.pool(id)
}

// LookupPool 按接收者地址查找连接池，不创建
func (s *Service) LookupPool(recipient string) (*Pool, error) {
	t, err := s.tr.Parse(recipient)
	if err != nil {
		return nil, err
	}
	key := t.Endpoint()
	sh := s.nameShard(key)
	sh.mu.Lock()
	id, ok := sh.m[key]
	sh.mu.Unlock()
	if !ok {
		return nil, types.ErrPoolUnknown
	}
	return s.pool(id)
}

// CreateConnection 在连接池中新建一条连接
//
// 达到活跃连接上限时返回 ErrTooManyActiveConnections。
func (s *Service) CreateConnection(id types.PoolID) (types.RecipientID, error) {
	p, err := s.pool(id)
	if err != nil {
		return types.RecipientID{}, err
	}
	c, err := p.connect()
	if err != nil {
		return types.RecipientID{}, err
	}
	return p.recipient(c), nil
}

// CloseConnection 延迟关闭连接：在途交换完成后关闭
func (s *Service) CloseConnection(rid types.RecipientID) error {
	_, c, err := s.lookup(rid)
	if err != nil {
		return err
	}
	return c.Close()
}

// ForceClosePool 立即关闭连接池：在途消息以 ErrConnectionKilled 完成
//
// 全部连接关闭后销毁连接池并调用 onClosed（可为空）。
func (s *Service) ForceClosePool(id types.PoolID, onClosed func()) error {
	p, err := s.pool(id)
	if err != nil {
		return err
	}
	p.shutdown(true, onClosed)
	return nil
}

// DelayClosePool 延迟关闭连接池：拒绝新消息，等待在途交换完成
func (s *Service) DelayClosePool(id types.PoolID, onClosed func()) error {
	p, err := s.pool(id)
	if err != nil {
		return err
	}
	p.shutdown(false, onClosed)
	return nil
}

// NotifyEnterActiveState 激活等待中的被动连接，cb 在连接进入 Active 或失败时调用
func (s *Service) NotifyEnterActiveState(rid types.RecipientID, cb func(error)) error {
	e, c, err := s.lookup(rid)
	if err != nil {
		return err
	}
	if c.State() == types.StateActive {
		return types.ErrAlreadyActive
	}
	if p := e.pool; p.maxActive > 0 && p.activeCount() >= p.maxActive {
		return types.ErrTooManyActiveConnections
	}
	return c.Activate(cb)
}

// ============================================================================
//                              中继注册
// ============================================================================

// Register 连接到中继并以 name 注册
//
// 返回承载注册的连接句柄；中继拒绝时该连接以 ErrConnectionRegisterRejected 关闭。
func (s *Service) Register(relayURL, name string) (types.RecipientID, error) {
	if err := s.validName(name); err != nil {
		return types.RecipientID{}, err
	}
	p, t, err := s.poolFor(relayURL)
	if err != nil {
		return types.RecipientID{}, err
	}
	if t.Dest != "" {
		return types.RecipientID{}, fmt.Errorf("%w: %q: register through a relay path", types.ErrInvalidURL, relayURL)
	}
	c, err := p.pick()
	if err != nil {
		return types.RecipientID{}, err
	}
	if err := c.Register(name); err != nil {
		return types.RecipientID{}, err
	}
	log.Info("向中继注册", "relay", p.name, "name", name, "conn", c.ID())
	return p.recipient(c), nil
}

// validName 注册名不能为空、不能包含路径分隔符，长度受配置限制
func (s *Service) validName(name string) error {
	if name == "" || len(name) > s.cfg.Relay.MaxNameLength || strings.ContainsAny(name, "/#") {
		return fmt.Errorf("%w: %q", types.ErrRelayInvalidName, name)
	}
	return nil
}
