package conn

import (
	"context"
	"net"
)

// DialFunc 建立套接字（含名称解析），每次重试调用一次
type DialFunc func(ctx context.Context) (net.Conn, error)

// connect 在独立协程中拨号，失败按指数退避重试
func (c *Conn) connect() {
	backoff := c.cfg.RetryBackoffMin
	var lastErr error

	for attempt := 0; attempt <= c.cfg.ConnectRetries; attempt++ {
		if attempt > 0 {
			timer := c.clk.Timer(backoff)
			select {
			case <-timer.C:
			case <-c.ctx.Done():
				timer.Stop()
				return
			}
			backoff *= 2
			if backoff > c.cfg.RetryBackoffMax {
				backoff = c.cfg.RetryBackoffMax
			}
		}

		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.DialTimeout)
		nc, err := c.dial(ctx)
		cancel()
		if err == nil {
			if !c.post(func() { c.onConnected(nc) }) {
				nc.Close()
			}
			return
		}
		if c.ctx.Err() != nil {
			return
		}

		lastErr = err
		c.log.Debug("拨号失败", "attempt", attempt+1, "err", err)
	}

	err := connectError(lastErr)
	c.post(func() { c.fail(err) })
}

// onConnected 拨号成功，由事件循环执行
func (c *Conn) onConnected(nc net.Conn) {
	if c.State() != stateConnecting {
		nc.Close()
		return
	}
	c.nc = nc
	c.apply(EvConnected, nil)
}

// startHandshake 在独立协程中执行安全握手
func (c *Conn) startHandshake() {
	nc := c.nc
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.HandshakeTimeout)
		defer cancel()

		tc, err := handshake(ctx, nc, c.cfg.TLS, c.dir, c.serverName)
		ok := c.post(func() {
			if c.State() != stateSecuring {
				if tc != nil {
					tc.Close()
				}
				return
			}
			if err != nil {
				c.fail(err)
				return
			}
			c.nc = tc
			c.apply(EvSecured, nil)
		})
		if !ok && tc != nil {
			tc.Close()
		}
	}()
}
