package ws

import (
	"sync"
	"time"
)

// StatusWriter 在线状态快照的落库方
type StatusWriter interface {
	WriteStatus(userID uint64, isOnline bool, lastSeen time.Time)
}

// Presence 本进程连接注册表，在线状态的权威来源。
// 同一用户允许多条连接（多标签页/多端），只有 0→1 和 1→0 的边沿
// 才算状态变化；中间的增减不触发落库也不广播。
type Presence struct {
	mu    sync.RWMutex
	conns map[uint64]map[*Client]struct{}
}

func NewPresence() *Presence {
	return &Presence{
		conns: make(map[uint64]map[*Client]struct{}),
	}
}

// Add 注册连接，返回该用户是否由离线转为在线
func (p *Presence) Add(c *Client) (wentOnline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.conns[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		p.conns[c.UserID] = set
		wentOnline = true
	}
	set[c] = struct{}{}
	return wentOnline
}

// Remove 注销连接，返回该用户是否由在线转为离线
func (p *Presence) Remove(c *Client) (wentOffline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.conns[c.UserID]
	if !ok {
		return false
	}
	if _, ok = set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(p.conns, c.UserID)
		return true
	}
	return false
}

// IsOnline 查询用户当前是否有活跃连接
func (p *Presence) IsOnline(userID uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns[userID]) > 0
}

// ClientsOf 该用户的全部连接快照
func (p *Presence) ClientsOf(userID uint64) []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	set := p.conns[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// All 全部连接快照
func (p *Presence) All() []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*Client
	for _, set := range p.conns {
		for c := range set {
			out = append(out, c)
		}
	}
	return out
}
