package sockets

import "sync"

// SocketPool holds the live streams of connected participants, keyed by
// their server-assigned id.
type SocketPool struct {
	mutex   sync.Mutex
	sockets map[SocketID]Socket
}

func NewSocketPool() *SocketPool {
	return &SocketPool{
		sockets: make(map[SocketID]Socket),
	}
}

func (p *SocketPool) AddSocket(id SocketID, soc Socket) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if oldConn, contains := p.sockets[id]; contains {
		_ = oldConn.Close()
	}
	p.sockets[id] = soc
}

func (p *SocketPool) GetSocket(id SocketID) Socket {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if conn, contains := p.sockets[id]; contains {
		return conn
	}
	return nil
}

func (p *SocketPool) RemoveSocket(id SocketID) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.sockets, id)
}

func (p *SocketPool) CloseSocket(id SocketID) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if oldConn, contains := p.sockets[id]; contains {
		_ = oldConn.Close()
		delete(p.sockets, id)
	}
}

// Each calls f for every live socket. The pool lock is held for the
// duration, so f must not call back into the pool.
func (p *SocketPool) Each(f func(SocketID, Socket)) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for id, conn := range p.sockets {
		f(id, conn)
	}
}

func (p *SocketPool) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.sockets)
}

func (p *SocketPool) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for id, conn := range p.sockets {
		_ = conn.Close()
		delete(p.sockets, id)
	}
}
