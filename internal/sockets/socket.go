package sockets

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
)

type SocketID string

// Socket is the minimal duplex handle the relay needs. Wrapping the
// underlying connection behind an interface lets tests inject fakes.
type Socket interface {
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
	Close() error
}

type socketImpl struct {
	writeMu sync.Mutex
	ws      *websocket.Conn
}

func NewSocket(ws *websocket.Conn) Socket {
	return &socketImpl{ws: ws}
}

// WriteJSON serializes writes; broadcasts and the per-connection read loop
// may hit the same socket concurrently.
func (s *socketImpl) WriteJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(v)
}

func (s *socketImpl) ReadJSON(v interface{}) error {
	return s.ws.ReadJSON(v)
}

func (s *socketImpl) Close() error {
	return s.ws.Close()
}
