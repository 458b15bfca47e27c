// Copyright 2024 The go-probe Authors
// This file is part of the go-probe library.
//
// The go-probe library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probe library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probe library. If not, see <http://www.gnu.org/licenses/>.

package registryapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/probechain/go-agentreg/core/types"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsPingInterval  = 30 * time.Second
	wsEventBuffer   = 256
	wsReadSizeLimit = 512
)

var droppedStreamMeter = metrics.NewRegisteredMeter("registryapi/ws/dropped", nil)

// eventSource is the part of the registry an event stream reads from.
type eventSource interface {
	SubscribeEvents(ch chan<- *types.Event) event.Subscription
}

// eventQueue buffers registry events for a single stream client. The feed
// never waits on the client: once the buffer is full the queue unsubscribes
// and closes Overflow, and the client has to reconnect and catch up through
// the event log.
type eventQueue struct {
	C        <-chan *types.Event
	Overflow chan struct{} // Closed when the client fell too far behind
	Done     chan struct{} // Closed when the registry ended the subscription

	sub       event.Subscription
	quit      chan struct{}
	closeOnce sync.Once
}

func newEventQueue(src eventSource, size int) *eventQueue {
	var (
		in  = make(chan *types.Event)
		out = make(chan *types.Event, size)
	)
	q := &eventQueue{
		C:        out,
		Overflow: make(chan struct{}),
		Done:     make(chan struct{}),
		sub:      src.SubscribeEvents(in),
		quit:     make(chan struct{}),
	}
	go q.loop(in, out)
	return q
}

func (q *eventQueue) loop(in <-chan *types.Event, out chan<- *types.Event) {
	defer q.sub.Unsubscribe()
	for {
		select {
		case ev := <-in:
			select {
			case out <- ev:
			default:
				droppedStreamMeter.Mark(1)
				close(q.Overflow)
				return
			}
		case <-q.sub.Err():
			close(q.Done)
			return
		case <-q.quit:
			return
		}
	}
}

// Close stops the queue and releases its subscription.
func (q *eventQueue) Close() {
	q.closeOnce.Do(func() { close(q.quit) })
}

// streamEvents pushes every committed registry event to a WebSocket client
// as a JSON text frame. Clients that cannot keep up are disconnected.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Subscribe before the handshake completes so the client observes every
	// event committed after it connected.
	queue := newEventQueue(s.api.registry, wsEventBuffer)
	defer queue.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadSizeLimit)

	// Clients never send data; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	log.Debug("Event stream opened", "remote", r.RemoteAddr)
	defer log.Debug("Event stream closed", "remote", r.RemoteAddr)

	goodbye := func(code int, text string) {
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteTimeout))
	}
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case ev := <-queue.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-queue.Overflow:
			log.Debug("Dropping slow event stream", "remote", r.RemoteAddr)
			goodbye(websocket.CloseTryAgainLater, "event buffer overflow")
			return
		case <-queue.Done:
			goodbye(websocket.CloseGoingAway, "registry closed")
			return
		case <-closed:
			return
		}
	}
}
