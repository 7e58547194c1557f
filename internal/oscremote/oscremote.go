// Package oscremote adapts the external OSC-style remote control protocol
// spec.md §1 names as an out-of-core collaborator ("The event control
// surface (an OSC-style remote protocol used by editor front-ends)") onto
// the public handle API. It is a thin transport shim: it never touches
// render state directly, only calls kunquat.Handle.Fire, exactly as the
// teacher's own OSC dispatcher in main.go never reached into Model
// directly but always went through message handlers.
package oscremote

import (
	"fmt"
	"log"

	"github.com/hypebeast/go-osc/osc"

	"github.com/kagu/kunquat/internal/kunquat"
)

// Server relays inbound OSC messages at /kunquat/fire into handle.Fire
// calls, grounded on the teacher's main.go osc.NewStandardDispatcher /
// osc.Server usage.
type Server struct {
	Addr       string
	Handle     *kunquat.Handle
	dispatcher *osc.StandardDispatcher
	inner      *osc.Server
}

// NewServer builds an OSC relay bound to h, listening on addr (e.g.
// ":9000"). The single address registered, "/kunquat/fire", takes
// (channel int32, eventName string, argJSON string) and forwards to
// h.Fire(channel, `["eventName", argJSON]`).
func NewServer(addr string, h *kunquat.Handle) *Server {
	s := &Server{Addr: addr, Handle: h, dispatcher: osc.NewStandardDispatcher()}
	s.dispatcher.AddMsgHandler("/kunquat/fire", s.handleFire)
	s.inner = &osc.Server{Addr: addr, Dispatcher: s.dispatcher}
	return s
}

func (s *Server) handleFire(msg *osc.Message) {
	if len(msg.Arguments) != 3 {
		log.Printf("oscremote: /kunquat/fire expects 3 arguments, got %d", len(msg.Arguments))
		return
	}
	channel, ok := msg.Arguments[0].(int32)
	if !ok {
		log.Printf("oscremote: channel argument must be int32")
		return
	}
	name, ok := msg.Arguments[1].(string)
	if !ok {
		log.Printf("oscremote: event name argument must be string")
		return
	}
	argJSON, ok := msg.Arguments[2].(string)
	if !ok {
		log.Printf("oscremote: event argument must be a JSON string")
		return
	}
	eventJSON := fmt.Sprintf("[%q,%s]", name, argJSON)
	if err := s.Handle.Fire(int(channel), eventJSON); err != nil {
		log.Printf("oscremote: fire %s on channel %d: %v", name, channel, err)
	}
}

// ListenAndServe blocks serving OSC messages until the listener errors or
// is closed, matching the teacher's own goroutine-wrapped
// server.ListenAndServe() call site in main.go.
func (s *Server) ListenAndServe() error {
	log.Printf("oscremote: listening on %s", s.Addr)
	return s.inner.ListenAndServe()
}
