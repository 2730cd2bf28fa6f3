package main

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/practable/calibration/pkg/calibration"
	"github.com/practable/calibration/pkg/sparam"
)

// greetingInterval paces the demonstration greeter. Tests shorten it.
var greetingInterval = time.Second

// Relay serves calibration requests arriving on an established websocket
// connection. Each message is handled to completion before the next read;
// a request that cannot be answered is logged and dropped without a reply.
type Relay struct {
	conn *websocket.Conn
	kit  calibration.Kit
	mu   sync.Mutex // gorilla permits a single concurrent writer
}

func NewRelay(conn *websocket.Conn, kit calibration.Kit) *Relay {
	return &Relay{conn: conn, kit: kit}
}

// Run reads messages until the connection drops. There is no reconnect: the
// read error is returned and the caller decides.
func (r *Relay) Run() error {
	for {
		mt, msg, err := r.conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.TextMessage {
			continue
		}
		r.handle(msg)
	}
}

// handle dispatches one inbound message on its cmd field. Every failure path
// ends here: logged, counted, nothing sent back.
func (r *Relay) handle(msg []byte) {
	id := uuid.New().String()[:8]

	defer func() {
		if rec := recover(); rec != nil {
			log.WithFields(log.Fields{
				"id":    id,
				"panic": fmt.Sprintf("%v", rec),
				"stack": string(debug.Stack()),
			}).Error("message handler panicked")
			messagesDropped.Inc()
		}
	}()

	var probe struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		log.WithFields(log.Fields{
			"id":    id,
			"error": err.Error(),
		}).Debug("ignoring unparseable message")
		messagesDropped.Inc()
		return
	}

	switch probe.Cmd {
	case "oneport":
		r.handleOnePort(id, msg)
	case "twoport":
		r.handleTwoPort(id, msg)
	default:
		log.WithFields(log.Fields{
			"id":  id,
			"cmd": probe.Cmd,
		}).Warn("unknown command")
		messagesDropped.Inc()
	}
}

func (r *Relay) handleOnePort(id string, msg []byte) {
	var req sparam.OnePortRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		r.drop(id, "oneport", "decoding request failed", err)
		return
	}
	if err := req.Validate(); err != nil {
		r.drop(id, "oneport", "invalid request", err)
		return
	}

	cal := calibration.NewOnePort(r.kit)
	err := cal.Run(
		req.Short.Network(req.Freq),
		req.Open.Network(req.Freq),
		req.Load.Network(req.Freq),
	)
	if err != nil {
		r.drop(id, "oneport", "calibration failed", err)
		return
	}
	dut, err := cal.Apply(req.DUT.Network(req.Freq))
	if err != nil {
		r.drop(id, "oneport", "correction failed", err)
		return
	}

	if err := r.send(sparam.NewOnePortResult(dut)); err != nil {
		r.drop(id, "oneport", "sending result failed", err)
		return
	}
	r.handled(id, "oneport", len(req.Freq))
}

func (r *Relay) handleTwoPort(id string, msg []byte) {
	var req sparam.TwoPortRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		r.drop(id, "twoport", "decoding request failed", err)
		return
	}
	if err := req.Validate(); err != nil {
		r.drop(id, "twoport", "invalid request", err)
		return
	}

	cal := calibration.NewTwoPort(r.kit)
	err := cal.Run(
		req.Short.Network(req.Freq),
		req.Open.Network(req.Freq),
		req.Load.Network(req.Freq),
		req.Thru.Network(req.Freq),
	)
	if err != nil {
		r.drop(id, "twoport", "calibration failed", err)
		return
	}
	dut, err := cal.Apply(req.DUT.Network(req.Freq))
	if err != nil {
		r.drop(id, "twoport", "correction failed", err)
		return
	}

	if err := r.send(sparam.NewTwoPortResult(dut)); err != nil {
		r.drop(id, "twoport", "sending result failed", err)
		return
	}
	r.handled(id, "twoport", len(req.Freq))
}

func (r *Relay) drop(id, cmd, what string, err error) {
	log.WithFields(log.Fields{
		"id":    id,
		"cmd":   cmd,
		"error": err.Error(),
	}).Warn(what)
	messagesDropped.Inc()
}

func (r *Relay) handled(id, cmd string, points int) {
	log.WithFields(log.Fields{
		"id":     id,
		"cmd":    cmd,
		"points": points,
	}).Info("calibrated")
	messagesHandled.WithLabelValues(cmd).Inc()
}

// send marshals v and writes one text frame.
func (r *Relay) send(v interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn.WriteJSON(v)
}

// Greet sends three hello messages a second apart, then closes the
// connection. Demonstration behaviour only, enabled by the -greet flag.
func (r *Relay) Greet() {
	for i := 0; i < 3; i++ {
		time.Sleep(greetingInterval)
		r.mu.Lock()
		err := r.conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("Hello %d", i)))
		r.mu.Unlock()
		if err != nil {
			log.WithFields(log.Fields{"error": err.Error()}).Debug("greeting failed")
			return
		}
	}
	time.Sleep(greetingInterval)
	r.Close()
	log.Debug("greeter terminating")
}

// Close sends a close frame and tears down the connection, which releases
// Run on its next read.
func (r *Relay) Close() {
	r.mu.Lock()
	r.conn.WriteMessage(websocket.CloseMessage, []byte{})
	r.mu.Unlock()
	r.conn.Close()
}
