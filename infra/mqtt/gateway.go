// Package mqtt bridges MQTT clients to the connection registry. Clients
// announce sessions on presence topics (with an offline last will), receive
// envelopes on their inbox, answer offers on the response topic and reply to
// heartbeat pings.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/jobroute/core/dispatch"
	"github.com/kilianp07/jobroute/core/model"
	coremon "github.com/kilianp07/jobroute/core/monitoring"
	"github.com/kilianp07/jobroute/core/presence"
	"github.com/kilianp07/jobroute/infra/logger"
)

// Envelope event names owned by the gateway.
const (
	EventPing           = "ping"
	EventResponseResult = "response_result"
)

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Registrar is the part of the connection registry the gateway drives.
type Registrar interface {
	Register(identity, role string, s presence.Session) bool
	Deregister(identity, sessionID string) bool
	RecordLatency(identity, sessionID string, rtt time.Duration)
}

// Responder handles offer decisions received over MQTT.
type Responder interface {
	Respond(ctx context.Context, assignmentID, providerID string, decision model.Decision, reason string) (dispatch.AssignmentResult, error)
}

type pendingPing struct {
	key  string
	sent time.Time
}

// Gateway owns the MQTT connection and the sessions announced over it.
type Gateway struct {
	cli       pahoClient
	cfg       Config
	registry  Registrar
	responder Responder
	log       logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	pings    map[string]pendingPing
}

// NewGateway connects to the broker and subscribes to the client topics.
// responder may be nil, in which case response messages are rejected.
func NewGateway(cfg Config, registry Registrar, responder Responder, log logger.Logger) (*Gateway, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.New("mqtt_gateway")
	}
	g := &Gateway{
		cfg:       cfg,
		registry:  registry,
		responder: responder,
		log:       log,
		now:       time.Now,
		sessions:  make(map[string]*session),
		pings:     make(map[string]pendingPing),
	}
	opts.OnConnect = func(paho.Client) {
		g.log.Infof("MQTT connected")
		g.subscribe(g.cli)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		g.log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		g.log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	g.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return g, nil
}

func (g *Gateway) subscribe(c pahoClient) {
	subs := []struct {
		filter  string
		qos     byte
		handler paho.MessageHandler
	}{
		{g.cfg.filter(kindPresence, 3), g.cfg.qos(kindPresence, 1), g.onPresence},
		{g.cfg.filter(kindResponse, 1), g.cfg.qos(kindResponse, 1), g.onResponse},
		{g.cfg.filter(kindPong, 2), g.cfg.qos(kindPong, 0), g.onPong},
	}
	for _, s := range subs {
		if token := c.Subscribe(s.filter, s.qos, s.handler); token.Wait() && token.Error() != nil {
			g.log.Errorf("subscribe %s: %v", s.filter, token.Error())
		}
	}
}

func sessionKey(identity, sessionID string) string { return identity + "/" + sessionID }

// presenceState accepts either a bare "online"/"offline" payload or
// {"state": "..."}.
func presenceState(payload []byte) string {
	var m struct {
		State string `json:"state"`
	}
	if json.Unmarshal(payload, &m) == nil && m.State != "" {
		return strings.ToLower(m.State)
	}
	return strings.ToLower(strings.Trim(strings.TrimSpace(string(payload)), `"`))
}

func (g *Gateway) onPresence(_ paho.Client, msg paho.Message) {
	parts, ok := g.cfg.parseTopic(msg.Topic(), kindPresence, 3)
	if !ok {
		g.log.Warnf("ignoring presence on %s", msg.Topic())
		return
	}
	role, identity, sessionID := parts[0], parts[1], parts[2]
	switch presenceState(msg.Payload()) {
	case "online":
		s := &session{id: sessionID, identity: identity, gw: g}
		g.mu.Lock()
		g.sessions[sessionKey(identity, sessionID)] = s
		g.mu.Unlock()
		g.registry.Register(identity, role, s)
	case "offline":
		g.drop(identity, sessionID)
	default:
		g.log.Warnf("unknown presence state %q on %s", msg.Payload(), msg.Topic())
	}
}

func (g *Gateway) drop(identity, sessionID string) {
	g.mu.Lock()
	s, ok := g.sessions[sessionKey(identity, sessionID)]
	delete(g.sessions, sessionKey(identity, sessionID))
	g.mu.Unlock()
	if ok {
		s.markClosed()
	}
	g.registry.Deregister(identity, sessionID)
}

// ResponseMessage is the payload of a response topic message.
type ResponseMessage struct {
	AssignmentID string         `json:"assignment_id"`
	Decision     model.Decision `json:"decision"`
	Reason       string         `json:"reason,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
}

// ResponseResult is sent back to the responding identity.
type ResponseResult struct {
	AssignmentID string                     `json:"assignment_id"`
	Result       *dispatch.AssignmentResult `json:"result,omitempty"`
	Error        string                     `json:"error,omitempty"`
	Kind         dispatch.Kind              `json:"kind,omitempty"`
}

func (g *Gateway) onResponse(_ paho.Client, msg paho.Message) {
	parts, ok := g.cfg.parseTopic(msg.Topic(), kindResponse, 1)
	if !ok {
		return
	}
	identity := parts[0]
	var req ResponseMessage
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		g.log.Warnf("bad response payload from %s: %v", identity, err)
		return
	}
	out := ResponseResult{AssignmentID: req.AssignmentID}
	if g.responder == nil {
		out.Error, out.Kind = "responses are not accepted on this gateway", dispatch.KindValidation
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		res, err := g.responder.Respond(ctx, req.AssignmentID, identity, req.Decision, req.Reason)
		cancel()
		if err != nil {
			out.Error, out.Kind = err.Error(), dispatch.KindOf(err)
		} else {
			out.Result = &res
		}
	}
	env, err := presence.NewEnvelope(EventResponseResult, out)
	if err != nil {
		g.log.Errorf("encode response result: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.PublishTimeout)
	defer cancel()
	for _, s := range g.sessionsOf(identity, req.SessionID) {
		if err := s.Send(ctx, env); err != nil {
			g.log.Warnf("response result to %s/%s: %v", identity, s.id, err)
		}
	}
}

func (g *Gateway) sessionsOf(identity, only string) []*session {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*session
	for _, s := range g.sessions {
		if s.identity == identity && (only == "" || s.id == only) {
			out = append(out, s)
		}
	}
	return out
}

type pingPayload struct {
	PingID string `json:"ping_id"`
}

func (g *Gateway) onPong(_ paho.Client, msg paho.Message) {
	parts, ok := g.cfg.parseTopic(msg.Topic(), kindPong, 2)
	if !ok {
		return
	}
	var p pingPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		return
	}
	key := sessionKey(parts[0], parts[1])
	g.mu.Lock()
	pp, ok := g.pings[p.PingID]
	if ok && pp.key == key {
		delete(g.pings, p.PingID)
		if s := g.sessions[key]; s != nil {
			s.missed = 0
		}
	}
	g.mu.Unlock()
	if !ok || pp.key != key {
		return
	}
	g.registry.RecordLatency(parts[0], parts[1], g.now().Sub(pp.sent))
}

// Heartbeat pings every session once and drops those that left too many
// pings unanswered.
func (g *Gateway) Heartbeat(ctx context.Context) {
	now := g.now()
	type ping struct {
		s  *session
		id string
	}
	var send []ping
	var stale []*session
	g.mu.Lock()
	for id, pp := range g.pings {
		if now.Sub(pp.sent) > time.Duration(g.cfg.MaxMissedPings+1)*g.cfg.HeartbeatInterval {
			delete(g.pings, id)
		}
	}
	for _, s := range g.sessions {
		if s.missed >= g.cfg.MaxMissedPings {
			stale = append(stale, s)
			continue
		}
		s.missed++
		id := uuid.NewString()
		g.pings[id] = pendingPing{key: sessionKey(s.identity, s.id), sent: now}
		send = append(send, ping{s: s, id: id})
	}
	g.mu.Unlock()

	for _, s := range stale {
		g.log.Warnf("session %s/%s missed %d pings, dropping", s.identity, s.id, g.cfg.MaxMissedPings)
		g.drop(s.identity, s.id)
	}
	for _, p := range send {
		env, err := presence.NewEnvelope(EventPing, pingPayload{PingID: p.id})
		if err != nil {
			continue
		}
		if err := p.s.Send(ctx, env); err != nil {
			g.log.Debugf("ping %s/%s: %v", p.s.identity, p.s.id, err)
		}
	}
}

// Run sends heartbeats until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	defer coremon.Recover("mqtt")
	ticker := time.NewTicker(g.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.Heartbeat(ctx)
		}
	}
}

// SessionCount returns the number of sessions announced over MQTT.
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

var errPublishTimeout = errors.New("publish timed out")

// publish sends payload with retries and exponential backoff.
func (g *Gateway) publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	var publishErr error
	backoff := time.Duration(g.cfg.BackoffMS) * time.Millisecond
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		token := g.cli.Publish(topic, qos, false, payload)
		if !token.WaitTimeout(g.cfg.PublishTimeout) {
			publishErr = errPublishTimeout
		} else {
			publishErr = token.Error()
		}
		if publishErr == nil {
			return nil
		}
		g.log.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt == g.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(1<<attempt)):
		}
	}
	err := fmt.Errorf("publish %s: %w", topic, publishErr)
	coremon.CaptureException(err, coremon.Tags("mqtt", "topic", topic))
	return err
}

// Close drops every session and disconnects from the broker.
func (g *Gateway) Close() {
	g.mu.Lock()
	sessions := g.sessions
	g.sessions = make(map[string]*session)
	g.mu.Unlock()
	for _, s := range sessions {
		s.markClosed()
		g.registry.Deregister(s.identity, s.id)
	}
	if g.cli != nil && g.cli.IsConnected() {
		g.cli.Disconnect(250)
	}
}
