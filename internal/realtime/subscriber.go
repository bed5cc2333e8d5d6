package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Handler receives every event delivered on a subscription.
type Handler func(Event)

// Subscription is one open channel scoped to a challenge cohort.
type Subscription interface {
	// Bind registers the single handler, replacing any previous one.
	Bind(h Handler)
	// Live reports whether events can arrive. A non-live subscription means
	// the view only sees new items after a refresh.
	Live() bool
	// Close unbinds the handler and closes the connection. No handler call
	// happens after Close returns.
	Close() error
}

// Subscriber opens subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, challengeID, cohortID int64) (Subscription, error)
}

type offlineSubscription struct {
	reason string
}

// Offline returns a subscription that never delivers anything.
func Offline(reason string) Subscription {
	return offlineSubscription{reason: reason}
}

func (offlineSubscription) Bind(Handler) {}

func (offlineSubscription) Live() bool { return false }

func (offlineSubscription) Close() error { return nil }

// OfflineReason returns why a subscription is not live, or "" for live ones.
func OfflineReason(sub Subscription) string {
	if s, ok := sub.(offlineSubscription); ok {
		return s.reason
	}
	return ""
}

// WSSubscriber dials the chat websocket endpoint of the server.
type WSSubscriber struct {
	BaseURL string
	Key     string
	Dialer  *websocket.Dialer
}

// NewWSSubscriber builds a subscriber for a server base URL (http or ws scheme).
func NewWSSubscriber(baseURL, key string) *WSSubscriber {
	return &WSSubscriber{BaseURL: baseURL, Key: key, Dialer: websocket.DefaultDialer}
}

// Subscribe never fails: when the key or the scope is missing, or the dial
// fails, it logs and hands back an offline subscription.
func (s *WSSubscriber) Subscribe(ctx context.Context, challengeID, cohortID int64) (Subscription, error) {
	if challengeID == 0 || cohortID == 0 {
		log.Printf("realtime disabled: missing scope challenge_id=%d cohort_id=%d", challengeID, cohortID)
		return Offline("missing challenge or cohort"), nil
	}
	if s.Key == "" {
		log.Printf("realtime disabled: empty client key topic=%s", Topic(challengeID, cohortID))
		return Offline("empty client key"), nil
	}

	endpoint, err := s.endpoint(challengeID, cohortID)
	if err != nil {
		log.Printf("realtime disabled: %v", err)
		return Offline(err.Error()), nil
	}

	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		log.Printf("realtime disabled: dial topic=%s err=%v", Topic(challengeID, cohortID), err)
		return Offline(err.Error()), nil
	}

	sub := &wsSubscription{
		conn:  conn,
		topic: Topic(challengeID, cohortID),
		done:  make(chan struct{}),
	}
	go sub.readLoop()
	log.Printf("realtime subscribed topic=%s", sub.topic)
	return sub, nil
}

func (s *WSSubscriber) endpoint(challengeID, cohortID int64) (string, error) {
	u, err := url.Parse(strings.TrimRight(s.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = fmt.Sprintf("%s/ws/chat/%d/%d", u.Path, challengeID, cohortID)
	u.RawQuery = url.Values{"token": {s.Key}}.Encode()
	return u.String(), nil
}

type wsSubscription struct {
	conn  *websocket.Conn
	topic string

	mu      sync.Mutex
	handler Handler
	closed  bool
	dropped bool

	done      chan struct{}
	closeOnce sync.Once
}

func (s *wsSubscription) Bind(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.handler = h
}

// Live is false once Close was called or the server side has gone away.
func (s *wsSubscription) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.dropped
}

func (s *wsSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.handler = nil
		s.closed = true
		s.mu.Unlock()

		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
		<-s.done
		log.Printf("realtime unsubscribed topic=%s", s.topic)
	})
	return err
}

func (s *wsSubscription) readLoop() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.dropped = true
			s.mu.Unlock()
			if !closed {
				log.Printf("realtime read error topic=%s err=%v", s.topic, err)
				s.dispatch(Event{Name: EventDisconnected, Topic: s.topic})
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("realtime dropped malformed frame topic=%s err=%v", s.topic, err)
			continue
		}
		s.dispatch(ev)
	}
}

func (s *wsSubscription) dispatch(ev Event) {
	s.mu.Lock()
	h := s.handler
	closed := s.closed
	s.mu.Unlock()
	if closed || h == nil {
		return
	}
	h(ev)
}
