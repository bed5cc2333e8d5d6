package ws

import (
	"time"

	"github.com/google/uuid"
)

// ConnInfo describes who is on the other end of a socket.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnID() string {
	return uuid.NewString()
}
