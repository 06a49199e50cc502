package chat

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewClientMsgID returns a new ULID string used to tag an outbound message.
// The server deduplicates sends on it, so a retried POST can never create a
// duplicate message.
func NewClientMsgID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
