package sessions

import (
	"fmt"
	"time"

	"github.com/maypok86/otter"
)

const (
	// DefaultClientRequestTTL bounds an operator clientrequest session.
	DefaultClientRequestTTL = 5 * time.Minute
	clientRequestCapacity   = 10_000
)

// ClientRequest is the auxiliary operator-menu state for one chat.
type ClientRequest struct {
	Step    string
	Data    map[string]string
	Created time.Time
}

// ClientRequestStore keeps clientrequest sessions for a fixed time after they
// are set. A lookup after the TTL misses.
type ClientRequestStore struct {
	cache otter.Cache[string, ClientRequest]
}

// NewClientRequestStore builds the TTL store.
func NewClientRequestStore(ttl time.Duration) (*ClientRequestStore, error) {
	if ttl <= 0 {
		ttl = DefaultClientRequestTTL
	}
	c, err := otter.MustBuilder[string, ClientRequest](clientRequestCapacity).WithTTL(ttl).Build()
	if err != nil {
		return nil, fmt.Errorf("build clientrequest cache: %w", err)
	}
	return &ClientRequestStore{cache: c}, nil
}

// Set stores req for chatID, restarting its TTL.
func (c *ClientRequestStore) Set(chatID string, req ClientRequest) {
	if req.Created.IsZero() {
		req.Created = time.Now()
	}
	c.cache.Set(chatID, req)
}

// Get returns the live clientrequest session for chatID.
func (c *ClientRequestStore) Get(chatID string) (ClientRequest, bool) {
	return c.cache.Get(chatID)
}

// Clear removes chatID's clientrequest session.
func (c *ClientRequestStore) Clear(chatID string) {
	c.cache.Delete(chatID)
}

// Len returns the number of cached sessions.
func (c *ClientRequestStore) Len() int { return c.cache.Size() }

// Close stops the cache's background maintenance.
func (c *ClientRequestStore) Close() { c.cache.Close() }
