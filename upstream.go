package shuttle

import (
	"crypto/tls"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// ErrNoConnection is returned by Acquire when every connection is in use.
var ErrNoConnection = errors.New("no upstream connection available")

// Doer executes one HTTP request. Like http.Client it must close the request
// body once it's done with it, on every path.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Upstream hands out connections to the collector. Every Doer obtained from
// Acquire must be given back with Release.
type Upstream interface {
	Acquire() (Doer, error)
	Release(Doer)
}

// HTTPUpstream shares one http.Client between at most MaxConns concurrent
// flushes. Acquire never blocks: when all slots are taken it fails and the
// caller is expected to retry the batch later.
type HTTPUpstream struct {
	client *http.Client
	slots  *semaphore.Weighted
}

// NewHTTPUpstream builds the client from config. Timeouts are enforced here,
// not by the delivery code.
func NewHTTPUpstream(config Config) *HTTPUpstream {
	dialer := &net.Dialer{Timeout: config.Timeout}
	return &HTTPUpstream{
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:       &tls.Config{InsecureSkipVerify: config.SkipVerify},
				ResponseHeaderTimeout: config.Timeout,
				DialContext:           dialer.DialContext,
				MaxIdleConnsPerHost:   config.MaxConns,
				Proxy:                 http.ProxyFromEnvironment,
			},
		},
		slots: semaphore.NewWeighted(int64(config.MaxConns)),
	}
}

// Acquire reserves a connection slot.
func (u *HTTPUpstream) Acquire() (Doer, error) {
	if !u.slots.TryAcquire(1) {
		return nil, ErrNoConnection
	}
	return u.client, nil
}

// Release frees the slot taken by Acquire.
func (u *HTTPUpstream) Release(Doer) {
	u.slots.Release(1)
}
