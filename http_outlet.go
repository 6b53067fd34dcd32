package shuttle

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pborman/uuid"
	metrics "github.com/rcrowley/go-metrics"
)

const (
	// maxResponseBody is how much of an error response is read for the log.
	maxResponseBody = 4096
	// PostErrorFormat is the format string for transport failures
	PostErrorFormat = "at=post request_id=%q records=%d outcome=retry error=%q errtype=\"%T\"\n"
	// PostStatusFormat is the format string for non 200 responses
	PostStatusFormat = "at=post request_id=%q records=%d status=%d outcome=%s\n"
	// PostStatusBodyFormat is the format string for non 200 responses with a body
	PostStatusBodyFormat = "at=post request_id=%q records=%d status=%d outcome=%s body=%q\n"
)

// HECOutlet delivers formatted payloads to the HTTP Event Collector. One
// call to Deliver is one request; retrying is left to the caller.
type HECOutlet struct {
	endpoint   string
	mode       Mode
	user       string
	passwd     string
	authHeader string
	channel    string
	userAgent  string
	verbose    bool

	Logger    *log.Logger
	errLogger *log.Logger

	postSuccessTimer metrics.Timer // round trips that got a response
	postFailureTimer metrics.Timer // round trips that failed in transport
	outcomeCounts    map[Outcome]metrics.Counter
}

// NewHECOutlet returns a properly constructed HECOutlet for config and mode.
// config is expected to have been validated.
func NewHECOutlet(config Config, mode Mode, mRegistry metrics.Registry, logger, errLogger *log.Logger) *HECOutlet {
	return &HECOutlet{
		endpoint:         config.Endpoint(),
		mode:             mode,
		user:             config.HTTPUser,
		passwd:           config.HTTPPasswd,
		authHeader:       config.AuthorizationHeader(),
		channel:          config.Channel,
		userAgent:        fmt.Sprintf("splunk-shuttle/%s (%s; %s; %s; %s)", config.ID, runtime.Version(), runtime.GOOS, runtime.GOARCH, runtime.Compiler),
		verbose:          config.Verbose,
		Logger:           orDiscard(logger),
		errLogger:        orDiscard(errLogger),
		postSuccessTimer: metrics.GetOrRegisterTimer("outlet.post.success", mRegistry),
		postFailureTimer: metrics.GetOrRegisterTimer("outlet.post.failure", mRegistry),
		outcomeCounts: map[Outcome]metrics.Counter{
			Success:          metrics.GetOrRegisterCounter("outlet.outcome.success", mRegistry),
			Retry:            metrics.GetOrRegisterCounter("outlet.outcome.retry", mRegistry),
			PermanentFailure: metrics.GetOrRegisterCounter("outlet.outcome.permanent_failure", mRegistry),
		},
	}
}

// Deliver posts p over conn and classifies the result. p is released before
// Deliver returns, whatever the outcome.
func (h *HECOutlet) Deliver(p *Payload, conn Doer) Outcome {
	defer p.Release()

	outcome := h.post(p, conn)
	h.outcomeCounts[outcome].Inc(1)
	return outcome
}

func (h *HECOutlet) post(p *Payload, conn Doer) Outcome {
	if h.mode.Compress {
		if err := p.Compress(); err != nil {
			h.errLogger.Printf("at=post compress=false error=%q msg=%q\n", err, "cannot gzip payload, disabling compression")
		}
	}

	body := &payloadBody{Reader: bytes.NewReader(p.Bytes())}
	// The transport may still be reading the body after a response arrives.
	// If it hasn't closed it by the time we're done the buffer goes to the GC
	// instead of back to the pool.
	defer func() {
		if !body.closed.Load() {
			p.disown()
		}
	}()

	req, err := h.newRequest(p, body)
	if err != nil {
		body.Close()
		h.errLogger.Printf("at=post records=%d outcome=%s error=%q\n", p.Records(), PermanentFailure, err)
		return PermanentFailure
	}
	requestID := req.Header.Get("X-Request-Id")

	resp, err := h.timeRequest(conn, req)
	// There is a way we can have an err and a resp that is not nil, so always
	// close the Body if we have a resp
	defer func() {
		if resp != nil {
			io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
			resp.Body.Close()
		}
	}()
	if err != nil {
		h.errLogger.Printf(PostErrorFormat, requestID, p.Records(), err, err)
		return Retry
	}

	status := resp.StatusCode
	outcome := OutcomeForStatus(status)
	if status != http.StatusOK {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		switch {
		case err != nil:
			h.errLogger.Printf("at=post request_id=%q status=%d outcome=%s reading_body=true error=%q\n", requestID, status, outcome, err)
		case len(b) > 0:
			h.errLogger.Printf(PostStatusBodyFormat, requestID, p.Records(), status, outcome, b)
		default:
			h.errLogger.Printf(PostStatusFormat, requestID, p.Records(), status, outcome)
		}
		return outcome
	}

	if h.verbose {
		h.Logger.Printf("at=post request_id=%q records=%d size=%s encoding=%q status=%d\n",
			requestID, p.Records(), humanize.Bytes(uint64(p.Len())), p.Encoding(), status)
	}
	return outcome
}

func (h *HECOutlet) newRequest(p *Payload, body *payloadBody) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodPost, h.endpoint, body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = int64(p.Len())
	if req.ContentLength == 0 {
		body.Close()
		req.Body = http.NoBody
	}

	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.New())

	switch h.mode.Auth {
	case AuthBasic:
		req.SetBasicAuth(h.user, h.passwd)
	case AuthToken:
		req.Header.Set("Authorization", h.authHeader)
	}

	if enc := p.Encoding(); enc != "" {
		req.Header.Set("Content-Encoding", enc)
	}
	if h.channel != "" {
		req.Header.Set("X-Splunk-Request-Channel", h.channel)
	}
	return req, nil
}

func (h *HECOutlet) timeRequest(conn Doer, req *http.Request) (resp *http.Response, err error) {
	defer func(t time.Time) {
		if err != nil {
			h.postFailureTimer.UpdateSince(t)
		} else {
			h.postSuccessTimer.UpdateSince(t)
		}
	}(time.Now())
	return conn.Do(req)
}

// payloadBody is the request body. It records when the transport is done
// with it so the buffer underneath can be reused.
type payloadBody struct {
	*bytes.Reader
	closed atomic.Bool
}

func (b *payloadBody) Close() error {
	b.closed.Store(true)
	return nil
}
