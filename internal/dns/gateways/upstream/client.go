// Package upstream provides the ephemeral-socket primitive the recursive
// resolver uses to send a single query to a single server and await its
// reply, per spec's guidance that each outbound query get its own
// ephemeral socket so replies can be matched by transaction id and bounded
// by a read timeout.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/gateways/wire"
)

var (
	ErrCodecRequired = errors.New("DNS codec is required")
)

// DialFunc establishes a network connection; overridable for tests.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Client sends one DNS query to one server over UDP and decodes its reply.
// It does not retry, fan out to multiple servers, or cache anything -
// those concerns belong to the caller (the recursive resolver's walk moves
// on to its next configured root when a root fails; a failed referral hop
// ends the walk with the error).
type Client struct {
	timeout time.Duration
	codec   wire.DNSCodec
	dial    DialFunc
}

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	Codec   wire.DNSCodec
	Dial    DialFunc // optional, defaults to net.Dialer.DialContext
}

// NewClient constructs a Client. Timeout defaults to 5 seconds if unset.
func NewClient(opts Options) (*Client, error) {
	if opts.Codec == nil {
		return nil, ErrCodecRequired
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	return &Client{timeout: opts.Timeout, codec: opts.Codec, dial: opts.Dial}, nil
}

// ensureContextDeadline adds the client's default timeout to ctx if it has
// no deadline of its own, returning a cancel func to defer when one is added.
func (c *Client) ensureContextDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, nil
}

// Query sends query to server (host:port) over a fresh UDP socket and
// returns the decoded response. now is passed through to the codec so
// cached-record TTLs can be computed relative to the moment the reply
// arrived, not the moment it's later read from cache.
func (c *Client) Query(ctx context.Context, server string, query domain.Question, now time.Time) (domain.DNSResponse, error) {
	ctx, cancel := c.ensureContextDeadline(ctx)
	if cancel != nil {
		defer cancel()
	}

	conn, err := c.dial(ctx, "udp", server)
	if err != nil {
		return domain.DNSResponse{}, fmt.Errorf("failed to connect to %s: %w", server, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	queryBytes, err := c.codec.EncodeQuery(query)
	if err != nil {
		return domain.DNSResponse{}, fmt.Errorf("encode failed: %w", err)
	}

	type result struct {
		response domain.DNSResponse
		err      error
	}
	resultChan := make(chan result, 1)

	go func() {
		if _, err := conn.Write(queryBytes); err != nil {
			resultChan <- result{err: fmt.Errorf("write failed: %w", err)}
			return
		}
		buffer := make([]byte, 4096)
		n, err := conn.Read(buffer)
		if err != nil {
			resultChan <- result{err: fmt.Errorf("read failed: %w", err)}
			return
		}
		response, err := c.codec.DecodeResponse(buffer[:n], query.ID, now)
		resultChan <- result{response: response, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.response, res.err
	case <-ctx.Done():
		return domain.DNSResponse{}, fmt.Errorf("query to %s: %w", server, ctx.Err())
	}
}
