package wire

import (
	"time"

	"github.com/haukened/rr-dns/internal/dns/domain"
)

type DNSCodec interface {
	// Upstream Functions
	// These methods are used to encode and decode DNS messages for communication with upstream servers.
	EncodeQuery(query domain.Question) ([]byte, error)
	DecodeResponse(data []byte, expectedID uint16, now time.Time) (domain.DNSResponse, error)

	// Server-side Functions
	// These methods decode queries received from clients and encode the replies sent back to them.
	DecodeQuery(data []byte) (domain.Question, error)
	EncodeResponse(resp domain.DNSResponse) ([]byte, error)
}
