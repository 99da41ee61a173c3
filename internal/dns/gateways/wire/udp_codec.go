// Package wire provides encoding and decoding of DNS messages for UDP transport.
// It handles the DNS wire format as specified in RFC 1035.
package wire

import (
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/domain"
)

// udpCodec implements the DNSCodec interface for standard DNS over UDP
// messages, using miekg/dns to pack and unpack the wire format.
type udpCodec struct {
	logger log.Logger
}

// NewUDPCodec creates and returns a new instance of udpCodec using the provided logger.
// The logger is used for logging within the codec.
func NewUDPCodec(logger log.Logger) *udpCodec {
	return &udpCodec{
		logger: logger,
	}
}

// EncodeQuery serializes a Question into a binary format suitable for sending via UDP.
func (c *udpCodec) EncodeQuery(query domain.Question) ([]byte, error) {
	m := new(dns.Msg)
	m.Id = query.ID
	m.RecursionDesired = true
	m.Question = []dns.Question{{
		Name:   dns.Fqdn(query.Name),
		Qtype:  uint16(query.Type),
		Qclass: uint16(query.Class),
	}}
	return m.Pack()
}

// DecodeQuery parses a DNS query message from data.
func (c *udpCodec) DecodeQuery(data []byte) (domain.Question, error) {
	m := new(dns.Msg)
	if err := m.Unpack(data); err != nil {
		return domain.Question{}, fmt.Errorf("failed to unpack query: %w", err)
	}
	if len(m.Question) != 1 {
		return domain.Question{}, fmt.Errorf("expected exactly one question, got %d", len(m.Question))
	}
	q := m.Question[0]
	question, err := domain.NewQuestion(m.Id, q.Name, domain.RRType(q.Qtype), domain.RRClass(q.Qclass))
	if err != nil {
		return domain.Question{}, err
	}
	c.logger.Debug(map[string]any{
		"id":   question.ID,
		"name": question.Name,
		"type": question.Type.String(),
	}, "Decoded DNS query")
	return question, nil
}

// EncodeResponse serializes a DNSResponse into a binary format suitable for sending via UDP.
func (c *udpCodec) EncodeResponse(resp domain.DNSResponse) ([]byte, error) {
	m := new(dns.Msg)
	m.Id = resp.ID
	m.Response = true
	m.RecursionAvailable = true
	m.Authoritative = resp.AA
	m.Truncated = false
	m.Rcode = int(resp.RCode)
	m.Question = []dns.Question{{
		Name:   dns.Fqdn(resp.Question.Name),
		Qtype:  uint16(resp.Question.Type),
		Qclass: uint16(resp.Question.Class),
	}}

	var err error
	if m.Answer, err = toRRs(resp.Answers); err != nil {
		return nil, fmt.Errorf("failed to encode answer section: %w", err)
	}
	if m.Ns, err = toRRs(resp.Authority); err != nil {
		return nil, fmt.Errorf("failed to encode authority section: %w", err)
	}
	if m.Extra, err = toRRs(resp.Additional); err != nil {
		return nil, fmt.Errorf("failed to encode additional section: %w", err)
	}

	c.logger.Debug(map[string]any{
		"id":         resp.ID,
		"rcode":      resp.RCode.String(),
		"aa":         resp.AA,
		"answers":    len(m.Answer),
		"authority":  len(m.Ns),
		"additional": len(m.Extra),
	}, "Encoded DNS response")

	return m.Pack()
}

// DecodeResponse parses a raw DNS response from a UDP packet into a DNSResponse,
// validating the response ID and extracting resource records.
func (c *udpCodec) DecodeResponse(data []byte, expectedID uint16, now time.Time) (domain.DNSResponse, error) {
	m := new(dns.Msg)
	if err := m.Unpack(data); err != nil {
		return domain.DNSResponse{}, fmt.Errorf("failed to unpack response: %w", err)
	}
	if m.Id != expectedID {
		return domain.DNSResponse{}, fmt.Errorf("ID mismatch: expected %d, got %d", expectedID, m.Id)
	}

	answers, err := fromRRs(m.Answer, now)
	if err != nil {
		return domain.DNSResponse{}, fmt.Errorf("failed to decode answer section: %w", err)
	}
	authority, err := fromRRs(m.Ns, now)
	if err != nil {
		return domain.DNSResponse{}, fmt.Errorf("failed to decode authority section: %w", err)
	}
	additional, err := fromRRs(m.Extra, now)
	if err != nil {
		return domain.DNSResponse{}, fmt.Errorf("failed to decode additional section: %w", err)
	}

	var question domain.Question
	if len(m.Question) == 1 {
		q := m.Question[0]
		question, _ = domain.NewQuestion(m.Id, q.Name, domain.RRType(q.Qtype), domain.RRClass(q.Qclass))
	}

	return domain.DNSResponse{
		ID:         m.Id,
		RCode:      domain.RCode(uint8(m.Rcode)),
		AA:         m.Authoritative,
		Question:   question,
		Answers:    answers,
		Authority:  authority,
		Additional: additional,
	}, nil
}

// toRRs converts a section of ResourceRecords into the miekg/dns RRs needed
// to pack a wire message, building each one from its presentation-format
// text (the same text a master file uses for its RDATA column).
func toRRs(records []domain.ResourceRecord) ([]dns.RR, error) {
	if len(records) == 0 {
		return nil, nil
	}
	rrs := make([]dns.RR, 0, len(records))
	for _, rr := range records {
		converted, err := toRR(rr)
		if err != nil {
			return nil, fmt.Errorf("record %s %s: %w", rr.Name, rr.Type.String(), err)
		}
		rrs = append(rrs, converted)
	}
	return rrs, nil
}

// toRR renders one ResourceRecord as a single master-file line and parses it
// with dns.NewRR, so every type this codec supports is produced by the same
// parser that reads zone files.
func toRR(rr domain.ResourceRecord) (dns.RR, error) {
	text := rr.Text
	if rr.Type == domain.RRTypeTXT {
		text = `"` + strings.ReplaceAll(text, `"`, `\"`) + `"`
	}
	line := fmt.Sprintf("%s\t%d\tIN\t%s\t%s", dns.Fqdn(rr.Name), rr.TTL(), rr.Type.String(), text)
	parsed, err := dns.NewRR(line)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rdata %q: %w", text, err)
	}
	return parsed, nil
}

// fromRRs converts a wire-decoded section of RRs back into ResourceRecords,
// reusing each RR's own presentation format for the Text field.
func fromRRs(rrs []dns.RR, now time.Time) ([]domain.ResourceRecord, error) {
	if len(rrs) == 0 {
		return nil, nil
	}
	records := make([]domain.ResourceRecord, 0, len(rrs))
	for _, rr := range rrs {
		record, err := fromRR(rr, now)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// fromRR converts a single miekg/dns RR into a cached ResourceRecord.
func fromRR(rr dns.RR, now time.Time) (domain.ResourceRecord, error) {
	hdr := rr.Header()
	record, err := domain.NewCachedResourceRecord(hdr.Name, domain.RRType(hdr.Rrtype), domain.RRClass(hdr.Class), hdr.Ttl, nil, rdataText(rr), now)
	if err != nil {
		return domain.ResourceRecord{}, fmt.Errorf("invalid resource record: %w", err)
	}
	return record, nil
}

// rdataText extracts just the RDATA column from an RR's presentation-format
// string, discarding the owner/ttl/class/type prefix miekg/dns includes.
func rdataText(rr dns.RR) string {
	parts := strings.SplitN(rr.String(), "\t", 5)
	if len(parts) < 5 {
		return ""
	}
	return strings.Trim(parts[4], `"`)
}

var _ DNSCodec = &udpCodec{}
