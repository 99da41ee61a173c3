// Package resolver: this file holds the authoritative-zone half of query
// dispatch. The factoring mirrors alias.go - small private helpers per
// concern on an unexported responder type - since both files solve the same
// kind of problem: walk a bit of DNS structure (a CNAME chain here, a zone
// hierarchy there) and decide what belongs in which response section.
package resolver

import (
	"github.com/haukened/rr-dns/internal/dns/common/utils"
	"github.com/haukened/rr-dns/internal/dns/domain"
)

// authoritativeResponder answers a question directly from served zone data,
// without touching the blocklist, upstream cache, or upstream resolver. It
// is consulted before any of those, per the zone-authority-first dispatch
// order already documented on Resolver.HandleQuery.
type authoritativeResponder struct {
	zone ZoneCache
}

// newAuthoritativeResponder constructs an authoritativeResponder bound to
// the given zone cache.
func newAuthoritativeResponder(zone ZoneCache) *authoritativeResponder {
	return &authoritativeResponder{zone: zone}
}

// resolve answers query against served zone data. The second return value
// reports whether query.Name falls under any served zone at all; when
// false, the caller should fall through to the blocklist/upstream path
// exactly as if no authoritative responder existed.
func (a *authoritativeResponder) resolve(query domain.Question) (domain.DNSResponse, bool) {
	zoneRoot, ok := a.matchZone(query.Name)
	if !ok {
		return domain.DNSResponse{}, false
	}

	if ns, cut, found := a.findDelegation(query.Name, zoneRoot); found {
		resp := a.referral(query, ns, zoneRoot, cut)
		return resp, true
	}

	if records, found := a.zone.FindRecords(query); found {
		if query.Type == domain.RRTypeNS {
			return a.answerNS(query, records, zoneRoot), true
		}
		return a.answer(query, records, zoneRoot), true
	}

	if cname, found := a.findCNAME(query); found {
		return a.answer(query, cname, zoneRoot), true
	}

	return a.nxdomain(query, zoneRoot), true
}

// matchZone returns the longest served zone root that query name falls
// under, mirroring the longest-match policy zonecache.FindRecords already
// applies internally for record lookups.
func (a *authoritativeResponder) matchZone(name string) (string, bool) {
	var best string
	for _, root := range a.zone.Zones() {
		if !utils.IsInZone(name, root) {
			continue
		}
		if len(root) > len(best) {
			best = root
		}
	}
	return best, best != ""
}

// findDelegation walks from name up to (but excluding) zoneRoot looking for
// an NS RRset at or above name. A hit means name sits below a delegated
// subdomain the server is not authoritative for, and the response must be a
// referral rather than an answer - even if name itself exactly matches the
// query's owner and type, per the NS answer-vs-authority placement rule:
// NS records held at the zone apex are answered directly, NS records held
// at any other owner are a delegation cut and belong in the authority
// section with glue.
func (a *authoritativeResponder) findDelegation(name, zoneRoot string) ([]domain.ResourceRecord, string, bool) {
	name = utils.CanonicalDNSName(name)
	zoneRoot = utils.CanonicalDNSName(zoneRoot)

	for cur := name; cur != zoneRoot; cur = utils.ParentZone(cur) {
		if cur == "." {
			break
		}
		nsQ, err := domain.NewQuestion(0, cur, domain.RRTypeNS, domain.RRClassIN)
		if err != nil {
			continue
		}
		if records, found := a.zone.FindRecords(nsQ); found {
			return records, cur, true
		}
	}
	return nil, "", false
}

// findCNAME looks up a CNAME RRset at query.Name when the exact requested
// type wasn't found, so an A (or MX, TXT, ...) query for an aliased owner
// still resolves instead of falling straight to NXDOMAIN. The caller's
// AliasResolver expands the chain from here.
func (a *authoritativeResponder) findCNAME(query domain.Question) ([]domain.ResourceRecord, bool) {
	if query.Type == domain.RRTypeCNAME || query.Type == domain.RRTypeNS {
		return nil, false
	}
	cnameQ, err := domain.NewQuestion(query.ID, query.Name, domain.RRTypeCNAME, query.Class)
	if err != nil {
		return nil, false
	}
	return a.zone.FindRecords(cnameQ)
}

// answer builds a NOERROR response for records found directly in the zone.
// A bare A RRset carries no authority section; every other type (CNAME
// lookups - direct or via findCNAME - MX, TXT) attaches the zone's SOA as
// authority, matching how a CNAME/MX/TXT answer commits the server's claim
// of authority while a plain A answer does not. NS answers are built by
// answerNS instead, which attaches glue rather than the SOA.
func (a *authoritativeResponder) answer(query domain.Question, records []domain.ResourceRecord, zoneRoot string) domain.DNSResponse {
	resp := domain.DNSResponse{
		ID:       query.ID,
		RCode:    domain.NOERROR,
		Question: query,
		Answers:  records,
	}
	if query.Type != domain.RRTypeA || (len(records) > 0 && records[0].Type == domain.RRTypeCNAME) {
		resp.Authority = a.soaRecords(zoneRoot)
	}
	resp.AA = allAnswersInZone(resp.Answers, zoneRoot)
	return resp
}

// answerNS builds a NOERROR response for an NS query answered at the zone
// apex: the NS RRset goes in the answer section (not authority, since this
// server is answering for itself rather than delegating), with glue for any
// NS target it also holds an A record for - the same placement+glue rule
// applied at a delegation cut, without the SOA authority attachment that
// non-NS answers carry.
func (a *authoritativeResponder) answerNS(query domain.Question, records []domain.ResourceRecord, zoneRoot string) domain.DNSResponse {
	resp := domain.DNSResponse{
		ID:         query.ID,
		RCode:      domain.NOERROR,
		Question:   query,
		Answers:    records,
		Additional: a.assembleGlue(zoneRoot, records),
	}
	resp.AA = allAnswersInZone(resp.Answers, zoneRoot)
	return resp
}

// referral builds a delegation response: the NS RRset found at cut goes in
// the authority section, with glue addresses for any NS target this server
// also holds an A record for in additional.
func (a *authoritativeResponder) referral(query domain.Question, ns []domain.ResourceRecord, zoneRoot, cut string) domain.DNSResponse {
	return domain.DNSResponse{
		ID:         query.ID,
		RCode:      domain.NOERROR,
		AA:         true,
		Question:   query,
		Authority:  ns,
		Additional: a.assembleGlue(zoneRoot, ns),
	}
}

// nxdomain builds a response recording the zone's own SOA as authority, the
// conventional way an authoritative server backs up a negative answer.
func (a *authoritativeResponder) nxdomain(query domain.Question, zoneRoot string) domain.DNSResponse {
	return domain.DNSResponse{
		ID:        query.ID,
		RCode:     domain.NXDOMAIN,
		AA:        true,
		Question:  query,
		Authority: a.soaRecords(zoneRoot),
	}
}

// soaRecords fetches the SOA RRset for a zone root for inclusion as
// authority data.
func (a *authoritativeResponder) soaRecords(zoneRoot string) []domain.ResourceRecord {
	soaQ, err := domain.NewQuestion(0, zoneRoot, domain.RRTypeSOA, domain.RRClassIN)
	if err != nil {
		return nil
	}
	records, _ := a.zone.FindRecords(soaQ)
	return records
}

// assembleGlue looks up an A RRset for each NS target named in ns, within
// the same zone, to save the client a second round trip to resolve the
// delegated nameserver's address. Targets this server has no local A
// record for are silently skipped - a recursive resolver will have to chase
// those itself.
func (a *authoritativeResponder) assembleGlue(zoneRoot string, ns []domain.ResourceRecord) []domain.ResourceRecord {
	var glue []domain.ResourceRecord
	for _, rec := range ns {
		target := rec.Text
		if target == "" || !utils.IsInZone(target, zoneRoot) {
			continue
		}
		aQ, err := domain.NewQuestion(0, target, domain.RRTypeA, domain.RRClassIN)
		if err != nil {
			continue
		}
		if records, found := a.zone.FindRecords(aQ); found {
			glue = append(glue, records...)
		}
	}
	return glue
}

// firstZoneRoot is a convenience wrapper around matchZone for Resolver's
// post-chase AA recomputation, where the zoneRoot resolve already matched on
// has gone out of scope by the time the chased answer chain comes back.
func (a *authoritativeResponder) firstZoneRoot(name string) string {
	root, _ := a.matchZone(name)
	return root
}

// allAnswersInZone reports whether every record's owner name falls under
// zoneRoot. Set AA=1 iff every answer RR's owner is in-zone, otherwise
// AA=0 - this holds vacuously true for an empty answer section, which is
// why NXDOMAIN and referral responses built above don't need a separate AA
// computation of their own.
func allAnswersInZone(answers []domain.ResourceRecord, zoneRoot string) bool {
	for _, rr := range answers {
		if !utils.IsInZone(rr.Name, zoneRoot) {
			return false
		}
	}
	return true
}
