package blocklist

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	logpkg "github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/repos/blocklist/bloom"
	"github.com/haukened/rr-dns/internal/dns/repos/blocklist/bolt"
	"github.com/haukened/rr-dns/internal/dns/repos/blocklist/lru"
	"github.com/haukened/rr-dns/internal/dns/repos/blocklist/parsers"
	"github.com/haukened/rr-dns/internal/dns/services/resolver"
)

// defaultFalsePositiveRate is the Bloom filter's target false-positive rate.
// There's no knob for this in BlocklistConfig; 1% matches what repo_bench_test.go
// exercises as a realistic working value.
const defaultFalsePositiveRate = 0.01

// adapter makes a Repository satisfy resolver.Blocklist by translating its
// name/decision API into the single boolean HandleQuery's dispatch check
// needs.
type adapter struct {
	repo Repository
}

func (a *adapter) IsBlocked(q domain.Question) bool {
	// Decide canonicalizes its argument itself, so q.Name is passed through
	// as-is regardless of trailing-dot form.
	return a.repo.Decide(q.Name).Blocked
}

var _ resolver.Blocklist = (*adapter)(nil)

// NewFromDirectory builds a cache→bloom→store-backed Blocklist seeded from
// every regular file in dir, persisting to the bbolt database at dbPath. A
// cacheSize of 0 disables the decision cache (every lookup falls through to
// bloom+store). If dir does not exist or contains no rules, the returned
// Blocklist simply never blocks anything - it is not an error to run without
// a configured blocklist.
func NewFromDirectory(dbPath, dir string, cacheSize int, logger logpkg.Logger) (resolver.Blocklist, error) {
	store, err := bolt.New(dbPath)
	if err != nil {
		return nil, err
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	factory := bloom.NewFactory()
	repo := NewRepository(store, cache, factory, defaultFalsePositiveRate)

	rules, err := loadRulesFromDir(dir, logger)
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		if err := repo.UpdateAll(rules, 1, time.Now().Unix()); err != nil {
			return nil, err
		}
	}

	return &adapter{repo: repo}, nil
}

// loadRulesFromDir parses every regular file directly inside dir into block
// rules. A file named "hosts" (or ending in .hosts) is read as /etc/hosts
// syntax; everything else is read as a plain newline-delimited domain list.
// A missing directory is not an error - it just means no rules are seeded.
func loadRulesFromDir(dir string, logger logpkg.Logger) ([]domain.BlockRule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	now := time.Now()
	var rules []domain.BlockRule
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}

		var parsed []domain.BlockRule
		if entry.Name() == "hosts" || strings.HasSuffix(entry.Name(), ".hosts") {
			parsed, err = parsers.ParseHostsFile(f, path, logger, now)
		} else {
			parsed, err = parsers.ParsePlainList(f, path, logger, now)
		}
		closeErr := f.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}
		rules = append(rules, parsed...)
	}
	return rules, nil
}
