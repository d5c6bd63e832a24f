package awmkit

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CloneClass is the classification clone-check assigns a detection against
// prior evidence.
type CloneClass int

const (
	CloneUnavailable CloneClass = iota
	CloneSuspect
	CloneLikely
	CloneExact
)

func (c CloneClass) String() string {
	switch c {
	case CloneExact:
		return "exact"
	case CloneLikely:
		return "likely"
	case CloneSuspect:
		return "suspect"
	default:
		return "unavailable"
	}
}

// CloneThresholds are the configuration constants driving classification.
// Callers of clone-check never see these directly.
type CloneThresholds struct {
	ExactScore  float64 // score <= ExactScore with enough match time is Exact
	LikelyScore float64 // ExactScore < score <= LikelyScore with enough match time is Likely
	SuspectScore float64 // any other score <= SuspectScore (including a short match) is Suspect
	MinMatchSeconds float64 // match time Exact and Likely require
}

// DefaultCloneThresholds are reasonable defaults for runtime tunability,
// provided as compile-time constants overridable by the caller at
// construction.
var DefaultCloneThresholds = CloneThresholds{
	ExactScore:      0.02,
	LikelyScore:     0.12,
	SuspectScore:    0.35,
	MinMatchSeconds: 8.0,
}

// FingerprintMatch is one candidate's result against the fingerprint
// service.
type FingerprintMatch struct {
	EvidenceID   int64
	Score        float64
	MatchSeconds float64
}

// FingerprintService is the out-of-scope acoustic fingerprint collaborator
//. Disabled implementations or those with no data should return
// ErrFingerprintUnavailable.
type FingerprintService interface {
	Compare(candidatePath string, fingerprint []byte) (FingerprintMatch, error)
}

var ErrFingerprintUnavailable = fmt.Errorf("fingerprint service unavailable")

// CloneResult is what CloneChecker.Check returns for one candidate.
type CloneResult struct {
	EvidenceID int64
	Class      CloneClass
	Score      float64
	Reason     string
}

// CloneChecker evaluates a fresh detection's identity/key_slot against
// prior evidence rows via a fingerprint service, caching recent
// candidate-distance lookups so repeated detects against the same evidence
// set don't re-invoke the fingerprint service.
type CloneChecker struct {
	evidence   EvidenceStore
	fingerprint FingerprintService
	thresholds CloneThresholds
	cache      *lru.Cache[string, FingerprintMatch]
}

// NewCloneChecker builds a checker with a cache sized for cacheSize recent
// (candidatePath, evidenceID) fingerprint comparisons.
func NewCloneChecker(evidence EvidenceStore, fp FingerprintService, thresholds CloneThresholds, cacheSize int) (*CloneChecker, error) {
	cache, err := lru.New[string, FingerprintMatch](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create fingerprint cache: %w", err)
	}
	return &CloneChecker{evidence: evidence, fingerprint: fp, thresholds: thresholds, cache: cache}, nil
}

func cacheKey(candidatePath string, evidenceID int64) string {
	return fmt.Sprintf("%s#%d", candidatePath, evidenceID)
}

// Check queries evidence for identity/slot matches, scores each candidate
// against candidatePath via the fingerprint service, and classifies the
// best result per candidate.
func (c *CloneChecker) Check(candidatePath, identity string, slot int) ([]CloneResult, error) {
	rows, err := c.evidence.FindByIdentitySlot(identity, slot)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	results := make([]CloneResult, 0, len(rows))
	for _, row := range rows {
		key := cacheKey(candidatePath, row.ID)
		match, ok := c.cache.Get(key)
		if !ok {
			m, err := c.fingerprint.Compare(candidatePath, row.Fingerprint)
			if err != nil {
				results = append(results, CloneResult{
					EvidenceID: row.ID,
					Class:      CloneUnavailable,
					Reason:     err.Error(),
				})
				continue
			}
			match = m
			c.cache.Add(key, match)
		}
		results = append(results, c.classify(row.ID, match))
	}
	return results, nil
}

func (c *CloneChecker) classify(evidenceID int64, m FingerprintMatch) CloneResult {
	t := c.thresholds
	switch {
	case m.Score <= t.ExactScore && m.MatchSeconds >= t.MinMatchSeconds:
		return CloneResult{EvidenceID: evidenceID, Class: CloneExact, Score: m.Score}
	case m.Score <= t.LikelyScore && m.MatchSeconds >= t.MinMatchSeconds:
		return CloneResult{EvidenceID: evidenceID, Class: CloneLikely, Score: m.Score}
	case m.Score <= t.SuspectScore:
		return CloneResult{EvidenceID: evidenceID, Class: CloneSuspect, Score: m.Score, Reason: "partial or short match"}
	default:
		return CloneResult{EvidenceID: evidenceID, Class: CloneUnavailable, Score: m.Score, Reason: "no usable match"}
	}
}
