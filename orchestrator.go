package awmkit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChannelLayout identifies a multichannel container shape the orchestrator
// knows how to decompose into pairs.
type ChannelLayout int

const (
	LayoutStereo ChannelLayout = iota
	Layout51
	Layout512
	Layout71
	Layout714
	Layout916
	LayoutAuto
)

// channelPair is one 0-indexed channel pair the orchestrator routes a
// watermark across.
type channelPair struct{ A, B int }

var layoutPairs = map[ChannelLayout][]channelPair{
	LayoutStereo: {{0, 1}},
	Layout51:     {{0, 1}, {4, 5}, {2, 3}}, // FL/FR, BL/BR, FC/LFE
	Layout512:    {{0, 1}, {4, 5}, {2, 3}, {6, 7}},
	Layout71:     {{0, 1}, {4, 5}, {2, 3}, {6, 7}},
	Layout714:    {{0, 1}, {4, 5}, {2, 3}, {6, 7}, {8, 9}, {10, 11}},
	Layout916:    {{0, 1}, {4, 5}, {2, 3}, {6, 7}, {8, 9}, {10, 11}, {12, 13}, {14, 15}},
}

// Pairs returns the channel-pair routing table for layout. LayoutAuto has
// no static table; callers must resolve it from container metadata first.
func (l ChannelLayout) Pairs() ([]channelPair, error) {
	pairs, ok := layoutPairs[l]
	if !ok {
		return nil, fmt.Errorf("layout %v has no static pair table", l)
	}
	return pairs, nil
}

// EmbedOptions configures one embed operation.
type EmbedOptions struct {
	InputPath  string
	OutputPath string
	Layout     ChannelLayout
	Tag        string
	Version    int
	Slot       int
	Strength   int // clamped to [1,30]; 0 uses the handle's strength (default 10)
}

// EmbedResult is the orchestrator's outcome for one embed call.
type EmbedResult struct {
	Message    [MessageLength]byte
	EvidenceID int64
}

// DetectOptions configures one detect operation.
type DetectOptions struct {
	InputPath string
	Layout    ChannelLayout
}

// pairDetectResult is one pair's raw detector output.
type pairDetectResult struct {
	PairIndex   int
	Found       bool
	RawMessage  [MessageLength]byte
	BitErrors   int
	DetectScore float64
}

// DetectResult is the orchestrator's outcome for one detect call.
type DetectResult struct {
	Message  Message
	Best     pairDetectResult
	CloneHit []CloneResult
}

// Orchestrator drives one embed/detect at a time against an external
// watermark binary, reporting progress on its own bus. The handle is a
// reference-counted object meant to sit across an FFI boundary; Retain/
// Release implement that protocol even though this tree has no FFI layer
// of its own.
type Orchestrator struct {
	ID uuid.UUID

	mu       sync.Mutex
	refs     int
	strength int
	execPath string

	keys     *KeyStore
	evidence EvidenceStore
	clones   *CloneChecker
	bus      *ProgressBus
	runner   externalRunner
	log      Logger
}

// NewOrchestrator creates a handle with an initial refcount of 1.
func NewOrchestrator(execPath string, keys *KeyStore, evidence EvidenceStore, clones *CloneChecker) *Orchestrator {
	return &Orchestrator{
		ID:       uuid.New(),
		refs:     1,
		strength: 10,
		execPath: execPath,
		keys:     keys,
		evidence: evidence,
		clones:   clones,
		bus:      NewProgressBus(),
		runner:   processRunner{execPath: execPath},
		log:      defaultLogger,
	}
}

// WithLogger attaches a structured logger the orchestrator uses for the
// start, failure and completion of each embed/detect. Passing nil restores
// the package default.
func (o *Orchestrator) WithLogger(l Logger) *Orchestrator {
	o.mu.Lock()
	o.log = orDefault(l)
	o.mu.Unlock()
	return o
}

// Retain increments the handle's reference count.
func (o *Orchestrator) Retain() {
	o.mu.Lock()
	o.refs++
	o.mu.Unlock()
}

// Release decrements the reference count, returning true once it reaches
// zero (the caller should drop the handle).
func (o *Orchestrator) Release() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refs--
	return o.refs <= 0
}

// SetStrength sets the watermark strength parameter, clamped to [1,30].
func (o *Orchestrator) SetStrength(s int) {
	if s < 1 {
		s = 1
	}
	if s > 30 {
		s = 30
	}
	o.mu.Lock()
	o.strength = s
	o.mu.Unlock()
}

// Progress returns the handle's progress bus.
func (o *Orchestrator) Progress() *ProgressBus { return o.bus }

// Embed runs PrepareInput→Precheck→Core→RouteStep×→Merge→Evidence→Finalize.
// For multichannel layouts the runner is invoked once per pair of the
// layout's table, each time with the same input path, output path and
// message. The runner is given no pair index or channel numbers, so no
// channel splitting or merging is done here.
func (o *Orchestrator) Embed(ctx context.Context, opts EmbedOptions) (EmbedResult, error) {
	pairs, err := opts.Layout.Pairs()
	if err != nil {
		return EmbedResult{}, newErr(CodeAdmUnsupported, err)
	}

	opID := o.bus.Begin(OperationEmbed, PhasePrepareInput, true, int64(len(pairs)))
	o.log.Info("embed started", "op_id", opID, "handle", o.ID, "layout", opts.Layout, "pairs", len(pairs))
	fail := func(code Code, err error) (EmbedResult, error) {
		o.bus.Finish(opID, false, err.Error())
		o.log.Warn("embed failed", "op_id", opID, "code", code, "err", err)
		return EmbedResult{}, newErr(code, err)
	}

	o.bus.Advance(opID, PhasePrecheck, 0, 0, len(pairs), "checking binary")
	if !o.runner.Available() {
		return fail(CodeAudiowmarkNotFound, fmt.Errorf("external watermark binary not found"))
	}

	key, err := o.keys.Load()
	if err != nil {
		return fail(CodeInvalidOutputFormat, err)
	}
	strength := o.currentStrength()
	if opts.Strength != 0 {
		strength = min(max(opts.Strength, 1), 30)
	}

	msg, err := Encode(EncodeOptions{Version: opts.Version, Tag: opts.Tag, Key: key, Slot: opts.Slot})
	if err != nil {
		return fail(CodeInvalidTag, err)
	}

	o.bus.Advance(opID, PhaseCore, 0, 0, len(pairs), "encoding complete")
	for i := range pairs {
		o.bus.Advance(opID, PhaseRouteStep, int64(i), i, len(pairs), fmt.Sprintf("pair %d/%d", i+1, len(pairs)))
		if err := o.runner.Embed(ctx, opts.InputPath, opts.OutputPath, key, strength, msg); err != nil {
			return fail(CodeAudiowmarkExec, err)
		}
	}

	o.bus.Advance(opID, PhaseMerge, int64(len(pairs)), len(pairs), len(pairs), "merging pairs")
	o.bus.Advance(opID, PhaseEvidence, int64(len(pairs)), len(pairs), len(pairs), "recording evidence")

	var rawMsg [MessageLength]byte
	copy(rawMsg[:], msg)
	id, err := o.evidence.Insert(EvidenceRecord{
		FilePath:   opts.OutputPath,
		RawMessage: rawMsg,
		Identity:   identityOrEmpty(opts.Tag),
		KeySlot:    opts.Slot,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fail(CodeInvalidOutputFormat, fmt.Errorf("record evidence: %w", err))
	}
	o.keys.RecordEvidence(opts.Slot, time.Now().UTC())

	o.bus.Finish(opID, true, "embed complete")
	o.log.Info("embed complete", "op_id", opID, "handle", o.ID, "evidence_id", id)
	return EmbedResult{Message: rawMsg, EvidenceID: id}, nil
}

// Detect runs PrepareInput→Precheck→Core→RouteStep×→Merge→CloneCheck→
// Finalize, aggregating per-pair detector output to a single best result.
// As in Embed, each pair's detector call receives the whole input path and
// no channel selection; each result is tagged with its pair's position.
func (o *Orchestrator) Detect(ctx context.Context, opts DetectOptions) (DetectResult, error) {
	pairs, err := opts.Layout.Pairs()
	if err != nil {
		return DetectResult{}, newErr(CodeAdmUnsupported, err)
	}

	opID := o.bus.Begin(OperationDetect, PhasePrepareInput, true, int64(len(pairs)))
	o.log.Info("detect started", "op_id", opID, "handle", o.ID, "layout", opts.Layout, "pairs", len(pairs))
	fail := func(code Code, err error) (DetectResult, error) {
		o.bus.Finish(opID, false, err.Error())
		o.log.Warn("detect failed", "op_id", opID, "code", code, "err", err)
		return DetectResult{}, newErr(code, err)
	}

	o.bus.Advance(opID, PhasePrecheck, 0, 0, len(pairs), "checking binary")
	if !o.runner.Available() {
		return fail(CodeAudiowmarkNotFound, fmt.Errorf("external watermark binary not found"))
	}

	key, err := o.keys.Load()
	if err != nil {
		return fail(CodeInvalidOutputFormat, err)
	}

	o.bus.Advance(opID, PhaseCore, 0, 0, len(pairs), "running detector")
	results := make([]pairDetectResult, 0, len(pairs))
	for i := range pairs {
		o.bus.Advance(opID, PhaseRouteStep, int64(i), i, len(pairs), fmt.Sprintf("pair %d/%d", i+1, len(pairs)))
		res, err := o.runner.Detect(ctx, opts.InputPath, key)
		if err != nil {
			return fail(CodeAudiowmarkExec, err)
		}
		res.PairIndex = i
		results = append(results, res)
	}

	o.bus.Advance(opID, PhaseMerge, int64(len(pairs)), len(pairs), len(pairs), "selecting best pair")
	ranked := rankPairs(results)
	if len(ranked) == 0 {
		return fail(CodeNoWatermarkFound, fmt.Errorf("no pair yielded a watermark"))
	}

	// A pair reporting found=true can still fail to decode (most often a
	// bad HMAC, occasionally a corrupted tag). Per spec.md §7 that is not
	// fatal on its own: try every candidate in rank order and take the
	// first that verifies.
	var best pairDetectResult
	var rec Message
	var lastErr error
	verified := false
	for _, cand := range ranked {
		var decErr error
		rec, decErr = Decode(cand.RawMessage[:], key)
		if decErr == nil {
			best, verified = cand, true
			break
		}
		lastErr = decErr
	}
	if !verified {
		code, ok := CodeOf(lastErr)
		if !ok || code == CodeHmacMismatch {
			return fail(CodeNoWatermarkFound, fmt.Errorf("no pair verified: %w", lastErr))
		}
		return fail(code, lastErr)
	}

	o.bus.Advance(opID, PhaseCloneCheck, int64(len(pairs)), len(pairs), len(pairs), "clone check")
	var cloneHits []CloneResult
	if o.clones != nil {
		cloneHits, _ = o.clones.Check(opts.InputPath, rec.Identity, rec.KeySlot)
		if o.evidence != nil && hasPositiveCloneHit(cloneHits) {
			if _, err := o.evidence.Insert(EvidenceRecord{
				FilePath:   opts.InputPath,
				RawMessage: best.RawMessage,
				Identity:   rec.Identity,
				KeySlot:    rec.KeySlot,
				CreatedAt:  time.Now().UTC(),
			}); err != nil {
				o.log.Warn("record clone-check evidence", "op_id", opID, "err", err)
			}
		}
	}

	o.bus.Finish(opID, true, "detect complete")
	o.log.Info("detect complete", "op_id", opID, "handle", o.ID, "identity", rec.Identity, "bit_errors", best.BitErrors)
	return DetectResult{Message: rec, Best: best, CloneHit: cloneHits}, nil
}

func (o *Orchestrator) currentStrength() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.strength
}

// rankPairs returns the found=true results ordered best-first: minimum
// bit_errors; ties broken by highest detect_score; remaining ties by
// lowest pair index. Callers attempt Decode down this list since a
// detector "found" does not guarantee the message authenticates.
func rankPairs(results []pairDetectResult) []pairDetectResult {
	ranked := make([]pairDetectResult, 0, len(results))
	for _, r := range results {
		if r.Found {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.BitErrors != b.BitErrors {
			return a.BitErrors < b.BitErrors
		}
		if a.DetectScore != b.DetectScore {
			return a.DetectScore > b.DetectScore
		}
		return a.PairIndex < b.PairIndex
	})
	return ranked
}

// hasPositiveCloneHit reports whether hits contains an Exact or Likely
// classification, the trigger for persisting a clone-check evidence row.
func hasPositiveCloneHit(hits []CloneResult) bool {
	for _, h := range hits {
		if h.Class == CloneExact || h.Class == CloneLikely {
			return true
		}
	}
	return false
}
