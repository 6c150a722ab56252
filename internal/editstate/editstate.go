// Package editstate implements C9: the current EditState, a per-folder
// assetId->EditState cache, and the debounced draft/full re-render loop
// that keeps a single asset's live preview in sync with its edits
// (spec.md §4.9).
//
// Render outcomes are delivered to Subscribe() channels, guarded by a per-asset generation
// counter instead of timestamps (spec.md §8 "Guard each event against
// staleness by checking the coordinator's current assetId and an
// operation generation counter").
package editstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"photonic/internal/apperr"
	"photonic/internal/catalog"
	"photonic/internal/curve"
	"photonic/internal/kernel"
	"photonic/internal/mask"
	"photonic/internal/model"
	"photonic/internal/pipeline"
)

// draftDelay and fullDelay are the two-tier debounce windows spec.md
// §4.9 prescribes.
const (
	draftDelay = 16 * time.Millisecond
	fullDelay  = 300 * time.Millisecond
)

// SourceLoader resolves an asset to the bytes pipeline.Request.Decode
// needs, via the folder-handle/permission layer.
type SourceLoader func(ctx context.Context, assetID string) (kernel.DecodeRequest, error)

// RenderOutcome is delivered to every Subscribe()r for each completed
// (or discarded) render.
type RenderOutcome struct {
	AssetID    string
	Quality    pipeline.Quality
	Result     *pipeline.Result
	Err        error
	Stale      bool // a newer mutation superseded this render before it was delivered
	Generation uint64
}

type cachedEdit struct {
	state model.EditState
	dirty bool
}

type timers struct {
	draft *time.Timer
	full  *time.Timer
}

// Coordinator owns the live EditState, the per-folder cache, and the
// debounced render loop (spec.md §4.9). Edit state and the scheduler
// queue are owned by the coordinator; workers see copies (spec.md §5).
type Coordinator struct {
	store  *catalog.Store
	runner *pipeline.Runner
	loader SourceLoader
	log    *slog.Logger

	draftEdge   int
	previewEdge int
	filter      kernel.ResampleFilter

	mu             sync.Mutex
	currentAssetID string
	current        model.EditState
	cache          map[string]*cachedEdit
	renderTimers   map[string]*timers
	generation     map[string]uint64

	subMu     sync.Mutex
	subs      map[int]chan RenderOutcome
	nextSubID int
}

// New returns a Coordinator. draftEdge/previewEdge are the short/long
// edge resize targets pipeline.Request expects for draft vs full
// renders (spec.md §4.4).
func New(store *catalog.Store, runner *pipeline.Runner, loader SourceLoader, log *slog.Logger, draftEdge, previewEdge int) *Coordinator {
	return &Coordinator{
		store:        store,
		runner:       runner,
		loader:       loader,
		log:          log,
		draftEdge:    draftEdge,
		previewEdge:  previewEdge,
		filter:       kernel.FilterLanczos3,
		cache:        make(map[string]*cachedEdit),
		renderTimers: make(map[string]*timers),
		generation:   make(map[string]uint64),
		subs:         make(map[int]chan RenderOutcome),
	}
}

// LoadForAsset fetches assetID's persisted EditState (or defaults),
// caches it, and sets it current (spec.md §4.9 "loadForAsset").
func (c *Coordinator) LoadForAsset(ctx context.Context, assetID string) (model.EditState, error) {
	c.mu.Lock()
	if ce, ok := c.cache[assetID]; ok {
		c.currentAssetID = assetID
		c.current = ce.state
		c.mu.Unlock()
		return ce.state, nil
	}
	c.mu.Unlock()

	state, err := c.store.GetEditState(assetID)
	if err != nil {
		return model.EditState{}, err
	}

	c.mu.Lock()
	c.cache[assetID] = &cachedEdit{state: state}
	c.currentAssetID = assetID
	c.current = state
	c.mu.Unlock()
	return state, nil
}

// Current returns the live asset ID and its EditState.
func (c *Coordinator) Current() (string, model.EditState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentAssetID, c.current
}

// Mutate applies fn to the current asset's EditState, marks it dirty,
// and schedules the draft/full re-render (spec.md §4.9 "set<field>").
// Every specific setter below is a thin wrapper over this.
func (c *Coordinator) Mutate(fn func(*model.EditState)) {
	c.mu.Lock()
	assetID := c.currentAssetID
	if assetID == "" {
		c.mu.Unlock()
		return
	}
	fn(&c.current)
	ce := c.cache[assetID]
	if ce == nil {
		ce = &cachedEdit{}
		c.cache[assetID] = ce
	}
	ce.state = c.current
	ce.dirty = true
	c.mu.Unlock()

	c.scheduleRender(assetID)
}

func (c *Coordinator) SetAdjustments(a kernel.Adjustments) {
	c.Mutate(func(e *model.EditState) { e.Adjustments = a })
}

func (c *Coordinator) SetToneCurve(points []curve.Point) {
	c.Mutate(func(e *model.EditState) { e.ToneCurve = append([]curve.Point(nil), points...) })
}

func (c *Coordinator) SetCrop(crop model.CropTransform) {
	c.Mutate(func(e *model.EditState) { e.Crop = crop })
}

func (c *Coordinator) SetMasks(m mask.Stack) {
	c.Mutate(func(e *model.EditState) { e.Masks = m })
}

// Reset restores the current asset's EditState to defaults entirely.
func (c *Coordinator) Reset() {
	def := model.DefaultEditState()
	c.Mutate(func(e *model.EditState) { *e = def })
}

// ResetSection restores just one section of the current EditState,
// leaving the others untouched (spec.md §4.9 "resetSection").
func (c *Coordinator) ResetSection(group model.EditGroup) {
	def := model.DefaultEditState()
	c.Mutate(func(e *model.EditState) { applyGroup(e, group, def) })
}

// Copy snapshots sourceAssetID's EditState for the requested groups
// (spec.md §4.9 "copy"), taking the coordinator's cached copy (which may
// hold unsaved edits) when the asset is loaded, else the persisted one.
func (c *Coordinator) Copy(sourceAssetID string, groups []model.EditGroup) (Snapshot, error) {
	state, err := c.loadAny(sourceAssetID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Source: state, Groups: groups}, nil
}

// Snapshot is the result of Copy, applied selectively by Paste.
type Snapshot struct {
	Source model.EditState
	Groups []model.EditGroup
}

// Paste applies snap's groups onto targetAssetID's EditState, without
// clearing groups not in the set (spec.md §4.9 "paste"). If
// targetAssetID is not the currently loaded asset, it is loaded first.
func (c *Coordinator) Paste(ctx context.Context, targetAssetID string, snap Snapshot) error {
	if _, err := c.LoadForAsset(ctx, targetAssetID); err != nil {
		return err
	}
	for _, g := range snap.Groups {
		g := g
		c.Mutate(func(e *model.EditState) { applyGroup(e, g, snap.Source) })
	}
	return nil
}

// loadAny fetches an EditState without disturbing currentAssetId,
// preferring the cache.
func (c *Coordinator) loadAny(assetID string) (model.EditState, error) {
	c.mu.Lock()
	if ce, ok := c.cache[assetID]; ok {
		defer c.mu.Unlock()
		return ce.state, nil
	}
	c.mu.Unlock()
	return c.store.GetEditState(assetID)
}

// applyGroup copies one section's fields from src onto dst.
func applyGroup(dst *model.EditState, group model.EditGroup, src model.EditState) {
	switch group {
	case model.GroupBasic:
		dst.Adjustments = src.Adjustments
	case model.GroupCurve:
		dst.ToneCurve = append([]curve.Point(nil), src.ToneCurve...)
	case model.GroupCrop:
		dst.Crop = src.Crop
	case model.GroupMasks:
		dst.Masks = src.Masks
	}
}

// Save persists the current asset's EditState, invalidates its cache
// metadata, and returns the assetId so the caller can instruct the
// scheduler to regenerate a thumbnail in the background (spec.md §4.9
// "save" — the scheduler handoff itself is the caller's job, since this
// package does not import internal/scheduler to avoid a cycle with
// whatever wires both together at cmd/photonic).
func (c *Coordinator) Save() (string, error) {
	c.mu.Lock()
	assetID := c.currentAssetID
	state := c.current
	c.mu.Unlock()
	if assetID == "" {
		return "", apperr.ErrNotFound
	}
	if err := c.store.SaveEditState(assetID, state); err != nil {
		return "", err
	}
	c.mu.Lock()
	if ce, ok := c.cache[assetID]; ok {
		ce.dirty = false
	}
	c.mu.Unlock()
	return assetID, nil
}

// Clear discards all cached edits, the current asset, and pending
// renders — called on folder change (spec.md §4.9 "clear", §5 "Folder
// change cleanup").
func (c *Coordinator) Clear() {
	c.mu.Lock()
	for _, t := range c.renderTimers {
		stopTimers(t)
	}
	c.renderTimers = make(map[string]*timers)
	c.cache = make(map[string]*cachedEdit)
	c.generation = make(map[string]uint64)
	c.currentAssetID = ""
	c.current = model.DefaultEditState()
	c.mu.Unlock()
}

func stopTimers(t *timers) {
	if t.draft != nil {
		t.draft.Stop()
	}
	if t.full != nil {
		t.full.Stop()
	}
}

// scheduleRender arms the two-tier debounce: a draft render fires after
// draftDelay if one isn't already pending (throttle), and any pending
// full render is cancelled and rearmed at fullDelay (debounce) — "a new
// mutation cancels any full render" (spec.md §4.9).
func (c *Coordinator) scheduleRender(assetID string) {
	c.mu.Lock()
	c.generation[assetID]++
	gen := c.generation[assetID]
	t, ok := c.renderTimers[assetID]
	if !ok {
		t = &timers{}
		c.renderTimers[assetID] = t
	}
	if t.draft == nil {
		t.draft = time.AfterFunc(draftDelay, func() {
			c.mu.Lock()
			if tt, ok := c.renderTimers[assetID]; ok {
				tt.draft = nil
			}
			c.mu.Unlock()
			c.runRender(assetID, pipeline.QualityDraft, gen)
		})
	}
	if t.full != nil {
		t.full.Stop()
	}
	t.full = time.AfterFunc(fullDelay, func() { c.runRender(assetID, pipeline.QualityFull, gen) })
	c.mu.Unlock()
}

// runRender executes one render for assetID at quality and delivers the
// outcome, discarding it as Stale if a newer mutation has since been
// scheduled (spec.md §5 "stale results are dropped").
func (c *Coordinator) runRender(assetID string, quality pipeline.Quality, gen uint64) {
	c.mu.Lock()
	ce, ok := c.cache[assetID]
	c.mu.Unlock()
	if !ok {
		return
	}
	state := ce.state

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	decodeReq, err := c.loader(ctx, assetID)
	if err != nil {
		c.deliver(RenderOutcome{AssetID: assetID, Quality: quality, Err: err, Generation: gen})
		return
	}

	req := pipeline.Request{
		AssetID:     assetID,
		Quality:     quality,
		DraftEdge:   c.draftEdge,
		PreviewEdge: c.previewEdge,
		Decode:      decodeReq,
		Rotation:    state.Crop.Rotation.Angle + state.Crop.Rotation.Straighten,
		Crop:        state.Crop.Crop,
		Adjustments: state.Adjustments,
		Curve:       state.ToneCurve,
		Masks:       state.Masks,
		Filter:      c.filter,
	}

	result, err := c.runner.Render(ctx, req)

	c.mu.Lock()
	stale := c.generation[assetID] != gen
	c.mu.Unlock()

	c.deliver(RenderOutcome{AssetID: assetID, Quality: quality, Result: result, Err: err, Stale: stale, Generation: gen})
}

// Subscribe returns a channel of RenderOutcome plus an unsubscribe
// function.
func (c *Coordinator) Subscribe() (<-chan RenderOutcome, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	ch := make(chan RenderOutcome, 8)
	c.subs[id] = ch
	unsub := func() {
		c.subMu.Lock()
		if ch, ok := c.subs[id]; ok {
			close(ch)
			delete(c.subs, id)
		}
		c.subMu.Unlock()
	}
	return ch, unsub
}

func (c *Coordinator) deliver(out RenderOutcome) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subs {
		select {
		case ch <- out:
		default:
			c.log.Warn("render outcome channel full", "subscriber", id, "asset", out.AssetID)
		}
	}
}
