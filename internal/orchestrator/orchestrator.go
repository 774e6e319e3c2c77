package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/forgebench/infersupervisor/internal/apierrors"
	"github.com/forgebench/infersupervisor/internal/applog"
	"github.com/forgebench/infersupervisor/internal/healthprobe"
	"github.com/forgebench/infersupervisor/internal/supervisor"
	"github.com/forgebench/infersupervisor/internal/systeminfo"
)

// LayerCounter looks up a model's GGUF layer count, falling back to a
// caller-supplied default when unknown (§9: "prefer per-model layer count
// from the GGUF metadata collaborator when available"). modelcatalog.Catalog
// satisfies this.
type LayerCounter interface {
	LayerCount(modelID string, fallback int) int
}

// noCatalog is the zero-value LayerCounter: always falls back.
type noCatalog struct{}

func (noCatalog) LayerCount(modelID string, fallback int) int { return fallback }

// Orchestrator is the ResourceOrchestrator of §4.6. It holds non-owning
// references to both supervisors and a SystemInfo collaborator (§9:
// "Orchestrator holds weak references... supervisors do not reference the
// orchestrator").
type Orchestrator struct {
	llama      *supervisor.Supervisor
	diffusion  *supervisor.DiffusionSupervisor
	models     supervisor.ModelResolver
	system     systeminfo.Provider
	catalog    LayerCounter
	tunables   Tunables
	prober     *healthprobe.Prober

	mu               sync.Mutex
	busy             bool
	saved            *SavedLLMState
	lastOffloadCheck bool
}

// New constructs an Orchestrator. catalog may be nil, in which case layer
// counts always fall back to tunables.TotalLayers.
func New(llama *supervisor.Supervisor, diffusion *supervisor.DiffusionSupervisor, models supervisor.ModelResolver, system systeminfo.Provider, catalog LayerCounter, tunables Tunables) *Orchestrator {
	if catalog == nil {
		catalog = noCatalog{}
	}
	return &Orchestrator{
		llama:     llama,
		diffusion: diffusion,
		models:    models,
		system:    system,
		catalog:   catalog,
		tunables:  tunables.withDefaults(),
		prober:    healthprobe.New(),
	}
}

// estimateLLM returns the LLM's current footprint, {0,0} when it is not
// running or its config/model size cannot be resolved (§4.6: "on any error
// resolving model info: conservative {0,0}").
func (o *Orchestrator) estimateLLM(ctx context.Context) Footprint {
	if !o.llama.IsRunning() {
		return Footprint{}
	}
	cfg := o.llama.GetConfig()
	if cfg == nil {
		return Footprint{}
	}

	_, sizeBytes, err := o.models.Resolve(ctx, cfg.ModelID)
	if err != nil {
		return Footprint{}
	}

	totalLayers := o.catalog.LayerCount(cfg.ModelID, o.tunables.TotalLayers)
	if totalLayers <= 0 {
		totalLayers = o.tunables.TotalLayers
	}

	gpuLayers := 0
	if cfg.GPULayers != nil {
		gpuLayers = *cfg.GPULayers
	}

	gpuRatio := 0.0
	if gpuLayers > 0 {
		gpuRatio = float64(gpuLayers) / float64(totalLayers)
		if gpuRatio > 1.0 {
			gpuRatio = 1.0
		}
	}

	size := float64(sizeBytes)
	return Footprint{
		VRAMBytes: int64(size * gpuRatio * o.tunables.Multiplier),
		RAMBytes:  int64(size * (1 - gpuRatio) * o.tunables.Multiplier),
	}
}

// estimateDiffusion returns the diffusion supervisor's footprint. Unlike
// the LLM, diffusion is assumed fully resident in both RAM and VRAM (no
// partial offload concept) — §4.6.
func (o *Orchestrator) estimateDiffusion(ctx context.Context) Footprint {
	var sizeBytes int64

	cfg := o.diffusion.GetConfig()
	if cfg == nil {
		sizeBytes = o.tunables.DefaultDiffusionModelSize
	} else if _, s, err := o.models.Resolve(ctx, cfg.ModelID); err == nil {
		sizeBytes = s
	} else {
		sizeBytes = o.tunables.DefaultDiffusionModelSize
	}

	v := int64(float64(sizeBytes) * o.tunables.Multiplier)
	return Footprint{RAMBytes: v, VRAMBytes: v}
}

// needsOffload implements §4.6's eviction predicate.
func (o *Orchestrator) needsOffload(ctx context.Context) bool {
	llm := o.estimateLLM(ctx)
	diff := o.estimateDiffusion(ctx)

	snap, err := o.system.Snapshot()
	if err != nil {
		// Without a resource reading there is nothing safe to compare
		// against; don't evict on a guess.
		return false
	}

	if snap.GPU.Available && snap.GPU.VRAMBytes > 0 {
		return float64(llm.VRAMBytes+diff.VRAMBytes) > o.tunables.Headroom*float64(snap.GPU.VRAMBytes)
	}
	return float64(llm.RAMBytes+diff.RAMBytes) > o.tunables.Headroom*float64(snap.Memory.AvailableBytes)
}

// WouldNeedOffload is needsOffload's public, side-effect-free form; safe to
// call regardless of either supervisor's running state (§4.6 diagnostics). A
// UI is expected to poll this tightly, so the recomputation itself (two
// footprint estimates plus a Snapshot call) is rate-limited; a call that
// arrives faster than the limiter allows gets the last computed answer
// instead of triggering fresh work.
func (o *Orchestrator) WouldNeedOffload(ctx context.Context) bool {
	if !o.prober.Allow() {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.lastOffloadCheck
	}

	result := o.needsOffload(ctx)
	o.mu.Lock()
	o.lastOffloadCheck = result
	o.mu.Unlock()
	return result
}

// GetSavedState returns the pending eviction snapshot, if any.
func (o *Orchestrator) GetSavedState() *SavedLLMState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.saved == nil {
		return nil
	}
	cp := *o.saved
	return &cp
}

// ClearSavedState discards a pending eviction snapshot; a no-op when none
// is pending (§8 I8).
func (o *Orchestrator) ClearSavedState() {
	o.mu.Lock()
	o.saved = nil
	o.mu.Unlock()
}

// OrchestrateImageGeneration implements §4.6's orchestrate(config). It
// evicts the LLM only when necessary, always attempts to restore it
// afterward, and never recurses back into itself (the diffusion call below
// is Execute, the raw path, not another orchestrate).
func (o *Orchestrator) OrchestrateImageGeneration(ctx context.Context, cfg supervisor.ImageGenerationConfig) (supervisor.ImageGenerationResult, error) {
	if err := o.acquire(); err != nil {
		return supervisor.ImageGenerationResult{}, err
	}
	defer o.release()

	needs := o.needsOffload(ctx)
	llmRunning := o.llama.IsRunning()

	if !needs || !llmRunning {
		return o.diffusion.Execute(ctx, cfg)
	}

	return o.orchestrateWithEviction(ctx, cfg)
}

// acquire enforces §5's "concurrent orchestrate calls are not supported"
// and the decided (§9 open question) policy: refuse a new orchestration
// while a saved LLM state is pending restoration, rather than silently
// overwriting it.
func (o *Orchestrator) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.busy {
		return apierrors.Server(apierrors.ReasonBusy, "an orchestration is already in flight")
	}
	if o.saved != nil {
		return apierrors.Server(apierrors.ReasonSavedStatePending, "a previous eviction's LLM state was never restored; clear it before starting a new orchestration")
	}
	o.busy = true
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.busy = false
	o.mu.Unlock()
}

// orchestrateWithEviction runs the stop → diffusion → restore sequence of
// §4.6 step 2. Once the LLM has been stopped, the restore attempt always
// runs (a failed Stop returns before it), using a background context,
// so that cancelling the caller's ctx mid-generation still lets the LLM
// come back (§5: "finalizer semantics").
func (o *Orchestrator) orchestrateWithEviction(ctx context.Context, cfg supervisor.ImageGenerationConfig) (supervisor.ImageGenerationResult, error) {
	llmCfg := o.llama.GetConfig()
	if llmCfg == nil {
		return supervisor.ImageGenerationResult{}, apierrors.Server(apierrors.ReasonCannotOffload, "LLM is running but has no recoverable config")
	}

	saved := &SavedLLMState{Config: *llmCfg, WasRunning: true, SavedAt: time.Now()}
	o.mu.Lock()
	o.saved = saved
	o.mu.Unlock()

	if err := o.llama.Stop(ctx); err != nil {
		return supervisor.ImageGenerationResult{}, apierrors.Wrap(apierrors.CodeServerError, "stop LLM before eviction", err)
	}

	result, genErr := o.diffusion.Execute(ctx, cfg)

	o.restoreLLM(saved)

	if genErr != nil {
		return supervisor.ImageGenerationResult{}, genErr
	}
	return result, nil
}

// restoreLLM attempts to bring the LLM back with its saved config. Success
// clears the saved state; failure logs and retains it so an operator or UI
// can retry via a later call (§7: "LLM restore failure during finalize:
// swallowed and logged; saved state retained").
func (o *Orchestrator) restoreLLM(saved *SavedLLMState) {
	_, err := o.llama.Start(context.Background(), saved.Config)
	if err == nil {
		o.mu.Lock()
		o.saved = nil
		o.mu.Unlock()
		return
	}

	applog.Error().Err(err).Str("model_id", saved.Config.ModelID).Msg("failed to restore LLM after diffusion eviction; saved state retained")
}
