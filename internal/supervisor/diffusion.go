package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/forgebench/infersupervisor/internal/apierrors"
)

// diffusionVariant builds argv for the image-generation server. The exact
// flag surface of the diffusion binary is an external contract; the shape
// here mirrors llamaVariant's pattern of turning optional Config fields
// into optional flags.
type diffusionVariant struct{}

func (diffusionVariant) Name() string { return "diffusion" }

func (diffusionVariant) BinaryName() string {
	if runtime.GOOS == "windows" {
		return "diffusion-server.exe"
	}
	return "diffusion-server"
}

// DiffusionBinaryName is the platform-appropriate diffusion-server binary
// name, for callers (e.g. an acquire/pull CLI command) that need it before
// a Supervisor exists.
func DiffusionBinaryName() string { return diffusionVariant{}.BinaryName() }

func (diffusionVariant) DefaultPort() int { return 8081 }

func (diffusionVariant) BuildArgv(binaryPath, modelPath string, port int, cfg Config) []string {
	args := []string{
		"--model", modelPath,
		"--port", strconv.Itoa(port),
		"--host", "127.0.0.1",
	}

	if cfg.GPULayers != nil {
		args = append(args, "--n-gpu-layers", strconv.Itoa(*cfg.GPULayers))
	}
	args = append(args, argInt("--threads", cfg.Threads)...)
	args = append(args, argInt("--parallel", cfg.ParallelRequests)...)
	args = append(args, argBool("--flash-attn", cfg.FlashAttention)...)

	return args
}

// Sampler enumerates the fixed set §3 allows for ImageGenerationConfig.
type Sampler string

const (
	SamplerEuler       Sampler = "euler"
	SamplerEulerA      Sampler = "euler_a"
	SamplerDPMPP2M     Sampler = "dpmpp_2m"
	SamplerDDIM        Sampler = "ddim"
	SamplerLCM         Sampler = "lcm"
)

// ImageGenerationConfig is request-scoped input to a diffusion generation
// (§3).
type ImageGenerationConfig struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	CFGScale       float64
	Seed           int64 // -1 means "pick a random seed"
	Sampler        Sampler
}

// Validate enforces §3's ImageGenerationConfig invariants.
func (c ImageGenerationConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return apierrors.New(apierrors.CodeServerError, "width and height must be positive")
	}
	if c.Steps < 1 {
		return apierrors.New(apierrors.CodeServerError, "steps must be >= 1")
	}
	switch c.Sampler {
	case "", SamplerEuler, SamplerEulerA, SamplerDPMPP2M, SamplerDDIM, SamplerLCM:
	default:
		return apierrors.Newf(apierrors.CodeServerError, "unknown sampler %q", c.Sampler)
	}
	return nil
}

// ImageGenerationResult is the return of a diffusion generation (§3). Seed
// is the realized seed, never -1.
type ImageGenerationResult struct {
	Image      []byte
	Format     string // "png"
	TimeTaken  time.Duration
	Seed       int64
	Width      int
	Height     int
}

// Stage is the phase reported in a progress event.
type Stage string

const (
	StageLoading   Stage = "loading"
	StageDiffusion Stage = "diffusion"
	StageDecoding  Stage = "decoding"
)

// Progress is emitted during Generate (§6: "progress — {currentStep,
// totalSteps, stage, percentage}").
type Progress struct {
	CurrentStep int
	TotalSteps  int
	Stage       Stage
	Percentage  float64
}

// ImageRequester performs the actual HTTP call to the diffusion binary.
// Image request marshalling is an external collaborator (§1); only its
// contract is fixed here. DefaultImageRequester below is a concrete,
// testable implementation of that contract against an OpenAI-image-style
// JSON+SSE surface, grounded on the teacher's runner.Client/ParseSSEStream
// pattern.
type ImageRequester interface {
	Generate(ctx context.Context, baseURL string, cfg ImageGenerationConfig, onProgress func(Progress)) (ImageGenerationResult, error)
}

// DiffusionSupervisor is the concrete supervisor for the image-generation
// binary. It embeds the shared lifecycle Supervisor and adds the
// domain-specific `execute` operation the ResourceOrchestrator drives.
type DiffusionSupervisor struct {
	*Supervisor
	requester ImageRequester
	progress  *emitter[Progress]
}

// NewDiffusionSupervisor constructs the image-generation server supervisor.
func NewDiffusionSupervisor(binaries BinaryResolver, models ModelResolver, logPath string, timeouts Timeouts, requester ImageRequester) *DiffusionSupervisor {
	if requester == nil {
		requester = NewDefaultImageRequester()
	}
	return &DiffusionSupervisor{
		Supervisor: New(diffusionVariant{}, binaries, models, logPath, timeouts),
		requester:  requester,
		progress:   newEmitter[Progress](),
	}
}

// OnProgress subscribes to the progress events an in-flight Execute call
// emits (§6: "progress — {currentStep, totalSteps, stage, percentage}").
func (d *DiffusionSupervisor) OnProgress(fn func(Progress)) Unsubscribe {
	return d.progress.subscribe(fn)
}

// Execute is the *raw* generation path: it assumes the diffusion server is
// already running and talks to it directly. This is deliberately distinct
// from any orchestrated entry point so the ResourceOrchestrator can call it
// without recursing back into orchestration (§9 "re-entrancy avoidance").
func (d *DiffusionSupervisor) Execute(ctx context.Context, cfg ImageGenerationConfig) (ImageGenerationResult, error) {
	if err := cfg.Validate(); err != nil {
		return ImageGenerationResult{}, err
	}
	if !d.IsRunning() {
		return ImageGenerationResult{}, apierrors.Server(apierrors.ReasonNoConfig, "diffusion server is not running")
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", d.Port())
	return d.requester.Generate(ctx, baseURL, cfg, d.progress.emit)
}

// DefaultImageRequester is a concrete ImageRequester against a JSON request
// / SSE progress-stream response surface, in the idiom of the teacher's
// runner.Client (POST JSON, scan "data: " lines) generalized from chat
// completions to image generation progress + final payload.
type DefaultImageRequester struct {
	client *http.Client
}

func NewDefaultImageRequester() *DefaultImageRequester {
	return &DefaultImageRequester{client: &http.Client{}}
}

type imageRequestWire struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfg_scale"`
	Seed           int64   `json:"seed"`
	Sampler        string  `json:"sampler,omitempty"`
}

type progressWire struct {
	CurrentStep int     `json:"current_step"`
	TotalSteps  int     `json:"total_steps"`
	Stage       string  `json:"stage"`
	Percentage  float64 `json:"percentage"`
}

type imageResultWire struct {
	ImageBase64 string `json:"image_base64"`
	Format      string `json:"format"`
	Seed        int64  `json:"seed"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

func (r *DefaultImageRequester) Generate(ctx context.Context, baseURL string, cfg ImageGenerationConfig, onProgress func(Progress)) (ImageGenerationResult, error) {
	body, err := json.Marshal(imageRequestWire{
		Prompt:         cfg.Prompt,
		NegativePrompt: cfg.NegativePrompt,
		Width:          cfg.Width,
		Height:         cfg.Height,
		Steps:          cfg.Steps,
		CFGScale:       cfg.CFGScale,
		Seed:           cfg.Seed,
		Sampler:        string(cfg.Sampler),
	})
	if err != nil {
		return ImageGenerationResult{}, apierrors.Wrap(apierrors.CodeServerError, "marshal image request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/images/generate", bytes.NewReader(body))
	if err != nil {
		return ImageGenerationResult{}, apierrors.Wrap(apierrors.CodeServerError, "build image request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return ImageGenerationResult{}, apierrors.Wrap(apierrors.CodeServerError, "send image request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ImageGenerationResult{}, apierrors.Newf(apierrors.CodeServerError, "diffusion server returned %d", resp.StatusCode)
	}

	var result *imageResultWire
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(data), &envelope); err != nil {
			continue
		}

		switch envelope.Type {
		case "progress":
			var p progressWire
			if err := json.Unmarshal([]byte(data), &p); err == nil && onProgress != nil {
				onProgress(Progress{
					CurrentStep: p.CurrentStep,
					TotalSteps:  p.TotalSteps,
					Stage:       Stage(p.Stage),
					Percentage:  p.Percentage,
				})
			}
		case "result":
			var res imageResultWire
			if err := json.Unmarshal([]byte(data), &res); err == nil {
				result = &res
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return ImageGenerationResult{}, apierrors.Wrap(apierrors.CodeServerError, "read image response stream", err)
	}
	if result == nil {
		return ImageGenerationResult{}, apierrors.New(apierrors.CodeServerError, "diffusion server stream ended without a result")
	}

	imgBytes, err := decodeBase64Image(result.ImageBase64)
	if err != nil {
		return ImageGenerationResult{}, apierrors.Wrap(apierrors.CodeServerError, "decode image payload", err)
	}

	format := result.Format
	if format == "" {
		format = "png"
	}

	return ImageGenerationResult{
		Image:     imgBytes,
		Format:    format,
		TimeTaken: time.Since(start),
		Seed:      result.Seed,
		Width:     result.Width,
		Height:    result.Height,
	}, nil
}

func decodeBase64Image(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
