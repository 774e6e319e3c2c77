package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/forgebench/infersupervisor/internal/apierrors"
)

type fakeImageRequester struct {
	result   ImageGenerationResult
	err      error
	progress []Progress
	gotCfg   ImageGenerationConfig
}

func (f *fakeImageRequester) Generate(ctx context.Context, baseURL string, cfg ImageGenerationConfig, onProgress func(Progress)) (ImageGenerationResult, error) {
	f.gotCfg = cfg
	for _, p := range f.progress {
		onProgress(p)
	}
	return f.result, f.err
}

func newTestDiffusionSupervisor(requester ImageRequester) *DiffusionSupervisor {
	return NewDiffusionSupervisor(
		fakeBinaryResolver{path: "/bin/true"},
		fakeModelResolver{path: "/models/fake.safetensors"},
		filepath.Join(os.TempDir(), "diffusion-test.log"),
		DefaultTimeouts(),
		requester,
	)
}

func TestImageGenerationConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  ImageGenerationConfig
		ok   bool
	}{
		{"valid", ImageGenerationConfig{Width: 512, Height: 512, Steps: 20}, true},
		{"zero width", ImageGenerationConfig{Width: 0, Height: 512, Steps: 20}, false},
		{"zero steps", ImageGenerationConfig{Width: 512, Height: 512, Steps: 0}, false},
		{"unknown sampler", ImageGenerationConfig{Width: 512, Height: 512, Steps: 20, Sampler: "not-a-sampler"}, false},
		{"known sampler", ImageGenerationConfig{Width: 512, Height: 512, Steps: 20, Sampler: SamplerDPMPP2M}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestExecuteRejectsWhenNotRunning(t *testing.T) {
	d := newTestDiffusionSupervisor(&fakeImageRequester{})
	_, err := d.Execute(context.Background(), ImageGenerationConfig{Width: 512, Height: 512, Steps: 20})
	if err == nil {
		t.Fatal("expected an error")
	}
	if reason, ok := apierrors.ReasonOf(err); !ok || reason != apierrors.ReasonNoConfig {
		t.Fatalf("reason = %v, want NO_CONFIG", reason)
	}
}

func TestExecuteRejectsInvalidConfigBeforeTouchingRequester(t *testing.T) {
	requester := &fakeImageRequester{}
	d := newTestDiffusionSupervisor(requester)
	_, err := d.Execute(context.Background(), ImageGenerationConfig{Width: 0, Height: 512, Steps: 20})
	if err == nil {
		t.Fatal("expected an error")
	}
	if requester.gotCfg != (ImageGenerationConfig{}) {
		t.Fatal("requester should never have been called")
	}
}

func TestExecuteEmitsProgressAndReturnsResult(t *testing.T) {
	ts, port := okHealthServer(t)
	defer ts.Close()

	wantProgress := []Progress{
		{CurrentStep: 1, TotalSteps: 20, Stage: StageLoading, Percentage: 0},
		{CurrentStep: 20, TotalSteps: 20, Stage: StageDiffusion, Percentage: 100},
	}
	requester := &fakeImageRequester{
		result:   ImageGenerationResult{Format: "png", Seed: 42, Width: 512, Height: 512},
		progress: wantProgress,
	}
	d := newTestDiffusionSupervisor(requester)

	if _, err := d.Start(context.Background(), Config{ModelID: "m1", Port: port}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop(context.Background())

	var seen []Progress
	unsub := d.OnProgress(func(p Progress) { seen = append(seen, p) })
	defer unsub()

	result, err := d.Execute(context.Background(), ImageGenerationConfig{Prompt: "a cat", Width: 512, Height: 512, Steps: 20})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Seed != 42 || result.Format != "png" {
		t.Fatalf("result = %+v, unexpected", result)
	}
	if len(seen) != len(wantProgress) {
		t.Fatalf("progress events = %d, want %d", len(seen), len(wantProgress))
	}
	for i, p := range seen {
		if p != wantProgress[i] {
			t.Fatalf("progress[%d] = %+v, want %+v", i, p, wantProgress[i])
		}
	}
}

func TestExecutePropagatesRequesterError(t *testing.T) {
	ts, port := okHealthServer(t)
	defer ts.Close()

	requester := &fakeImageRequester{err: apierrors.New(apierrors.CodeServerError, "boom")}
	d := newTestDiffusionSupervisor(requester)
	if _, err := d.Start(context.Background(), Config{ModelID: "m1", Port: port}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop(context.Background())

	_, err := d.Execute(context.Background(), ImageGenerationConfig{Width: 512, Height: 512, Steps: 20})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestDiffusionVariantDefaults(t *testing.T) {
	v := diffusionVariant{}
	if v.Name() != "diffusion" {
		t.Fatalf("Name() = %q", v.Name())
	}
	if v.DefaultPort() != 8081 {
		t.Fatalf("DefaultPort() = %d, want 8081", v.DefaultPort())
	}
}

func TestDiffusionBuildArgvIncludesCoreFlags(t *testing.T) {
	v := diffusionVariant{}
	argv := v.BuildArgv("/bin/diffusion-server", "/models/m.safetensors", 8081, Config{})
	joined := map[string]bool{}
	for i := 0; i+1 < len(argv); i++ {
		joined[argv[i]] = true
	}
	for _, want := range []string{"--model", "--port", "--host"} {
		if !joined[want] {
			t.Fatalf("argv %v missing flag %q", argv, want)
		}
	}
}
