package supervisor

import (
	"runtime"
	"strconv"
)

// llamaVariant builds argv the way the teacher's runner.ProcessRunner does
// for llama-server, generalized from a single hardwired invocation into the
// Variant contract.
type llamaVariant struct{}

func (llamaVariant) Name() string { return "llama" }

func (llamaVariant) BinaryName() string {
	if runtime.GOOS == "windows" {
		return "llama-server.exe"
	}
	return "llama-server"
}

// LlamaBinaryName is the platform-appropriate llama-server binary name, for
// callers (e.g. an acquire/pull CLI command) that need it before a
// Supervisor exists.
func LlamaBinaryName() string { return llamaVariant{}.BinaryName() }

func (llamaVariant) DefaultPort() int { return 8080 }

func (llamaVariant) BuildArgv(binaryPath, modelPath string, port int, cfg Config) []string {
	args := []string{
		"--model", modelPath,
		"--port", strconv.Itoa(port),
		"--host", "127.0.0.1",
	}

	if cfg.ContextSize != nil {
		args = append(args, "--ctx-size", strconv.Itoa(*cfg.ContextSize))
	}

	if cfg.GPULayers != nil {
		args = append(args, "--n-gpu-layers", strconv.Itoa(*cfg.GPULayers))
	} else {
		args = append(args, "--n-gpu-layers", "999")
	}

	args = append(args, argInt("--threads", cfg.Threads)...)
	args = append(args, argInt("--parallel", cfg.ParallelRequests)...)

	if cfg.FlashAttention != nil && *cfg.FlashAttention {
		args = append(args, "--flash-attn", "on")
	}

	return args
}

// NewLlamaSupervisor constructs the text-generation server supervisor.
func NewLlamaSupervisor(binaries BinaryResolver, models ModelResolver, logPath string, timeouts Timeouts) *Supervisor {
	return New(llamaVariant{}, binaries, models, logPath, timeouts)
}
