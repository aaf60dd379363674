package types

import (
	"fmt"
)

// ToolVariant selects the instrumented toolchain a corpus run is executed
// under. Each variant carries its own build flags and execution context
// image; variants are resource-isolated and may run fully in parallel.
type ToolVariant string

const (
	// ToolMiri runs test suites under the Miri interpreter, which detects
	// undefined behavior at the cost of very slow execution.
	ToolMiri ToolVariant = "miri"
	// ToolAsan runs test suites compiled with AddressSanitizer
	// instrumentation.
	ToolAsan ToolVariant = "asan"
)

// ToolVariants lists all known variants.
var ToolVariants = []ToolVariant{ToolMiri, ToolAsan}

// ParseToolVariant converts a CLI string into a ToolVariant.
func ParseToolVariant(s string) (ToolVariant, error) {
	switch ToolVariant(s) {
	case ToolMiri:
		return ToolMiri, nil
	case ToolAsan:
		return ToolAsan, nil
	default:
		return "", fmt.Errorf("invalid tool %q (expected one of %v)", s, ToolVariants)
	}
}

func (v ToolVariant) String() string {
	return string(v)
}

// DockerTag returns the image tag the execution context for this variant
// is built as.
func (v ToolVariant) DockerTag() string {
	return fmt.Sprintf("%s-the-world", v)
}

// Dockerfile returns the path of the Dockerfile that builds this
// variant's execution context image.
func (v ToolVariant) Dockerfile() string {
	return fmt.Sprintf("docker/Dockerfile-%s", v)
}

// Common flags shared by both variants: randomized layout and MIR
// validation surface latent bugs, opt-level 0 keeps builds cheap.
const commonRustFlags = "-Zrandomize-layout --cap-lints allow -Copt-level=0 -Cdebuginfo=0 -Zvalidate-mir"

// BuildEnv returns the per-variant environment applied to every cargo
// invocation inside the execution context.
func (v ToolVariant) BuildEnv() []string {
	env := []string{
		"RUSTFLAGS=" + commonRustFlags,
		"RUSTDOCFLAGS=" + commonRustFlags,
		"CARGO_INCREMENTAL=0",
	}
	switch v {
	case ToolMiri:
		env = append(env,
			"RUST_BACKTRACE=0",
			"MIRIFLAGS=-Zmiri-disable-isolation -Zmiri-ignore-leaks -Zmiri-panic-on-unsupported",
		)
	case ToolAsan:
		env = append(env, "RUST_BACKTRACE=1")
	}
	return env
}
