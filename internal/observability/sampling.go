package observability

import (
	"errors"
	"fmt"
	"strconv"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var errUnknownSampler = errors.New("unknown trace sampler")

// samplers maps OTEL_TRACES_SAMPLER names to constructors; ratio is the parsed OTEL_TRACES_SAMPLER_ARG.
var samplers = map[string]func(ratio float64) sdktrace.Sampler{
	"always_on":  func(float64) sdktrace.Sampler { return sdktrace.AlwaysSample() },
	"always_off": func(float64) sdktrace.Sampler { return sdktrace.NeverSample() },
	"traceidratio": func(ratio float64) sdktrace.Sampler {
		return sdktrace.TraceIDRatioBased(ratio)
	},
	"parentbased_always_on": func(float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	},
	"parentbased_always_off": func(float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.NeverSample())
	},
	"parentbased_traceidratio": func(ratio float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	},
}

// newSampler resolves the configured sampler. Empty name means parentbased_always_on, the SDK default.
// An unknown name is an error so a typo does not silently trace everything; a bad ratio is too.
func newSampler(name, arg string) (sdktrace.Sampler, error) {
	if name == "" {
		name = "parentbased_always_on"
	}

	build, ok := samplers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownSampler, name)
	}

	ratio := 1.0

	if arg != "" {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil || v < 0 || v > 1 {
			return nil, fmt.Errorf("trace sampler ratio %q: must be a number in [0,1]", arg)
		}

		ratio = v
	}

	return build(ratio), nil
}
