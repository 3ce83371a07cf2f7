package platform

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hbomb79/Harvest/internal/http/fetch"
	"github.com/hbomb79/Harvest/internal/toolrun"
	"github.com/hbomb79/Harvest/pkg/logger"
)

type (
	// request is the state shared between the strategies of one chain run.
	request struct {
		url  string
		dest string
		sink ProgressSink
	}

	// outcome is the result of one strategy attempt. A nil err means
	// the artifact at path is ready to be verified.
	outcome struct {
		path string
		err  error
	}

	strategy struct {
		name    string
		attempt func(ctx context.Context, req *request) outcome
	}

	// chain is the fixed, ordered list of strategies for a platform.
	chain struct {
		platform   Platform
		strategies []strategy
		// exhausted is the user-facing message used when every strategy fails
		// without a more specific diagnosis.
		exhausted string
	}
)

func (req *request) progress(percent int) {
	if req.sink == nil {
		return
	}

	req.sink.Record(min(100, max(0, percent)))
}

func succeeded(path string) outcome { return outcome{path: path} }
func failed(err error) outcome     { return outcome{err: err} }

// run executes each strategy in order until one produces a verified
// artifact. Strategy failures are logged and recovered; only exhaustion
// of the whole chain is reported, using the most diagnostic error seen.
func (c *chain) run(ctx context.Context, kit *toolkit, req *request) (string, error) {
	var (
		mostDiagnostic error
		last           error
	)

	for _, s := range c.strategies {
		if ctx.Err() != nil {
			last = classifyContext(ctx.Err())
			break
		}

		out := s.attempt(ctx, req)
		if out.err == nil {
			out.err = verifyArtifact(out.path)
		}
		if out.err == nil {
			log.Emit(logger.SUCCESS, "[%s] strategy %s succeeded for %s\n", c.platform, s.name, req.url)
			req.progress(100)
			return out.path, nil
		}

		log.Emit(logger.WARNING, "[%s] strategy %s failed for %s: %v\n", c.platform, s.name, req.url, out.err)
		if kit.onFailure != nil {
			kit.onFailure(c.platform, s.name, out.err)
		}

		last = out.err
		if mostDiagnostic == nil || rank(out.err) > rank(mostDiagnostic) {
			mostDiagnostic = out.err
		}
	}

	return "", c.exhaustedError(mostDiagnostic, last)
}

func (c *chain) exhaustedError(mostDiagnostic error, last error) error {
	switch {
	case KindOf(mostDiagnostic) == KindToolFault:
		return mostDiagnostic
	case KindOf(last) == KindTimeout:
		return last
	default:
		return newError(KindStrategyExhausted, c.exhausted, last)
	}
}

// verifyArtifact ensures the file at path exists and meets the minimum
// viable size. Undersized output is deleted.
func verifyArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("strategy reported success but artifact is missing: %w", err)
	}

	if info.Size() < MinArtifactBytes {
		os.Remove(path)
		return fmt.Errorf("artifact is too small (%d bytes), treating as empty download", info.Size())
	}

	return nil
}

// classifyTransportError converts timeouts from the tool runner and HTTP
// client in to a classified Timeout error, leaving others untouched.
func classifyTransportError(what string, err error) error {
	if errors.Is(err, toolrun.ErrTimedOut) || errors.Is(err, fetch.ErrTimedOut) || errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, fmt.Sprintf("%s timed out", what), err)
	}

	return err
}

func classifyContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, "download timed out", err)
	}

	return newError(KindUnexpectedFault, "download was interrupted", err)
}
