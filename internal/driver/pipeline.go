// Package driver runs the per-function compilation pipeline: inference,
// ownership checking and code generation, fanned out across functions once
// every signature is published.
package driver

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"kiln/internal/backend/x64"
	"kiln/internal/borrow"
	"kiln/internal/diag"
	"kiln/internal/infer"
	"kiln/internal/ir"
	"kiln/internal/layout"
	"kiln/internal/observ"
	"kiln/internal/regalloc"
	"kiln/internal/symbols"
	"kiln/internal/target"
	"kiln/internal/types"
)

// Module is one compilation unit handed to the driver by the front end.
type Module struct {
	Name  string
	Funcs []*ir.Func
}

// Options tune one CompileModule run.
type Options struct {
	// Jobs caps worker parallelism; 0 means GOMAXPROCS.
	Jobs int
	// MaxDiagnostics caps each function's bag; 0 means 256.
	MaxDiagnostics int
	// Target defaults to the builtin x86-64 description.
	Target *target.Desc
	// Cache, when set, short-circuits emission for unchanged functions.
	Cache *AsmCache
}

// FuncResult is the outcome for a single function. Artifact is nil when
// checking failed or codegen was skipped.
type FuncResult struct {
	Func     *ir.Func
	Infer    *infer.Result
	Borrow   *borrow.Result
	Artifact *x64.Artifact
	Cached   bool
	Timing   observ.Report
}

// Result aggregates the whole module.
type Result struct {
	Funcs       []FuncResult
	Diagnostics []diag.Diagnostic
	Ok          bool
}

// CompileModule publishes every function's signature, then checks and
// compiles the bodies in parallel. Functions that fail checking produce
// diagnostics but do not stop their siblings; internal codegen limits abort
// the run with an error.
func CompileModule(ctx context.Context, m *Module, tin *types.Interner, opts Options) (*Result, error) {
	desc := opts.Target
	if desc == nil {
		desc = target.X8664()
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	maxDiags := opts.MaxDiagnostics
	if maxDiags <= 0 {
		maxDiags = 256
	}

	// Publish barrier: all signatures land before any body is checked, so
	// call checking never races a half-known table.
	syms := symbols.NewTable()
	for _, f := range m.Funcs {
		params := make([]types.TypeID, 0, len(f.Params))
		for _, p := range f.Params {
			ty := f.Locals[p].Declared
			if ty == types.NoTypeID {
				ty = f.Locals[p].Type
			}
			params = append(params, ty)
		}
		sig := symbols.FuncSig{
			Name:     f.Name,
			Params:   params,
			Result:   f.Result,
			Exported: f.Exported,
			Span:     f.Span,
		}
		if _, err := syms.Publish(sig); err != nil {
			return nil, fmt.Errorf("driver: module %s: %w", m.Name, err)
		}
	}

	lay := layout.New(tin, int(desc.PtrSize))
	results := make([]FuncResult, len(m.Funcs))
	bags := make([]*diag.Bag, len(m.Funcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, max(len(m.Funcs), 1)))

	for i, f := range m.Funcs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			bag := diag.NewBag(maxDiags)
			bags[i] = bag
			rep := diag.BagReporter{Bag: bag}
			res := FuncResult{Func: f}
			timer := observ.NewTimer()
			defer func() {
				res.Timing = timer.Report()
				results[i] = res
			}()

			ph := timer.Begin("infer")
			res.Infer = infer.Check(f, tin, syms, rep)
			timer.End(ph, "")
			if res.Infer.Ok {
				ph = timer.Begin("borrow")
				res.Borrow = borrow.Check(f, tin, rep)
				timer.End(ph, "")
			}
			if bag.HasErrors() {
				return nil
			}

			if opts.Cache != nil {
				key := FuncKey(f, tin, desc.Name)
				if art, ok, err := opts.Cache.Get(key, desc.Name); err == nil && ok {
					res.Artifact = art
					res.Cached = true
					return nil
				}
			}

			ph = timer.Begin("codegen")
			art, err := compileBody(f, tin, lay, desc, bag)
			timer.End(ph, "")
			if err != nil {
				return err
			}
			res.Artifact = art
			if opts.Cache != nil {
				key := FuncKey(f, tin, desc.Name)
				if err := opts.Cache.Put(key, desc.Name, art); err != nil {
					return fmt.Errorf("driver: cache write for %s: %w", f.Name, err)
				}
			}
			return nil
		})
	}

	err := g.Wait()

	sink := diag.NewSink()
	for _, bag := range bags {
		if bag != nil {
			sink.Merge(bag)
		}
	}
	out := &Result{
		Funcs:       results,
		Diagnostics: sink.Drain(),
	}
	out.Ok = err == nil
	for _, d := range out.Diagnostics {
		if d.Severity == diag.SevError {
			out.Ok = false
		}
	}
	return out, err
}

// compileBody allocates registers and emits assembly. Allocator limits are
// internal errors: they are recorded in the bag for operator visibility and
// returned to abort the run.
func compileBody(f *ir.Func, tin *types.Interner, lay *layout.Engine, desc *target.Desc, bag *diag.Bag) (*x64.Artifact, error) {
	asg, err := regalloc.Allocate(f, lay, desc)
	if err != nil {
		code := diag.GenInfo
		switch {
		case errors.Is(err, regalloc.ErrRegisterExhaustion):
			code = diag.GenRegisterExhaustion
		case errors.Is(err, regalloc.ErrFrameOverflow):
			code = diag.GenFrameOverflow
		}
		bag.Add(diag.NewError(code, f.Span, fmt.Sprintf("code generation for %s failed: %v", f.Name, err)))
		return nil, err
	}
	return x64.EmitFunc(f, tin, lay, desc, asg)
}
