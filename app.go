package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/chazu/speckleconv/pkg/config"
	"github.com/chazu/speckleconv/pkg/converter"
	"github.com/chazu/speckleconv/pkg/loader"
	"github.com/chazu/speckleconv/pkg/traverse"
)

// ErrSuperseded is returned by a conversion that a newer one replaced.
var ErrSuperseded = errors.New("conversion superseded by newer request")

// App runs conversions. Only the most recent conversion is kept: starting
// a new one cancels the one in flight.
type App struct {
	cfg config.Config
	log *slog.Logger

	// OnProgress is handed to each walk.
	OnProgress traverse.ProgressFunc

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
}

// ConvertResult is the outcome of one conversion. Views hold baked
// geometry; the source records have been released.
type ConvertResult struct {
	RootID  string
	Views   []traverse.RenderView
	Counts  map[string]int
	Skipped int
	Elapsed time.Duration
}

// NewApp creates an App. A nil logger uses the one the config describes.
func NewApp(cfg config.Config, log *slog.Logger) *App {
	if log == nil {
		log = cfg.Logger()
	}
	return &App{cfg: cfg, log: log}
}

// Convert loads a JSON object dump and converts the graph under rootID,
// or under the dump's first record when rootID is empty.
func (a *App) Convert(ctx context.Context, path, rootID string) (*ConvertResult, error) {
	l, err := loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if rootID == "" {
		rootID = l.RootID()
	}
	return a.ConvertFrom(ctx, l, rootID)
}

// ConvertFrom converts the graph under rootID served by l.
func (a *App) ConvertFrom(ctx context.Context, l loader.ObjectLoader, rootID string) (*ConvertResult, error) {
	ctx, gen := a.begin(ctx)
	defer a.end(gen)

	start := time.Now()
	resolver := loader.NewResolver(l, a.log)
	conv := converter.New(resolver, a.cfg, a.log)
	w := traverse.New(resolver, conv, a.cfg, a.log)
	w.OnProgress = a.OnProgress

	res, err := w.Walk(ctx, rootID)
	if a.stale(gen) {
		if res != nil {
			release(res)
		}
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}

	// Bake every view so no geometry aliases its source, then drop the
	// heavy raw buffers.
	for _, v := range res.Views {
		v.Geometry.Bake()
	}
	for _, n := range res.Nodes {
		if err := conv.Dispose(n); err != nil {
			a.log.Warn("dispose failed", "id", n.ID, "err", err)
		}
	}

	out := &ConvertResult{
		RootID:  rootID,
		Views:   res.Views,
		Counts:  make(map[string]int),
		Skipped: res.Skipped,
		Elapsed: time.Since(start),
	}
	for t, c := range res.Counts() {
		out.Counts[t.String()] = c
	}
	a.log.Info("conversion finished",
		"root", rootID,
		"views", len(out.Views),
		"skipped", out.Skipped,
		"elapsed", out.Elapsed)
	return out, nil
}

// begin starts a new generation, canceling the previous one.
func (a *App) begin(ctx context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
	a.generation++
	a.cancel = cancel
	return ctx, a.generation
}

func (a *App) end(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation == gen && a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

func (a *App) stale(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation != gen
}

func release(res *traverse.Result) {
	for _, v := range res.Views {
		v.Geometry.Release()
	}
}

// Summary formats per-kind counts for the command line.
func (r *ConvertResult) Summary() string {
	s := fmt.Sprintf("%d views", len(r.Views))
	names := lo.Keys(r.Counts)
	slices.Sort(names)
	for _, name := range names {
		s += fmt.Sprintf(", %s=%d", name, r.Counts[name])
	}
	if r.Skipped > 0 {
		s += fmt.Sprintf(", %d skipped", r.Skipped)
	}
	return s
}
