// Command simdemo runs a small scene through simcore with the logic loop and
// the solver on separate goroutines.
//
// Configuration comes from SIMCORE_* variables. Tracing is exported when
// SIMDEMO_OTEL_ENDPOINT is set.
//
// Profiling:
// go build ./cmd/simdemo
// ./simdemo -profile cpu
// go tool pprof -http=":8000" ./simdemo cpu.pprof
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore"
	"github.com/oriumgames/simcore/cubeworld"
	"github.com/oriumgames/simcore/engine"
	"github.com/pkg/profile"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

// realMain returns the exit code so deferred profile and tracer shutdowns run
// before the process exits.
func realMain(args []string) int {
	fs := flag.NewFlagSet("simdemo", flag.ContinueOnError)
	var (
		frames  = fs.Int("frames", 600, "number of logic frames to run")
		crates  = fs.Int("crates", 8, "number of falling crates")
		prof    = fs.String("profile", "", "write a profile to the working directory: cpu or mem")
		verbose = fs.Bool("v", false, "debug logging")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	switch *prof {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "":
	default:
		log.Error("simdemo: unknown profile mode", "mode", *prof)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, log, *frames, *crates); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("simdemo: failed", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, log *slog.Logger, frames, crates int) error {
	cfg, err := simcore.LoadConfig()
	if err != nil {
		return err
	}

	shutdown, err := setupTracing(ctx, "simdemo")
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Warn("simdemo: tracer shutdown", "error", err)
		}
	}()

	rt := simcore.NewRenderThread(cfg.RenderQueueDepth)
	defer rt.Close()

	world := cubeworld.New()
	reg := simcore.NewRegistry(world,
		simcore.WithConfig(cfg),
		simcore.WithLogger(log),
		simcore.WithRenderQueue(rt),
	)

	hero, err := buildScene(reg, crates)
	if err != nil {
		return err
	}
	reg.SetMainGameObject(hero.ID())

	if _, err := reg.AttachTriggerObserver(hero.ID(), 3, reg.CategoryID("Crate"), simcore.TriggerFuncs{
		Enter: func(obj *simcore.GameObject) { log.Info("simdemo: crate near hero", "id", obj.ID()) },
		Leave: func(obj *simcore.GameObject) { log.Info("simdemo: crate left hero", "id", obj.ID()) },
	}, 0); err != nil {
		return err
	}

	if err := reg.Start(ctx); err != nil {
		return err
	}
	defer reg.Stop(context.Background())

	step := cfg.FixedStep
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	// solver
	g.Go(func() error {
		ticker := time.NewTicker(step)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-done:
				return nil
			case <-ticker.C:
				world.Step(step.Seconds())
			}
		}
	})

	// logic
	g.Go(func() error {
		defer close(done)
		ticker := time.NewTicker(step)
		defer ticker.Stop()
		for i := 0; i < frames; i++ {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				reg.Update(step)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("simdemo: finished",
		"frames", frames,
		"solverSteps", world.Steps(),
		"hero", hero.Position(),
		"objects", len(reg.AllGameObjectIDs()),
		"joints", world.JointCount(),
	)
	return nil
}

// buildScene registers the ground, a hanging chain, a two-part cart, the
// crates and the hero. It returns the hero.
func buildScene(reg *simcore.Registry, crates int) (*simcore.GameObject, error) {
	ground := simcore.Build("ground", "Ground").
		Position(mgl64.Vec3{0, -0.5, 0}).
		Physics(simcore.NewPhysicsBody(engine.ShapeBox, mgl64.Vec3{200, 1, 200}, 0)).
		Object()
	if err := reg.Register(ground); err != nil {
		return nil, err
	}

	var pred uint64
	for i := 0; i < 4; i++ {
		link := simcore.Build("link", "Chain").
			Position(mgl64.Vec3{-5, 10 - float64(i), 0}).
			Dynamic().
			Physics(simcore.NewPhysicsBody(engine.ShapeCapsule, mgl64.Vec3{0.2, 0.8, 0}, 0.5)).
			Joint(simcore.NewJoint(simcore.JointBallAndSocket, pred).Pivot(mgl64.Vec3{0, 0.5, 0})).
			Object()
		if err := reg.Register(link); err != nil {
			return nil, err
		}
		pred = link.ID()
	}

	cart := simcore.Build("cart", "Vehicle").
		Position(mgl64.Vec3{5, 1, 0}).
		Dynamic().
		Physics(simcore.NewPhysicsBody(engine.ShapeBox, mgl64.Vec3{2, 0.5, 1}, 20)).
		Compound(simcore.NewCompoundConnection(0)).
		Object()
	if err := reg.Register(cart); err != nil {
		return nil, err
	}
	cabin := simcore.Build("cabin", "Vehicle").
		Position(mgl64.Vec3{5, 1.75, 0}).
		Dynamic().
		Physics(simcore.NewPhysicsBody(engine.ShapeBox, mgl64.Vec3{1, 1, 1}, 5)).
		Compound(simcore.NewCompoundConnection(cart.ID())).
		Object()
	if err := reg.Register(cabin); err != nil {
		return nil, err
	}

	for i := 0; i < crates; i++ {
		crate := simcore.Build("crate", "Crate").
			Position(mgl64.Vec3{float64(i%4) * 1.5, 4 + float64(i/4)*1.5, 3}).
			Dynamic().
			Physics(simcore.NewPhysicsBody(engine.ShapeBox, mgl64.Vec3{1, 1, 1}, 2)).
			Object()
		if err := reg.Register(crate); err != nil {
			return nil, err
		}
	}

	heroBody := simcore.NewPhysicsBody(engine.ShapeCapsule, mgl64.Vec3{0.4, 1.8, 0}, 80)
	heroBody.SetConstraintDirection(mgl64.Vec3{0, 1, 0})
	hero := simcore.Build("hero", "Player").
		Position(mgl64.Vec3{0, 1, 0}).
		Dynamic().
		Physics(heroBody).
		Behavior(&walker{speed: 2, ground: reg.CategoryID("Ground")}).
		Object()
	if err := reg.Register(hero); err != nil {
		return nil, err
	}
	return hero, nil
}
