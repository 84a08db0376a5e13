/*
Package weave orchestrates builds, file synchronization, integration channels
and deployments for a set of platforms that share a common library.

Platforms declare the platforms that depend on them. When the shared library
changes, weave rebuilds it and then every platform downstream of it, in
dependency order, never running two builds of the same platform at once.

# Architecture

The root package wires the components together:

  - pkg/config: loads weave.yaml and validates the platform graph.
  - pkg/registry: holds platform status and last synchronization time.
  - pkg/graph: dependency graph, reachability and build waves.
  - pkg/build and pkg/cascade: single-flight builds and cascades.
  - pkg/watch and pkg/propagate: debounced file watching and the synchronizer strategies.
  - pkg/integration: realtime and polling integration channels.
  - pkg/deploy: deployment pipelines with artifact rollback.
  - pkg/adapters: process runner, state stores, redis, HTTP.

# Usage

	cfg, err := config.Load("weave.yaml")
	if err != nil {
		log.Fatal(err)
	}

	o, err := weave.New(cfg, weave.WithLogger(logging.New(slog.LevelInfo)))
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := o.Start(ctx); err != nil {
		log.Fatal(err)
	}
	<-ctx.Done()

	report, err := o.Stop(context.Background())

Stop terminates running child processes and writes the shutdown report.
*/
package weave
