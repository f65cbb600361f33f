package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := options{}
	pflag.IntVarP(&opts.workers, "workers", "n", 2, "number of workers to start")
	pflag.StringVar(&opts.binary, "worker-binary", defaultWorkerBinary(), "path of the worker binary")
	pflag.DurationVar(&opts.stagger, "stagger", 100*time.Millisecond, "delay between two worker starts, 0 starts all at once")
	pflag.StringVar(&opts.backend, "backend", "file", "discovery backend passed to the workers")
	pflag.StringVar(&opts.dir, "dir", "", "rendezvous directory of the file backend")
	pflag.Parse()
	opts.args = pflag.Args()

	err := launch(ctx, opts)
	if err != nil {
		log.Error().Err(err).Msg("launch failed")
		cancel()
		os.Exit(1)
	}
	log.Info().Msgf("all %d workers finished", opts.workers)
}

func defaultWorkerBinary() string {
	self, err := os.Executable()
	if err != nil {
		return "rendezvous-worker"
	}
	return filepath.Join(filepath.Dir(self), "rendezvous-worker")
}
