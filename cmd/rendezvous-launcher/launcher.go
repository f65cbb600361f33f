package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type options struct {
	workers int
	binary  string
	args    []string
	stagger time.Duration
	backend string
	dir     string
}

// launch starts every worker and waits for all of them. The first failure
// cancels the rest.
func launch(ctx context.Context, opts options) error {
	if opts.workers < 1 {
		return fmt.Errorf("at least one worker is required, got %d", opts.workers)
	}
	limit := rate.Inf
	if opts.stagger > 0 {
		limit = rate.Every(opts.stagger)
	}
	limiter := rate.NewLimiter(limit, 1)

	eg, egCtx := errgroup.WithContext(ctx)
	for id := range opts.workers {
		err := limiter.Wait(egCtx)
		if err != nil {
			break
		}
		cmd := exec.CommandContext(egCtx, opts.binary, opts.args...)
		cmd.Env = workerEnv(os.Environ(), id, opts)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		err = cmd.Start()
		if err != nil {
			startErr := fmt.Errorf("failed to start worker %d: %w", id, err)
			eg.Go(func() error {
				return startErr
			})
			break
		}
		log.Info().Msgf("started worker %d, pid %d", id, cmd.Process.Pid)

		eg.Go(func() error {
			err := cmd.Wait()
			if err != nil {
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					return fmt.Errorf("worker %d exited with code %d", id, exitErr.ExitCode())
				}
				return fmt.Errorf("worker %d: %w", id, err)
			}
			log.Debug().Msgf("worker %d done", id)
			return nil
		})
	}
	err := eg.Wait()
	if err != nil {
		return err
	}
	return ctx.Err()
}

func workerEnv(base []string, id int, opts options) []string {
	env := append([]string{}, base...)
	env = append(env,
		"WORKER_ID="+strconv.Itoa(id),
		"TOTAL_WORKERS="+strconv.Itoa(opts.workers),
	)
	if opts.backend != "" {
		env = append(env, "DISCOVERY_BACKEND="+opts.backend)
	}
	if opts.dir != "" {
		env = append(env, "DISCOVERY_DIR="+opts.dir)
	}
	return env
}
