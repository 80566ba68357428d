package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sourcegraph/conc"

	server "github.com/infinitech/infinitask/internal"
	"github.com/infinitech/infinitask/internal/alarm"
	"github.com/infinitech/infinitask/internal/board"
	"github.com/infinitech/infinitask/internal/config"
	"github.com/infinitech/infinitask/internal/eventbus"
	"github.com/infinitech/infinitask/internal/pushnotification"
	pushsubrepo "github.com/infinitech/infinitask/internal/pushsubscription/repositoryimpl"
	taskrepo "github.com/infinitech/infinitask/internal/task/repositoryimpl"
	"github.com/infinitech/infinitask/pkg/panicerr"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, env *config.Env) error {
	if err := env.RequireOwnerKey(); err != nil {
		return err
	}
	loc, err := env.Location()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	store, err := newStorage(ctx, env)
	if err != nil {
		return err
	}
	client, err := newAPIClient(env)
	if err != nil {
		return err
	}

	bus := eventbus.New()
	sinks, err := newAlarm(env, bus)
	if err != nil {
		return err
	}

	b := board.New(board.Config{
		OwnerKey:        env.OwnerKey,
		TickInterval:    env.TickInterval,
		RefreshInterval: env.RefreshInterval,
		UpdateTimeout:   env.APIEnv.Timeout,
		Location:        loc,
	}, client, client, sinks,
		board.WithSnapshots(taskrepo.NewYAMLRepository(store)),
		board.WithPublisher(bus),
	)
	if err := b.Load(ctx); err != nil {
		slog.WarnContext(ctx, "no task snapshot loaded", "error", err)
	}

	// Setup push notification
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)
	pushSender := pushnotification.NewSender(config.VAPIDEnvFromEnv(env), pushSubRepo)
	pushDispatcher := pushnotification.NewDispatcher(pushSender)
	pushHandler := pushnotification.NewHandler(pushSubRepo, pushSender)

	journal := eventbus.NewJournal(store, loc)
	srv := server.NewServer(env, b, journal, pushHandler)

	// Subscribe before any producer starts so the first refresh is recorded.
	journalSub, journalEvents := bus.Subscribe(256)
	defer bus.Unsubscribe(journalSub)
	pushSub, pushEvents := bus.Subscribe(256)
	defer bus.Unsubscribe(pushSub)

	var wg conc.WaitGroup
	stopOnErr := func(name string) func(error) {
		return func(err error) {
			slog.ErrorContext(ctx, name+" stopped", "error", err)
			cancel()
		}
	}
	panicerr.Go(ctx, &wg, func(ctx context.Context) error {
		journal.Start(ctx, journalEvents)
		return nil
	}, stopOnErr("event journal"))
	panicerr.Go(ctx, &wg, func(ctx context.Context) error {
		pushDispatcher.Start(ctx, pushEvents)
		return nil
	}, stopOnErr("push dispatcher"))
	panicerr.Go(ctx, &wg, b.Run, stopOnErr("board"))
	panicerr.Go(ctx, &wg, func(ctx context.Context) error {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, stopOnErr("server"))

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	wg.Wait()
	return nil
}

// newAlarm assembles the configured alarm sinks. The board closes the result
// when it stops.
func newAlarm(env *config.Env, bus *eventbus.Bus) (*alarm.Multi, error) {
	var sound alarm.Sink
	if env.SoundFile != "" {
		s, err := alarm.NewSound(env.SoundFile, env.Player, env.AlarmEnv.Timeout)
		if err != nil {
			return nil, fmt.Errorf("alarm sound: %w", err)
		}
		sound = s
	}
	var bell alarm.Sink
	if env.Bell {
		bell = alarm.NewBell(os.Stdout, !color.NoColor)
	}
	return alarm.NewMulti(sound, bell, alarm.NewEvent(bus)), nil
}
