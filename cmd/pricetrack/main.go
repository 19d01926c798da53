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

	"github.com/gin-gonic/gin"
	cli "github.com/jawher/mow.cli"
	"github.com/joho/godotenv"

	"github.com/geniass/pricetrack/pkg/config"
	"github.com/geniass/pricetrack/pkg/history"
	"github.com/geniass/pricetrack/pkg/logging"
	"github.com/geniass/pricetrack/pkg/scraper"
	"github.com/geniass/pricetrack/pkg/tracker"
	"github.com/geniass/pricetrack/pkg/web"
)

func main() {
	_ = godotenv.Load() // .env is optional

	app := cli.App("pricetrack", "Record product prices over time")
	configPath := app.StringOpt("c config", "", "YAML config file; settings come from the environment when empty")

	var cfg *config.Config
	app.Before = func() {
		c, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			cli.Exit(1)
		}
		cfg = c
		logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	}

	app.Command("check", "fetch a product page now, record its price and optionally keep checking it", func(cmd *cli.Cmd) {
		cmd.Spec = "[--every] URL"
		every := cmd.StringOpt("e every", "", "keep checking until interrupted: daily, weekly or monthly (or 1, 2, 3)")
		url := cmd.StringArg("URL", "", "product page URL")

		cmd.Action = func() {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := check(ctx, cfg, *url, *every); err != nil {
				slog.Error("check failed", "url", *url, "error", err)
				cli.Exit(1)
			}
		}
	})

	app.Command("history", "list recorded prices", func(cmd *cli.Cmd) {
		cmd.Spec = "[--title]"
		title := cmd.StringOpt("t title", "", "only list this product")

		cmd.Action = func() {
			if err := listHistory(cfg, *title); err != nil {
				slog.Error("failed to list history", "error", err)
				cli.Exit(1)
			}
		}
	})

	app.Command("serve", "serve the web form for adding products and viewing their history", func(cmd *cli.Cmd) {
		cmd.Action = func() {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := serve(ctx, cfg); err != nil {
				slog.Error("server failed", "error", err)
				cli.Exit(1)
			}
		}
	})

	app.Command("env", "describe the environment variables", func(cmd *cli.Cmd) {
		cmd.Action = func() {
			fmt.Println(config.Usage())
		}
	})

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newScheduler(cfg *config.Config, store *history.Store) *tracker.Scheduler {
	s := scraper.NewScraper(cfg.UserAgent, cfg.AcceptLanguage)
	return tracker.New(s, store, tracker.WithMaxTasks(cfg.MaxTasks))
}

func check(ctx context.Context, cfg *config.Config, url, choice string) error {
	var every tracker.Interval
	if choice != "" {
		var err error
		if every, err = tracker.ParseInterval(choice); err != nil {
			return err
		}
	}

	store := history.NewStore(cfg.DataDir)
	sched := newScheduler(cfg, store)
	defer sched.Close()

	o, task, err := sched.AddProduct(ctx, url, every)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s with price %s!\n", o.Title, o.Price)
	if task == nil {
		return nil
	}

	fmt.Printf("Checking %s until interrupted.\n", task.Interval)
	<-ctx.Done()
	return nil
}

func listHistory(cfg *config.Config, title string) error {
	store := history.NewStore(cfg.DataDir)

	var (
		obs []history.Observation
		err error
	)
	if title != "" {
		obs, err = store.Load(title)
	} else {
		obs, err = store.LoadAll()
	}
	if err != nil {
		return err
	}
	return historyTemplate.Execute(os.Stdout, obs)
}

func serve(ctx context.Context, cfg *config.Config) error {
	store := history.NewStore(cfg.DataDir)
	sched := newScheduler(cfg, store)
	defer sched.Close()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	app := &web.App{Scheduler: sched, Store: store, PathPrefix: cfg.PathPrefix}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           web.NewRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.HTTPAddr, "data_dir", cfg.DataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", "error", err)
	}
	return nil
}
