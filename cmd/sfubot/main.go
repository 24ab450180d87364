package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"golang.org/x/sync/errgroup"

	"github.com/Nik4ant/SfuTelegramBot/internal/bot"
	"github.com/Nik4ant/SfuTelegramBot/internal/cache"
	"github.com/Nik4ant/SfuTelegramBot/internal/capture"
	"github.com/Nik4ant/SfuTelegramBot/internal/config"
	appLog "github.com/Nik4ant/SfuTelegramBot/internal/log"
	"github.com/Nik4ant/SfuTelegramBot/internal/model"
	"github.com/Nik4ant/SfuTelegramBot/internal/profile"
	"github.com/Nik4ant/SfuTelegramBot/internal/refresh"
	"github.com/Nik4ant/SfuTelegramBot/internal/render"
	"github.com/Nik4ant/SfuTelegramBot/internal/sfu"
	"github.com/Nik4ant/SfuTelegramBot/internal/timetable"
	"github.com/Nik4ant/SfuTelegramBot/internal/web"
)

const version = "0.1.0"

// pruneSpec is when profiles of users who went quiet are removed.
const pruneSpec = "@daily"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	group      string
	subgroup   string
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.ApplyEnv(); err != nil {
		appLog.Error("bad environment", err)
		os.Exit(1)
	}

	// CLI flags override the config file.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("sfubot starting", "version", version)

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := refresh.ValidateSpec(conf.Refresh); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.Refresh)
		os.Exit(1)
	}
	loc, err := conf.Location()
	if err != nil {
		appLog.Error("failed to load timezone", err, "timezone", conf.Timezone)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.Refresh,
		"backend", conf.Render.Backend,
		"output_dir", conf.Render.OutputDir,
		"assets_dir", conf.Render.AssetsDir,
		"telegram", conf.Telegram.Token != "",
		"admins", len(conf.Telegram.AdminIDs),
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	out := render.NewOutput(conf.Render.OutputDir, conf.Render.AssetsDir)
	if err := out.EnsureDirs(); err != nil {
		appLog.Error("failed to create image dirs", err)
		os.Exit(1)
	}
	raster, err := render.New(out, conf.Render.FontFile)
	if err != nil {
		appLog.Error("failed to initialize renderer", err)
		os.Exit(1)
	}
	if err := raster.EnsurePlaceholders(); err != nil {
		appLog.Error("failed to create placeholders", err)
		os.Exit(1)
	}

	var renderer cache.Renderer = raster
	if conf.Render.Backend == config.BackendChromium {
		renderer = capture.New(ctx, raster, capture.DefaultTimeout)
	}
	store := cache.New(renderer)

	client := sfu.NewClient(sfu.Options{
		BaseURL:           conf.Upstream.BaseURL,
		Timeout:           conf.Upstream.Timeout(),
		RequestsPerSecond: conf.Upstream.RequestsPerSecond,
		Burst:             conf.Upstream.Burst,
	})
	sched := refresh.New(store, conf.Refresh, loc)
	svc := timetable.New(store, client, sched, loc)

	if flags.once {
		if err := runOnce(ctx, svc, conf, flags.group, flags.subgroup); err != nil {
			appLog.Error("single-shot render failed", err)
			os.Exit(1)
		}
		return
	}

	profiles, err := profile.Open(conf.ProfileDB)
	if err != nil {
		appLog.Error("failed to open profile database", err, "path", conf.ProfileDB)
		os.Exit(1)
	}
	defer profiles.Close()

	sched.AddJob(refresh.Job{
		Name: "profile-prune",
		Spec: pruneSpec,
		Run: func(ctx context.Context) error {
			n, err := profiles.RemoveInactive(ctx, profile.DefaultRetention)
			if err != nil {
				return err
			}
			appLog.Info("inactive profiles removed", "count", n)
			return nil
		},
	})
	if err := sched.Start(ctx); err != nil {
		appLog.Error("failed to start scheduler", err)
		os.Exit(1)
	}
	defer sched.Stop()

	g, gctx := errgroup.WithContext(ctx)

	srv := web.NewServer(conf, svc, out, store, sched)
	g.Go(func() error { return srv.Serve(gctx) })

	if conf.Telegram.Token != "" {
		api, err := tgbotapi.NewBotAPI(conf.Telegram.Token)
		if err != nil {
			// The HTTP API keeps working without the bot.
			appLog.Error("failed to connect to telegram", err)
		} else {
			appLog.Info("telegram authorized", "bot", api.Self.UserName)
			b := bot.New(api, svc, profiles, bot.Options{AdminIDs: conf.Telegram.AdminIDs})
			g.Go(func() error { return b.Run(gctx) })
		}
	} else {
		appLog.Warn("telegram token not set, running HTTP API only")
	}

	if err := g.Wait(); err != nil {
		appLog.Error("service stopped with error", err)
		cancel()
		sched.Stop()
		profiles.Close()
		os.Exit(1)
	}

	// Let in-flight renders settle before the deferred cleanup.
	time.Sleep(100 * time.Millisecond)
	appLog.Info("sfubot exiting")
}

// runOnce renders the current week of one group and logs the files, for
// checking the upstream API and fonts without starting the bot.
func runOnce(ctx context.Context, svc *timetable.Service, conf *config.Config, group, subgroup string) error {
	theme, err := model.ParseTheme(conf.Render.DefaultTheme)
	if err != nil {
		return err
	}
	paths, err := svc.Week(ctx, group, subgroup, model.WeekCurrent, theme)
	if err != nil {
		return err
	}
	for i, p := range paths {
		appLog.Info("day rendered", "day", model.DayName(i), "path", p)
	}
	week, err := svc.WeekImage(ctx, group, subgroup, model.WeekCurrent, theme)
	if err != nil {
		return err
	}
	appLog.Info("week rendered", "path", week)
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Render the current week of -group/-subgroup and exit")
	flag.StringVar(&cfg.group, "group", "", "Group for -once")
	flag.StringVar(&cfg.subgroup, "subgroup", "1", "Subgroup for -once")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
