package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sstallion/go-hid"

	"github.com/shaunagostinho/macropad-link/internal/config"
	"github.com/shaunagostinho/macropad-link/internal/daemon"
	"github.com/shaunagostinho/macropad-link/internal/device"
	"github.com/shaunagostinho/macropad-link/internal/dispatch"
	"github.com/shaunagostinho/macropad-link/internal/media"
	"github.com/shaunagostinho/macropad-link/internal/monitor"
	"github.com/shaunagostinho/macropad-link/internal/notify"
	"github.com/shaunagostinho/macropad-link/internal/probe"
	"github.com/shaunagostinho/macropad-link/internal/protocol"
	"github.com/shaunagostinho/macropad-link/internal/relay"
	"github.com/shaunagostinho/macropad-link/internal/session"
	"github.com/shaunagostinho/macropad-link/internal/stats"
	"github.com/shaunagostinho/macropad-link/internal/timer"
	"github.com/shaunagostinho/macropad-link/internal/trace"
	"github.com/shaunagostinho/macropad-link/web"
)

const usage = `usage: macropadd [flags] [command]

commands:
  run    drive the macropad (default)
  scan   list HID interfaces and mark the configured devices
  auth   authorize Spotify and store the token
  init   write a default config file

flags:
`

func main() {
	configPath := flag.String("config", "macropadd.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with simulated devices, counters and speed test")
	monitorAddr := flag.String("monitor", "", "Serve the live monitor on this address (e.g. 127.0.0.1:8080)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	// Console output until the config says otherwise.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	cmd := "run"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	if cmd == "init" {
		if err := writeDefaultConfig(*configPath); err != nil {
			log.Fatal().Err(err).Msg("init failed")
		}
		return
	}

	cfg := config.Load(*configPath)
	if *demo {
		cfg.Macropad.Transport = config.TransportDemo
		if cfg.Keyboard.Transport != config.TransportDisabled {
			cfg.Keyboard.Transport = config.TransportDemo
		}
		cfg.Probe.Backend = "demo"
	}
	if *monitorAddr != "" {
		cfg.Monitor.ListenAddr = *monitorAddr
	}
	setupLogging(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("component", "main").Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	var err error
	switch cmd {
	case "run":
		err = run(ctx, cfg, *demo)
	case "scan":
		err = scan(cfg)
	case "auth":
		err = media.Authorize(ctx, cfg.Spotify.Media(), func(u string) {
			fmt.Printf("Open this URL in your browser to authorize macropadd:\n\n  %s\n\n", u)
		})
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Str("command", cmd).Msg("failed")
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func run(ctx context.Context, cfg *config.Config, demo bool) error {
	log.Info().Str("component", "main").Str("config", cfg.Path()).Msg("macropadd starting")

	if usesHID(cfg) {
		if err := hid.Init(); err != nil {
			return fmt.Errorf("hid init: %w", err)
		}
		defer hid.Exit()
	}

	reportLength := cfg.Link.ReportLength

	// Services
	var counters stats.Source = stats.NewSystem()
	var probeFn probe.Func = probe.Speedtest()
	if demo {
		counters = stats.NewDemo()
	}
	if cfg.Probe.Backend == "demo" {
		probeFn = probe.Demo(8 * time.Second)
	}
	prober := probe.NewRunner(probeFn, cfg.Probe.Timeout())
	defer prober.Close()

	var durations timer.DurationSource = timer.FileSource{Path: cfg.Timer.DurationFile}
	if _, err := durations.Duration(); err != nil {
		if demo {
			durations = timer.Fixed(25 * time.Minute)
		} else {
			log.Warn().Str("component", "timer").Err(err).Msg("timer duration unavailable, timer page will show STOPPED")
		}
	}
	countdown := timer.New(durations)
	if cfg.Timer.Notify {
		var n notify.Notifier = notify.Log{}
		if desktop, err := notify.NewDesktop(); err != nil {
			log.Info().Str("component", "notify").Err(err).Msg("desktop notifications unavailable, logging instead")
		} else {
			defer desktop.Close()
			n = desktop
		}
		countdown.OnComplete(notify.TimerDone(n))
	}

	songs := media.NewProvider(ctx, cfg.Spotify.Media(), cfg.Spotify.CacheTTL())

	table := dispatch.New(counters, songs, prober, countdown)
	table.Codec = protocol.Codec{Capacity: reportLength}
	if cfg.Spotify.TitleLimit > 0 {
		table.TitleLimit = cfg.Spotify.TitleLimit
	}

	// Devices
	sess := session.New(openerFor(cfg.Macropad, false, reportLength), cfg.Link.Session())
	var keyboard daemon.Relayer
	if cfg.Keyboard.Transport != config.TransportDisabled {
		keyboard = relay.New(openerFor(cfg.Keyboard, true, reportLength), cfg.Relay.Session(reportLength))
	}

	// Observers
	var sinks trace.Multi
	recorder := trace.NewRecorder(cfg.Trace.Path, cfg.Trace.Enabled)
	defer recorder.Close()
	sinks = append(sinks, recorder)

	var d *daemon.Daemon
	var mon *monitor.Server
	if addr := cfg.Monitor.ListenAddr; addr != "" {
		mon = monitor.New(addr, web.FS, func() interface{} { return d.Status() }, cfg)
		sinks = append(sinks, mon)
	}

	d = daemon.New(sess, keyboard, table, daemon.Options{
		ServiceInterval: cfg.Link.ServiceInterval(),
		ErrorPause:      cfg.Link.ErrorPause(),
		Sink:            sinks,
	})

	if mon != nil {
		go func() {
			if err := mon.Run(ctx); err != nil {
				log.Warn().Str("component", "monitor").Err(err).Msg("monitor exited")
			}
		}()
	}
	return d.Run(ctx)
}

func openerFor(d config.DeviceConfig, keyboard bool, reportLength int) device.Opener {
	switch d.Transport {
	case config.TransportSerial:
		return device.NewSerial(d.Serial())
	case config.TransportDemo:
		return &device.DemoOpener{Keyboard: keyboard, ReportLength: reportLength}
	}
	return device.NewHID(d.Filter())
}

func usesHID(cfg *config.Config) bool {
	return cfg.Macropad.Transport == config.TransportHID || cfg.Keyboard.Transport == config.TransportHID
}

func scan(cfg *config.Config) error {
	if err := hid.Init(); err != nil {
		return fmt.Errorf("hid init: %w", err)
	}
	defer hid.Exit()

	found := 0
	err := device.Scan(func(info device.Info, matched bool) {
		mark := " "
		if matched {
			mark = "*"
			found++
		}
		fmt.Printf("%s %s\n", mark, info)
	}, cfg.Macropad.Filter(), cfg.Keyboard.Filter())
	if err != nil {
		return err
	}
	fmt.Printf("\n%d interface(s) match the configured macropad or keyboard (marked *)\n", found)
	return nil
}

func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	cfg := config.DefaultConfig()
	cfg.SetPath(path)
	if err := cfg.Save(); err != nil {
		return err
	}
	log.Info().Str("component", "main").Str("path", path).Msg("default config written")
	return nil
}
