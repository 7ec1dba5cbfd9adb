package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/NowakAdmin/DeviceHub/internal/agent"
	"github.com/NowakAdmin/DeviceHub/internal/api"
	"github.com/NowakAdmin/DeviceHub/internal/center"
	"github.com/NowakAdmin/DeviceHub/internal/config"
	"github.com/NowakAdmin/DeviceHub/internal/logging"
	"github.com/NowakAdmin/DeviceHub/internal/metrics"
	"github.com/NowakAdmin/DeviceHub/internal/terminal"
	"github.com/NowakAdmin/DeviceHub/internal/transport"
	"github.com/NowakAdmin/DeviceHub/internal/tray"
	"github.com/NowakAdmin/DeviceHub/internal/version"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "configure":
			runConfigure()
			return
		case "headless":
			runHeadless()
			return
		case "devices":
			runDevices()
			return
		case "version":
			fmt.Printf("DeviceHub %s\n", version.Version)
			return
		}
	}

	runTray()
}

func runConfigure() {
	cfg, err := config.LoadOrCreateDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Błąd odczytu konfiguracji: %v\n", err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	serverURL := fs.String("server", cfg.Agent.ServerURL, "Base URL serwera, np. https://bizanti.pl")
	wsURL := fs.String("ws", cfg.Agent.WebSocketURL, "URL WebSocket agenta, np. wss://bizanti.pl/agent/ws")
	agentID := fs.String("agent-id", cfg.Agent.AgentID, "ID konta agenta")
	token := fs.String("token", cfg.Agent.AgentToken, "Token API agenta")
	tenantID := fs.String("tenant-id", cfg.Agent.TenantID, "Opcjonalny tenant ID")
	agentEnabled := fs.Bool("agent", cfg.Agent.Enabled, "Łącz się z serwerem po starcie")
	name := fs.String("name", cfg.Terminal.Name, "Nazwa terminala")
	description := fs.String("description", cfg.Terminal.Description, "Opis terminala")
	apiEnabled := fs.Bool("api", cfg.API.Enabled, "Włącz lokalne API")
	listen := fs.String("listen", cfg.API.Listen, "Adres lokalnego API, np. 127.0.0.1:8765")

	_ = fs.Parse(os.Args[2:])

	cfg.Agent.ServerURL = *serverURL
	cfg.Agent.WebSocketURL = *wsURL
	cfg.Agent.AgentID = *agentID
	cfg.Agent.AgentToken = *token
	cfg.Agent.TenantID = *tenantID
	cfg.Agent.Enabled = *agentEnabled
	cfg.Terminal.Name = *name
	cfg.Terminal.Description = *description
	cfg.API.Enabled = *apiEnabled
	cfg.API.Listen = *listen

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Błąd zapisu konfiguracji: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Konfiguracja zapisana: %s\n", config.Path())
}

func runDevices() {
	fs := flag.NewFlagSet("devices", flag.ExitOnError)
	ports := fs.Bool("ports", false, "Pokaż porty szeregowe dostępne w systemie")
	_ = fs.Parse(os.Args[2:])

	if *ports {
		names, err := transport.PortNames()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Błąd listy portów: %v\n", err)
			os.Exit(1)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}

	cfg, err := config.LoadOrCreateDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Błąd konfiguracji: %v\n", err)
		os.Exit(1)
	}
	if len(cfg.Devices) == 0 {
		fmt.Printf("Brak urządzeń w %s\n", config.Path())
		return
	}
	for _, d := range cfg.Devices {
		spec, buildErr := terminal.Build(d)
		if buildErr != nil {
			fmt.Printf("%-20s BŁĄD: %v\n", d.Name, buildErr)
			continue
		}
		fmt.Printf("%-20s %s\n", d.Name, spec.Device)
	}
}

// runtime is the wired device stack shared by headless and tray modes.
type runtime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	center  *center.Center
	metrics *metrics.Metrics
	sink    *logging.Sink
	api     *api.Server
	agent   *agent.Agent
	closeFn func()
}

func startRuntime() *runtime {
	cfg, err := config.LoadOrCreateDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Błąd konfiguracji: %v\n", err)
		os.Exit(1)
	}

	logger, closeFn, err := logging.New(logging.DefaultConfig("devicehub", config.LogDir()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Błąd loggera: %v\n", err)
		os.Exit(1)
	}

	m := metrics.New()
	c := center.New(center.Options{Observer: m})
	m.Follow(c)

	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		center:  c,
		metrics: m,
		sink:    logging.NewSink(c, logger),
		closeFn: closeFn,
	}

	t := terminal.New(cfg.Terminal, c, logger)
	if !t.Provision(cfg.Devices) {
		logger.Warn().Str("config", config.Path()).Msg("Nie wszystkie urządzenia zostały skonfigurowane")
	}

	if cfg.API.Enabled {
		rt.api = api.NewServer(api.Dependencies{
			Center:  c,
			Metrics: m.Handler(),
			Logger:  logger,
			Version: version.Version,

			AllowedOrigins: cfg.API.AllowedOrigins,
		})
		rt.api.Start(cfg.API.Listen)
	}

	rt.agent = agent.New(cfg.Agent, t.Name, c, logger)
	return rt
}

func (rt *runtime) agentWanted() bool {
	return rt.cfg.Agent.Enabled || rt.cfg.Agent.AgentToken != ""
}

func (rt *runtime) stop() {
	rt.agent.Stop()

	if rt.api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := rt.api.Shutdown(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("Błąd zatrzymania API")
		}
		cancel()
	}

	rt.center.Close()
	rt.sink.Close()
	rt.metrics.Close()
	rt.logger.Info().Msg("DeviceHub zatrzymany")
	rt.closeFn()
}

func runHeadless() {
	rt := startRuntime()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if rt.agentWanted() {
		if err := rt.agent.Start(ctx); err != nil {
			rt.logger.Error().Err(err).Msg("Nie udało się wystartować agenta")
		}
	}

	rt.logger.Info().Str("version", version.Version).Int("devices", len(rt.center.Names())).Msg("DeviceHub uruchomiony")
	<-ctx.Done()
	rt.stop()
}

func runTray() {
	rt := startRuntime()

	if rt.agentWanted() {
		if err := rt.agent.Start(context.Background()); err != nil {
			rt.logger.Error().Err(err).Msg("Nie udało się wystartować agenta")
		}
	}

	app := tray.New(rt.center, rt.agent, rt.logger, rt.stop)
	app.Run()
}
