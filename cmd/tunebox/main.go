// Package main provides the tunebox daemon entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/tunebox/internal/api/connect"
	"github.com/osa030/tunebox/internal/app/gesture"
	"github.com/osa030/tunebox/internal/app/mediacontrol"
	"github.com/osa030/tunebox/internal/app/notification"
	"github.com/osa030/tunebox/internal/app/persistence"
	"github.com/osa030/tunebox/internal/app/playback"
	"github.com/osa030/tunebox/internal/app/recommend"
	"github.com/osa030/tunebox/internal/app/state"
	"github.com/osa030/tunebox/internal/infra/config"
	"github.com/osa030/tunebox/internal/infra/logger"
	"github.com/osa030/tunebox/internal/infra/mpris"
	"github.com/osa030/tunebox/internal/infra/spotify"
)

var (
	app        = kingpin.New("tunebox", "tunebox playback daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/tunebox.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	app.Command("start", "Start the daemon (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkConfigCmd.FullCommand() {
		printConfig(cfg)
		_ = closer.Close()
		return
	}

	err = run(cfg)
	if err != nil {
		zlog.Error().Msgf("Daemon error: %v", err)
	}
	_ = closer.Close()
	if err != nil {
		os.Exit(1)
	}
}

// run executes the daemon. Using a separate function ensures deferred
// cleanup runs even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	stateStore := state.NewStore()
	engine := playback.NewEngine(stateStore, nil, playback.Config{
		HistoryLimit:    cfg.Playback.HistoryLimit,
		RepeatAllReseed: cfg.Playback.RepeatAllExhausted == "loop_history",
		PollInterval:    cfg.Playback.PollInterval(),
		LoadTimeout:     cfg.Playback.LoadTimeout(),
	})

	// Recommendation sources
	var spotifyClient recommend.SpotifyClient
	if cfg.Spotify.Enabled() {
		c, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return fmt.Errorf("failed to create Spotify client: %w", err)
		}
		spotifyClient = c
	}
	sources, err := recommend.NewSourcesFromConfig(cfg.Recommend.Sources, spotifyClient)
	if err != nil {
		return fmt.Errorf("invalid recommend config: %w", err)
	}
	fetcher := recommend.NewFetcher(sources, cfg.Recommend.Limit, cfg.Recommend.Timeout())

	// Audio output. Downloaded streams are cached once the synchronizer exists.
	cache := &trackCache{}
	engine.SetPlayer(newPlayer(store, cache, cfg))

	var fetch persistence.FetchFunc
	if len(sources) > 0 && len(cfg.Recommend.Queries) > 0 {
		fetch = fetcher.FetchFunc(cfg.Recommend.Queries)
	}
	restored := persistence.Restore(ctx, store, engine, persistence.RestoreOptions{
		AutoPlay: cfg.Playback.StartOnRestore(),
		Fetch:    fetch,
	})
	zlog.Info().Msgf("State restored: queue=%d source=%s history=%d playlists=%d current=%t",
		len(restored.Queue), restored.QueueSource, len(restored.Previous), len(restored.Playlists), restored.Current != nil)

	synchronizer := persistence.NewSynchronizer(store, stateStore, persistence.Config{
		Debounce:     cfg.Persistence.Debounce(),
		WriteTimeout: cfg.Persistence.WriteTimeout(),
		MaxBlobSize:  cfg.Persistence.MaxBlobSize(),
	})
	cache.attach(synchronizer)

	// Media surfaces
	var finder apiconnect.Finder
	if len(sources) > 0 {
		finder = fetcher
	}
	remote := apiconnect.NewRemoteService(engine, finder, notification.NewManager())
	surfaces := []mediacontrol.Surface{remote}

	var mprisServer *mpris.Server
	if cfg.Media.MPRIS {
		s, err := mpris.New(cfg.Media.PlayerName, app.Name)
		if err != nil {
			zlog.Warn().Msgf("MPRIS unavailable, continuing without it: %v", err)
		} else {
			mprisServer = s
			surfaces = append(surfaces, s)
		}
	}

	var controls mediacontrol.Controls = engine
	var buttons *gesture.Buttons
	if cfg.Media.Gestures {
		buttons = gesture.New(engine, cfg.Playback.TapWindow())
		controls = gestureControls{Engine: engine, buttons: buttons}
	}
	bridge := mediacontrol.NewBridge(stateStore, controls, surfaces...)

	var onQueueEmpty func()
	if cfg.Recommend.Refill && len(sources) > 0 {
		r := &refiller{
			engine:  engine,
			fetcher: fetcher,
			store:   store,
			seeds:   cfg.Recommend.SeedCount,
			timeout: cfg.Recommend.Timeout(),
		}
		onQueueEmpty = r.refill
	}
	eventsDone := watchEvents(engine.Events(), onQueueEmpty)

	// Remote control server
	var opts []connect.HandlerOption
	if cfg.Server.RemoteToken != "" {
		opts = append(opts, connect.WithInterceptors(apiconnect.NewRemoteAuthInterceptor(cfg.Server.RemoteToken)))
	} else {
		zlog.Warn().Msg("server.remote_token is empty, remote control is unauthenticated")
	}
	mux := http.NewServeMux()
	mux.Handle(remote.Handler(opts...))

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})
	go func() {
		zlog.Info().Msgf("Starting remote control server: addr=%s", cfg.Server.Addr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()
	<-serverStartedCh
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Detach surfaces and end streams before the server waits for connections.
	if buttons != nil {
		buttons.Close()
	}
	bridge.Close()
	remote.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	engine.Close()
	<-eventsDone
	synchronizer.Close()

	if mprisServer != nil {
		if err := mprisServer.Close(); err != nil {
			zlog.Warn().Msgf("Failed to close MPRIS connection: %v", err)
		}
	}

	zlog.Info().Msg("Daemon stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// printConfig prints the effective configuration.
func printConfig(cfg *config.Config) {
	fmt.Println("Config OK")
	fmt.Printf("  %-20s %s\n", "server.addr", cfg.Server.Addr)
	fmt.Printf("  %-20s %s (%s)\n", "store", cfg.Store.Driver, cfg.Store.Path)
	fmt.Printf("  %-20s %s\n", "media.output", cfg.Media.Output)
	fmt.Printf("  %-20s %t\n", "media.mpris", cfg.Media.MPRIS)
	fmt.Printf("  %-20s %t\n", "spotify", cfg.Spotify.Enabled())
	for i, s := range cfg.Recommend.Sources {
		name := s.Name
		if name == "" {
			name = s.Type
		}
		fmt.Printf("  source[%d]            %s (%s)\n", i, name, s.Type)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// sh -c allows redirection and pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
