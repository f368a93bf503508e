package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"time"

	server "gamesession/server"
	"gamesession/server/internal/collaborators"
	"gamesession/server/internal/observability"
	"gamesession/server/internal/storage"
	"gamesession/server/internal/telemetry"
	"gamesession/server/internal/transport"
	"gamesession/server/logging"
	loggingSinks "gamesession/server/logging/sinks"
)

// Config configures a Run invocation. Observability.EnablePprofTrace has a
// teacher-matching "parse from environment, log and fall back to default on
// failure" counterpart (ENABLE_PPROF_TRACE, see SPEC_FULL.md §10
// Configuration); Logger is set only by the caller.
type Config struct {
	Logger        telemetry.Logger
	Observability observability.Config
}

// Run wires the Engine to its storage/transport/collaborator adapters and
// serves HTTP until ctx is cancelled or the server fails.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	logConfig := logging.DefaultConfig()
	consoleSink := loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console)
	router, err := logging.NewRouter(logging.ClockFunc(time.Now), logConfig, []logging.NamedSink{
		{Name: "console", Sink: consoleSink},
	})
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(ctx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	metrics := &logging.Metrics{}
	telemetryMetrics := telemetry.WrapMetrics(metrics)

	dbPath := os.Getenv("GAME_DB_PATH")
	if dbPath == "" {
		dbPath = "gamesession.db"
	}
	repo, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open storage at %q: %w", dbPath, err)
	}
	defer func() {
		if cerr := repo.Close(); cerr != nil {
			telemetryLogger.Printf("failed to close storage: %v", cerr)
		}
	}()

	featuredMod := os.Getenv("FEATURED_MOD")
	if featuredMod == "" {
		featuredMod = "faf"
	}

	maps := collaborators.NewMapStore(nil)
	mods := collaborators.NewLadder1v1ModStore(featuredMod)
	rating := collaborators.NewRatingStore()
	stats := collaborators.NewStatsSink()
	divisions := collaborators.NewDivisionBoard()
	directory := collaborators.NewDirectory()

	channel, conns := transport.NewChannel()

	seed, err := repo.FindMaxID(ctx)
	if err != nil {
		telemetryLogger.Printf("failed to read max game id, starting from 0: %v", err)
		seed = 0
	}

	engine := server.NewEngine(seed, server.EngineConfig{
		Clients:    channel,
		Repository: repo,
		Maps:       collaborators.NewTracedMapService(maps),
		Mods:       collaborators.NewTracedModService(mods),
		Rating:     collaborators.NewTracedRatingService(rating),
		Stats:      collaborators.NewTracedStatsService(stats),
		Divisions:  collaborators.NewTracedDivisionService(divisions),
		Players:    directory,
		Logger:     telemetryLogger,
		Metrics:    telemetryMetrics,
		Publisher:  telemetry.CorrelatedPublisher(router),
	})

	// Games orphaned by a prior crash (still PLAYING/OPEN with no process
	// alive to end them) are marked UNKNOWN_RESULT at boot rather than left
	// to look permanently in-progress (spec.md §12).
	if err := engine.UpdateUnfinishedGamesValidity(ctx); err != nil {
		telemetryLogger.Printf("failed to sweep unfinished games validity: %v", err)
	}

	directory.OnOnline = func(player *server.Player) {
		list := engine.GameListFor(player)
		if err := channel.SendGameList(ctx, list, player); err != nil {
			telemetryLogger.Printf("send game list to %d on connect: %v", player.ID, err)
		}
	}

	observabilityCfg := cfg.Observability
	if raw := os.Getenv("ENABLE_PPROF_TRACE"); raw != "" {
		if value, perr := strconv.ParseBool(raw); perr == nil {
			observabilityCfg.EnablePprofTrace = value
		} else {
			telemetryLogger.Printf("invalid ENABLE_PPROF_TRACE=%q: %v", raw, perr)
		}
	}

	handler := transport.NewHandler(engine, conns, directory, transport.HandlerConfig{
		Logger: logAdapter(telemetryLogger),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.Handle)
	if observabilityCfg.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: mux}
	telemetryLogger.Printf("server listening on %s", srv.Addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// logAdapter bridges telemetry.Logger to the stdlib *log.Logger the
// transport handler's HandlerConfig expects, matching the teacher's
// internal/net/ws.HandlerConfig.Logger field type.
func logAdapter(l telemetry.Logger) *log.Logger {
	return log.New(&printfWriter{l}, "", 0)
}

type printfWriter struct {
	l telemetry.Logger
}

func (w *printfWriter) Write(p []byte) (int, error) {
	w.l.Printf("%s", string(p))
	return len(p), nil
}
