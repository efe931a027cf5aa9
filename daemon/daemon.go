// Package daemon wires every component together into the running process:
// one tick drives collect -> enrich -> track -> broadcast, while the
// streaming server's accept loop and the forensics worker run alongside
// the tick timer.
package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hluisi/roguehunter/collector"
	"github.com/hluisi/roguehunter/config"
	"github.com/hluisi/roguehunter/forensics"
	"github.com/hluisi/roguehunter/model"
	"github.com/hluisi/roguehunter/platform"
	"github.com/hluisi/roguehunter/ring"
	"github.com/hluisi/roguehunter/storage"
	"github.com/hluisi/roguehunter/stream"
	"github.com/hluisi/roguehunter/telemetry"
	"github.com/hluisi/roguehunter/tracker"
)

// forensicsDrainTimeout bounds how long shutdown waits for an in-flight
// forensics capture before giving up.
const forensicsDrainTimeout = 30 * time.Second

// pruneInterval is how often the daemon runs storage.Store.Prune against
// retention.events_days. Daily is frequent enough that the prune horizon
// never drifts by more than a day.
const pruneInterval = 24 * time.Hour

// Daemon owns every component for one running process.
type Daemon struct {
	cfg     config.Config
	pidFile string

	reader     platform.Reader
	coll       *collector.Collector
	window     *ring.Window
	store      *storage.Store
	trk        *tracker.Tracker
	orch       *forensics.Orchestrator
	srv        *stream.Server
	metrics    *telemetry.Metrics
	metricsSrv *http.Server
	bootTime   time.Time

	forensicsWG sync.WaitGroup
}

// New constructs every component, opening the store and binding the
// streaming socket, but starts no goroutines and no tick loop; call Run
// to start the daemon.
func New(cfg config.Config, pidFile string) (*Daemon, error) {
	reader, err := platform.NewReader()
	if err != nil {
		return nil, fmt.Errorf("daemon: new platform reader: %w", err)
	}

	coll, err := collector.New(reader, cfg.CollectorConfig())
	if err != nil {
		return nil, fmt.Errorf("daemon: new collector: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0700); err != nil {
		return nil, fmt.Errorf("daemon: create data dir: %w", err)
	}
	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("daemon: open storage: %w", err)
	}

	window := ring.NewWindow(cfg.System.RingBufferSize)

	d := &Daemon{
		cfg:     cfg,
		pidFile: pidFile,
		reader:  reader,
		coll:    coll,
		window:  window,
		store:   store,
	}

	runner := forensics.NewExecRunner(forensicsDrainTimeout)
	d.orch = forensics.New(store, runner, forensics.Config{
		DebounceSeconds: cfg.System.ForensicsDebounce,
		LogWindow:       time.Duration(cfg.System.ForensicsDebounce * float64(time.Second)),
		CommandTimeout:  forensicsDrainTimeout,
	})

	d.bootTime = coll.SystemInfo().BootTime
	d.trk = tracker.New(store, cfg.TrackerConfig(cfg.SampleInterval()), float64(d.bootTime.Unix()), d.handleForensicsTrigger)

	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0700); err != nil {
		return nil, fmt.Errorf("daemon: create socket dir: %w", err)
	}
	srv, err := stream.Listen(cfg.SocketPath, window.Freeze, d.handleClientLog)
	if err != nil {
		return nil, fmt.Errorf("daemon: listen on socket: %w", err)
	}
	d.srv = srv

	d.metrics = telemetry.New(d.trk.Tracked, d.srv.ClientCount)
	d.orch.OnCapture(d.metrics.ObserveForensicsCapture)
	if cfg.Telemetry.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", d.metrics.Handler())
		d.metricsSrv = &http.Server{Addr: cfg.Telemetry.Addr, Handler: mux}
	}

	return d, nil
}

// Run starts the daemon and blocks until a terminate signal arrives or ctx
// is cancelled. Shutdown drains the current tick, stops the timer, closes
// sockets, drains the forensics worker with a bound, closes the DB, and
// unlinks the socket.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.writePIDFile(); err != nil {
		return err
	}
	defer os.Remove(d.pidFile)

	if err := d.trk.Restore(ctx); err != nil {
		return fmt.Errorf("daemon: restore tracker state: %w", err)
	}

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()
	go func() {
		if err := d.srv.Serve(streamCtx); err != nil {
			log.Printf("roguehunterd: stream server stopped: %v", err)
		}
	}()

	if d.metricsSrv != nil {
		go func() {
			if err := d.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("roguehunterd: metrics server stopped: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(d.cfg.SampleInterval())
	defer ticker.Stop()

	pruneTicker := time.NewTicker(pruneInterval)
	defer pruneTicker.Stop()

	log.Printf("roguehunterd started (pid=%d, interval=%s, db=%s, socket=%s, host booted %s)",
		os.Getpid(), d.cfg.SampleInterval(), d.cfg.DatabasePath, d.cfg.SocketPath, humanize.Time(d.bootTime))

	d.prune()

	for {
		select {
		case <-ctx.Done():
			return d.shutdown()
		case <-sigCh:
			log.Printf("roguehunterd: received shutdown signal")
			return d.shutdown()
		case <-ticker.C:
			if err := d.tick(ctx); err != nil {
				log.Printf("roguehunterd: tick error: %v", err)
			}
		case <-pruneTicker.C:
			d.prune()
		}
	}
}

// prune deletes closed events older than retention.events_days and their
// cascaded rows.
func (d *Daemon) prune() {
	n, err := d.store.Prune(d.cfg.Retention.EventsDays)
	if err != nil {
		log.Printf("roguehunterd: prune failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("roguehunterd: pruned %s event(s) older than %d days", humanize.Comma(int64(n)), d.cfg.Retention.EventsDays)
	}
}

// tick runs one cycle: collect -> enrich -> tracker update -> broadcast.
// Tracker writes are durable before the broadcast goes out.
func (d *Daemon) tick(ctx context.Context) error {
	start := time.Now()

	batch, err := d.coll.Collect()
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	d.window.Push(batch)
	enriched := d.window.ComputeLowHigh(batch)
	d.window.UpdateLatest(enriched)

	for _, rogue := range enriched.Rogues {
		if rogue.Band.Current == string(model.BandCritical) {
			log.Printf("roguehunterd: pid %d (%s) critical band, score=%d mem=%s",
				rogue.PID, rogue.Command, rogue.Score, humanize.Bytes(uint64(rogue.Mem.Current)))
		}
	}

	if err := d.trk.Update(ctx, enriched.Rogues, enriched.Timestamp); err != nil {
		return fmt.Errorf("tracker update: %w", err)
	}

	d.srv.Broadcast(enriched)
	d.metrics.ObserveTick(time.Since(start), enriched)
	return nil
}

// handleForensicsTrigger is the tracker's async forensics callback. It
// tracks in-flight captures in forensicsWG so shutdown can bound its wait.
func (d *Daemon) handleForensicsTrigger(ctx context.Context, trig tracker.ForensicsTrigger) {
	d.forensicsWG.Add(1)
	defer d.forensicsWG.Done()

	window := d.window.Freeze()
	label := fmt.Sprintf("band:%s", trig.Band)
	if err := d.orch.Capture(ctx, trig.EventID, trig.PID, label, window); err != nil {
		log.Printf("roguehunterd: forensics capture failed for pid %d: %v", trig.PID, err)
		return
	}
	log.Printf("roguehunterd: forensics capture recorded for pid %d event %s", trig.PID, trig.EventID)
}

func (d *Daemon) handleClientLog(msg model.LogMessage) {
	log.Printf("roguehunterd: [client:%s/%s] %s", msg.Source, msg.Level, msg.Message)
}

// shutdown closes the socket server, drains in-flight forensics captures
// up to a bound, and closes storage last.
func (d *Daemon) shutdown() error {
	if err := d.srv.Close(); err != nil {
		log.Printf("roguehunterd: close stream server: %v", err)
	}

	drained := make(chan struct{})
	go func() {
		d.forensicsWG.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(forensicsDrainTimeout):
		log.Printf("roguehunterd: forensics worker did not drain within %s, continuing shutdown", forensicsDrainTimeout)
	}

	if d.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.metricsSrv.Shutdown(shutdownCtx)
	}

	if err := d.store.Close(); err != nil {
		return fmt.Errorf("daemon: close storage: %w", err)
	}
	log.Printf("roguehunterd: shut down cleanly")
	return nil
}

func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(d.pidFile), 0700); err != nil {
		return fmt.Errorf("daemon: create pid file dir: %w", err)
	}
	return os.WriteFile(d.pidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0600)
}
