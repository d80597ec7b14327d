package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fornolabs/expedite/internal/admin"
	"github.com/fornolabs/expedite/internal/alert"
	cfgpkg "github.com/fornolabs/expedite/internal/config"
	"github.com/fornolabs/expedite/internal/dispatch"
	"github.com/fornolabs/expedite/internal/handlers"
	"github.com/fornolabs/expedite/internal/message"
	"github.com/fornolabs/expedite/internal/retry"
	"github.com/fornolabs/expedite/internal/runtime"
	httpserver "github.com/fornolabs/expedite/internal/server/http"
	pebblestore "github.com/fornolabs/expedite/internal/storage/pebble"
	logpkg "github.com/fornolabs/expedite/pkg/log"
)

// small wrapper to allow testing; replaced by os.Getenv at build time
var getenv = func(key string) string { return os.Getenv(key) }

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

type Options struct {
	DataDir       string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// AdminEmail is the operator address alert mails are addressed to.
	AdminEmail string
}

// Run assembles the node, starts the dispatcher, monitor, and HTTP server,
// and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers that
	// don't pass a signal-aware context still shut down cleanly.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	storeDir := filepath.Join(opts.DataDir, "store")

	logCfg := logpkg.Config{
		Level:  getenvDefault("EXPEDITE_LOG_LEVEL", "info"),
		Format: getenvDefault("EXPEDITE_LOG_FORMAT", "text"),
	}
	logger, err := logpkg.FromConfig(logCfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(logCfg.Level); e == nil {
			lvl = l
		}
		logger = logpkg.New(logpkg.WithLevel(lvl))
	}
	// Redirect stdlib logs (e.g. pebble) to our logger.
	logpkg.RedirectStdLog(logger)

	cfgpkg.FromEnv(&opts.Config)

	rt, err := runtime.Open(runtime.Options{
		DataDir:       storeDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config()
	logger.Info("starting expedite server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("level", logCfg.Level),
		logpkg.Str("format", logCfg.Format),
	)

	emitter := alert.NewEmitter(rt.Hub(), rt.Backend(), cfg.Alerts.Queue, logger)
	deps := &handlers.Deps{
		Orders:     rt.Orders(),
		Hub:        rt.Hub(),
		Queue:      rt.Backend(),
		Payments:   handlers.NewApprovingGateway(),
		Email:      handlers.NewLogEmailSender(logger),
		Push:       handlers.NewLogPushSender(logger),
		Analytics:  rt.Analytics(),
		Alerts:     emitter,
		Logger:     logger.With(logpkg.Component("handlers")),
		EmailQueue: "emails",
		PushQueue:  "notifications",
	}

	reg := dispatch.NewRegistry().
		Register(message.KindOrderCreate, handlers.OrderCreate{Deps: deps}).
		Register(message.KindOrderStatus, handlers.OrderStatus{Deps: deps}).
		Register(message.KindOrderCancel, handlers.OrderCancel{Deps: deps}).
		Register(message.KindEmailSend, handlers.EmailSend{Deps: deps}).
		Register(message.KindPushSend, handlers.PushSend{Deps: deps}).
		Register(message.KindAnalyticsIngest, handlers.AnalyticsIngest{Deps: deps}).
		Register(message.KindAdminEmail, handlers.AdminEmail{Deps: deps, Recipient: opts.AdminEmail})

	policy := retry.Policy{
		Base: time.Duration(cfg.Retry.BaseSeconds) * time.Second,
		Cap:  time.Duration(cfg.Retry.CapSeconds) * time.Second,
	}
	disp, err := dispatch.New(rt.Backend(), cfg, reg, policy, rt.Failures(), rt.Classifier(), emitter,
		logger.With(logpkg.Component("dispatch")))
	if err != nil {
		return err
	}
	disp.Start(sctx)

	monitor := admin.NewMonitor(rt.Backend(), rt.Failures(), emitter, cfg, logger.With(logpkg.Component("monitor")))
	monitor.Start(sctx)

	svc := admin.NewService(rt.Backend(), disp, rt.Failures(), cfg, logger.With(logpkg.Component("admin")))
	hsrv := httpserver.New(svc, rt.Hub(), logger.With(logpkg.Component("http")))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			logger.Error("http server failed", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	// Shut servers and workers down before the runtime so nothing touches a
	// closed database.
	hsrv.Close()
	monitor.Stop()
	disp.Stop()
	wg.Wait()
	return nil
}
