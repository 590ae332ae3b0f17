package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/bugsnag/panicwrap"
	"go.uber.org/zap"

	"github.com/plumed-nebula/yana/internal/api"
	"github.com/plumed-nebula/yana/internal/configure"
	"github.com/plumed-nebula/yana/internal/download"
	"github.com/plumed-nebula/yana/internal/gallery"
	"github.com/plumed-nebula/yana/internal/global"
	"github.com/plumed-nebula/yana/internal/health"
	"github.com/plumed-nebula/yana/internal/imagehost"
	"github.com/plumed-nebula/yana/internal/monitoring"
	"github.com/plumed-nebula/yana/internal/settings"
	"github.com/plumed-nebula/yana/internal/svc/prometheus"
	"github.com/plumed-nebula/yana/internal/svc/s3"
	"github.com/plumed-nebula/yana/internal/thumbnail"
	"github.com/plumed-nebula/yana/internal/upload"
)

var (
	Version = "development"
	Unix    = ""
	Time    = "unknown"
	User    = "unknown"
)

func init() {
	debug.SetGCPercent(2000)
	if i, err := strconv.Atoi(Unix); err == nil {
		Time = time.Unix(int64(i), 0).Format(time.RFC3339)
	}
}

func main() {
	config := configure.New()

	exitStatus, err := panicwrap.BasicWrap(func(s string) {
		zap.S().Error("panic: ", s)
	})
	if err != nil {
		zap.S().Errorw("failed to setup panic handler: ",
			"error", err,
		)
		os.Exit(2)
	}

	if exitStatus >= 0 {
		os.Exit(exitStatus)
	}

	if !config.NoHeader {
		zap.S().Info("Yana Media Pipeline")
		zap.S().Infof("Version: %s", Version)
		zap.S().Infof("build.Time: %s", Time)
		zap.S().Infof("build.User: %s", User)
	}

	zap.S().Debug("MaxProcs: ", runtime.GOMAXPROCS(0))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	gCtx, cancel := global.WithCancel(global.New(context.Background(), config))
	wg := sync.WaitGroup{}

	gCtx.Inst().Prometheus = prometheus.New(prometheus.Options{
		Labels: config.Monitoring.Labels.ToPrometheus(),
	})

	if config.S3.Endpoint != "" {
		s3Inst, err := s3.New(config)
		if err != nil {
			zap.S().Fatalw("failed to connect to s3",
				"error", err,
			)
		}

		gCtx.Inst().S3 = s3Inst
	}

	if config.Gallery.DataDir != "" {
		store, err := gallery.Open(config.Gallery.DataDir)
		if err != nil {
			zap.S().Fatalw("failed to open gallery store",
				"error", err,
			)
		}

		gCtx.Inst().Gallery = store
	}

	downloader := download.New(gCtx)

	thumbnails, err := thumbnail.New(gCtx, downloader)
	if err != nil {
		zap.S().Fatalw("failed to init thumbnail cache",
			"error", err,
		)
	}

	sets := settings.New(gCtx)
	uploader := upload.New()

	hosts, err := imagehost.New(gCtx)
	if err != nil {
		zap.S().Fatalw("failed to init image host registry",
			"error", err,
		)
	}

	if gCtx.Config().API.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-api.New(gCtx, thumbnails, sets, uploader, hosts)
		}()
	}
	if gCtx.Config().Health.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-health.New(gCtx)
		}()
	}
	if gCtx.Config().Monitoring.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-monitoring.New(gCtx)
		}()
	}

	done := make(chan struct{})
	go func() {
		<-sig
		cancel()
		go func() {
			select {
			case <-time.After(time.Minute):
			case <-sig:
			}
			zap.S().Fatal("force shutdown")
		}()

		zap.S().Info("shutting down")

		wg.Wait()

		if gCtx.Inst().Gallery != nil {
			_ = gCtx.Inst().Gallery.Close()
		}

		close(done)
	}()

	zap.S().Info("running")

	<-done

	zap.S().Info("shutdown")
	os.Exit(0)
}
