package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/John-Robertt/subsync-go/internal/httpapi"
	"github.com/John-Robertt/subsync-go/internal/mapping"
	"github.com/sirupsen/logrus"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", "127.0.0.1:25500", "HTTP 监听地址")
	readHeaderTimeout := fs.Duration("read-header-timeout", 5*time.Second, "HTTP ReadHeaderTimeout（请求头读取超时）")
	syncTimeout := fs.Duration("sync-timeout", 120*time.Second, "单次同步的总超时（包含远程拉取）")
	fetchTimeout := fs.Duration("fetch-timeout", 30*time.Second, "单次远程拉取的超时（每个 URL 一次请求）")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "收到退出信号后的优雅退出等待时间")
	allowLocal := fs.Bool("allow-local", false, "允许同步定义读取本地文件（source: local）")
	baseDir := fs.String("base-dir", "", "本地相对路径的根目录")
	mappings := fs.String("mappings", "", "映射定义文件；/api/mapping/apply 未提供规则时使用")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opt := httpapi.Options{
		SyncTimeout:       *syncTimeout,
		FetchTimeout:      *fetchTimeout,
		AllowLocalSources: *allowLocal,
		BaseDir:           *baseDir,
		Log:               logrus.StandardLogger(),
	}
	if *mappings != "" {
		def, err := mapping.Store{Path: *mappings}.Load()
		if err != nil {
			return err
		}
		opt.Mappings = def
		logrus.Infoln("loaded mapping definition:", *mappings)
	}

	srv := &http.Server{
		Addr:              *listen,
		Handler:           httpapi.NewHandlerWithOptions(opt),
		ReadHeaderTimeout: *readHeaderTimeout,
	}

	logrus.Infof("listening on http://%s", *listen)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logrus.Infoln("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			logrus.WithError(err).Warnln("graceful shutdown failed")
			_ = srv.Close()
		}

		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}
