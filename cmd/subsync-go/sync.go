package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/John-Robertt/subsync-go/internal/fetch"
	"github.com/John-Robertt/subsync-go/internal/merger"
	"github.com/John-Robertt/subsync-go/internal/render"
	"github.com/sirupsen/logrus"
)

type syncReport struct {
	Updated  int                   `json:"updated"`
	Added    int                   `json:"added"`
	Sources  []merger.SourceReport `json:"sources"`
	Warnings []merger.Warning      `json:"warnings"`
}

func runSync(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	config := fs.String("config", "", "同步定义文件（YAML/JSON）")
	out := fs.String("out", "", "合并后配置的输出文件；为空时写到标准输出")
	format := fs.String("format", "json", "输出格式：json/yaml")
	report := fs.String("report", "", "同步报告（JSON）输出文件；为空时不写")
	timeout := fs.Duration("timeout", 120*time.Second, "单次同步的总超时（包含远程拉取）")
	fetchTimeout := fs.Duration("fetch-timeout", 30*time.Second, "单次远程拉取的超时")
	concurrency := fs.Int("concurrency", 4, "同时拉取的订阅源数量")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *config == "" {
		return errors.New("sync: -config is required")
	}
	f, ok := render.ParseFormat(*format)
	if !ok {
		return fmt.Errorf("sync: unsupported -format %q (want json or yaml)", *format)
	}

	text, err := fetch.ReadLocal(fetch.KindDocument, *config, fetch.Options{})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := &merger.Merger{
		// Relative local paths in the definition resolve against its own directory.
		Fetcher: &fetch.Loader{Options: fetch.Options{Timeout: *fetchTimeout, BaseDir: filepath.Dir(*config)}},
		Log:     logrus.StandardLogger(),
		Options: merger.Options{FetchConcurrency: *concurrency},
	}
	res, err := m.RunDocument(ctx, *config, text)
	if err != nil {
		return err
	}

	b, err := render.Encode(res.Config, f)
	if err != nil {
		return err
	}
	if err := writeOutput(*out, b, stdout); err != nil {
		return err
	}

	if *report != "" {
		rb, err := render.Encode(syncReport{
			Updated:  res.Updated,
			Added:    res.Added,
			Sources:  res.Sources,
			Warnings: res.Warnings,
		}, render.FormatJSON)
		if err != nil {
			return err
		}
		if err := writeOutput(*report, rb, stdout); err != nil {
			return err
		}
	}

	for _, w := range res.Warnings {
		logrus.WithFields(logrus.Fields{"source": w.Source, "master_tag": w.MasterTag}).Warnln(w.Reason)
	}
	return nil
}
