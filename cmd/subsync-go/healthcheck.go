package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

func runHealthcheckCmd(args []string) error {
	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	rawURL := fs.String("url", "", "完整的 healthz URL；为空时由 -listen 推导")
	listen := fs.String("listen", "127.0.0.1:25500", "服务监听地址")
	timeout := fs.Duration("timeout", 3*time.Second, "请求超时")
	if err := fs.Parse(args); err != nil {
		return err
	}
	target := *rawURL
	if target == "" {
		var err error
		target, err = deriveHealthzURL(*listen)
		if err != nil {
			return err
		}
	}
	return runHealthcheck(target, *timeout)
}

// deriveHealthzURL turns a listen address into a URL a local probe can dial.
// Wildcard hosts become 127.0.0.1.
func deriveHealthzURL(listen string) (string, error) {
	s := strings.TrimSpace(listen)
	if s == "" {
		return "", errors.New("empty listen address")
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", err
		}
		if u.Host == "" {
			return "", fmt.Errorf("invalid url %q", s)
		}
		u.Path = "/healthz"
		u.RawQuery = ""
		return u.String(), nil
	}
	if _, err := strconv.Atoi(s); err == nil {
		s = ":" + s
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/healthz", nil
}

func runHealthcheck(target string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(target)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
