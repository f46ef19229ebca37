package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/John-Robertt/subsync-go/internal/model"
	"github.com/John-Robertt/subsync-go/internal/syncdef"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"
)

// DefaultUserAgent is the fixed client identifier sent with every request.
const DefaultUserAgent = "subsync-go/1.0"

type Kind int

const (
	KindMaster Kind = iota
	KindSource
	KindDocument
)

func (k Kind) stage() string {
	switch k {
	case KindMaster:
		return "fetch_master"
	case KindSource:
		return "fetch_source"
	case KindDocument:
		return "fetch_document"
	default:
		return "fetch"
	}
}

func (k Kind) defaultMaxBytes() int64 {
	switch k {
	case KindMaster:
		return 2 * 1024 * 1024
	case KindSource:
		return 5 * 1024 * 1024
	default:
		return 1 * 1024 * 1024
	}
}

type Options struct {
	Timeout      time.Duration // default 30s
	MaxBytes     int64         // default per kind
	MaxRedirects int           // default 5
	UserAgent    string        // default DefaultUserAgent

	// BaseDir resolves relative local paths. Empty means the working directory.
	BaseDir string

	// Client overrides the HTTP client; Timeout and redirects are then the
	// client's business.
	Client *http.Client
}

func (o Options) withDefaults(kind Kind) Options {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxRedirects == 0 {
		o.MaxRedirects = 5
	}
	if o.MaxBytes == 0 {
		o.MaxBytes = kind.defaultMaxBytes()
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

type FetchError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

func newFetchError(status int, code, message, stage, target string, cause error) *FetchError {
	return &FetchError{
		Status: status,
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   stage,
			URL:     target,
		},
		Cause: cause,
	}
}

var (
	errTooManyRedirects   = errors.New("too many redirects")
	errRedirectBadScheme  = errors.New("redirect target scheme is not http/https")
	errInvalidURLOrScheme = errors.New("invalid url or scheme")
)

func FetchText(ctx context.Context, kind Kind, rawURL string) (string, error) {
	return FetchTextWithOptions(ctx, kind, rawURL, Options{})
}

// FetchTextWithOptions GETs rawURL and returns the decoded UTF-8 body.
// gzip and zstd response encodings are decoded before the size check.
func FetchTextWithOptions(ctx context.Context, kind Kind, rawURL string, opt Options) (string, error) {
	stage := kind.stage()
	opt = opt.withDefaults(kind)
	if opt.MaxBytes <= 0 {
		return "", newFetchError(http.StatusBadRequest, "INVALID_ARGUMENT", "响应大小上限必须大于 0", stage, rawURL, nil)
	}

	u, err := url.Parse(rawURL)
	if err != nil || u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", newFetchError(http.StatusBadRequest, "INVALID_ARGUMENT", "仅允许 http/https URL", stage, rawURL,
			errors.Join(errInvalidURLOrScheme, err))
	}

	client := opt.Client
	if client == nil {
		maxRedirects := opt.MaxRedirects
		client = &http.Client{
			Timeout:   opt.Timeout,
			Transport: http.DefaultTransport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// 1st redirect => len(via)==1.
				if len(via) > maxRedirects {
					return errTooManyRedirects
				}
				if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
					return errRedirectBadScheme
				}
				return nil
			},
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", newFetchError(http.StatusBadRequest, "INVALID_ARGUMENT", "请求 URL 不合法", stage, rawURL, err)
	}
	req.Header.Set("User-Agent", opt.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip, zstd")

	resp, err := client.Do(req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		switch {
		case errors.Is(err, errTooManyRedirects):
			return "", newFetchError(http.StatusBadGateway, "FETCH_FAILED",
				fmt.Sprintf("重定向次数超过上限（>%d）", opt.MaxRedirects), stage, rawURL, err)
		case errors.Is(err, errRedirectBadScheme):
			return "", newFetchError(http.StatusBadRequest, "INVALID_ARGUMENT", "重定向目标仅允许 http/https", stage, rawURL, err)
		case isTimeout(err):
			return "", newFetchError(http.StatusGatewayTimeout, "FETCH_TIMEOUT", "拉取远程资源超时", stage, rawURL, err)
		}
		return "", newFetchError(http.StatusBadGateway, "FETCH_FAILED", "拉取远程资源失败", stage, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newFetchError(http.StatusBadGateway, "FETCH_FAILED",
			fmt.Sprintf("上游返回非 2xx 状态码：%d", resp.StatusCode), stage, rawURL, nil)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return "", newFetchError(http.StatusBadGateway, "FETCH_FAILED", "上游响应解压失败", stage, rawURL, err)
	}
	defer body.Close()

	text, err := readLimited(body, opt.MaxBytes, stage, rawURL)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return "", err
		}
		if isTimeout(err) {
			return "", newFetchError(http.StatusGatewayTimeout, "FETCH_TIMEOUT", "拉取远程资源超时", stage, rawURL, err)
		}
		return "", newFetchError(http.StatusBadGateway, "FETCH_FAILED", "读取上游响应失败", stage, rawURL, err)
	}
	return text, nil
}

// ReadLocal reads a local file with the same size and encoding checks as a
// remote fetch. Relative paths resolve against opt.BaseDir.
func ReadLocal(kind Kind, path string, opt Options) (string, error) {
	stage := kind.stage()
	opt = opt.withDefaults(kind)
	if strings.TrimSpace(path) == "" {
		return "", newFetchError(http.StatusBadRequest, "INVALID_ARGUMENT", "本地路径不能为空", stage, path, nil)
	}
	if !filepath.IsAbs(path) && opt.BaseDir != "" {
		path = filepath.Join(opt.BaseDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", newFetchError(http.StatusNotFound, "FILE_NOT_FOUND", "本地文件不存在", stage, path, err)
		}
		return "", newFetchError(http.StatusInternalServerError, "FILE_READ_ERROR", "读取本地文件失败", stage, path, err)
	}
	defer f.Close()

	text, err := readLimited(f, opt.MaxBytes, stage, path)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return "", err
		}
		return "", newFetchError(http.StatusInternalServerError, "FILE_READ_ERROR", "读取本地文件失败", stage, path, err)
	}
	return text, nil
}

// readLimited reads at most maxBytes+1 to detect overflow deterministically.
func readLimited(r io.Reader, maxBytes int64, stage, target string) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(body)) > maxBytes {
		return "", newFetchError(http.StatusUnprocessableEntity, "TOO_LARGE",
			fmt.Sprintf("资源过大（>%d bytes）", maxBytes), stage, target, nil)
	}
	if !utf8.Valid(body) {
		return "", newFetchError(http.StatusUnprocessableEntity, "FETCH_INVALID_UTF8", "资源不是合法 UTF-8 文本", stage, target, nil)
	}
	return string(body), nil
}

func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		return zr, nil
	case "zstd":
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Loader fetches sync locations. Identical loads that are in flight at the
// same time share one fetch.
type Loader struct {
	Options Options

	group singleflight.Group
}

func (l *Loader) Load(ctx context.Context, kind Kind, loc syncdef.Location) (string, error) {
	key := fmt.Sprintf("%d|%s|%s", kind, loc.Source, loc.Target())
	v, err, _ := l.group.Do(key, func() (any, error) {
		if loc.Source == syncdef.SourceLocal {
			return ReadLocal(kind, loc.Path, l.Options)
		}
		return FetchTextWithOptions(ctx, kind, loc.URL, l.Options)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
