// Package merger runs a sync: it fetches the master config and every
// secondary source, normalizes their nodes, and merges the selected nodes
// into the master's outbounds.
package merger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/John-Robertt/subsync-go/internal/fetch"
	"github.com/John-Robertt/subsync-go/internal/match"
	"github.com/John-Robertt/subsync-go/internal/model"
	"github.com/John-Robertt/subsync-go/internal/normalize"
	"github.com/John-Robertt/subsync-go/internal/sub/ss"
	"github.com/John-Robertt/subsync-go/internal/syncdef"
	"github.com/dlclark/regexp2"
	"github.com/mohae/deepcopy"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Fetcher loads the text behind a sync location. *fetch.Loader implements it.
type Fetcher interface {
	Load(ctx context.Context, kind fetch.Kind, loc syncdef.Location) (string, error)
}

type Options struct {
	FetchConcurrency int // default 4
	Match            match.Options

	// Rand drives node_selection: random. Nil uses math/rand/v2.
	Rand Permuter
}

func (o Options) withDefaults() Options {
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = 4
	}
	if o.Rand == nil {
		o.Rand = globalRand{}
	}
	return o
}

type Merger struct {
	Fetcher Fetcher
	Log     logrus.FieldLogger
	Options Options
}

const (
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

type SourceReport struct {
	Name    string          `json:"name"`
	Status  string          `json:"status"`
	Nodes   int             `json:"nodes"`
	Updated int             `json:"updated"`
	Added   int             `json:"added"`
	Skipped int             `json:"skipped,omitempty"`
	Error   *model.AppError `json:"error,omitempty"`
}

// Warning records a node map entry that resolved to nothing, or an outbound
// dropped to keep tags unique. The affected slot is left as it was.
type Warning struct {
	Source    string `json:"source,omitempty"`
	MasterTag string `json:"master_tag,omitempty"`
	Want      string `json:"want,omitempty"`
	Reason    string `json:"reason"`
}

type Result struct {
	Config   map[string]any `json:"config"`
	Updated  int            `json:"updated"`
	Added    int            `json:"added"`
	Sources  []SourceReport `json:"sources"`
	Warnings []Warning      `json:"warnings"`
}

// SourceError is a fetch or parse failure of one secondary source. It is
// reported and the source is skipped.
type SourceError struct {
	Source string
	Cause  error
}

func (e *SourceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("source %q: %v", e.Source, e.Cause)
}

func (e *SourceError) Unwrap() error { return e.Cause }

func (m *Merger) log() logrus.FieldLogger {
	if m.Log == nil {
		return logrus.StandardLogger()
	}
	return m.Log
}

// RunDocument parses a sync definition and runs it.
func (m *Merger) RunDocument(ctx context.Context, sourceURL, text string) (*Result, error) {
	def, err := syncdef.Parse(sourceURL, text)
	if err != nil {
		return nil, err
	}
	return m.Run(ctx, def)
}

// Run executes one sync. Only a missing or unreadable master config fails the
// run; source failures are reported in the result.
func (m *Merger) Run(ctx context.Context, def *syncdef.Definition) (*Result, error) {
	if def == nil {
		return nil, errors.New("nil sync definition")
	}
	if m.Fetcher == nil {
		return nil, errors.New("merger has no fetcher")
	}
	opt := m.Options.withDefaults()
	log := m.log()

	master, err := m.loadMaster(ctx, def.Master)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(def.Sources))
	errs := make([]error, len(def.Sources))
	var g errgroup.Group
	g.SetLimit(opt.FetchConcurrency)
	for i, src := range def.Sources {
		if src.Err != nil || !src.Enabled {
			continue
		}
		g.Go(func() error {
			texts[i], errs[i] = m.Fetcher.Load(ctx, fetch.KindSource, src.Location)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := &run{
		log:     log,
		opt:     opt,
		matcher: match.New(opt.Match),
		out:     newOutboundSet(master),
		res:     &Result{Config: master, Sources: make([]SourceReport, 0, len(def.Sources)), Warnings: []Warning{}},
	}
	for i, src := range def.Sources {
		st.source(src, texts[i], errs[i])
	}
	st.dedupe()
	master["outbounds"] = st.out.list

	log.WithFields(logrus.Fields{
		"updated":  st.res.Updated,
		"added":    st.res.Added,
		"sources":  len(def.Sources),
		"warnings": len(st.res.Warnings),
	}).Info("sync finished")
	return st.res, nil
}

// loadMaster returns a private working copy of the master config tree.
func (m *Merger) loadMaster(ctx context.Context, loc syncdef.Location) (map[string]any, error) {
	target := loc.Target()
	text, err := m.Fetcher.Load(ctx, fetch.KindMaster, loc)
	if err != nil {
		return nil, masterError("MASTER_FETCH_ERROR", "主配置拉取失败", "fetch_master", target, err)
	}

	hint := loc.ConfigType
	switch hint {
	case "", model.ConfigAuto:
		hint = model.ConfigSingBox
	case model.ConfigSingBox:
	default:
		return nil, masterError("MASTER_TYPE_UNSUPPORTED", fmt.Sprintf("主配置必须是 sing-box 配置，得到 %s", hint), "parse_master", target, nil)
	}
	doc, err := normalize.Parse(target, text, hint)
	if err != nil {
		return nil, masterError("MASTER_PARSE_ERROR", "主配置解析失败", "parse_master", target, err)
	}
	return deepcopy.Copy(doc.Tree).(map[string]any), nil
}

func masterError(code, message, stage, target string, cause error) *syncdef.ConfigError {
	return &syncdef.ConfigError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   stage,
			URL:     target,
		},
		Cause: cause,
	}
}

// run is the state of one sync. It owns the working copy of the master.
type run struct {
	log     logrus.FieldLogger
	opt     Options
	matcher *match.Matcher
	out     *outboundSet
	res     *Result
}

func (r *run) source(src syncdef.Source, text string, fetchErr error) {
	rep := SourceReport{Name: src.Name, Status: StatusOK}
	log := r.log.WithField("source", src.Name)
	defer func() { r.res.Sources = append(r.res.Sources, rep) }()

	fail := func(err error) {
		rep.Status = StatusFailed
		rep.Error = appErrorOf(&SourceError{Source: src.Name, Cause: err})
		log.WithError(err).Warn("source skipped")
	}
	if src.Err != nil {
		fail(src.Err)
		return
	}
	if !src.Enabled {
		rep.Status = StatusDisabled
		log.Debug("source disabled")
		return
	}
	if fetchErr != nil {
		fail(fetchErr)
		return
	}
	doc, err := normalize.Parse(src.Target(), text, src.ConfigType)
	if err != nil {
		fail(err)
		return
	}
	if len(doc.Skipped) > 0 {
		rep.Skipped = len(doc.Skipped)
		log.WithField("skipped", len(doc.Skipped)).Warn("share links skipped")
	}

	nodes := filterTypes(normalize.Nodes(doc, src.Name, src.Priority), src.Filter)
	rep.Nodes = len(nodes)

	switch src.SyncMode {
	case syncdef.ModeMappedOnly:
		scoped := applyScope(nodes, src.NodeScope, r.opt.Rand, log, src.Name)
		rep.Updated, rep.Added = r.mergeMapped(src, nodes, scoped, log)
	case syncdef.ModeAll:
		rep.Updated, rep.Added = r.mergeNodes(nodes, log)
	default:
		scoped := applyScope(nodes, src.NodeScope, r.opt.Rand, log, src.Name)
		rep.Updated, rep.Added = r.mergeNodes(scoped, log)
	}
	r.res.Updated += rep.Updated
	r.res.Added += rep.Added
}

// mergeNodes writes every node under its own tag.
func (r *run) mergeNodes(nodes []model.Node, log logrus.FieldLogger) (updated, added int) {
	for _, n := range nodes {
		if n.Tag == "" {
			log.WithField("server", n.Server).Warn("node without tag skipped")
			continue
		}
		if r.out.put(n.Tag, nodeConfig(n, n.Tag)) {
			updated++
		} else {
			added++
		}
	}
	return updated, added
}

// mergeMapped resolves each node map entry, in master tag order, to one
// node. Exact tags and /regex/ values search all nodes; fuzzy matching only
// searches the scoped candidates.
func (r *run) mergeMapped(src syncdef.Source, nodes, scoped []model.Node, log logrus.FieldLogger) (updated, added int) {
	masterTags := make([]string, 0, len(src.NodeMaps))
	for k := range src.NodeMaps {
		masterTags = append(masterTags, k)
	}
	sort.Strings(masterTags)

	scopedTags := make([]string, len(scoped))
	for i, n := range scoped {
		scopedTags[i] = n.Tag
	}

	for _, masterTag := range masterTags {
		want := src.NodeMaps[masterTag]
		entry := log.WithFields(logrus.Fields{"master_tag": masterTag, "want": want})

		node, score, reason := r.resolve(want, nodes, scoped, scopedTags)
		if node == nil {
			r.res.Warnings = append(r.res.Warnings, Warning{Source: src.Name, MasterTag: masterTag, Want: want, Reason: reason})
			entry.WithField("reason", reason).Warn("node map entry unmatched")
			continue
		}
		entry.WithFields(logrus.Fields{"source_tag": node.Tag, "score": score}).Debug("node mapped")
		if r.out.put(masterTag, nodeConfig(*node, masterTag)) {
			updated++
		} else {
			added++
		}
	}
	return updated, added
}

func (r *run) resolve(want string, nodes, scoped []model.Node, scopedTags []string) (*model.Node, float64, string) {
	if expr, ok := regexValue(want); ok {
		re, err := compilePattern(expr, regexp2.ECMAScript|regexp2.IgnoreCase)
		if err != nil {
			return nil, 0, "invalid regex: " + err.Error()
		}
		for i := range nodes {
			if ok, err := re.MatchString(nodes[i].Tag); err == nil && ok {
				return &nodes[i], 1, ""
			}
		}
		return nil, 0, "no node matches regex"
	}
	for i := range nodes {
		if nodes[i].Tag == want {
			return &nodes[i], 1, ""
		}
	}
	if m, ok := r.matcher.FindBestMatch(want, scopedTags); ok {
		return &scoped[m.Index], m.Score, ""
	}
	return nil, 0, "no node above similarity threshold"
}

// regexValue reports a node map value written as /expr/.
func regexValue(s string) (string, bool) {
	if len(s) > 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		return s[1 : len(s)-1], true
	}
	return "", false
}

// dedupe drops later outbounds whose tag was already seen.
func (r *run) dedupe() {
	seen := make(map[string]struct{}, len(r.out.list))
	kept := r.out.list[:0]
	for _, item := range r.out.list {
		tag := outboundTag(item)
		if tag != "" {
			if _, dup := seen[tag]; dup {
				r.res.Warnings = append(r.res.Warnings, Warning{MasterTag: tag, Reason: "duplicate outbound tag dropped"})
				r.log.WithField("tag", tag).Warn("duplicate outbound tag dropped")
				continue
			}
			seen[tag] = struct{}{}
		}
		kept = append(kept, item)
	}
	r.out.list = kept
}

// nodeConfig is a private copy of n's outbound, renamed to tag.
func nodeConfig(n model.Node, tag string) map[string]any {
	cfg, _ := deepcopy.Copy(n.Config).(map[string]any)
	if cfg == nil {
		cfg = map[string]any{}
	}
	cfg["tag"] = tag
	return cfg
}

// outboundSet is the master's outbounds indexed by tag.
type outboundSet struct {
	list  []any
	index map[string]int
}

func newOutboundSet(master map[string]any) *outboundSet {
	list, _ := master["outbounds"].([]any)
	s := &outboundSet{list: list, index: make(map[string]int, len(list))}
	if s.list == nil {
		s.list = []any{}
	}
	for i, item := range s.list {
		if tag := outboundTag(item); tag != "" {
			if _, ok := s.index[tag]; !ok {
				s.index[tag] = i
			}
		}
	}
	return s
}

// put replaces the outbound tagged tag and reports true, or appends cfg.
func (s *outboundSet) put(tag string, cfg map[string]any) bool {
	if i, ok := s.index[tag]; ok {
		s.list[i] = cfg
		return true
	}
	s.index[tag] = len(s.list)
	s.list = append(s.list, cfg)
	return false
}

func outboundTag(item any) string {
	m, ok := item.(map[string]any)
	if !ok {
		return ""
	}
	tag, _ := m["tag"].(string)
	return tag
}

// appErrorOf extracts the structured payload of a stage error.
func appErrorOf(err error) *model.AppError {
	var (
		fe *fetch.FetchError
		pe *normalize.ParseError
		se *ss.ParseError
		ce *syncdef.ConfigError
	)
	switch {
	case errors.As(err, &fe):
		e := fe.AppError
		return &e
	case errors.As(err, &pe):
		e := pe.AppError
		return &e
	case errors.As(err, &se):
		e := se.AppError
		return &e
	case errors.As(err, &ce):
		e := ce.AppError
		return &e
	}
	return &model.AppError{Code: "SOURCE_ERROR", Message: err.Error(), Stage: "sync_source"}
}
