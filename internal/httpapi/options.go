package httpapi

import (
	"time"

	"github.com/John-Robertt/subsync-go/internal/mapping"
	"github.com/John-Robertt/subsync-go/internal/match"
	"github.com/sirupsen/logrus"
)

// Options controls HTTP API runtime behavior.
type Options struct {
	// SyncTimeout is the hard upper bound for a single sync request
	// (master fetch + every source + merge).
	SyncTimeout time.Duration

	// FetchTimeout is the per-HTTP-request timeout used when fetching the
	// master config and the secondary sources.
	FetchTimeout time.Duration

	// AllowLocalSources lets sync definitions read local files. Off by
	// default: a remote caller must not read the server's filesystem.
	AllowLocalSources bool
	BaseDir           string

	// MaxBodyBytes caps request bodies. Default 1 MiB.
	MaxBodyBytes int64

	Match match.Options

	// Mappings is used by /api/mapping/apply when the request has none.
	// Nil means mapping.DefaultDefinition.
	Mappings *mapping.Definition

	Log logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.SyncTimeout <= 0 {
		o.SyncTimeout = 120 * time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 30 * time.Second
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 1 << 20
	}
	if o.Mappings == nil {
		o.Mappings = mapping.DefaultDefinition()
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	return o
}
