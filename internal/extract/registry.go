package extract

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rankwatch/internal/models"
	"github.com/desertthunder/rankwatch/internal/shared"
)

// Options are the collaborators shared by every pipeline.
type Options struct {
	Providers shared.ProvidersConfig
	Geocoder  Geocoder
	Accuracy  float64
	Snapshots *Snapshotter
	// Settle is the wait after each navigation before reading the page.
	Settle time.Duration
	Logger *log.Logger
}

// NewRegistry wires one pipeline per provider.
func NewRegistry(opts Options) Registry {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	child := func(p models.Provider) *log.Logger { return logger.With("provider", p) }

	return Registry{
		models.ProviderDirectory:   NewDirectoryPipeline(opts.Providers.Directory, opts.Snapshots, opts.Settle, child(models.ProviderDirectory)),
		models.ProviderFeaturePage: NewFeaturePagePipeline(opts.Providers.FeaturePage, opts.Snapshots, opts.Settle, child(models.ProviderFeaturePage)),
		models.ProviderMapPack:     NewMapPackPipeline(opts.Providers.MapPack, opts.Geocoder, opts.Accuracy, opts.Snapshots, child(models.ProviderMapPack)),
		models.ProviderWebSearch:   NewWebSearchPipeline(opts.Providers.WebSearch, opts.Geocoder, opts.Accuracy, opts.Settle, opts.Snapshots, child(models.ProviderWebSearch)),
	}
}
