package retailers

import (
	"log/slog"
	"net/http"

	"github.com/cheapfinder/backend/internal/scraper"
)

// Options configures the default retailer set.
type Options struct {
	Client   *http.Client
	Renderer Renderer // nil disables the browser fallback
	Gate     Gate     // paces searches and browser renders; nil disables pacing
	Logger   *slog.Logger
}

// NewRegistry registers every supported retailer, with the generic scraper
// as the URL fallback.
func NewRegistry(opts Options) *scraper.Registry {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	nrml := NewNRML(opts.Client, opts.Logger)
	livestock := NewLivestock(opts.Client, opts.Logger)
	bbs := NewBlueButton(opts.Client, opts.Logger)
	ssense := NewSSENSE(opts.Client, opts.Renderer, opts.Logger)
	pages := []*PageScraper{
		NewHaven(opts.Client),
		NewSimons(opts.Client),
		NewSportingLife(opts.Client),
		NewNordstrom(opts.Client),
		NewHipStore(opts.Client),
		NewAltitudeSports(opts.Client, opts.Renderer),
		NewGeneric(opts.Client),
	}

	nrml.Gate, livestock.Gate, bbs.Gate, ssense.Gate = opts.Gate, opts.Gate, opts.Gate, opts.Gate

	reg := scraper.NewRegistry()
	all := []scraper.Scraper{nrml, livestock, bbs, ssense}
	for _, p := range pages {
		p.Gate = opts.Gate
		all = append(all, p)
	}
	for _, s := range all {
		_ = reg.Register(s)
	}
	reg.SetFallback("generic")

	return reg
}
