package render

// Placement puts the print output above or below the variables.
type Placement string

const (
	PlacementTop    Placement = "top"
	PlacementBottom Placement = "bottom"
)

// Format selects the document markup.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// DefaultSearchURL receives the query-escaped exception line.
const DefaultSearchURL = "https://www.google.com/search?q="

// Options is the static configuration a document is rendered with.
type Options struct {
	Placement       Placement
	ShowFooter      bool
	Format          Format
	SearchURL       string
	SkipLandingPage bool
}

func (o Options) withDefaults() Options {
	if o.Placement != PlacementTop {
		o.Placement = PlacementBottom
	}
	if o.Format != FormatMarkdown {
		o.Format = FormatHTML
	}
	if o.SearchURL == "" {
		o.SearchURL = DefaultSearchURL
	}
	return o
}
