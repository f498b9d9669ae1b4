package apify

// Post types reported by the Instagram scraper actor
const (
	TypeImage   = "GraphImage"
	TypeVideo   = "GraphVideo"
	TypeSidecar = "GraphSidecar"
)

// Carousel children are labelled with the short names
const (
	ChildTypeImage = "Image"
	ChildTypeVideo = "Video"
)

// RawPost is one dataset item as returned by the actor
type RawPost struct {
	ID               string          `json:"id"`
	Type             string          `json:"type"`
	ShortCode        string          `json:"shortCode,omitempty"`
	URL              string          `json:"url,omitempty"`
	DisplayURL       string          `json:"displayUrl,omitempty"`
	VideoURL         string          `json:"videoUrl,omitempty"`
	DimensionsWidth  int             `json:"dimensionsWidth,omitempty"`
	DimensionsHeight int             `json:"dimensionsHeight,omitempty"`
	Caption          string          `json:"caption,omitempty"`
	OwnerUsername    string          `json:"ownerUsername,omitempty"`
	Timestamp        string          `json:"timestamp,omitempty"`
	ChildPosts       []RawPost       `json:"childPosts,omitempty"`
	Images           []string        `json:"images,omitempty"`
	ImageResources   []ImageResource `json:"imageResources,omitempty"`
}

// ImageResource is one rendition of an image
type ImageResource struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// RunInput is the actor input for a single post lookup
type RunInput struct {
	DirectURLs    []string `json:"directUrls"`
	ResultsType   string   `json:"resultsType"`
	ResultsLimit  int      `json:"resultsLimit"`
	AddParentData bool     `json:"addParentData"`
	SearchType    string   `json:"searchType"`
	SearchLimit   int      `json:"searchLimit"`
}

// Run describes an actor run
type Run struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

type runEnvelope struct {
	Data Run `json:"data"`
}
