package domain

import (
	"encoding/json"
	"fmt"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// Metadata holds the descriptive facts extracted from a decoded image.
// Width and height always come from the decoded pixel buffer; Tags carries
// whatever embedded EXIF tags were present, keyed by lowercased tag name.
type Metadata struct {
	Width  int
	Height int
	Tags   map[string]string
}

// Tensor is a backend-ready numeric array produced by a preprocessing recipe.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Elements returns the number of values the shape describes.
func (t *Tensor) Elements() int64 {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Analysis is the unified answer assembled for one request. Sub-fields stay
// empty when the corresponding backend was unavailable; partial results are
// preferred over total failure.
type Analysis struct {
	Metadata       Metadata
	NSFWScore      *float64
	Classification map[string]float64
	MIME           string
}

// MarshalJSON flattens the record into the wire contract: width, height and
// each metadata tag at the top level, plus optional nsfw_score, classification
// and mime fields. A non-finite score makes encoding fail, which the server
// converts into the empty fail-open body.
func (a Analysis) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Metadata.Tags)+4)
	for k, v := range a.Metadata.Tags {
		out[k] = v
	}
	out["width"] = a.Metadata.Width
	out["height"] = a.Metadata.Height
	if a.NSFWScore != nil {
		out["nsfw_score"] = *a.NSFWScore
	}
	if len(a.Classification) > 0 {
		out["classification"] = a.Classification
	}
	if a.MIME != "" {
		out["mime"] = a.MIME
	}
	return json.Marshal(out)
}

var errInvalidURL = fmt.Errorf("invalid url")

// SourceDomain validates an image URL and returns its registrable domain.
func SourceDomain(src string) (string, error) {
	u, err := url.Parse(src)
	if err != nil {
		return "", err
	}
	if u.String() == "" || u.Host == "" {
		return "", errInvalidURL
	}

	dom, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
	if err != nil {
		return "", errInvalidURL
	}
	return dom, nil
}
