package imaging

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/dchistyakov/image-insight/internal/core/domain"
)

// Decode turns raw bytes into a pixel buffer and a metadata record. Width and
// height always come from the decoded bounds; EXIF extraction is best effort
// and absent tags are simply omitted, never defaulted.
func Decode(data []byte) (image.Image, *domain.Metadata, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, domain.WrapError(domain.ErrDecode, "decode image", err)
	}

	bounds := img.Bounds()
	md := &domain.Metadata{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Tags:   map[string]string{},
	}

	if x, err := exif.Decode(bytes.NewReader(data)); err == nil {
		_ = x.Walk(tagCollector{tags: md.Tags})
	}
	return img, md, nil
}

// tagCollector flattens EXIF fields into the metadata tag map, lowercasing
// the decoded tag name.
type tagCollector struct {
	tags map[string]string
}

func (c tagCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	value := strings.Trim(tag.String(), `"`)
	if value == "" {
		return nil
	}
	c.tags[strings.ToLower(string(name))] = value
	return nil
}
