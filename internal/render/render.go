// Package render turns backend content lists into outgoing message
// segments and formats user-facing failures.
package render

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/uika/tsugu-go-bot/internal/msgcat"
	"github.com/uika/tsugu-go-bot/internal/redconn"
	"github.com/uika/tsugu-go-bot/pkg/tsugudto"
)

type Renderer struct {
	cat *msgcat.Catalog
}

func New(cat *msgcat.Catalog) *Renderer { return &Renderer{cat: cat} }

// Segments converts an ordered backend content list into message segments,
// preserving order. A single undecodable image fails the whole render so a
// half-composed message never goes out.
func (r *Renderer) Segments(items []tsugudto.ContentItem) ([]redconn.Segment, error) {
	segments := make([]redconn.Segment, 0, len(items))
	for i, item := range items {
		switch item.Type {
		case tsugudto.ContentTypeString:
			segments = append(segments, redconn.Text(item.String))
		case tsugudto.ContentTypeBase64:
			raw, err := base64.StdEncoding.DecodeString(item.String)
			if err != nil {
				return nil, fmt.Errorf("decode image item %d: %w", i, err)
			}
			segments = append(segments, redconn.Image(raw))
		default:
			return nil, fmt.Errorf("unknown content item type %q", item.Type)
		}
	}
	return segments, nil
}

// Failure formats an error for the user. Backend failures carry their own
// user-facing message; everything else relays the error text behind the
// same prefix.
func (r *Renderer) Failure(err error) string {
	var backendErr *tsugudto.BackendError
	if errors.As(err, &backendErr) {
		return r.cat.Text("errors.prefix") + backendErr.Message
	}
	return r.cat.Text("errors.prefix") + err.Error()
}
