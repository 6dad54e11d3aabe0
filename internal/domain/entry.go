package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultCategory is used when the category list cannot be fetched or a
// label does not resolve.
const (
	DefaultCategoryName = "Uncategorized"
	DefaultCategoryID   = int64(1)
)

// Entry is one promotable piece of content. Title is its identity across
// the durable queue; once appended, only Promoted changes.
type Entry struct {
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	PromotionText string    `json:"promotion_text"`
	Payload       string    `json:"payload"`
	MediaURL      string    `json:"media_url"`
	Tags          []string  `json:"tags"`
	Promoted      bool      `json:"promoted"`
	CreatedAt     time.Time `json:"created_at"`
}

// RegisterRequest is the operator input for a new entry.
type RegisterRequest struct {
	Title         string   `json:"title" validate:"required"`
	Category      string   `json:"category"`
	PromotionText string   `json:"promotion_text" validate:"required"`
	Payload       string   `json:"payload" validate:"notblank"`
	Tags          []string `json:"tags"`
}

// Upload is an operator-supplied file (thumbnail image or video).
type Upload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Media is a file stored on the content-management backend.
type Media struct {
	ID        int64  `json:"id"`
	SourceURL string `json:"source_url"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Normalize trims the text fields and cleans the tag list in place. The
// payload is opaque markup and is kept byte for byte.
func (r *RegisterRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Category = strings.TrimSpace(r.Category)
	r.PromotionText = strings.TrimSpace(r.PromotionText)
	r.Tags = NormalizeTags(r.Tags)
}

// Validate normalizes the request and checks required fields.
// The returned error wraps ErrValidation and names the first missing field.
func (r *RegisterRequest) Validate() error {
	r.Normalize()
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("%w: %s is required", ErrValidation, verrs[0].Field())
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// NormalizeTags trims each tag, strips leading '#', and drops blanks.
// A comma separates tags, so "a,b" becomes two tags; normalized tags
// never contain one. Order is preserved.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimLeft(strings.TrimSpace(t), "#")
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			out = append(out, t)
		}
	}
	return out
}

// ParseTags reads the persisted comma-separated tag column. An empty
// column yields an empty, non-nil slice.
func ParseTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	return NormalizeTags(strings.Split(s, ","))
}

// JoinTags is the inverse of ParseTags.
func JoinTags(tags []string) string {
	return strings.Join(NormalizeTags(tags), ",")
}

// Unpromoted returns the entries whose Promoted flag is false, in order.
func Unpromoted(entries []*Entry) []*Entry {
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Promoted {
			out = append(out, e)
		}
	}
	return out
}
