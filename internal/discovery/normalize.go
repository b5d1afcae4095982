package discovery

import (
	"fmt"

	"github.com/sells-group/business-finder/internal/model"
)

// DefaultCategoryTags lists the tag keys consulted for a business category,
// highest priority first.
var DefaultCategoryTags = []string{"amenity", "shop", "office", "leisure", "tourism"}

// Normalizer turns raw tagged points into a deduplicated business list.
// It holds no state between calls.
type Normalizer struct {
	categoryTags []string
}

// NewNormalizer creates a Normalizer using DefaultCategoryTags.
func NewNormalizer() *Normalizer {
	return &Normalizer{categoryTags: DefaultCategoryTags}
}

// Normalize keeps named records only, derives category, address and website
// from their tags, and drops later records whose name was already seen.
// Output order is the order of first occurrence. One progress event is
// emitted per input record.
func (n *Normalizer) Normalize(records []model.RawPointRecord, progress model.ProgressFunc) []model.Business {
	total := len(records)
	seen := make(map[string]struct{}, total)
	out := make([]model.Business, 0, total)

	for i, rec := range records {
		progress.Emit(i+1, total, fmt.Sprintf("Processing nodes: %d/%d", i+1, total))

		name := rec.Tags["name"]
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		var website *string
		if w := rec.Tags["website"]; w != "" {
			website = &w
		}
		out = append(out, model.NewBusiness(
			name,
			rec.Tags["addr:street"]+" "+rec.Tags["addr:housenumber"],
			n.category(rec.Tags),
			website,
			rec.Latitude,
			rec.Longitude,
		))
	}
	return out
}

func (n *Normalizer) category(tags map[string]string) string {
	for _, key := range n.categoryTags {
		if v := tags[key]; v != "" {
			return v
		}
	}
	return model.DefaultCategory
}
