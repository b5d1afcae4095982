package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/business-finder/internal/model"
)

func TestNormalize_DropsUnnamed(t *testing.T) {
	out := NewNormalizer().Normalize([]model.RawPointRecord{
		node(1, map[string]string{"amenity": "bench"}),
		node(2, map[string]string{"name": "Cafe", "amenity": "cafe"}),
	}, nil)

	require.Len(t, out, 1)
	assert.Equal(t, "Cafe", out[0].Name)
}

func TestNormalize_DropsEmptyName(t *testing.T) {
	out := NewNormalizer().Normalize([]model.RawPointRecord{
		node(1, map[string]string{"name": "", "amenity": "cafe"}),
		node(2, map[string]string{"name": "Bakery", "shop": "bakery"}),
	}, nil)

	require.Len(t, out, 1)
	assert.Equal(t, "Bakery", out[0].Name)
}

func TestNormalize_CategoryPriority(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]string
		want string
	}{
		{"amenity beats shop", map[string]string{"amenity": "restaurant", "shop": "bakery"}, "restaurant"},
		{"shop beats office", map[string]string{"shop": "books", "office": "company"}, "books"},
		{"office beats leisure", map[string]string{"office": "lawyer", "leisure": "park"}, "lawyer"},
		{"leisure beats tourism", map[string]string{"leisure": "fitness_centre", "tourism": "hotel"}, "fitness_centre"},
		{"tourism", map[string]string{"tourism": "museum"}, "museum"},
		{"empty amenity skipped", map[string]string{"amenity": "", "shop": "florist"}, "florist"},
		{"none", map[string]string{"craft": "brewery"}, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.tags["name"] = "X"
			out := NewNormalizer().Normalize([]model.RawPointRecord{node(1, tt.tags)}, nil)
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].Category)
		})
	}
}

func TestNormalize_AddressNotTrimmed(t *testing.T) {
	out := NewNormalizer().Normalize([]model.RawPointRecord{
		node(1, map[string]string{"name": "A", "addr:street": "Pearl Street", "addr:housenumber": "1108"}),
		node(2, map[string]string{"name": "B", "addr:street": "Walnut Street"}),
		node(3, map[string]string{"name": "C"}),
	}, nil)

	require.Len(t, out, 3)
	assert.Equal(t, "Pearl Street 1108", out[0].Address)
	assert.Equal(t, "Walnut Street ", out[1].Address)
	assert.Equal(t, " ", out[2].Address)
}

func TestNormalize_Website(t *testing.T) {
	out := NewNormalizer().Normalize([]model.RawPointRecord{
		node(1, map[string]string{"name": "A", "website": "https://a.example"}),
		node(2, map[string]string{"name": "B", "website": ""}),
	}, nil)

	require.Len(t, out, 2)
	require.NotNil(t, out[0].Website)
	assert.Equal(t, "https://a.example", *out[0].Website)
	assert.True(t, out[0].Complete)
	assert.Nil(t, out[1].Website)
	assert.False(t, out[1].Complete)
}

func TestNormalize_DedupFirstWins(t *testing.T) {
	out := NewNormalizer().Normalize([]model.RawPointRecord{
		node(1, map[string]string{"name": "Snooze", "amenity": "restaurant"}),
		node(2, map[string]string{"name": "Ozo Coffee", "amenity": "cafe"}),
		node(3, map[string]string{"name": "Snooze", "amenity": "cafe", "website": "https://snooze.example"}),
		node(4, map[string]string{"name": "Alpine Modern", "shop": "gift"}),
	}, nil)

	require.Len(t, out, 3)
	assert.Equal(t, []string{"Snooze", "Ozo Coffee", "Alpine Modern"}, []string{out[0].Name, out[1].Name, out[2].Name})
	assert.Equal(t, "restaurant", out[0].Category)
	assert.Nil(t, out[0].Website)
	assert.InDelta(t, 40.001, out[0].Latitude, 1e-9)
}

func TestNormalize_Idempotent(t *testing.T) {
	records := []model.RawPointRecord{
		node(1, map[string]string{"name": "A", "amenity": "bar"}),
		node(2, map[string]string{"name": "A"}),
		node(3, map[string]string{"name": "B", "website": "https://b.example"}),
	}
	n := NewNormalizer()
	first := n.Normalize(records, nil)
	second := n.Normalize(records, nil)
	assert.Equal(t, first, second)
}

func TestNormalize_Progress(t *testing.T) {
	var events []model.Progress
	NewNormalizer().Normalize([]model.RawPointRecord{
		node(1, map[string]string{"name": "A"}),
		node(2, map[string]string{}),
	}, func(p model.Progress) { events = append(events, p) })

	require.Len(t, events, 2)
	assert.Equal(t, model.Progress{Current: 1, Total: 2, Message: "Processing nodes: 1/2"}, events[0])
	assert.Equal(t, 2, events[1].Current)
}

func TestNormalize_Empty(t *testing.T) {
	out := NewNormalizer().Normalize(nil, nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
