package catalog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDeriveRelated(t *testing.T) {
	fetched := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	listing := ListingResult{Items: fixture(10), Total: 10, FetchedAt: fetched}

	related := DeriveRelated(listing, "1", "Paul Jarvis", 3)
	require.Len(t, related.Items, 3)
	assert.Equal(t, []ItemID{"0", "2", "3"}, ids(related.Items))
	assert.Equal(t, 7, related.Total)
	assert.Equal(t, fetched, related.FetchedAt)

	empty := DeriveRelated(listing, "1", "Paul Jarvis", 0)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)

	none := DeriveRelated(ListingResult{}, "1", "Paul Jarvis", 3)
	assert.Empty(t, none.Items)
}

func TestDeriveRelatedProperties(t *testing.T) {
	authors := []string{"a", "b", "c", "d"}
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(t, "n")
		items := make([]Item, n)
		for i := range items {
			items[i] = Item{
				ID:     ItemID(rapid.StringMatching(`[0-9]{1,3}`).Draw(t, "id")),
				Author: rapid.SampledFrom(authors).Draw(t, "author"),
			}
		}
		items = dedupe(items)
		excludeID := ItemID(rapid.StringMatching(`[0-9]{1,3}`).Draw(t, "exclude_id"))
		excludeAuthor := rapid.SampledFrom(authors).Draw(t, "exclude_author")
		limit := rapid.IntRange(-2, 10).Draw(t, "limit")

		got := DeriveRelated(ListingResult{Items: items}, excludeID, excludeAuthor, limit)

		if len(got.Items) > max(limit, 0) {
			t.Fatalf("got %d items, limit %d", len(got.Items), limit)
		}
		for _, item := range got.Items {
			if item.ID == excludeID || item.Author == excludeAuthor {
				t.Fatalf("excluded item %+v returned", item)
			}
		}
		// Result is a prefix of the eligible items in catalog order.
		var eligible []Item
		for _, item := range items {
			if item.ID != excludeID && item.Author != excludeAuthor {
				eligible = append(eligible, item)
			}
		}
		for i, item := range got.Items {
			if eligible[i] != item {
				t.Fatalf("position %d: got %+v, want %+v", i, item, eligible[i])
			}
		}
		if limit > 0 && len(got.Items) < min(limit, len(eligible)) {
			t.Fatalf("got %d items, %d eligible", len(got.Items), len(eligible))
		}
	})
}

func TestAuthorPosts(t *testing.T) {
	listing := ListingResult{Items: fixture(20)}

	posts := AuthorPosts(listing, "Tina Rataj", DefaultAuthorPostsLimit)
	require.Len(t, posts.Items, DefaultAuthorPostsLimit)
	for _, item := range posts.Items {
		assert.Equal(t, "Tina Rataj", item.Author)
	}
	assert.Equal(t, 6, posts.Total)

	assert.Empty(t, AuthorPosts(listing, "Nobody", 5).Items)
}

func TestBuildListingCombinesFilters(t *testing.T) {
	res, err := buildListing(fixture(12), ListingRequest{Limit: 10, Search: "a", RelatedTo: "1"})
	require.NoError(t, err)
	for _, item := range res.Items {
		assert.NotEqual(t, "Paul Jarvis", item.Author)
	}
	assert.Equal(t, 8, res.Total)

	res, err = buildListing(fixture(12), ListingRequest{Limit: 10, Author: "Paul Jarvis", RelatedTo: "0"})
	require.NoError(t, err)
	assert.Equal(t, []ItemID{"1", "4", "7", "10"}, ids(res.Items))
}

func TestImageURL(t *testing.T) {
	assert.Equal(t, "https://picsum.photos/id/10/250/375", ImageURL("", "10", 0, 0))
	assert.Equal(t, "http://img.test/id/7/800/600", ImageURL("http://img.test/", "7", 800, 600))
}

func TestAuthorHandle(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://unsplash.com/@alejandroescamilla", "@alejandroescamilla"},
		{"https://unsplash.com/@paul_jarvis/", "@paul_jarvis"},
		{"https://unsplash.com/photos/yC-Yzbqy7PY", ""},
		{"", ""},
		{"https://example.com/@first/and/@second", "@second"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AuthorHandle(tc.in), tc.in)
	}
}

func TestItemDecodesBothUpstreamShapes(t *testing.T) {
	t.Run("listing", func(t *testing.T) {
		var items []Item
		err := json.Unmarshal([]byte(`[{"id":0,"author":"Alejandro Escamilla","width":5616,"height":3744,"post_url":"https://unsplash.com/photos/yC-Yzbqy7PY","download_url":"https://picsum.photos/id/0/5616/3744"}]`), &items)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, ItemID("0"), items[0].ID)
		assert.Equal(t, "https://unsplash.com/photos/yC-Yzbqy7PY", items[0].PostURL)
		assert.Equal(t, 5616, items[0].Width)
	})

	t.Run("info", func(t *testing.T) {
		var item Item
		err := json.Unmarshal([]byte(`{"id":"10","author":"Paul Jarvis","width":2500,"height":1667,"url":"https://unsplash.com/photos/6J--NXulQCs","download_url":"https://picsum.photos/id/10/2500/1667"}`), &item)
		require.NoError(t, err)
		assert.Equal(t, ItemID("10"), item.ID)
		assert.Equal(t, "https://unsplash.com/photos/6J--NXulQCs", item.PostURL)
	})

	t.Run("bad ids", func(t *testing.T) {
		var item Item
		assert.Error(t, json.Unmarshal([]byte(`{"id":1.5}`), &item))
		assert.Error(t, json.Unmarshal([]byte(`{"id":null}`), &item))
	})
}

func ids(items []Item) []ItemID {
	out := make([]ItemID, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
