// internal/catalog/domain.go
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	// DefaultPageSize is the number of posts a listing shows when no limit is given.
	DefaultPageSize = 75
	// DefaultMaxPageSize bounds ListingRequest.Limit unless the loader is configured otherwise.
	DefaultMaxPageSize = 100
	// DefaultFreshness is how long an upstream response is served from cache.
	DefaultFreshness = 10 * time.Second
)

// Item is a single image post as published by the upstream catalog.
type Item struct {
	ID          ItemID `json:"id"`
	Author      string `json:"author"`
	AuthorURL   string `json:"author_url,omitempty"`
	PostURL     string `json:"post_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// UnmarshalJSON accepts both shapes the catalog produces: /list names the
// source page "post_url" while /id/{id}/info names it "url".
func (i *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	var raw struct {
		plain
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = Item(raw.plain)
	if i.PostURL == "" {
		i.PostURL = raw.URL
	}
	return nil
}

// ItemID is the catalog's identifier. The listing endpoint encodes it as a
// number and the detail endpoint as a string; both decode to the same value.
type ItemID string

func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("catalog: missing item id")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ItemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("catalog: item id %s: %w", data, err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("catalog: item id %s is not an integer", data)
	}
	*id = ItemID(n.String())
	return nil
}

func (id ItemID) String() string { return string(id) }

// ListingRequest describes one page of posts. All filters are applied to the
// single upstream listing; none of them causes an additional upstream call.
type ListingRequest struct {
	// Limit is the page size. Zero selects DefaultPageSize.
	Limit int `json:"limit,omitempty"`
	// Author keeps only posts by exactly this author.
	Author string `json:"author,omitempty"`
	// Search keeps posts whose author contains the term, ignoring case.
	Search string `json:"search,omitempty"`
	// RelatedTo keeps posts related to the given item: a different id and a
	// different author.
	RelatedTo ItemID `json:"related_to,omitempty"`
}

// ListingResult is an ordered page of posts in catalog order.
type ListingResult struct {
	Items []Item `json:"items"`
	// Total is the number of posts that matched before the page was cut to Limit.
	Total     int       `json:"total"`
	// FetchedAt is when the upstream listing behind the page was fetched, not
	// when the page was served.
	FetchedAt time.Time `json:"fetched_at"`
}

// Len returns the number of items on the page.
func (r ListingResult) Len() int { return len(r.Items) }
