package catalog

import (
	"fmt"
	"strings"
)

const (
	// DefaultImageBase is where sized renditions of a post are served.
	DefaultImageBase = "https://picsum.photos"

	DefaultImageWidth  = 250
	DefaultImageHeight = 375

	DefaultRelatedLimit     = 3
	DefaultAuthorPostsLimit = 5
)

// buildListing applies req to an already fetched, de-duplicated listing.
func buildListing(all []Item, req ListingRequest) (ListingResult, error) {
	var anchor *Item
	if req.RelatedTo != "" {
		for i := range all {
			if all[i].ID == req.RelatedTo {
				anchor = &all[i]
				break
			}
		}
		if anchor == nil {
			return ListingResult{}, fmt.Errorf("related to %s: %w", req.RelatedTo, ErrNotFound)
		}
	}
	search := strings.ToLower(req.Search)

	result := ListingResult{Items: make([]Item, 0, min(req.Limit, len(all)))}
	for _, item := range all {
		if req.Author != "" && item.Author != req.Author {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(item.Author), search) {
			continue
		}
		if anchor != nil && (item.ID == anchor.ID || item.Author == anchor.Author) {
			continue
		}
		result.Total++
		if len(result.Items) < req.Limit {
			result.Items = append(result.Items, item)
		}
	}
	return result, nil
}

// dedupe keeps the first occurrence of every id, in catalog order.
func dedupe(items []Item) []Item {
	seen := make(map[ItemID]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}

// DeriveRelated selects up to limit posts from an already fetched result whose
// id differs from excludeID and whose author differs from excludeAuthor.
// Catalog order is preserved and no I/O is performed.
func DeriveRelated(result ListingResult, excludeID ItemID, excludeAuthor string, limit int) ListingResult {
	return pick(result, limit, func(item Item) bool {
		return item.ID != excludeID && item.Author != excludeAuthor
	})
}

// AuthorPosts selects up to limit posts by author from an already fetched result.
func AuthorPosts(result ListingResult, author string, limit int) ListingResult {
	return pick(result, limit, func(item Item) bool {
		return item.Author == author
	})
}

func pick(result ListingResult, limit int, keep func(Item) bool) ListingResult {
	out := ListingResult{Items: []Item{}, FetchedAt: result.FetchedAt}
	if limit <= 0 {
		return out
	}
	for _, item := range result.Items {
		if !keep(item) {
			continue
		}
		out.Total++
		if len(out.Items) < limit {
			out.Items = append(out.Items, item)
		}
	}
	return out
}

// ImageURL returns the address of a width×height rendition of the post.
// Non-positive dimensions fall back to the card size.
func ImageURL(base string, id ItemID, width, height int) string {
	if base == "" {
		base = DefaultImageBase
	}
	if width <= 0 {
		width = DefaultImageWidth
	}
	if height <= 0 {
		height = DefaultImageHeight
	}
	return fmt.Sprintf("%s/id/%s/%d/%d", strings.TrimRight(base, "/"), id, width, height)
}

// AuthorHandle extracts the "@name" part of an author profile URL.
func AuthorHandle(authorURL string) string {
	i := strings.LastIndex(authorURL, "@")
	if i < 0 {
		return ""
	}
	return strings.TrimRight(authorURL[i:], "/")
}
