// Package pages composes page data from catalog loads. A page declares every
// piece of data it needs before anything is fetched; independent needs are
// resolved concurrently and derived data is computed from what was loaded.
package pages

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"gallery/internal/catalog"
)

var tracer = otel.Tracer("gallery/pages")

// Need is one piece of data a page requires.
type Need struct {
	key     string
	listing *catalog.ListingRequest
	item    catalog.ItemID
}

// NeedListing declares a listing.
func NeedListing(req catalog.ListingRequest) Need {
	return Need{
		key:     fmt.Sprintf("listing|%d|%s|%s|%s", req.Limit, req.Author, req.Search, req.RelatedTo),
		listing: &req,
	}
}

// NeedItem declares a single item.
func NeedItem(id catalog.ItemID) Need {
	return Need{key: "item|" + string(id), item: id}
}

// Key identifies the need inside a Bundle.
func (n Need) Key() string { return n.key }

// Bundle holds the outcome of every declared need. A failed need does not
// prevent the others from resolving.
type Bundle struct {
	mu       sync.Mutex
	listings map[string]catalog.ListingResult
	items    map[string]catalog.Item
	errs     map[string]error
}

func newBundle() *Bundle {
	return &Bundle{
		listings: make(map[string]catalog.ListingResult),
		items:    make(map[string]catalog.Item),
		errs:     make(map[string]error),
	}
}

// Listing returns the resolved listing for n or the error it failed with.
func (b *Bundle) Listing(n Need) (catalog.ListingResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.errs[n.key]; ok {
		return catalog.ListingResult{}, err
	}
	res, ok := b.listings[n.key]
	if !ok {
		return catalog.ListingResult{}, fmt.Errorf("pages: %s was not declared", n.key)
	}
	return res, nil
}

// Item returns the resolved item for n or the error it failed with.
func (b *Bundle) Item(n Need) (catalog.Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.errs[n.key]; ok {
		return catalog.Item{}, err
	}
	item, ok := b.items[n.key]
	if !ok {
		return catalog.Item{}, fmt.Errorf("pages: %s was not declared", n.key)
	}
	return item, nil
}

// Resolve loads every need concurrently and waits for all of them. The
// returned error is non-nil only when ctx ended before resolution; per-need
// failures are kept in the Bundle.
func Resolve(ctx context.Context, svc catalog.Service, needs ...Need) (*Bundle, error) {
	ctx, span := tracer.Start(ctx, "pages.resolve",
		trace.WithAttributes(attribute.Int("needs", len(needs))),
	)
	defer span.End()

	b := newBundle()
	seen := make(map[string]struct{}, len(needs))
	g, gctx := errgroup.WithContext(ctx)
	for _, n := range needs {
		if _, dup := seen[n.key]; dup {
			continue
		}
		seen[n.key] = struct{}{}

		g.Go(func() error {
			var err error
			switch {
			case n.listing != nil:
				var res catalog.ListingResult
				res, err = svc.FetchListing(gctx, *n.listing)
				if err == nil {
					b.mu.Lock()
					b.listings[n.key] = res
					b.mu.Unlock()
				}
			default:
				var item catalog.Item
				item, err = svc.FetchItem(gctx, n.item)
				if err == nil {
					b.mu.Lock()
					b.items[n.key] = item
					b.mu.Unlock()
				}
			}
			if err == nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			b.mu.Lock()
			b.errs[n.key] = err
			b.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return b, nil
}

// PostsPage is the data behind the posts grid.
type PostsPage struct {
	Request   catalog.ListingRequest `json:"request"`
	Posts     []Card                 `json:"posts"`
	Showing   int                    `json:"showing"`
	Total     int                    `json:"total"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// PostPage is the data behind a single post view.
type PostPage struct {
	Post        Card   `json:"post"`
	AuthorPosts []Card `json:"author_posts"`
	Related     []Card `json:"related"`
	// ListingError is set when the post loaded but the surrounding listing did not.
	ListingError string `json:"listing_error,omitempty"`
}

// Card is an item plus the presentation values derived from it.
type Card struct {
	Item         catalog.Item `json:"item"`
	ImageURL     string       `json:"image_url"`
	AuthorHandle string       `json:"author_handle,omitempty"`
}

// Builder composes pages on top of a loader.
type Builder struct {
	svc          catalog.Service
	imageBase    string
	relatedLimit int
	authorLimit  int
}

// NewBuilder returns a Builder with the default related and author post limits.
func NewBuilder(svc catalog.Service, imageBase string) *Builder {
	return &Builder{
		svc:          svc,
		imageBase:    imageBase,
		relatedLimit: catalog.DefaultRelatedLimit,
		authorLimit:  catalog.DefaultAuthorPostsLimit,
	}
}

// Posts loads one page of the posts grid.
func (b *Builder) Posts(ctx context.Context, req catalog.ListingRequest) (PostsPage, error) {
	res, err := b.svc.FetchListing(ctx, req)
	if err != nil {
		return PostsPage{}, err
	}
	return PostsPage{
		Request:   req,
		Posts:     b.cards(res.Items),
		Showing:   res.Len(),
		Total:     res.Total,
		UpdatedAt: res.FetchedAt,
	}, nil
}

// Post loads a single post together with posts by the same author and
// related posts. The item and the listing do not depend on each other and
// are requested together; both derived lists come from the one listing.
func (b *Builder) Post(ctx context.Context, id catalog.ItemID) (PostPage, error) {
	itemNeed := NeedItem(id)
	listingNeed := NeedListing(catalog.ListingRequest{})

	bundle, err := Resolve(ctx, b.svc, itemNeed, listingNeed)
	if err != nil {
		return PostPage{}, err
	}
	item, err := bundle.Item(itemNeed)
	if err != nil {
		return PostPage{}, err
	}

	page := PostPage{
		Post:        b.card(item),
		AuthorPosts: []Card{},
		Related:     []Card{},
	}
	listing, err := bundle.Listing(listingNeed)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidRequest) {
			return PostPage{}, err
		}
		page.ListingError = err.Error()
		return page, nil
	}
	page.AuthorPosts = b.cards(catalog.AuthorPosts(listing, item.Author, b.authorLimit).Items)
	page.Related = b.cards(catalog.DeriveRelated(listing, item.ID, item.Author, b.relatedLimit).Items)
	return page, nil
}

func (b *Builder) card(item catalog.Item) Card {
	return Card{
		Item:         item,
		ImageURL:     catalog.ImageURL(b.imageBase, item.ID, catalog.DefaultImageWidth, catalog.DefaultImageHeight),
		AuthorHandle: catalog.AuthorHandle(item.AuthorURL),
	}
}

func (b *Builder) cards(items []catalog.Item) []Card {
	out := make([]Card, 0, len(items))
	for _, item := range items {
		out = append(out, b.card(item))
	}
	return out
}
