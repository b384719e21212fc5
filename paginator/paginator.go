// Package paginator follows service cursors across list pages.
//
// A Paginator is single use: it can be drained either with HasNext/NextPage
// or with one range over Pages, never both and never twice.
package paginator

import (
	"context"
	"errors"
	"iter"
)

var (
	// ErrAlreadyIterated is returned when a paginator is iterated again.
	ErrAlreadyIterated = errors.New("paginator: already iterated")
	// ErrNoMorePages is returned by NextPage after the last page.
	ErrNoMorePages = errors.New("paginator: no more pages")
)

// FetchFunc issues one list call.
type FetchFunc[Req, Page any] func(ctx context.Context, req Req) (Page, error)

// AdvanceFunc threads the cursor of page into the next request. more is
// false when page is the last one.
type AdvanceFunc[Req, Page any] func(req Req, page Page) (next Req, more bool)

// Paginator iterates pages of a list operation. It is not safe for
// concurrent use.
type Paginator[Req, Page any] struct {
	req     Req
	fetch   FetchFunc[Req, Page]
	advance AdvanceFunc[Req, Page]

	started bool
	ranged  bool
	done    bool
}

// New returns a paginator starting from req.
func New[Req, Page any](req Req, fetch FetchFunc[Req, Page], advance AdvanceFunc[Req, Page]) *Paginator[Req, Page] {
	return &Paginator[Req, Page]{req: req, fetch: fetch, advance: advance}
}

// HasNext reports whether NextPage would fetch another page.
func (p *Paginator[Req, Page]) HasNext() bool {
	return !p.done && !p.ranged
}

// NextPage fetches the next page. A failed fetch can be retried by calling
// NextPage again; the cursor only moves on success.
func (p *Paginator[Req, Page]) NextPage(ctx context.Context) (Page, error) {
	var zero Page
	if p.ranged {
		return zero, ErrAlreadyIterated
	}
	if p.done {
		return zero, ErrNoMorePages
	}
	p.started = true
	return p.next(ctx)
}

// Pages returns a range-over-func sequence over the remaining pages. The
// sequence yields a single ErrAlreadyIterated error when the paginator was
// already used. Iteration stops after the first fetch error.
func (p *Paginator[Req, Page]) Pages(ctx context.Context) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		var zero Page
		if p.started || p.ranged {
			yield(zero, ErrAlreadyIterated)
			return
		}
		p.ranged = true
		for !p.done {
			page, err := p.next(ctx)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

func (p *Paginator[Req, Page]) next(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		var zero Page
		return zero, err
	}
	page, err := p.fetch(ctx, p.req)
	if err != nil {
		return page, err
	}
	next, more := p.advance(p.req, page)
	p.req = next
	p.done = !more
	return page, nil
}
