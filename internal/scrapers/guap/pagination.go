package guap

import (
	"context"
	"fmt"
	"guapassist-backend/lib/htmlutil"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxPages stops a pagination loop on a portal that keeps offering a next page.
const maxPages = 100

// PageControl is the pagination control leading to the next page. Href is
// empty for controls that only work through a click.
type PageControl struct {
	Href     string
	Selector string
}

func isNextLabel(text, ariaLabel string) bool {
	text = strings.TrimSpace(text)
	return strings.Contains(strings.ToLower(ariaLabel), "next") ||
		text == "›" ||
		text == "»" ||
		strings.Contains(strings.ToLower(text), "следующая")
}

// elementPath is a selector matching exactly the first node of sel, built
// from the position of the node and each of its ancestors.
func elementPath(sel *goquery.Selection) string {
	parts := []string{}
	for node := sel.First(); node.Length() > 0; node = node.Parent() {
		name := goquery.NodeName(node)
		if name == "html" {
			break
		}
		parts = append(parts, fmt.Sprintf("%s:nth-child(%d)", name, node.Index()+1))
	}
	parts = append(parts, "html")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func controlOf(base *url.URL, item *goquery.Selection) (PageControl, bool) {
	if item.HasClass("disabled") || item.HasClass("active") {
		return PageControl{}, false
	}
	link := item.Find(".page-link").First()
	if link.Length() == 0 {
		return PageControl{}, false
	}
	return PageControl{
		Href:     htmlutil.Href(base, link),
		Selector: elementPath(link),
	}, true
}

func nextInList(base *url.URL, items *goquery.Selection) (PageControl, bool) {
	var found *goquery.Selection
	items.EachWithBreak(func(_ int, item *goquery.Selection) bool {
		link := item.Find(".page-link").First()
		if link.Length() == 0 {
			return true
		}
		aria, _ := link.Attr("aria-label")
		if !isNextLabel(link.Text(), aria) {
			return true
		}
		if item.HasClass("disabled") || item.HasClass("active") {
			return true
		}
		found = item
		return false
	})
	if found != nil {
		return controlOf(base, found)
	}

	if items.Length() == 0 {
		return PageControl{}, false
	}
	return controlOf(base, items.Last())
}

// NextPage finds the control for the next page: a "next" labelled item that
// is neither disabled nor active, or failing that the last item if it is
// neither. Every pagination list is searched on its own, the first one
// offering a next page wins.
func NextPage(base *url.URL, doc *goquery.Document) (PageControl, bool) {
	lists := doc.Find(".pagination")
	if lists.Length() == 0 {
		return nextInList(base, doc.Find(".page-item"))
	}

	var control PageControl
	found := false
	lists.EachWithBreak(func(_ int, list *goquery.Selection) bool {
		control, found = nextInList(base, list.Find(".page-item"))
		return !found
	})
	return control, found
}

type advanceFunc func(ctx context.Context, control PageControl) (*goquery.Document, error)

// collectPages parses first and every following page until total records
// are collected, no next control remains or a page adds nothing new.
// Records are merged by key, the first occurrence wins.
func collectPages[T any](
	ctx context.Context,
	base *url.URL,
	first *goquery.Document,
	total int,
	parse func(base *url.URL, doc *goquery.Document) []T,
	key func(T) string,
	advance advanceFunc,
) ([]T, int, error) {
	seen := map[string]struct{}{}
	acc := []T{}
	doc := first
	pages := 0

	for {
		pages++
		added := 0
		for _, record := range parse(base, doc) {
			k := key(record)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			acc = append(acc, record)
			added++
		}

		if len(acc) >= total || added == 0 || pages >= maxPages {
			return acc, pages, nil
		}
		control, ok := NextPage(base, doc)
		if !ok {
			return acc, pages, nil
		}

		next, err := advance(ctx, control)
		if err != nil {
			return acc, pages, err
		}
		doc = next
	}
}
