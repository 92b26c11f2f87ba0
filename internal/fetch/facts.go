package fetch

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/a11y-auditor/internal/types"
)

// ExtractFacts parses rendered HTML and counts the structural features that
// matter most to screen reader users.
func ExtractFacts(html string) (*types.PageFacts, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	facts := &types.PageFacts{
		Title:    strings.TrimSpace(doc.Find("title").First().Text()),
		Lang:     strings.TrimSpace(doc.Find("html").AttrOr("lang", "")),
		Headings: doc.Find("h1, h2, h3, h4, h5, h6").Length(),
		Links:    doc.Find("a[href]").Length(),
	}

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		facts.Images++
		// alt="" is a valid decorative marker; only a missing attribute counts.
		if _, ok := img.Attr("alt"); !ok {
			facts.ImagesMissingAlt++
		}
	})

	return facts, nil
}
