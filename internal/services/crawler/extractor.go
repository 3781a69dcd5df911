package crawler

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// ErrExtractionEmpty means the page parsed but produced no readable text
var ErrExtractionEmpty = errors.New("no readable content")

// boilerplate is removed before picking the main content
const boilerplate = "script, style, noscript, template, iframe, svg, canvas, form, button, input, select, " +
	"nav, header, footer, aside, " +
	"[role=navigation], [role=banner], [role=contentinfo], [role=complementary], [aria-hidden=true], " +
	"[class~=ad], [id~=ad], [class*=advert], [id*=advert], [class*=promo], [class*=sidebar], " +
	"[class*=newsletter], [class*=cookie], [class*=share-], [class*=related-]"

var (
	spaceRegex       = regexp.MustCompile(`[ \t]+\n`)
	blankLinesRegex  = regexp.MustCompile(`\n{3,}`)
	minCandidateText = 200
)

// Extraction is the readable part of a page
type Extraction struct {
	Title    string
	Markdown string
}

// Extractor turns HTML into markdown of the main content
type Extractor struct{}

// NewExtractor creates a new extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses body, strips boilerplate, picks the main content block and converts it to markdown.
func (e *Extractor) Extract(body []byte, pageURL string) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := extractTitle(doc)

	doc.Find(boilerplate).Remove()

	content := mainContent(doc)
	html, err := goquery.OuterHtml(content)
	if err != nil {
		return nil, fmt.Errorf("failed to render content: %w", err)
	}

	domain := ""
	if u, err := url.Parse(pageURL); err == nil {
		domain = u.Host
	}
	markdown, err := md.NewConverter(domain, true, nil).ConvertString(html)
	if err != nil {
		return nil, fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}

	markdown = cleanMarkdown(markdown)
	if !hasReadableText(markdown) {
		return nil, ErrExtractionEmpty
	}

	return &Extraction{Title: title, Markdown: markdown}, nil
}

// extractTitle tries og:title, <title>, then the first h1
func extractTitle(doc *goquery.Document) string {
	if ogTitle, exists := doc.Find("meta[property='og:title']").Attr("content"); exists && strings.TrimSpace(ogTitle) != "" {
		return strings.TrimSpace(ogTitle)
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// mainContent prefers semantic containers, then the block with the most paragraph text, then body
func mainContent(doc *goquery.Document) *goquery.Selection {
	var best *goquery.Selection
	bestLen := 0
	doc.Find("article, main, [role=main]").Each(func(_ int, s *goquery.Selection) {
		if n := len(strings.TrimSpace(s.Text())); n > bestLen {
			best, bestLen = s, n
		}
	})
	if best != nil && bestLen >= minCandidateText {
		return best
	}

	var scored *goquery.Selection
	bestScore := 0.0
	doc.Find("div, section, td").Each(func(_ int, s *goquery.Selection) {
		if score := contentScore(s); score > bestScore {
			scored, bestScore = s, score
		}
	})
	if scored != nil && bestScore >= float64(minCandidateText) {
		return scored
	}

	if best != nil {
		return best
	}
	if body := doc.Find("body"); body.Length() > 0 {
		return body
	}
	return doc.Selection
}

// contentScore is the paragraph text directly inside s, discounted by how much of it is link text
func contentScore(s *goquery.Selection) float64 {
	textLen := 0
	s.ChildrenFiltered("p, pre, blockquote, ul, ol").Each(func(_ int, p *goquery.Selection) {
		textLen += len(strings.TrimSpace(p.Text()))
	})
	if textLen == 0 {
		return 0
	}

	linkLen := 0
	s.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkLen += len(strings.TrimSpace(a.Text()))
	})
	total := len(strings.TrimSpace(s.Text()))
	if total == 0 {
		return 0
	}

	density := float64(linkLen) / float64(total)
	if density > 1 {
		density = 1
	}
	return float64(textLen) * (1 - density)
}

func cleanMarkdown(markdown string) string {
	markdown = strings.ReplaceAll(markdown, "\r\n", "\n")
	markdown = spaceRegex.ReplaceAllString(markdown, "\n")
	markdown = blankLinesRegex.ReplaceAllString(markdown, "\n\n")
	return strings.TrimSpace(markdown)
}

func hasReadableText(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
