package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/shopspring/decimal"
)

const (
	DefaultUserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	DefaultAcceptLanguage = "en-GB,en;q=0.9"

	maxRedirects = 10
)

var (
	ErrExtractionFailed = errors.New("product title or price not found on page")
	ErrBlocked          = errors.New("redirected to captcha page")
)

// Page selectors. Amazon splits the price into symbol, whole and fraction parts.
const (
	titleSelector         = "#productTitle"
	priceSymbolSelector   = ".a-price-symbol"
	priceWholeSelector    = ".a-price-whole"
	priceFractionSelector = ".a-price-fraction"
)

// userAgent and acceptLanguage can be empty to use the defaults.
func NewScraper(userAgent, acceptLanguage string) Scraper {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if acceptLanguage == "" {
		acceptLanguage = DefaultAcceptLanguage
	}

	options := []colly.CollectorOption{
		colly.UserAgent(userAgent),
		// the same product page is fetched again on every tracking cycle
		colly.AllowURLRevisit(),
	}

	s := Scraper{
		colly:          colly.NewCollector(options...),
		acceptLanguage: acceptLanguage,
	}

	// amazon answers bot-looking traffic with a redirect to a captcha form instead of an error status
	s.colly.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if strings.Contains(req.URL.Path, "validateCaptcha") || strings.Contains(req.URL.Path, "/errors/") {
			return fmt.Errorf("not following redirect %q: %w", req.URL.String(), ErrBlocked)
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	})

	return s
}

// Fetch downloads the product page at url and extracts its title and price.
// A page that loads but lacks any of the expected elements yields ErrExtractionFailed.
//
// ctx is only checked before the request is sent: colly has no per-request
// context, so an in-flight fetch runs until colly's http client gives up
// (10s by default), and a closing Scheduler waits that long at most.
func (s Scraper) Fetch(ctx context.Context, url string) (Product, error) {
	if err := ctx.Err(); err != nil {
		return Product{}, err
	}

	// callbacks are per collector, so every fetch gets its own clone sharing the http backend
	c := s.colly.Clone()

	var (
		p     Product
		found bool
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", s.acceptLanguage)
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		p, found = extract(e.DOM)
	})

	if err := c.Visit(url); err != nil {
		return Product{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	c.Wait()

	if !found {
		return Product{}, fmt.Errorf("fetch %s: %w", url, ErrExtractionFailed)
	}
	p.URL = url
	return p, nil
}

func extract(doc *goquery.Selection) (Product, bool) {
	title := selectText(doc, titleSelector)
	symbol := selectText(doc, priceSymbolSelector)
	whole := selectText(doc, priceWholeSelector)
	fraction := selectText(doc, priceFractionSelector)
	if title == "" || symbol == "" || whole == "" || fraction == "" {
		return Product{}, false
	}

	price, err := formatPrice(symbol, whole, fraction)
	if err != nil {
		return Product{}, false
	}
	return Product{Title: title, Price: price}, true
}

func selectText(doc *goquery.Selection, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

// formatPrice joins the page's price parts into e.g. "$9.99" or "£1299.0".
// The whole part carries a trailing decimal point and may carry thousands separators.
func formatPrice(symbol, whole, fraction string) (string, error) {
	whole = strings.NewReplacer(".", "", ",", "").Replace(whole)
	d, err := decimal.NewFromString(whole + "." + fraction)
	if err != nil {
		return "", fmt.Errorf("parse price %q.%q: %w", whole, fraction, err)
	}

	// String drops trailing zeros, so 1299.00 renders as 1299
	s := d.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return symbol + s, nil
}
