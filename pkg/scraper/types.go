package scraper

import (
	"github.com/gocolly/colly/v2"
)

type Scraper struct {
	colly *colly.Collector

	acceptLanguage string
}

// Product is what a single product page yields: its title and the price as
// shown on the page, currency symbol included.
type Product struct {
	URL   string
	Title string
	Price string
}
