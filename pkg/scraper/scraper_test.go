package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestFetchExtractsTitleAndPrice(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	s := NewScraper("", "")
	p, err := s.Fetch(context.Background(), ts.URL+"/dp/widget")
	if err != nil {
		t.Fatal(err)
	}

	if p.Title != "Widget" {
		t.Errorf("wrong title: got %q expected %q", p.Title, "Widget")
	}
	if p.Price != "$9.99" {
		t.Errorf("wrong price: got %q expected %q", p.Price, "$9.99")
	}
	if p.URL != ts.URL+"/dp/widget" {
		t.Errorf("wrong url: got %q", p.URL)
	}
}

func TestFetchSameURLTwice(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	s := NewScraper("", "")
	for i := 0; i < 2; i++ {
		if _, err := s.Fetch(context.Background(), ts.URL+"/dp/widget"); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
}

func TestFetchConcurrent(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	s := NewScraper("", "")
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		path := "/dp/widget"
		if i%2 == 0 {
			path = "/dp/gadget"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.Fetch(context.Background(), ts.URL+path)
			if err != nil {
				errs <- err
				return
			}
			if (path == "/dp/widget") != (p.Title == "Widget") {
				errs <- fmt.Errorf("page %s produced title %q", path, p.Title)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestFetchMissingPrice(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	s := NewScraper("", "")
	_, err := s.Fetch(context.Background(), ts.URL+"/dp/unavailable")
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestFetchNotFound(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	s := NewScraper("", "")
	_, err := s.Fetch(context.Background(), ts.URL+"/dp/missing")
	if err == nil {
		t.Fatal("expected an error for a 404 page")
	}
	if errors.Is(err, ErrExtractionFailed) {
		t.Errorf("404 should fail before extraction: %v", err)
	}
}

func TestFetchCaptchaRedirect(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	s := NewScraper("", "")
	_, err := s.Fetch(context.Background(), ts.URL+"/dp/blocked")
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
}

func TestFetchSendsBrowserHeaders(t *testing.T) {
	var ua, lang string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		lang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(productPage("Widget", "$", "9.", "99")))
	}))
	defer ts.Close()

	s := NewScraper("test-agent/1.0", "de-DE")
	if _, err := s.Fetch(context.Background(), ts.URL); err != nil {
		t.Fatal(err)
	}
	if ua != "test-agent/1.0" {
		t.Errorf("wrong User-Agent: %q", ua)
	}
	if lang != "de-DE" {
		t.Errorf("wrong Accept-Language: %q", lang)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScraper("", "")
	if _, err := s.Fetch(ctx, "http://127.0.0.1:1/"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		page  string
		want  Product
		found bool
	}{
		{"simple", productPage("Widget", "$", "9.", "99"), Product{Title: "Widget", Price: "$9.99"}, true},
		{"thousands", productPage("Laptop", "£", "1,299.", "00"), Product{Title: "Laptop", Price: "£1299.0"}, true},
		{"dotted thousands", productPage("Laptop", "€", "1.299,", "50"), Product{Title: "Laptop", Price: "€1299.5"}, true},
		{"padded title", productPage("\n   Kettle  \n", "$", "25.", "50"), Product{Title: "Kettle", Price: "$25.5"}, true},
		{"no title", productPage("", "$", "9.", "99"), Product{}, false},
		{"no fraction", productPage("Widget", "$", "9.", ""), Product{}, false},
		{"empty page", "<html><body></body></html>", Product{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(tc.page))
			if err != nil {
				t.Fatal(err)
			}
			got, found := extract(doc.Selection)
			if found != tc.found {
				t.Fatalf("found = %v, want %v", found, tc.found)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		symbol, whole, fraction string
		want                    string
	}{
		{"$", "9.", "99", "$9.99"},
		{"$", "10.", "00", "$10.0"},
		{"£", "0.", "50", "£0.5"},
		{"$", "12,345.", "67", "$12345.67"},
		{"$", "19.", "90", "$19.9"},
		{"$", "9,007,199,254,740,993.", "01", "$9007199254740993.01"},
	}
	for _, tc := range tests {
		got, err := formatPrice(tc.symbol, tc.whole, tc.fraction)
		if err != nil {
			t.Errorf("formatPrice(%q, %q, %q): %v", tc.symbol, tc.whole, tc.fraction, err)
			continue
		}
		if got != tc.want {
			t.Errorf("formatPrice(%q, %q, %q) = %q, want %q", tc.symbol, tc.whole, tc.fraction, got, tc.want)
		}
	}

	if _, err := formatPrice("$", "abc", "99"); err == nil {
		t.Error("expected an error for a non-numeric price")
	}
}

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/dp/widget", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(productPage("Widget", "$", "9.", "99")))
	})

	mux.HandleFunc("/dp/gadget", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(productPage("Gadget", "$", "19.", "50")))
	})

	mux.HandleFunc("/dp/unavailable", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html lang="en">
	<body>
		<span id="productTitle">Widget</span>
		<div id="availability">Currently unavailable.</div>
	</body>
</html>`))
	})

	mux.HandleFunc("/dp/blocked", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/errors/validateCaptcha", http.StatusFound)
	})

	mux.HandleFunc("/errors/validateCaptcha", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>Type the characters you see in this image</body></html>`))
	})

	return httptest.NewServer(mux)
}

func productPage(title, symbol, whole, fraction string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
	<body>
		<div id="centerCol">
			<h1 id="title"><span id="productTitle" class="a-size-large">%s</span></h1>
			<div id="corePrice_feature_div">
				<span class="a-price aok-align-center">
					<span class="a-offscreen">%[2]s%[3]s%[4]s</span>
					<span aria-hidden="true">
						<span class="a-price-symbol">%[2]s</span><span class="a-price-whole">%[3]s</span><span class="a-price-fraction">%[4]s</span>
					</span>
				</span>
			</div>
		</div>
	</body>
</html>`, title, symbol, whole, fraction)
}
