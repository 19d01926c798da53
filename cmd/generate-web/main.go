package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/geniass/pricetrack/pkg/history"
	"github.com/geniass/pricetrack/pkg/web"
)

func main() {
	dataDirNameArg := flag.String("data-dir", "./data", "directory that contains the price history logs")
	outputDirArg := flag.String("output-dir", "docs", "directory to write rendered HTML content to")
	pagePathPrefixArg := flag.String("path-prefix", "", "prefix page link URLs (in case pages are hosted at a subpath); should start with '/'")

	flag.Parse()

	if err := os.MkdirAll(*outputDirArg, os.ModeDir|0775); err != nil {
		log.Fatal(err)
	}

	obs, err := history.NewStore(*dataDirNameArg).LoadAll()
	if err != nil {
		log.Fatal(err)
	}
	if len(obs) == 0 {
		log.Printf("WARNING: no price history found in %q\n", *dataDirNameArg)
	}

	err = renderToFile(*outputDirArg, "history.html", func(w io.Writer) error {
		return web.RenderHistory(w, web.HistoryContext{
			BaseContext:  web.BaseContext{PathPrefix: *pagePathPrefixArg},
			Title:        "Price History",
			LastUpdated:  time.Now(),
			Observations: obs,
		})
	})
	if err != nil {
		log.Fatal(err)
	}
}

// renderToFile renders into a temp file beside the target and renames it into
// place, so a failed render never replaces a previously exported page.
func renderToFile(dir string, filename string, renderFunc func(w io.Writer) error) error {
	f, err := os.CreateTemp(dir, "."+filename+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := renderFunc(f); err != nil {
		f.Close()
		return fmt.Errorf("render %s: %w", filename, err)
	}
	if err := f.Chmod(0644); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), filepath.Join(dir, filename))
}
