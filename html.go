/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"embed"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/soundbox/sounds"
)

//go:embed assets/*
var assets embed.FS

// boardSizes lists the even board sizes a catalog of n sounds can fill.
func boardSizes(n int) []int {
	sizes := make([]int, 0, n/2)
	for amount := 2; amount <= n; amount += 2 {
		sizes = append(sizes, amount)
	}

	return sizes
}

func serveHomePage(cfg *Config, catalog *sounds.Client, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		entries, err := catalog.Catalog(r.Context())
		if err != nil {
			logf(cfg, "ERROR: Fetching catalog for %s: %v", realIP(r), err)
			serveError(cfg, w, err)

			return
		}

		var htmlBody strings.Builder

		htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
		htmlBody.WriteString(getFavicon(cfg))
		htmlBody.WriteString(fmt.Sprintf(`<link rel="stylesheet" href="%s/assets/concentration/app.css">`, cfg.prefix))
		htmlBody.WriteString(`<title>soundbox</title></head><body><main class="home">`)
		htmlBody.WriteString(`<h1>soundbox</h1><p>Pick a board size. Every sound appears twice.</p><ul class="sizes">`)
		for _, amount := range boardSizes(len(sounds.Distinct(entries))) {
			htmlBody.WriteString(fmt.Sprintf(`<li><a href="%s/new/%d">%d cards</a></li>`, cfg.prefix, amount, amount))
		}
		htmlBody.WriteString(fmt.Sprintf(`</ul><p><a href="%s/sounds">All %d sounds</a></p></main></body></html>`, cfg.prefix, len(entries)))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		written := writeAll(w, []byte(htmlBody.String()), errs)

		logf(cfg, "SERVE: Home page (%s) to %s in %s",
			humanReadableSize(written),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		writeAll(w, []byte("Ok\n"), errs)
	}
}

func serveAssets(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		fname := path.Join("assets", path.Clean("/"+p.ByName("asset")))

		data, err := assets.ReadFile(fname)
		if err != nil {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		ext := strings.ToLower(filepath.Ext(fname))
		switch ext {
		case ".css":
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case ".js":
			w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		case ".html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}

		writeAll(w, data, errs)
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /new/
Disallow: /game/

User-agent: GPTBot
Disallow: /

User-agent: CCBot
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		writeAll(w, []byte(data), errs)
	}
}
