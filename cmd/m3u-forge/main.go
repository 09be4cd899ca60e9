// Command m3u-forge: aggregate live-stream URLs from configured sources into
// one validated M3U playlist.
//
//	run    One-run: fetch all sources, validate streams, write playlist, publish. For cron/systemd.
//	check  Probe one or more stream URLs and report each verdict (debugging aid)
//	serve  Serve the local playlist artifact over HTTP, with /healthz and /metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3uforge/m3u-forge/internal/config"
	"github.com/m3uforge/m3u-forge/internal/fetch"
	"github.com/m3uforge/m3u-forge/internal/pipeline"
	"github.com/m3uforge/m3u-forge/internal/validate"
)

func main() {
	_ = godotenv.Load(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[m3u-forge] ")

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runOutput := runCmd.String("output", "", "Playlist output path (default: M3U_FORGE_OUTPUT)")
	runNoPublish := runCmd.Bool("no-publish", false, "Skip publishing even when Dropbox credentials are configured")

	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)
	checkTimeout := checkCmd.Duration("timeout", 8*time.Second, "Per-probe timeout")

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	serveAddr := serveCmd.String("addr", "", "Listen address (default: M3U_FORGE_SERVE_ADDR)")
	servePlaylist := serveCmd.String("playlist", "", "Playlist path to serve (default: M3U_FORGE_OUTPUT)")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <run|check|serve> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  run    Fetch sources, validate streams, write playlist, publish (for cron/systemd)\n")
		fmt.Fprintf(os.Stderr, "  check  Probe stream URLs and report verdicts: %s check <url> [url...]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  serve  Serve the playlist artifact over HTTP with /healthz and /metrics\n")
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "run":
		_ = runCmd.Parse(os.Args[2:])
		if *runOutput != "" {
			cfg.OutputPath = *runOutput
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p := pipeline.Build(cfg)
		if len(p.Sources) == 0 {
			log.Print("No sources configured. Set M3U_FORGE_FLATLIST_URL, M3U_FORGE_CRAWLER_BASE_URL, or M3U_FORGE_MATCH_FEED_URL in .env")
			os.Exit(1)
		}
		if *runNoPublish {
			p.Publisher = nil
		}
		res, err := p.Run(ctx)
		if err != nil {
			log.Printf("Run failed: %v", err)
			os.Exit(1)
		}
		log.Printf("Done: %d/%d candidates playable, playlist at %s", res.Playable, res.Candidates, res.Artifact)
		if res.Link != "" {
			log.Printf("Published: %s", res.Link)
		}

	case "check":
		_ = checkCmd.Parse(os.Args[2:])
		urls := checkCmd.Args()
		if len(urls) == 0 {
			log.Printf("Usage: %s check <url> [url...]", os.Args[0])
			os.Exit(1)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		v := validate.New(validate.Config{
			Fetcher: fetch.New(fetch.Config{Timeout: cfg.FetchTimeout, Referer: "https://www.google.com/"}),
			Timeout: *checkTimeout,
		})
		failed := 0
		for _, u := range urls {
			vd := v.Validate(ctx, u)
			status := "OK"
			if !vd.OK {
				status = "FAIL"
				failed++
			}
			if vd.OK && vd.ResolvedURL != u {
				log.Printf("  %-4s %s  (variant %s)", status, u, vd.ResolvedURL)
			} else {
				log.Printf("  %-4s %s", status, u)
			}
		}
		log.Printf("--- %d/%d playable ---", len(urls)-failed, len(urls))
		if failed > 0 {
			os.Exit(1)
		}

	case "serve":
		_ = serveCmd.Parse(os.Args[2:])
		addr := *serveAddr
		if addr == "" {
			addr = cfg.ServeAddr
		}
		playlist := *servePlaylist
		if playlist == "" {
			playlist = cfg.OutputPath
		}

		r := mux.NewRouter()
		r.HandleFunc("/playlist.m3u", func(w http.ResponseWriter, req *http.Request) {
			data, err := os.ReadFile(playlist)
			if err != nil {
				http.Error(w, "playlist not generated yet", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			w.Write(data)
		}).Methods(http.MethodGet)
		r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok\n"))
		}).Methods(http.MethodGet)
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

		srv := &http.Server{Addr: addr, Handler: r}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx)
		}()
		log.Printf("Serving %s on %s", playlist, addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Serve failed: %v", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}
