// Command reflow reconstructs a flowing HTML document from per-page
// extraction payloads, or from rendered page images when an extraction
// service is configured.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"reflow/extract"
	"reflow/fragment"
	"reflow/observability"
	"reflow/pipeline"
	"reflow/recovery"
	"reflow/render"
)

type options struct {
	inputDir string
	outDir   string
	title    string
	model    string
	baseURL  string
	apiKey   string
	workers  int
	merge    bool
	carry    bool
	visuals  bool
	markdown bool
	strict   bool
	verbose  bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "reflow: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "reflow: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: reflow [flags] <input-dir>\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Input: a directory of page_*.json payloads, or of page PNG images.\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.outDir, "out", "reflow_output", "Directory for the reconstructed document and assets")
	flag.StringVar(&opts.title, "title", "Reconstructed Document", "Document title")
	flag.StringVar(&opts.model, "model", extract.DefaultModel, "Vision model for page extraction")
	flag.StringVar(&opts.baseURL, "base-url", "", "OpenAI-compatible endpoint override")
	flag.IntVar(&opts.workers, "workers", pipeline.DefaultWorkers, "Concurrent page extractions")
	flag.BoolVar(&opts.merge, "merge", true, "Merge content spanning page boundaries")
	flag.BoolVar(&opts.carry, "context", false, "Serialize extraction and carry page summaries forward")
	flag.BoolVar(&opts.visuals, "visuals", true, "Crop visual regions out of page images")
	flag.BoolVar(&opts.markdown, "markdown", false, "Run text content through an inline markdown pass")
	flag.BoolVar(&opts.strict, "strict", false, "Abort on the first failed page instead of degrading it")
	flag.BoolVar(&opts.verbose, "v", false, "Debug logging")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return options{}, fmt.Errorf("missing input directory")
	}
	opts.inputDir = flag.Arg(0)
	opts.apiKey = os.Getenv("OPENAI_API_KEY")
	return opts, nil
}

func run(opts options) error {
	level := observability.LevelInfo
	if opts.verbose {
		level = observability.LevelDebug
	}
	log := observability.NewTextLogger(os.Stderr, level)
	metrics := observability.NewCounters()

	jsonPaths, pngPaths, err := scanInput(opts.inputDir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}

	var strategy recovery.Strategy
	lenient := recovery.NewLenientStrategy()
	strategy = lenient
	if opts.strict {
		strategy = recovery.NewStrictStrategy()
	}

	renderOpts := []render.Option{render.WithTitle(opts.title), render.WithLogger(log)}
	if opts.markdown {
		renderOpts = append(renderOpts, render.WithInlineMarkdown())
	}

	var result *pipeline.Result
	switch {
	case len(jsonPaths) > 0:
		pages, err := loadPages(jsonPaths)
		if err != nil {
			return err
		}
		p := newPipeline(nil, opts, strategy, log, metrics, renderOpts)
		result, err = p.ProcessPages(pages)
		if err != nil {
			return err
		}

	case len(pngPaths) > 0:
		if opts.apiKey == "" {
			return fmt.Errorf("page images need an extraction service; set OPENAI_API_KEY")
		}
		client, err := extract.NewClient(context.Background(), extract.Config{
			Model:   opts.model,
			APIKey:  opts.apiKey,
			BaseURL: opts.baseURL,
			Log:     log,
		})
		if err != nil {
			return err
		}
		images, err := loadImages(pngPaths)
		if err != nil {
			return err
		}
		p := newPipeline(client, opts, strategy, log, metrics, renderOpts)
		result, err = p.Process(context.Background(), images)
		if err != nil {
			return err
		}

	default:
		return fmt.Errorf("no page payloads or images found in %s", opts.inputDir)
	}

	htmlPath := filepath.Join(opts.outDir, "document.html")
	if err := os.WriteFile(htmlPath, []byte(result.HTML), 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	for _, e := range lenient.Errors() {
		log.Warn("degraded page", observability.Error("err", e))
	}
	log.Info("reconstruction complete", append([]observability.Field{
		observability.String("document", htmlPath),
		observability.Int("pages", len(result.Pages)),
		observability.Int("visuals", len(result.Artifacts)),
	}, metrics.Snapshot()...)...)
	return nil
}

func newPipeline(client *extract.Client, opts options, strategy recovery.Strategy,
	log observability.Logger, metrics *observability.Counters, renderOpts []render.Option) *pipeline.Pipeline {

	pipeOpts := []pipeline.Option{
		pipeline.WithWorkers(opts.workers),
		pipeline.WithRecovery(strategy),
		pipeline.WithLogger(log),
		pipeline.WithMetrics(metrics),
		pipeline.WithContentDir(filepath.Join(opts.outDir, "extracted_content")),
	}
	if opts.merge {
		pipeOpts = append(pipeOpts, pipeline.WithMerging())
	}
	if opts.carry {
		pipeOpts = append(pipeOpts, pipeline.WithContextCarry())
	}
	if opts.visuals {
		imagesDir := filepath.Join(opts.outDir, "images")
		os.MkdirAll(imagesDir, 0o755)
		pipeOpts = append(pipeOpts, pipeline.WithImagesDir(imagesDir))
	}

	var ex extract.PageExtractor
	if client != nil {
		ex = client
	}
	p := pipeline.New(ex, pipeOpts...)
	p.Renderer = render.New(renderOpts...)
	return p
}

// scanInput splits a directory's entries into payload and image inputs.
func scanInput(dir string) (jsonPaths, pngPaths []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read input dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".json":
			jsonPaths = append(jsonPaths, filepath.Join(dir, name))
		case ".png":
			pngPaths = append(pngPaths, filepath.Join(dir, name))
		}
	}
	sort.Strings(jsonPaths)
	sort.Strings(pngPaths)
	return jsonPaths, pngPaths, nil
}

func loadPages(paths []string) ([]fragment.Page, error) {
	pages := make([]fragment.Page, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		var pg fragment.Page
		if err := json.Unmarshal(data, &pg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		fragment.EnsureIDs(&pg)
		pages = append(pages, pg)
	}
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

func loadImages(paths []string) ([][]byte, error) {
	images := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read page image: %w", err)
		}
		images = append(images, data)
	}
	return images, nil
}
