// Package pipeline orchestrates the whole reconstruction run: parallel page
// extraction, structural fixing, key-value promotion, cross-page merging,
// and HTML rendering. Extraction is the only stage that talks to the
// network; everything after the pool is pure and runs single-threaded.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"sync"

	"reflow/extract"
	"reflow/fixer"
	"reflow/fragment"
	"reflow/imaging"
	"reflow/kvtable"
	"reflow/merger"
	"reflow/observability"
	"reflow/recovery"
	"reflow/render"
)

// DefaultWorkers bounds concurrent page extractions.
const DefaultWorkers = 4

// Pipeline wires the stages together.
type Pipeline struct {
	Extractor extract.PageExtractor

	// Workers bounds concurrent extractions. Capped at the page count.
	Workers int

	// CarryContext serializes extraction so each page's prompt carries the
	// previous page's summary. Better continuation tagging, no parallelism.
	CarryContext bool

	// MergePages enables the cross-page merger.
	MergePages bool

	// ContentDir, when set, receives one page_<n>_content.json per page so
	// any page can be reprocessed without re-extracting.
	ContentDir string

	// ImagesDir, when set, receives visual assets cropped from the page
	// rasters.
	ImagesDir string

	Recovery recovery.Strategy
	Fixer    *fixer.Fixer
	Promoter *kvtable.Promoter
	Merger   *merger.Merger
	Renderer *render.Renderer
	Log      observability.Logger
	Metrics  *observability.Counters
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets the extraction concurrency bound.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.Workers = n }
}

// WithContextCarry serializes extraction and forwards page summaries.
func WithContextCarry() Option {
	return func(p *Pipeline) { p.CarryContext = true }
}

// WithMerging enables the cross-page merger.
func WithMerging() Option {
	return func(p *Pipeline) { p.MergePages = true }
}

// WithContentDir sets the per-page payload persistence directory.
func WithContentDir(dir string) Option {
	return func(p *Pipeline) { p.ContentDir = dir }
}

// WithImagesDir sets the visual asset output directory.
func WithImagesDir(dir string) Option {
	return func(p *Pipeline) { p.ImagesDir = dir }
}

// WithRecovery sets the failure strategy.
func WithRecovery(s recovery.Strategy) Option {
	return func(p *Pipeline) { p.Recovery = s }
}

// WithLogger sets the pipeline logger.
func WithLogger(log observability.Logger) Option {
	return func(p *Pipeline) { p.Log = log }
}

// WithMetrics sets the counter sink.
func WithMetrics(c *observability.Counters) Option {
	return func(p *Pipeline) { p.Metrics = c }
}

// New returns a Pipeline around the given extractor. Unset collaborators
// get defaults: four workers, lenient recovery, default stage settings.
func New(ex extract.PageExtractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		Extractor: ex,
		Workers:   DefaultWorkers,
		Recovery:  recovery.NewLenientStrategy(),
		Fixer:     fixer.New(),
		Promoter:  kvtable.New(),
		Merger:    merger.New(),
		Renderer:  render.New(),
		Log:       observability.NopLogger{},
		Metrics:   observability.NewCounters(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Result is the reconstruction output.
type Result struct {
	// Pages holds the fixed, promoted per-page fragment streams, indexed
	// by page position. Failed pages are present but empty, with Err set.
	Pages []fragment.Page

	// Merged is the cross-page view, nil unless merging ran.
	Merged *merger.Result

	// Artifacts lists the visual assets cut from page rasters.
	Artifacts []imaging.Artifact

	// HTML is the reconstructed document.
	HTML string
}

// Process runs the full pipeline over rendered page images, one PNG per
// page in document order.
func (p *Pipeline) Process(ctx context.Context, images [][]byte) (*Result, error) {
	pages, artifacts, err := p.extractAll(ctx, images)
	if err != nil {
		return nil, err
	}
	return p.assemble(pages, artifacts)
}

// ProcessPages runs every stage after extraction over already-structured
// pages, for reprocessing persisted payloads.
func (p *Pipeline) ProcessPages(pages []fragment.Page) (*Result, error) {
	cloned := make([]fragment.Page, len(pages))
	for i, pg := range pages {
		cloned[i] = pg.Clone()
	}
	return p.assemble(cloned, nil)
}

func (p *Pipeline) extractAll(ctx context.Context, images [][]byte) ([]fragment.Page, []imaging.Artifact, error) {
	if p.CarryContext {
		return p.extractSequential(ctx, images)
	}

	n := len(images)
	workers := p.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	if workers > n {
		workers = n
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pages := make([]fragment.Page, n)
	var (
		artifacts []imaging.Artifact
		mu        sync.Mutex
		wg        sync.WaitGroup
		errOnce   sync.Once
		fatal     error
	)

	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				pageNum := i + 1
				pg, arts, err := p.extractOne(ctx, images[i], pageNum)
				if err != nil {
					p.Metrics.Add(observability.MetricPagesFailed, 1)
					loc := recovery.Location{Page: pageNum, Component: "extract"}
					if p.Recovery.OnError(err, loc) == recovery.ActionFail {
						errOnce.Do(func() {
							fatal = fmt.Errorf("page %d: %w", pageNum, err)
							cancel()
						})
						continue
					}
					p.Log.Warn("page degraded", observability.Int("page", pageNum), observability.Error("err", err))
					pages[i] = fragment.Page{Number: pageNum, Err: err.Error()}
					continue
				}
				pages[i] = pg
				if len(arts) > 0 {
					mu.Lock()
					artifacts = append(artifacts, arts...)
					mu.Unlock()
				}
				p.Metrics.Add(observability.MetricPagesProcessed, 1)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if fatal != nil {
		return nil, nil, fatal
	}
	p.Metrics.Add(observability.MetricVisualArtifacts, int64(len(artifacts)))
	return pages, artifacts, nil
}

func (p *Pipeline) extractSequential(ctx context.Context, images [][]byte) ([]fragment.Page, []imaging.Artifact, error) {
	pages := make([]fragment.Page, len(images))
	var artifacts []imaging.Artifact
	summary := ""

	for i, img := range images {
		pageNum := i + 1
		pg, err := p.Extractor.ExtractPageWithContext(ctx, img, pageNum, summary)
		var arts []imaging.Artifact
		if err == nil {
			pg, arts, err = p.visuals(img, pg)
		}
		if err != nil {
			p.Metrics.Add(observability.MetricPagesFailed, 1)
			loc := recovery.Location{Page: pageNum, Component: "extract"}
			if p.Recovery.OnError(err, loc) == recovery.ActionFail {
				return nil, nil, fmt.Errorf("page %d: %w", pageNum, err)
			}
			p.Log.Warn("page degraded", observability.Int("page", pageNum), observability.Error("err", err))
			pages[i] = fragment.Page{Number: pageNum, Err: err.Error()}
			summary = ""
			continue
		}
		pages[i] = pg
		artifacts = append(artifacts, arts...)
		summary = pg.Summary
		p.Metrics.Add(observability.MetricPagesProcessed, 1)
	}

	p.Metrics.Add(observability.MetricVisualArtifacts, int64(len(artifacts)))
	return pages, artifacts, nil
}

func (p *Pipeline) extractOne(ctx context.Context, img []byte, pageNum int) (fragment.Page, []imaging.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return fragment.Page{}, nil, err
	}
	pg, err := p.Extractor.ExtractPage(ctx, img, pageNum)
	if err != nil {
		return fragment.Page{}, nil, err
	}
	return p.visuals(img, pg)
}

// assemble runs the pure stages over extracted pages and renders output.
func (p *Pipeline) assemble(pages []fragment.Page, artifacts []imaging.Artifact) (*Result, error) {
	for i := range pages {
		if pages[i].Err != "" {
			continue
		}
		pages[i] = p.Fixer.FixPage(pages[i])
		pages[i] = p.Promoter.PromotePage(pages[i])
		if p.ContentDir != "" {
			if err := p.persistPage(pages[i]); err != nil {
				return nil, err
			}
		}
	}

	res := &Result{Pages: pages, Artifacts: artifacts}
	doc := fragment.Document{Pages: pages}

	if p.MergePages {
		merged := p.Merger.Merge(pages)
		res.Merged = &merged
		doc.Merged = merged.Items
		doc.ByID = merged.ByID
	}

	res.HTML = p.Renderer.RenderDocument(doc)
	return res, nil
}

func (p *Pipeline) persistPage(pg fragment.Page) error {
	if err := os.MkdirAll(p.ContentDir, 0o755); err != nil {
		return fmt.Errorf("content dir: %w", err)
	}
	data, err := json.MarshalIndent(pg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode page %d: %w", pg.Number, err)
	}
	path := filepath.Join(p.ContentDir, fmt.Sprintf("page_%d_content.json", pg.Number))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("persist page %d: %w", pg.Number, err)
	}
	return nil
}

// visuals crops visual regions for one page when an images directory is
// configured.
func (p *Pipeline) visuals(img []byte, pg fragment.Page) (fragment.Page, []imaging.Artifact, error) {
	if p.ImagesDir == "" {
		return pg, nil, nil
	}
	raster, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return fragment.Page{}, nil, fmt.Errorf("decode page raster: %w", err)
	}
	return imaging.ExtractVisuals(raster, pg, p.ImagesDir)
}
