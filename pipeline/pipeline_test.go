package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"reflow/fragment"
	"reflow/recovery"
)

// stubExtractor plays back canned pages and records the context summaries
// it was handed.
type stubExtractor struct {
	mu        sync.Mutex
	pages     map[int]fragment.Page
	fail      map[int]error
	delay     map[int]time.Duration
	summaries map[int]string
}

func newStub() *stubExtractor {
	return &stubExtractor{
		pages:     map[int]fragment.Page{},
		fail:      map[int]error{},
		delay:     map[int]time.Duration{},
		summaries: map[int]string{},
	}
}

func (s *stubExtractor) ExtractPage(ctx context.Context, img []byte, pageNum int) (fragment.Page, error) {
	if d := s.delay[pageNum]; d > 0 {
		time.Sleep(d)
	}
	if err := s.fail[pageNum]; err != nil {
		return fragment.Page{}, err
	}
	pg, ok := s.pages[pageNum]
	if !ok {
		pg = fragment.Page{Number: pageNum, Fragments: []fragment.Fragment{
			{ID: fmt.Sprintf("p%d", pageNum), Order: 1, Kind: fragment.KindParagraph,
				Content: fmt.Sprintf("content of page %d", pageNum)},
		}}
	}
	return pg, nil
}

func (s *stubExtractor) ExtractPageWithContext(ctx context.Context, img []byte, pageNum int, prevSummary string) (fragment.Page, error) {
	s.mu.Lock()
	s.summaries[pageNum] = prevSummary
	s.mu.Unlock()
	return s.ExtractPage(ctx, img, pageNum)
}

func blankImages(n int) [][]byte {
	imgs := make([][]byte, n)
	for i := range imgs {
		imgs[i] = []byte("png bytes")
	}
	return imgs
}

// Pages land in document order regardless of which worker finishes first.
func TestProcessOrderDeterminism(t *testing.T) {
	stub := newStub()
	// Earlier pages finish last.
	stub.delay[1] = 30 * time.Millisecond
	stub.delay[2] = 20 * time.Millisecond
	stub.delay[3] = 10 * time.Millisecond

	res, err := New(stub, WithWorkers(4)).Process(context.Background(), blankImages(6))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Pages) != 6 {
		t.Fatalf("page count = %d, want 6", len(res.Pages))
	}
	for i, pg := range res.Pages {
		if pg.Number != i+1 {
			t.Errorf("slot %d holds page %d", i, pg.Number)
		}
		want := fmt.Sprintf("content of page %d", i+1)
		if pg.Fragments[0].Content != want {
			t.Errorf("slot %d content = %q", i, pg.Fragments[0].Content)
		}
	}
}

// A failed page degrades to an empty slot; its neighbors are untouched.
func TestDegradedPageIsolation(t *testing.T) {
	stub := newStub()
	stub.fail[2] = errors.New("malformed payload")
	lenient := recovery.NewLenientStrategy()

	res, err := New(stub, WithRecovery(lenient)).Process(context.Background(), blankImages(3))
	if err != nil {
		t.Fatalf("lenient run should not fail: %v", err)
	}
	if res.Pages[1].Err == "" || len(res.Pages[1].Fragments) != 0 {
		t.Errorf("failed page not degraded: %+v", res.Pages[1])
	}
	if res.Pages[0].Err != "" || res.Pages[2].Err != "" {
		t.Error("healthy pages marked failed")
	}
	if len(lenient.Errors()) != 1 {
		t.Errorf("recorded errors = %d, want 1", len(lenient.Errors()))
	}
	if !strings.Contains(res.HTML, "content of page 3") {
		t.Error("healthy page missing from document")
	}
}

func TestStrictRecoveryAborts(t *testing.T) {
	stub := newStub()
	stub.fail[2] = errors.New("malformed payload")

	_, err := New(stub, WithRecovery(recovery.NewStrictStrategy())).Process(context.Background(), blankImages(3))
	if err == nil {
		t.Fatal("strict run should surface the failure")
	}
}

func TestContextCarry(t *testing.T) {
	stub := newStub()
	stub.pages[1] = fragment.Page{Number: 1, Summary: "first page held a table", Fragments: []fragment.Fragment{
		{ID: "a", Order: 1, Kind: fragment.KindParagraph, Content: "x"},
	}}

	_, err := New(stub, WithContextCarry()).Process(context.Background(), blankImages(2))
	if err != nil {
		t.Fatal(err)
	}
	if stub.summaries[1] != "" {
		t.Errorf("page 1 summary = %q, want empty", stub.summaries[1])
	}
	if stub.summaries[2] != "first page held a table" {
		t.Errorf("page 2 summary = %q", stub.summaries[2])
	}
}

func TestPersistsPagePayloads(t *testing.T) {
	dir := t.TempDir()
	stub := newStub()

	_, err := New(stub, WithContentDir(dir)).Process(context.Background(), blankImages(2))
	if err != nil {
		t.Fatal(err)
	}
	for n := 1; n <= 2; n++ {
		path := filepath.Join(dir, fmt.Sprintf("page_%d_content.json", n))
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("page payload not persisted: %v", err)
		}
		if !strings.Contains(string(data), fmt.Sprintf("content of page %d", n)) {
			t.Errorf("payload %d missing content", n)
		}
	}
}

func TestMergingProducesSingleFlow(t *testing.T) {
	stub := newStub()
	stub.pages[1] = fragment.Page{Number: 1, Fragments: []fragment.Fragment{
		{ID: "para", Order: 1, Kind: fragment.KindParagraph, Content: "starts here", ContinuesNextPage: true},
	}}
	stub.pages[2] = fragment.Page{Number: 2, Fragments: []fragment.Fragment{
		{ID: "para_c", Order: 1, Kind: fragment.KindParagraph, Content: "and ends here",
			Continuation: true, ContinuationOf: "para"},
	}}

	res, err := New(stub, WithMerging()).Process(context.Background(), blankImages(2))
	if err != nil {
		t.Fatal(err)
	}
	if res.Merged == nil || len(res.Merged.Items) != 1 {
		t.Fatalf("merged view = %+v", res.Merged)
	}
	if !strings.Contains(res.HTML, "starts here and ends here") {
		t.Errorf("document should render the merged stream:\n%s", res.HTML)
	}
}

// Reprocessing persisted payloads runs the pure stages: the fixer assigns
// heading levels and the promoter converts key-value runs.
func TestProcessPages(t *testing.T) {
	pages := []fragment.Page{{Number: 1, Fragments: []fragment.Fragment{
		{ID: "h", Order: 1, Kind: fragment.KindHeader, Content: "1. Introduction"},
		{ID: "kv", Order: 2, Kind: fragment.KindParagraph,
			Content: "Name: Acme Holdings\nShare: 60%\n\nName: Beta Partners\nShare: 40%"},
	}}}

	res, err := New(nil).ProcessPages(pages)
	if err != nil {
		t.Fatal(err)
	}
	got := res.Pages[0]
	if got.Fragments[0].Metadata.Level != 3 {
		t.Errorf("heading level = %d, want 3", got.Fragments[0].Metadata.Level)
	}
	if got.Fragments[1].Kind != fragment.KindTable || !got.Fragments[1].Metadata.ConvertedFromKV {
		t.Errorf("key-value run not promoted: %+v", got.Fragments[1])
	}
	if pages[0].Fragments[0].Metadata.Level != 0 {
		t.Error("input pages mutated")
	}
}
