package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/raglab/docuchat/internal/content"
	"github.com/raglab/docuchat/internal/genai"
	"github.com/raglab/docuchat/internal/keypool"
	"github.com/raglab/docuchat/internal/vectorstore"
)

type fakeChecker struct {
	existing map[string]bool
}

func (f *fakeChecker) Exists(_ context.Context, name string) (bool, error) {
	return f.existing[name], nil
}

type fakeSearcher struct {
	chunks []vectorstore.RetrievedChunk
	err    error
}

func (f *fakeSearcher) Search(context.Context, string, string, int) ([]vectorstore.RetrievedChunk, error) {
	return f.chunks, f.err
}

type fakeChatGen struct {
	respond func(req genai.GenerateRequest) (string, error)
}

func (f *fakeChatGen) Generate(_ context.Context, _ string, req genai.GenerateRequest) (string, error) {
	return f.respond(req)
}

type fakeResolver struct{}

func (fakeResolver) DataURI(relPath string) (string, error) {
	return "data:image/png;base64,ZmFrZQ==:" + relPath, nil
}

func newTestAnswerer(t *testing.T, search Searcher, gen Generator) *Answerer {
	t.Helper()
	pool, err := keypool.New([]string{"k1"})
	if err != nil {
		t.Fatalf("keypool.New: %v", err)
	}
	return NewAnswerer(search, gen, pool, fakeResolver{}, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		SearchK:   5,
		PieceSize: 8,
	})
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestRegistryCreateRequiresCollection(t *testing.T) {
	reg := NewRegistry(&fakeChecker{existing: map[string]bool{"report": true}})

	if _, err := reg.Create(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing collection")
	}
	if got := reg.List(); len(got) != 0 {
		t.Fatalf("sessions after failed create = %d, want 0", len(got))
	}

	s, err := reg.Create(context.Background(), "report")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == "" || s.Collection != "report" {
		t.Errorf("session = %+v", s)
	}

	got, err := reg.Get(s.ID)
	if err != nil || got != s {
		t.Errorf("Get = %v, %v", got, err)
	}
	if err := reg.Delete(s.ID); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if _, err := reg.Get(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after delete = %v, want ErrSessionNotFound", err)
	}
}

func TestHistoryBoundedToLastFiveExchanges(t *testing.T) {
	s := &Session{ID: "s1", Collection: "c"}
	for i := 1; i <= 6; i++ {
		s.recordExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	h := s.History()
	if len(h) != 10 {
		t.Fatalf("history length = %d, want 10", len(h))
	}
	// Oldest exchange evicted, newest retained.
	if h[0].Content != "q2" {
		t.Errorf("h[0] = %+v, want q2", h[0])
	}
	if h[9].Content != "a6" {
		t.Errorf("h[9] = %+v, want a6", h[9])
	}
}

func TestAskStreamsAnswerAndUpdatesHistory(t *testing.T) {
	search := &fakeSearcher{chunks: []vectorstore.RetrievedChunk{{
		EnrichedChunk: content.EnrichedChunk{
			Index:        1,
			OriginalText: "Revenue grew 10% in Q3.",
			PageNumbers:  []int{3},
		},
	}}}
	gen := &fakeChatGen{respond: func(req genai.GenerateRequest) (string, error) {
		if !strings.Contains(req.Text, "Revenue grew 10% in Q3.") {
			t.Errorf("prompt missing retrieved context: %q", req.Text)
		}
		return `{"answer":"Revenue grew 10 percent.","image_indices":[]}`, nil
	}}
	a := newTestAnswerer(t, search, gen)
	s := &Session{ID: "s1", Collection: "c"}

	events := collect(t, a.Ask(context.Background(), s, "How did revenue do?"))

	if len(eventsOfType(events, EventSearchStart)) != 1 {
		t.Error("missing search_start")
	}
	if len(eventsOfType(events, EventResponseStart)) != 1 {
		t.Error("missing response_start")
	}
	var streamed strings.Builder
	for _, ev := range eventsOfType(events, EventContent) {
		streamed.WriteString(ev.Data.(map[string]any)["text"].(string))
	}
	if streamed.String() != "Revenue grew 10 percent." {
		t.Errorf("streamed = %q", streamed.String())
	}
	done := eventsOfType(events, EventComplete)
	if len(done) != 1 {
		t.Fatal("missing complete")
	}
	doneData := done[0].Data.(map[string]any)
	if doneData["context_chunks"] != 1 {
		t.Errorf("context_chunks = %v, want 1", doneData["context_chunks"])
	}
	if doneData["images_shown"] != 0 {
		t.Errorf("images_shown = %v, want 0", doneData["images_shown"])
	}
	if events[len(events)-1].Type != EventEnd {
		t.Errorf("last event = %s, want end", events[len(events)-1].Type)
	}

	h := s.History()
	if len(h) != 2 || h[1].Content != "Revenue grew 10 percent." {
		t.Errorf("history = %+v", h)
	}
}

func TestAskEmitsEachReferencedImageOnce(t *testing.T) {
	search := &fakeSearcher{chunks: []vectorstore.RetrievedChunk{{
		EnrichedChunk: content.EnrichedChunk{
			Index:         1,
			OriginalText:  "See the charts.",
			ImagePaths:    []string{"images/image_0001.png", "images/image_0002.png"},
			ImageVerdicts: []string{"revenue chart", "***DO NOT USE THIS IMAGE*** decorative"},
		},
	}}}
	// Duplicate and out-of-range references in one response.
	gen := &fakeChatGen{respond: func(genai.GenerateRequest) (string, error) {
		return `{"answer":"Shown below.","image_indices":[1,1,7]}`, nil
	}}
	a := newTestAnswerer(t, search, gen)
	s := &Session{ID: "s1", Collection: "c"}

	events := collect(t, a.Ask(context.Background(), s, "show the chart"))

	imgs := eventsOfType(events, EventImage)
	if len(imgs) != 1 {
		t.Fatalf("image events = %d, want 1", len(imgs))
	}
	data := imgs[0].Data.(map[string]any)
	if data["path"] != "images/image_0001.png" {
		t.Errorf("image path = %v", data["path"])
	}
	found := eventsOfType(events, EventImagesFound)
	if len(found) != 1 || found[0].Data.(map[string]any)["count"] != 1 {
		t.Errorf("images_found = %+v", found)
	}
	done := eventsOfType(events, EventComplete)
	if len(done) != 1 {
		t.Fatal("missing complete")
	}
	if shown := done[0].Data.(map[string]any)["images_shown"]; shown != 1 {
		t.Errorf("images_shown = %v, want 1", shown)
	}
}

func TestAskSerializesTurnsPerSession(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	gen := &fakeChatGen{respond: func(genai.GenerateRequest) (string, error) {
		entered <- struct{}{}
		<-release
		return `{"answer":"ok","image_indices":[]}`, nil
	}}
	a := newTestAnswerer(t, &fakeSearcher{}, gen)
	s := &Session{ID: "s1", Collection: "c"}

	first := a.Ask(context.Background(), s, "first")
	<-entered

	// While the first turn is mid-generation, a second ask on the same
	// session must wait instead of running an interleaved turn.
	second := a.Ask(context.Background(), s, "second")
	select {
	case <-entered:
		t.Fatal("second turn started while first was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	for _, events := range []<-chan Event{first, second} {
		got := collect(t, events)
		if len(eventsOfType(got, EventComplete)) != 1 {
			t.Errorf("turn did not complete: %+v", got)
		}
	}
	if h := s.History(); len(h) != 4 {
		t.Errorf("history length = %d, want 4", len(h))
	}
}

func TestAskExcludedImagesNeverEnterCatalog(t *testing.T) {
	retrieved := []vectorstore.RetrievedChunk{{
		EnrichedChunk: content.EnrichedChunk{
			ImagePaths:    []string{"images/image_0001.png"},
			ImageVerdicts: []string{"***DO NOT USE THIS IMAGE***"},
		},
	}}
	_, catalog := buildContext(retrieved)
	if len(catalog) != 0 {
		t.Fatalf("catalog = %v, want empty", catalog)
	}
}

func TestAskFailureLeavesHistoryUntouched(t *testing.T) {
	search := &fakeSearcher{err: errors.New("index unreachable")}
	gen := &fakeChatGen{respond: func(genai.GenerateRequest) (string, error) {
		t.Fatal("generator must not be called when search fails")
		return "", nil
	}}
	a := newTestAnswerer(t, search, gen)
	s := &Session{ID: "s1", Collection: "c"}
	s.recordExchange("earlier q", "earlier a")

	events := collect(t, a.Ask(context.Background(), s, "q"))

	if len(eventsOfType(events, EventError)) != 1 {
		t.Error("missing error event")
	}
	if events[len(events)-1].Type != EventEnd {
		t.Error("stream must terminate with end")
	}
	if h := s.History(); len(h) != 2 {
		t.Errorf("history grew on failed turn: %+v", h)
	}
}

func TestResolveIndices(t *testing.T) {
	tests := []struct {
		name    string
		in      []int
		catalog int
		want    []int
	}{
		{"dedup keeps first order", []int{2, 1, 2, 1}, 3, []int{2, 1}},
		{"out of range dropped", []int{0, 4, -1}, 3, nil},
		{"empty", nil, 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveIndices(tt.in, tt.catalog)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestSplitPieces(t *testing.T) {
	got := splitPieces("abcdefgh", 3)
	want := []string{"abc", "def", "gh"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("piece %d = %q, want %q", i, got[i], want[i])
		}
	}
	if got := splitPieces("", 3); got != nil {
		t.Errorf("empty input: got %v", got)
	}
}
