package retrieve

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/recall-backend/internal/data/repos"
	"github.com/yungbote/recall-backend/internal/data/repos/contents"
	types "github.com/yungbote/recall-backend/internal/domain"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/pinecone"
)

type stubChunkRepo struct {
	mu           sync.Mutex
	dense        []*types.ContentChunk
	denseErr     error
	denseFilters []repos.ChunkCandidateFilter
	lexical      []*types.ContentChunk
	lexicalErr   error
	lexicalCalls int
	// failLexicalFor fails SearchText for queries containing the marker, so
	// tests can break one subquery deterministically under parallel search.
	failLexicalFor string
}

func (s *stubChunkRepo) Create(dbc dbctx.Context, chunks []*types.ContentChunk) ([]*types.ContentChunk, error) {
	return chunks, nil
}

func (s *stubChunkRepo) GetByContentIDs(dbc dbctx.Context, contentIDs []uuid.UUID) ([]*types.ContentChunk, error) {
	return nil, nil
}

func (s *stubChunkRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ContentChunk, error) {
	return nil, nil
}

func (s *stubChunkRepo) DeleteByContentIDs(dbc dbctx.Context, contentIDs []uuid.UUID) error {
	return nil
}

func (s *stubChunkRepo) SearchText(dbc dbctx.Context, query string, limit int) ([]*types.ContentChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lexicalCalls++
	if s.failLexicalFor != "" && strings.Contains(query, s.failLexicalFor) {
		return nil, errors.New("fts unavailable")
	}
	if s.lexicalErr != nil {
		return nil, s.lexicalErr
	}
	return s.lexical, nil
}

func (s *stubChunkRepo) DenseCandidates(dbc dbctx.Context, f repos.ChunkCandidateFilter) ([]*types.ContentChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denseFilters = append(s.denseFilters, f)
	if s.denseErr != nil {
		return nil, s.denseErr
	}
	rows := s.dense
	if len(f.IDs) > 0 {
		allowed := make(map[uuid.UUID]bool, len(f.IDs))
		for _, id := range f.IDs {
			allowed[id] = true
		}
		filtered := make([]*types.ContentChunk, 0, len(rows))
		for _, c := range rows {
			if allowed[c.ID] {
				filtered = append(filtered, c)
			}
		}
		rows = filtered
	}
	return rows, nil
}

func (s *stubChunkRepo) filters() []repos.ChunkCandidateFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repos.ChunkCandidateFilter, len(s.denseFilters))
	copy(out, s.denseFilters)
	return out
}

type stubContentRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.Content
	err  error
}

func newStubContentRepo(rows ...*types.Content) *stubContentRepo {
	m := make(map[uuid.UUID]*types.Content, len(rows))
	for _, r := range rows {
		m[r.ID] = r
	}
	return &stubContentRepo{rows: m}
}

func (s *stubContentRepo) Create(dbc dbctx.Context, items []*types.Content) ([]*types.Content, error) {
	return items, nil
}

func (s *stubContentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*types.Content, 0, len(ids))
	for _, id := range ids {
		if row, ok := s.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *stubContentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id], nil
}

func (s *stubContentRepo) GetByResourceKey(dbc dbctx.Context, resourceKey string) (*types.Content, error) {
	return nil, nil
}

func (s *stubContentRepo) GetByResourceKeys(dbc dbctx.Context, resourceKeys []string) ([]*types.Content, error) {
	return nil, nil
}

func (s *stubContentRepo) List(dbc dbctx.Context, filter repos.ContentFilter) ([]*types.Content, int64, error) {
	return nil, 0, nil
}

func (s *stubContentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (s *stubContentRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	return nil
}

func (s *stubContentRepo) ListByPipelineVersionNot(dbc dbctx.Context, currentVersion string, limit int) ([]*types.Content, error) {
	return nil, nil
}

func (s *stubContentRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	return nil, nil
}

func (s *stubContentRepo) CountCompletedByPipelineVersion(dbc dbctx.Context) (map[string]int64, error) {
	return nil, nil
}

func (s *stubContentRepo) DistinctTags(dbc dbctx.Context, limit int) ([]string, error) {
	return nil, nil
}

func (s *stubContentRepo) TagCounts(dbc dbctx.Context, limit int) ([]contents.TagCount, error) {
	return nil, nil
}

func testContent(id uuid.UUID, title, contentType, tier string) *types.Content {
	return &types.Content{ID: id, ContentType: contentType, Title: title, Tier: tier}
}

func testChunk(contentID uuid.UUID, idx int, text string, emb []float32) *types.ContentChunk {
	return &types.ContentChunk{
		ID:         uuid.New(),
		ContentID:  contentID,
		ChunkIndex: idx,
		Text:       text,
		Embedding:  contents.MustEmbeddingJSON(emb),
	}
}

func TestSearchDenseFloorAndCollapse(t *testing.T) {
	alphaID := uuid.New()
	betaID := uuid.New()
	gammaID := uuid.New()
	ghostID := uuid.New()

	contentRepo := newStubContentRepo(
		testContent(alphaID, "Alpha", "web", "S"),
		testContent(betaID, "Beta", "web", "A"),
		testContent(gammaID, "Gamma", "web", "B"),
	)
	chunks := &stubChunkRepo{dense: []*types.ContentChunk{
		testChunk(alphaID, 0, "alpha best chunk", []float32{1, 0}),
		testChunk(alphaID, 1, "alpha weaker chunk", []float32{0.8, 0.6}),
		testChunk(betaID, 0, "beta chunk", []float32{0.6, 0.8}),
		testChunk(gammaID, 0, "gamma orthogonal chunk", []float32{0, 1}),
		testChunk(ghostID, 0, "parent row is gone", []float32{1, 0}),
	}}

	r := newTestRetriever(t, &stubGenerator{}, &stubEmbedder{vec: []float32{1, 0}}, &stubReranker{}, nil, chunks, contentRepo)
	sources, err := r.Search(context.Background(), Query{Query: "alpha things", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d: %v", len(sources), sources)
	}
	if sources[0].ID != alphaID || sources[0].Snippet != "alpha best chunk" {
		t.Fatalf("expected alpha's best chunk first, got %+v", sources[0])
	}
	if sources[0].Score != 1.0 {
		t.Fatalf("expected cosine 1.0 for the aligned chunk, got %v", sources[0].Score)
	}
	if sources[1].ID != betaID {
		t.Fatalf("expected beta second, got %v", sources[1].ID)
	}
	for _, s := range sources {
		if s.ID == gammaID {
			t.Fatalf("orthogonal chunk must fall under the similarity floor")
		}
		if s.ID == ghostID {
			t.Fatalf("hits without a content row must be dropped")
		}
	}
}

func TestSearchFilterPassthrough(t *testing.T) {
	chunks := &stubChunkRepo{}
	r := newTestRetriever(t, &stubGenerator{}, &stubEmbedder{vec: []float32{1, 0}}, &stubReranker{}, nil, chunks, newStubContentRepo())

	if _, err := r.Search(context.Background(), Query{Query: "filtered", Limit: 5, ContentType: "web", TierMin: "A"}); err != nil {
		t.Fatalf("Search: %v", err)
	}

	filters := chunks.filters()
	if len(filters) != 1 {
		t.Fatalf("expected one dense pool query, got %d", len(filters))
	}
	f := filters[0]
	if len(f.ContentTypes) != 1 || f.ContentTypes[0] != "web" {
		t.Fatalf("content type filter not passed through: %v", f.ContentTypes)
	}
	if len(f.Tiers) != 2 || f.Tiers[0] != "S" || f.Tiers[1] != "A" {
		t.Fatalf("tier_min=A must scan tiers [S A], got %v", f.Tiers)
	}
	if f.Limit != 1200 {
		t.Fatalf("expected default candidate pool 1200, got %d", f.Limit)
	}
}

func TestSearchLexicalFallbackWhenEmbedFails(t *testing.T) {
	pageID := uuid.New()
	videoID := uuid.New()
	contentRepo := newStubContentRepo(
		testContent(pageID, "Matching Page", "web", "B"),
		testContent(videoID, "Matching Video", "youtube", "B"),
	)
	chunks := &stubChunkRepo{lexical: []*types.ContentChunk{
		testChunk(pageID, 0, "lexical hit one", nil),
		testChunk(videoID, 0, "lexical hit two", nil),
	}}

	r := newTestRetriever(t, &stubGenerator{}, &stubEmbedder{err: errors.New("embed down")}, &stubReranker{}, nil, chunks, contentRepo)
	sources, err := r.Search(context.Background(), Query{Query: "lexical words", Limit: 5, ContentType: "web"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if chunks.lexicalCalls != 1 {
		t.Fatalf("expected one full-text query, got %d", chunks.lexicalCalls)
	}
	if len(chunks.filters()) != 0 {
		t.Fatalf("dense pool must not be scanned without a query embedding")
	}
	if len(sources) != 1 || sources[0].ID != pageID {
		t.Fatalf("content type filter must apply to lexical hits, got %v", sources)
	}
}

func TestSearchLexicalFallbackWhenDenseEmpty(t *testing.T) {
	pageID := uuid.New()
	contentRepo := newStubContentRepo(testContent(pageID, "Only Lexical", "web", "C"))
	chunks := &stubChunkRepo{lexical: []*types.ContentChunk{
		testChunk(pageID, 0, "text search found me", nil),
	}}

	r := newTestRetriever(t, &stubGenerator{}, &stubEmbedder{vec: []float32{1, 0}}, &stubReranker{}, nil, chunks, contentRepo)
	sources, err := r.Search(context.Background(), Query{Query: "rare phrase", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(chunks.filters()) != 1 {
		t.Fatalf("dense pool should have been scanned first")
	}
	if chunks.lexicalCalls != 1 {
		t.Fatalf("expected lexical fallback after an empty dense result")
	}
	if len(sources) != 1 || sources[0].ID != pageID {
		t.Fatalf("expected the lexical hit, got %v", sources)
	}
}

func TestVectorCandidatesConstrainThePool(t *testing.T) {
	pageID := uuid.New()
	otherID := uuid.New()
	contentRepo := newStubContentRepo(
		testContent(pageID, "In Candidates", "web", "B"),
		testContent(otherID, "Not In Candidates", "web", "B"),
	)
	candidate := testChunk(pageID, 0, "vector candidate", []float32{1, 0})
	bystander := testChunk(otherID, 0, "not a candidate", []float32{1, 0})
	chunks := &stubChunkRepo{dense: []*types.ContentChunk{candidate, bystander}}
	vec := &stubVectorStore{matches: []pinecone.VectorMatch{
		{ID: candidate.ID.String(), Score: 0.99},
		{ID: "not-a-uuid", Score: 0.5},
	}}

	r := newTestRetriever(t, &stubGenerator{}, &stubEmbedder{vec: []float32{1, 0}}, &stubReranker{}, vec, chunks, contentRepo)
	sources, err := r.Search(context.Background(), Query{Query: "vector accelerated", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if vec.queries != 1 {
		t.Fatalf("expected one vector store query, got %d", vec.queries)
	}
	if vec.lastNS != "chunks" {
		t.Fatalf("expected the chunks namespace, got %q", vec.lastNS)
	}
	filters := chunks.filters()
	if len(filters) != 1 || len(filters[0].IDs) != 1 || filters[0].IDs[0] != candidate.ID {
		t.Fatalf("vector hits must constrain the pool to parsed chunk ids, got %+v", filters)
	}
	if len(sources) != 1 || sources[0].ID != pageID {
		t.Fatalf("expected only the candidate-backed content, got %v", sources)
	}
}

func TestVectorStoreFailureScansFullPool(t *testing.T) {
	pageID := uuid.New()
	contentRepo := newStubContentRepo(testContent(pageID, "Still Found", "web", "B"))
	chunks := &stubChunkRepo{dense: []*types.ContentChunk{
		testChunk(pageID, 0, "found without acceleration", []float32{1, 0}),
	}}
	vec := &stubVectorStore{err: errors.New("index offline")}

	r := newTestRetriever(t, &stubGenerator{}, &stubEmbedder{vec: []float32{1, 0}}, &stubReranker{}, vec, chunks, contentRepo)
	sources, err := r.Search(context.Background(), Query{Query: "resilient", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	filters := chunks.filters()
	if len(filters) != 1 || len(filters[0].IDs) != 0 {
		t.Fatalf("a failed vector query must leave the pool unconstrained, got %+v", filters)
	}
	if len(sources) != 1 || sources[0].ID != pageID {
		t.Fatalf("expected the dense hit despite the vector outage, got %v", sources)
	}
}

func TestFuseRRF(t *testing.T) {
	a := contentHit{content: testContent(uuid.New(), "A", "web", "B"), score: 0.9, snippet: "a"}
	b := contentHit{content: testContent(uuid.New(), "B", "web", "B"), score: 0.8, snippet: "b"}
	c := contentHit{content: testContent(uuid.New(), "C", "web", "B"), score: 0.7, snippet: "c"}

	fused := fuseRRF([][]contentHit{{a, b}, {b, c}}, 10)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused contents, got %d", len(fused))
	}
	if fused[0].content.ID != b.content.ID || fused[1].content.ID != a.content.ID || fused[2].content.ID != c.content.ID {
		t.Fatalf("expected order [B A C], got [%s %s %s]",
			fused[0].content.Title, fused[1].content.Title, fused[2].content.Title)
	}

	wantB := 1.0/(rrfK+1) + 1.0/rrfK
	wantA := 1.0 / rrfK
	wantC := 1.0 / (rrfK + 1)
	if fused[0].score != wantB || fused[1].score != wantA || fused[2].score != wantC {
		t.Fatalf("rrf scores wrong: got [%v %v %v] want [%v %v %v]",
			fused[0].score, fused[1].score, fused[2].score, wantB, wantA, wantC)
	}
}

func TestFuseRRFKeepCap(t *testing.T) {
	lists := make([][]contentHit, 1)
	for i := 0; i < 6; i++ {
		lists[0] = append(lists[0], contentHit{content: testContent(uuid.New(), "X", "web", "B"), score: 0.5})
	}
	if fused := fuseRRF(lists, 4); len(fused) != 4 {
		t.Fatalf("expected keep cap 4, got %d", len(fused))
	}
}

func TestSearchAllPartialFailure(t *testing.T) {
	pageID := uuid.New()
	contentRepo := newStubContentRepo(testContent(pageID, "Survivor", "web", "B"))
	chunks := &stubChunkRepo{
		lexical: []*types.ContentChunk{
			testChunk(pageID, 0, "found lexically", nil),
		},
		failLexicalFor: "badterm",
	}
	emb := &stubEmbedder{err: errors.New("embed down")}

	r := newTestRetriever(t, &stubGenerator{}, emb, &stubReranker{}, nil, chunks, contentRepo)
	rt := r.(*retriever)
	fused, err := rt.searchAll(context.Background(), []string{"good query", "badterm query"}, Query{}, 5)
	if err != nil {
		t.Fatalf("one healthy subquery must carry the search: %v", err)
	}
	if len(fused) != 1 || fused[0].content.ID != pageID {
		t.Fatalf("expected the surviving subquery's hit, got %+v", fused)
	}
}

func TestSearchAllTotalFailure(t *testing.T) {
	chunks := &stubChunkRepo{lexicalErr: errors.New("store down")}
	emb := &stubEmbedder{err: errors.New("embed down")}

	r := newTestRetriever(t, &stubGenerator{}, emb, &stubReranker{}, nil, chunks, newStubContentRepo())
	rt := r.(*retriever)
	if _, err := rt.searchAll(context.Background(), []string{"one", "two"}, Query{}, 5); err == nil {
		t.Fatalf("expected an error when every subquery fails")
	}
}
