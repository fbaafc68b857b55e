package pinecone

import (
	"context"
	"fmt"
	"testing"

	"github.com/yungbote/recall-backend/internal/platform/logger"
)

type stubClient struct {
	describeHost string
	describeErr  error

	upserts []UpsertRequest
	queries []QueryRequest
	deletes []DeleteRequest

	queryResp *QueryResponse
}

func (s *stubClient) DescribeIndex(ctx context.Context, indexName string) (*IndexDescription, error) {
	if s.describeErr != nil {
		return nil, s.describeErr
	}
	return &IndexDescription{Name: indexName, Host: s.describeHost}, nil
}

func (s *stubClient) UpsertVectors(ctx context.Context, host string, req UpsertRequest) (*UpsertResponse, error) {
	s.upserts = append(s.upserts, req)
	return &UpsertResponse{UpsertedCount: int64(len(req.Vectors))}, nil
}

func (s *stubClient) Query(ctx context.Context, host string, req QueryRequest) (*QueryResponse, error) {
	s.queries = append(s.queries, req)
	if s.queryResp != nil {
		return s.queryResp, nil
	}
	return &QueryResponse{}, nil
}

func (s *stubClient) DeleteVectors(ctx context.Context, host string, req DeleteRequest) (*DeleteResponse, error) {
	s.deletes = append(s.deletes, req)
	return &DeleteResponse{}, nil
}

func newStoreTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

func TestNewVectorStoreRequiresIndexName(t *testing.T) {
	t.Setenv("PINECONE_INDEX_NAME", "")
	t.Setenv("PINECONE_INDEX_HOST", "")

	_, err := NewVectorStore(newStoreTestLogger(t), &stubClient{})
	if err == nil {
		t.Fatalf("NewVectorStore: expected error, got nil")
	}
}

func TestNewVectorStoreResolvesHostViaDescribeIndex(t *testing.T) {
	t.Setenv("PINECONE_INDEX_NAME", "recall-chunks")
	t.Setenv("PINECONE_INDEX_HOST", "")
	t.Setenv("PINECONE_NAMESPACE_PREFIX", "")

	stub := &stubClient{describeHost: "recall-chunks-abc.svc.pinecone.io"}
	vs, err := NewVectorStore(newStoreTestLogger(t), stub)
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}

	if err := vs.Upsert(context.Background(), "chunks", []Vector{{ID: "v1", Values: []float32{1}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(stub.upserts) != 1 {
		t.Fatalf("upserts: want=1 got=%d", len(stub.upserts))
	}
	if stub.upserts[0].Namespace != "rc:chunks" {
		t.Fatalf("namespace: want=%q got=%q", "rc:chunks", stub.upserts[0].Namespace)
	}
}

func TestNewVectorStoreDescribeIndexFailure(t *testing.T) {
	t.Setenv("PINECONE_INDEX_NAME", "recall-chunks")
	t.Setenv("PINECONE_INDEX_HOST", "")

	stub := &stubClient{describeErr: fmt.Errorf("boom")}
	_, err := NewVectorStore(newStoreTestLogger(t), stub)
	if err == nil {
		t.Fatalf("NewVectorStore: expected error, got nil")
	}
}

func TestVectorStoreNamespaceQualification(t *testing.T) {
	t.Setenv("PINECONE_INDEX_NAME", "recall-chunks")
	t.Setenv("PINECONE_INDEX_HOST", "recall-chunks-abc.svc.pinecone.io")
	t.Setenv("PINECONE_NAMESPACE_PREFIX", "it")

	stub := &stubClient{
		queryResp: &QueryResponse{Matches: []QueryMatch{
			{ID: "v1", Score: 0.9},
			{ID: "", Score: 0.5},
			{ID: "v2", Score: 0.4},
		}},
	}
	vs, err := NewVectorStore(newStoreTestLogger(t), stub)
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}

	matches, err := vs.QueryMatches(context.Background(), "", []float32{1, 2}, 5, nil)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(stub.queries) != 1 {
		t.Fatalf("queries: want=1 got=%d", len(stub.queries))
	}
	// Empty namespace collapses to the bare prefix.
	if stub.queries[0].Namespace != "it" {
		t.Fatalf("namespace: want=%q got=%q", "it", stub.queries[0].Namespace)
	}
	if len(matches) != 2 {
		t.Fatalf("matches: want=2 got=%d (blank ids dropped)", len(matches))
	}
	if matches[0].ID != "v1" || matches[0].Score != 0.9 {
		t.Fatalf("first match: got=%+v", matches[0])
	}

	ids, err := vs.QueryIDs(context.Background(), "chunks", []float32{1, 2}, 5, nil)
	if err != nil {
		t.Fatalf("QueryIDs: %v", err)
	}
	if stub.queries[1].Namespace != "it:chunks" {
		t.Fatalf("namespace: want=%q got=%q", "it:chunks", stub.queries[1].Namespace)
	}
	if len(ids) != 2 || ids[0] != "v1" || ids[1] != "v2" {
		t.Fatalf("ids: got=%v", ids)
	}
}

func TestVectorStoreDeleteIDs(t *testing.T) {
	t.Setenv("PINECONE_INDEX_NAME", "recall-chunks")
	t.Setenv("PINECONE_INDEX_HOST", "recall-chunks-abc.svc.pinecone.io")
	t.Setenv("PINECONE_NAMESPACE_PREFIX", "")

	stub := &stubClient{}
	vs, err := NewVectorStore(newStoreTestLogger(t), stub)
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}

	if err := vs.DeleteIDs(context.Background(), "chunks", nil); err != nil {
		t.Fatalf("DeleteIDs empty: %v", err)
	}
	if len(stub.deletes) != 0 {
		t.Fatalf("deletes after empty call: want=0 got=%d", len(stub.deletes))
	}

	if err := vs.DeleteIDs(context.Background(), "chunks", []string{"v1", "v2"}); err != nil {
		t.Fatalf("DeleteIDs: %v", err)
	}
	if len(stub.deletes) != 1 {
		t.Fatalf("deletes: want=1 got=%d", len(stub.deletes))
	}
	if stub.deletes[0].Namespace != "rc:chunks" {
		t.Fatalf("namespace: want=%q got=%q", "rc:chunks", stub.deletes[0].Namespace)
	}
	if len(stub.deletes[0].IDs) != 2 {
		t.Fatalf("ids: want=2 got=%d", len(stub.deletes[0].IDs))
	}
}
