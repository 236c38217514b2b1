package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/legal-rag/internal/core/chunk"
	"github.com/jinford/legal-rag/internal/core/ingest"
	"github.com/jinford/legal-rag/internal/core/retrieval"
	"github.com/jinford/legal-rag/internal/core/vector"
	"github.com/jinford/legal-rag/internal/infra/memory"
)

// --- テスト用フェイク群 ---

type fakeDocRepo struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*ingest.Document
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: make(map[uuid.UUID]*ingest.Document)}
}

func (r *fakeDocRepo) CreateDocument(ctx context.Context, doc *ingest.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *doc
	r.docs[doc.ID] = &copied
	return nil
}

func (r *fakeDocRepo) CompleteDocument(ctx context.Context, id uuid.UUID, chunkCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return ingest.ErrDocumentNotFound
	}
	doc.Status = ingest.StatusCompleted
	doc.ChunkCount = chunkCount
	return nil
}

func (r *fakeDocRepo) FailDocument(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return ingest.ErrDocumentNotFound
	}
	doc.Status = ingest.StatusFailed
	return nil
}

func (r *fakeDocRepo) GetDocumentByFingerprint(ctx context.Context, fingerprint string) (*ingest.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.docs {
		if doc.Fingerprint == fingerprint {
			copied := *doc
			return &copied, nil
		}
	}
	return nil, ingest.ErrDocumentNotFound
}

func (r *fakeDocRepo) GetDocument(ctx context.Context, id uuid.UUID) (*ingest.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, ingest.ErrDocumentNotFound
	}
	copied := *doc
	return &copied, nil
}

func (r *fakeDocRepo) ListDocuments(ctx context.Context) ([]*ingest.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ingest.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		copied := *doc
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeDocRepo) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return ingest.ErrDocumentNotFound
	}
	delete(r.docs, id)
	return nil
}

type fakeChatRepo struct {
	mu       sync.Mutex
	chats    map[uuid.UUID]*retrieval.Chat
	messages map[uuid.UUID][]*retrieval.Message
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{
		chats:    make(map[uuid.UUID]*retrieval.Chat),
		messages: make(map[uuid.UUID][]*retrieval.Message),
	}
}

func (r *fakeChatRepo) CreateChat(ctx context.Context, chat *retrieval.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *chat
	r.chats[chat.ID] = &copied
	return nil
}

func (r *fakeChatRepo) GetChat(ctx context.Context, id uuid.UUID) (*retrieval.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[id]
	if !ok {
		return nil, retrieval.ErrChatNotFound
	}
	copied := *chat
	return &copied, nil
}

func (r *fakeChatRepo) AppendMessage(ctx context.Context, msg *retrieval.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *msg
	r.messages[msg.ChatID] = append(r.messages[msg.ChatID], &copied)
	return nil
}

func (r *fakeChatRepo) ListMessages(ctx context.Context, chatID uuid.UUID) ([]*retrieval.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[chatID], nil
}

type fakeEmbedder struct{ dimension int }

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	vec[0] = float32(len(text))
	return vec, nil
}

func (e *fakeEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i], _ = e.Embed(ctx, text)
	}
	return out, nil
}

func (e *fakeEmbedder) Dimension() int    { return e.dimension }
func (e *fakeEmbedder) MaxBatchSize() int { return 100 }

type fakeGenerator struct{ answer string }

func (g *fakeGenerator) GenerateAnswer(ctx context.Context, question string, contexts []*retrieval.RetrievalResult) (string, error) {
	return g.answer, nil
}

type wholeTextChunker struct{}

func (c *wholeTextChunker) Chunk(path, text string, meta chunk.Metadata) ([]*chunk.Chunk, error) {
	return []*chunk.Chunk{{
		ID:       chunk.ChunkID(path, 0, text),
		Source:   meta.Source,
		Section:  chunk.SectionUnknown,
		Text:     text,
		Filename: meta.Filename,
	}}, nil
}

type fixture struct {
	handler    http.Handler
	docRepo    *fakeDocRepo
	store      *memory.Store
	dispatcher *ingest.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	docRepo := newFakeDocRepo()
	store := memory.NewStore()
	embedder := &fakeEmbedder{dimension: 2}

	ingestService := ingest.NewIngestService(docRepo, &wholeTextChunker{}, embedder, store, ingest.WithIngestLogger(logger))
	dispatcher := ingest.NewDispatcher(context.Background(), ingestService, &ingest.DispatcherConfig{WorkerCount: 1, QueueSize: 4}, logger)
	t.Cleanup(dispatcher.Close)

	searchService := retrieval.NewSearchService(embedder, store, retrieval.WithSearchLogger(logger))
	answerService := retrieval.NewAnswerService(searchService, &fakeGenerator{answer: "generated answer"}, newFakeChatRepo(), retrieval.WithAnswerLogger(logger))

	handler := NewHandler(ingestService, dispatcher, searchService, answerService, logger)
	mux := http.NewServeMux()
	handler.Register(mux)

	return &fixture{
		handler:    mux,
		docRepo:    docRepo,
		store:      store,
		dispatcher: dispatcher,
	}
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestHandler_Root(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")
}

func TestHandler_UploadAccepted(t *testing.T) {
	f := newFixture(t)

	body, contentType := multipartBody(t, "act.txt", "Article 1. Some legal text.")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "act.txt", resp.Filename)
	assert.False(t, resp.Deduplicated)
	_, err := uuid.Parse(resp.ID)
	assert.NoError(t, err)

	// ワーカー完走後にドキュメントが completed になる
	f.dispatcher.Close()
	doc, err := f.docRepo.GetDocument(context.Background(), uuid.MustParse(resp.ID))
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusCompleted, doc.Status)
	assert.Equal(t, 1, f.store.Count())
}

func TestHandler_UploadDeduplicates(t *testing.T) {
	f := newFixture(t)

	content := "Article 1. Same content."
	upload := func() *httptest.ResponseRecorder {
		body, contentType := multipartBody(t, "act.txt", content)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		return rec
	}

	first := upload()
	require.Equal(t, http.StatusAccepted, first.Code)

	second := upload()
	require.Equal(t, http.StatusOK, second.Code)

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.True(t, resp.Deduplicated)
}

func TestHandler_UploadMissingFile(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_UploadUnsupportedFormat(t *testing.T) {
	f := newFixture(t)

	body, contentType := multipartBody(t, "scan.pdf", "%PDF-1.4")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	// 非対応形式は202で受けてから failed にするのではなく、その場で拒否する
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported")

	docs, err := f.docRepo.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestHandler_DocumentLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 事前に1件同期取り込みしておく
	doc := &ingest.Document{
		ID:          uuid.New(),
		Filename:    "act.txt",
		Title:       "act",
		Fingerprint: "fp",
		Status:      ingest.StatusCompleted,
		ChunkCount:  1,
	}
	require.NoError(t, f.docRepo.CreateDocument(ctx, doc))

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []documentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, doc.ID.String(), listed[0].ID)

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+doc.ID.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_DocumentInvalidID(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Search(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// インデックスへ直接投入して検索だけを検証する
	require.NoError(t, f.store.EnsureCollection(ctx, 2))
	embedder := &fakeEmbedder{dimension: 2}
	vec, err := embedder.Embed(ctx, "some legal text")
	require.NoError(t, err)
	require.NoError(t, f.store.Upsert(ctx, []*vector.EmbeddedChunk{
		{
			Chunk:     &chunk.Chunk{ID: "c1", Source: "act.txt", Text: "some legal text", Page: 1},
			Embedding: vec,
		},
	}))

	body := strings.NewReader(`{"query": "some legal text", "limit": 3}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieval/search", body)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "some legal text", resp.Results[0].Text)
	assert.Equal(t, "act.txt", resp.Results[0].Source)
	assert.Equal(t, 1, resp.Results[0].Page)
}

func TestHandler_SearchEmptyQuery(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieval/search", strings.NewReader(`{"query": ""}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Chat(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"message": "what is the law?"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "generated answer", resp.Response)
	assert.NotNil(t, resp.Citations)
	_, err := uuid.Parse(resp.ChatID)
	assert.NoError(t, err)
}

func TestHandler_ChatUnknownChatID(t *testing.T) {
	f := newFixture(t)

	body := `{"message": "q", "chat_id": "` + uuid.NewString() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ChatEmptyMessage(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"message": ""}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
