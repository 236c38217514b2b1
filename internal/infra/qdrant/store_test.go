package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/legal-rag/internal/core/chunk"
	"github.com/jinford/legal-rag/internal/core/vector"
)

func TestPointID_Deterministic(t *testing.T) {
	id1 := PointID("chunk-abc")
	id2 := PointID("chunk-abc")
	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, PointID("chunk-def"))
}

func TestStore_EnsureCollectionCreates(t *testing.T) {
	var created map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/legal_chunks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("PUT /collections/legal_chunks", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		fmt.Fprint(w, `{"result":true,"status":"ok"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewStore(Config{URL: srv.URL})
	require.NoError(t, s.EnsureCollection(context.Background(), 1536))

	vectors, ok := created["vectors"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1536), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestStore_EnsureCollectionExisting(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/legal_chunks", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"config":{"params":{"vectors":{"size":1536,"distance":"Cosine"}}}}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewStore(Config{URL: srv.URL})

	// 次元が一致する既存コレクションはそのまま使う
	require.NoError(t, s.EnsureCollection(context.Background(), 1536))

	// 次元が食い違うとスキーマ衝突
	err := s.EnsureCollection(context.Background(), 768)
	assert.ErrorIs(t, err, vector.ErrSchemaConflict)
}

func TestStore_Upsert(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/legal_chunks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("PUT /collections/legal_chunks", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":true}`)
	})
	mux.HandleFunc("PUT /collections/legal_chunks/points", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, `{"result":{"status":"completed"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewStore(Config{URL: srv.URL})
	require.NoError(t, s.EnsureCollection(context.Background(), 2))

	c := &chunk.Chunk{
		ID:         "chunk-1",
		Source:     "act.txt",
		Section:    "Article 1",
		Text:       "body",
		ChunkIndex: 0,
		Filename:   "act.txt",
		Page:       2,
	}
	err := s.Upsert(context.Background(), []*vector.EmbeddedChunk{
		{Chunk: c, Embedding: []float32{0.1, 0.2}},
	})
	require.NoError(t, err)

	points, ok := body["points"].([]any)
	require.True(t, ok)
	require.Len(t, points, 1)
	point := points[0].(map[string]any)
	assert.Equal(t, PointID("chunk-1"), point["id"])

	payload := point["payload"].(map[string]any)
	assert.Equal(t, "chunk-1", payload["id"])
	assert.Equal(t, "act.txt", payload["source"])
	assert.Equal(t, "Article 1", payload["section"])
	assert.Equal(t, float64(2), payload["page"])
	// Embeddingはペイロードに含まれない
	assert.NotContains(t, payload, "embedding")
}

func TestStore_UpsertDimensionMismatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/legal_chunks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("PUT /collections/legal_chunks", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":true}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewStore(Config{URL: srv.URL})
	require.NoError(t, s.EnsureCollection(context.Background(), 3))

	err := s.Upsert(context.Background(), []*vector.EmbeddedChunk{
		{Chunk: &chunk.Chunk{ID: "chunk-1"}, Embedding: []float32{1, 2}},
	})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestStore_Search(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /collections/legal_chunks/points/search", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, `{"result":[
			{"score":0.92,"payload":{"id":"c1","source":"act.txt","section":"Article 1","text":"first","chunk_index":0,"page":3,"token_count":4}},
			{"score":0.81,"payload":{"id":"c2","source":"code.txt","text":"second","chunk_index":1}}
		]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewStore(Config{URL: srv.URL})
	matches, err := s.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)

	assert.Equal(t, float64(5), body["limit"])
	assert.Equal(t, true, body["with_payload"])

	require.Len(t, matches, 2)
	assert.Equal(t, 0.92, matches[0].Score)
	assert.Equal(t, "c1", matches[0].Chunk.ID)
	assert.Equal(t, "act.txt", matches[0].Chunk.Source)
	assert.Equal(t, "Article 1", matches[0].Chunk.Section)
	assert.Equal(t, 3, matches[0].Page)
	assert.Equal(t, 4, matches[0].Chunk.TokenCount)
	assert.Equal(t, "c2", matches[1].Chunk.ID)
	assert.Equal(t, 1, matches[1].Chunk.ChunkIndex)
}

func TestStore_DeleteBySource(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /collections/legal_chunks/points/delete", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, `{"result":{"status":"completed"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewStore(Config{URL: srv.URL})
	require.NoError(t, s.DeleteBySource(context.Background(), "act.txt"))

	filter := body["filter"].(map[string]any)
	must := filter["must"].([]any)
	require.Len(t, must, 1)
	cond := must[0].(map[string]any)
	assert.Equal(t, "source", cond["key"])
	match := cond["match"].(map[string]any)
	assert.Equal(t, "act.txt", match["value"])
}

func TestStore_DeleteByIDs(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /collections/legal_chunks/points/delete", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, `{"result":{"status":"completed"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewStore(Config{URL: srv.URL})
	require.NoError(t, s.DeleteByIDs(context.Background(), []string{"chunk-abc", "chunk-def"}))

	// チャンクIDは決定的なポイントIDへ変換して送られる
	points := body["points"].([]any)
	require.Len(t, points, 2)
	assert.Equal(t, PointID("chunk-abc"), points[0])
	assert.Equal(t, PointID("chunk-def"), points[1])
}

func TestStore_ServerErrorSurfaces(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /collections/legal_chunks/points/search", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewStore(Config{URL: srv.URL})
	_, err := s.Search(context.Background(), []float32{1}, 5)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
