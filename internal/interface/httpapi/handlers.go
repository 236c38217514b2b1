package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/legal-rag/internal/core/ingest"
	"github.com/jinford/legal-rag/internal/core/retrieval"
)

// maxUploadSize はアップロードの上限（32MB）
const maxUploadSize = 32 << 20

// Handler はAPIエンドポイントの実装を束ねる
type Handler struct {
	ingestService *ingest.IngestService
	dispatcher    *ingest.Dispatcher
	searchService *retrieval.SearchService
	answerService *retrieval.AnswerService
	logger        *slog.Logger
}

// NewHandler は新しいHandlerを作成する
func NewHandler(
	ingestService *ingest.IngestService,
	dispatcher *ingest.Dispatcher,
	searchService *retrieval.SearchService,
	answerService *retrieval.AnswerService,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ingestService: ingestService,
		dispatcher:    dispatcher,
		searchService: searchService,
		answerService: answerService,
		logger:        logger,
	}
}

// Register はエンドポイントをmuxへ登録する
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("POST /api/v1/upload", h.handleUpload)
	mux.HandleFunc("GET /api/v1/documents", h.handleListDocuments)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.handleGetDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.handleDeleteDocument)
	mux.HandleFunc("POST /api/v1/retrieval/search", h.handleSearch)
	mux.HandleFunc("POST /api/v1/chat", h.handleChat)
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Legal RAG API is running"})
}

type uploadResponse struct {
	Message      string `json:"message"`
	Filename     string `json:"filename"`
	ID           string `json:"id"`
	Deduplicated bool   `json:"deduplicated"`
}

// handleUpload はファイルを受け付け、バックグラウンド取り込みを開始する。
// 同一内容の再アップロードは既存ドキュメントをそのまま返す。
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	// 非対応形式はレコードを作る前に同期的に弾く
	if !ingest.SupportedFormat(header.Filename) {
		writeError(w, http.StatusBadRequest, "unsupported document format")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read uploaded file")
		return
	}

	doc, deduplicated, err := h.ingestService.Begin(r.Context(), data, header.Filename)
	if err != nil {
		h.logger.Error("failed to begin ingestion", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to begin ingestion")
		return
	}

	if deduplicated {
		writeJSON(w, http.StatusOK, uploadResponse{
			Message:      "File already ingested",
			Filename:     doc.Filename,
			ID:           doc.ID.String(),
			Deduplicated: true,
		})
		return
	}

	path, err := saveTempFile(doc.ID, header.Filename, data)
	if err != nil {
		h.logger.Error("failed to save uploaded file", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save uploaded file")
		return
	}

	if err := h.dispatcher.Enqueue(ingest.Job{Document: doc, Path: path}); err != nil {
		os.Remove(path)
		writeError(w, http.StatusServiceUnavailable, "ingestion queue is not accepting jobs")
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResponse{
		Message:  "File uploaded and processing started",
		Filename: doc.Filename,
		ID:       doc.ID.String(),
	})
}

type documentResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	UploadedAt string `json:"uploaded_at"`
}

func toDocumentResponse(doc *ingest.Document) documentResponse {
	return documentResponse{
		ID:         doc.ID.String(),
		Filename:   doc.Filename,
		Title:      doc.Title,
		Status:     string(doc.Status),
		ChunkCount: doc.ChunkCount,
		UploadedAt: doc.UploadedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.ingestService.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, toDocumentResponse(doc))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := h.ingestService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ingest.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		h.logger.Error("failed to get document", "documentID", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get document")
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	if err := h.ingestService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ingest.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		h.logger.Error("failed to delete document", "documentID", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Document deleted"})
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResultResponse struct {
	Text     string         `json:"text"`
	Source   string         `json:"source"`
	Score    float64        `json:"score"`
	Page     int            `json:"page"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type searchResponse struct {
	Results []searchResultResponse `json:"results"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := h.searchService.Search(r.Context(), req.Query, retrieval.ClampLimit(req.Limit))
	if err != nil {
		h.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	resp := searchResponse{Results: make([]searchResultResponse, 0, len(results))}
	for _, res := range results {
		resp.Results = append(resp.Results, searchResultResponse{
			Text:     res.Text,
			Source:   res.Source,
			Score:    res.Score,
			Page:     res.Page,
			Metadata: res.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type chatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id,omitempty"`
}

type chatResponse struct {
	Response  string   `json:"response"`
	ChatID    string   `json:"chat_id"`
	Citations []string `json:"citations"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	params := retrieval.AnswerParams{
		Question: req.Message,
		Limit:    retrieval.DefaultLimit,
	}
	if req.ChatID != "" {
		chatID, err := uuid.Parse(req.ChatID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid chat id")
			return
		}
		params.ChatID = mo.Some(chatID)
	}

	result, err := h.answerService.Answer(r.Context(), params)
	if err != nil {
		switch {
		case errors.Is(err, retrieval.ErrChatNotFound):
			writeError(w, http.StatusNotFound, "chat not found")
		case errors.Is(err, retrieval.ErrEmptyQuery):
			writeError(w, http.StatusBadRequest, "message is required")
		default:
			h.logger.Error("chat failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to generate answer")
		}
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:  result.Answer,
		ChatID:    result.ChatID.String(),
		Citations: result.Citations,
	})
}

// saveTempFile はアップロード内容をワーカーが読む一時ファイルへ書き出す
func saveTempFile(docID uuid.UUID, filename string, data []byte) (string, error) {
	dir := os.TempDir()
	path := filepath.Join(dir, fmt.Sprintf("%s_%s", docID, filepath.Base(filename)))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
