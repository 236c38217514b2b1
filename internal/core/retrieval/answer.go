package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Generator はLLMによる回答生成インターフェース。
// 実装は BuildUserPrompt / SystemPrompt のプロンプト契約に従い、
// 渡されたコンテキストのみから回答する。
type Generator interface {
	GenerateAnswer(ctx context.Context, question string, contexts []*RetrievalResult) (string, error)
}

// AnswerService は検索→プロンプト構築→回答生成→引用抽出のオーケストレーション
// を提供する。回答が完成するまでチャットへのメッセージ保存は行わない。
type AnswerService struct {
	searchService *SearchService
	generator     Generator
	chats         ChatRepository
	logger        *slog.Logger
}

type answerServiceOptions struct {
	logger *slog.Logger
}

// AnswerServiceOption は AnswerService のオプション設定
type AnswerServiceOption func(*answerServiceOptions)

// WithAnswerLogger は AnswerService にロガーを設定する
func WithAnswerLogger(logger *slog.Logger) AnswerServiceOption {
	return func(o *answerServiceOptions) {
		o.logger = logger
	}
}

// NewAnswerService は新しいAnswerServiceを作成する
func NewAnswerService(
	searchService *SearchService,
	generator Generator,
	chats ChatRepository,
	opts ...AnswerServiceOption,
) *AnswerService {
	options := answerServiceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &AnswerService{
		searchService: searchService,
		generator:     generator,
		chats:         chats,
		logger:        options.logger,
	}
}

// Answer は質問に対してRAGベースで回答を生成する。
// インデックスが空でもエラーにはせず、空コンテキストでLLMを呼んで
// 「情報不足」を表明させる。引用は実際に渡したチャンクの出典から
// 重複を除いたもの。
func (s *AnswerService) Answer(ctx context.Context, params AnswerParams) (*AnswerResult, error) {
	if params.Question == "" {
		return nil, ErrEmptyQuery
	}

	// 既存チャット指定時はLLM呼び出し前に存在を検証する
	var existingChat *Chat
	if chatID, ok := params.ChatID.Get(); ok {
		chat, err := s.chats.GetChat(ctx, chatID)
		if err != nil {
			return nil, err
		}
		existingChat = chat
	}

	results, err := s.searchService.Search(ctx, params.Question, params.Limit)
	if err != nil {
		return nil, err
	}

	s.logger.Info("generating answer", "question", params.Question, "contextChunks", len(results))

	answer, err := s.generator.GenerateAnswer(ctx, params.Question, results)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	citations := ExtractCitations(results)

	chatID, err := s.persistExchange(ctx, existingChat, params.Question, answer)
	if err != nil {
		return nil, err
	}

	s.logger.Info("answer completed",
		"chatID", chatID.String(),
		"answerLength", len(answer),
		"citations", len(citations),
	)

	return &AnswerResult{
		Answer:    answer,
		ChatID:    chatID,
		Citations: citations,
	}, nil
}

// persistExchange は回答が完成した後にチャットと質問・回答の両メッセージを保存する
func (s *AnswerService) persistExchange(ctx context.Context, chat *Chat, question, answer string) (uuid.UUID, error) {
	if chat == nil {
		chat = &Chat{
			ID:        uuid.New(),
			Title:     chatTitle(question),
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := s.chats.CreateChat(ctx, chat); err != nil {
			return uuid.Nil, fmt.Errorf("failed to create chat: %w", err)
		}
	}

	userMsg := &Message{ChatID: chat.ID, Role: "user", Content: question, CreatedAt: time.Now()}
	if err := s.chats.AppendMessage(ctx, userMsg); err != nil {
		return uuid.Nil, fmt.Errorf("failed to save user message: %w", err)
	}

	assistantMsg := &Message{ChatID: chat.ID, Role: "assistant", Content: answer, CreatedAt: time.Now()}
	if err := s.chats.AppendMessage(ctx, assistantMsg); err != nil {
		return uuid.Nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	return chat.ID, nil
}

// chatTitle は質問文の先頭からチャットタイトルを導出する（最大50文字）
func chatTitle(question string) string {
	runes := []rune(question)
	if len(runes) <= 50 {
		return question
	}
	return string(runes[:50])
}
