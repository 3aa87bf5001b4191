package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voice2note-be/internal/constant"
	"voice2note-be/internal/dto"
	"voice2note-be/internal/entity"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/pkg/logger"
	"voice2note-be/internal/repository/unitofwork"
	"voice2note-be/internal/tenant"
	"voice2note-be/pkg/llm"
	"voice2note-be/pkg/retrieval"
	"voice2note-be/pkg/utils"

	"github.com/google/uuid"
)

type IChatService interface {
	Send(ctx context.Context, id tenant.ID, req *dto.SendChatRequest) (*dto.SendChatResponse, error)
	Messages(ctx context.Context, id tenant.ID, chatId string, req *dto.ChatMessagesRequest) (*dto.ChatMessagesResponse, error)
	Delete(ctx context.Context, id tenant.ID, chatId string) error
}

type chatService struct {
	store     unitofwork.RepositoryFactory
	retrieval IRetrievalService
	llm       llm.LLMProvider
	k         int
	threshold float64
	timeout   time.Duration
	logger    logger.ILogger
}

type ChatConfig struct {
	K           int
	Threshold   float64
	CallTimeout time.Duration
}

func NewChatService(
	store unitofwork.RepositoryFactory,
	retrievalService IRetrievalService,
	provider llm.LLMProvider,
	cfg ChatConfig,
	log logger.ILogger,
) IChatService {
	if cfg.K <= 0 {
		cfg.K = DefaultSearchK
	}
	return &chatService{
		store:     store,
		retrieval: retrievalService,
		llm:       provider,
		k:         cfg.K,
		threshold: cfg.Threshold,
		timeout:   cfg.CallTimeout,
		logger:    log,
	}
}

func (s *chatService) Send(ctx context.Context, id tenant.ID, req *dto.SendChatRequest) (*dto.SendChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, apperror.Validation("message is required")
	}
	chatId := strings.TrimSpace(req.ChatId)
	if chatId == "" {
		chatId = uuid.NewString()
	}

	res := &dto.SendChatResponse{ChatId: chatId}
	err := s.store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		chats := uow.ChatRepository()
		if err := chats.CreateIfAbsent(ctx, chatId); err != nil {
			return err
		}
		chat, err := chats.FindByID(ctx, chatId)
		if err != nil {
			return err
		}
		if chat == nil {
			return apperror.NotFound("chat %s not found", chatId)
		}

		query, err := s.retrieval.Embed(ctx, message)
		if err != nil {
			return err
		}
		hits, err := s.retrieval.SearchIn(ctx, uow, query, s.k, s.threshold)
		if err != nil {
			return err
		}

		reply, err := s.complete(ctx, buildChatPrompt(hits, message), llm.WithTemperature(constant.ChatTemperature))
		if err != nil {
			return apperror.Upstream(err, "chat completion")
		}

		messages := uow.ChatMessageRepository()
		refs := retrieval.SourceKeys(hits)
		if err := messages.Create(ctx, &entity.ChatMessage{ChatId: chatId, Role: entity.RoleUser, Content: message}); err != nil {
			return err
		}
		if err := messages.Create(ctx, &entity.ChatMessage{ChatId: chatId, Role: entity.RoleAssistant, Content: reply, SourceRefs: refs}); err != nil {
			return err
		}

		// Checked on every send so a failed or raced title attempt is retried later.
		// UpdateTitleIfDefault keeps a titled chat from being renamed.
		count, err := messages.CountByChatID(ctx, chatId)
		if err != nil {
			return err
		}
		if count >= constant.ChatTitleTriggerCount && chat.HasDefaultTitle() {
			s.titleChat(ctx, id, uow, chatId)
		}

		res.Response = reply
		res.References = refs
		return nil
	})
	if err != nil {
		s.logger.Error("ChatService", "send failed", map[string]interface{}{
			"tenant":  id.String(),
			"chat_id": chatId,
			"error":   err.Error(),
		})
		return nil, err
	}
	return res, nil
}

// buildChatPrompt numbers the context chunks from 1 so the "(Note i)" citations line up
// with the references of the reply.
func buildChatPrompt(hits []retrieval.Hit, message string) []llm.Message {
	prompt := []llm.Message{{Role: llm.RoleSystem, Content: constant.ChatPersona}}
	if len(hits) > 0 {
		var b strings.Builder
		b.WriteString(constant.ChatContextHeader)
		for i, h := range hits {
			fmt.Fprintf(&b, constant.ChatContextEntry, i+1, h.Content)
		}
		prompt = append(prompt, llm.Message{Role: llm.RoleSystem, Content: b.String()})
	}
	return append(prompt, llm.Message{Role: llm.RoleUser, Content: message})
}

// titleChat names the chat from its first messages. A failure leaves the default title
// in place; the next send does not retry.
func (s *chatService) titleChat(ctx context.Context, id tenant.ID, uow unitofwork.UnitOfWork, chatId string) {
	details := map[string]interface{}{"tenant": id.String(), "chat_id": chatId}

	first, err := uow.ChatMessageRepository().FindFirst(ctx, chatId, constant.ChatTitleTriggerCount)
	if err != nil {
		details["error"] = err.Error()
		s.logger.Warn("ChatService", "load messages for title failed", details)
		return
	}
	lines := make([]string, len(first))
	for i, m := range first {
		lines[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
	}

	out, err := s.complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: constant.ChatTitlePersona},
		{Role: llm.RoleUser, Content: fmt.Sprintf(constant.ChatTitlePrompt, strings.Join(lines, "\n"))},
	})
	if err != nil {
		details["error"] = err.Error()
		s.logger.Warn("ChatService", "title generation failed", details)
		return
	}
	title := clampRunes(utils.StripQuotes(out), constant.ChatTitleMaxRunes)
	if title == "" {
		return
	}

	ok, err := uow.ChatRepository().UpdateTitleIfDefault(ctx, chatId, title)
	if err != nil {
		details["error"] = err.Error()
		s.logger.Warn("ChatService", "title update failed", details)
		return
	}
	if !ok {
		details["error"] = apperror.ConcurrencyConflict(nil, "chat %s already titled", chatId).Error()
		s.logger.Info("ChatService", "chat title kept", details)
		return
	}
	details["title"] = title
	s.logger.Info("ChatService", "chat titled", details)
}

func (s *chatService) complete(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := s.llm.Chat(ctx, history, options...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func clampRunes(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > max {
		r = r[:max]
	}
	return strings.TrimSpace(string(r))
}

func (s *chatService) Messages(ctx context.Context, id tenant.ID, chatId string, req *dto.ChatMessagesRequest) (*dto.ChatMessagesResponse, error) {
	res := &dto.ChatMessagesResponse{ChatId: chatId, Offset: req.Offset, Messages: []*dto.ChatMessageResponse{}}
	err := s.store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		chat, err := uow.ChatRepository().FindByID(ctx, chatId)
		if err != nil {
			return err
		}
		if chat == nil {
			return apperror.NotFound("chat %s not found", chatId)
		}
		res.Title = chat.Title

		page, err := uow.ChatMessageRepository().FindPage(ctx, chatId, req.Offset, constant.ChatPageSize+1)
		if err != nil {
			return err
		}
		if len(page) > constant.ChatPageSize {
			res.HasMore = true
			page = page[:constant.ChatPageSize]
		}
		for _, m := range page {
			res.Messages = append(res.Messages, &dto.ChatMessageResponse{
				MessageId:  m.MessageId,
				Role:       string(m.Role),
				Content:    m.Content,
				References: m.SourceRefs,
				CreatedAt:  m.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *chatService) Delete(ctx context.Context, id tenant.ID, chatId string) error {
	return s.store.Run(ctx, id, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		ok, err := uow.ChatRepository().SoftDelete(ctx, chatId)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.NotFound("chat %s not found", chatId)
		}
		return nil
	})
}
