package implementation

import (
	"context"
	"errors"

	"voice2note-be/internal/entity"
	"voice2note-be/internal/mapper"
	"voice2note-be/internal/model"
	"voice2note-be/internal/repository/contract"
	"voice2note-be/internal/repository/scope"
	"voice2note-be/internal/repository/specification"
	"voice2note-be/internal/tenant"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatRepositoryImpl struct {
	db     *gorm.DB
	ns     tenant.Namespace
	mapper *mapper.ChatMapper
}

func NewChatRepository(db *gorm.DB, ns tenant.Namespace) contract.ChatRepository {
	return &ChatRepositoryImpl{
		db:     db,
		ns:     ns,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatRepositoryImpl) table(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.Chat{}).Table(r.ns.Relation(tenant.TableChats))
}

func (r *ChatRepositoryImpl) CreateIfAbsent(ctx context.Context, chatId string) error {
	m := &model.Chat{ChatId: chatId, Title: entity.DefaultChatTitle}
	return r.table(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(m).Error
}

func (r *ChatRepositoryImpl) FindByID(ctx context.Context, chatId string) (*entity.Chat, error) {
	var m model.Chat
	query := specification.ByChatID{ChatID: chatId}.Apply(r.table(ctx))
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ChatToEntity(&m), nil
}

func (r *ChatRepositoryImpl) UpdateTitleIfDefault(ctx context.Context, chatId string, title string) (bool, error) {
	res := r.table(ctx).
		Where("chat_id = ? AND title = ?", chatId, entity.DefaultChatTitle).
		Update("title", title)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ChatRepositoryImpl) SoftDelete(ctx context.Context, chatId string) (bool, error) {
	res := r.table(ctx).Where("chat_id = ?", chatId).Delete(&model.Chat{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type ChatMessageRepositoryImpl struct {
	db     *gorm.DB
	ns     tenant.Namespace
	mapper *mapper.ChatMapper
}

func NewChatMessageRepository(db *gorm.DB, ns tenant.Namespace) contract.ChatMessageRepository {
	return &ChatMessageRepositoryImpl{
		db:     db,
		ns:     ns,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatMessageRepositoryImpl) table(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.ChatMessage{}).Table(r.ns.Relation(tenant.TableChatMessages))
}

func (r *ChatMessageRepositoryImpl) Create(ctx context.Context, msg *entity.ChatMessage) error {
	m := r.mapper.ChatMessageToModel(msg)
	if err := r.table(ctx).Create(m).Error; err != nil {
		return err
	}
	*msg = *r.mapper.ChatMessageToEntity(m)
	return nil
}

func (r *ChatMessageRepositoryImpl) CountByChatID(ctx context.Context, chatId string) (int64, error) {
	var count int64
	err := specification.ByChatID{ChatID: chatId}.Apply(r.table(ctx)).Count(&count).Error
	return count, err
}

func (r *ChatMessageRepositoryImpl) FindFirst(ctx context.Context, chatId string, limit int) ([]*entity.ChatMessage, error) {
	var models []*model.ChatMessage
	query := specification.ByChatID{ChatID: chatId}.Apply(r.table(ctx)).
		Scopes(scope.OrderByCreatedAsc).
		Order("message_id ASC").
		Limit(limit)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ChatMessagesToEntities(models), nil
}

func (r *ChatMessageRepositoryImpl) FindPage(ctx context.Context, chatId string, offset, limit int) ([]*entity.ChatMessage, error) {
	var models []*model.ChatMessage
	query := specification.ByChatID{ChatID: chatId}.Apply(r.table(ctx))
	query = specification.OrderBy{Field: "created_at", Desc: true}.Apply(query)
	query = specification.OrderBy{Field: "message_id", Desc: true}.Apply(query)
	query = specification.Pagination{Limit: limit, Offset: offset}.Apply(query)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ChatMessagesToEntities(models), nil
}
