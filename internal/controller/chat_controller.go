package controller

import (
	"voice2note-be/internal/dto"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/pkg/serverutils"
	"voice2note-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router, auth, limit fiber.Handler)
	Send(ctx *fiber.Ctx) error
	Messages(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{
		chatService: chatService,
	}
}

// RegisterRoutes rate limits only the endpoint that calls the language model.
func (c *chatController) RegisterRoutes(r fiber.Router, auth, limit fiber.Handler) {
	r.Post("/chat", auth, limit, c.Send)

	h := r.Group("/chats")
	h.Use(auth)
	h.Get(":chat_id/messages", c.Messages)
	h.Delete(":chat_id", c.Delete)
}

func (c *chatController) Send(ctx *fiber.Ctx) error {
	var req dto.SendChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperror.Validation("invalid body: %v", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.Send(ctx.UserContext(), serverutils.TenantFrom(ctx), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success send chat", res))
}

func (c *chatController) Messages(ctx *fiber.Ctx) error {
	var req dto.ChatMessagesRequest
	if err := ctx.QueryParser(&req); err != nil {
		return apperror.Validation("invalid query: %v", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.Messages(ctx.UserContext(), serverutils.TenantFrom(ctx), ctx.Params("chat_id"), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get chat messages", res))
}

func (c *chatController) Delete(ctx *fiber.Ctx) error {
	err := c.chatService.Delete(ctx.UserContext(), serverutils.TenantFrom(ctx), ctx.Params("chat_id"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete chat", nil))
}
