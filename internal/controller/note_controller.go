package controller

import (
	"voice2note-be/internal/dto"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/pkg/serverutils"
	"voice2note-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type INoteController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	List(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Update(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	Reprocess(ctx *fiber.Ctx) error
	Audio(ctx *fiber.Ctx) error
}

type noteController struct {
	noteService service.INoteService
}

func NewNoteController(noteService service.INoteService) INoteController {
	return &noteController{
		noteService: noteService,
	}
}

// RegisterRoutes expects the status websocket route to be registered first, since
// "/notes/ws" would otherwise match ":audio_key".
func (c *noteController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/notes")
	h.Use(auth)
	h.Get("", c.List)
	h.Get(":audio_key", c.Show)
	h.Put(":audio_key", c.Update)
	h.Delete(":audio_key", c.Delete)
	h.Post(":audio_key/reprocess", c.Reprocess)
	h.Get(":audio_key/audio", c.Audio)
}

func (c *noteController) List(ctx *fiber.Ctx) error {
	var req dto.ListNotesRequest
	if err := ctx.QueryParser(&req); err != nil {
		return apperror.Validation("invalid query: %v", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.noteService.List(ctx.UserContext(), serverutils.TenantFrom(ctx), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list notes", res))
}

func (c *noteController) Show(ctx *fiber.Ctx) error {
	res, err := c.noteService.Show(ctx.UserContext(), serverutils.TenantFrom(ctx), ctx.Params("audio_key"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show note", res))
}

func (c *noteController) Update(ctx *fiber.Ctx) error {
	var req dto.EditNoteRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperror.Validation("invalid body: %v", err)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.noteService.Edit(ctx.UserContext(), serverutils.TenantFrom(ctx), ctx.Params("audio_key"), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update note", res))
}

func (c *noteController) Delete(ctx *fiber.Ctx) error {
	err := c.noteService.Delete(ctx.UserContext(), serverutils.TenantFrom(ctx), ctx.Params("audio_key"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete note", nil))
}

func (c *noteController) Reprocess(ctx *fiber.Ctx) error {
	res, err := c.noteService.Reprocess(ctx.UserContext(), serverutils.TenantFrom(ctx), ctx.Params("audio_key"))
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Success reprocess note", res))
}

func (c *noteController) Audio(ctx *fiber.Ctx) error {
	rc, err := c.noteService.Audio(ctx.UserContext(), serverutils.TenantFrom(ctx), ctx.Params("audio_key"))
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "audio/webm")
	// fasthttp closes the stream once the body is written.
	return ctx.SendStream(rc)
}
