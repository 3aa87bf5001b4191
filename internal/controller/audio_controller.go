package controller

import (
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/pkg/serverutils"
	"voice2note-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IAudioController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Upload(ctx *fiber.Ctx) error
}

type audioController struct {
	audioService service.IAudioService
}

func NewAudioController(audioService service.IAudioService) IAudioController {
	return &audioController{
		audioService: audioService,
	}
}

func (c *audioController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/audios")
	h.Use(auth)
	h.Post("", c.Upload)
}

func (c *audioController) Upload(ctx *fiber.Ctx) error {
	fh, err := ctx.FormFile("audio_file")
	if err != nil {
		return apperror.Validation("audio_file is required")
	}
	file, err := fh.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	res, err := c.audioService.Upload(ctx.UserContext(), serverutils.TenantFrom(ctx), service.UploadAudioInput{
		File:        file,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		AudioType:   ctx.FormValue("audio_type"),
	})
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success upload audio", res))
}
