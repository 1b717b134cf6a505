package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/internal/utils"
)

// SubmissionHandler exposes submission intake and lookup endpoints.
type SubmissionHandler struct {
	service   service.SubmissionService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(service service.SubmissionService, validate *validator.Validate, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("/:id", h.get)
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	var payload dto.SubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.Submit(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendAccepted(c, "submission queued for judging", response)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission retrieved", response)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound), errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUnsupportedLanguage), errors.Is(err, service.ErrQuestionNotJudgeable):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error().Err(err).Msg("submission request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		return 0, errors.New("invalid " + name + " parameter")
	}
	return uint(value), nil
}
