package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/internal/utils"
)

// GradeHandler exposes grade lookup and recomputation endpoints.
type GradeHandler struct {
	service service.GradeService
	logger  zerolog.Logger
}

// NewGradeHandler constructs the handler.
func NewGradeHandler(service service.GradeService, logger zerolog.Logger) *GradeHandler {
	return &GradeHandler{
		service: service,
		logger:  logger.With().Str("component", "grade_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *GradeHandler) Register(router fiber.Router) {
	router.Get("/:id/students/:studentID/grade", h.get)
	router.Post("/:id/students/:studentID/grade", h.recalculate)
}

func (h *GradeHandler) get(c *fiber.Ctx) error {
	listID, studentID, err := h.params(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	grade, err := h.service.Get(c.UserContext(), studentID, listID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grade retrieved", dto.NewGradeResponse(grade))
}

func (h *GradeHandler) recalculate(c *fiber.Ctx) error {
	listID, studentID, err := h.params(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	grade, err := h.service.Recalculate(c.UserContext(), studentID, listID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grade recalculated", dto.NewGradeResponse(grade))
}

func (h *GradeHandler) params(c *fiber.Ctx) (listID, studentID uint, err error) {
	listID, err = parseUintParam(c, "id")
	if err != nil {
		return 0, 0, err
	}
	studentID, err = parseUintParam(c, "studentID")
	if err != nil {
		return 0, 0, err
	}
	return listID, studentID, nil
}

func (h *GradeHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrGradeNotFound), errors.Is(err, service.ErrQuestionListNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	default:
		h.logger.Error().Err(err).Msg("grade request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
