package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/reviewpilot/api/internal/model"
	"github.com/reviewpilot/api/internal/service"
	"github.com/reviewpilot/api/pkg/response"
)

type ReviewHandler struct {
	service   *service.ReviewService
	validator *validator.Validate
}

func NewReviewHandler(svc *service.ReviewService, v *validator.Validate) *ReviewHandler {
	return &ReviewHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /api/review/submit
// @Summary      Submit pull request for review
// @Description  Queue an asynchronous analysis job for a GitHub pull request
// @Tags         Review
// @Accept       json
// @Produce      json
// @Param        request body model.ReviewSubmitRequest true "Review submit request"
// @Success      202 {object} model.ReviewSubmitResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/review/submit [post]
func (h *ReviewHandler) Submit(c *fiber.Ctx) error {
	var req model.ReviewSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRepoURL) || errors.Is(err, service.ErrInvalidPRNumber) {
			return response.ValidationError(c, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/review/status/:jobId
// @Summary      Get review job status
// @Description  Get the lifecycle state of a review job
// @Tags         Review
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.ReviewStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/review/status/{jobId} [get]
func (h *ReviewHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Result handles GET /api/review/result/:jobId
// @Summary      Get review job result
// @Description  Get the analysis result or failure message of a review job
// @Tags         Review
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.ReviewResultResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/review/result/{jobId} [get]
func (h *ReviewHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// List handles GET /api/review/jobs
// @Summary      List recent review jobs
// @Description  List recently submitted review jobs, newest first
// @Tags         Review
// @Produce      json
// @Param        limit query int false "Maximum number of jobs" default(10)
// @Success      200 {array} model.ReviewListItem
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/review/jobs [get]
func (h *ReviewHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)

	items, err := h.service.ListRecent(c.Context(), limit)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, items)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
