package downloads

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Harvest/internal/acquisition"
	"github.com/hbomb79/Harvest/internal/api/gen"
	"github.com/hbomb79/Harvest/internal/platform"
	"github.com/hbomb79/Harvest/internal/task"
	"github.com/hbomb79/Harvest/pkg/logger"
	"github.com/labstack/echo/v4"
)

var controllerLogger = logger.Get("DownloadsController")

type (
	DownloadRequest struct {
		URL       string `json:"url" validate:"required"`
		Platform  string `json:"platform" validate:"omitempty,oneof=threads xiaohongshu xhs douyin tiktok direct"`
		MediaType string `json:"mediaType" validate:"omitempty,oneof=video image"`
	}

	DownloadResponse struct {
		TaskID string `json:"taskId"`
	}

	ParseRequest struct {
		URL      string `json:"url" validate:"required"`
		Platform string `json:"platform" validate:"omitempty,oneof=threads xiaohongshu xhs douyin tiktok direct"`
	}

	StatusDto struct {
		TaskID      string  `json:"taskId"`
		Status      string  `json:"status"`
		Progress    int     `json:"progress"`
		DownloadURL *string `json:"downloadUrl"`
		Error       *string `json:"error"`
	}

	Service interface {
		Submit(rawURL string, platformHint string, mediaType string) (string, error)
		Query(taskID string) (task.Task, bool)
		Enumerate(ctx context.Context, rawURL string, platformHint string) acquisition.EnumerateResult
	}

	// Controller exposes task submission, task status and post
	// enumeration over HTTP.
	Controller struct {
		service  Service
		validate *validator.Validate
	}
)

func New(validate *validator.Validate, service Service) *Controller {
	return &Controller{service: service, validate: validate}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/download", controller.create)
	eg.GET("/status/:id", controller.status)
	eg.POST("/parse", controller.parse)
}

// create submits the URL for acquisition, returning the ID of the new task.
// URLs which no extractor accepts are rejected without creating a task.
func (controller *Controller) create(ec echo.Context) error {
	var request DownloadRequest
	if err := ec.Bind(&request); err != nil {
		return gen.ErrAPIBadRequest.WithMessage("invalid request body")
	}

	request.URL = strings.TrimSpace(request.URL)
	request.Platform = strings.ToLower(strings.TrimSpace(request.Platform))
	if err := controller.validate.Struct(request); err != nil {
		return gen.ErrAPIBadRequest.WithMessage("a valid URL is required").WithInternal("download request failed validation: %v", err)
	}

	taskID, err := controller.service.Submit(request.URL, request.Platform, request.MediaType)
	if err != nil {
		return submissionError(err)
	}

	return ec.JSON(http.StatusOK, DownloadResponse{TaskID: taskID})
}

// status returns the current state of the task identified by the 'id' path param.
func (controller *Controller) status(ec echo.Context) error {
	t, ok := controller.service.Query(ec.Param("id"))
	if !ok {
		return gen.ErrAPINotFound.WithMessage("task does not exist")
	}

	return ec.JSON(http.StatusOK, NewStatusDto(t))
}

// parse lists the media found in the post. Extraction failures are reported
// in the body of a successful response.
func (controller *Controller) parse(ec echo.Context) error {
	var request ParseRequest
	if err := ec.Bind(&request); err != nil {
		return gen.ErrAPIBadRequest.WithMessage("invalid request body")
	}

	request.URL = strings.TrimSpace(request.URL)
	request.Platform = strings.ToLower(strings.TrimSpace(request.Platform))
	if err := controller.validate.Struct(request); err != nil {
		return gen.ErrAPIBadRequest.WithMessage("a valid URL is required").WithInternal("parse request failed validation: %v", err)
	}

	return ec.JSON(http.StatusOK, controller.service.Enumerate(ec.Request().Context(), request.URL, request.Platform))
}

func submissionError(err error) error {
	message := platform.UserMessage(err)
	switch platform.KindOf(err) {
	case platform.KindUnsupportedPlatform:
		return gen.ErrAPIUnsupported.WithMessage(message)
	case platform.KindInvalidInput:
		return gen.ErrAPIBadRequest.WithMessage(message)
	default:
		controllerLogger.Emit(logger.ERROR, "Unexpected failure submitting task: %v\n", err)
		return gen.ErrAPIInternalServer.WithInternal("submission failed: %v", err)
	}
}

func NewStatusDto(t task.Task) StatusDto {
	dto := StatusDto{TaskID: t.ID, Status: string(t.Status), Progress: t.Progress}
	if t.ResultURL != "" {
		dto.DownloadURL = &t.ResultURL
	}
	if t.Error != "" {
		dto.Error = &t.Error
	}

	return dto
}
