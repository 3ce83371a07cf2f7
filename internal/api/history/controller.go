package history

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Harvest/internal/api/gen"
	"github.com/hbomb79/Harvest/internal/journal"
	"github.com/hbomb79/Harvest/internal/task"
	"github.com/labstack/echo/v4"
)

type (
	ListQuery struct {
		Platform string `query:"platform" validate:"omitempty,oneof=threads xiaohongshu douyin direct"`
		Status   string `query:"status" validate:"omitempty,oneof=completed failed"`
		Limit    int    `query:"limit" validate:"min=0,max=500"`
	}

	Store interface {
		Get(taskID string) (*journal.Entry, error)
		List(filter journal.Filter) ([]journal.Entry, error)
	}

	// Controller exposes the outcome journal. The store is nil when the
	// journal is disabled, in which case every route responds 503.
	Controller struct {
		store    Store
		validate *validator.Validate
	}
)

func New(validate *validator.Validate, store Store) *Controller {
	return &Controller{store: store, validate: validate}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("", controller.list)
	eg.GET("/:id", controller.get)
}

func (controller *Controller) list(ec echo.Context) error {
	if controller.store == nil {
		return errJournalDisabled()
	}

	var query ListQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(ec, &query); err != nil {
		return gen.ErrAPIBadRequest.WithMessage("invalid query parameters")
	}
	if err := controller.validate.Struct(query); err != nil {
		return gen.ErrAPIBadRequest.WithMessage("invalid query parameters").WithInternal("history query failed validation: %v", err)
	}

	entries, err := controller.store.List(journal.Filter{Platform: query.Platform, Status: task.Status(query.Status), Limit: query.Limit})
	if err != nil {
		return gen.ErrAPIInternalServer.WithInternal("failed to list journal: %v", err)
	}

	return ec.JSON(http.StatusOK, entries)
}

func (controller *Controller) get(ec echo.Context) error {
	if controller.store == nil {
		return errJournalDisabled()
	}

	entry, err := controller.store.Get(ec.Param("id"))
	if errors.Is(err, journal.ErrEntryNotFound) {
		return gen.ErrAPINotFound.WithMessage("no history for this task")
	} else if err != nil {
		return gen.ErrAPIInternalServer.WithInternal("failed to query journal: %v", err)
	}

	return ec.JSON(http.StatusOK, entry)
}

func errJournalDisabled() error {
	return gen.ErrAPIUnavailable.WithMessage("history is not available, the journal is disabled")
}
