package files

import (
	"errors"
	"os"

	"github.com/hbomb79/Harvest/internal/api/gen"
	"github.com/hbomb79/Harvest/internal/storage"
	"github.com/labstack/echo/v4"
)

type (
	Store interface {
		Resolve(name string) (string, os.FileInfo, error)
	}

	// Controller serves the artifacts produced by completed tasks.
	Controller struct {
		store Store
	}
)

func New(store Store) *Controller {
	return &Controller{store: store}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/:filename", controller.get)
}

// get serves the named artifact as an attachment. Names containing path
// separators or traversal components are rejected.
func (controller *Controller) get(ec echo.Context) error {
	name := ec.Param("filename")
	path, _, err := controller.store.Resolve(name)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidName):
			return gen.ErrAPIBadRequest.WithMessage("invalid file name")
		case errors.Is(err, storage.ErrNotFound):
			return gen.ErrAPINotFound.WithMessage("file does not exist")
		default:
			return gen.ErrAPIInternalServer.WithInternal("failed to resolve artifact %s: %v", name, err)
		}
	}

	return ec.Attachment(path, name)
}
