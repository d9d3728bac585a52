package httpapi

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-dashboard/internal/dashboard"
	"github.com/i474232898/weather-dashboard/internal/geo"
	"github.com/i474232898/weather-dashboard/internal/location"
	"github.com/i474232898/weather-dashboard/internal/mapsdk"
	"github.com/i474232898/weather-dashboard/internal/overlay"
	"github.com/i474232898/weather-dashboard/internal/traffic"
)

var validate = validator.New()

// CameraSource serves the traffic camera list.
type CameraSource interface {
	Fetch(ctx context.Context, resourceKey string) ([]traffic.CameraRecord, error)
	FetchFiltered(ctx context.Context, resourceKey string, f traffic.Filter) ([]traffic.CameraRecord, error)
}

// ViewBuilder assembles the weather pages.
type ViewBuilder interface {
	City(ctx context.Context, name string, at geo.Point) (dashboard.CityView, error)
	Dashboard(ctx context.Context, at geo.Point) (dashboard.DashboardView, error)
}

// Deps are the services behind the HTTP API.
type Deps struct {
	Sessions    *location.Sessions
	Resolver    *location.Resolver
	Views       ViewBuilder
	Cameras     CameraSource
	Overlays    *overlay.Registry
	ResourceKey string
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-dashboard",
		})
	})

	v1 := app.Group("/api/v1")

	v1.Post("/session", d.createSession)
	v1.Get("/session/:id", d.getSession)
	v1.Get("/route", d.initialRoute)

	v1.Get("/dashboard", d.getDashboard)
	v1.Get("/city/:name", d.getCity)

	v1.Get("/cameras", d.listCameras)

	overlays := v1.Group("/overlays")
	overlays.Post("/", d.mountOverlay)
	overlays.Get("/:id", d.overlayView)
	overlays.Post("/:id/refresh", d.refreshOverlay)
	overlays.Post("/:id/markers/:marker/click", d.clickMarker)
	overlays.Delete("/:id/selection", d.dismissSelection)
	overlays.Post("/:id/image-error", d.imageError)
	overlays.Delete("/:id", d.unmountOverlay)
}

// sessionRequest is the browser's one-time geolocation report.
type sessionRequest struct {
	Session string `json:"session" validate:"omitempty,max=64"`
	location.Report
}

type sessionResponse struct {
	Session     string     `json:"session"`
	Resolved    bool       `json:"resolved"`
	Location    *geo.Point `json:"location,omitempty"`
	AtReference bool       `json:"atReference"`
	Fallback    bool       `json:"fallback"`
	Route       string     `json:"route,omitempty"`
}

func newSessionResponse(s *location.Session) sessionResponse {
	res, ok := s.Resolution()
	return sessionResponse{
		Session:     s.ID,
		Resolved:    ok,
		Location:    res.Position,
		AtReference: res.AtReference,
		Fallback:    res.Fallback,
		Route:       res.Route,
	}
}

func (d Deps) createSession(c *fiber.Ctx) error {
	var req sessionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	s := d.Sessions.Open(req.Session)
	s.Resolve(c.UserContext(), d.Resolver, req.Report)
	return c.Status(fiber.StatusCreated).JSON(newSessionResponse(s))
}

func (d Deps) getSession(c *fiber.Ctx) error {
	s, err := d.Sessions.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return c.JSON(newSessionResponse(s))
}

func (d Deps) initialRoute(c *fiber.Ctx) error {
	id := c.Query("session")
	if id == "" {
		return fiber.NewError(fiber.StatusBadRequest, "session query parameter is required")
	}
	s, err := d.Sessions.Get(id)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	res, ok := s.Resolution()
	if !ok {
		return fiber.NewError(fiber.StatusConflict, "location not resolved yet")
	}
	return c.JSON(fiber.Map{"route": res.Route})
}

func parseCoordinates(c *fiber.Ctx) (geo.Point, error) {
	p, err := geo.Parse(c.Query("lat"), c.Query("lon"))
	if err != nil {
		return geo.Point{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return p, nil
}

func weatherError(err error) error {
	if errors.Is(err, dashboard.ErrWeatherUnavailable) {
		return fiber.NewError(fiber.StatusBadGateway, dashboard.WeatherErrorMessage)
	}
	return err
}

func (d Deps) getDashboard(c *fiber.Ctx) error {
	at, err := parseCoordinates(c)
	if err != nil {
		return err
	}
	view, err := d.Views.Dashboard(c.UserContext(), at)
	if err != nil {
		return weatherError(err)
	}
	return c.JSON(view)
}

// cityParams is the /city/:name route input.
type cityParams struct {
	Name string `validate:"required,max=100"`
}

func (d Deps) getCity(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid city name")
	}
	params := cityParams{Name: strings.Clone(strings.TrimSpace(name))}
	if err := validate.Struct(params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	at, err := parseCoordinates(c)
	if err != nil {
		return err
	}
	view, err := d.Views.City(c.UserContext(), params.Name, at)
	if err != nil {
		return weatherError(err)
	}
	return c.JSON(view)
}

func (d Deps) listCameras(c *fiber.Ctx) error {
	var (
		records []traffic.CameraRecord
		err     error
	)
	if q := c.Query("quadrant"); q != "" {
		records, err = d.Cameras.FetchFiltered(c.UserContext(), d.ResourceKey, traffic.Filter{Quadrant: q})
	} else {
		records, err = d.Cameras.Fetch(c.UserContext(), d.ResourceKey)
	}

	switch {
	case errors.Is(err, traffic.ErrInvalidFilter):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case traffic.IsRemoteFetchError(err):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case err != nil:
		return err
	}

	return c.JSON(fiber.Map{
		"count":   len(records),
		"cameras": records,
	})
}

func (d Deps) widget(c *fiber.Ctx) (*overlay.Widget, error) {
	w, err := d.Overlays.Get(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return w, nil
}

func (d Deps) mountOverlay(c *fiber.Ctx) error {
	w := d.Overlays.Mount()
	return c.Status(fiber.StatusCreated).JSON(w.View())
}

func (d Deps) overlayView(c *fiber.Ctx) error {
	w, err := d.widget(c)
	if err != nil {
		return err
	}
	w.Touch()
	return c.JSON(w.View())
}

func (d Deps) refreshOverlay(c *fiber.Ctx) error {
	w, err := d.widget(c)
	if err != nil {
		return err
	}
	if err := w.Refresh(); err != nil {
		return overlayError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(w.View())
}

func (d Deps) clickMarker(c *fiber.Ctx) error {
	w, err := d.widget(c)
	if err != nil {
		return err
	}
	if err := w.Click(c.Params("marker")); err != nil {
		return overlayError(err)
	}
	return c.JSON(w.View())
}

func (d Deps) dismissSelection(c *fiber.Ctx) error {
	w, err := d.widget(c)
	if err != nil {
		return err
	}
	w.Dismiss()
	return c.JSON(w.View())
}

func (d Deps) imageError(c *fiber.Ctx) error {
	w, err := d.widget(c)
	if err != nil {
		return err
	}
	if err := w.ImageFailed(); err != nil {
		return overlayError(err)
	}
	return c.JSON(w.View())
}

func (d Deps) unmountOverlay(c *fiber.Ctx) error {
	if err := d.Overlays.Unmount(c.Params("id")); err != nil {
		return overlayError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func overlayError(err error) error {
	switch {
	case errors.Is(err, overlay.ErrNotFound), errors.Is(err, mapsdk.ErrUnknownMarker):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, overlay.ErrUnmounted),
		errors.Is(err, overlay.ErrMapNotReady),
		errors.Is(err, overlay.ErrLoading),
		errors.Is(err, overlay.ErrNoSelection):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
