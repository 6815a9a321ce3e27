package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/asierbarrena/oficios/internal/core/domain"
	"github.com/asierbarrena/oficios/internal/pkg/metrics"
)

// actingUser pulls the authenticated user id asserted by the gateway.
// Identity verification happens upstream; the core only needs the id.
// The header bytes live in fasthttp's reused request buffer, so the id is
// copied before it outlives the handler.
func actingUser(c *fiber.Ctx) (string, error) {
	uid := utils.CopyString(c.Get("X-User-ID"))
	if uid == "" {
		return "", errMissingIdentity
	}
	return uid, nil
}

// pathID copies the :id route parameter out of the request buffer. Services
// hold on to these ids (entity fields, per-request lock keys), so they must
// survive buffer reuse.
func pathID(c *fiber.Ctx) string {
	return utils.CopyString(c.Params("id"))
}

// ---- Coverage zones ----

type zoneRequest struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RadiusKm float64 `json:"radius_km"`
}

// CreateZoneHandler declares a new coverage zone for the acting provider.
func CreateZoneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := actingUser(c)
		if err != nil {
			return errDomain(c, err)
		}

		var body zoneRequest
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		zone, err := deps.Zones.Create(c.UserContext(), uid, domain.GeoPoint{Lat: body.Lat, Lon: body.Lon}, body.RadiusKm)
		if err != nil {
			return errDomain(c, err)
		}
		return c.Status(201).JSON(zone)
	}
}

// ReplaceZoneHandler swaps a zone for a new center/radius (delete + recreate).
func ReplaceZoneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := actingUser(c)
		if err != nil {
			return errDomain(c, err)
		}

		var body zoneRequest
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		zone, err := deps.Zones.Replace(c.UserContext(), pathID(c), uid,
			domain.GeoPoint{Lat: body.Lat, Lon: body.Lon}, body.RadiusKm)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(zone)
	}
}

// DeleteZoneHandler removes one of the acting provider's zones.
func DeleteZoneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := actingUser(c)
		if err != nil {
			return errDomain(c, err)
		}
		if err := deps.Zones.Delete(c.UserContext(), pathID(c), uid); err != nil {
			return errDomain(c, err)
		}
		return c.SendStatus(204)
	}
}

// ListZonesHandler returns the acting provider's zones.
func ListZonesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := actingUser(c)
		if err != nil {
			return errDomain(c, err)
		}
		zones, err := deps.Zones.ListByProvider(c.UserContext(), uid)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(zones)
	}
}

// ---- Provider profile ----

type profileRequest struct {
	CategoryIDs  []string `json:"category_ids"`
	Credentialed bool     `json:"credentialed"`
}

// UpsertProfileHandler sets the acting provider's category interests.
func UpsertProfileHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := actingUser(c)
		if err != nil {
			return errDomain(c, err)
		}

		var body profileRequest
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		profile := &domain.ProviderProfile{
			ProviderID:   uid,
			CategoryIDs:  body.CategoryIDs,
			Credentialed: body.Credentialed,
		}
		if err := deps.Providers.UpsertProfile(c.UserContext(), profile); err != nil {
			return errDomain(c, err)
		}
		return c.JSON(profile)
	}
}

// ProviderFeedHandler returns the open requests visible to the acting
// provider through their declared zones and categories.
func ProviderFeedHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := actingUser(c)
		if err != nil {
			return errDomain(c, err)
		}

		visible, err := deps.Match.VisibleRequests(c.UserContext(), uid)
		if err != nil {
			return errDomain(c, err)
		}

		offset, limit := parsePagination(c)
		page, pg := pageOf(visible, offset, limit)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// ---- Service requests ----

type serviceRequestBody struct {
	CategoryID         string  `json:"category_id"`
	Lat                float64 `json:"lat"`
	Lon                float64 `json:"lon"`
	Description        string  `json:"description"`
	RequiresCredential bool    `json:"requires_credential"`
}

// CreateRequestHandler posts a new service request.
func CreateRequestHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := actingUser(c)
		if err != nil {
			return errDomain(c, err)
		}

		var body serviceRequestBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if body.CategoryID == "" {
			return errBadRequest(c, "category_id is required")
		}

		req, err := deps.Requests.Create(c.UserContext(), uid, body.CategoryID, body.Description,
			domain.GeoPoint{Lat: body.Lat, Lon: body.Lon}, body.RequiresCredential)
		if err != nil {
			return errDomain(c, err)
		}
		return c.Status(201).JSON(req)
	}
}

// GetRequestHandler returns a single request.
func GetRequestHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := deps.Requests.GetByID(c.UserContext(), pathID(c))
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(req)
	}
}

// ListOwnRequestsHandler returns the acting requester's requests.
func ListOwnRequestsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := actingUser(c)
		if err != nil {
			return errDomain(c, err)
		}
		reqs, err := deps.Requests.ListForRequester(c.UserContext(), uid)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(reqs)
	}
}

// UpdateRequestHandler edits a request while it has no accepted application.
func UpdateRequestHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := actingUser(c)
		if err != nil {
			return errDomain(c, err)
		}

		var body serviceRequestBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		req, err := deps.Requests.Update(c.UserContext(), pathID(c), uid,
			body.CategoryID, body.Description,
			domain.GeoPoint{Lat: body.Lat, Lon: body.Lon}, body.RequiresCredential)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(req)
	}
}

// WithdrawRequestHandler removes a request from the open set.
func WithdrawRequestHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := actingUser(c)
		if err != nil {
			return errDomain(c, err)
		}
		if err := deps.Requests.Withdraw(c.UserContext(), pathID(c), uid); err != nil {
			return errDomain(c, err)
		}
		return c.SendStatus(204)
	}
}

// ---- Applications ----

type submitApplicationBody struct {
	Message string `json:"message"`
}

// SubmitApplicationHandler records the acting provider's application
// against a request.
func SubmitApplicationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := actingUser(c)
		if err != nil {
			return errDomain(c, err)
		}

		var body submitApplicationBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		app, err := deps.Applications.Submit(c.UserContext(), pathID(c), uid, body.Message)
		if err != nil {
			return errDomain(c, err)
		}
		metrics.ApplicationsSubmitted.Inc()
		return c.Status(201).JSON(app)
	}
}

type statusBody struct {
	Status string `json:"status"`
}

// acceptResponse carries the accepted application plus the siblings the
// cascade discarded, so the caller can notify their owners.
type acceptResponse struct {
	Application *domain.Application  `json:"application"`
	Discarded   []domain.Application `json:"discarded,omitempty"`
}

// SetApplicationStatusHandler transitions an application's status. Only
// the owning requester succeeds; acceptance cascades over the siblings.
func SetApplicationStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := actingUser(c)
		if err != nil {
			return errDomain(c, err)
		}

		var body statusBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		app, discarded, err := deps.Applications.SetStatus(c.UserContext(), pathID(c),
			domain.ApplicationStatus(body.Status), uid)
		if err != nil {
			if errors.Is(err, domain.ErrConcurrencyConflict) {
				metrics.AcceptConflicts.Inc()
			}
			return errDomain(c, err)
		}
		if app.Status == domain.ApplicationAccepted {
			metrics.ApplicationsAccepted.Inc()
			metrics.ApplicationsDiscarded.Add(float64(len(discarded)))
		}
		return c.JSON(acceptResponse{Application: app, Discarded: discarded})
	}
}

// ListRequestApplicationsHandler returns applications on a request to its
// owner, newest first.
func ListRequestApplicationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := actingUser(c)
		if err != nil {
			return errDomain(c, err)
		}

		req, err := deps.Requests.GetByID(c.UserContext(), pathID(c))
		if err != nil {
			return errDomain(c, err)
		}
		// Applications are private to the request owner.
		if req.RequesterID != uid {
			return errDomain(c, domain.ErrUnauthorized)
		}

		apps, err := deps.Applications.ListForRequest(c.UserContext(), req.ID)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(apps)
	}
}

// ListOwnApplicationsHandler returns the acting provider's applications,
// newest first.
func ListOwnApplicationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid, err := actingUser(c)
		if err != nil {
			return errDomain(c, err)
		}
		apps, err := deps.Applications.ListForProvider(c.UserContext(), uid)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(apps)
	}
}
