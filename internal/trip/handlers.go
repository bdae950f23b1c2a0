package trip

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jany-pan/packwise/internal/insight"
	"github.com/jany-pan/packwise/internal/pack"
)

type createTripRequest struct {
	Name         string   `json:"name" validate:"required"`
	LeaderName   string   `json:"leaderName" validate:"required"`
	RouteURL     string   `json:"routeUrl"`
	Participants []string `json:"participants"`
}

type itemRequest struct {
	Name         string  `json:"name" validate:"required"`
	Category     string  `json:"category"`
	Weight       float64 `json:"weight" validate:"gt=0"`
	Price        float64 `json:"price" validate:"gte=0"`
	Quantity     int     `json:"quantity" validate:"gte=0"`
	IsWorn       bool    `json:"isWorn"`
	IsConsumable bool    `json:"isConsumable"`
	Notes        string  `json:"notes"`
	Link         string  `json:"link"`
}

func (r itemRequest) item() pack.GearItem {
	return pack.GearItem{
		Name:         strings.TrimSpace(r.Name),
		Category:     pack.NormalizeCategory(r.Category),
		Weight:       r.Weight,
		Price:        r.Price,
		Quantity:     r.Quantity,
		IsWorn:       r.IsWorn,
		IsConsumable: r.IsConsumable,
		Notes:        r.Notes,
		Link:         r.Link,
	}
}

type toggleRequest struct {
	Flag string `json:"flag" validate:"required,oneof=isWorn isConsumable isChecked"`
}

type langRequest struct {
	Lang     string `json:"lang"`
	Language string `json:"language"`
}

func (r langRequest) value() string {
	if r.Language != "" {
		return r.Language
	}
	return r.Lang
}

// RegisterRoutes mounts the trip document endpoints. gen may be nil, in which
// case insight requests fail with a generation error.
func RegisterRoutes(r fiber.Router, svc *Service, gen insight.Generator) {
	if gen == nil {
		gen = insight.NewService(nil)
	}

	r.Post("/", func(c *fiber.Ctx) error {
		var doc pack.Trip
		if err := c.BodyParser(&doc); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := pack.ValidateTrip(doc); err != nil {
			return toHTTPError(svc.log, err)
		}
		rec, err := svc.Insert(c.Context(), doc)
		if err != nil {
			return toHTTPError(svc.log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	})

	r.Post("/new", func(c *fiber.Ctx) error {
		var req createTripRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		doc, err := pack.NewTrip(req.Name, req.LeaderName, req.RouteURL, req.Participants)
		if err != nil {
			return toHTTPError(svc.log, err)
		}
		rec, err := svc.Insert(c.Context(), doc)
		if err != nil {
			return toHTTPError(svc.log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		rec, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return toHTTPError(svc.log, err)
		}
		return c.JSON(rec)
	})

	r.Put("/:id", func(c *fiber.Ctx) error {
		var doc pack.Trip
		if err := c.BodyParser(&doc); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := pack.ValidateTrip(doc); err != nil {
			return toHTTPError(svc.log, err)
		}
		rec, err := svc.Update(c.Context(), c.Params("id"), doc)
		if err != nil {
			return toHTTPError(svc.log, err)
		}
		return c.JSON(rec)
	})

	r.Get("/:id/stats", func(c *fiber.Ctx) error {
		report, err := svc.Report(c.Context(), c.Params("id"))
		if err != nil {
			return toHTTPError(svc.log, err)
		}
		return c.JSON(report)
	})

	r.Post("/:id/participants", func(c *fiber.Ctx) error {
		var req langRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		var participantID string
		rec, err := svc.Mutate(c.Context(), c.Params("id"), func(doc pack.Trip) (pack.Trip, error) {
			next, id := doc.AddParticipant(pack.PlaceholderLabel(req.value()))
			participantID = id
			return next, nil
		})
		if err != nil {
			return toHTTPError(svc.log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"participantId": participantID, "record": rec})
	})

	r.Post("/:id/participants/:pid/items", func(c *fiber.Ctx) error {
		var req itemRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		var added pack.GearItem
		rec, err := svc.Mutate(c.Context(), c.Params("id"), func(doc pack.Trip) (pack.Trip, error) {
			item := req.item()
			if err := pack.ValidateItem(item); err != nil {
				return doc, err
			}
			next, item, err := doc.AddItem(c.Params("pid"), item)
			added = item
			return next, err
		})
		if err != nil {
			return toHTTPError(svc.log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"item": added, "record": rec})
	})

	r.Delete("/:id/participants/:pid/items/:itemID", func(c *fiber.Ctx) error {
		rec, err := svc.Mutate(c.Context(), c.Params("id"), func(doc pack.Trip) (pack.Trip, error) {
			return doc.RemoveItem(c.Params("pid"), c.Params("itemID"))
		})
		if err != nil {
			return toHTTPError(svc.log, err)
		}
		return c.JSON(rec)
	})

	r.Post("/:id/participants/:pid/items/:itemID/toggle", func(c *fiber.Ctx) error {
		var req toggleRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		rec, err := svc.Mutate(c.Context(), c.Params("id"), func(doc pack.Trip) (pack.Trip, error) {
			return doc.ToggleItemFlag(c.Params("pid"), c.Params("itemID"), pack.Flag(req.Flag))
		})
		if err != nil {
			return toHTTPError(svc.log, err)
		}
		return c.JSON(rec)
	})

	r.Post("/:id/participants/:pid/insights", func(c *fiber.Ctx) error {
		var req langRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		lang := req.value()

		rec, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return toHTTPError(svc.log, err)
		}
		participant, ok := rec.Trip.Participant(c.Params("pid"))
		if !ok {
			return toHTTPError(svc.log, pack.ErrParticipantNotFound)
		}
		if err := insight.CheckItems(participant.Items); err != nil {
			return fiber.NewError(fiber.StatusUnprocessableEntity, insight.Message(lang, err))
		}

		out, err := gen.Generate(c.Context(), participant.Items, pack.PackStats(participant.Items), lang)
		switch {
		case errors.Is(err, insight.ErrRateLimited):
			return fiber.NewError(fiber.StatusTooManyRequests, insight.Message(lang, err))
		case err != nil:
			return fiber.NewError(fiber.StatusBadGateway, insight.Message(lang, err))
		}
		return c.JSON(fiber.Map{"insights": out})
	})
}

func toHTTPError(log zerolog.Logger, err error) error {
	switch {
	case errors.Is(err, pack.ErrTripNotFound):
		return fiber.NewError(fiber.StatusNotFound, "trip not found")
	case errors.Is(err, pack.ErrParticipantNotFound), errors.Is(err, pack.ErrItemNotFound):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, pack.ErrUnknownFlag), errors.Is(err, pack.ErrInvalidItem),
		errors.Is(err, pack.ErrInvalidTrip), errors.Is(err, pack.ErrNoParticipants):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("trip request failed")
		return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
	}
}
