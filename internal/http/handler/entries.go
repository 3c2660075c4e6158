package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"handover/internal/service"
)

type submitEntryRequest struct {
	Department string         `json:"department" validate:"required,max=64"`
	Narrative  string         `json:"narrative" validate:"required,max=8000"`
	EntityRefs []entityRefDTO `json:"entity_refs" validate:"max=50,dive"`
	SourceRefs []sourceRefDTO `json:"source_refs" validate:"max=50,dive"`
}

type proposeEntryRequest struct {
	submitEntryRequest
	ProposedBy string `json:"proposed_by" validate:"required,max=128"`
}

type appendSourceRefsRequest struct {
	SourceRefs []sourceRefDTO `json:"source_refs" validate:"required,min=1,max=50,dive"`
}

type flagMisclassificationRequest struct {
	SuggestedDomain string `json:"suggested_domain" validate:"required,max=32"`
	Note            string `json:"note" validate:"max=2000"`
}

// SubmitEntry creates a candidate entry.
//
// @Summary Submit an entry
// @Tags entries
// @Accept json
// @Produce json
// @Success 201 {object} model.Entry
// @Router /entries [post]
func SubmitEntry(svc service.EntryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req submitEntryRequest
		if ok, err := bind(c, &req); !ok {
			return err
		}
		e, err := svc.Submit(c.UserContext(), actorOf(c), service.SubmitEntryInput{
			Department: req.Department,
			Narrative:  req.Narrative,
			EntityRefs: toEntityRefs(req.EntityRefs),
			SourceRefs: toSourceRefs(req.SourceRefs),
		})
		if err != nil {
			return fail(c, err, nil)
		}
		return c.Status(fiber.StatusCreated).JSON(e)
	}
}

// GetEntry returns one entry of the caller's tenant.
//
// @Summary Get an entry
// @Tags entries
// @Produce json
// @Success 200 {object} model.Entry
// @Router /entries/{id} [get]
func GetEntry(svc service.EntryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		e, err := svc.Get(c.UserContext(), actorOf(c), c.Params("id"))
		if err != nil {
			return fail(c, err, nil)
		}
		return c.JSON(e)
	}
}

func parsePeriodBound(c *fiber.Ctx, key string) (time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ListCandidates lists undrafted entries for a department and period.
//
// @Summary List candidate entries
// @Tags entries
// @Produce json
// @Param department query string false "department, all pools every department"
// @Param period_start query string false "RFC3339"
// @Param period_end query string false "RFC3339"
// @Success 200 {array} model.Entry
// @Router /entries [get]
func ListCandidates(svc service.EntryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start, ok := parsePeriodBound(c, "period_start")
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PERIOD", "period_start must be RFC3339")
		}
		end, ok := parsePeriodBound(c, "period_end")
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PERIOD", "period_end must be RFC3339")
		}
		list, err := svc.ListCandidates(c.UserContext(), actorOf(c), service.CandidateQuery{
			Department:  c.Query("department"),
			PeriodStart: start,
			PeriodEnd:   end,
		})
		if err != nil {
			return fail(c, err, nil)
		}
		return c.JSON(fiber.Map{"items": list, "total": len(list)})
	}
}

// AppendSourceRefs appends references to an entry. Existing ones are kept.
//
// @Summary Append source references
// @Tags entries
// @Accept json
// @Produce json
// @Success 200 {object} model.Entry
// @Router /entries/{id}/source-refs [post]
func AppendSourceRefs(svc service.EntryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req appendSourceRefsRequest
		if ok, err := bind(c, &req); !ok {
			return err
		}
		e, err := svc.AppendSourceRefs(c.UserContext(), actorOf(c), c.Params("id"), toSourceRefs(req.SourceRefs))
		if err != nil {
			return fail(c, err, nil)
		}
		return c.JSON(e)
	}
}

// FlagMisclassification records a correction request for offline review.
//
// @Summary Flag a misclassification
// @Tags entries
// @Accept json
// @Produce json
// @Success 201 {object} model.CorrectionRequest
// @Router /entries/{id}/corrections [post]
func FlagMisclassification(svc service.EntryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req flagMisclassificationRequest
		if ok, err := bind(c, &req); !ok {
			return err
		}
		cr, err := svc.FlagMisclassification(c.UserContext(), actorOf(c), c.Params("id"), req.SuggestedDomain, req.Note)
		if err != nil {
			return fail(c, err, nil)
		}
		return c.Status(fiber.StatusCreated).JSON(cr)
	}
}

// ProposeEntry stores a system suggestion; no entry exists until it is accepted.
//
// @Summary Propose an entry
// @Tags proposals
// @Accept json
// @Produce json
// @Success 201 {object} model.EntryProposal
// @Router /proposals [post]
func ProposeEntry(svc service.EntryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req proposeEntryRequest
		if ok, err := bind(c, &req); !ok {
			return err
		}
		p, err := svc.Propose(c.UserContext(), actorOf(c), service.ProposeEntryInput{
			Department: req.Department,
			ProposedBy: req.ProposedBy,
			Narrative:  req.Narrative,
			EntityRefs: toEntityRefs(req.EntityRefs),
			SourceRefs: toSourceRefs(req.SourceRefs),
		})
		if err != nil {
			return fail(c, err, nil)
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	}
}

// AcceptProposal turns a pending proposal into an entry.
//
// @Summary Accept a proposal
// @Tags proposals
// @Produce json
// @Success 201 {object} model.Entry
// @Router /proposals/{id}/accept [post]
func AcceptProposal(svc service.EntryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		e, err := svc.AcceptProposal(c.UserContext(), actorOf(c), c.Params("id"))
		if err != nil {
			return fail(c, err, nil)
		}
		return c.Status(fiber.StatusCreated).JSON(e)
	}
}

// DismissProposal closes a pending proposal without creating an entry.
//
// @Summary Dismiss a proposal
// @Tags proposals
// @Produce json
// @Success 200 {object} model.EntryProposal
// @Router /proposals/{id}/dismiss [post]
func DismissProposal(svc service.EntryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := svc.DismissProposal(c.UserContext(), actorOf(c), c.Params("id"))
		if err != nil {
			return fail(c, err, nil)
		}
		return c.JSON(p)
	}
}

// EntryTrail returns the ordered audit trail of an entry.
//
// @Summary Entry audit trail
// @Tags audit
// @Produce json
// @Success 200 {array} model.AuditEvent
// @Router /entries/{id}/audit [get]
func EntryTrail(svc service.AuditService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ev, err := svc.EntryTrail(c.UserContext(), actorOf(c), c.Params("id"))
		if err != nil {
			return fail(c, err, nil)
		}
		return c.JSON(ev)
	}
}
