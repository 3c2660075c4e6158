// Package workflow is the signoff state machine of a handover draft.
//
//	DRAFT --open_review--> IN_REVIEW --accept--> ACCEPTED --sign--> SIGNED --export--> EXPORTED
//	           IN_REVIEW <--abandon-- (to DRAFT)     ACCEPTED --reject--> IN_REVIEW
//	                                                  EXPORTED --export--> EXPORTED
//
// Every rejected request maps to a named error wrapped in a TransitionError.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"handover/internal/model"
)

// Event is a requested lifecycle change.
type Event string

const (
	EventOpenReview Event = "open_review"
	EventAbandon    Event = "abandon"
	EventAccept     Event = "accept"
	EventReject     Event = "reject"
	EventSign       Event = "sign"
	EventExport     Event = "export"
	EventEdit       Event = "edit"
)

var (
	ErrCannotOpenReview     = errors.New("cannot open review on draft that is not in DRAFT")
	ErrCannotAbandon        = errors.New("cannot abandon draft that is not in review")
	ErrCannotAccept         = errors.New("cannot accept draft that is not in review")
	ErrConfirmationRequired = errors.New("confirmation is required")
	ErrSectionsNotViewed    = errors.New("all sections must be viewed before accepting")
	ErrCannotReject         = errors.New("cannot reject draft that is not accepted")
	ErrReasonRequired       = errors.New("rejection reason is required")
	ErrCannotSign           = errors.New("cannot sign without acceptance")
	ErrSelfSignoff          = errors.New("incoming signer must differ from outgoing signer")
	ErrCannotExport         = errors.New("cannot export unsigned draft")
	ErrExportTargetRequired = errors.New("export target is required")
	ErrDraftArchived        = errors.New("draft is archived")
	ErrEditAfterFreeze      = errors.New("draft content is frozen")
	ErrUnknownEvent         = errors.New("unknown event")
)

// TransitionError reports a rejected request with the draft's current state.
type TransitionError struct {
	DraftID string
	Event   Event
	From    model.DraftState
	Err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s (draft %s, state %s, event %s)", e.Err, e.DraftID, e.From, e.Event)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// Message is the user-facing reason without the context suffix.
func (e *TransitionError) Message() string { return e.Err.Error() }

// Request carries everything a guard may inspect.
type Request struct {
	Event   Event
	ActorID string
	// Confirmed is the explicit confirmation flag for accept and sign.
	Confirmed bool
	// Reason is required for reject.
	Reason string
	// AllSectionsViewed is computed by the caller for accept.
	AllSectionsViewed bool
	// ExportTarget names the artifact type for export.
	ExportTarget string
}

// Next validates req against draft and returns the resulting state. The draft
// is never modified.
func Next(d *model.Draft, req Request) (model.DraftState, error) {
	from := d.State
	fail := func(err error) (model.DraftState, error) {
		return from, &TransitionError{DraftID: d.ID, Event: req.Event, From: from, Err: err}
	}

	if d.ArchivedAt != nil {
		return fail(ErrDraftArchived)
	}

	switch req.Event {
	case EventOpenReview:
		if from != model.StateDraft {
			return fail(ErrCannotOpenReview)
		}
		return model.StateInReview, nil

	case EventAbandon:
		if from != model.StateInReview {
			return fail(ErrCannotAbandon)
		}
		return model.StateDraft, nil

	case EventAccept:
		if from != model.StateInReview {
			return fail(ErrCannotAccept)
		}
		if !req.Confirmed {
			return fail(ErrConfirmationRequired)
		}
		if !req.AllSectionsViewed {
			return fail(ErrSectionsNotViewed)
		}
		return model.StateAccepted, nil

	case EventReject:
		if from != model.StateAccepted {
			return fail(ErrCannotReject)
		}
		if strings.TrimSpace(req.Reason) == "" {
			return fail(ErrReasonRequired)
		}
		return model.StateInReview, nil

	case EventSign:
		if from != model.StateAccepted {
			return fail(ErrCannotSign)
		}
		if !req.Confirmed {
			return fail(ErrConfirmationRequired)
		}
		if d.OutgoingSignerID != nil && *d.OutgoingSignerID == req.ActorID {
			return fail(ErrSelfSignoff)
		}
		return model.StateSigned, nil

	case EventExport:
		if from != model.StateSigned && from != model.StateExported {
			return fail(ErrCannotExport)
		}
		if strings.TrimSpace(req.ExportTarget) == "" {
			return fail(ErrExportTargetRequired)
		}
		return model.StateExported, nil
	}
	return fail(ErrUnknownEvent)
}

// CheckEditable rejects item mutations once the draft is frozen.
func CheckEditable(d *model.Draft, event Event) error {
	if d.ArchivedAt != nil {
		return &TransitionError{DraftID: d.ID, Event: event, From: d.State, Err: ErrDraftArchived}
	}
	if !d.State.Editable() {
		return &TransitionError{DraftID: d.ID, Event: event, From: d.State, Err: ErrEditAfterFreeze}
	}
	return nil
}
