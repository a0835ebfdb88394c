package requests

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateLocation checks coordinate ranges.
func ValidateLocation(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return &ValidationError{Field: "lat", Reason: "must be between -90 and 90"}
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return &ValidationError{Field: "lng", Reason: "must be between -180 and 180"}
	}
	return nil
}

// editable reports whether the owner may still change the request.
func (r *ServiceRequest) editable() bool {
	return r.Status == StatusPending || r.Status == StatusAccepted || r.Status == StatusArrived
}

// accept binds providerID from any editable state. busy is true when the provider
// holds another active request. A repeat by the provider already bound is a no-op.
// Taking over from another provider restarts the confirmation handshake.
func (r *ServiceRequest) accept(providerID uuid.UUID, busy bool) (bool, error) {
	if !r.editable() {
		return false, ErrForbidden
	}
	if r.ProviderID != nil && *r.ProviderID == providerID && r.Status.holdsProvider() {
		return false, nil
	}
	if busy {
		return false, ErrProviderBusy
	}
	if r.ProviderID != nil && *r.ProviderID != providerID {
		r.ArrivedByProvider, r.ArrivedByUser = false, false
		r.CompletedByProvider, r.CompletedByUser = false, false
	}
	id := providerID
	r.ProviderID = &id
	r.Status = StatusAccepted
	return true, nil
}

// applyPatch applies an owner edit. The caller has already checked ownership and the edit window.
func (r *ServiceRequest) applyPatch(p Patch, allowCancelAfterAccept bool) (bool, error) {
	if p.empty() {
		return false, &ValidationError{Field: "patch", Reason: "no editable fields supplied"}
	}

	if p.Notes != nil && utf8.RuneCountInString(*p.Notes) > MaxNotesLen {
		return false, &ValidationError{Field: "notes", Reason: fmt.Sprintf("must be at most %d characters", MaxNotesLen)}
	}

	lat, lng := r.Lat, r.Lng
	if p.Lat != nil {
		lat = *p.Lat
	}
	if p.Lng != nil {
		lng = *p.Lng
	}
	if err := ValidateLocation(lat, lng); err != nil {
		return false, err
	}

	status := r.Status
	if p.Status != nil {
		st, err := ParseStatus(*p.Status)
		if err != nil {
			return false, err
		}
		switch st {
		case StatusPending:
			if r.Status != StatusPending {
				return false, &ValidationError{Field: "status", Reason: "cannot return an assigned request to Pending"}
			}
		case StatusCancelled:
			if r.Status.holdsProvider() && !allowCancelAfterAccept {
				return false, ErrForbidden
			}
		default:
			return false, &ValidationError{Field: "status", Reason: "only Pending or Cancelled may be set"}
		}
		status = st
	}

	changed := false
	if p.Notes != nil && *p.Notes != r.Notes {
		r.Notes = *p.Notes
		changed = true
	}
	if lat != r.Lat || lng != r.Lng {
		r.Lat, r.Lng = lat, lng
		changed = true
	}
	if status != r.Status {
		r.Status = status
		changed = true
	}
	return changed, nil
}

// confirmArrived records role's arrival acknowledgement. Status becomes Arrived once both parties agree.
func (r *ServiceRequest) confirmArrived(role Role) (bool, error) {
	if r.Status != StatusAccepted && r.Status != StatusArrived {
		return false, ErrInvalidTransition
	}
	changed := false
	switch role {
	case RoleProvider:
		changed = !r.ArrivedByProvider
		r.ArrivedByProvider = true
	case RoleUser:
		changed = !r.ArrivedByUser
		r.ArrivedByUser = true
	default:
		return false, ErrInvalidRole
	}
	if r.ArrivedByProvider && r.ArrivedByUser && r.Status != StatusArrived {
		r.Status = StatusArrived
		changed = true
	}
	return changed, nil
}

// confirmCompleted records role's completion acknowledgement. Status becomes Completed once both parties agree.
func (r *ServiceRequest) confirmCompleted(role Role) (bool, error) {
	if r.Status != StatusArrived && r.Status != StatusCompleted {
		return false, ErrInvalidTransition
	}
	changed := false
	switch role {
	case RoleProvider:
		changed = !r.CompletedByProvider
		r.CompletedByProvider = true
	case RoleUser:
		changed = !r.CompletedByUser
		r.CompletedByUser = true
	default:
		return false, ErrInvalidRole
	}
	if r.CompletedByProvider && r.CompletedByUser && r.Status != StatusCompleted {
		r.Status = StatusCompleted
		changed = true
	}
	return changed, nil
}
