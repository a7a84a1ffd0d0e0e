package event

import (
	"errors"
	"sort"
)

// ErrUnknown is returned for rows that match no event kind. Such rows are
// neither broadcast nor listed.
var ErrUnknown = errors.New("event: unclassifiable change")

// Classify derives the event kind from a before/after snapshot. The first
// matching rule wins: coupon url changed, coupon serial changed, tasks newly
// accepted, proofs newly submitted.
func Classify(l Log) (Event, error) {
	ev := Event{
		ID:            l.ID,
		ProjectID:     l.ProjectID,
		CampaignID:    l.CampaignID,
		ChainID:       l.ChainID,
		SignerAddress: l.SignerAddress,
		CreatedAt:     l.CreatedAt,
	}

	switch {
	case !sameString(l.OldCouponURL, l.NewCouponURL):
		ev.Kind = KindClaimed
	case !sameString(l.OldCouponSerial, l.NewCouponSerial):
		ev.Kind = KindIssued
	default:
		if ids := acceptedTaskIDs(l); len(ids) > 0 {
			ev.Kind, ev.TaskIDs = KindSubmissionApproved, ids
		} else if ids := submittedTaskIDs(l); len(ids) > 0 {
			ev.Kind, ev.TaskIDs = KindSubmittedProof, ids
		} else {
			return Event{}, ErrUnknown
		}
	}

	return ev, nil
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// acceptedTaskIDs lists tasks that are accepted now and were absent or
// rejected before.
func acceptedTaskIDs(l Log) []string {
	var ids []string
	for k, v := range l.NewAccepted.Data() {
		if v && !l.OldAccepted.Get(k) {
			ids = append(ids, k)
		}
	}
	sort.Strings(ids)
	return ids
}

func submittedTaskIDs(l Log) []string {
	var ids []string
	for k := range l.NewSubmissions.Data() {
		if !l.OldSubmissions.Has(k) {
			ids = append(ids, k)
		}
	}
	sort.Strings(ids)
	return ids
}
