package engine

import "github.com/foxzi/outreach/internal/models"

// transitions is the campaign state machine. Terminal states have no
// outgoing edges; completion is reached only by the driver discovering an
// empty ledger, never by a user call.
var transitions = map[models.CampaignStatus][]models.CampaignStatus{
	models.CampaignDraft:   {models.CampaignSending},
	models.CampaignSending: {models.CampaignPaused, models.CampaignCancelled, models.CampaignCompleted, models.CampaignFailed},
	models.CampaignPaused:  {models.CampaignSending, models.CampaignCancelled},
}

// CanTransition reports whether from -> to is a legal campaign state
// change.
func CanTransition(from, to models.CampaignStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// sources returns every status from which `to` is reachable, used to
// build atomic conditional updates.
func sources(to models.CampaignStatus) []models.CampaignStatus {
	var from []models.CampaignStatus
	for s, nexts := range transitions {
		for _, next := range nexts {
			if next == to {
				from = append(from, s)
			}
		}
	}
	return from
}
