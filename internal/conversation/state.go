// Package conversation implements the turn-by-turn intake dialogue engine:
// state transitions, retry and escalation policy, opportunistic multi-field
// extraction, the correction and confirmation sub-dialogues, and the hand-off
// to validation and job recommendation.
package conversation

import "github.com/silverstar/intake/internal/profile"

// State identifies where the intake dialogue currently is.
type State string

const (
	StateGreeting            State = "greeting"
	StateCollectingFullName  State = "collecting_full_name"
	StateCollectingLocation  State = "collecting_location"
	StateCollectingAge       State = "collecting_age"
	StateCollectingCondition State = "collecting_physical_condition"
	StateCollectingInterests State = "collecting_interests"
	StateCollectingLimits    State = "collecting_limitations"
	StateConfirmingProfile   State = "confirming_profile"
	StateFieldSelection      State = "awaiting_field_selection"
	StateValidatingProfile   State = "validating_profile"
	StateAwaitingConsent     State = "awaiting_recommendation_consent"
	StateRecommendingJobs    State = "recommending_jobs"
	StateProfileComplete     State = "profile_complete"
)

// collectingOrder is the linear path through the intake flow. Auto-advance
// walks it at most once per turn.
var collectingOrder = []State{
	StateCollectingFullName,
	StateCollectingLocation,
	StateCollectingAge,
	StateCollectingCondition,
	StateCollectingInterests,
	StateCollectingLimits,
	StateValidatingProfile,
}

var stateToField = map[State]profile.Field{
	StateCollectingFullName:  profile.FieldFullName,
	StateCollectingLocation:  profile.FieldLocation,
	StateCollectingAge:       profile.FieldAge,
	StateCollectingCondition: profile.FieldPhysicalCondition,
	StateCollectingInterests: profile.FieldInterests,
	StateCollectingLimits:    profile.FieldLimitations,
}

var fieldToState = map[profile.Field]State{
	profile.FieldFullName:          StateCollectingFullName,
	profile.FieldLocation:          StateCollectingLocation,
	profile.FieldAge:               StateCollectingAge,
	profile.FieldPhysicalCondition: StateCollectingCondition,
	profile.FieldInterests:         StateCollectingInterests,
	profile.FieldLimitations:       StateCollectingLimits,
}

// Field returns the profile field a collecting state targets, or "" for
// states that don't collect a field.
func (s State) Field() profile.Field {
	return stateToField[s]
}

// StateForField returns the collecting state that gathers the given field.
func StateForField(f profile.Field) State {
	return fieldToState[f]
}

// next returns the state after s on the linear intake path, or s unchanged
// when s is not on it.
func (s State) next() State {
	for i, st := range collectingOrder {
		if st == s && i+1 < len(collectingOrder) {
			return collectingOrder[i+1]
		}
	}
	return s
}
