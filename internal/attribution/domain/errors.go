package domain

import "errors"

var (
	ErrInfluencerNotFound = errors.New("influencer_not_found")
	ErrInvalidInfluencer  = errors.New("invalid_influencer")
	ErrSlugTaken          = errors.New("influencer_slug_taken")
	ErrInvalidVisit       = errors.New("invalid_visit")
	ErrInvalidPeriod      = errors.New("invalid_settlement_period")
)
