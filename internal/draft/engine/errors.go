package engine

import "errors"

var (
	// ErrInvalidTransition is returned when a requested action is illegal
	// for the session's current state. The session is left unchanged.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrUnauthorized is returned when the acting user may not act for the
	// round's team. No mutation is applied.
	ErrUnauthorized = errors.New("actor not authorized")

	// ErrRoundNotFound is returned for an unknown round id.
	ErrRoundNotFound = errors.New("round not found")

	// ErrTeamNotFound is returned for a team id outside the session.
	ErrTeamNotFound = errors.New("team not found")

	// ErrHeroUnavailable is returned when the requested hero is unknown or
	// already picked or banned.
	ErrHeroUnavailable = errors.New("hero unavailable")
)
