package challengedto

import "errors"

// Kind groups domain failures by how a caller should react to them.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindValidation        Kind = "VALIDATION_FAILED"
	KindCapacityExceeded  Kind = "CAPACITY_EXCEEDED"
	KindDuplicateAction   Kind = "DUPLICATE_ACTION"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindStateConflict     Kind = "STATE_CONFLICT"
	KindInternal          Kind = "INTERNAL"
)

type DomainError struct {
	Kind      Kind
	Code      string
	Message   string
	Retryable bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "challenge service error"
}

// Is matches on Code so a sentinel with a custom message still compares equal.
func (e DomainError) Is(target error) bool {
	var t DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithMessage returns a copy carrying a more specific message.
func (e DomainError) WithMessage(msg string) DomainError {
	e.Message = msg
	return e
}

// KindOf classifies err; anything that is not a DomainError is internal.
func KindOf(err error) Kind {
	var de DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of a DomainError, or "OK" for nil and "INTERNAL" otherwise.
func CodeOf(err error) string {
	if err == nil {
		return "OK"
	}
	var de DomainError
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}
	return "INTERNAL"
}

func domainErr(kind Kind, code, msg string) DomainError {
	return DomainError{Kind: kind, Code: code, Message: msg}
}

var (
	ErrUserNotFound          = domainErr(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrAccountNotFound       = domainErr(KindNotFound, "ACCOUNT_NOT_FOUND", "coin account not found")
	ErrChallengeNotFound     = domainErr(KindNotFound, "CHALLENGE_NOT_FOUND", "challenge not found")
	ErrMissionNotFound       = domainErr(KindNotFound, "MISSION_NOT_FOUND", "mission not found")
	ErrParticipationNotFound = domainErr(KindNotFound, "PARTICIPATION_NOT_FOUND", "no participation record for this mission")
	ErrNotAParticipant       = domainErr(KindNotFound, "NOT_A_PARTICIPANT", "user is not a participant of this challenge")

	ErrInvalidArgs         = domainErr(KindValidation, "INVALID_ARGUMENT", "invalid arguments")
	ErrInvalidAmount       = domainErr(KindValidation, "INVALID_AMOUNT", "amount must not be negative")
	ErrInvalidDates        = domainErr(KindValidation, "INVALID_CHALLENGE_DATES", "invalid challenge dates")
	ErrAgeRestriction      = domainErr(KindValidation, "AGE_RESTRICTION_NOT_MET", "age restriction not met")
	ErrGenderRestriction   = domainErr(KindValidation, "GENDER_RESTRICTION_NOT_MET", "gender restriction not met")
	ErrChallengeFull       = domainErr(KindCapacityExceeded, "CHALLENGE_FULL", "challenge is full")
	ErrAlreadyJoined       = domainErr(KindDuplicateAction, "ALREADY_JOINED_CHALLENGE", "already joined this challenge")
	ErrInsufficientCoins   = domainErr(KindInsufficientFunds, "INSUFFICIENT_COINS", "insufficient coins")
	ErrAlreadyStarted      = domainErr(KindStateConflict, "CHALLENGE_ALREADY_STARTED", "challenge already started")
	ErrAlreadyFinished     = domainErr(KindStateConflict, "CHALLENGE_ALREADY_FINISHED", "challenge already finished")
	ErrMissionNotStarted   = domainErr(KindStateConflict, "MISSION_NOT_STARTED", "mission has not started yet")
	ErrMissionFinished     = domainErr(KindStateConflict, "MISSION_ALREADY_FINISHED", "mission already finished")
	ErrMissionSettled      = domainErr(KindStateConflict, "MISSION_ALREADY_SETTLED", "mission rewards already distributed")
	ErrConcurrentUpdate    = DomainError{Kind: KindStateConflict, Code: "CONCURRENT_UPDATE", Message: "record changed concurrently, retry", Retryable: true}
)
