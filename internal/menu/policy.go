package menu

// DefaultCommandWhitelist holds the texts that open the user menu.
var DefaultCommandWhitelist = []string{"userrequest"}

// AutoStartInput describes an inbound message with no user-menu session.
type AutoStartInput struct {
	AllowUserMenu      bool
	HasUserMenuSession bool
	LowerText          string
	AutoStartEnabled   bool
	// CommandWhitelist defaults to DefaultCommandWhitelist when nil.
	CommandWhitelist []string
}

// ShouldAutoStartUserMenu reports whether the message is a whitelisted
// command that opens the menu.
func ShouldAutoStartUserMenu(in AutoStartInput) bool {
	if !in.AllowUserMenu || in.HasUserMenuSession || !in.AutoStartEnabled || in.LowerText == "" {
		return false
	}
	whitelist := in.CommandWhitelist
	if whitelist == nil {
		whitelist = DefaultCommandWhitelist
	}
	for _, c := range whitelist {
		if c == in.LowerText {
			return true
		}
	}
	return false
}

// LightHelpInput describes an unrecognized message.
type LightHelpInput struct {
	AllowUserMenu  bool
	LowerText      string
	IsAdminCommand bool
}

// ShouldSendLightHelpForUnknownMessage is always false: unknown text goes
// through the initial flow instead of a "command not recognized" reply.
func ShouldSendLightHelpForUnknownMessage(LightHelpInput) bool {
	return false
}

// InitialFlowInput is what the router knows about a chat without a session.
type InitialFlowInput struct {
	AllowUserMenu     bool
	IsAdminCommand    bool
	LowerText         string
	OriginalText      string
	HasAnySession     bool
	InTimeoutCooldown bool
	IsLinked          bool
}

// InitialFlow is the decision for a first message.
type InitialFlow struct {
	ShouldEvaluate    bool
	ShouldAutoStart   bool
	UseDirectNrpInput bool
	NormalizedNrp     string
}

// ResolveInitialUserMenuFlow decides whether a first message opens the
// menu. Linked numbers are left alone; an unlinked number whose first
// message is a valid NRP goes straight to verification.
func ResolveInitialUserMenuFlow(in InitialFlowInput) InitialFlow {
	if !in.AllowUserMenu || in.IsAdminCommand || in.LowerText == "" {
		return InitialFlow{}
	}
	if in.HasAnySession || in.InTimeoutCooldown {
		return InitialFlow{}
	}
	if in.IsLinked {
		return InitialFlow{ShouldEvaluate: true}
	}
	if v := ValidateNRP(in.OriginalText); v.Valid {
		return InitialFlow{
			ShouldEvaluate:    true,
			ShouldAutoStart:   true,
			UseDirectNrpInput: true,
			NormalizedNrp:     v.Value,
		}
	}
	return InitialFlow{ShouldEvaluate: true, ShouldAutoStart: true}
}
