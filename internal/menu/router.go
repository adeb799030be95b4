package menu

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/wamenu/internal/intent"
	"github.com/nextlevelbuilder/wamenu/internal/sessions"
	"github.com/nextlevelbuilder/wamenu/internal/store"
)

const tracerName = "github.com/nextlevelbuilder/wamenu/internal/menu"

// Policy is the hot-reloadable part of the router configuration.
type Policy struct {
	AllowUserMenu    bool
	AutoStart        bool
	CommandWhitelist []string
	// AdminNumbers may open clientrequest sessions.
	AdminNumbers []string
}

// ClientRequestHook receives admin clientrequest messages.
type ClientRequestHook func(ctx context.Context, chatID, text string)

// RouterConfig wires a Router.
type RouterConfig struct {
	Machine        *Machine
	Sessions       sessions.Store
	Scheduler      *sessions.TimeoutScheduler
	Cooldowns      *sessions.Cooldowns
	Lock           *sessions.ProcessingLock
	ClientRequests *sessions.ClientRequestStore
	Users          store.UserStore
	Policy         Policy
	// OnClientRequest is optional.
	OnClientRequest ClientRequestHook
}

// Router is the entry point for deduplicated inbound messages. It
// serializes work per chat, resolves or starts the session and runs the
// current step.
type Router struct {
	machine        *Machine
	sessions       sessions.Store
	scheduler      *sessions.TimeoutScheduler
	cooldowns      *sessions.Cooldowns
	lock           *sessions.ProcessingLock
	clientRequests *sessions.ClientRequestStore
	users          store.UserStore
	onClientReq    ClientRequestHook

	policy atomic.Pointer[Policy]
	tracer trace.Tracer
}

// NewRouter creates a router.
func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		machine:        cfg.Machine,
		sessions:       cfg.Sessions,
		scheduler:      cfg.Scheduler,
		cooldowns:      cfg.Cooldowns,
		lock:           cfg.Lock,
		clientRequests: cfg.ClientRequests,
		users:          cfg.Users,
		onClientReq:    cfg.OnClientRequest,
		tracer:         otel.Tracer(tracerName),
	}
	r.SetPolicy(cfg.Policy)
	return r
}

// SetPolicy swaps the menu policy; safe to call while messages are in flight.
func (r *Router) SetPolicy(p Policy) {
	p.CommandWhitelist = lowerAll(p.CommandWhitelist)
	r.policy.Store(&p)
}

// Policy returns the active policy.
func (r *Router) Policy() Policy { return *r.policy.Load() }

func lowerAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// HandleInbound processes one message from chatID.
func (r *Router) HandleInbound(ctx context.Context, chatID, text string) (err error) {
	normalized := intent.NormalizeText(text)
	existing, _ := r.sessions.Get(chatID)
	snap := existing.Snapshot()

	release, err := r.lock.Acquire(ctx, chatID, sessions.LockContext{Scope: "usermenu", Step: string(snap.Step)})
	if err != nil {
		return fmt.Errorf("acquire processing lock: %w", err)
	}
	defer release()

	ctx, span := r.tracer.Start(ctx, "usermenu.turn", trace.WithAttributes(
		attribute.String("chat_id", chatID),
		attribute.String("step_before", string(snap.Step)),
	))
	outcome := "ignored"
	defer func() {
		span.SetAttributes(attribute.String("outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if s, ok := r.sessions.Get(chatID); ok {
		if sessions.ShouldDropStaleInput(snap, s, normalized) {
			slog.Debug("usermenu stale input dropped", "chat_id", chatID,
				"snapshot_version", snap.StepVersion, "step_version", s.StepVersion)
			outcome = "stale_dropped"
			return nil
		}
		if r.scheduler.Touch(chatID, s) {
			outcome = "handled"
			err = r.runTurn(ctx, chatID, s, text, normalized)
			span.SetAttributes(attribute.String("step_after", string(s.Step)))
			return err
		}
		// expired between lookup and touch
	}

	outcome, err = r.start(ctx, chatID, text, normalized)
	return err
}

func (r *Router) runTurn(ctx context.Context, chatID string, s *sessions.Session, text, normalized string) error {
	h := r.machine.Handler(s.Step)
	if normalized == "userrequest" && s.Step != sessions.StepInputUserID {
		s.ResetFieldScope()
		h = r.machine.Handler(sessions.StepMain)
	}
	if h == nil {
		slog.Warn("usermenu session in unknown step, closing", "chat_id", chatID, "step", s.Step)
		s.Exit = true
		r.finish(chatID, s)
		return nil
	}

	err := h(ctx, s, chatID, text)
	r.finish(chatID, s)
	if err != nil {
		return fmt.Errorf("step %s: %w", s.Step, err)
	}
	return nil
}

// finish closes an exited session or rearms its timers.
func (r *Router) finish(chatID string, s *sessions.Session) {
	if s.Exit {
		r.CloseSession(chatID, s)
		return
	}
	r.scheduler.Arm(chatID, s, true)
}

// CloseSession drops the session, cancels its timers and starts the
// auto-start cooldown.
func (r *Router) CloseSession(chatID string, s *sessions.Session) {
	r.sessions.Delete(chatID)
	r.scheduler.Cancel(s)
	if r.cooldowns != nil {
		r.cooldowns.Start(chatID)
	}
	slog.Info("usermenu session closed", "chat_id", chatID)
}

func (r *Router) isAdmin(p *Policy, chatID string) bool {
	n := NormalizeWhatsAppNumber(chatID)
	for _, a := range p.AdminNumbers {
		if NormalizeWhatsAppNumber(a) == n {
			return true
		}
	}
	return false
}

// start handles a message from a chat without a user-menu session.
func (r *Router) start(ctx context.Context, chatID, text, normalized string) (string, error) {
	p := r.policy.Load()

	if ShouldAutoStartUserMenu(AutoStartInput{
		AllowUserMenu:    p.AllowUserMenu,
		LowerText:        normalized,
		AutoStartEnabled: p.AutoStart,
		CommandWhitelist: p.CommandWhitelist,
	}) {
		if r.clientRequests != nil {
			r.clientRequests.Clear(chatID)
		}
		s := r.sessions.GetOrCreate(chatID)
		return "started", r.runTurn(ctx, chatID, s, "", normalized)
	}

	isAdminCommand := strings.HasPrefix(normalized, "clientrequest") && r.isAdmin(p, chatID)
	if isAdminCommand && r.clientRequests != nil {
		r.clientRequests.Set(chatID, sessions.ClientRequest{Step: "main", Created: time.Now()})
		if r.onClientReq != nil {
			r.onClientReq(ctx, chatID, text)
		}
		return "clientrequest", nil
	}

	hasClientRequest := false
	if r.clientRequests != nil {
		_, hasClientRequest = r.clientRequests.Get(chatID)
	}
	if hasClientRequest && r.onClientReq != nil {
		r.onClientReq(ctx, chatID, text)
	}
	inCooldown := r.cooldowns != nil && r.cooldowns.Active(chatID)

	in := InitialFlowInput{
		AllowUserMenu:     p.AllowUserMenu,
		IsAdminCommand:    isAdminCommand,
		LowerText:         normalized,
		OriginalText:      text,
		HasAnySession:     hasClientRequest,
		InTimeoutCooldown: inCooldown,
	}
	if in.AllowUserMenu && !isAdminCommand && normalized != "" && !hasClientRequest && !inCooldown {
		u, err := r.users.FindUserByChannelAddress(ctx, NormalizeWhatsAppNumber(chatID))
		if err != nil {
			slog.Error("usermenu initial lookup failed", "chat_id", chatID, "error", err)
			return "lookup_failed", nil
		}
		in.IsLinked = u != nil
	}

	flow := ResolveInitialUserMenuFlow(in)
	if !flow.ShouldAutoStart {
		return "ignored", nil
	}

	s := r.sessions.GetOrCreate(chatID)
	if flow.UseDirectNrpInput {
		s.SetStep(sessions.StepInputUserID)
		return "direct_nrp", r.runTurn(ctx, chatID, s, flow.NormalizedNrp, flow.NormalizedNrp)
	}
	return "started", r.runTurn(ctx, chatID, s, "", normalized)
}
