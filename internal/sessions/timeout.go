package sessions

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultSessionTimeout = 5 * time.Minute
	DefaultWarningBefore  = 2 * time.Minute
	DefaultNoReplyTimeout = 120 * time.Second
)

const (
	ExpiredMessage = "⏰ *Sesi Telah Berakhir*\n\n" +
		"Sesi Anda telah berakhir karena tidak ada aktivitas selama 5 menit.\n\n" +
		"📝 *Tips:* Siapkan informasi yang diperlukan sebelum memulai sesi untuk menghindari timeout.\n\n" +
		"Untuk memulai lagi, ketik *userrequest*."

	WarningMessage = "⏰ *Peringatan Sesi*\n\n" +
		"Sesi akan berakhir dalam 2 menit.\n\n" +
		"✅ Balas sesuai pilihan untuk melanjutkan dan memperpanjang sesi.\n" +
		"⏹️ Ketik *batal* untuk keluar sekarang."

	NoReplyMessage = "🤖 *Menunggu Balasan*\n\n" +
		"Kami masih menunggu balasan Anda.\n\n" +
		"✍️ Silakan jawab sesuai instruksi untuk melanjutkan.\n" +
		"❓ Ketik *batal* jika ingin keluar.\n\n" +
		"⏱️ Sisa waktu: ~3 menit sebelum sesi berakhir."
)

// Timeouts configures the inactivity watchdog.
type Timeouts struct {
	// Session is the inactivity window after which the session expires.
	Session time.Duration
	// WarningBefore is how long before expiry the warning is sent.
	WarningBefore time.Duration
	// NoReply is the nudge delay for steps that expect an answer.
	NoReply time.Duration
}

// DefaultTimeouts returns the production timer layout.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Session:       DefaultSessionTimeout,
		WarningBefore: DefaultWarningBefore,
		NoReply:       DefaultNoReplyTimeout,
	}
}

// Sender delivers a text message to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// TimeoutScheduler arms the per-session no-reply, warning and expiry timers.
// Every timer captures the session's activity counter when armed and acts
// only if the counter is unchanged and the session is still stored.
type TimeoutScheduler struct {
	store     Store
	sender    Sender
	cooldowns *Cooldowns
	cfg       Timeouts
}

// NewTimeoutScheduler creates a scheduler. cooldowns may be nil.
func NewTimeoutScheduler(store Store, sender Sender, cooldowns *Cooldowns, cfg Timeouts) *TimeoutScheduler {
	if cfg.Session <= 0 {
		cfg = DefaultTimeouts()
	}
	return &TimeoutScheduler{store: store, sender: sender, cooldowns: cooldowns, cfg: cfg}
}

// Touch invalidates timers armed before this call. It returns false if s is
// no longer the stored session for chatID.
func (t *TimeoutScheduler) Touch(chatID string, s *Session) bool {
	return t.store.Touch(chatID, s)
}

// Arm cancels any armed timers on s and schedules fresh ones.
func (t *TimeoutScheduler) Arm(chatID string, s *Session, expectReply bool) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	s.stopTimersLocked()
	seq := s.activitySeq.Add(1)

	s.expiryTimer = time.AfterFunc(t.cfg.Session, func() { t.expire(chatID, s, seq) })
	if warnAt := t.cfg.Session - t.cfg.WarningBefore; t.cfg.WarningBefore > 0 && warnAt > 0 {
		s.warningTimer = time.AfterFunc(warnAt, func() { t.notify(chatID, s, seq, WarningMessage, "warning") })
	}
	if expectReply && t.cfg.NoReply > 0 && t.cfg.NoReply < t.cfg.Session {
		s.noReplyTimer = time.AfterFunc(t.cfg.NoReply, func() { t.notify(chatID, s, seq, NoReplyMessage, "no_reply") })
	}
}

// Cancel stops every timer on s and invalidates callbacks already in flight.
func (t *TimeoutScheduler) Cancel(s *Session) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	s.activitySeq.Add(1)
	s.stopTimersLocked()
}

func (t *TimeoutScheduler) notify(chatID string, s *Session, seq uint64, text, kind string) {
	if !t.store.IsCurrent(chatID, s, seq) {
		return
	}
	t.send(chatID, text, kind)
}

func (t *TimeoutScheduler) expire(chatID string, s *Session, seq uint64) {
	if !t.store.Expire(chatID, s, seq) {
		return
	}
	s.timersMu.Lock()
	s.stopTimersLocked()
	s.timersMu.Unlock()

	if t.cooldowns != nil {
		t.cooldowns.Start(chatID)
	}
	slog.Info("usermenu session expired", "chat_id", chatID)
	t.send(chatID, ExpiredMessage, "expired")
}

func (t *TimeoutScheduler) send(chatID, text, kind string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.sender.SendMessage(ctx, chatID, text); err != nil {
		slog.Warn("usermenu timeout notice failed", "chat_id", chatID, "kind", kind, "error", err)
	}
}
