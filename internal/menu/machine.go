// Package menu implements the WhatsApp user menu: a step-indexed state
// machine that binds a WhatsApp number to a personnel record and walks the
// user through updating profile fields.
package menu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/wamenu/internal/intent"
	"github.com/nextlevelbuilder/wamenu/internal/sessions"
	"github.com/nextlevelbuilder/wamenu/internal/store"
)

// UpdateAskFieldMaxRetry is the number of bad field selections after which
// the full field list is re-sent.
const UpdateAskFieldMaxRetry = 3

const repeatedInputFeedback = "⏳ Input sama terdeteksi, mohon tunggu respon sebelumnya atau ketik *menu*."

// HandlerFunc runs one step for one inbound message. Collaborator failures
// are reported to the user and never returned; the error is reserved for
// send failures.
type HandlerFunc func(ctx context.Context, s *sessions.Session, chatID, text string) error

// TimerCanceler stops the inactivity timers of a session.
type TimerCanceler interface {
	Cancel(s *sessions.Session)
}

// MachineConfig wires the state machine's collaborators.
type MachineConfig struct {
	Users  store.UserStore
	Sender sessions.Sender
	// Timers is optional; when set, CloseSession cancels armed timers.
	Timers TimerCanceler

	DebounceWindow   time.Duration
	FeedbackCooldown time.Duration
	Now              func() time.Time
}

// Machine owns the handler table.
type Machine struct {
	users  store.UserStore
	sender sessions.Sender
	timers TimerCanceler

	debounce         time.Duration
	feedbackCooldown time.Duration
	now              func() time.Time

	handlers map[sessions.Step]HandlerFunc
}

// NewMachine builds the handler table.
func NewMachine(cfg MachineConfig) *Machine {
	m := &Machine{
		users:            cfg.Users,
		sender:           cfg.Sender,
		timers:           cfg.Timers,
		debounce:         cfg.DebounceWindow,
		feedbackCooldown: cfg.FeedbackCooldown,
		now:              cfg.Now,
	}
	if m.debounce <= 0 {
		m.debounce = sessions.DefaultDebounceWindow
	}
	if m.feedbackCooldown <= 0 {
		m.feedbackCooldown = sessions.DefaultFeedbackCooldown
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.handlers = map[sessions.Step]HandlerFunc{
		sessions.StepMain:                    m.main,
		sessions.StepConfirmUserByWaIdentity: m.confirmUserByWaIdentity,
		sessions.StepConfirmUserByWaUpdate:   m.confirmUserByWaUpdate,
		sessions.StepInputUserID:             m.inputUserID,
		sessions.StepConfirmBindUser:         m.confirmBindUser,
		sessions.StepConfirmBindUpdate:       m.confirmBindUpdate,
		sessions.StepTanyaUpdateMyData:       m.tanyaUpdateMyData,
		sessions.StepUpdateAskField:          m.updateAskField,
		sessions.StepUpdateAskValue:          m.updateAskValue,
	}
	return m
}

// Handler returns the handler for step, or nil for an unknown step.
func (m *Machine) Handler(step sessions.Step) HandlerFunc {
	return m.handlers[step]
}

// Handle dispatches text to the handler of the session's current step.
func (m *Machine) Handle(ctx context.Context, s *sessions.Session, chatID, text string) error {
	h := m.handlers[s.Step]
	if h == nil {
		return fmt.Errorf("no handler for step %q", s.Step)
	}
	return h(ctx, s, chatID, text)
}

// CloseSession marks s finished, cancels its timers and sends message
// (SessionClosedMessage when empty).
func (m *Machine) CloseSession(ctx context.Context, s *sessions.Session, chatID, message string) error {
	if m.timers != nil {
		m.timers.Cancel(s)
	}
	s.Exit = true
	if message == "" {
		message = SessionClosedMessage
	}
	return m.send(ctx, chatID, message)
}

func (m *Machine) send(ctx context.Context, chatID, text string) error {
	return m.sender.SendMessage(ctx, chatID, text)
}

// exit ends the session without touching timers; the router closes it.
func (m *Machine) exit(ctx context.Context, s *sessions.Session, chatID, message string) error {
	s.Exit = true
	return m.send(ctx, chatID, message)
}

func (m *Machine) sendRepeatedInputFeedback(ctx context.Context, s *sessions.Session, step sessions.Step, chatID string) error {
	if !s.ShouldSendRepeatedInputFeedback(step, m.feedbackCooldown) {
		return nil
	}
	return m.send(ctx, chatID, repeatedInputFeedback)
}

// hintUnlessRepeated sends the step hint unless text repeats the previous
// invalid input. With feedback set, a repeat gets the short throttled notice.
func (m *Machine) hintUnlessRepeated(ctx context.Context, s *sessions.Session, step sessions.Step, chatID, text, label string, feedback bool) error {
	if s.IsDebouncedRepeatedInput(step, text, m.debounce) {
		if feedback {
			return m.sendRepeatedInputFeedback(ctx, s, step, chatID)
		}
		return nil
	}
	return m.send(ctx, chatID, intent.Hint(label, "ya / tidak"))
}

func (m *Machine) main(ctx context.Context, s *sessions.Session, chatID, _ string) error {
	u, err := m.lookupLinkedUser(ctx, chatID)
	if err != nil {
		slog.Error("usermenu user lookup failed", "chat_id", chatID, "error", err)
		return m.exit(ctx, s, chatID, "❌ Terjadi kesalahan saat mengambil data. Silakan coba lagi dengan ketik *userrequest*.")
	}
	return m.showRecord(ctx, s, chatID, u)
}

func (m *Machine) lookupLinkedUser(ctx context.Context, chatID string) (*store.User, error) {
	return m.users.FindUserByChannelAddress(ctx, NormalizeWhatsAppNumber(chatID))
}

// showRecord presents the linked user's data, or starts registration when
// the chat's number is not linked (u == nil).
func (m *Machine) showRecord(ctx context.Context, s *sessions.Session, chatID string, u *store.User) error {
	if u != nil {
		slog.Debug("usermenu linked user found", "chat_id", chatID, "user_id", u.UserID)
		s.IsDitbinmas = u.Ditbinmas
		s.IdentityConfirmed = true
		s.UserID = u.UserID
		s.SetStep(sessions.StepTanyaUpdateMyData)

		msg := strings.Join([]string{
			fmt.Sprintf("%s, Bapak/Ibu *%s* 👋", Greeting(m.now()), u.Nama),
			"",
			FormatUserReport(u),
			"",
			separator,
			"❓ Apakah Anda ingin melakukan perubahan data?",
			"",
			"✅ Balas *ya* untuk update data",
			"❌ Balas *tidak* untuk keluar",
			"⏹️ Balas *batal* untuk menutup sesi",
			"",
			"⏱️ Sesi aktif: 5 menit",
		}, "\n")
		return m.send(ctx, chatID, msg)
	}

	slog.Debug("usermenu number not registered", "chat_id", chatID, "normalized", NormalizeWhatsAppNumber(chatID))
	s.SetStep(sessions.StepInputUserID)
	return m.send(ctx, chatID, strings.Join([]string{
		"🔐 *Registrasi Akun* (Langkah 1/2)",
		"",
		"Nomor WhatsApp Anda belum terdaftar dalam sistem.",
		"",
		"📝 Silakan ketik *NRP/NIP* Anda (hanya angka):",
		"Contoh: 87020990",
		"",
		"💡 *Tips:* Pastikan NRP/NIP sudah terdaftar di sistem sebelum melanjutkan.",
		"",
		"⏹️ Ketik *batal* untuk keluar.",
	}, "\n"))
}

func (m *Machine) confirmUserByWaIdentity(ctx context.Context, s *sessions.Session, chatID, text string) error {
	answer := intent.NormalizeText(text)
	if answer == "" {
		return nil
	}
	switch p := intent.ParseAffirmativeNegative(answer); {
	case p == intent.Affirmative:
		s.IdentityConfirmed = true
		s.SetStep(sessions.StepTanyaUpdateMyData)
		return m.send(ctx, chatID, strings.Join([]string{
			"✅ Identitas berhasil dikonfirmasi.",
			"",
			"Apakah Anda ingin melakukan perubahan data?",
			"Balas *ya* untuk update data atau *tidak* untuk keluar.",
		}, "\n"))
	case p == intent.Negative, answer == "batal":
		return m.CloseSession(ctx, s, chatID, "")
	}
	return m.hintUnlessRepeated(ctx, s, sessions.StepConfirmUserByWaIdentity, chatID, answer,
		"Konfirmasi identitas data pengguna", false)
}

func (m *Machine) confirmUserByWaUpdate(ctx context.Context, s *sessions.Session, chatID, text string) error {
	answer := intent.NormalizeText(text)
	if answer == "" {
		return nil
	}
	switch p := intent.ParseAffirmativeNegative(answer); {
	case p == intent.Affirmative:
		return m.enterFieldSelection(ctx, s, chatID)
	case p == intent.Negative, answer == "batal":
		return m.CloseSession(ctx, s, chatID, "")
	}
	return m.hintUnlessRepeated(ctx, s, sessions.StepConfirmUserByWaUpdate, chatID, answer,
		"Konfirmasi lanjut ke menu update field", false)
}

func (m *Machine) tanyaUpdateMyData(ctx context.Context, s *sessions.Session, chatID, text string) error {
	answer := intent.NormalizeText(text)
	if answer == "" {
		return nil
	}
	switch p := intent.ParseAffirmativeNegative(answer); {
	case p == intent.Affirmative:
		return m.enterFieldSelection(ctx, s, chatID)
	case p == intent.Negative, answer == "batal":
		return m.CloseSession(ctx, s, chatID, "")
	}
	return m.hintUnlessRepeated(ctx, s, sessions.StepTanyaUpdateMyData, chatID, answer,
		"Konfirmasi lanjut update data", true)
}

func (m *Machine) enterFieldSelection(ctx context.Context, s *sessions.Session, chatID string) error {
	s.IdentityConfirmed = true
	s.UpdateUserID = s.UserID
	s.UpdateAskFieldRetry = 0
	s.SetStep(sessions.StepUpdateAskField)
	return m.send(ctx, chatID, FormatFieldList(s.IsDitbinmas))
}

func (m *Machine) inputUserID(ctx context.Context, s *sessions.Session, chatID, text string) error {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return nil
	}
	switch lower {
	case "batal":
		return m.exit(ctx, s, chatID, "✅ Menu ditutup. Terima kasih.")
	case "userrequest":
		return m.main(ctx, s, chatID, "")
	}

	v := ValidateNRP(text)
	if !v.Valid {
		return m.send(ctx, chatID, v.Error)
	}
	digits := v.Value

	profile, err := m.users.FindRegistrationProfileByID(ctx, digits)
	if err != nil {
		slog.Error("usermenu registration lookup failed", "chat_id", chatID, "user_id", digits, "error", err)
		return m.send(ctx, chatID, strings.Join([]string{
			"❌ Terjadi kesalahan saat mengambil data. Silakan coba lagi.",
			"",
			"Silakan masukkan NRP/NIP lain atau ketik *batal* untuk keluar.",
		}, "\n"))
	}
	if profile == nil {
		return m.send(ctx, chatID, strings.Join([]string{
			fmt.Sprintf("❌ NRP/NIP *%s* tidak ditemukan.", digits),
			"Jika yakin benar, hubungi Opr CICERO Polres Anda.",
			"",
			"Silakan masukkan NRP/NIP lain atau ketik *batal* untuk keluar.",
		}, "\n"))
	}

	current := NormalizeWhatsAppNumber(chatID)
	if stored := NormalizeWhatsAppNumber(profile.WhatsApp); stored != "" && stored != current {
		return m.send(ctx, chatID, strings.Join([]string{
			fmt.Sprintf("❌ NRP/NIP *%s* sudah terhubung dengan nomor WhatsApp lain.", digits),
			"",
			"Satu akun hanya dapat diakses dari satu nomor WhatsApp yang terdaftar.",
			"Silahkan update menggunakan https://papiqo.com/claim",
			"",
			"Silakan masukkan NRP/NIP lain atau ketik *batal* untuk keluar.",
		}, "\n"))
	}

	s.BindUserID = digits
	s.SetStep(sessions.StepConfirmBindUser)
	return m.send(ctx, chatID, strings.Join([]string{
		fmt.Sprintf("✅ NRP/NIP *%s* ditemukan. (Langkah 2/2)", digits),
		"",
		"🔗 Nomor WhatsApp ini belum terdaftar.",
		"Apakah Anda ingin menghubungkannya dengan akun tersebut?",
		"",
		"✅ Balas *ya* untuk menghubungkan",
		"❌ Balas *tidak* untuk membatalkan",
		"",
		"⏱️ Sesi akan berakhir jika tidak ada aktivitas.",
	}, "\n"))
}

// bindFailureMessage translates a failed WhatsApp bind into user text.
func bindFailureMessage(err error) string {
	var dup *store.DuplicateError
	if errors.As(err, &dup) {
		return fmt.Sprintf("❌ %s. Satu nomor WhatsApp hanya dapat digunakan untuk satu akun.", dup.Error())
	}
	return "❌ Terjadi kesalahan saat menghubungkan nomor. Silakan coba lagi dengan ketik *userrequest*."
}

func (m *Machine) confirmBindUser(ctx context.Context, s *sessions.Session, chatID, text string) error {
	answer := intent.NormalizeText(text)
	if answer == "" {
		return nil
	}
	waNum := NormalizeWhatsAppNumber(chatID)

	switch p := intent.ParseAffirmativeNegative(answer); {
	case p == intent.Affirmative:
		userID := s.BindUserID
		u, err := m.bindWhatsApp(ctx, userID, waNum)
		if err != nil {
			slog.Error("usermenu bind failed", "chat_id", chatID, "user_id", userID, "error", err)
			return m.exit(ctx, s, chatID, bindFailureMessage(err))
		}
		slog.Info("usermenu whatsapp bound", "chat_id", chatID, "user_id", userID)

		s.IsDitbinmas = u.Ditbinmas
		if err := m.send(ctx, chatID, strings.Join([]string{
			"✅ *Berhasil Terhubung*",
			"",
			fmt.Sprintf("Nomor WhatsApp telah dihubungkan ke NRP/NIP *%s*.", userID),
			"",
			"Berikut data Anda:",
			"",
			FormatUserReport(u),
		}, "\n")); err != nil {
			return err
		}
		s.IdentityConfirmed = true
		s.UserID = userID
		s.SetStep(sessions.StepTanyaUpdateMyData)
		return m.send(ctx, chatID, strings.Join([]string{
			separator,
			"❓ Apakah Anda ingin melakukan perubahan data?",
			"",
			"✅ Balas *ya* untuk update data",
			"❌ Balas *tidak* untuk keluar",
			"",
			"⏱️ Sesi aktif: 5 menit",
		}, "\n"))
	case p == intent.Negative, answer == "batal":
		return m.exit(ctx, s, chatID,
			"✅ Proses dibatalkan. Nomor WhatsApp tidak dihubungkan.\n\nKetik *userrequest* untuk mencoba lagi atau hubungi operator jika membutuhkan bantuan.")
	}
	return m.hintUnlessRepeated(ctx, s, sessions.StepConfirmBindUser, chatID, answer,
		"Konfirmasi penghubung WhatsApp", false)
}

// bindWhatsApp stores waNum on userID and reloads the record.
func (m *Machine) bindWhatsApp(ctx context.Context, userID, waNum string) (*store.User, error) {
	if userID == "" {
		return nil, errors.New("no user selected for binding")
	}
	if err := m.users.UpdateUserField(ctx, userID, store.FieldWhatsApp, waNum); err != nil {
		return nil, err
	}
	u, err := m.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %s vanished after bind", userID)
	}
	return u, nil
}

func (m *Machine) confirmBindUpdate(ctx context.Context, s *sessions.Session, chatID, text string) error {
	answer := intent.NormalizeText(text)
	if answer == "" {
		return nil
	}
	waNum := NormalizeWhatsAppNumber(chatID)

	switch p := intent.ParseAffirmativeNegative(answer); {
	case p == intent.Affirmative:
		nrp := s.UpdateUserID
		if err := m.users.UpdateUserField(ctx, nrp, store.FieldWhatsApp, waNum); err != nil {
			slog.Error("usermenu whatsapp update failed", "chat_id", chatID, "user_id", nrp, "error", err)
			return m.exit(ctx, s, chatID, bindFailureMessage(err))
		}
		if err := m.send(ctx, chatID, fmt.Sprintf("✅ Nomor berhasil dihubungkan ke NRP/NIP *%s*.", nrp)); err != nil {
			return err
		}
		s.IdentityConfirmed = true
		s.UserID = nrp
		s.UpdateAskFieldRetry = 0
		s.SetStep(sessions.StepUpdateAskField)
		return m.send(ctx, chatID, FormatFieldList(s.IsDitbinmas))
	case p == intent.Negative, answer == "batal":
		return m.exit(ctx, s, chatID,
			"✅ Proses dibatalkan. Nomor WhatsApp tidak dihubungkan.\n\nKetik *userrequest* untuk kembali ke menu atau hubungi operator jika membutuhkan bantuan.")
	}
	return m.hintUnlessRepeated(ctx, s, sessions.StepConfirmBindUpdate, chatID, answer,
		"Konfirmasi update nomor WhatsApp", false)
}
