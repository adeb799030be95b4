package menu

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/wamenu/internal/intent"
	"github.com/nextlevelbuilder/wamenu/internal/sessions"
	"github.com/nextlevelbuilder/wamenu/internal/store"
)

const updateCancelledMessage = "✅ Perubahan dibatalkan. Ketik *userrequest* untuk memulai lagi.\n\n" +
	"Update data user/personil selain via WA bot juga bisa melalui:\n" +
	"• Web: https://papiqo.com/claim\n" +
	"• Bot Telegram Cicero_Update: https://t.me/cicero_update_bot (ketik */menu* lalu ikuti petunjuk)"

const updateFailedMessage = "❌ Terjadi kesalahan saat memperbarui data. Silakan coba lagi atau ketik *batal* untuk keluar."

func (m *Machine) updateAskField(ctx context.Context, s *sessions.Session, chatID, text string) error {
	fields := allowedFields(s.IsDitbinmas)
	maxOption := len(fields)

	lower := intent.NormalizeText(text)
	if lower == "" {
		return nil
	}
	switch lower {
	case "batal":
		return m.exit(ctx, s, chatID, "✅ Menu ditutup. Terima kasih.")
	case "menu":
		s.UpdateAskFieldRetry = 0
		return m.send(ctx, chatID, FormatFieldList(s.IsDitbinmas))
	}

	sel := intent.ParseNumericSelection(lower, maxOption, false)

	if sel.Kind == intent.SelectionMultiNotSupported {
		s.UpdateAskFieldRetry++
		if err := m.send(ctx, chatID, strings.Join([]string{
			"ℹ️ Untuk langkah ini, saat ini pilih satu dulu, nanti ditanya lagi.",
			fmt.Sprintf("Anda mengirim lebih dari satu angka: *%s*", intent.JoinValues(sel.Values)),
			"Ketik satu angka (mis. *4*) atau ketik *menu* untuk ulang dari daftar field.",
		}, "\n")); err != nil {
			return err
		}
		if s.UpdateAskFieldRetry >= UpdateAskFieldMaxRetry {
			s.UpdateAskFieldRetry = 0
			return m.send(ctx, chatID, FormatFieldList(s.IsDitbinmas))
		}
		return nil
	}

	if sel.Kind != intent.SelectionSingle {
		if s.IsDebouncedRepeatedInput(sessions.StepUpdateAskField, lower, m.debounce) {
			return m.sendRepeatedInputFeedback(ctx, s, sessions.StepUpdateAskField, chatID)
		}
		s.UpdateAskFieldRetry++
		if s.UpdateAskFieldRetry >= UpdateAskFieldMaxRetry {
			s.UpdateAskFieldRetry = 0
			if err := m.send(ctx, chatID, menuRetryFallbackMessage(maxOption)); err != nil {
				return err
			}
			return m.send(ctx, chatID, FormatFieldList(s.IsDitbinmas))
		}
		hint := intent.Hint("Pilih field yang ingin diupdate", fmt.Sprintf("1..%d", maxOption))
		return m.send(ctx, chatID, hint+"\n\n"+menuRetryFallbackMessage(maxOption))
	}

	s.UpdateAskFieldRetry = 0
	chosen := fields[sel.Value-1]
	s.UpdateField = chosen.key

	current, err := m.users.FindUserByID(ctx, s.UpdateUserID)
	if err != nil {
		slog.Warn("usermenu current value lookup failed", "chat_id", chatID, "user_id", s.UpdateUserID, "error", err)
		current = nil
	}

	switch chosen.key {
	case fieldPangkat:
		titles, err := m.users.GetAvailableTitles(ctx)
		if err != nil {
			slog.Warn("usermenu titles lookup failed", "chat_id", chatID, "error", err)
		}
		if len(titles) > 0 {
			sorted := SortTitleKeys(titles, titles)
			s.AvailableTitles = sorted
			if err := m.send(ctx, chatID, FormatOptionsList(sorted, "Daftar pangkat yang dapat dipilih")); err != nil {
				return err
			}
		}
	case fieldSatfung:
		var clientID string
		if current != nil {
			clientID = current.ClientID
		}
		dynamic, err := m.users.GetAvailableSatfung(ctx, clientID)
		if err != nil {
			slog.Warn("usermenu satfung lookup failed", "chat_id", chatID, "client_id", clientID, "error", err)
		}
		if merged := store.MergeStaticDivisions(dynamic); len(merged) > 0 {
			sorted := SortDivisionKeys(merged)
			s.AvailableSatfung = sorted
			if err := m.send(ctx, chatID, FormatOptionsList(sorted, "Daftar satfung yang dapat dipilih")); err != nil {
				return err
			}
		}
	}

	s.SetStep(sessions.StepUpdateAskValue)
	info := GetFieldInfo(chosen.key, current)
	return m.send(ctx, chatID, FormatFieldUpdatePrompt(chosen.key, chosen.label, info.Value))
}

// validateFieldValue checks raw for column. A non-empty reject is the
// user-facing reason; err reports a collaborator failure.
func (m *Machine) validateFieldValue(ctx context.Context, s *sessions.Session, column, raw string) (value, reject string, err error) {
	switch column {
	case store.FieldTitle:
		titles := s.AvailableTitles
		if titles == nil {
			if titles, err = m.users.GetAvailableTitles(ctx); err != nil {
				return "", "", fmt.Errorf("load titles: %w", err)
			}
		}
		v := ValidateListSelection(raw, titles)
		return v.Value, v.Error, nil

	case store.FieldDivisi:
		options := s.AvailableSatfung
		if options == nil {
			var clientID string
			u, err := m.users.FindUserByID(ctx, s.UpdateUserID)
			if err != nil {
				slog.Warn("usermenu client lookup failed", "user_id", s.UpdateUserID, "error", err)
			} else if u != nil {
				clientID = u.ClientID
			}
			dynamic, err := m.users.GetAvailableSatfung(ctx, clientID)
			if err != nil {
				return "", "", fmt.Errorf("load satfung: %w", err)
			}
			options = SortDivisionKeys(store.MergeStaticDivisions(dynamic))
		}
		v := ValidateListSelection(raw, options)
		return v.Value, v.Error, nil

	case store.FieldInsta, store.FieldInsta2, store.FieldTiktok, store.FieldTiktok2:
		v := ValidateTikTok(raw)
		platform := "TikTok"
		if column == store.FieldInsta || column == store.FieldInsta2 {
			v = ValidateInstagram(raw)
			platform = "Instagram"
		}
		if !v.Valid {
			return "", v.Error, nil
		}
		for _, col := range store.SocialColumns(column) {
			owner, err := m.users.FindUserBySocialHandle(ctx, col, v.Value)
			if err != nil {
				return "", "", fmt.Errorf("check %s owner: %w", col, err)
			}
			if owner != nil && owner.UserID != s.UpdateUserID {
				return "", fmt.Sprintf("❌ %s *@%s* sudah terdaftar pada pengguna lain. Silakan gunakan akun lain atau ketik *batal* untuk membatalkan.", platform, v.Value), nil
			}
		}
		return v.Value, "", nil

	case store.FieldWhatsApp:
		n := NormalizeWhatsAppNumber(raw)
		if n == "" {
			return "", "❌ Nomor WhatsApp tidak valid. Contoh: *628123456789*", nil
		}
		return n, "", nil

	case store.FieldNama, store.FieldJabatan, store.FieldDesa:
		v := ValidateTextField(column, raw)
		return v.Value, v.Error, nil
	}
	return "", "", fmt.Errorf("%w: %s", store.ErrUnknownField, column)
}

func (m *Machine) updateAskValue(ctx context.Context, s *sessions.Session, chatID, text string) error {
	rawInput := strings.TrimSpace(text)
	lower := strings.ToLower(rawInput)
	if lower == "" {
		return nil
	}
	switch lower {
	case "batal":
		return m.exit(ctx, s, chatID, updateCancelledMessage)
	case "menu", "kembali", "back":
		s.ResetFieldScope()
		s.SetStep(sessions.StepUpdateAskField)
		return m.send(ctx, chatID, FormatFieldList(s.IsDitbinmas))
	}

	userID := s.UpdateUserID
	column := dbField(s.UpdateField)

	value, reject, err := m.validateFieldValue(ctx, s, column, rawInput)
	if err != nil {
		slog.Error("usermenu field validation failed", "chat_id", chatID, "field", column, "error", err)
		return m.send(ctx, chatID, updateFailedMessage)
	}
	if reject != "" {
		return m.send(ctx, chatID, reject)
	}

	s.LastProcessedInput = &sessions.ProcessedInput{Field: column, Value: value, RawInput: rawInput}
	s.LastProcessedAt = m.now()

	if err := m.users.UpdateUserField(ctx, userID, column, value); err != nil {
		slog.Error("usermenu field update failed", "chat_id", chatID, "user_id", userID, "field", column, "error", err)
		return m.send(ctx, chatID, updateFailedMessage)
	}
	slog.Info("usermenu field updated", "chat_id", chatID, "user_id", userID, "field", column)

	committed := s.LastProcessedInput.Value
	display := committed
	if store.SocialColumns(column) != nil {
		display = "@" + committed
	}
	if err := m.send(ctx, chatID, FormatUpdateSuccess(FieldDisplayName(column), display, userID)); err != nil {
		return err
	}

	// The commit stands; a failed refresh keeps the scope so the user can retry.
	u, err := m.lookupLinkedUser(ctx, chatID)
	if err != nil {
		slog.Error("usermenu record refresh failed", "chat_id", chatID, "user_id", userID, "error", err)
		return m.send(ctx, chatID, updateFailedMessage)
	}
	s.ResetFieldScope()
	return m.showRecord(ctx, s, chatID, u)
}
