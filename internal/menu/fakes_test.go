package menu

import (
	"context"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/wamenu/internal/store"
)

type sentMessage struct {
	chatID string
	text   string
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []sentMessage
}

func (r *recordingSender) SendMessage(_ context.Context, chatID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sentMessage{chatID, text})
	return nil
}

func (r *recordingSender) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.text
	}
	return out
}

func (r *recordingSender) count() int { return len(r.texts()) }

func (r *recordingSender) last() string {
	t := r.texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

func (r *recordingSender) anyContains(sub string) bool {
	for _, t := range r.texts() {
		if strings.Contains(t, sub) {
			return true
		}
	}
	return false
}

func (r *recordingSender) reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}

type fieldUpdate struct {
	userID, field, value string
}

type fakeUsers struct {
	mu          sync.Mutex
	users       map[string]*store.User
	titles      []string
	satfung     []string
	updates     []fieldUpdate
	socialCalls []string
	updateErr   error
	lookupErr   error
	addressErr  error
}

func newFakeUsers(users ...store.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*store.User)}
	for i := range users {
		u := users[i]
		f.users[u.UserID] = &u
	}
	return f
}

func (f *fakeUsers) FindUserByChannelAddress(_ context.Context, addr string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.addressErr != nil {
		return nil, f.addressErr
	}
	for _, u := range f.users {
		if u.WhatsApp != "" && NormalizeWhatsAppNumber(u.WhatsApp) == addr {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) FindRegistrationProfileByID(ctx context.Context, userID string) (*store.User, error) {
	return f.FindUserByID(ctx, userID)
}

func (f *fakeUsers) FindUserByID(_ context.Context, userID string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func column(u *store.User, field string) *string {
	switch field {
	case store.FieldNama:
		return &u.Nama
	case store.FieldTitle:
		return &u.Title
	case store.FieldDivisi:
		return &u.Divisi
	case store.FieldJabatan:
		return &u.Jabatan
	case store.FieldDesa:
		return &u.Desa
	case store.FieldInsta:
		return &u.Insta
	case store.FieldInsta2:
		return &u.Insta2
	case store.FieldTiktok:
		return &u.Tiktok
	case store.FieldTiktok2:
		return &u.Tiktok2
	case store.FieldWhatsApp:
		return &u.WhatsApp
	}
	return nil
}

func (f *fakeUsers) UpdateUserField(_ context.Context, userID, field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, fieldUpdate{userID, field, value})
	if f.updateErr != nil {
		return f.updateErr
	}
	u, ok := f.users[userID]
	if !ok {
		u = &store.User{UserID: userID}
		f.users[userID] = u
	}
	if p := column(u, field); p != nil {
		*p = value
	}
	return nil
}

func (f *fakeUsers) FindUserBySocialHandle(_ context.Context, field, handle string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.socialCalls = append(f.socialCalls, field+":"+handle)
	for _, u := range f.users {
		if p := column(u, field); p != nil && store.NormalizeSocialUsername(*p) == handle {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) GetAvailableTitles(context.Context) ([]string, error) {
	return f.titles, nil
}

func (f *fakeUsers) GetAvailableSatfung(context.Context, string) ([]string, error) {
	return f.satfung, nil
}

func (f *fakeUsers) lastUpdate() (fieldUpdate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return fieldUpdate{}, false
	}
	return f.updates[len(f.updates)-1], true
}
