package user

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centledger/centledger/pkg/logger"
)

// fakeRepo is an in-memory Repository for unit tests
type fakeRepo struct {
	byID    map[uuid.UUID]*User
	byEmail map[string]*User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byID:    make(map[uuid.UUID]*User),
		byEmail: make(map[string]*User),
	}
}

func (r *fakeRepo) Create(ctx context.Context, u *User) error {
	if _, ok := r.byEmail[u.Email]; ok {
		return ErrEmailConflict
	}
	cp := *u
	r.byID[u.ID] = &cp
	r.byEmail[u.Email] = &cp
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepo) List(ctx context.Context) ([]*User, error) {
	users := make([]*User, 0, len(r.byID))
	for _, u := range r.byID {
		cp := *u
		users = append(users, &cp)
	}
	return users, nil
}

func (r *fakeRepo) Update(ctx context.Context, u *User) error {
	prev, ok := r.byID[u.ID]
	if !ok {
		return ErrNotFound
	}
	if u.Email != prev.Email {
		if _, taken := r.byEmail[u.Email]; taken {
			return ErrEmailConflict
		}
		delete(r.byEmail, prev.Email)
	}
	cp := *u
	r.byID[u.ID] = &cp
	r.byEmail[u.Email] = &cp
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	u, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byEmail, u.Email)
	delete(r.byID, id)
	return nil
}

func newTestService() (*Service, *fakeRepo) {
	repo := newFakeRepo()
	return NewService(repo, logger.New("test", io.Discard)), repo
}

func validInput() RegisterInput {
	return RegisterInput{
		Email:     "alice@example.com",
		FirstName: "Alice",
		LastName:  "Anderson",
		Password:  "s3cret!",
	}
}

func TestService_Register(t *testing.T) {
	svc, _ := newTestService()

	u, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEmpty(t, u.PasswordHash)
	assert.NotEqual(t, "s3cret!", u.PasswordHash)
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), validInput())
	assert.ErrorIs(t, err, ErrEmailConflict)
}

func TestService_Register_Validation(t *testing.T) {
	svc, _ := newTestService()

	tests := []struct {
		name    string
		mutate  func(*RegisterInput)
		wantErr error
	}{
		{"short password", func(in *RegisterInput) { in.Password = "abc" }, ErrPasswordTooShort},
		{"short first name", func(in *RegisterInput) { in.FirstName = "A" }, ErrNameTooShort},
		{"short last name", func(in *RegisterInput) { in.LastName = "B" }, ErrNameTooShort},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, ErrInvalidEmail},
		{"empty email", func(in *RegisterInput) { in.Email = "" }, ErrInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_Login(t *testing.T) {
	svc, _ := newTestService()

	created, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	u, err := svc.Login(context.Background(), "alice@example.com", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)
	assert.NotNil(t, u.LastLoginAt)
}

func TestService_Login_WrongPassword(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_Login_UnknownEmail(t *testing.T) {
	svc, _ := newTestService()

	// Unknown email surfaces the same error as a wrong password
	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_Update_SelfOnly(t *testing.T) {
	svc, _ := newTestService()

	u, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), uuid.New(), u.ID, UpdateInput{})
	assert.ErrorIs(t, err, ErrForbidden)

	newName := "Alicia"
	updated, err := svc.Update(context.Background(), u.ID, u.ID, UpdateInput{FirstName: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", updated.FirstName)
	assert.Equal(t, u.Email, updated.Email)
}

func TestService_Delete_SelfOnly(t *testing.T) {
	svc, _ := newTestService()

	u, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(context.Background(), uuid.New(), u.ID), ErrForbidden)
	require.NoError(t, svc.Delete(context.Background(), u.ID, u.ID))

	_, err = svc.GetByID(context.Background(), u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestView_NeverCarriesPassword(t *testing.T) {
	svc, _ := newTestService()

	u, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	body, err := json.Marshal(u.View())
	require.NoError(t, err)
	assert.NotContains(t, string(body), "password")
	assert.NotContains(t, string(body), u.PasswordHash)
}
