package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tg-engagement/internal/adapters/mtproto"
	"tg-engagement/internal/domain"
)

type stubStore struct {
	stored []domain.Credential
	err    error
}

func (s *stubStore) GetCredential(context.Context, int64) (domain.Credential, bool, error) {
	return domain.Credential{}, false, nil
}

func (s *stubStore) StoreCredential(_ context.Context, cred domain.Credential) error {
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, cred)
	return nil
}

type stubInvalidator struct {
	invalidated []int64
	err         error
}

func (s *stubInvalidator) Invalidate(_ context.Context, accountID int64) error {
	s.invalidated = append(s.invalidated, accountID)
	return s.err
}

func telethonRows() []byte {
	return []byte(`[{"dc_id":2,"server_address":"149.154.167.51","port":443,"auth_key":"` + strings.Repeat("ab", 256) + `"}]`)
}

func TestImportSessionStoresAndInvalidates(t *testing.T) {
	store := &stubStore{}
	profiles := &stubInvalidator{}

	format, size, err := importSession(context.Background(), store, profiles, 777, telethonRows())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if format != mtproto.FormatTelethonRows || size == 0 {
		t.Fatalf("неожиданный результат: %s %d", format, size)
	}
	if len(store.stored) != 1 || store.stored[0].AccountID != 777 || len(store.stored[0].Session) != size {
		t.Fatalf("сессия должна сохраниться под аккаунтом: %+v", store.stored)
	}
	if len(profiles.invalidated) != 1 || profiles.invalidated[0] != 777 {
		t.Fatalf("кэш профиля должен сбрасываться, получили %v", profiles.invalidated)
	}
}

func TestImportSessionRejectsUnknownFormat(t *testing.T) {
	store := &stubStore{}
	profiles := &stubInvalidator{}
	if _, _, err := importSession(context.Background(), store, profiles, 777, []byte("garbage")); err == nil {
		t.Fatal("ожидали ошибку формата")
	}
	if len(store.stored) != 0 || len(profiles.invalidated) != 0 {
		t.Fatal("при ошибке формата ничего не сохраняем")
	}
}

func TestImportSessionStoreFailureSkipsInvalidate(t *testing.T) {
	store := &stubStore{err: errors.New("pg down")}
	profiles := &stubInvalidator{}
	format, _, err := importSession(context.Background(), store, profiles, 777, telethonRows())
	if err == nil || format != "" {
		t.Fatalf("ожидали ошибку сохранения, получили %s / %v", format, err)
	}
	if len(profiles.invalidated) != 0 {
		t.Fatal("без сохранённой сессии кэш не сбрасываем")
	}
}

func TestImportSessionReportsInvalidateFailure(t *testing.T) {
	profiles := &stubInvalidator{err: errors.New("redis down")}
	format, _, err := importSession(context.Background(), &stubStore{}, profiles, 777, telethonRows())
	if err == nil || format == "" {
		t.Fatalf("сессия сохранена, ожидали формат и ошибку сброса: %s / %v", format, err)
	}
}
