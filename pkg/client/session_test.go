package client

import (
	"context"
	"errors"
	"testing"
)

type failingStore struct {
	loadErr error
	saveErr error
}

func (f *failingStore) Load(ctx context.Context) (Snapshot, error) {
	return Snapshot{State: AuthStateNeverLoggedIn}, f.loadErr
}

func (f *failingStore) Save(ctx context.Context, snap Snapshot) error { return f.saveErr }

func TestSessionContext_InitialStateIsNeverLoggedIn(t *testing.T) {
	s := NewSessionContext(NewMemoryStore())

	if s.State() != AuthStateNeverLoggedIn {
		t.Errorf("State() = %q, want %q", s.State(), AuthStateNeverLoggedIn)
	}
	if _, err := s.Token(); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Token() err = %v, want ErrNotLoggedIn", err)
	}
}

func TestSessionContext_ResumeRestoresLoggedIn(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := NewSessionContext(store)
	if err := first.SignIn(ctx, "tok-1"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	second := NewSessionContext(store)
	resumed, err := second.Resume(ctx)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !resumed {
		t.Fatal("expected session to resume")
	}
	if tok, _ := second.Token(); tok != "tok-1" {
		t.Errorf("Token() = %q, want tok-1", tok)
	}
}

func TestSessionContext_ResumeAfterLogoutDoesNotRestore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := NewSessionContext(store)
	if err := first.SignIn(ctx, "tok-1"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if err := first.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	second := NewSessionContext(store)
	resumed, err := second.Resume(ctx)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed {
		t.Error("explicit logout must not resume")
	}
	if second.State() != AuthStateLoggedOut {
		t.Errorf("State() = %q, want %q", second.State(), AuthStateLoggedOut)
	}

	snap, _ := store.Load(ctx)
	if snap.Token != "" {
		t.Errorf("token should be discarded, got %q", snap.Token)
	}
}

func TestSessionContext_ResumeWithNothingSaved(t *testing.T) {
	s := NewSessionContext(NewMemoryStore())

	resumed, err := s.Resume(context.Background())
	if err != nil || resumed {
		t.Errorf("Resume() = %v, %v; want false, nil", resumed, err)
	}
	if s.State() != AuthStateNeverLoggedIn {
		t.Errorf("State() = %q", s.State())
	}
}

func TestSessionContext_ResumeNormalizesInconsistentSnapshots(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want AuthState
	}{
		{"logged in without token", Snapshot{State: AuthStateLoggedIn}, AuthStateLoggedOut},
		{"unknown state", Snapshot{State: "banana", Token: "tok"}, AuthStateNeverLoggedIn},
		{"logged out with stale token", Snapshot{State: AuthStateLoggedOut, Token: "tok"}, AuthStateLoggedOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemoryStore()
			_ = store.Save(ctx, tt.snap)

			s := NewSessionContext(store)
			resumed, err := s.Resume(ctx)
			if err != nil {
				t.Fatalf("Resume: %v", err)
			}
			if resumed {
				t.Error("should not resume")
			}
			if s.State() != tt.want {
				t.Errorf("State() = %q, want %q", s.State(), tt.want)
			}
			if _, err := s.Token(); !errors.Is(err, ErrNotLoggedIn) {
				t.Errorf("Token() err = %v, want ErrNotLoggedIn", err)
			}
		})
	}
}

func TestSessionContext_SaveFailureKeepsPreviousState(t *testing.T) {
	s := NewSessionContext(&failingStore{saveErr: errors.New("keychain locked")})

	if err := s.SignIn(context.Background(), "tok"); err == nil {
		t.Fatal("expected error")
	}
	if s.State() != AuthStateNeverLoggedIn {
		t.Errorf("State() = %q, want unchanged", s.State())
	}
}

func TestSessionContext_ResumeLoadError(t *testing.T) {
	s := NewSessionContext(&failingStore{loadErr: errors.New("corrupt")})

	if _, err := s.Resume(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestSessionContext_SignInRejectsEmptyToken(t *testing.T) {
	s := NewSessionContext(NewMemoryStore())
	if err := s.SignIn(context.Background(), ""); err == nil {
		t.Error("expected error for empty token")
	}
}
