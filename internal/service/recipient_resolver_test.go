package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/community-notify/internal/domain"
)

func newTestDirectory() *fakeDirectoryRepo {
	return &fakeDirectoryRepo{
		contacts: map[string]domain.Contact{
			"u1": {UserID: "u1", Name: "Ada", Email: "ada@example.com", PushTokens: []string{"ExponentPushToken[aaa]", "ExponentPushToken[bbb]"}},
			"u2": {UserID: "u2", Name: "Bo", PushTokens: []string{"ExponentPushToken[ccc]"}},
			"u3": {UserID: "u3", Name: "Cy", Email: "cy@example.com"},
		},
		groups: map[string][]string{
			"grp-1":     {"u1", "u3"},
			"grp-empty": {},
		},
		rsvps: map[string]map[domain.RSVPStatus][]string{
			"g-1": {
				domain.RSVPGoing: {"u1", "u3"},
				domain.RSVPMaybe: {"u2"},
			},
		},
	}
}

func TestRecipientResolverResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		spec           domain.RecipientSpec
		wantUsers      []string
		wantUnresolved []string
		wantErr        error
	}{
		{
			name:      "explicit ids deduplicated in order",
			spec:      domain.ExplicitRecipients{UserIDs: []string{"u2", "u1", " u2 ", "u1"}},
			wantUsers: []string{"u2", "u1"},
		},
		{
			name:           "explicit unknown users are reported",
			spec:           domain.ExplicitRecipients{UserIDs: []string{"u1", "ghost"}},
			wantUsers:      []string{"u1"},
			wantUnresolved: []string{"ghost"},
		},
		{
			name:      "group members",
			spec:      domain.GroupRecipients{GroupID: "grp-1"},
			wantUsers: []string{"u1", "u3"},
		},
		{
			name: "empty group",
			spec: domain.GroupRecipients{GroupID: "grp-empty"},
		},
		{
			name:    "unknown group",
			spec:    domain.GroupRecipients{GroupID: "grp-404"},
			wantErr: domain.ErrUnknownScope,
		},
		{
			name:      "rsvp going",
			spec:      domain.RSVPRecipients{GatheringID: "g-1", Status: domain.RSVPGoing},
			wantUsers: []string{"u1", "u3"},
		},
		{
			name: "rsvp status with nobody",
			spec: domain.RSVPRecipients{GatheringID: "g-1", Status: domain.RSVPNotGoing},
		},
		{
			name:    "unknown gathering",
			spec:    domain.RSVPRecipients{GatheringID: "g-404", Status: domain.RSVPGoing},
			wantErr: domain.ErrUnknownScope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolver, err := NewRecipientResolver(newTestDirectory(), time.Second, nil)
			if err != nil {
				t.Fatalf("NewRecipientResolver() error = %v", err)
			}

			resolution, err := resolver.Resolve(context.Background(), tt.spec)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}

			if got := contactIDs(resolution.Recipients); !equalStrings(got, tt.wantUsers) {
				t.Fatalf("recipients = %v, want %v", got, tt.wantUsers)
			}

			var unresolved []string
			for _, f := range resolution.Unresolved {
				if f.Reason != domain.ReasonUnknownUser {
					t.Fatalf("unresolved reason = %s, want UnknownUser", f.Reason)
				}
				unresolved = append(unresolved, f.UserID)
			}
			if !equalStrings(unresolved, tt.wantUnresolved) {
				t.Fatalf("unresolved = %v, want %v", unresolved, tt.wantUnresolved)
			}
		})
	}
}

func TestRecipientResolverMergesDuplicateContacts(t *testing.T) {
	t.Parallel()

	directory := &fakeDirectoryRepo{
		contactsFn: func(ctx context.Context, userIDs []string) ([]domain.Contact, error) {
			return []domain.Contact{
				{UserID: "u1", PushTokens: []string{"ExponentPushToken[a]"}},
				{UserID: "u1", Email: "ada@example.com", PushTokens: []string{"ExponentPushToken[a]", "ExponentPushToken[b]"}},
			}, nil
		},
	}
	resolver, err := NewRecipientResolver(directory, time.Second, nil)
	if err != nil {
		t.Fatalf("NewRecipientResolver() error = %v", err)
	}

	resolution, err := resolver.Resolve(context.Background(), domain.ExplicitRecipients{UserIDs: []string{"u1"}})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(resolution.Recipients) != 1 {
		t.Fatalf("recipients = %d, want 1", len(resolution.Recipients))
	}
	got := resolution.Recipients[0]
	if got.Email != "ada@example.com" || len(got.PushTokens) != 2 {
		t.Fatalf("merged contact = %+v", got)
	}
}

func TestRecipientResolverEmptyExpansionSkipsContactLookup(t *testing.T) {
	t.Parallel()

	directory := newTestDirectory()
	resolver, err := NewRecipientResolver(directory, time.Second, nil)
	if err != nil {
		t.Fatalf("NewRecipientResolver() error = %v", err)
	}

	resolution, err := resolver.Resolve(context.Background(), domain.GroupRecipients{GroupID: "grp-empty"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(resolution.Recipients) != 0 {
		t.Fatalf("recipients = %d, want 0", len(resolution.Recipients))
	}
	if directory.contactCalls != 0 {
		t.Fatalf("contact lookups = %d, want 0", directory.contactCalls)
	}
}

func contactIDs(contacts []domain.Contact) []string {
	var ids []string
	for _, c := range contacts {
		ids = append(ids, c.UserID)
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
