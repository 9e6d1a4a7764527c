package notify

import (
	"context"
	"testing"

	"github.com/samfms/scf/pkg/authgate"
	"github.com/samfms/scf/pkg/trips"
)

type fakeRoleDirectory struct {
	byRole map[authgate.Role][]string
}

func (d *fakeRoleDirectory) UserIDsForRole(ctx context.Context, role authgate.Role) ([]string, error) {
	return d.byRole[role], nil
}

func TestNotifyWritesOneNotificationPerConcreteRecipient(t *testing.T) {
	store := trips.NewMemory()
	directory := &fakeRoleDirectory{byRole: map[authgate.Role][]string{
		authgate.RoleDispatcher: {"u-dispatch-1", "u-dispatch-2"},
	}}
	f := New(store, directory, nil)
	defer f.Stop()

	written, err := f.Notify(context.Background(), Request{
		RecipientUserIDs: []string{"u-driver-1"},
		RecipientRoles:   []authgate.Role{authgate.RoleDispatcher},
		Type:             "missed_ping",
		Title:            "Missed driver ping",
		Message:          "Driver has not pinged within the expected window",
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(written) != 3 {
		t.Fatalf("len(written) = %d, want 3", len(written))
	}

	for _, userID := range []string{"u-driver-1", "u-dispatch-1", "u-dispatch-2"} {
		unread, err := store.ListUnreadNotifications(context.Background(), userID)
		if err != nil {
			t.Fatalf("ListUnreadNotifications(%s): %v", userID, err)
		}
		if len(unread) != 1 {
			t.Errorf("unread notifications for %s = %d, want 1", userID, len(unread))
		}
	}
}

func TestNotifyDeduplicatesExplicitAndRoleResolvedRecipients(t *testing.T) {
	store := trips.NewMemory()
	directory := &fakeRoleDirectory{byRole: map[authgate.Role][]string{
		authgate.RoleManager: {"u-1"},
	}}
	f := New(store, directory, nil)
	defer f.Stop()

	written, err := f.Notify(context.Background(), Request{
		RecipientUserIDs: []string{"u-1"},
		RecipientRoles:   []authgate.Role{authgate.RoleManager},
		Type:             "reroute_suggested",
		Title:            "Reroute available",
		Message:          "A faster route is available",
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(written) != 1 {
		t.Fatalf("len(written) = %d, want 1 (deduplicated)", len(written))
	}
}

func TestNotifyRejectsRequestWithNoResolvableRecipients(t *testing.T) {
	store := trips.NewMemory()
	f := New(store, &fakeRoleDirectory{}, nil)
	defer f.Stop()

	_, err := f.Notify(context.Background(), Request{Type: "x", Title: "x", Message: "x"})
	if err == nil {
		t.Fatal("expected an error for a request with no recipients")
	}
}
