package maintenance

import (
	"context"
	"errors"
	"testing"

	"github.com/samfms/scf/pkg/authgate"
	"github.com/samfms/scf/pkg/notify"
	"github.com/samfms/scf/pkg/trips"
)

var errBoom = errors.New("boom")

type fakeRoleDirectory struct{}

func (fakeRoleDirectory) UserIDsForRole(ctx context.Context, role authgate.Role) ([]string, error) {
	return nil, nil
}

type fakeSource struct {
	items []DueItem
	err   error
}

func (f *fakeSource) DueItems(ctx context.Context) ([]DueItem, error) {
	return f.items, f.err
}

func TestSweepIsANoOpWithoutASource(t *testing.T) {
	store := trips.NewMemory()
	fanout := notify.New(store, fakeRoleDirectory{}, nil)
	defer fanout.Stop()

	s := New(nil, fanout, nil)
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
}

func TestSweepWritesOneMaintenanceDueNotificationPerItem(t *testing.T) {
	store := trips.NewMemory()
	fanout := notify.New(store, fakeRoleDirectory{}, nil)
	defer fanout.Stop()

	source := &fakeSource{items: []DueItem{
		{Kind: KindMaintenanceScheduled, RecipientUserID: "u-1", VehicleID: "V1", MaintenanceType: "oil_change", Message: "Oil change due in 3 days"},
		{Kind: KindLicenseExpiring, RecipientUserID: "u-2", DriverID: "D2", LicenseType: "commercial", Message: "License expires in 14 days"},
	}}

	s := New(source, fanout, nil)
	ctx := context.Background()
	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	for _, userID := range []string{"u-1", "u-2"} {
		unread, err := store.ListUnreadNotifications(ctx, userID)
		if err != nil {
			t.Fatalf("ListUnreadNotifications(%s): %v", userID, err)
		}
		if len(unread) != 1 {
			t.Fatalf("unread notifications for %s = %d, want 1", userID, len(unread))
		}
		if unread[0].Type != "maintenance_due" {
			t.Errorf("notification type = %q, want maintenance_due", unread[0].Type)
		}
	}
}

func TestSweepPropagatesSourceError(t *testing.T) {
	store := trips.NewMemory()
	fanout := notify.New(store, fakeRoleDirectory{}, nil)
	defer fanout.Stop()

	source := &fakeSource{err: errBoom}
	s := New(source, fanout, nil)
	if err := s.Sweep(context.Background()); err == nil {
		t.Fatal("expected Sweep to propagate the source's error")
	}
}
