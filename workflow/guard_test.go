package workflow

import (
	"context"
	"testing"
	"time"

	"estateflow/appointment"
	"estateflow/contract"
	"estateflow/fault"
	"estateflow/listing"
	"estateflow/voucher"
)

func TestBookAppointment_DeniedWithoutGrant(t *testing.T) {
	orc, cal, _, _, _ := newGuardedOrchestrator(&fakePerms{})

	_, err := orc.BookAppointment(context.Background(), appointment.CreateParams{
		ListingID: "listing-1",
		ClientID:  "client-buyer",
		StartTime: slotAt(10, 0),
		EndTime:   slotAt(11, 0),
		ActorID:   "agent-1",
	})
	if !fault.IsForbidden(err) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if cal.bookCalls != 0 {
		t.Errorf("expected no booking without grant, got %d", cal.bookCalls)
	}
}

func TestBookAppointment_DefaultsToOwnCalendar(t *testing.T) {
	orc, cal, _, _, _ := newGuardedOrchestrator(allGranted())

	booked, err := orc.BookAppointment(context.Background(), appointment.CreateParams{
		ListingID: "listing-1",
		ClientID:  "client-buyer",
		StartTime: slotAt(10, 0),
		EndTime:   slotAt(11, 0),
		ActorID:   "agent-1",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cal.booked.StaffID != "agent-1" {
		t.Errorf("expected staff defaulted to actor, got %q", cal.booked.StaffID)
	}
	if booked.ID == "" {
		t.Errorf("expected booked appointment, got zero value")
	}
}

func TestBookAppointment_OtherCalendarNeedsPrivilege(t *testing.T) {
	orc, cal, _, _, _ := newGuardedOrchestrator(allGranted())

	params := appointment.CreateParams{
		ListingID: "listing-1",
		ClientID:  "client-buyer",
		StaffID:   "agent-1",
		StartTime: slotAt(10, 0),
		EndTime:   slotAt(11, 0),
		ActorID:   "agent-2",
	}
	if _, err := orc.BookAppointment(context.Background(), params); !fault.IsForbidden(err) {
		t.Fatalf("expected ForbiddenError for another agent's calendar, got %v", err)
	}
	if cal.bookCalls != 0 {
		t.Errorf("expected no booking for the denied actor")
	}

	params.ActorID = "manager-1"
	if _, err := orc.BookAppointment(context.Background(), params); err != nil {
		t.Fatalf("expected manager to bypass ownership, got %v", err)
	}
}

func TestRescheduleAppointment_OwnershipEnforced(t *testing.T) {
	orc, cal, _, _, _ := newGuardedOrchestrator(allGranted())
	ctx := context.Background()

	// appt-1 was created by agent-1; agent-2 may not move it.
	_, err := orc.RescheduleAppointment(ctx, "appt-1", "agent-2", slotAt(14, 0), slotAt(15, 0))
	if !fault.IsForbidden(err) {
		t.Fatalf("expected ForbiddenError for non-owner, got %v", err)
	}
	if cal.rescheduleCalls != 0 {
		t.Errorf("expected no reschedule for the denied actor")
	}

	if _, err := orc.RescheduleAppointment(ctx, "appt-1", "agent-1", slotAt(14, 0), slotAt(15, 0)); err != nil {
		t.Fatalf("expected owner to reschedule, got %v", err)
	}
	if cal.rescheduleCalls != 1 {
		t.Errorf("expected one reschedule, got %d", cal.rescheduleCalls)
	}
}

func TestTransitionAppointment_OwnershipEnforced(t *testing.T) {
	orc, cal, _, _, _ := newGuardedOrchestrator(allGranted())
	ctx := context.Background()

	params := appointment.TransitionParams{
		AppointmentID: "appt-1",
		ActorID:       "agent-2",
		NextStatus:    appointment.StatusConfirmed,
	}
	if _, err := orc.TransitionAppointment(ctx, params); !fault.IsForbidden(err) {
		t.Fatalf("expected ForbiddenError for non-owner, got %v", err)
	}
	if cal.transitionCalls != 0 {
		t.Errorf("expected no transition for the denied actor")
	}

	params.ActorID = "manager-1"
	updated, err := orc.TransitionAppointment(ctx, params)
	if err != nil {
		t.Fatalf("expected manager to bypass ownership, got %v", err)
	}
	if updated.Status != appointment.StatusConfirmed {
		t.Errorf("expected confirmed, got %s", updated.Status)
	}
}

func TestTransitionListing_DeniedWithoutGrant(t *testing.T) {
	orc, _, ls, _, _ := newGuardedOrchestrator(&fakePerms{})

	_, err := orc.TransitionListing(context.Background(), listing.TransitionParams{
		ListingID:  "listing-1",
		ActorID:    "agent-1",
		NextStatus: listing.StatusSuspended,
	})
	if !fault.IsForbidden(err) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if ls.calls != 0 {
		t.Errorf("expected no listing transition without grant")
	}
}

func TestTransitionListing_OwnershipEnforced(t *testing.T) {
	orc, _, ls, _, _ := newGuardedOrchestrator(allGranted())
	ctx := context.Background()

	// listing-1 is owned by agent-1.
	params := listing.TransitionParams{
		ListingID:  "listing-1",
		ActorID:    "agent-2",
		NextStatus: listing.StatusSuspended,
	}
	if _, err := orc.TransitionListing(ctx, params); !fault.IsForbidden(err) {
		t.Fatalf("expected ForbiddenError for non-owner, got %v", err)
	}

	params.ActorID = "agent-1"
	if _, err := orc.TransitionListing(ctx, params); err != nil {
		t.Fatalf("expected owner to transition, got %v", err)
	}
	if ls.params.NextStatus != listing.StatusSuspended {
		t.Errorf("params not threaded through: %+v", ls.params)
	}
}

func TestTransitionContract_OwnershipEnforced(t *testing.T) {
	orc, _, _, cf, _ := newGuardedOrchestrator(allGranted())
	ctx := context.Background()

	now := time.Now()
	params := contract.TransitionParams{
		ContractID: "contract-1",
		ActorID:    "agent-2",
		NextStatus: contract.StatusSigned,
		SignedDate: &now,
	}
	if _, err := orc.TransitionContract(ctx, params); !fault.IsForbidden(err) {
		t.Fatalf("expected ForbiddenError for non-owner, got %v", err)
	}
	if cf.transitionCalls != 0 {
		t.Errorf("expected no contract transition for the denied actor")
	}

	params.ActorID = "agent-1"
	updated, err := orc.TransitionContract(ctx, params)
	if err != nil {
		t.Fatalf("expected owner to transition, got %v", err)
	}
	if updated.Status != contract.StatusSigned {
		t.Errorf("expected signed, got %s", updated.Status)
	}
}

func TestConfirmVoucher_DeniedWithoutGrant(t *testing.T) {
	orc, _, _, _, vs := newGuardedOrchestrator(&fakePerms{})

	_, err := orc.ConfirmVoucher(context.Background(), "voucher-1", "agent-1")
	if !fault.IsForbidden(err) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if vs.confirmCalls != 0 {
		t.Errorf("expected no confirm without grant")
	}
}

func TestConfirmVoucher_OwnershipEnforced(t *testing.T) {
	orc, _, _, _, vs := newGuardedOrchestrator(allGranted())
	ctx := context.Background()

	// voucher-1 was created by agent-1; agent-2 may not confirm it.
	_, err := orc.ConfirmVoucher(ctx, "voucher-1", "agent-2")
	if !fault.IsForbidden(err) {
		t.Fatalf("expected ForbiddenError for non-owner, got %v", err)
	}
	if vs.confirmCalls != 0 {
		t.Errorf("expected no confirm for the denied actor")
	}

	confirmed, err := orc.ConfirmVoucher(ctx, "voucher-1", "agent-1")
	if err != nil {
		t.Fatalf("expected owner to confirm, got %v", err)
	}
	if confirmed.Status != voucher.StatusConfirmed {
		t.Errorf("expected confirmed, got %s", confirmed.Status)
	}

	if _, err := orc.ConfirmVoucher(ctx, "voucher-1", "manager-1"); err != nil {
		t.Fatalf("expected manager to bypass ownership, got %v", err)
	}
	if vs.confirmCalls != 2 {
		t.Errorf("expected two confirms, got %d", vs.confirmCalls)
	}
}

func slotAt(hour, min int) time.Time {
	return time.Date(2026, 2, 3, hour, min, 0, 0, time.UTC)
}

func newGuardedOrchestrator(perms Authorizer) (*Orchestrator, *fakeCalendar, *fakeListingStatus, *fakeContractFlow, *fakeVouchers) {
	cal := &fakeCalendar{}
	ls := &fakeListingStatus{}
	cf := &fakeContractFlow{}
	vs := &fakeVouchers{}
	orc := NewOrchestrator(&fakePool{}, perms, &fakeUsers{}, &fakeDeals{}, &fakeListings{}, nil).
		WithCalendar(cal, cal).
		WithListingStatus(ls).
		WithContractFlow(cf, cf).
		WithVouchers(vs)
	return orc, cal, ls, cf, vs
}

// fakeCalendar serves both the booking surface and the appointment status
// surface. Existing appointments are owned by agent-1.
type fakeCalendar struct {
	bookCalls       int
	booked          appointment.CreateParams
	rescheduleCalls int
	transitionCalls int
}

func (f *fakeCalendar) Book(ctx context.Context, params appointment.CreateParams) (appointment.Appointment, error) {
	f.bookCalls++
	f.booked = params
	return appointment.Appointment{
		ID:        "appt-new",
		ListingID: params.ListingID,
		ClientID:  params.ClientID,
		StaffID:   params.StaffID,
		StartTime: params.StartTime,
		EndTime:   params.EndTime,
		Status:    appointment.StatusCreated,
		CreatedBy: params.ActorID,
	}, nil
}

func (f *fakeCalendar) GetByID(ctx context.Context, id string) (appointment.Appointment, error) {
	return appointment.Appointment{
		ID:        id,
		StaffID:   "agent-1",
		Status:    appointment.StatusCreated,
		CreatedBy: "agent-1",
	}, nil
}

func (f *fakeCalendar) Reschedule(ctx context.Context, appointmentID, actorID string, start, end time.Time) (appointment.Appointment, error) {
	f.rescheduleCalls++
	return appointment.Appointment{
		ID:        appointmentID,
		StaffID:   "agent-1",
		StartTime: start,
		EndTime:   end,
		Status:    appointment.StatusCreated,
		CreatedBy: "agent-1",
	}, nil
}

func (f *fakeCalendar) Transition(ctx context.Context, params appointment.TransitionParams) (appointment.Appointment, error) {
	f.transitionCalls++
	return appointment.Appointment{
		ID:        params.AppointmentID,
		StaffID:   "agent-1",
		Status:    params.NextStatus,
		CreatedBy: "agent-1",
	}, nil
}

type fakeListingStatus struct {
	calls  int
	params listing.TransitionParams
}

func (f *fakeListingStatus) Transition(ctx context.Context, params listing.TransitionParams) (listing.Listing, error) {
	f.calls++
	f.params = params
	return listing.Listing{
		ID:      params.ListingID,
		StaffID: "agent-1",
		Status:  params.NextStatus,
	}, nil
}

// fakeContractFlow serves both the reader and the status surface. Contracts
// are owned by agent-1.
type fakeContractFlow struct {
	transitionCalls int
}

func (f *fakeContractFlow) GetByID(ctx context.Context, id string) (contract.Contract, error) {
	return contract.Contract{
		ID:        id,
		Status:    contract.StatusPendingSignature,
		CreatedBy: "agent-1",
	}, nil
}

func (f *fakeContractFlow) Transition(ctx context.Context, params contract.TransitionParams) (contract.Contract, error) {
	f.transitionCalls++
	return contract.Contract{
		ID:        params.ContractID,
		Status:    params.NextStatus,
		CreatedBy: "agent-1",
	}, nil
}

type fakeVouchers struct {
	confirmCalls int
}

func (f *fakeVouchers) GetByID(ctx context.Context, id string) (voucher.Voucher, error) {
	return voucher.Voucher{
		ID:        id,
		Status:    voucher.StatusCreated,
		CreatedBy: "agent-1",
	}, nil
}

func (f *fakeVouchers) Confirm(ctx context.Context, voucherID, actorID string) (voucher.Voucher, error) {
	f.confirmCalls++
	return voucher.Voucher{
		ID:        voucherID,
		Status:    voucher.StatusConfirmed,
		CreatedBy: "agent-1",
	}, nil
}
