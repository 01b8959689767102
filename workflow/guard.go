package workflow

import (
	"context"
	"time"

	"estateflow/appointment"
	"estateflow/contract"
	"estateflow/listing"
	"estateflow/permission"
	"estateflow/voucher"
)

// Calendar is the booking surface the guarded entry points drive.
type Calendar interface {
	Book(ctx context.Context, params appointment.CreateParams) (appointment.Appointment, error)
	Reschedule(ctx context.Context, appointmentID, actorID string, start, end time.Time) (appointment.Appointment, error)
	GetByID(ctx context.Context, id string) (appointment.Appointment, error)
}

// AppointmentTransitioner applies appointment status changes.
type AppointmentTransitioner interface {
	Transition(ctx context.Context, params appointment.TransitionParams) (appointment.Appointment, error)
}

// ListingTransitioner applies listing status changes.
type ListingTransitioner interface {
	Transition(ctx context.Context, params listing.TransitionParams) (listing.Listing, error)
}

// ContractReader loads contracts for ownership checks.
type ContractReader interface {
	GetByID(ctx context.Context, id string) (contract.Contract, error)
}

// ContractTransitioner applies contract status changes.
type ContractTransitioner interface {
	Transition(ctx context.Context, params contract.TransitionParams) (contract.Contract, error)
}

// VoucherConfirmer loads and confirms vouchers.
type VoucherConfirmer interface {
	GetByID(ctx context.Context, id string) (voucher.Voucher, error)
	Confirm(ctx context.Context, voucherID, actorID string) (voucher.Voucher, error)
}

// WithCalendar wires the appointment surfaces into the authorization gate.
func (o *Orchestrator) WithCalendar(cal Calendar, status AppointmentTransitioner) *Orchestrator {
	o.calendar = cal
	o.apptStatus = status
	return o
}

// WithListingStatus wires listing transitions into the authorization gate.
func (o *Orchestrator) WithListingStatus(status ListingTransitioner) *Orchestrator {
	o.listingStatus = status
	return o
}

// WithContractFlow wires contract reads and transitions into the
// authorization gate.
func (o *Orchestrator) WithContractFlow(reader ContractReader, status ContractTransitioner) *Orchestrator {
	o.contractRead = reader
	o.contractStatus = status
	return o
}

// WithVouchers wires voucher confirmation into the authorization gate.
func (o *Orchestrator) WithVouchers(vouchers VoucherConfirmer) *Orchestrator {
	o.vouchers = vouchers
	return o
}

// BookAppointment books on the actor's calendar after the matrix check.
// StaffID defaults to the actor; booking for another staff member needs a
// privileged role.
func (o *Orchestrator) BookAppointment(ctx context.Context, params appointment.CreateParams) (appointment.Appointment, error) {
	actor, err := o.authorize(ctx, params.ActorID, permission.ResourceAppointment, permission.ActionAdd)
	if err != nil {
		return appointment.Appointment{}, err
	}
	if params.StaffID == "" {
		params.StaffID = actor.ID
	}
	if err := o.requireOwnership(actor, params.StaffID); err != nil {
		return appointment.Appointment{}, err
	}
	return o.calendar.Book(ctx, params)
}

// RescheduleAppointment moves an appointment owned by the actor to a new
// slot.
func (o *Orchestrator) RescheduleAppointment(ctx context.Context, appointmentID, actorID string, start, end time.Time) (appointment.Appointment, error) {
	actor, err := o.authorize(ctx, actorID, permission.ResourceAppointment, permission.ActionEdit)
	if err != nil {
		return appointment.Appointment{}, err
	}
	existing, err := o.calendar.GetByID(ctx, appointmentID)
	if err != nil {
		return appointment.Appointment{}, err
	}
	if err := o.requireOwnership(actor, existing.CreatedBy); err != nil {
		return appointment.Appointment{}, err
	}
	return o.calendar.Reschedule(ctx, appointmentID, actorID, start, end)
}

// TransitionAppointment applies an appointment status change for its owner.
func (o *Orchestrator) TransitionAppointment(ctx context.Context, params appointment.TransitionParams) (appointment.Appointment, error) {
	actor, err := o.authorize(ctx, params.ActorID, permission.ResourceAppointment, permission.ActionEdit)
	if err != nil {
		return appointment.Appointment{}, err
	}
	existing, err := o.calendar.GetByID(ctx, params.AppointmentID)
	if err != nil {
		return appointment.Appointment{}, err
	}
	if err := o.requireOwnership(actor, existing.CreatedBy); err != nil {
		return appointment.Appointment{}, err
	}
	return o.apptStatus.Transition(ctx, params)
}

// TransitionListing applies a listing status change for the staff member who
// owns the listing.
func (o *Orchestrator) TransitionListing(ctx context.Context, params listing.TransitionParams) (listing.Listing, error) {
	actor, err := o.authorize(ctx, params.ActorID, permission.ResourceListing, permission.ActionEdit)
	if err != nil {
		return listing.Listing{}, err
	}
	lst, err := o.listings.GetByID(ctx, params.ListingID)
	if err != nil {
		return listing.Listing{}, err
	}
	if err := o.requireOwnership(actor, lst.StaffID); err != nil {
		return listing.Listing{}, err
	}
	return o.listingStatus.Transition(ctx, params)
}

// TransitionContract applies a contract status change for its owner.
func (o *Orchestrator) TransitionContract(ctx context.Context, params contract.TransitionParams) (contract.Contract, error) {
	actor, err := o.authorize(ctx, params.ActorID, permission.ResourceContract, permission.ActionEdit)
	if err != nil {
		return contract.Contract{}, err
	}
	existing, err := o.contractRead.GetByID(ctx, params.ContractID)
	if err != nil {
		return contract.Contract{}, err
	}
	if err := o.requireOwnership(actor, existing.CreatedBy); err != nil {
		return contract.Contract{}, err
	}
	return o.contractStatus.Transition(ctx, params)
}

// ConfirmVoucher confirms a voucher owned by the actor and lets the service
// move the ledger.
func (o *Orchestrator) ConfirmVoucher(ctx context.Context, voucherID, actorID string) (voucher.Voucher, error) {
	actor, err := o.authorize(ctx, actorID, permission.ResourceVoucher, permission.ActionEdit)
	if err != nil {
		return voucher.Voucher{}, err
	}
	existing, err := o.vouchers.GetByID(ctx, voucherID)
	if err != nil {
		return voucher.Voucher{}, err
	}
	if err := o.requireOwnership(actor, existing.CreatedBy); err != nil {
		return voucher.Voucher{}, err
	}
	return o.vouchers.Confirm(ctx, voucherID, actorID)
}
