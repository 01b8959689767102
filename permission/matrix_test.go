package permission

import (
	"math/rand"
	"reflect"
	"testing"

	"estateflow/auth"
)

func sampleEntries() []Entry {
	return []Entry{
		{Role: auth.RoleAgent, Resource: ResourceListing, Action: ActionView, Granted: true},
		{Role: auth.RoleAgent, Resource: ResourceListing, Action: ActionAdd, Granted: true},
		{Role: auth.RoleAgent, Resource: ResourceContract, Action: ActionDelete, Granted: false},
		{Role: auth.RoleManager, Resource: ResourceVoucher, Action: ActionEdit, Granted: true},
		{Role: auth.RoleAdmin, Resource: ResourcePermission, Action: ActionEdit, Granted: true},
	}
}

func TestRoundTripFlatToMatrixToFlat(t *testing.T) {
	entries := sampleEntries()
	SortEntries(entries)

	got := ToFlat(ToMatrix(entries))
	if !reflect.DeepEqual(got, entries) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, entries)
	}
}

func TestRoundTripIsOrderIndependent(t *testing.T) {
	entries := sampleEntries()
	SortEntries(entries)
	want := ToFlat(ToMatrix(entries))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]Entry(nil), entries...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		if got := ToFlat(ToMatrix(shuffled)); !reflect.DeepEqual(got, want) {
			t.Fatalf("shuffle %d changed the result:\n got %+v\nwant %+v", i, got, want)
		}
	}
}

func TestRoundTripMatrixToFlatToMatrix(t *testing.T) {
	m := ToMatrix(sampleEntries())
	if got := ToMatrix(ToFlat(m)); !reflect.DeepEqual(got, m) {
		t.Fatalf("matrix round trip mismatch:\n got %+v\nwant %+v", got, m)
	}
}

func TestToMatrixLastWriterWins(t *testing.T) {
	m := ToMatrix([]Entry{
		{Role: auth.RoleAgent, Resource: ResourceDeal, Action: ActionEdit, Granted: false},
		{Role: auth.RoleAgent, Resource: ResourceDeal, Action: ActionEdit, Granted: true},
	})
	if !m[auth.RoleAgent][ResourceDeal][ActionEdit] {
		t.Fatal("expected the later entry to win")
	}
	if got := len(ToFlat(m)); got != 1 {
		t.Fatalf("expected duplicate triples collapsed to 1 entry, got %d", got)
	}
}
