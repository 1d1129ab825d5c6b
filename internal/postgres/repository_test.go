package postgres

import (
	"testing"

	"github.com/steam-achievements/internal/domain"
)

func TestCollapseResolvedDropsReconciledSubmission(t *testing.T) {
	// A mint submitted through the pipeline and later reconciled by the
	// watcher: the reconciled event row and the leftover pending placeholder
	// share a transaction hash, and the owner must see the mint once.
	records := []domain.MintRecord{
		{OwnerAddress: "0xaa", TokenID: "0x01", TxHash: "0xdead", BlockNumber: 1000, LogIndex: 57},
		{OwnerAddress: "0xaa", TokenID: "0x01", TxHash: "0xdead", Pending: true},
	}

	out := collapseResolved(records)
	if len(out) != 1 {
		t.Fatalf("got %d records, want 1", len(out))
	}
	if out[0].Pending {
		t.Error("the reconciled row must win over the pending placeholder")
	}
	if out[0].BlockNumber != 1000 || out[0].LogIndex != 57 {
		t.Errorf("kept record = %+v, want the reconciled event", out[0])
	}
}

func TestCollapseResolvedKeepsUnreconciledSubmission(t *testing.T) {
	records := []domain.MintRecord{
		{OwnerAddress: "0xaa", TokenID: "0x01", TxHash: "0xbeef", Pending: true},
	}

	out := collapseResolved(records)
	if len(out) != 1 {
		t.Fatalf("got %d records, want 1", len(out))
	}
	if !out[0].Pending {
		t.Error("an unreconciled submission must stay visible as pending")
	}
}

func TestCollapseResolvedKeepsMultiLogTransaction(t *testing.T) {
	// One transaction can emit several mint logs; those are distinct mints
	// and must never collapse into each other.
	records := []domain.MintRecord{
		{OwnerAddress: "0xaa", TokenID: "0x01", TxHash: "0xdead", BlockNumber: 1000, LogIndex: 3},
		{OwnerAddress: "0xaa", TokenID: "0x02", TxHash: "0xdead", BlockNumber: 1000, LogIndex: 4},
	}

	out := collapseResolved(records)
	if len(out) != 2 {
		t.Fatalf("got %d records, want 2", len(out))
	}
}

func TestCollapseResolvedEmpty(t *testing.T) {
	if out := collapseResolved(nil); len(out) != 0 {
		t.Errorf("got %d records, want 0", len(out))
	}
}
