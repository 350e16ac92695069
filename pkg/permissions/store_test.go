package permissions

import (
	"context"
	"testing"
	"time"
)

func TestAccountCRUD(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, "alice")

	account := &Account{
		Name:         "Joint Savings",
		Description:  "vacation fund",
		AccountType:  AccountTypeSavings,
		BankName:     "First National",
		NumberMasked: "****1234",
		BalanceCents: 150000,
		OwnerID:      ownerID,
	}
	if err := store.CreateAccount(ctx, account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if account.ID == 0 {
		t.Fatal("CreateAccount did not assign an ID")
	}

	got, err := store.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if got.Name != "Joint Savings" || got.BalanceCents != 150000 || got.OwnerID != ownerID {
		t.Errorf("GetAccount returned %+v", got)
	}
	if got.IsShared {
		t.Error("new account should not be shared")
	}

	got.Name = "Joint Savings (renamed)"
	if err := store.UpdateAccount(ctx, got); err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}
	got, err = store.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccount after update failed: %v", err)
	}
	if got.Name != "Joint Savings (renamed)" {
		t.Errorf("update not persisted, got name %q", got.Name)
	}

	if err := store.SetShared(ctx, account.ID, true); err != nil {
		t.Fatalf("SetShared failed: %v", err)
	}
	got, _ = store.GetAccount(ctx, account.ID)
	if !got.IsShared {
		t.Error("SetShared(true) not persisted")
	}

	if err := store.DeleteAccount(ctx, account.ID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	if _, err := store.GetAccount(ctx, account.ID); !IsNotFound(err) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)

	_, err := store.GetAccount(context.Background(), 9999)
	if !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestUpdateMissingAccount(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	if err := store.UpdateAccount(ctx, &Account{ID: 42, Name: "x", AccountType: AccountTypeCash}); !IsNotFound(err) {
		t.Errorf("UpdateAccount on missing account: expected NotFoundError, got %v", err)
	}
	if err := store.SetShared(ctx, 42, true); !IsNotFound(err) {
		t.Errorf("SetShared on missing account: expected NotFoundError, got %v", err)
	}
	if err := store.DeleteAccount(ctx, 42); !IsNotFound(err) {
		t.Errorf("DeleteAccount on missing account: expected NotFoundError, got %v", err)
	}
}

func TestDeleteAccountRemovesDependents(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, "alice")
	memberID := createTestUser(t, db, "bob")
	account := createTestAccount(t, store, ownerID, true)

	if err := store.UpsertPermission(ctx, &AccountPermission{
		AccountID:      account.ID,
		UserID:         memberID,
		PermissionType: PermissionViewOnly,
	}); err != nil {
		t.Fatalf("UpsertPermission failed: %v", err)
	}
	if err := store.CreateRequest(ctx, &PermissionRequest{
		AccountID:           account.ID,
		RequesterID:         memberID,
		RequestedPermission: PermissionFullAccess,
	}); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	if err := store.DeleteAccount(ctx, account.ID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}

	grant, err := store.GetPermission(ctx, account.ID, memberID)
	if err != nil {
		t.Fatalf("GetPermission failed: %v", err)
	}
	if grant != nil {
		t.Error("grant survived account deletion")
	}
	pending, err := store.GetPendingRequest(ctx, account.ID, memberID)
	if err != nil {
		t.Fatalf("GetPendingRequest failed: %v", err)
	}
	if pending != nil {
		t.Error("pending request survived account deletion")
	}
}

func TestListAccountsForUser(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	owned := createTestAccount(t, store, alice, false)
	sharedWithAlice := createTestAccount(t, store, bob, true)
	unsharedWithGrant := createTestAccount(t, store, bob, false)
	createTestAccount(t, store, bob, true) // shared but no grant for alice

	for _, accountID := range []int64{sharedWithAlice.ID, unsharedWithGrant.ID} {
		if err := store.UpsertPermission(ctx, &AccountPermission{
			AccountID:      accountID,
			UserID:         alice,
			PermissionType: PermissionViewOnly,
		}); err != nil {
			t.Fatalf("UpsertPermission failed: %v", err)
		}
	}

	accounts, err := store.ListAccountsForUser(ctx, alice)
	if err != nil {
		t.Fatalf("ListAccountsForUser failed: %v", err)
	}

	ids := make(map[int64]bool)
	for _, a := range accounts {
		ids[a.ID] = true
	}
	if len(accounts) != 2 || !ids[owned.ID] || !ids[sharedWithAlice.ID] {
		t.Errorf("expected owned + shared-with-grant accounts, got %v", ids)
	}
	if ids[unsharedWithGrant.ID] {
		t.Error("a grant on an unshared account must not make it visible")
	}
}

func TestUpsertPermissionSingleRow(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, "alice")
	memberID := createTestUser(t, db, "bob")
	account := createTestAccount(t, store, ownerID, true)

	first := &AccountPermission{AccountID: account.ID, UserID: memberID, PermissionType: PermissionViewOnly}
	if err := store.UpsertPermission(ctx, first); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	second := &AccountPermission{AccountID: account.ID, UserID: memberID, PermissionType: PermissionFullAccess}
	if err := store.UpsertPermission(ctx, second); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created a second row: ids %d and %d", first.ID, second.ID)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM account_permissions WHERE account_id = $1 AND user_id = $2`,
		account.ID, memberID).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one grant row, got %d", count)
	}

	grant, err := store.GetPermission(ctx, account.ID, memberID)
	if err != nil {
		t.Fatalf("GetPermission failed: %v", err)
	}
	if grant.PermissionType != PermissionFullAccess {
		t.Errorf("re-grant did not replace the level, got %s", grant.PermissionType)
	}
}

func TestDeletePermission(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, "alice")
	memberID := createTestUser(t, db, "bob")
	account := createTestAccount(t, store, ownerID, true)

	if err := store.DeletePermission(ctx, account.ID, memberID); !IsNotFound(err) {
		t.Errorf("deleting a missing grant: expected NotFoundError, got %v", err)
	}

	if err := store.UpsertPermission(ctx, &AccountPermission{
		AccountID: account.ID, UserID: memberID, PermissionType: PermissionViewOnly,
	}); err != nil {
		t.Fatalf("UpsertPermission failed: %v", err)
	}
	if err := store.DeletePermission(ctx, account.ID, memberID); err != nil {
		t.Fatalf("DeletePermission failed: %v", err)
	}
	grant, _ := store.GetPermission(ctx, account.ID, memberID)
	if grant != nil {
		t.Error("grant still present after delete")
	}
}

func TestCreateRequestDuplicatePending(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, "alice")
	requesterID := createTestUser(t, db, "bob")
	account := createTestAccount(t, store, ownerID, true)

	first := &PermissionRequest{
		AccountID:           account.ID,
		RequesterID:         requesterID,
		RequestedPermission: PermissionViewOnly,
	}
	if err := store.CreateRequest(ctx, first); err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	dup := &PermissionRequest{
		AccountID:           account.ID,
		RequesterID:         requesterID,
		RequestedPermission: PermissionFullAccess,
	}
	err := store.CreateRequest(ctx, dup)
	if !IsInvariantViolation(err, InvariantDuplicatePending) {
		t.Fatalf("expected duplicate-pending invariant error, got %v", err)
	}

	// A reviewed request frees the slot for a new one.
	if err := store.ReviewRequest(ctx, first.ID, StatusDenied, &ownerID, "not yet"); err != nil {
		t.Fatalf("ReviewRequest failed: %v", err)
	}
	if err := store.CreateRequest(ctx, dup); err != nil {
		t.Fatalf("request after review should succeed: %v", err)
	}
}

func TestReviewRequestTransitions(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, "alice")
	requesterID := createTestUser(t, db, "bob")
	account := createTestAccount(t, store, ownerID, true)

	request := &PermissionRequest{
		AccountID:           account.ID,
		RequesterID:         requesterID,
		RequestedPermission: PermissionTransactionOnly,
	}
	if err := store.CreateRequest(ctx, request); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	if err := store.ReviewRequest(ctx, request.ID, StatusPending, &ownerID, ""); !IsInvariantViolation(err, InvariantNotPending) {
		t.Errorf("transition to PENDING should be rejected, got %v", err)
	}

	if err := store.ReviewRequest(ctx, request.ID, StatusApproved, &ownerID, "welcome"); err != nil {
		t.Fatalf("approve transition failed: %v", err)
	}

	got, err := store.GetRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if got.Status != StatusApproved {
		t.Errorf("status = %s, want APPROVED", got.Status)
	}
	if got.ReviewedBy == nil || *got.ReviewedBy != ownerID {
		t.Errorf("reviewed_by = %v, want %d", got.ReviewedBy, ownerID)
	}
	if got.ReviewMessage != "welcome" {
		t.Errorf("review_message = %q", got.ReviewMessage)
	}
	if got.ReviewedAt == nil {
		t.Error("reviewed_at not set")
	}

	// Terminal states are final.
	err = store.ReviewRequest(ctx, request.ID, StatusDenied, &ownerID, "")
	if !IsInvariantViolation(err, InvariantNotPending) {
		t.Errorf("re-review of terminal request: expected not-pending invariant error, got %v", err)
	}
}

func TestListRequestsFilter(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	account := createTestAccount(t, store, ownerID, true)

	bobReq := &PermissionRequest{AccountID: account.ID, RequesterID: bob, RequestedPermission: PermissionViewOnly}
	carolReq := &PermissionRequest{AccountID: account.ID, RequesterID: carol, RequestedPermission: PermissionFullAccess}
	for _, r := range []*PermissionRequest{bobReq, carolReq} {
		if err := store.CreateRequest(ctx, r); err != nil {
			t.Fatalf("CreateRequest failed: %v", err)
		}
	}
	if err := store.ReviewRequest(ctx, carolReq.ID, StatusDenied, &ownerID, ""); err != nil {
		t.Fatalf("ReviewRequest failed: %v", err)
	}

	pending := StatusPending
	requests, err := store.ListRequests(ctx, RequestFilter{AccountID: &account.ID, Status: &pending})
	if err != nil {
		t.Fatalf("ListRequests failed: %v", err)
	}
	if len(requests) != 1 || requests[0].ID != bobReq.ID {
		t.Errorf("pending filter returned %d requests", len(requests))
	}

	requests, err = store.ListRequests(ctx, RequestFilter{RequesterID: &carol})
	if err != nil {
		t.Fatalf("ListRequests by requester failed: %v", err)
	}
	if len(requests) != 1 || requests[0].Status != StatusDenied {
		t.Errorf("requester filter returned %+v", requests)
	}
}

func TestListPendingForOwnerOrder(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	other := createTestUser(t, db, "dave")

	mine := createTestAccount(t, store, ownerID, true)
	notMine := createTestAccount(t, store, other, true)

	older := &PermissionRequest{AccountID: mine.ID, RequesterID: bob, RequestedPermission: PermissionViewOnly}
	if err := store.CreateRequest(ctx, older); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	// Force distinct created_at values; sqlite timestamps are otherwise too
	// coarse to order two inserts in the same millisecond.
	if _, err := db.Exec(`UPDATE permission_requests SET created_at = $1 WHERE id = $2`,
		time.Now().UTC().Add(-time.Hour), older.ID); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	newer := &PermissionRequest{AccountID: mine.ID, RequesterID: carol, RequestedPermission: PermissionViewOnly}
	if err := store.CreateRequest(ctx, newer); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	foreign := &PermissionRequest{AccountID: notMine.ID, RequesterID: bob, RequestedPermission: PermissionViewOnly}
	if err := store.CreateRequest(ctx, foreign); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	requests, err := store.ListPendingForOwner(ctx, ownerID)
	if err != nil {
		t.Fatalf("ListPendingForOwner failed: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("expected 2 pending requests, got %d", len(requests))
	}
	if requests[0].ID != older.ID || requests[1].ID != newer.ID {
		t.Errorf("requests not in arrival order: %d, %d", requests[0].ID, requests[1].ID)
	}
}

func TestPurgeReviewedBefore(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	ownerID := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	account := createTestAccount(t, store, ownerID, true)

	reviewed := &PermissionRequest{AccountID: account.ID, RequesterID: bob, RequestedPermission: PermissionViewOnly}
	if err := store.CreateRequest(ctx, reviewed); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if err := store.ReviewRequest(ctx, reviewed.ID, StatusDenied, &ownerID, ""); err != nil {
		t.Fatalf("ReviewRequest failed: %v", err)
	}

	stalePending := &PermissionRequest{AccountID: account.ID, RequesterID: carol, RequestedPermission: PermissionViewOnly}
	if err := store.CreateRequest(ctx, stalePending); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	old := time.Now().UTC().Add(-48 * time.Hour)
	if _, err := db.Exec(`UPDATE permission_requests SET created_at = $1`, old); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	deleted, err := store.PurgeReviewedBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("PurgeReviewedBefore failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted request, got %d", deleted)
	}

	// Pending requests survive regardless of age.
	pending, err := store.GetPendingRequest(ctx, account.ID, carol)
	if err != nil {
		t.Fatalf("GetPendingRequest failed: %v", err)
	}
	if pending == nil {
		t.Fatal("pending request was purged")
	}

	// Re-running over the same range is a no-op.
	deleted, err = store.PurgeReviewedBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("second purge failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("second purge deleted %d rows, want 0", deleted)
	}
}
