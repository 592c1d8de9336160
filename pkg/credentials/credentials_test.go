package credentials

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vberkoz/kvgate/pkg/apierr"
	"github.com/vberkoz/kvgate/pkg/plans"
	"github.com/vberkoz/kvgate/pkg/store"
)

func newTestService() *Service {
	return NewService(store.NewMemoryStore())
}

func TestIssue(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	result, err := svc.Issue(ctx, "t1", "ci-deploy", plans.TierFree, []Permission{PermissionRead, PermissionWrite}, nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Secret, KeyPrefix))
	assert.NotEmpty(t, result.Credential.ID)
	assert.Equal(t, "t1", result.Credential.TenantID)
	assert.NotEqual(t, result.Secret, result.Credential.KeyHash, "plaintext must not be stored")
	assert.True(t, strings.HasPrefix(result.Credential.KeyPrefix, KeyPrefix))
}

func TestIssue_Validation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Issue(ctx, "t1", "ab", plans.TierFree, nil, nil)
	assert.True(t, apierr.Is(err, apierr.CodeValidation), "short name rejected")

	_, err = svc.Issue(ctx, "t1", "valid-name", plans.TierFree, []Permission{"admin"}, nil)
	assert.True(t, apierr.Is(err, apierr.CodeValidation), "unknown permission rejected")

	past := time.Now().Add(-time.Hour)
	_, err = svc.Issue(ctx, "t1", "valid-name", plans.TierFree, nil, &past)
	assert.True(t, apierr.Is(err, apierr.CodeValidation), "past expiry rejected")
}

func TestIssue_ExpiryKeepsSubSecondPrecision(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	// An expiry milliseconds in the future must survive the storage
	// roundtrip intact; truncating to whole seconds would read it back
	// as already past.
	expiry := time.Now().UTC().Add(50 * time.Millisecond)
	result, err := svc.Issue(ctx, "t1", "short-lived", plans.TierFree, nil, &expiry)
	require.NoError(t, err)

	stored, err := svc.Get(ctx, "t1", result.Credential.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, stored.ExpiresAt.Equal(expiry), "expiry changed in storage: %v != %v", stored.ExpiresAt, expiry)
	assert.False(t, stored.Expired(expiry.Add(-time.Millisecond)))
	assert.True(t, stored.Expired(expiry))
}

func TestList_NeverReturnsSecrets(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "t1", "key-one", plans.TierPro, nil, nil)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, "t1", "key-two", plans.TierPro, nil, nil)
	require.NoError(t, err)

	creds, err := svc.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, creds, 2)
	for _, c := range creds {
		assert.NotEmpty(t, c.KeyHash)
		assert.NotEqual(t, issued.Secret, c.KeyHash)
	}

	other, err := svc.List(ctx, "t2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestGetByHash(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "t1", "lookup-key", plans.TierFree, nil, nil)
	require.NoError(t, err)

	cred, err := svc.GetByHash(ctx, svc.keygen.Hash(issued.Secret))
	require.NoError(t, err)
	assert.Equal(t, issued.Credential.ID, cred.ID)

	_, err = svc.GetByHash(ctx, svc.keygen.Hash("kv_unknown"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRevoke(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "t1", "to-revoke", plans.TierFree, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, "t1", issued.Credential.ID))

	_, err = svc.GetByHash(ctx, issued.Credential.KeyHash)
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = svc.Revoke(ctx, "t1", issued.Credential.ID)
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))
}

func TestRevoke_WrongTenant(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "t1", "mine", plans.TierFree, nil, nil)
	require.NoError(t, err)

	err = svc.Revoke(ctx, "t2", issued.Credential.ID)
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))
}

func TestRotate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "t1", "rotating", plans.TierFree, []Permission{PermissionRead}, nil)
	require.NoError(t, err)

	touched := time.Now()
	require.NoError(t, svc.TouchLastUsed(ctx, "t1", issued.Credential.ID, touched))

	rotated, err := svc.Rotate(ctx, "t1", issued.Credential.ID)
	require.NoError(t, err)

	assert.Equal(t, issued.Credential.ID, rotated.Credential.ID, "id retained")
	assert.Equal(t, "rotating", rotated.Credential.Name)
	assert.NotEqual(t, issued.Secret, rotated.Secret)
	assert.Nil(t, rotated.Credential.LastUsedAt, "lastUsedAt cleared on rotation")

	// Old secret no longer resolves; new one does.
	_, err = svc.GetByHash(ctx, svc.keygen.Hash(issued.Secret))
	assert.ErrorIs(t, err, store.ErrNotFound)
	cred, err := svc.GetByHash(ctx, svc.keygen.Hash(rotated.Secret))
	require.NoError(t, err)
	assert.Equal(t, issued.Credential.ID, cred.ID)
}

func TestTouchLastUsed(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "t1", "touched", plans.TierFree, nil, nil)
	require.NoError(t, err)

	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.TouchLastUsed(ctx, "t1", issued.Credential.ID, at))

	cred, err := svc.Get(ctx, "t1", issued.Credential.ID)
	require.NoError(t, err)
	require.NotNil(t, cred.LastUsedAt)
	assert.True(t, cred.LastUsedAt.Equal(at))

	// Touching a revoked credential is not an error.
	require.NoError(t, svc.Revoke(ctx, "t1", issued.Credential.ID))
	assert.NoError(t, svc.TouchLastUsed(ctx, "t1", issued.Credential.ID, at))
}

func TestCredential_Allows(t *testing.T) {
	unrestricted := &Credential{}
	assert.True(t, unrestricted.Allows(PermissionDelete))

	scoped := &Credential{Permissions: []Permission{PermissionRead}}
	assert.True(t, scoped.Allows(PermissionRead))
	assert.False(t, scoped.Allows(PermissionWrite))
}

func TestCredential_Expired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&Credential{}).Expired(now))

	future := now.Add(time.Hour)
	assert.False(t, (&Credential{ExpiresAt: &future}).Expired(now))

	past := now.Add(-time.Hour)
	assert.True(t, (&Credential{ExpiresAt: &past}).Expired(now))
}
