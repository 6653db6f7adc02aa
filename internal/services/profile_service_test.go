package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "voucherd/internal/errors"
	"voucherd/internal/store"
	api "voucherd/pkg/contracts/api/v1"
	"voucherd/pkg/contracts/domain"
)

func TestProfileCreate(t *testing.T) {
	st := store.NewMemoryStore()
	var mirrored []string
	dev := &fakeDevice{
		createProfile: func(_ context.Context, p domain.Profile) error {
			mirrored = append(mirrored, p.Name)
			return nil
		},
	}
	svc := NewProfileService(st, dev, testLogger())

	p, err := svc.Create(context.Background(), testDeviceID, api.ProfileCreateRequest{
		Name:      "2h-basic",
		RateLimit: "2M/2M",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.SharedUsers, "shared users defaults to 1")
	assert.Equal(t, []string{"2h-basic"}, mirrored)

	stored, err := st.GetProfile(context.Background(), testDeviceID, "2h-basic")
	require.NoError(t, err)
	assert.Equal(t, "2M/2M", stored.RateLimit)
}

func TestProfileCreate_DuplicateName(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewProfileService(st, &fakeDevice{}, testLogger())

	_, err := svc.Create(context.Background(), testDeviceID, api.ProfileCreateRequest{Name: "2h-basic"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), testDeviceID, api.ProfileCreateRequest{Name: "2h-basic"})
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "DUPLICATE_PROFILE_NAME", apiErr.ErrorCode)
}

func TestProfileCreate_DeviceUnreachableLeavesNothing(t *testing.T) {
	st := store.NewMemoryStore()
	dev := &fakeDevice{
		createProfile: func(context.Context, domain.Profile) error {
			return deviceUnreachable()
		},
	}
	svc := NewProfileService(st, dev, testLogger())

	_, err := svc.Create(context.Background(), testDeviceID, api.ProfileCreateRequest{Name: "2h-basic"})
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "DEVICE_UNREACHABLE", apiErr.ErrorCode)

	_, err = st.GetProfile(context.Background(), testDeviceID, "2h-basic")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProfileCreate_UnknownDevice(t *testing.T) {
	st := store.NewMemoryStore()
	dev := &fakeDevice{
		getDevice: func(context.Context, string) (domain.Device, error) {
			return domain.Device{}, deviceMissing()
		},
	}
	svc := NewProfileService(st, dev, testLogger())

	_, err := svc.Create(context.Background(), testDeviceID, api.ProfileCreateRequest{Name: "2h-basic"})
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NOT_FOUND", apiErr.ErrorCode)

	_, err = st.GetProfile(context.Background(), testDeviceID, "2h-basic")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProfileDelete_InUseRejected(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewProfileService(st, &fakeDevice{}, testLogger())

	_, err := svc.Create(context.Background(), testDeviceID, api.ProfileCreateRequest{Name: "2h-basic"})
	require.NoError(t, err)

	v := domain.Voucher{
		ID:        "v-1",
		DeviceID:  testDeviceID,
		Code:      "user0001",
		Profile:   "2h-basic",
		Status:    domain.VoucherStatusExpired,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateVoucherBatch(context.Background(), []domain.Voucher{v}))

	err = svc.Delete(context.Background(), testDeviceID, "2h-basic")
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "PROFILE_IN_USE", apiErr.ErrorCode, "even expired vouchers pin their profile")

	// Still there.
	_, err = st.GetProfile(context.Background(), testDeviceID, "2h-basic")
	assert.NoError(t, err)
}

func TestProfileDelete_Unreferenced(t *testing.T) {
	st := store.NewMemoryStore()
	var removed []string
	dev := &fakeDevice{
		deleteProfile: func(_ context.Context, _, name string) error {
			removed = append(removed, name)
			return nil
		},
	}
	svc := NewProfileService(st, dev, testLogger())

	_, err := svc.Create(context.Background(), testDeviceID, api.ProfileCreateRequest{Name: "2h-basic"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), testDeviceID, "2h-basic"))
	assert.Equal(t, []string{"2h-basic"}, removed)

	_, err = st.GetProfile(context.Background(), testDeviceID, "2h-basic")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProfileDelete_NotFound(t *testing.T) {
	svc := NewProfileService(store.NewMemoryStore(), &fakeDevice{}, testLogger())

	err := svc.Delete(context.Background(), testDeviceID, "missing")
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NOT_FOUND", apiErr.ErrorCode)
}
