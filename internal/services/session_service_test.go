package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "voucherd/internal/errors"
	"voucherd/internal/store"
	"voucherd/pkg/contracts/domain"
)

func seedVoucher(t *testing.T, st store.Store, code string, status domain.VoucherStatus) domain.Voucher {
	t.Helper()
	v := domain.Voucher{
		ID:        code + "-id",
		DeviceID:  testDeviceID,
		Code:      code,
		Profile:   "2h-basic",
		Status:    domain.VoucherStatusUnused,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateVoucherBatch(context.Background(), []domain.Voucher{v}))
	if status != domain.VoucherStatusUnused {
		require.NoError(t, st.UpdateVoucherStatus(context.Background(), testDeviceID, v.ID, status, ""))
		v.Status = status
	}
	return v
}

func TestListActive_ObservesActivation(t *testing.T) {
	st := store.NewMemoryStore()
	v := seedVoucher(t, st, "user0001", domain.VoucherStatusUnused)

	dev := &fakeDevice{
		listSessions: func(context.Context, string) ([]domain.Session, error) {
			return []domain.Session{{ID: "s1", VoucherCode: "user0001", Address: "10.0.0.5"}}, nil
		},
	}
	ctrl := NewSessionController(st, dev, nil, nil, testLogger())

	sessions, err := ctrl.ListActive(context.Background(), testDeviceID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	got, err := st.GetVoucher(context.Background(), testDeviceID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VoucherStatusActive, got.Status)
	assert.Equal(t, "s1", got.SessionID)
}

func TestListActive_UnknownCodeIgnored(t *testing.T) {
	st := store.NewMemoryStore()
	dev := &fakeDevice{
		listSessions: func(context.Context, string) ([]domain.Session, error) {
			return []domain.Session{{ID: "s1", VoucherCode: "stranger"}}, nil
		},
	}
	ctrl := NewSessionController(st, dev, nil, nil, testLogger())

	sessions, err := ctrl.ListActive(context.Background(), testDeviceID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1, "foreign sessions are reported, just not reconciled")
}

func TestListActive_RevokedVoucherNotReactivated(t *testing.T) {
	st := store.NewMemoryStore()
	v := seedVoucher(t, st, "user0001", domain.VoucherStatusRevoked)

	dev := &fakeDevice{
		listSessions: func(context.Context, string) ([]domain.Session, error) {
			return []domain.Session{{ID: "s1", VoucherCode: "user0001"}}, nil
		},
	}
	ctrl := NewSessionController(st, dev, nil, nil, testLogger())

	_, err := ctrl.ListActive(context.Background(), testDeviceID)
	require.NoError(t, err)

	got, err := st.GetVoucher(context.Background(), testDeviceID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VoucherStatusRevoked, got.Status, "transitions are one-directional")
}

func TestListActive_ObservesExpiry(t *testing.T) {
	st := store.NewMemoryStore()
	gone := seedVoucher(t, st, "user0001", domain.VoucherStatusActive)
	still := seedVoucher(t, st, "user0002", domain.VoucherStatusActive)
	fresh := seedVoucher(t, st, "user0003", domain.VoucherStatusUnused)

	dev := &fakeDevice{
		listSessions: func(context.Context, string) ([]domain.Session, error) {
			return []domain.Session{{ID: "s2", VoucherCode: "user0002"}}, nil
		},
	}
	b := &recordingBroadcaster{}
	ctrl := NewSessionController(st, dev, b, nil, testLogger())

	_, err := ctrl.ListActive(context.Background(), testDeviceID)
	require.NoError(t, err)
	assert.Contains(t, b.events, EventSessionsRefreshed)

	got, err := st.GetVoucher(context.Background(), testDeviceID, gone.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VoucherStatusExpired, got.Status, "device ended the session")

	got, err = st.GetVoucher(context.Background(), testDeviceID, still.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VoucherStatusActive, got.Status)

	got, err = st.GetVoucher(context.Background(), testDeviceID, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VoucherStatusUnused, got.Status, "never-used vouchers do not expire here")
}

func TestListActive_Unreachable(t *testing.T) {
	st := store.NewMemoryStore()
	dev := &fakeDevice{
		listSessions: func(context.Context, string) ([]domain.Session, error) {
			return nil, deviceUnreachable()
		},
	}
	ctrl := NewSessionController(st, dev, nil, nil, testLogger())

	_, err := ctrl.ListActive(context.Background(), testDeviceID)
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "DEVICE_UNREACHABLE", apiErr.ErrorCode)
}

func TestTerminate_RevokesVoucherAndBroadcasts(t *testing.T) {
	st := store.NewMemoryStore()
	v := seedVoucher(t, st, "user0001", domain.VoucherStatusActive)

	dev := &fakeDevice{
		listSessions: func(context.Context, string) ([]domain.Session, error) {
			return []domain.Session{{ID: "s1", VoucherCode: "user0001"}}, nil
		},
	}
	b := &recordingBroadcaster{}
	ctrl := NewSessionController(st, dev, b, nil, testLogger())

	require.NoError(t, ctrl.Terminate(context.Background(), testDeviceID, "s1"))
	assert.Equal(t, []string{"s1"}, dev.terminated)
	assert.Contains(t, b.events, EventSessionTerminated)

	got, err := st.GetVoucher(context.Background(), testDeviceID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VoucherStatusRevoked, got.Status)
	assert.Empty(t, got.SessionID)
}

func TestTerminate_SessionNotFound(t *testing.T) {
	st := store.NewMemoryStore()
	dev := &fakeDevice{
		listSessions: func(context.Context, string) ([]domain.Session, error) {
			return nil, nil
		},
	}
	ctrl := NewSessionController(st, dev, nil, nil, testLogger())

	err := ctrl.Terminate(context.Background(), testDeviceID, "gone")
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NOT_FOUND", apiErr.ErrorCode)
	assert.Empty(t, dev.terminated, "no kick issued for an unknown session")
}

func TestTerminate_DeviceFailureSurfaces(t *testing.T) {
	st := store.NewMemoryStore()
	v := seedVoucher(t, st, "user0001", domain.VoucherStatusActive)

	dev := &fakeDevice{
		listSessions: func(context.Context, string) ([]domain.Session, error) {
			return []domain.Session{{ID: "s1", VoucherCode: "user0001"}}, nil
		},
		terminateSession: func(context.Context, string, string) error {
			return deviceUnreachable()
		},
	}
	ctrl := NewSessionController(st, dev, nil, nil, testLogger())

	err := ctrl.Terminate(context.Background(), testDeviceID, "s1")
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "DEVICE_UNREACHABLE", apiErr.ErrorCode)

	// The voucher is not revoked when the kick did not happen.
	got, err := st.GetVoucher(context.Background(), testDeviceID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VoucherStatusActive, got.Status)
}
