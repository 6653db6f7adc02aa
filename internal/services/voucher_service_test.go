package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"voucherd/internal/codegen"
	apierrors "voucherd/internal/errors"
	"voucherd/internal/store"
	api "voucherd/pkg/contracts/api/v1"
	"voucherd/pkg/contracts/domain"
)

func newVoucherService(st store.Store, dev *fakeDevice, b EventBroadcaster) *VoucherService {
	return NewVoucherService(st, codegen.New(3), dev, b, nil, testLogger(), 500, 4)
}

func seedProfile(t *testing.T, st store.Store) {
	t.Helper()
	require.NoError(t, st.CreateProfile(context.Background(), domain.Profile{
		DeviceID:    testDeviceID,
		Name:        "2h-basic",
		RateLimit:   "2M/2M",
		SharedUsers: 1,
		CreatedAt:   time.Now().UTC(),
	}))
}

func TestGenerateBatch_SequentialCommit(t *testing.T) {
	st := store.NewMemoryStore()
	seedProfile(t, st)
	b := &recordingBroadcaster{}
	svc := newVoucherService(st, &fakeDevice{}, b)

	batch, err := svc.GenerateBatch(context.Background(), testDeviceID, api.BatchGenerateRequest{
		Count:        10,
		NamingPolicy: "sequential",
		Prefix:       "user",
		Profile:      "2h-basic",
	})
	require.NoError(t, err)
	require.Len(t, batch.Vouchers, 10)
	assert.Equal(t, "user0001", batch.Vouchers[0].Code)
	assert.Equal(t, "user0010", batch.Vouchers[9].Code)
	assert.Equal(t, domain.VoucherStatusUnused, batch.Vouchers[0].Status)
	assert.Contains(t, b.events, EventBatchCreated)

	persisted, err := st.ListVouchers(context.Background(), testDeviceID)
	require.NoError(t, err)
	assert.Len(t, persisted, 10)
}

func TestGenerateBatch_EmptyPrefixRejected(t *testing.T) {
	st := store.NewMemoryStore()
	seedProfile(t, st)
	svc := newVoucherService(st, &fakeDevice{}, nil)

	_, err := svc.GenerateBatch(context.Background(), testDeviceID, api.BatchGenerateRequest{
		Count:        1,
		NamingPolicy: "sequential",
		Profile:      "2h-basic",
	})
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "VALIDATION_FAILED", apiErr.ErrorCode)
	detail, ok := apiErr.Details.(apierrors.ValidationError)
	require.True(t, ok)
	assert.Equal(t, "prefix", detail.Field)

	vouchers, _ := st.ListVouchers(context.Background(), testDeviceID)
	assert.Empty(t, vouchers, "rejected batch committed nothing")
}

func TestGenerateBatch_UnknownDevice(t *testing.T) {
	st := store.NewMemoryStore()
	seedProfile(t, st)
	dev := &fakeDevice{
		getDevice: func(context.Context, string) (domain.Device, error) {
			return domain.Device{}, deviceMissing()
		},
	}
	svc := newVoucherService(st, dev, nil)

	_, err := svc.GenerateBatch(context.Background(), testDeviceID, api.BatchGenerateRequest{
		Count:        1,
		NamingPolicy: "sequential",
		Prefix:       "user",
		Profile:      "2h-basic",
	})
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NOT_FOUND", apiErr.ErrorCode)
}

func TestGenerateBatch_UnknownProfile(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newVoucherService(st, &fakeDevice{}, nil)

	_, err := svc.GenerateBatch(context.Background(), testDeviceID, api.BatchGenerateRequest{
		Count:        5,
		NamingPolicy: "sequential",
		Prefix:       "user",
		Profile:      "missing",
	})
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_PROFILE", apiErr.ErrorCode)

	// Nothing committed.
	vouchers, _ := st.ListVouchers(context.Background(), testDeviceID)
	assert.Empty(t, vouchers)
}

func TestGenerateBatch_TimeAndDataLimits(t *testing.T) {
	st := store.NewMemoryStore()
	seedProfile(t, st)
	svc := newVoucherService(st, &fakeDevice{}, nil)

	batch, err := svc.GenerateBatch(context.Background(), testDeviceID, api.BatchGenerateRequest{
		Count:        1,
		NamingPolicy: "random",
		Profile:      "2h-basic",
		TimeLimit:    "2h",
		DataLimit:    5 << 30,
	})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, batch.Vouchers[0].TimeLimit)
	assert.Equal(t, int64(5<<30), batch.Vouchers[0].QuotaBytes)
}

func TestGenerateBatch_InvalidTimeLimit(t *testing.T) {
	st := store.NewMemoryStore()
	seedProfile(t, st)
	svc := newVoucherService(st, &fakeDevice{}, nil)

	_, err := svc.GenerateBatch(context.Background(), testDeviceID, api.BatchGenerateRequest{
		Count:        1,
		NamingPolicy: "random",
		Profile:      "2h-basic",
		TimeLimit:    "two hours",
	})
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "VALIDATION_FAILED", apiErr.ErrorCode)
}

func TestGenerateBatch_ExhaustionIsAtomic(t *testing.T) {
	st := store.NewMemoryStore()
	seedProfile(t, st)
	svc := newVoucherService(st, &fakeDevice{}, nil)

	// Occupy user0001..user0015 so a 5-code batch burns its 3x budget.
	first, err := svc.GenerateBatch(context.Background(), testDeviceID, api.BatchGenerateRequest{
		Count:        15,
		NamingPolicy: "sequential",
		Prefix:       "user",
		Profile:      "2h-basic",
	})
	require.NoError(t, err)
	require.Len(t, first.Vouchers, 15)

	_, err = svc.GenerateBatch(context.Background(), testDeviceID, api.BatchGenerateRequest{
		Count:        5,
		NamingPolicy: "sequential",
		Prefix:       "user",
		Profile:      "2h-basic",
	})
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "GENERATION_EXHAUSTED", apiErr.ErrorCode)

	vouchers, _ := st.ListVouchers(context.Background(), testDeviceID)
	assert.Len(t, vouchers, 15, "failed batch committed nothing")
}

func TestDelete_ActiveVoucherTerminatesFirst(t *testing.T) {
	st := store.NewMemoryStore()
	seedProfile(t, st)
	dev := &fakeDevice{}
	svc := newVoucherService(st, dev, nil)

	batch, err := svc.GenerateBatch(context.Background(), testDeviceID, api.BatchGenerateRequest{
		Count:        1,
		NamingPolicy: "sequential",
		Prefix:       "user",
		Profile:      "2h-basic",
	})
	require.NoError(t, err)
	v := batch.Vouchers[0]
	require.NoError(t, st.UpdateVoucherStatus(context.Background(), testDeviceID, v.ID, domain.VoucherStatusActive, "sess-1"))

	require.NoError(t, svc.Delete(context.Background(), testDeviceID, v.ID))
	assert.Equal(t, []string{"sess-1"}, dev.terminated)

	_, err = st.GetVoucher(context.Background(), testDeviceID, v.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete_UnreachableDeviceAborts(t *testing.T) {
	st := store.NewMemoryStore()
	seedProfile(t, st)
	dev := &fakeDevice{
		terminateSession: func(context.Context, string, string) error {
			return deviceUnreachable()
		},
	}
	svc := newVoucherService(st, dev, nil)

	batch, err := svc.GenerateBatch(context.Background(), testDeviceID, api.BatchGenerateRequest{
		Count:        1,
		NamingPolicy: "sequential",
		Prefix:       "user",
		Profile:      "2h-basic",
	})
	require.NoError(t, err)
	v := batch.Vouchers[0]
	require.NoError(t, st.UpdateVoucherStatus(context.Background(), testDeviceID, v.ID, domain.VoucherStatusActive, "sess-1"))

	err = svc.Delete(context.Background(), testDeviceID, v.ID)
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "DEVICE_UNREACHABLE", apiErr.ErrorCode)

	// Voucher survives the aborted delete.
	_, err = st.GetVoucher(context.Background(), testDeviceID, v.ID)
	assert.NoError(t, err)
}

func TestDelete_CodeNeverReissued(t *testing.T) {
	st := store.NewMemoryStore()
	seedProfile(t, st)
	svc := newVoucherService(st, &fakeDevice{}, nil)

	first, err := svc.GenerateBatch(context.Background(), testDeviceID, api.BatchGenerateRequest{
		Count:        1,
		NamingPolicy: "sequential",
		Prefix:       "user",
		Profile:      "2h-basic",
	})
	require.NoError(t, err)
	require.Equal(t, "user0001", first.Vouchers[0].Code)

	require.NoError(t, svc.Delete(context.Background(), testDeviceID, first.Vouchers[0].ID))

	// The deleted code stays retired: the next batch skips past it.
	second, err := svc.GenerateBatch(context.Background(), testDeviceID, api.BatchGenerateRequest{
		Count:        1,
		NamingPolicy: "sequential",
		Prefix:       "user",
		Profile:      "2h-basic",
	})
	require.NoError(t, err)
	assert.Equal(t, "user0002", second.Vouchers[0].Code)
}

func TestExportXLSX(t *testing.T) {
	st := store.NewMemoryStore()
	seedProfile(t, st)
	svc := newVoucherService(st, &fakeDevice{}, nil)

	_, err := svc.GenerateBatch(context.Background(), testDeviceID, api.BatchGenerateRequest{
		Count:        3,
		NamingPolicy: "sequential",
		Prefix:       "user",
		Profile:      "2h-basic",
	})
	require.NoError(t, err)

	data, err := svc.ExportXLSX(context.Background(), testDeviceID, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytesReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Vouchers")
	require.NoError(t, err)
	require.Len(t, rows, 4, "header plus three vouchers")
	assert.Equal(t, "Code", rows[0][0])
	assert.Equal(t, "user0001", rows[1][0])
}
