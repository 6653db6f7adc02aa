package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"voucherd/pkg/contracts/domain"
)

// MemoryStore is an in-memory Store. It backs tests and DSN-less deployments
// and mirrors PostgresStore semantics, including batch atomicity.
type MemoryStore struct {
	mu        sync.RWMutex
	vouchers  map[string]domain.Voucher        // keyed by voucher ID
	codes     map[string]string                // device_id+code -> voucher ID; entries outlive deletes
	profiles  map[string]domain.Profile        // device_id+name
	templates map[string]domain.VoucherTemplate // device_id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vouchers:  make(map[string]domain.Voucher),
		codes:     make(map[string]string),
		profiles:  make(map[string]domain.Profile),
		templates: make(map[string]domain.VoucherTemplate),
	}
}

func codeKey(deviceID, code string) string    { return deviceID + "\x00" + code }
func profileKey(deviceID, name string) string { return deviceID + "\x00" + name }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() {}

func (s *MemoryStore) CreateVoucherBatch(_ context.Context, vouchers []domain.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before mutating anything so a collision
	// mid-batch cannot leave a partial commit behind.
	seen := make(map[string]struct{}, len(vouchers))
	for _, v := range vouchers {
		key := codeKey(v.DeviceID, v.Code)
		if _, taken := s.codes[key]; taken {
			return fmt.Errorf("voucher %q: %w", v.Code, ErrDuplicateCode)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("voucher %q: %w", v.Code, ErrDuplicateCode)
		}
		seen[key] = struct{}{}
	}

	for _, v := range vouchers {
		s.vouchers[v.ID] = v
		s.codes[codeKey(v.DeviceID, v.Code)] = v.ID
	}
	return nil
}

func (s *MemoryStore) CodeExists(_ context.Context, deviceID, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, taken := s.codes[codeKey(deviceID, code)]
	return taken, nil
}

func (s *MemoryStore) GetVoucher(_ context.Context, deviceID, voucherID string) (domain.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vouchers[voucherID]
	if !ok || v.DeviceID != deviceID {
		return domain.Voucher{}, ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) GetVoucherByCode(_ context.Context, deviceID, code string) (domain.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[codeKey(deviceID, code)]
	if !ok {
		return domain.Voucher{}, ErrNotFound
	}
	v, ok := s.vouchers[id]
	if !ok {
		// Retired voucher; only its code tombstone remains.
		return domain.Voucher{}, ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) ListVouchers(_ context.Context, deviceID string) ([]domain.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Voucher
	for _, v := range s.vouchers {
		if v.DeviceID == deviceID {
			out = append(out, v)
		}
	}
	sortVouchers(out)
	return out, nil
}

func (s *MemoryStore) GetVouchersByIDs(_ context.Context, deviceID string, voucherIDs []string) ([]domain.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Voucher
	for _, id := range voucherIDs {
		if v, ok := s.vouchers[id]; ok && v.DeviceID == deviceID {
			out = append(out, v)
		}
	}
	sortVouchers(out)
	return out, nil
}

func (s *MemoryStore) DeleteVoucher(_ context.Context, deviceID, voucherID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vouchers[voucherID]
	if !ok || v.DeviceID != deviceID {
		return ErrNotFound
	}
	// The record goes, the code entry stays: a deleted voucher's code is
	// still taken in its device's namespace forever.
	delete(s.vouchers, voucherID)
	return nil
}

func (s *MemoryStore) UpdateVoucherStatus(_ context.Context, deviceID, voucherID string, status domain.VoucherStatus, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vouchers[voucherID]
	if !ok || v.DeviceID != deviceID {
		return ErrNotFound
	}
	v.Status = status
	v.SessionID = sessionID
	s.vouchers[voucherID] = v
	return nil
}

func (s *MemoryStore) CreateProfile(_ context.Context, profile domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := profileKey(profile.DeviceID, profile.Name)
	if _, exists := s.profiles[key]; exists {
		return fmt.Errorf("profile %q: %w", profile.Name, ErrDuplicateProfile)
	}
	s.profiles[key] = profile
	return nil
}

func (s *MemoryStore) GetProfile(_ context.Context, deviceID, name string) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[profileKey(deviceID, name)]
	if !ok {
		return domain.Profile{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListProfiles(_ context.Context, deviceID string) ([]domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Profile
	for _, p := range s.profiles {
		if p.DeviceID == deviceID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) DeleteProfile(_ context.Context, deviceID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := profileKey(deviceID, name)
	if _, ok := s.profiles[key]; !ok {
		return ErrNotFound
	}
	delete(s.profiles, key)
	return nil
}

func (s *MemoryStore) CountVouchersByProfile(_ context.Context, deviceID, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, v := range s.vouchers {
		if v.DeviceID == deviceID && v.Profile == name {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) GetTemplate(_ context.Context, deviceID string) (domain.VoucherTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[deviceID]
	if !ok {
		return domain.VoucherTemplate{}, ErrNotFound
	}
	return tpl, nil
}

func (s *MemoryStore) SaveTemplate(_ context.Context, tpl domain.VoucherTemplate) (domain.VoucherTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.templates[tpl.DeviceID]
	if !exists {
		if tpl.Version != 0 {
			return domain.VoucherTemplate{}, ErrVersionConflict
		}
	} else if current.Version != tpl.Version {
		return domain.VoucherTemplate{}, ErrVersionConflict
	}

	tpl.Version++
	tpl.UpdatedAt = time.Now().UTC()
	s.templates[tpl.DeviceID] = tpl
	return tpl, nil
}

func sortVouchers(vouchers []domain.Voucher) {
	sort.Slice(vouchers, func(i, j int) bool {
		if vouchers[i].CreatedAt.Equal(vouchers[j].CreatedAt) {
			return vouchers[i].Code < vouchers[j].Code
		}
		return vouchers[i].CreatedAt.Before(vouchers[j].CreatedAt)
	})
}
