package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"voucherd/internal/device"
	"voucherd/pkg/contracts/domain"
)

const testDeviceID = "6a6f2b4e-9d1a-4b37-9f2e-1c2d3e4f5a6b"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDevice implements device.Client with overridable behaviour per test.
type fakeDevice struct {
	getDevice        func(ctx context.Context, deviceID string) (domain.Device, error)
	listSessions     func(ctx context.Context, deviceID string) ([]domain.Session, error)
	terminateSession func(ctx context.Context, deviceID, sessionID string) error
	createProfile    func(ctx context.Context, profile domain.Profile) error
	deleteProfile    func(ctx context.Context, deviceID, name string) error

	terminated []string
}

func (f *fakeDevice) GetDevice(ctx context.Context, deviceID string) (domain.Device, error) {
	if f.getDevice != nil {
		return f.getDevice(ctx, deviceID)
	}
	return domain.Device{ID: deviceID}, nil
}

func (f *fakeDevice) ListSessions(ctx context.Context, deviceID string) ([]domain.Session, error) {
	if f.listSessions != nil {
		return f.listSessions(ctx, deviceID)
	}
	return nil, nil
}

func (f *fakeDevice) TerminateSession(ctx context.Context, deviceID, sessionID string) error {
	f.terminated = append(f.terminated, sessionID)
	if f.terminateSession != nil {
		return f.terminateSession(ctx, deviceID, sessionID)
	}
	return nil
}

func (f *fakeDevice) CreateProfile(ctx context.Context, profile domain.Profile) error {
	if f.createProfile != nil {
		return f.createProfile(ctx, profile)
	}
	return nil
}

func (f *fakeDevice) DeleteProfile(ctx context.Context, deviceID, name string) error {
	if f.deleteProfile != nil {
		return f.deleteProfile(ctx, deviceID, name)
	}
	return nil
}

// recordingBroadcaster captures broadcast events for assertions.
type recordingBroadcaster struct {
	events []string
}

func (r *recordingBroadcaster) Broadcast(event string, _ any) {
	r.events = append(r.events, event)
}

func deviceUnreachable() error {
	return fmt.Errorf("%w: connection refused", device.ErrUnreachable)
}

func deviceMissing() error {
	return fmt.Errorf("%w: no such device", device.ErrNotFound)
}

func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}
