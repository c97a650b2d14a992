// Package mocks provides testify mocks for the protocol collaborator
// contracts.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/protocol"
)

// MockSender is a mock implementation of protocol.Sender.
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, channel models.ChannelType, recipient, content string) (*protocol.SendResult, error) {
	args := m.Called(ctx, channel, recipient, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.SendResult), args.Error(1)
}

// MockDirectoryResolver is a mock implementation of protocol.DirectoryResolver.
type MockDirectoryResolver struct {
	mock.Mock
}

func (m *MockDirectoryResolver) ResolveGroup(ctx context.Context, name string) ([]protocol.Contact, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]protocol.Contact), args.Error(1)
}

func (m *MockDirectoryResolver) ResolveFilter(ctx context.Context, spec string) ([]protocol.Contact, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]protocol.Contact), args.Error(1)
}

// MockRecordStore is a mock implementation of protocol.RecordStore.
type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) CreateRecord(ctx context.Context, entity string, fields map[string]any) (string, error) {
	args := m.Called(ctx, entity, fields)

	return args.String(0), args.Error(1)
}

func (m *MockRecordStore) UpdateRecord(ctx context.Context, entity, recordID string, fields map[string]any) error {
	args := m.Called(ctx, entity, recordID, fields)

	return args.Error(0)
}

// MockNotifier is a mock implementation of the engine's notifier contract.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, notification models.Notification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}
