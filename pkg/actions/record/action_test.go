package record_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pulseops/automation/pkg/actions/record"
	"github.com/pulseops/automation/pkg/log"
	"github.com/pulseops/automation/pkg/mocks"
	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/protocol"
)

func TestCreateRecord(t *testing.T) {
	t.Parallel()

	store := &mocks.MockRecordStore{}
	store.On("CreateRecord", mock.Anything, "invoice", map[string]any{"amount": float64(99)}).
		Return("rec-1", nil).Once()

	handler, err := record.NewCreateFactory(store).Create(models.ParamsOf(map[string]any{
		"entity": "invoice",
		"fields": map[string]any{"amount": float64(99)},
	}))
	require.NoError(t, err)

	result, err := handler.Execute(context.Background(), &models.Execution{}, log.WithModule("test"))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"entity": "invoice", "record_id": "rec-1"}, result)
	store.AssertExpectations(t)
}

func TestUpdateRecord(t *testing.T) {
	t.Parallel()

	store := &mocks.MockRecordStore{}
	store.On("UpdateRecord", mock.Anything, "invoice", "rec-1", map[string]any{"status": "paid"}).
		Return(nil).Once()

	handler, err := record.NewUpdateFactory(store).Create(models.ParamsOf(map[string]any{
		"entity":    "invoice",
		"record_id": "rec-1",
		"fields":    map[string]any{"status": "paid"},
	}))
	require.NoError(t, err)

	result, err := handler.Execute(context.Background(), &models.Execution{}, log.WithModule("test"))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"entity": "invoice", "record_id": "rec-1"}, result)
	store.AssertExpectations(t)
}

func TestCreateRejectsNonObjectFields(t *testing.T) {
	t.Parallel()

	_, err := record.NewCreateFactory(&mocks.MockRecordStore{}).Create(models.ParamsOf(map[string]any{
		"entity": "invoice",
		"fields": "not an object",
	}))
	require.Error(t, err)
	assert.Equal(t, protocol.FailureValidation, protocol.KindOf(err))
}

func TestUntypedStoreErrorBecomesTransient(t *testing.T) {
	t.Parallel()

	store := &mocks.MockRecordStore{}
	store.On("CreateRecord", mock.Anything, "invoice", mock.Anything).
		Return("", assert.AnError).Once()

	handler, err := record.NewCreateFactory(store).Create(models.ParamsOf(map[string]any{
		"entity": "invoice",
		"fields": map[string]any{},
	}))
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), &models.Execution{}, log.WithModule("test"))
	require.Error(t, err)
	assert.Equal(t, protocol.FailureTransient, protocol.KindOf(err))
}

func TestTypedStoreFailurePassesThrough(t *testing.T) {
	t.Parallel()

	store := &mocks.MockRecordStore{}
	store.On("UpdateRecord", mock.Anything, "invoice", "rec-404", mock.Anything).
		Return(protocol.Terminal("record does not exist", nil)).Once()

	handler, err := record.NewUpdateFactory(store).Create(models.ParamsOf(map[string]any{
		"entity":    "invoice",
		"record_id": "rec-404",
		"fields":    map[string]any{},
	}))
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), &models.Execution{}, log.WithModule("test"))
	require.Error(t, err)
	assert.Equal(t, protocol.FailureTerminal, protocol.KindOf(err))
}

func TestWrappedStoreFailurePassesThrough(t *testing.T) {
	t.Parallel()

	store := &mocks.MockRecordStore{}
	store.On("CreateRecord", mock.Anything, "invoice", mock.Anything).
		Return("", fmt.Errorf("erp sync: %w", protocol.Terminal("duplicate record", nil))).Once()

	handler, err := record.NewCreateFactory(store).Create(models.ParamsOf(map[string]any{
		"entity": "invoice",
		"fields": map[string]any{},
	}))
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), &models.Execution{}, log.WithModule("test"))
	require.Error(t, err)
	assert.Equal(t, protocol.FailureTerminal, protocol.KindOf(err))
}
