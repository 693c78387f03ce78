package customers

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

type mockRepository struct {
	customers map[int64]Customer
	nextID    int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{customers: map[int64]Customer{}, nextID: 1}
}

func (m *mockRepository) Get(ctx context.Context, id int64) (Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return Customer{}, shared.ErrNotFound
	}
	return c, nil
}

func (m *mockRepository) GetByCode(ctx context.Context, code string) (Customer, error) {
	for _, c := range m.customers {
		if c.Code == code {
			return c, nil
		}
	}
	return Customer{}, shared.ErrNotFound
}

func (m *mockRepository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	var out []Customer
	for _, c := range m.customers {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *mockRepository) Create(ctx context.Context, c Customer) (Customer, error) {
	c.ID = m.nextID
	m.nextID++
	m.customers[c.ID] = c
	return c, nil
}

func (m *mockRepository) NextCode(ctx context.Context) (string, error) {
	return fmt.Sprintf("CUST-%05d", m.nextID), nil
}

func TestCreateCustomerGeneratesCode(t *testing.T) {
	svc := NewService(newMockRepository())
	c, err := svc.Create(context.Background(), CreateCustomerRequest{Name: "Toko Sari", CustomerType: "wholesale"}, shared.Actor{Name: "ana"})
	require.NoError(t, err)
	assert.Equal(t, "CUST-00001", c.Code)
	assert.Equal(t, TypeWholesale, c.CustomerType)
	assert.Equal(t, "ana", c.CreatedBy)
}

func TestCreateCustomerRejectsDuplicateCode(t *testing.T) {
	svc := NewService(newMockRepository())
	_, err := svc.Create(context.Background(), CreateCustomerRequest{Code: "C1", Name: "A", CustomerType: TypeRetail}, shared.SystemActor)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateCustomerRequest{Code: "C1", Name: "B", CustomerType: TypeRetail}, shared.SystemActor)
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCustomerTypeLookup(t *testing.T) {
	svc := NewService(newMockRepository())
	c, err := svc.Create(context.Background(), CreateCustomerRequest{Name: "Depot", CustomerType: TypeDistributor}, shared.SystemActor)
	require.NoError(t, err)

	kind, err := svc.CustomerType(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, TypeDistributor, kind)

	_, err = svc.CustomerType(context.Background(), 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateCustomerValidatesType(t *testing.T) {
	svc := NewService(newMockRepository())
	_, err := svc.Create(context.Background(), CreateCustomerRequest{Name: "X", CustomerType: "VIP"}, shared.SystemActor)
	require.ErrorIs(t, err, shared.ErrValidation)
}
