package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

var ErrAlreadyExists = fmt.Errorf("%w: customer code already exists", shared.ErrConflict)

type Repository interface {
	Get(ctx context.Context, id int64) (Customer, error)
	GetByCode(ctx context.Context, code string) (Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
	Create(ctx context.Context, customer Customer) (Customer, error)
	NextCode(ctx context.Context) (string, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, req CreateCustomerRequest, actor shared.Actor) (Customer, error) {
	if strings.TrimSpace(req.Name) == "" {
		return Customer{}, fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	kind := strings.ToUpper(strings.TrimSpace(req.CustomerType))
	switch kind {
	case TypeRetail, TypeWholesale, TypeDistributor:
	default:
		return Customer{}, fmt.Errorf("%w: unknown customer type %q", shared.ErrValidation, req.CustomerType)
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		next, err := s.repo.NextCode(ctx)
		if err != nil {
			return Customer{}, fmt.Errorf("generate customer code: %w", err)
		}
		code = next
	} else {
		_, err := s.repo.GetByCode(ctx, code)
		if err == nil {
			return Customer{}, fmt.Errorf("%w: %s", ErrAlreadyExists, code)
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return Customer{}, fmt.Errorf("check existing customer: %w", err)
		}
	}

	customer, err := s.repo.Create(ctx, Customer{
		Code:         code,
		Name:         strings.TrimSpace(req.Name),
		CustomerType: kind,
		Email:        req.Email,
		Phone:        req.Phone,
		Address:      req.Address,
		IsActive:     true,
		CreatedBy:    actor.String(),
	})
	if err != nil {
		return Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return customer, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	return s.repo.List(ctx, req)
}

// CustomerType returns the type of an existing customer. Unknown ids yield ErrNotFound.
func (s *Service) CustomerType(ctx context.Context, id int64) (string, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return c.CustomerType, nil
}
