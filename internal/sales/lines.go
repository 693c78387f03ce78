package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/audit"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// AddItem appends a line item and reserves its quantity.
func (s *Service) AddItem(ctx context.Context, orderID int64, in ItemInput, actor shared.Actor) (LineItem, error) {
	if err := in.validate(); err != nil {
		return LineItem{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return LineItem{}, err
	}
	if err := EnsureMutable(order); err != nil {
		return LineItem{}, err
	}
	if err := s.stock.EnsureReservable(ctx, in.StockLotID, 0, in.Quantity); err != nil {
		return LineItem{}, err
	}

	item, err := s.addItem(ctx, orderID, in)
	if err != nil {
		return LineItem{}, err
	}
	if err := s.afterItemsChanged(ctx, orderID, actor); err != nil {
		return LineItem{}, err
	}
	s.record(ctx, audit.ActorEvent(orderID, audit.ItemAdded, actor, map[string]any{
		"line_item_id": item.ID,
		"stock_lot_id": item.StockLotID,
		"quantity":     item.Quantity,
	}))
	return item, nil
}

// addItem inserts the row then reserves. A rejected reservation removes the row
// again so no unreserved item is left behind.
func (s *Service) addItem(ctx context.Context, orderID int64, in ItemInput) (LineItem, error) {
	item, err := s.repo.InsertItem(ctx, LineItem{
		OrderID:    orderID,
		StockLotID: in.StockLotID,
		Quantity:   in.Quantity,
		UnitPrice:  in.UnitPrice,
		LineTotal:  lineTotal(in.Quantity, in.UnitPrice),
	})
	if err != nil {
		return LineItem{}, fmt.Errorf("insert line item: %w", err)
	}
	if _, err := s.stock.Reserve(ctx, inventory.ReserveInput{
		OrderID:    orderID,
		LineItemID: item.ID,
		StockLotID: item.StockLotID,
		Quantity:   item.Quantity,
	}); err != nil {
		if derr := s.repo.DeleteItem(ctx, item.ID); derr != nil {
			s.logger.Error("remove unreserved line item",
				slog.Int64("order_id", orderID),
				slog.Int64("line_item_id", item.ID),
				slog.Any("error", derr))
		}
		return LineItem{}, err
	}
	return item, nil
}

// UpdateItem changes lot, quantity or price of an undelivered item and swaps
// its reservation.
func (s *Service) UpdateItem(ctx context.Context, orderID, itemID int64, in ItemInput, actor shared.Actor) (LineItem, error) {
	if err := in.validate(); err != nil {
		return LineItem{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return LineItem{}, err
	}
	if err := EnsureMutable(order); err != nil {
		return LineItem{}, err
	}
	item, err := s.repo.GetItem(ctx, orderID, itemID)
	if err != nil {
		return LineItem{}, err
	}
	if in.Quantity < item.QuantityDelivered-epsilon {
		return LineItem{}, fmt.Errorf("%w: quantity %v below delivered %v", shared.ErrQuantityBelowDelivered, in.Quantity, item.QuantityDelivered)
	}
	if item.QuantityDelivered > epsilon {
		return LineItem{}, fmt.Errorf("line item %d: %w", itemID, shared.ErrDeliveredItemImmutable)
	}

	previous, err := s.stock.GetReservation(ctx, itemID)
	hadReservation := err == nil
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return LineItem{}, err
	}
	if _, err := s.stock.Replace(ctx, inventory.ReplaceInput{
		OrderID:    orderID,
		LineItemID: itemID,
		StockLotID: in.StockLotID,
		Quantity:   in.Quantity,
	}); err != nil {
		return LineItem{}, err
	}
	before := item
	item.StockLotID = in.StockLotID
	item.Quantity = in.Quantity
	item.UnitPrice = in.UnitPrice
	item.LineTotal = lineTotal(in.Quantity, in.UnitPrice)
	updated, err := s.repo.UpdateItem(ctx, item)
	if err != nil {
		s.revertReservation(ctx, itemID, previous, hadReservation)
		return LineItem{}, fmt.Errorf("update line item: %w", err)
	}
	if err := s.afterItemsChanged(ctx, orderID, actor); err != nil {
		return LineItem{}, err
	}
	s.record(ctx, audit.ActorEvent(orderID, audit.ItemUpdated, actor, map[string]any{
		"line_item_id":  itemID,
		"from_lot":      before.StockLotID,
		"to_lot":        updated.StockLotID,
		"from_quantity": before.Quantity,
		"to_quantity":   updated.Quantity,
	}))
	return updated, nil
}

// DeleteItem removes an undelivered item and releases its reservation.
func (s *Service) DeleteItem(ctx context.Context, orderID, itemID int64, actor shared.Actor) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := EnsureMutable(order); err != nil {
		return err
	}
	item, err := s.repo.GetItem(ctx, orderID, itemID)
	if err != nil {
		return err
	}
	if item.QuantityDelivered > epsilon {
		return fmt.Errorf("line item %d: %w", itemID, shared.ErrDeliveredItemImmutable)
	}
	if err := s.stock.Release(ctx, itemID); err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, itemID); err != nil {
		return fmt.Errorf("delete line item: %w", err)
	}
	if err := s.afterItemsChanged(ctx, orderID, actor); err != nil {
		return err
	}
	s.record(ctx, audit.ActorEvent(orderID, audit.ItemDeleted, actor, map[string]any{
		"line_item_id": itemID,
		"stock_lot_id": item.StockLotID,
		"quantity":     item.Quantity,
	}))
	return nil
}

// afterItemsChanged recomputes the gross total and the payment status that depends on it.
func (s *Service) afterItemsChanged(ctx context.Context, orderID int64, actor shared.Actor) error {
	if _, err := s.repo.RecomputeTotal(ctx, orderID); err != nil {
		return fmt.Errorf("recompute order total: %w", err)
	}
	s.rederive(ctx, orderID, actor)
	return nil
}

// revertReservation puts back what the item held before a replace whose item
// write then failed.
func (s *Service) revertReservation(ctx context.Context, itemID int64, previous inventory.Reservation, had bool) {
	var err error
	if had {
		err = s.stock.Restore(ctx, previous)
	} else {
		err = s.stock.Release(ctx, itemID)
	}
	if err != nil {
		s.logger.Error("revert reservation after failed item update",
			slog.Int64("line_item_id", itemID), slog.Any("error", err))
	}
}
