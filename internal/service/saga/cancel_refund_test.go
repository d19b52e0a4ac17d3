package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

// confirmedOrder проводит заказ через сагу картой до confirmed.
func confirmedOrder(t *testing.T, h *harness) domain.Order {
	t.Helper()

	seedOrder(t, h.store.Repositories().Orders, domain.OrderStatusPending, domain.PaymentMethodCreditCard)
	order, err := h.orch.Execute(context.Background(), "order-1", cardInput())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", order.Status)
	}
	return order
}

func TestOrchestrator_Cancel_FromPending(t *testing.T) {
	h := newHarness(t, 5)
	seedOrder(t, h.store.Repositories().Orders, domain.OrderStatusPending, domain.PaymentMethodCreditCard)

	order, err := h.orch.Cancel(context.Background(), "order-1", "")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCanceled {
		t.Fatalf("expected canceled, got %s", order.Status)
	}
	timeline, _ := h.store.Repositories().Timeline.List("order-1")
	if len(timeline) != 1 || timeline[0].Reason != "canceled by request" {
		t.Fatalf("unexpected timeline: %+v", timeline)
	}
}

func TestOrchestrator_Cancel_FromReservedReleasesStock(t *testing.T) {
	h := newHarness(t, 5)
	repos := h.store.Repositories()
	seedOrder(t, repos.Orders, domain.OrderStatusPending, domain.PaymentMethodBoleto)
	if _, err := h.orch.Execute(context.Background(), "order-1", PaymentInput{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := balance(t, h); got != 3 {
		t.Fatalf("expected reservation, got %d", got)
	}

	order, err := h.orch.Cancel(context.Background(), "order-1", "customer changed mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCanceled {
		t.Fatalf("expected canceled, got %s", order.Status)
	}
	if got := balance(t, h); got != 5 {
		t.Fatalf("stock must be released, got %d", got)
	}
	if h.gateway.RefundCalls != 0 {
		t.Fatalf("unpaid order must not be refunded")
	}
}

func TestOrchestrator_Cancel_FromConfirmedRefunds(t *testing.T) {
	h := newHarness(t, 5)
	confirmedOrder(t, h)

	order, err := h.orch.Cancel(context.Background(), "order-1", "out of stock at warehouse")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCanceled {
		t.Fatalf("expected canceled, got %s", order.Status)
	}
	if h.gateway.RefundCalls != 1 {
		t.Fatalf("expected one refund, got %d", h.gateway.RefundCalls)
	}

	pay, err := h.store.Repositories().Payments.GetByOrder("order-1")
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if pay.Status != domain.PaymentStatusRefunded || pay.RefundedMinor != 2000 {
		t.Fatalf("payment must be fully refunded: %+v", pay)
	}
	if got := balance(t, h); got != 5 {
		t.Fatalf("stock must be released, got %d", got)
	}

	msgs := collectOutbox(t, h.store.Repositories().Outbox)
	if countEvents(msgs, domain.EventPaymentRefunded) != 1 || countEvents(msgs, domain.EventOrderCanceled) != 1 {
		t.Fatalf("cancel events missing: %v", eventTypes(msgs))
	}
}

func TestOrchestrator_Cancel_AlreadyCanceled(t *testing.T) {
	h := newHarness(t, 5)
	seedOrder(t, h.store.Repositories().Orders, domain.OrderStatusCanceled, domain.PaymentMethodCreditCard)

	order, err := h.orch.Cancel(context.Background(), "order-1", "again")
	if err != nil {
		t.Fatalf("cancel must be idempotent: %v", err)
	}
	if order.Version != 0 {
		t.Fatalf("canceled order must not be rewritten, version %d", order.Version)
	}
}

func TestOrchestrator_Cancel_OrderNotFound(t *testing.T) {
	h := newHarness(t, 5)

	if _, err := h.orch.Cancel(context.Background(), "missing", "x"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrchestrator_Cancel_RefundFailsKeepsOrder(t *testing.T) {
	h := newHarness(t, 5)
	confirmedOrder(t, h)
	h.gateway.RefundErr = domain.ErrPaymentTemporary

	order, err := h.orch.Cancel(context.Background(), "order-1", "x")
	if !errors.Is(err, domain.ErrPaymentTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("order must stay confirmed, got %s", order.Status)
	}
	if got := balance(t, h); got != 3 {
		t.Fatalf("stock must stay reserved, got %d", got)
	}
}

func TestOrchestrator_Cancel_ReservedCardVoidsAuthorization(t *testing.T) {
	h := newHarness(t, 5)
	repos := h.store.Repositories()
	seedOrder(t, repos.Orders, domain.OrderStatusPending, domain.PaymentMethodCreditCard)
	h.gateway.AcceptErr = domain.ErrPaymentTemporary
	if _, err := h.orch.Execute(context.Background(), "order-1", cardInput()); !errors.Is(err, domain.ErrPaymentTemporary) {
		t.Fatalf("expected temporary capture error, got %v", err)
	}

	order, err := h.orch.Cancel(context.Background(), "order-1", "checkout failed")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCanceled {
		t.Fatalf("expected canceled, got %s", order.Status)
	}
	if h.gateway.VoidCalls != 1 || h.gateway.RefundCalls != 0 {
		t.Fatalf("authorization must be voided, void=%d refund=%d", h.gateway.VoidCalls, h.gateway.RefundCalls)
	}
	pay, err := repos.Payments.GetByOrder("order-1")
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if pay.Status != domain.PaymentStatusVoided {
		t.Fatalf("payment row must be voided, got %s", pay.Status)
	}
	if got := balance(t, h); got != 5 {
		t.Fatalf("stock must be released, got %d", got)
	}
	msgs := collectOutbox(t, repos.Outbox)
	if countEvents(msgs, domain.EventPaymentVoided) != 1 {
		t.Fatalf("payment.voided not enqueued: %v", eventTypes(msgs))
	}
}

func TestOrchestrator_Cancel_ReservedPixIgnoresLatePayment(t *testing.T) {
	h := newHarness(t, 5)
	repos := h.store.Repositories()
	seedOrder(t, repos.Orders, domain.OrderStatusPending, domain.PaymentMethodPix)
	if _, err := h.orch.Execute(context.Background(), "order-1", PaymentInput{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := h.orch.Cancel(context.Background(), "order-1", "customer changed mind"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	pay, _ := repos.Payments.GetByOrder("order-1")
	if pay.Status != domain.PaymentStatusVoided {
		t.Fatalf("pix charge must be voided, got %s", pay.Status)
	}
	// Отменённый pix оплатить нельзя: уведомление ничего не возвращает.
	if err := h.gateway.Settle(pay.ExternalID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	order, err := h.orch.AcceptPayment(context.Background(), payment.MockGatewayName, pay.ExternalID)
	if err != nil {
		t.Fatalf("notification: %v", err)
	}
	if order.Status != domain.OrderStatusCanceled || h.gateway.RefundCalls != 0 {
		t.Fatalf("unexpected state: order=%s refunds=%d", order.Status, h.gateway.RefundCalls)
	}
	if len(h.hooked) != 0 {
		t.Fatalf("canceled order must not be confirmed")
	}
}

func TestOrchestrator_AcceptPayment_AfterCancelRefunds(t *testing.T) {
	h := newHarness(t, 5)
	repos := h.store.Repositories()
	seedOrder(t, repos.Orders, domain.OrderStatusPending, domain.PaymentMethodPix)
	if _, err := h.orch.Execute(context.Background(), "order-1", PaymentInput{}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	h.gateway.VoidErr = domain.ErrPaymentTemporary
	order, err := h.orch.Cancel(context.Background(), "order-1", "customer changed mind")
	if err != nil {
		t.Fatalf("void failure must not block cancel of an unpaid order: %v", err)
	}
	if order.Status != domain.OrderStatusCanceled {
		t.Fatalf("expected canceled, got %s", order.Status)
	}
	pay, _ := repos.Payments.GetByOrder("order-1")
	if pay.Status != domain.PaymentStatusPending {
		t.Fatalf("payment row must stay pending, got %s", pay.Status)
	}
	_ = collectOutbox(t, repos.Outbox)

	// Покупатель оплатил pix уже после отмены.
	h.gateway.VoidErr = nil
	if err := h.gateway.Settle(pay.ExternalID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	order, err = h.orch.AcceptPayment(context.Background(), payment.MockGatewayName, pay.ExternalID)
	if err != nil {
		t.Fatalf("notification: %v", err)
	}
	if order.Status != domain.OrderStatusCanceled {
		t.Fatalf("order must stay canceled, got %s", order.Status)
	}
	if h.gateway.RefundCalls != 1 {
		t.Fatalf("late payment must be refunded, refund calls %d", h.gateway.RefundCalls)
	}
	pay, _ = repos.Payments.GetByOrder("order-1")
	if pay.Status != domain.PaymentStatusRefunded || pay.RefundedMinor != pay.AmountMinor {
		t.Fatalf("payment row must be refunded: %+v", pay)
	}
	msgs := collectOutbox(t, repos.Outbox)
	if countEvents(msgs, domain.EventPaymentRefunded) != 1 {
		t.Fatalf("payment.refunded not enqueued: %v", eventTypes(msgs))
	}

	// Повторное уведомление не возвращает деньги второй раз.
	if _, err := h.orch.AcceptPayment(context.Background(), payment.MockGatewayName, pay.ExternalID); err != nil {
		t.Fatalf("duplicate notification: %v", err)
	}
	if h.gateway.RefundCalls != 1 {
		t.Fatalf("refund must not repeat, refund calls %d", h.gateway.RefundCalls)
	}
}

func TestOrchestrator_Cancel_RepeatedVoidsLeftoverPayment(t *testing.T) {
	h := newHarness(t, 5)
	repos := h.store.Repositories()
	seedOrder(t, repos.Orders, domain.OrderStatusPending, domain.PaymentMethodBoleto)
	if _, err := h.orch.Execute(context.Background(), "order-1", PaymentInput{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	h.gateway.VoidErr = domain.ErrPaymentTemporary
	if _, err := h.orch.Cancel(context.Background(), "order-1", "x"); err != nil {
		t.Fatalf("first cancel: %v", err)
	}

	h.gateway.VoidErr = nil
	if _, err := h.orch.Cancel(context.Background(), "order-1", "x"); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	pay, _ := repos.Payments.GetByOrder("order-1")
	if pay.Status != domain.PaymentStatusVoided {
		t.Fatalf("second cancel must void the boleto, got %s", pay.Status)
	}
	if h.gateway.VoidCalls != 2 {
		t.Fatalf("expected 2 void calls, got %d", h.gateway.VoidCalls)
	}
}

func TestOrchestrator_Refund_Full(t *testing.T) {
	h := newHarness(t, 5)
	confirmedOrder(t, h)

	order, err := h.orch.Refund(context.Background(), "order-1", 0, "defective")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if order.Status != domain.OrderStatusRefunded {
		t.Fatalf("expected refunded, got %s", order.Status)
	}
	if got := balance(t, h); got != 5 {
		t.Fatalf("full refund returns stock, got %d", got)
	}
	msgs := collectOutbox(t, h.store.Repositories().Outbox)
	if countEvents(msgs, domain.EventOrderRefunded) != 1 {
		t.Fatalf("order.refunded missing: %v", eventTypes(msgs))
	}
}

func TestOrchestrator_Refund_PartialThenRest(t *testing.T) {
	h := newHarness(t, 5)
	confirmedOrder(t, h)

	order, err := h.orch.Refund(context.Background(), "order-1", 500, "partial")
	if err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("partial refund keeps status, got %s", order.Status)
	}
	pay, _ := h.store.Repositories().Payments.GetByOrder("order-1")
	if pay.RefundedMinor != 500 || pay.Status != domain.PaymentStatusCaptured {
		t.Fatalf("unexpected payment after partial refund: %+v", pay)
	}

	if _, err := h.orch.Refund(context.Background(), "order-1", 1600, "too much"); !errors.Is(err, domain.ErrRefundAmountInvalid) {
		t.Fatalf("expected refund amount error, got %v", err)
	}

	order, err = h.orch.Refund(context.Background(), "order-1", 1500, "rest")
	if err != nil {
		t.Fatalf("rest refund: %v", err)
	}
	if order.Status != domain.OrderStatusRefunded {
		t.Fatalf("expected refunded, got %s", order.Status)
	}
	if h.gateway.RefundCalls != 2 {
		t.Fatalf("expected two gateway refunds, got %d", h.gateway.RefundCalls)
	}
}

func TestOrchestrator_Refund_AlreadyRefunded(t *testing.T) {
	h := newHarness(t, 5)
	seedOrder(t, h.store.Repositories().Orders, domain.OrderStatusRefunded, domain.PaymentMethodCreditCard)

	order, err := h.orch.Refund(context.Background(), "order-1", 0, "again")
	if err != nil || order.Status != domain.OrderStatusRefunded {
		t.Fatalf("refund must be idempotent: %s, %v", order.Status, err)
	}
}

func TestOrchestrator_Refund_WrongStatus(t *testing.T) {
	h := newHarness(t, 5)
	seedOrder(t, h.store.Repositories().Orders, domain.OrderStatusReserved, domain.PaymentMethodCreditCard)

	if _, err := h.orch.Refund(context.Background(), "order-1", 0, "x"); !errors.Is(err, domain.ErrOrderInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestOrchestrator_Refund_OrderNotFound(t *testing.T) {
	h := newHarness(t, 5)

	if _, err := h.orch.Refund(context.Background(), "missing", 0, "x"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
