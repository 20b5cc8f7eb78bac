package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dejobratic/storefront/internal/orders/app"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/app/queries"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// IdempotencyKeyHeader makes checkout retries safe.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxBodyBytes = 1 << 20

// Handler exposes HTTP endpoints for order operations.
type Handler struct {
	service       *app.Service
	webhookSecret string
	logger        *slog.Logger
}

// NewHandler constructs a Handler. webhookSecret is the key the payment
// provider signs webhook bodies with.
func NewHandler(service *app.Service, webhookSecret string, logger *slog.Logger) *Handler {
	return &Handler{
		service:       service,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// Register binds the order handlers to the provided ServeMux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /order", authorized(h.checkout, RoleCustomer))
	mux.HandleFunc("POST /order/verify-payment", authorized(h.verifyPayment, RoleCustomer, RoleAdmin))
	mux.HandleFunc("POST /order/paystack-webhook", h.webhook)
	mux.HandleFunc("GET /order/paystack/callback", h.callback)

	mux.HandleFunc("GET /order", authorized(h.listOrders, RoleAdmin))
	mux.HandleFunc("GET /order/{orderId}", authorized(h.getOrder, RoleAdmin, RoleCustomer))
	mux.HandleFunc("PUT /order/{orderId}/status", authorized(h.updateStatus, RoleAdmin))
	mux.HandleFunc("POST /admin/assign-rider/{orderId}", authorized(h.assignRider, RoleAdmin))

	mux.HandleFunc("GET /rider/orders", authorized(h.riderOrders, RoleRider))
	mux.HandleFunc("POST /rider/orders/complete/{orderId}", authorized(h.riderAction(commands.RiderComplete), RoleRider))
	mux.HandleFunc("POST /rider/orders/cancel/{orderId}", authorized(h.riderAction(commands.RiderCancel), RoleRider))

	mux.HandleFunc("GET /user/orders", authorized(h.customerOrders, RoleCustomer))
	mux.HandleFunc("GET /user/cart", authorized(h.getCart, RoleCustomer))
	mux.HandleFunc("POST /user/cart/add", authorized(h.updateCart(commands.CartAdd), RoleCustomer))
	mux.HandleFunc("POST /user/cart/remove", authorized(h.updateCart(commands.CartRemove), RoleCustomer))
	mux.HandleFunc("POST /user/cart/increase", authorized(h.updateCart(commands.CartIncrease), RoleCustomer))
	mux.HandleFunc("POST /user/cart/decrease", authorized(h.updateCart(commands.CartDecrease), RoleCustomer))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request, p Principal) {
	ctx := r.Context()
	idemKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))

	if idemKey != "" {
		stored, err := h.service.GetIdempotentResponse(ctx, p.ID, idemKey)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if stored != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(stored.StatusCode)
			_, _ = w.Write(stored.Body)
			return
		}
	}

	var payload app.CheckoutInput
	if !decodeBody(w, r, &payload) {
		return
	}

	result, err := h.service.Checkout(ctx, p.ID, payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	body, err := json.Marshal(envelope{Success: true, Message: "Payment initialized", Data: result})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if idemKey != "" {
		stored := ports.StoredResponse{StatusCode: http.StatusCreated, Body: body, OrderID: result.OrderID}
		if err := h.service.SaveIdempotentResponse(ctx, p.ID, idemKey, stored); err != nil {
			h.logger.WarnContext(ctx, "failed to store idempotent response",
				"order_id", result.OrderID,
				"error", err,
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

type verifyPaymentRequest struct {
	OrderID   string `json:"orderId"`
	Reference string `json:"reference"`
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request, p Principal) {
	var payload verifyPaymentRequest
	if !decodeBody(w, r, &payload) {
		return
	}

	var ownerID string
	if p.Role == RoleCustomer {
		ownerID = p.ID
	}

	result, err := h.service.VerifyPayment(r.Context(), ownerID, payload.OrderID, payload.Reference)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Payment verified and order processed", result.Order)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request, p Principal) {
	details, err := h.service.GetOrder(r.Context(), r.PathValue("orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if p.Role == RoleCustomer && details.Order.UserID != p.ID {
		writeFailure(w, http.StatusNotFound, domain.MsgInvalidOrder)
		return
	}

	writeSuccess(w, http.StatusOK, "Order Acquired", details)
}

func listQuery(r *http.Request) queries.ListOrdersQuery {
	values := r.URL.Query()
	query := queries.ListOrdersQuery{Status: values.Get("status")}

	if page, err := strconv.Atoi(values.Get("page")); err == nil {
		query.Page = page
	}
	if pageSize, err := strconv.Atoi(values.Get("page_size")); err == nil {
		query.PageSize = pageSize
	}

	return query
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, _ Principal) {
	h.writeOrders(w, r, listQuery(r))
}

func (h *Handler) customerOrders(w http.ResponseWriter, r *http.Request, p Principal) {
	query := listQuery(r)
	query.UserID = p.ID
	h.writeOrders(w, r, query)
}

func (h *Handler) riderOrders(w http.ResponseWriter, r *http.Request, p Principal) {
	query := listQuery(r)
	query.RiderID = p.ID
	h.writeOrders(w, r, query)
}

func (h *Handler) writeOrders(w http.ResponseWriter, r *http.Request, query queries.ListOrdersQuery) {
	orders, err := h.service.ListOrders(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Orders Acquired", orders)
}

type updateStatusRequest struct {
	OrderStatus string `json:"order_status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request, _ Principal) {
	var payload updateStatusRequest
	if !decodeBody(w, r, &payload) {
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), r.PathValue("orderId"), payload.OrderStatus)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Order Status Updated", order)
}

type assignRiderRequest struct {
	RiderID string `json:"riderId"`
}

func (h *Handler) assignRider(w http.ResponseWriter, r *http.Request, _ Principal) {
	var payload assignRiderRequest
	if !decodeBody(w, r, &payload) {
		return
	}

	result, err := h.service.AssignRider(r.Context(), r.PathValue("orderId"), payload.RiderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, result.Message, result.Order)
}

func (h *Handler) riderAction(action commands.RiderAction) func(http.ResponseWriter, *http.Request, Principal) {
	message := "Order Delivered"
	if action == commands.RiderCancel {
		message = "Order Cancelled"
	}

	return func(w http.ResponseWriter, r *http.Request, p Principal) {
		order, err := h.service.RiderAction(r.Context(), p.ID, r.PathValue("orderId"), action)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, message, order)
	}
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request, p Principal) {
	cart, err := h.service.GetCart(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Cart Items Acquired", cart)
}

func (h *Handler) updateCart(op commands.CartOperation) func(http.ResponseWriter, *http.Request, Principal) {
	message := "Cart Updated"
	if op == commands.CartRemove {
		message = "Product removed from cart"
	}

	return func(w http.ResponseWriter, r *http.Request, p Principal) {
		var payload app.UpdateCartInput
		if !decodeBody(w, r, &payload) {
			return
		}

		cart, err := h.service.UpdateCart(r.Context(), p.ID, op, payload)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, message, cart)
	}
}
