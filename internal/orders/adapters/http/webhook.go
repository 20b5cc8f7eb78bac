package http

import (
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/payments/paystack"
)

// webhook ingests provider events. Replies are bare text per the provider's
// convention: 401 for a bad signature, 400 for a rejected event, 200 otherwise.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if !paystack.VerifySignature(h.webhookSecret, body, r.Header.Get(paystack.SignatureHeader)) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	event, err := paystack.ParseEvent(body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if event.Event != paystack.EventChargeSuccess {
		h.logger.InfoContext(r.Context(), "ignoring webhook event", "event", event.Event)
		writeText(w, http.StatusOK, "Event ignored")
		return
	}

	if _, err := h.service.ConfirmPayment(r.Context(), "", event.Data.Reference); err != nil {
		kind := domain.KindOf(err)
		h.logger.WarnContext(r.Context(), "webhook settlement failed",
			"reference", event.Data.Reference,
			"kind", kind.String(),
			"error", err,
		)
		if kind == domain.KindInternal {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		http.Error(w, domain.MessageOf(err), http.StatusBadRequest)
		return
	}

	writeText(w, http.StatusOK, "Webhook processed")
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; text-align: center; padding: 50px; background-color: #f5f5f5; }
.container { background-color: white; border-radius: 10px; padding: 30px; max-width: 600px; margin: 0 auto; box-shadow: 0 0 10px rgba(0,0,0,0.1); }
h1 { color: {{.Color}}; }
.order-details { margin-top: 20px; text-align: left; padding: 15px; background-color: #f9f9f9; border-radius: 5px; }
.btn { display: inline-block; margin-top: 20px; padding: 10px 20px; background-color: #4CAF50; color: white; text-decoration: none; border-radius: 5px; }
</style>
</head>
<body>
<div class="container">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{with .Order}}<div class="order-details">
<h3>Order Details</h3>
<p><strong>Order ID:</strong> {{.ID}}</p>
<p><strong>Status:</strong> {{.Status}}</p>
<p><strong>Date:</strong> {{$.Date}}</p>
</div>{{end}}
<a href="/" class="btn">Return to Home</a>
</div>
</body>
</html>
`))

type callbackView struct {
	Title   string
	Color   template.CSS
	Message string
	Order   *domain.Order
	Date    string
}

func renderCallback(w http.ResponseWriter, status int, success bool, message string, order *domain.Order) {
	view := callbackView{
		Title:   "Payment Failed",
		Color:   "red",
		Message: message,
		Order:   order,
		Date:    time.Now().UTC().Format(time.RFC1123),
	}
	if success {
		view.Title = "Payment Successful"
		view.Color = "green"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = callbackPage.Execute(w, view)
}

// callback is the browser redirect target after payment. It settles the
// order by reference and renders a confirmation page.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	if reference == "" {
		renderCallback(w, http.StatusBadRequest, false, "No reference provided", nil)
		return
	}

	result, err := h.service.ConfirmPayment(r.Context(), "", reference)
	var order *domain.Order
	if result != nil {
		order = result.Order
	}

	if err != nil {
		status := http.StatusOK
		if domain.KindOf(err) == domain.KindInternal {
			h.logger.ErrorContext(r.Context(), "payment callback failed", "reference", reference, "error", err)
			status = http.StatusInternalServerError
		}
		renderCallback(w, status, false, domain.MessageOf(err), order)
		return
	}

	renderCallback(w, http.StatusOK, true, "Payment verified and order processed", order)
}
