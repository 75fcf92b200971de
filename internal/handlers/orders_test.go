package handlers_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/checkout"
	"staging-studio-backend/internal/handlers"
	"staging-studio-backend/internal/models"
)

func ordersRouter(user *models.User, ordering *stubOrdering) http.Handler {
	h := handlers.NewOrdersHandler(ordering)
	r := newRouter(user)
	r.POST("/orders", h.CreateOrder)
	r.POST("/orders/:id/confirm-payment", h.ConfirmPayment)
	r.POST("/orders/:id/pay-quote", h.PayQuote)
	r.POST("/create-checkout-session", h.CreateCheckoutSession)
	r.POST("/analyze-room", h.AnalyzeRoom)
	r.POST("/upload", h.Upload)
	return r
}

func TestCreateOrder(t *testing.T) {
	ordering := &stubOrdering{}
	r := ordersRouter(&client, ordering)

	w := doJSON(r, http.MethodPost, "/orders", map[string]any{
		"plan":         "furniture_add",
		"file":         "data:image/jpeg;base64,AAAA",
		"fileName":     "living-room.jpg",
		"instructions": "Scandinavian",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, ordering.created)
	assert.Equal(t, "living-room.jpg", ordering.created.FileName)

	res := decode[models.CreateOrderResponse](w)
	assert.Equal(t, "ord-1", res.Submission.ID)
	assert.NotEmpty(t, res.CheckoutURL)
}

func TestCreateOrder_Validation(t *testing.T) {
	r := ordersRouter(&client, &stubOrdering{})

	w := doJSON(r, http.MethodPost, "/orders", map[string]any{"plan": "furniture_add"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = ordersRouter(&client, &stubOrdering{err: apperrors.WithCause(apperrors.ErrCheckout, errors.New("stripe down"))})
	w = doJSON(r, http.MethodPost, "/orders", map[string]any{"plan": "furniture_add", "file": "data:image/jpeg;base64,AAAA"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"CHECKOUT_FAILED"`)
}

func TestConfirmPayment(t *testing.T) {
	r := ordersRouter(&client, &stubOrdering{})

	w := doJSON(r, http.MethodPost, "/orders/ord-1/confirm-payment", map[string]string{"sessionId": "cs_test_1", "payment": "success"})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[models.ConfirmPaymentResponse](w)
	assert.Equal(t, "ord-1", res.Submission.ID)

	w = doJSON(r, http.MethodPost, "/orders/ord-1/confirm-payment", map[string]string{"payment": "success"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = ordersRouter(&client, &stubOrdering{err: apperrors.ErrPaymentMismatch})
	w = doJSON(r, http.MethodPost, "/orders/ord-1/confirm-payment", map[string]string{"sessionId": "cs_other", "payment": "success"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPayQuote(t *testing.T) {
	r := ordersRouter(&client, &stubOrdering{})
	w := doJSON(r, http.MethodPost, "/orders/q-1/pay-quote", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url":"https://checkout.example.com/q-1"}`, w.Body.String())

	r = ordersRouter(&client, &stubOrdering{err: apperrors.ErrInvalidTransition})
	w = doJSON(r, http.MethodPost, "/orders/q-1/pay-quote", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateCheckoutSession_MessageShape(t *testing.T) {
	ordering := &stubOrdering{}
	r := ordersRouter(&client, ordering)

	w := doJSON(r, http.MethodPost, "/create-checkout-session", map[string]any{
		"planTitle": "Furniture add", "amount": 1, "orderId": "ord-1", "userEmail": "carol@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url":"https://checkout.example.com/cs_test_2"}`, w.Body.String())
	assert.Equal(t, "ord-1", ordering.checkoutReq.OrderID)

	r = ordersRouter(&client, &stubOrdering{err: apperrors.Clone(apperrors.ErrConflict, "order is already paid")})
	w = doJSON(r, http.MethodPost, "/create-checkout-session", map[string]any{"orderId": "ord-1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"message":"order is already paid"}`, w.Body.String())
}

func TestCreateCheckoutSession_ProviderMessage(t *testing.T) {
	declined := &checkout.ProviderError{Message: "Amount must convert to at least 50 cents.", Err: errors.New("failed to create checkout session: request error")}
	r := ordersRouter(&client, &stubOrdering{err: apperrors.WithCause(apperrors.ErrCheckout, declined)})

	w := doJSON(r, http.MethodPost, "/create-checkout-session", map[string]any{"orderId": "ord-1"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"message":"Amount must convert to at least 50 cents."}`, w.Body.String())

	r = ordersRouter(&client, &stubOrdering{err: apperrors.WithCause(apperrors.ErrCheckout, checkout.ErrDisabled)})
	w = doJSON(r, http.MethodPost, "/create-checkout-session", map[string]any{"orderId": "ord-1"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"message":"checkout session could not be created"}`, w.Body.String())
}

func TestAnalyzeRoom(t *testing.T) {
	r := ordersRouter(&client, &stubOrdering{analysis: "Bright room, Japandi."})

	w := doJSON(r, http.MethodPost, "/analyze-room", map[string]string{"imageBase64": "AAAA"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"analysis":"Bright room, Japandi."}`, w.Body.String())

	w = doJSON(r, http.MethodPost, "/analyze-room", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"Image data is required"}`, w.Body.String())

	r = ordersRouter(&client, &stubOrdering{analyzeErr: errors.New("quota exceeded")})
	w = doJSON(r, http.MethodPost, "/analyze-room", map[string]string{"imageBase64": "AAAA"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"message":"AI Analysis currently unavailable."}`, w.Body.String())
}

func TestUpload(t *testing.T) {
	r := ordersRouter(&client, &stubOrdering{})

	w := doJSON(r, http.MethodPost, "/upload", map[string]string{"path": "client-1/x.jpg", "file": "data:image/jpeg;base64,AAAA"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url":"https://cdn.example.com/client-1/x.jpg"}`, w.Body.String())

	w = doJSON(r, http.MethodPost, "/upload", map[string]string{"path": "client-1/x.jpg"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"Missing path or file"}`, w.Body.String())

	r = ordersRouter(&client, &stubOrdering{uploadErr: apperrors.WithCause(apperrors.ErrUpload, errors.New("bucket gone"))})
	w = doJSON(r, http.MethodPost, "/upload", map[string]string{"path": "client-1/x.jpg", "file": "data:image/jpeg;base64,AAAA"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"message":"upload failed"}`, w.Body.String())
}
