package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"referralpay/internal/service"
	"referralpay/internal/testutil"
	"referralpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	db := testutil.NewDB(t)
	rdb, _ := testutil.NewRedis(t)
	cfg := testutil.NewConfig(t)

	wallet := service.NewWalletService(db, rdb, cfg)
	commission, err := service.NewCommissionService(db, rdb, cfg, wallet)
	require.NoError(t, err)
	withdrawal := service.NewWithdrawalService(db, cfg, wallet)
	referral := service.NewReferralService(db, rdb, cfg, commission)

	return SetupRouter(NewHandler(wallet, commission, withdrawal, referral))
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) envelope {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAPI_SignupOrderAndWithdrawalFlow(t *testing.T) {
	r := newTestRouter(t)

	resp := doJSON(t, r, http.MethodPost, "/api/v1/events/user-signed-up", gin.H{"user_id": 1})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	var root service.SignupResponse
	require.NoError(t, json.Unmarshal(resp.Data, &root))

	resp = doJSON(t, r, http.MethodPost, "/api/v1/events/user-signed-up", gin.H{"user_id": 2, "referral_code": root.User.ReferralCode})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/events/order-completed", gin.H{
		"order_id": "ORD-1", "buyer_user_id": 2, "amount": 1000, "is_first_order": true,
	})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	resp = doJSON(t, r, http.MethodGet, "/api/v1/wallet/balance?user_id=1", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var balance struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &balance))
	assert.Equal(t, int64(150), balance.Balance)

	resp = doJSON(t, r, http.MethodGet, "/api/v1/commission/breakdown?user_id=1", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var breakdown service.CommissionBreakdownReport
	require.NoError(t, json.Unmarshal(resp.Data, &breakdown))
	assert.Equal(t, int64(150), breakdown.TotalCredited)
	assert.Len(t, breakdown.Records, 2)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/withdrawal/create", gin.H{
		"request_id": "REQ-1",
		"user_id":    1,
		"amount":     100,
		"bank":       gin.H{"bank_name": "ICBC", "account_name": "Li", "account_number": "6222"},
	})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	var created service.WithdrawalResponse
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, int64(50), created.Balance)

	// 相同 request_id 但金额不同
	resp = doJSON(t, r, http.MethodPost, "/api/v1/withdrawal/create", gin.H{
		"request_id": "REQ-1",
		"user_id":    1,
		"amount":     120,
		"bank":       gin.H{"bank_name": "ICBC", "account_name": "Li", "account_number": "6222"},
	})
	assert.Equal(t, response.CodeWithdrawalConflict, resp.Code)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/withdrawal/update-status", gin.H{
		"request_no": created.RequestNo, "status": "paid", "reference_id": "REF1",
	})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/withdrawal/update-status", gin.H{
		"request_no": created.RequestNo, "status": "rejected", "reject_reason": "late",
	})
	assert.Equal(t, response.CodeInvalidStateTransition, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/api/v1/withdrawal/detail?request_no="+created.RequestNo, nil)
	require.Equal(t, response.CodeSuccess, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/api/v1/withdrawal/list?user_id=1", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/api/v1/wallet/ledger?user_id=1", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/api/v1/referral/stats?user_id=1", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/wallet/reconcile", gin.H{"user_id": 1})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
}

func TestAPI_ErrorCodes(t *testing.T) {
	r := newTestRouter(t)

	resp := doJSON(t, r, http.MethodGet, "/api/v1/wallet/balance?user_id=abc", nil)
	assert.Equal(t, response.CodeParamError, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/api/v1/wallet/balance?user_id=404", nil)
	assert.Equal(t, response.CodeUserNotFound, resp.Code)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/events/user-signed-up", gin.H{"user_id": 5, "referral_code": "MISSING"})
	assert.Equal(t, response.CodeReferralCodeNotFound, resp.Code)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/events/user-signed-up", gin.H{"user_id": 6})
	require.Equal(t, response.CodeSuccess, resp.Code)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/withdrawal/create", gin.H{
		"request_id": "REQ-1",
		"user_id":    6,
		"amount":     100,
		"bank":       gin.H{"bank_name": "ICBC", "account_name": "Li", "account_number": "6222"},
	})
	assert.Equal(t, response.CodeBalanceNotEnough, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/api/v1/withdrawal/detail?request_no=WDR-none", nil)
	assert.Equal(t, response.CodeWithdrawalNotFound, resp.Code)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/events/order-completed", gin.H{"order_id": "O", "buyer_user_id": 6})
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
