package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AlexZinkM/split-custody/internal/handler"
	"github.com/AlexZinkM/split-custody/internal/model"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type okSidecar struct{}

func (okSidecar) Health(context.Context) (*model.SidecarHealthResponse, error) {
	return &model.SidecarHealthResponse{Status: "ok", Checks: model.SidecarHealthChecks{RPCConnected: true}}, nil
}

func newRouter() http.Handler {
	logger := zap.NewNop()
	return SetupRouter(Handlers{
		Wallets:  handler.NewWalletHandler(nil, logger),
		Deposits: handler.NewDepositHandler(nil, logger),
		Health:   handler.NewHealthHandler(okSidecar{}, logger),
	}, logger)
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	r := newRouter()

	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health").Code)

	// identity is checked before any service call
	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/wallets"},
		{http.MethodDelete, "/wallets"},
		{http.MethodPost, "/wallets/rotate"},
		{http.MethodPost, "/wallets/sign"},
		{http.MethodPost, "/deposits"},
		{http.MethodGet, "/deposits/abc"},
		{http.MethodDelete, "/deposits/abc"},
		{http.MethodPost, "/deposits/abc/detect"},
		{http.MethodPost, "/deposits/abc/complete"},
	} {
		require.Equal(t, http.StatusUnauthorized, serve(r, route.method, route.path).Code, route.path)
	}
}

func TestWrongMethod(t *testing.T) {
	r := newRouter()
	require.Equal(t, http.StatusMethodNotAllowed, serve(r, http.MethodGet, "/wallets").Code)
	require.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/nope").Code)
}

func TestSwaggerDoc(t *testing.T) {
	rec := serve(newRouter(), http.MethodGet, "/swagger/doc.json")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/deposits/{id}/complete")
}

func TestRecovererHidesPanic(t *testing.T) {
	h := recoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("secret detail")
	}))
	rec := serve(h, http.MethodGet, "/")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret detail")
}
