package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	appErrors "github.com/charlesng35/groupchoice/pkg/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	Success(ctx, http.StatusCreated, gin.H{"response_id": "r-1"})

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode(t, rec)
	require.True(t, resp.Success)
	require.Nil(t, resp.Error)
}

func TestCreated(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	Created(ctx, gin.H{"id": "s-1"})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, `{"success":true,"data":{"id":"s-1"}}`, rec.Body.String())
}

func TestList(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	List(ctx, []string{"a", "b"}, 2)

	resp := decode(t, rec)
	require.NotNil(t, resp.Meta)
	require.Equal(t, 2, resp.Meta.Total)
}

func TestErrorUsesAppErrorStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	closed := appErrors.New("SURVEY_CLOSED", "Survey is not accepting responses", http.StatusConflict)
	Error(ctx, closed)

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decode(t, rec)
	require.False(t, resp.Success)
	require.Equal(t, "SURVEY_CLOSED", resp.Error.Code)
}

func TestErrorHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	Error(ctx, errors.New("database exploded"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode(t, rec)
	require.Equal(t, appErrors.ErrInternalServer.Code, resp.Error.Code)
	require.NotContains(t, rec.Body.String(), "exploded")
}

func TestErrorWithDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	ErrorWithDetails(ctx, appErrors.NewBadRequest("invalid payload"), []string{"title"})

	resp := decode(t, rec)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, []interface{}{"title"}, resp.Error.Details)
}

func TestErrorEchoesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Set(RequestIDKey, "req-42")

	Error(ctx, appErrors.ErrNotFound)

	resp := decode(t, rec)
	require.Equal(t, "req-42", resp.Error.RequestID)

	rec = httptest.NewRecorder()
	ctx, _ = gin.CreateTestContext(rec)
	Error(ctx, appErrors.ErrNotFound)
	require.NotContains(t, rec.Body.String(), "request_id")
}
