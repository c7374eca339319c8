package echoapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/mulespace/core"
	"github.com/trezcool/mulespace/core/attendance"
	"github.com/trezcool/mulespace/core/event"
	logsvc "github.com/trezcool/mulespace/services/logger"
)

func Test_appHTTPErrorHandler(t *testing.T) {
	conf := &core.Config{TestMode: true}
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(io.Discard, "API", conf), conf)
	logger.Enable(false)

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	validationErr := validate.Struct(struct {
		EventID int64 `json:"event_id" validate:"required"`
	}{})

	shutdownCalled := false
	handler := newAppHTTPErrorHandler(logger, translator, func() { shutdownCalled = true })

	tests := []struct {
		name         string
		err          error
		wantCode     int
		wantBody     string
		wantShutdown bool
	}{
		{
			name: "validation errors", err: validationErr,
			wantCode: http.StatusBadRequest, wantBody: `{"event_id":"this field is required"}`,
		},
		{
			name: "wrapped validation errors", err: errors.Wrap(validationErr, "binding check-in"),
			wantCode: http.StatusBadRequest, wantBody: `{"event_id":"this field is required"}`,
		},
		{
			name: "field error", err: core.NewFieldError("department_id", "department not found"),
			wantCode: http.StatusBadRequest, wantBody: `{"department_id":"department not found"}`,
		},
		{
			name: "domain error", err: errors.Wrap(event.ErrNotFound, "finding event"),
			wantCode: http.StatusNotFound, wantBody: `{"error":"event not found"}`,
		},
		{
			name: "admission error", err: attendance.ErrDuplicateRegistration,
			wantCode: http.StatusConflict, wantBody: `{"error":"already registered for this event"}`,
		},
		{
			name: "http error", err: echo.NewHTTPError(http.StatusTeapot, "short and stout"),
			wantCode: http.StatusTeapot, wantBody: `{"error":"short and stout"}`,
		},
		{
			name: "unknown error", err: errors.New("boom"),
			wantCode: http.StatusInternalServerError, wantBody: `{"error":"Internal Server Error"}`,
		},
		{
			name: "shutdown error", err: core.NewShutdownError("integrity issue"),
			wantCode: http.StatusInternalServerError, wantBody: `{"error":"Internal Server Error"}`, wantShutdown: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdownCalled = false
			rec := httptest.NewRecorder()
			ctx := echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/api/attendance/check-in", nil), rec)

			assert.NotPanics(t, func() { handler(tt.err, ctx) })
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, tt.wantShutdown, shutdownCalled)
		})
	}
}
