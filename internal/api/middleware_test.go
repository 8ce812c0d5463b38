package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/go-convo/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func Test_errorHandler(t *testing.T) {
	tcases := []struct {
		name         string
		handler      http.HandlerFunc
		expectedCode int
		expectClose  bool
	}{
		{
			name: "recovers from panic with error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic(errors.New("boom"))
			},
			expectedCode: http.StatusInternalServerError,
			expectClose:  true,
		},
		{
			name: "recovers from panic with string",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("boom")
			},
			expectedCode: http.StatusInternalServerError,
			expectClose:  true,
		},
		{
			name: "passes through",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			},
			expectedCode: http.StatusNoContent,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app := &GoChatApp{log: testutil.TestLogger(t)}

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			app.errorHandler(tc.handler).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectClose {
				assert.Equal(t, "close", rr.Header().Get("Connection"))
				assert.JSONEq(t, `{"success":false,"statusCode":500,"message":"internal server error"}`, rr.Body.String())
			} else {
				assert.Empty(t, rr.Header().Get("Connection"))
			}
		})
	}
}
