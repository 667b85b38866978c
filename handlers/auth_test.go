package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var testTokens = Tokens{Device: "dev", User: "user", API: "api"}

func TestTokens(t *testing.T) {
	require.Equal(t, RoleDevice, testTokens.RoleFor("dev"))
	require.Equal(t, RoleOperator, testTokens.RoleFor("user"))
	require.Equal(t, RoleAPI, testTokens.RoleFor("api"))
	require.Empty(t, testTokens.RoleFor(""))
	require.Empty(t, testTokens.RoleFor("nope"))

	require.True(t, testTokens.Allows(RoleDevice, "dev"))
	require.False(t, testTokens.Allows(RoleDevice, "user"))
	require.False(t, testTokens.Allows(RoleOperator, "api"))
	require.False(t, Tokens{}.Allows(RoleOperator, ""))
}

func TestNormalizeRole(t *testing.T) {
	require.Equal(t, RoleOperator, NormalizeRole("web"))
	require.Equal(t, RoleOperator, NormalizeRole(" Operator "))
	require.Equal(t, RoleDevice, NormalizeRole("device"))
	require.Empty(t, NormalizeRole("admin"))
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/op", RequireRole(testTokens, RoleOperator, RoleAPI), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ctxRoleKey))
	})

	cases := []struct {
		name   string
		setup  func(*http.Request)
		status int
		body   string
	}{
		{"bearer operator", func(r *http.Request) { r.Header.Set("Authorization", "Bearer user") }, http.StatusOK, RoleOperator},
		{"query api", func(r *http.Request) { r.URL.RawQuery = "token=api" }, http.StatusOK, RoleAPI},
		{"device header", func(r *http.Request) { r.Header.Set("X-Device-Token", "dev") }, http.StatusUnauthorized, ""},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/op", nil)
			tc.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				require.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}

func TestDoorState(t *testing.T) {
	require.Equal(t, "OPEN", doorState(json.RawMessage(`"OPEN"`)))
	require.Equal(t, "CLOSED", doorState(json.RawMessage(`{"door":"CLOSED"}`)))
	require.Equal(t, "LOCKED", doorState(json.RawMessage(`{"status":"LOCKED"}`)))
	require.Empty(t, doorState(json.RawMessage(`42`)))
}
