package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/julius090/fusion-thermostat/internal/models"
	"github.com/julius090/fusion-thermostat/internal/service"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockThermostat struct {
	setModeErr error
	setTempErr error

	lastMode     service.ModeParams
	lastTemp     service.TemperatureParams
	setModeCalls int
	setTempCalls int
}

func (m *mockThermostat) SetMode(ctx context.Context, p service.ModeParams) error {
	m.setModeCalls++
	m.lastMode = p
	return m.setModeErr
}
func (m *mockThermostat) SetTemperature(ctx context.Context, p service.TemperatureParams) error {
	m.setTempCalls++
	m.lastTemp = p
	return m.setTempErr
}

type mockMonitoring struct {
	state models.ThermostatState
	err   error
}

func (m *mockMonitoring) GetState(ctx context.Context) (models.ThermostatState, error) {
	return m.state, m.err
}

type mockEventLog struct {
	resp     []models.ThermostatEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.ThermostatEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
