//nolint:noctx // Test file uses http.NewRequest for simplicity
package mythology

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/lorekeeper/internal/api/response"
	loreclient "github.com/aimd54/lorekeeper/internal/client/lore"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/internal/service/classification"
	"github.com/aimd54/lorekeeper/internal/service/mythology"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeLore serves a fixed catalog and records the forwarded tokens.
type fakeLore struct {
	creatures   []models.Creature
	testimonies map[string][]models.Testimony
	err         error
	tokens      []string
}

func (f *fakeLore) GetAllCreatures(ctx context.Context, token string) ([]models.Creature, error) {
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	return f.creatures, nil
}

func (f *fakeLore) GetTestimoniesByCreature(ctx context.Context, token, creatureID string) ([]models.Testimony, error) {
	return f.testimonies[creatureID], nil
}

func newFakeLore() *fakeLore {
	return &fakeLore{
		creatures: []models.Creature{
			{ID: "dragon", Name: "Dragon", Origin: "Nordique", LegendScore: 1.2},
			{ID: "mystery", Name: "Blob", LegendScore: 1},
		},
		testimonies: map[string][]models.Testimony{
			"dragon": {
				{ID: "t1", Status: models.StatusValidated},
				{ID: "t2", Status: models.StatusPending},
			},
		},
	}
}

func setupRouter(lore *fakeLore) *gin.Engine {
	h := NewHandler(
		mythology.NewService(lore, nil, 0, 2, logger.Nop()),
		classification.NewService(lore, nil, logger.Nop()),
		logger.Nop(),
	)
	r := gin.New()
	RegisterRoutes(r, h)
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env response.RawEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.True(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestStats(t *testing.T) {
	lore := newFakeLore()
	r := setupRouter(lore)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/mythology/stats", "").Code)

	w := get(r, "/mythology/stats", "abc")
	require.Equal(t, http.StatusOK, w.Code)

	var stats mythology.Stats
	decodeData(t, w, &stats)
	assert.Equal(t, 2, stats.TotalCreatures)
	assert.Equal(t, 2, stats.TotalTestimonies)
	assert.Equal(t, 1, stats.TotalValidatedTestimonies)
	assert.Equal(t, 1.0, stats.AverageTestimoniesPerCreature)
	assert.Equal(t, []string{"abc"}, lore.tokens)
}

func TestClassification(t *testing.T) {
	r := setupRouter(newFakeLore())

	w := get(r, "/mythology/classification", "abc")
	require.Equal(t, http.StatusOK, w.Code)

	var body classificationResponse
	decodeData(t, w, &body)
	assert.Equal(t, 2, body.TotalCreatures)
	assert.Equal(t, 2, body.TotalFamilies)
	assert.Equal(t, []string{"Dragon"}, body.Classification.Families["Nordique"]["Dragon"])
	assert.Equal(t, []string{"Blob"}, body.Classification.Families[classification.UnknownFamily][classification.DefaultSubtype])
	assert.Empty(t, body.Details)

	w = get(r, "/mythology/classification?details=true", "abc")
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &body)
	require.Len(t, body.Details, 2)
	assert.Equal(t, classification.UnspecifiedOrigin, body.Details[1].Origin)
}

func TestFamilies(t *testing.T) {
	r := setupRouter(newFakeLore())

	w := get(r, "/mythology/classification/families", "abc")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Families     []string       `json:"families"`
		Distribution map[string]int `json:"distribution"`
	}
	decodeData(t, w, &body)
	assert.Equal(t, []string{"Nordique", "Unknown"}, body.Families)
	assert.Equal(t, 1, body.Distribution["Nordique"])
}

func TestLoreFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "rejected token", err: loreclient.ErrInvalidToken, want: http.StatusUnauthorized},
		{name: "unavailable", err: loreclient.ErrUnavailable, want: http.StatusServiceUnavailable},
		{name: "timeout", err: loreclient.ErrTimeout, want: http.StatusGatewayTimeout},
		{name: "remote error", err: &loreclient.RemoteError{Status: http.StatusInternalServerError, Message: "boom"}, want: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lore := newFakeLore()
			lore.err = tt.err
			r := setupRouter(lore)

			for _, path := range []string{"/mythology/stats", "/mythology/classification", "/mythology/classification/families"} {
				assert.Equal(t, tt.want, get(r, path, "abc").Code, path)
			}
		})
	}
}
