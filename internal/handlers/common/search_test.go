package common_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medotmani10/windoorpvc/internal/handlers/common"
	"github.com/medotmani10/windoorpvc/internal/testutil"
)

func TestSearch(t *testing.T) {
	h := newHandler(t)
	testutil.InsertClient(t, h.DB, "CLI-1", "Benali Hocine")
	testutil.InsertClient(t, h.DB, "CLI-2", "Meziane")
	testutil.InsertWorker(t, h.DB, "WRK-1", "Karim Benali", 2500)
	testutil.InsertTransporter(t, h.DB, "TRN-1", "Rachid")
	_, err := h.DB.Exec("INSERT INTO projects (id, name, client_id, status) VALUES ('PRJ-1', 'Villa Hydra', 'CLI-1', 'active')")
	require.NoError(t, err)

	results, total, err := h.Search("benali", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, results["clients"], 1)
	assert.Equal(t, "CLI-1", results["clients"][0].ID)
	require.Len(t, results["workers"], 1)
	assert.Equal(t, "active", results["workers"][0].Status)
	require.Len(t, results["projects"], 1, "projects match on their client's name")
	assert.Equal(t, common.SearchHit{ID: "PRJ-1", Title: "Villa Hydra", Detail: "Benali Hocine", Status: "active"}, results["projects"][0])
	assert.Empty(t, results["transporters"])

	results, _, err = h.Search("e", 1)
	require.NoError(t, err)
	for key, hits := range results {
		assert.LessOrEqual(t, len(hits), 1, key)
	}
	assert.Len(t, results["clients"], 1)
}

func TestGlobalSearch(t *testing.T) {
	h := newHandler(t)
	testutil.InsertMaterial(t, h.DB, "MAT-1", "Joint EPDM", 1, 10, 150)

	w := httptest.NewRecorder()
	h.GlobalSearch(w, httptest.NewRequest("GET", "/api/v1/search?q=epdm", nil))
	testutil.AssertStatus(t, w, 200)
	var results map[string][]common.SearchHit
	testutil.DecodeEnvelope(t, w, &results)
	require.Len(t, results["materials"], 1)
	assert.Equal(t, "low", results["materials"][0].Status)

	w = httptest.NewRecorder()
	h.GlobalSearch(w, httptest.NewRequest("GET", "/api/v1/search?q=%20", nil))
	testutil.AssertStatus(t, w, 200)
	resp := testutil.DecodeAPIResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 0, resp.Meta.Total)
}
