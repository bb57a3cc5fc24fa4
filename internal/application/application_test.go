package application

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/docvalidate/internal/config"
	"github.com/JonMunkholm/docvalidate/internal/core"
	"github.com/JonMunkholm/docvalidate/internal/registry"
)

const sheetCSV = `A,B,CNPJ,Razao,E,F,G,H,I,J,Representante,Contatos
1,x,12.345.678/0001-90,ACME Telecom Ltda,,,,,,,Maria Silva,"Carlos Lima, Ana Paula"
`

func letterHTML(date string) string {
	return `<html><body><p>Eu, Maria Silva, representante legal da ACME Telecom Ltda, CNPJ nº 12.345.678/0001-90,
autorizo Carlos Lima a tratar dos assuntos de rede.</p><p>Curitiba, ` + date + `</p></body></html>`
}

func TestNew_EndToEnd(t *testing.T) {
	now := time.Now().UTC()
	months := []string{"janeiro", "fevereiro", "março", "abril", "maio", "junho",
		"julho", "agosto", "setembro", "outubro", "novembro", "dezembro"}
	date := fmt.Sprintf("%d de %s de %d", now.Day(), months[now.Month()-1], now.Year())

	mux := http.NewServeMux()
	mux.HandleFunc("/sheet.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(sheetCSV))
	})
	mux.HandleFunc("/letter.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(letterHTML(date)))
	})
	mux.HandleFunc("/v1/cnpj/", func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/12345678000190"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "OK",
			"nome":     "ACME TELECOM LTDA",
			"situacao": "ATIVA",
		})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg, err := config.LoadFrom(func(key string) string {
		switch key {
		case "REGISTRY_BASE_URL":
			return ts.URL
		case "REGISTRY_REQUESTS_PER_MINUTE":
			return "600"
		}
		return ""
	})
	require.NoError(t, err)

	app, err := New(context.Background(), cfg, nil, Options{HTTPClient: ts.Client()})
	require.NoError(t, err)
	defer app.Close()

	_, isMemory := app.Cache.(*registry.MemoryCache)
	assert.True(t, isMemory, "cache should be in memory without DATABASE_URL")

	info, err := app.Sessions.LoadReference(context.Background(), ts.URL+"/sheet.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Summary.TaxIDs)

	runID, err := app.Sessions.StartRun(context.Background(), info.ID, []string{ts.URL + "/letter.html"})
	require.NoError(t, err)

	report, err := app.Sessions.Report(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	res := report.Results[0]
	assert.Equal(t, core.StatusValid, res.Status, "flags: %+v, error: %s", res.ValidationFlags, res.ErrorDetail)
	assert.Equal(t, "12345678000190", res.ExtractedFields.TaxID)
	assert.Equal(t, "Carlos Lima", res.ExtractedFields.SpecificNameFound)
}

func TestNew_CacheDisabled(t *testing.T) {
	cfg, err := config.LoadFrom(func(key string) string {
		if key == "REGISTRY_CACHE_TTL" {
			return "0s"
		}
		return ""
	})
	require.NoError(t, err)

	app, err := New(context.Background(), cfg, nil, Options{})
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Cache)
	assert.Equal(t, 3, app.Orchestrator.MaxBatchSize())
}
