package casedata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vanderheijden86/epimap/pkg/geo"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/casos_enfermedad", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("distrito") == "ROTO" {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"total": 5, "detalle": [{"tipo_dx": "C", "cantidad": 3}, {"tipo_dx": "P", "cantidad": 2}]}`))
	})
	mux.HandleFunc("/api/casos_enfermedad_establecimiento", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("establecimiento") == "" {
			http.Error(w, "missing", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"total": 1, "detalle": []}`))
	})
	mux.HandleFunc("/api/edas/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/BREÑA") {
			t.Errorf("expected upper-case unit in path, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"daa": 7, "dis": 1, "total": 8}`))
	})
	mux.HandleFunc("/api/iras/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total": 10, "ira_no_neumonia": 4, "sob_asma": 3, "neumonia_grave": 1, "neumonia": 2}`))
	})
	mux.HandleFunc("/api/febriles_distrito", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total": 6, "detalle": [{"grupo_edad": "feb_m1", "cantidad": 6}]}`))
	})
	mux.HandleFunc("/tb_tia_total", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"Distrito_EESS": "CS A", "casos": 12, "poblacion_total": 10000, "TIA_100k": 120.0, "Distrito": "Lima"},
			{"Distrito_EESS": "CS B", "casos": 1, "poblacion_total": 10000, "TIA_100k": 10.0, "Distrito": "LIMA"},
			{"Distrito_EESS": "CS C", "casos": 0, "poblacion_total": 5000, "TIA_100k": 0, "Distrito": "Rimac"}
		]`))
	})
	mux.HandleFunc("/tb_tia_total_EESS_all", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"Distrito_EESS": "CS A", "casos": 3, "poblacion_total": 1000, "TIA_100k": 300.0, "Distrito": "Lima"}]`))
	})
	mux.HandleFunc("/api/casos_por_distrito", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"LIMA": 4, "RIMAC": 0}`))
	})
	mux.HandleFunc("/api/poblacion", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"POBLACION_TOTAL": 300, "MASCULINO": 140, "FEMENINO": 160, "NIÑO": 50, "Adolescente": 40, "Joven": 60, "Adulto": 100, "Adulto_Mayor": 50, "distrito": "Lima"}`))
	})
	mux.HandleFunc("/api/poblacion_establecimiento", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"establecimiento": "CS A", "mensaje": "sin datos"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPSource_Generic(t *testing.T) {
	src := NewHTTPSource(newBackend(t).URL+"/", time.Second)
	rec, err := src.UnitRecord(context.Background(), Key{Dataset: "diagnostico-dengue"}, "Lima")
	if err != nil {
		t.Fatalf("UnitRecord: %v", err)
	}
	if rec.Total != 5 || len(rec.Breakdown) != 2 || rec.Breakdown[0].Label != "C" {
		t.Errorf("unexpected record %+v", rec)
	}

	_, err = src.UnitRecord(context.Background(), Key{Dataset: "diagnostico-dengue"}, "ROTO")
	if !errors.Is(err, ErrHTTPStatus) {
		t.Errorf("expected ErrHTTPStatus, got %v", err)
	}
}

func TestHTTPSource_SpecialDatasets(t *testing.T) {
	src := NewHTTPSource(newBackend(t).URL, time.Second)
	ctx := context.Background()

	edas, err := src.UnitRecord(ctx, Key{Dataset: "diagnostico-edas"}, "Breña")
	if err != nil || edas.Total != 8 || edas.Breakdown[0] != (Count{Label: "DAA", Count: 7}) {
		t.Errorf("edas: %+v %v", edas, err)
	}
	iras, err := src.UnitRecord(ctx, Key{Dataset: "diagnostico-iras"}, "Lima")
	if err != nil || iras.Total != 10 || len(iras.Breakdown) != 4 || iras.Breakdown[1].Count != 3 {
		t.Errorf("iras: %+v %v", iras, err)
	}
	feb, err := src.UnitRecord(ctx, Key{Dataset: "diagnostico-febriles"}, "Lima")
	if err != nil || feb.Total != 6 || feb.Breakdown[0].Label != "feb_m1" {
		t.Errorf("febriles: %+v %v", feb, err)
	}
	fac, err := src.UnitRecord(ctx, Key{Dataset: "diagnostico-edas", Geography: geo.Facility}, "CS A")
	if err != nil || fac.Total != 1 {
		t.Errorf("facility: %+v %v", fac, err)
	}
}

func TestHTTPSource_TBTIABulk(t *testing.T) {
	src := NewHTTPSource(newBackend(t).URL, time.Second)
	ctx := context.Background()

	all, err := src.BulkRecords(ctx, Key{Dataset: "diagnostico-tb-tia"})
	if err != nil {
		t.Fatalf("BulkRecords: %v", err)
	}
	if r := all["LIMA"]; !r.HasRate || r.Rate != 120 || r.Total != 12 {
		t.Errorf("expected first LIMA row kept, got %+v", r)
	}
	if _, ok := all["RIMAC"]; !ok {
		t.Error("expected RIMAC row")
	}

	eess, err := src.BulkRecords(ctx, Key{Dataset: "diagnostico-tb-tia", Geography: geo.Facility})
	if err != nil || eess["CS A"].Rate != 300 {
		t.Errorf("facility TIA: %+v %v", eess, err)
	}

	one, err := src.UnitRecord(ctx, Key{Dataset: "diagnostico-tb-tia"}, "rimac")
	if err != nil || !one.HasRate || one.Rate != 0 {
		t.Errorf("per-unit TIA lookup: %+v %v", one, err)
	}
}

func TestHTTPSource_BulkCounts(t *testing.T) {
	src := NewHTTPSource(newBackend(t).URL, time.Second)
	ctx := context.Background()
	key := Key{Dataset: "diagnostico-dengue"}

	if _, err := src.BulkRecords(ctx, key); !errors.Is(err, ErrNoBulk) {
		t.Fatalf("bulk counts disabled: expected ErrNoBulk, got %v", err)
	}
	src.BulkCounts = true
	all, err := src.BulkRecords(ctx, key)
	if err != nil || all["LIMA"].Total != 4 {
		t.Errorf("bulk counts: %+v %v", all, err)
	}
	if _, err := src.BulkRecords(ctx, Key{Dataset: "diagnostico-dengue", Geography: geo.Facility}); !errors.Is(err, ErrNoBulk) {
		t.Errorf("facility counts have no bulk variant, got %v", err)
	}
}

func TestHTTPSource_Population(t *testing.T) {
	src := NewHTTPSource(newBackend(t).URL, time.Second)
	p, err := src.Population(context.Background(), geo.District, "Lima")
	if err != nil {
		t.Fatalf("Population: %v", err)
	}
	if p.Total != 300 || p.Child != 50 || p.OlderAdult != 50 {
		t.Errorf("unexpected population %+v", p)
	}
	if _, err := src.Population(context.Background(), geo.Facility, "CS A"); !errors.Is(err, ErrNoPopulation) {
		t.Errorf("expected ErrNoPopulation for facilities, got %v", err)
	}
}
