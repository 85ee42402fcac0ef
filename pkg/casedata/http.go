package casedata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/vanderheijden86/epimap/pkg/debug"
	"github.com/vanderheijden86/epimap/pkg/geo"
)

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = 15 * time.Second

// HTTPSource reads case data from the surveillance backend.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client

	// BulkCounts fetches generic district diagnoses with the single
	// casos_por_distrito call instead of one request per unit.
	BulkCounts bool
}

// NewHTTPSource returns a source for baseURL with a per-request timeout.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	u := s.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GET %s: %w: %d", path, ErrHTTPStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// caseResponse is the shape shared by casos_enfermedad and febriles.
type caseResponse struct {
	Total   int `json:"total"`
	Detalle []struct {
		TipoDx    string `json:"tipo_dx"`
		GrupoEdad string `json:"grupo_edad"`
		Cantidad  int    `json:"cantidad"`
	} `json:"detalle"`
	TIA *float64 `json:"TIA_100k"`
}

func (r caseResponse) record() Record {
	rec := Record{Total: r.Total}
	for _, d := range r.Detalle {
		label := d.TipoDx
		if label == "" {
			label = d.GrupoEdad
		}
		rec.Breakdown = append(rec.Breakdown, Count{Label: label, Count: d.Cantidad})
	}
	if r.TIA != nil {
		rec.Rate, rec.HasRate = *r.TIA, true
	}
	return rec
}

type edasResponse struct {
	Total int `json:"total"`
	DAA   int `json:"daa"`
	DIS   int `json:"dis"`
}

type irasResponse struct {
	Total         int `json:"total"`
	IRANoNeumonia int `json:"ira_no_neumonia"`
	SobAsma       int `json:"sob_asma"`
	NeumoniaGrave int `json:"neumonia_grave"`
	Neumonia      int `json:"neumonia"`
}

type tiaRow struct {
	Unit       string  `json:"Distrito_EESS"`
	Cases      int     `json:"casos"`
	Population int     `json:"poblacion_total"`
	Rate       float64 `json:"TIA_100k"`
	District   string  `json:"Distrito"`
}

// UnitRecord implements Source.
func (s *HTTPSource) UnitRecord(ctx context.Context, key Key, unit string) (Record, error) {
	kind := Classify(key.Dataset)
	if kind == KindTBTIA {
		all, err := s.BulkRecords(ctx, key)
		if err != nil {
			return Record{}, err
		}
		return all[geo.NormalizeUnit(unit)], nil
	}

	if key.Geography == geo.Facility {
		var r caseResponse
		q := url.Values{"establecimiento": {unit}, "enfermedad": {key.Dataset}}
		if err := s.getJSON(ctx, "/api/casos_enfermedad_establecimiento", q, &r); err != nil {
			return Record{}, err
		}
		return r.record(), nil
	}

	switch kind {
	case KindEDAS:
		var r edasResponse
		if err := s.getJSON(ctx, "/api/edas/"+url.PathEscape(geo.NormalizeUnit(unit)), nil, &r); err != nil {
			return Record{}, err
		}
		return Record{Total: r.Total, Breakdown: []Count{
			{Label: "DAA", Count: r.DAA},
			{Label: "DIS", Count: r.DIS},
		}}, nil

	case KindIRAS:
		var r irasResponse
		if err := s.getJSON(ctx, "/api/iras/"+url.PathEscape(geo.NormalizeUnit(unit)), nil, &r); err != nil {
			return Record{}, err
		}
		return Record{Total: r.Total, Breakdown: []Count{
			{Label: "IRA NO NEUMONIA", Count: r.IRANoNeumonia},
			{Label: "SOB/ASMA", Count: r.SobAsma},
			{Label: "NEUMONÍA GRAVE", Count: r.NeumoniaGrave},
			{Label: "NEUMONÍA", Count: r.Neumonia},
		}}, nil

	case KindFebriles:
		var r caseResponse
		if err := s.getJSON(ctx, "/api/febriles_distrito", url.Values{"distrito": {unit}}, &r); err != nil {
			return Record{}, err
		}
		return r.record(), nil
	}

	var r caseResponse
	q := url.Values{"distrito": {unit}, "enfermedad": {key.Dataset}}
	if err := s.getJSON(ctx, "/api/casos_enfermedad", q, &r); err != nil {
		return Record{}, err
	}
	return r.record(), nil
}

// BulkRecords implements BulkSource for the incidence-rate tables and, when
// enabled, generic district counts.
func (s *HTTPSource) BulkRecords(ctx context.Context, key Key) (map[string]Record, error) {
	switch kind := Classify(key.Dataset); {
	case kind == KindTBTIA:
		path := "/tb_tia_total"
		if key.Geography == geo.Facility {
			path = "/tb_tia_total_EESS_all"
		}
		var rows []tiaRow
		if err := s.getJSON(ctx, path, nil, &rows); err != nil {
			return nil, err
		}
		out := make(map[string]Record, len(rows))
		for _, row := range rows {
			name := row.District
			if key.Geography == geo.Facility {
				name = row.Unit
			}
			k := geo.NormalizeUnit(name)
			if k == "" {
				continue
			}
			if _, dup := out[k]; dup {
				debug.Log("casedata: %s lists %q twice, keeping the first row", path, name)
				continue
			}
			out[k] = Record{Total: row.Cases, Rate: row.Rate, HasRate: true}
		}
		return out, nil

	case kind == KindGeneric && key.Geography == geo.District && s.BulkCounts:
		var counts map[string]int
		q := url.Values{"enfermedad": {key.Dataset}}
		if err := s.getJSON(ctx, "/api/casos_por_distrito", q, &counts); err != nil {
			return nil, err
		}
		out := make(map[string]Record, len(counts))
		for name, n := range counts {
			out[geo.NormalizeUnit(name)] = Record{Total: n}
		}
		return out, nil
	}
	return nil, ErrNoBulk
}

// Population implements Source.
func (s *HTTPSource) Population(ctx context.Context, ds geo.Dataset, unit string) (Population, error) {
	path, param := "/api/poblacion", "distrito"
	if ds == geo.Facility {
		path, param = "/api/poblacion_establecimiento", "establecimiento"
	}
	var raw json.RawMessage
	if err := s.getJSON(ctx, path, url.Values{param: {unit}}, &raw); err != nil {
		return Population{}, err
	}
	var probe struct {
		Total *int `json:"POBLACION_TOTAL"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Population{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	if probe.Total == nil {
		return Population{}, fmt.Errorf("%s %q: %w", ds, unit, ErrNoPopulation)
	}
	var p Population
	if err := json.Unmarshal(raw, &p); err != nil {
		return Population{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return p, nil
}
