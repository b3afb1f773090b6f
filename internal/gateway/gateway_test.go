package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aldwick/wardview/internal/apperr"
	"github.com/aldwick/wardview/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, 2*time.Second)
}

func TestTracked_NormalizesWirePayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tracked" {
			t.Errorf("path = %q, want /tracked", r.URL.Path)
		}
		io.WriteString(w, `[
			{"track_id":"T1","patient_id":"P1","position":{"x":12,"y":34},"map_position":{"x":120,"y":340},"person_type":"patient"},
			{"track_id":"T2","position":{"x":1,"y":1},"map_position":{"x":50,"y":60},"person_type":"staff"},
			{"track_id":"T3","map_position":{"x":5,"y":6},"person_type":"ghost"}
		]`)
	})

	got, err := c.Tracked(context.Background())
	if err != nil {
		t.Fatalf("Tracked failed: %v", err)
	}
	want := []model.TrackedEntity{
		{TrackID: "T1", Position: model.Position{X: 120, Y: 340}, Kind: model.KindSubject, LinkedSubjectID: "P1"},
		{TrackID: "T2", Position: model.Position{X: 50, Y: 60}, Kind: model.KindStaff},
		{TrackID: "T3", Position: model.Position{X: 5, Y: 6}, Kind: model.KindUnknown},
	}
	if len(got) != len(want) {
		t.Fatalf("entities = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entity %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestStats_MapsLegacyFieldNames(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"total_tracked":7,"tagged_patients":4,"untagged":2,"staff_count":1,"critical_located":2,"urgent_located":1}`)
	})

	stats, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Enrolled != 4 || stats.Unidentified != 2 {
		t.Errorf("stats = %+v, want enrolled=4 unidentified=2", stats)
	}
	if stats.TotalTracked != 7 || stats.StaffCount != 1 || stats.CriticalLocated != 2 || stats.UrgentLocated != 1 {
		t.Errorf("stats = %+v, remaining fields mismapped", stats)
	}
}

func TestNon2xx_BecomesTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := c.Subjects(context.Background())
	var te *apperr.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if te.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", te.Status)
	}
	if te.Op != "list subjects" {
		t.Errorf("op = %q, want list subjects", te.Op)
	}
}

func TestUnreachable_BecomesTransportError(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", 500*time.Millisecond)
	if err := c.Health(context.Background()); !apperr.IsTransport(err) {
		t.Errorf("error = %v, want TransportError", err)
	}
}

func TestEnroll_SendsJSONBody(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})

	if err := c.Enroll(context.Background(), "T9", "P9"); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if gotPath != "POST /enroll" {
		t.Errorf("request = %q, want POST /enroll", gotPath)
	}
	if gotBody["track_id"] != "T9" || gotBody["subject_id"] != "P9" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestUnenroll_UsesDeleteRoute(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
	})

	if err := c.Unenroll(context.Background(), "T9"); err != nil {
		t.Fatalf("Unenroll failed: %v", err)
	}
	if gotPath != "DELETE /enroll/T9" {
		t.Errorf("request = %q, want DELETE /enroll/T9", gotPath)
	}
}

func TestAdjustRisk_TranslatesDirectionTokens(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
	})

	cases := []struct {
		dir  model.RiskDirection
		want string
	}{
		{model.DirectionWorsen, "POST /demo/vitals/P1/worse"},
		{model.DirectionImprove, "POST /demo/vitals/P1/better"},
	}
	for _, tc := range cases {
		if err := c.AdjustRisk(context.Background(), "P1", tc.dir); err != nil {
			t.Fatalf("AdjustRisk(%s) failed: %v", tc.dir, err)
		}
		if gotPath != tc.want {
			t.Errorf("request = %q, want %q", gotPath, tc.want)
		}
	}

	// Invalid tokens never leave the process.
	gotPath = ""
	if err := c.AdjustRisk(context.Background(), "P1", model.RiskDirection("worse")); !apperr.IsValidation(err) {
		t.Errorf("wire token = %v, want ValidationError", err)
	}
	if gotPath != "" {
		t.Errorf("invalid direction must not hit the server, got %q", gotPath)
	}
}

func TestSubject_DecodesVitals(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/subjects/P7" {
			t.Errorf("path = %q, want /subjects/P7", r.URL.Path)
		}
		io.WriteString(w, `{"subject_id":"P7","display_name":"Bed 7","age":81,"risk_score":10,"vitals":{"hr":112,"spo2":88.5}}`)
	})

	rec, err := c.Subject(context.Background(), "P7")
	if err != nil {
		t.Fatalf("Subject failed: %v", err)
	}
	if rec.Band() != model.BandHigh {
		t.Errorf("band = %q, want high", rec.Band())
	}
	if rec.Vitals["spo2"] != 88.5 {
		t.Errorf("vitals = %v", rec.Vitals)
	}
}

func TestLayout_DecodesZones(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"width":800,"height":600,"zones":[{"name":"Triage","x":10,"y":20,"width":200,"height":150,"color":"#eee"}]}`)
	})

	layout, err := c.Layout(context.Background())
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}
	if layout.Width != 800 || layout.Height != 600 || len(layout.Zones) != 1 {
		t.Fatalf("layout = %+v", layout)
	}
	if layout.Zones[0].Name != "Triage" || layout.Zones[0].Width != 200 {
		t.Errorf("zone = %+v", layout.Zones[0])
	}
}
