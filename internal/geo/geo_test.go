package geo

import (
	"math"
	"testing"

	"github.com/ivankudzin/matchlink/internal/domain"
)

func coordPtr(lat, lon float64) *domain.Coordinate {
	return &domain.Coordinate{Lat: lat, Lon: lon}
}

func TestDistanceKM(t *testing.T) {
	tests := []struct {
		name      string
		a         domain.Coordinate
		b         domain.Coordinate
		want      float64
		tolerance float64
	}{
		{name: "same point", a: domain.Coordinate{Lat: 53.9, Lon: 27.56}, b: domain.Coordinate{Lat: 53.9, Lon: 27.56}, want: 0, tolerance: 1e-9},
		{name: "equator tenth degree", a: domain.Coordinate{}, b: domain.Coordinate{Lat: 0, Lon: 0.1}, want: 11.12, tolerance: 0.05},
		{name: "equator five degrees", a: domain.Coordinate{}, b: domain.Coordinate{Lat: 0, Lon: 5}, want: 555.97, tolerance: 1.0},
		{name: "minsk to brest", a: domain.Coordinate{Lat: 53.9, Lon: 27.5667}, b: domain.Coordinate{Lat: 52.0976, Lon: 23.7341}, want: 323.5, tolerance: 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKM(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Fatalf("unexpected distance: got %f want %f", got, tt.want)
			}
		})
	}
}

func TestDistanceKMSymmetry(t *testing.T) {
	pairs := []struct {
		a domain.Coordinate
		b domain.Coordinate
	}{
		{domain.Coordinate{Lat: 0, Lon: 0}, domain.Coordinate{Lat: 45, Lon: 90}},
		{domain.Coordinate{Lat: -33.86, Lon: 151.2}, domain.Coordinate{Lat: 40.71, Lon: -74.0}},
		{domain.Coordinate{Lat: 89.9, Lon: 10}, domain.Coordinate{Lat: -89.9, Lon: -170}},
	}

	for _, p := range pairs {
		forward := DistanceKM(p.a, p.b)
		backward := DistanceKM(p.b, p.a)
		if math.Abs(forward-backward) > 1e-9 {
			t.Fatalf("distance not symmetric: %f vs %f", forward, backward)
		}
	}
}

func TestFilterByRadius(t *testing.T) {
	origin := domain.Coordinate{Lat: 0, Lon: 0}
	candidates := []domain.Candidate{
		{UserID: 1, Coordinate: coordPtr(0, 5)},
		{UserID: 2, Coordinate: coordPtr(0, 0.1)},
		{UserID: 3},
		{UserID: 4, Coordinate: coordPtr(200, 0)},
	}

	got := FilterByRadius(candidates, origin, 50)
	if len(got) != 1 {
		t.Fatalf("unexpected result size: got %d want 1", len(got))
	}
	if got[0].UserID != 2 {
		t.Fatalf("unexpected candidate: got %d want 2", got[0].UserID)
	}
	if math.Abs(got[0].DistanceKM-11.12) > 0.05 {
		t.Fatalf("unexpected annotated distance: %f", got[0].DistanceKM)
	}
}

func TestFilterByRadiusSorted(t *testing.T) {
	origin := domain.Coordinate{Lat: 0, Lon: 0}
	candidates := []domain.Candidate{
		{UserID: 1, Coordinate: coordPtr(0, 3)},
		{UserID: 2, Coordinate: coordPtr(0, 1)},
		{UserID: 3, Coordinate: coordPtr(0, 2)},
		{UserID: 4, Coordinate: coordPtr(0, 1)},
	}

	got := FilterByRadius(candidates, origin, 1000)
	if len(got) != 4 {
		t.Fatalf("unexpected result size: got %d want 4", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].DistanceKM < got[i-1].DistanceKM {
			t.Fatalf("result not sorted at %d: %f < %f", i, got[i].DistanceKM, got[i-1].DistanceKM)
		}
	}
	// equal distances keep input order
	if got[0].UserID != 2 || got[1].UserID != 4 {
		t.Fatalf("tie not stable: got %d,%d want 2,4", got[0].UserID, got[1].UserID)
	}
}

func TestFilterByRadiusInvalidOrigin(t *testing.T) {
	candidates := []domain.Candidate{{UserID: 1, Coordinate: coordPtr(0, 0)}}
	if got := FilterByRadius(candidates, domain.Coordinate{Lat: 91, Lon: 0}, 50); got != nil {
		t.Fatalf("expected nil for invalid origin, got %v", got)
	}
	if got := FilterByRadius(candidates, domain.Coordinate{Lat: math.NaN(), Lon: 0}, 50); got != nil {
		t.Fatalf("expected nil for NaN origin, got %v", got)
	}
}
