package geo

import (
	"math"
	"math/rand"
	"testing"
)

func TestDistanceMeters_ZeroDistance(t *testing.T) {
	p := Point{Lat: 50.0, Lng: 30.0}
	d := DistanceMeters(p, p)

	if d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestDistanceMeters_OneDegreeLatitude(t *testing.T) {
	d := DistanceMeters(Point{Lat: 50.0, Lng: 30.0}, Point{Lat: 51.0, Lng: 30.0})

	// One degree of latitude is roughly 111.2 km.
	if d < 111000 || d > 111500 {
		t.Errorf("expected ~111195m, got %f", d)
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	p1 := Point{Lat: 50.4501, Lng: 30.5234}
	p2 := Point{Lat: 50.4512, Lng: 30.5301}

	d12 := DistanceMeters(p1, p2)
	d21 := DistanceMeters(p2, p1)

	if math.Abs(d12-d21) > 1e-9 {
		t.Errorf("distance not symmetric: %f vs %f", d12, d21)
	}
}

func TestDistanceMeters_SmallOffset(t *testing.T) {
	// 0.001 deg latitude is ~111.2 m.
	d := DistanceMeters(Point{Lat: 50.0, Lng: 30.0}, Point{Lat: 50.001, Lng: 30.0})

	if d < 110 || d > 112 {
		t.Errorf("expected ~111m, got %f", d)
	}
}

func TestEffectiveRadius_ZeroAccuracy(t *testing.T) {
	r := EffectiveRadius(15, 0, MechanicArtifactDetection)

	if r != 15 {
		t.Errorf("expected 15, got %f", r)
	}
}

func TestEffectiveRadius_NegativeAccuracy(t *testing.T) {
	r := EffectiveRadius(15, -3, MechanicArtifactDetection)

	if r != 15 {
		t.Errorf("expected 15, got %f", r)
	}
}

func TestEffectiveRadius_AccuracyBelowBuffer(t *testing.T) {
	r := EffectiveRadius(15, 8, MechanicZone)

	if r != 23 {
		t.Errorf("expected 23, got %f", r)
	}
}

func TestEffectiveRadius_AccuracyCappedByBuffer(t *testing.T) {
	r := EffectiveRadius(2, 50, MechanicArtifactPickup)

	// Pickup buffer is 5m no matter how bad the fix is.
	if r != 7 {
		t.Errorf("expected 7, got %f", r)
	}
}

func TestEffectiveRadius_UnknownMechanicDefaultBuffer(t *testing.T) {
	r := EffectiveRadius(10, 50, Mechanic("teleport"))

	if r != 20 {
		t.Errorf("expected 20, got %f", r)
	}
}

func TestWithinRadius_BoundaryWithAccuracy(t *testing.T) {
	center := Point{Lat: 50.0, Lng: 30.0}
	// ~18m north of center: outside the 15m detection radius raw, inside
	// once a 10m fix is compensated.
	p := Point{Lat: 50.000162, Lng: 30.0}

	if WithinRadius(p, center, 15, 0, MechanicArtifactDetection) {
		t.Error("expected outside without accuracy compensation")
	}
	if !WithinRadius(p, center, 15, 10, MechanicArtifactDetection) {
		t.Error("expected inside with 10m accuracy compensation")
	}
}

func TestSegmentCircleOverlap_Miss(t *testing.T) {
	center := Point{Lat: 50.0, Lng: 30.0}
	p0 := Point{Lat: 50.01, Lng: 29.99}
	p1 := Point{Lat: 50.01, Lng: 30.01}

	overlap := SegmentCircleOverlap(p0, p1, center, 100)

	if overlap != 0 {
		t.Errorf("expected 0 for a segment missing the circle, got %f", overlap)
	}
}

func TestSegmentCircleOverlap_Degenerate(t *testing.T) {
	center := Point{Lat: 50.0, Lng: 30.0}
	p := Point{Lat: 50.0, Lng: 30.0}

	overlap := SegmentCircleOverlap(p, p, center, 100)

	if overlap != 0 {
		t.Errorf("expected 0 for a degenerate segment, got %f", overlap)
	}
}

func TestSegmentCircleOverlap_FullyContained(t *testing.T) {
	center := Point{Lat: 50.0, Lng: 30.0}
	// ~22m segment through the center of a 100m circle.
	p0 := Point{Lat: 49.9999, Lng: 30.0}
	p1 := Point{Lat: 50.0001, Lng: 30.0}

	overlap := SegmentCircleOverlap(p0, p1, center, 100)
	segLen := DistanceMeters(p0, p1)

	if math.Abs(overlap-segLen) > 0.5 {
		t.Errorf("expected overlap ~= segment length %f, got %f", segLen, overlap)
	}
}

func TestSegmentCircleOverlap_CrossesWholeCircle(t *testing.T) {
	center := Point{Lat: 50.0, Lng: 30.0}
	// Segment through the center, well beyond a 50m circle on both sides.
	p0 := Point{Lat: 49.998, Lng: 30.0}
	p1 := Point{Lat: 50.002, Lng: 30.0}

	overlap := SegmentCircleOverlap(p0, p1, center, 50)

	// Chord through the center equals the diameter. The planar degree
	// approximation is within a couple meters at this scale.
	if math.Abs(overlap-100) > 3 {
		t.Errorf("expected ~100m chord, got %f", overlap)
	}
}

func TestSegmentCircleOverlap_NeverExceedsSegmentLength(t *testing.T) {
	center := Point{Lat: 50.0, Lng: 30.0}
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		p0 := Point{Lat: 50.0 + (rng.Float64()-0.5)*0.01, Lng: 30.0 + (rng.Float64()-0.5)*0.01}
		p1 := Point{Lat: 50.0 + (rng.Float64()-0.5)*0.01, Lng: 30.0 + (rng.Float64()-0.5)*0.01}
		radius := rng.Float64() * 300

		overlap := SegmentCircleOverlap(p0, p1, center, radius)
		segLen := DistanceMeters(p0, p1)

		if overlap < 0 {
			t.Fatalf("negative overlap %f", overlap)
		}
		if overlap > segLen+1e-6 {
			t.Fatalf("overlap %f exceeds segment length %f", overlap, segLen)
		}
	}
}

func TestTimeInCircle_StationaryInside(t *testing.T) {
	center := Point{Lat: 50.0, Lng: 30.0}
	p := Point{Lat: 50.0001, Lng: 30.0}

	got := TimeInCircle(p, p, center, 100, 300)

	if got != 300 {
		t.Errorf("expected full 300s, got %f", got)
	}
}

func TestTimeInCircle_StationaryOutside(t *testing.T) {
	center := Point{Lat: 50.0, Lng: 30.0}
	p := Point{Lat: 50.01, Lng: 30.0}

	got := TimeInCircle(p, p, center, 100, 300)

	if got != 0 {
		t.Errorf("expected 0s outside, got %f", got)
	}
}

func TestTimeInCircle_PartialCrossing(t *testing.T) {
	center := Point{Lat: 50.0, Lng: 30.0}
	// Straight pass through the center of a 50m circle over a ~445m path.
	p0 := Point{Lat: 49.998, Lng: 30.0}
	p1 := Point{Lat: 50.002, Lng: 30.0}

	got := TimeInCircle(p0, p1, center, 50, 100)

	segLen := DistanceMeters(p0, p1)
	want := 100 * (100.0 / segLen)
	if math.Abs(got-want) > 1.0 {
		t.Errorf("expected ~%fs inside, got %f", want, got)
	}
}

func TestRandomPointInDisk_AllWithinRadius(t *testing.T) {
	center := Point{Lat: 50.4501, Lng: 30.5234}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		p := RandomPointInDisk(center, 50, rng)
		d := DistanceMeters(center, p)
		if d > 50.001 {
			t.Fatalf("sample %d at %f m exceeds 50m radius", i, d)
		}
	}
}

func TestRandomPointInDisk_RadiusCapped(t *testing.T) {
	center := Point{Lat: 50.0, Lng: 30.0}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		p := RandomPointInDisk(center, 5000, rng)
		d := DistanceMeters(center, p)
		if d > MaxRespawnRadiusMeters+0.01 {
			t.Fatalf("sample %d at %f m exceeds the %f m cap", i, d, MaxRespawnRadiusMeters)
		}
	}
}

func TestRandomPointInDisk_ZeroRadius(t *testing.T) {
	center := Point{Lat: 50.0, Lng: 30.0}
	rng := rand.New(rand.NewSource(1))

	p := RandomPointInDisk(center, 0, rng)

	if p != center {
		t.Errorf("expected center back, got %+v", p)
	}
}

func TestPointValid(t *testing.T) {
	if !(Point{Lat: 50.0, Lng: 30.0}).Valid() {
		t.Error("expected valid")
	}
	if (Point{Lat: 91.0, Lng: 30.0}).Valid() {
		t.Error("expected invalid latitude")
	}
	if (Point{Lat: 50.0, Lng: -181.0}).Valid() {
		t.Error("expected invalid longitude")
	}
}

func TestMercator_Origin(t *testing.T) {
	pt, err := Mercator(Point{Lat: 0, Lng: 0})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	coords, ok := pt.Coordinates()
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	if coords.X != 0 {
		t.Errorf("expected X=0 at origin, got %f", coords.X)
	}
	if coords.Y != 0 {
		t.Errorf("expected Y=0 at origin, got %f", coords.Y)
	}
}

func TestMercator_NortheastQuadrant(t *testing.T) {
	pt, err := Mercator(Point{Lat: 50.4501, Lng: 30.5234})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	coords, ok := pt.Coordinates()
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	if coords.X <= 0 {
		t.Errorf("expected positive X, got %f", coords.X)
	}
	if coords.Y <= 0 {
		t.Errorf("expected positive Y, got %f", coords.Y)
	}
}

func TestMercator_InvalidCoordinates(t *testing.T) {
	_, err := Mercator(Point{Lat: 95.0, Lng: 30.0})

	if err == nil {
		t.Fatal("expected error for out-of-range latitude")
	}
}
