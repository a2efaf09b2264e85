package steps

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
)

func TestChooseK(t *testing.T) {
	cases := map[int]int{0: 2, 1: 2, 2: 2, 5: 2, 6: 2, 8: 2, 9: 3, 12: 4, 15: 5, 16: 5, 100: 5}
	for n, want := range cases {
		if got := ChooseK(n); got != want {
			t.Fatalf("ChooseK(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestKMeansPartitionsEveryPoint(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for n := 1; n <= 20; n++ {
		points := make([]Point, n)
		for i := range points {
			points[i] = Point{ID: uuid.New(), Vector: randomVector(rng, 8)}
		}
		k := ChooseK(n)
		buckets := KMeans(points, k, 25)
		if len(buckets) != k {
			t.Fatalf("n=%d: got %d buckets, want %d", n, len(buckets), k)
		}
		seen := map[uuid.UUID]int{}
		for _, b := range buckets {
			for _, id := range b {
				seen[id]++
			}
		}
		if len(seen) != n {
			t.Fatalf("n=%d: %d distinct ids assigned", n, len(seen))
		}
		for id, c := range seen {
			if c != 1 {
				t.Fatalf("n=%d: id %s assigned %d times", n, id, c)
			}
		}
	}
}

func TestKMeansSeparatesGroups(t *testing.T) {
	a1, a2, b1, b2 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	points := []Point{
		{ID: a1, Vector: []float32{1, 0.1, 0}},
		{ID: b1, Vector: []float32{0, 0.1, 1}},
		{ID: a2, Vector: []float32{0.9, 0, 0.1}},
		{ID: b2, Vector: []float32{0.1, 0, 0.9}},
	}
	buckets := KMeans(points, 2, 25)
	where := map[uuid.UUID]int{}
	for i, b := range buckets {
		for _, id := range b {
			where[id] = i
		}
	}
	if where[a1] != where[a2] || where[b1] != where[b2] || where[a1] == where[b1] {
		t.Fatalf("unexpected partition: %v", buckets)
	}
}

func TestKMeansMoreClustersThanPoints(t *testing.T) {
	points := []Point{{ID: uuid.New(), Vector: []float32{1, 0}}, {ID: uuid.New(), Vector: []float32{0, 1}}}
	buckets := KMeans(points, 5, 25)
	if len(buckets) != 5 {
		t.Fatalf("got %d buckets, want 5", len(buckets))
	}
	total := 0
	for _, b := range buckets {
		total += len(b)
	}
	if total != 2 {
		t.Fatalf("assigned %d points, want 2", total)
	}
}

func TestKMeansEmpty(t *testing.T) {
	buckets := KMeans(nil, 3, 25)
	if len(buckets) != 3 {
		t.Fatalf("got %d buckets, want 3", len(buckets))
	}
	for _, b := range buckets {
		if b == nil || len(b) != 0 {
			t.Fatalf("expected empty non-nil buckets, got %v", buckets)
		}
	}
}

func TestClusterScenarioDocuments(t *testing.T) {
	f := newFixture(t)
	org, docs := f.seedScenario()
	f.embedAll(org.ID, docs, f.now)

	rows, _ := fakeEmbeddings{f.s}.ListByOrganization(dbcOf(t), org.ID)
	clusters := clusterRows(rows)
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}
	where := map[uuid.UUID]int{}
	for i, c := range clusters {
		for _, id := range c {
			where[id] = i
		}
	}
	onboardingGuide, expense, checklist := docs[0].ID, docs[1].ID, docs[2].ID
	if where[onboardingGuide] != where[checklist] {
		t.Fatalf("onboarding documents split: %v", clusters)
	}
	if where[expense] == where[onboardingGuide] {
		t.Fatalf("expense policy grouped with onboarding: %v", clusters)
	}
}

func TestClusterRowsNeedsTwoEmbeddings(t *testing.T) {
	f := newFixture(t)
	org, docs := f.seedScenario()
	f.embedAll(org.ID, docs[:1], f.now)
	rows, _ := fakeEmbeddings{f.s}.ListByOrganization(dbcOf(t), org.ID)
	if got := clusterRows(rows); got != nil {
		t.Fatalf("expected no clusters for one embedding, got %v", got)
	}
}
