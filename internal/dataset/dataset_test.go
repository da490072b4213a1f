package dataset

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func sample(n int) Data {
	d := Data{}
	for i := 0; i < n; i++ {
		f := float64(i)
		d.X = append(d.X, [3]float64{f, 0, 0})
		d.A = append(d.A, [3]float64{0, f, 0})
		d.U = append(d.U, -f)
	}
	return d
}

func TestValidate(t *testing.T) {
	if err := sample(3).Validate(); err != nil {
		t.Fatal(err)
	}
	bad := sample(3)
	bad.U = bad.U[:2]
	if err := bad.Validate(); !errors.Is(err, ErrLength) {
		t.Errorf("got %v, want ErrLength", err)
	}
	if err := (Data{}).Validate(); !errors.Is(err, ErrLength) {
		t.Errorf("empty data: got %v", err)
	}
}

func TestSplitKeepsSamplesTogether(t *testing.T) {
	d := sample(20)
	train, val := d.Split(0.25, rand.New(rand.NewPCG(1, 2)))
	if train.Len() != 15 || val.Len() != 5 {
		t.Fatalf("split sizes %d/%d", train.Len(), val.Len())
	}
	seen := map[float64]bool{}
	for _, part := range []Data{train, val} {
		for i := range part.X {
			if part.A[i][1] != part.X[i][0] || part.U[i] != -part.X[i][0] {
				t.Errorf("sample %v lost its pairing", part.X[i])
			}
			seen[part.X[i][0]] = true
		}
	}
	if len(seen) != 20 {
		t.Errorf("split dropped or duplicated samples: %d unique", len(seen))
	}
}

func TestBatches(t *testing.T) {
	tests := []struct {
		n, size int
		want    int
	}{
		{10, 3, 4},
		{10, 10, 1},
		{10, 0, 1},
		{10, 64, 1},
	}
	for _, tt := range tests {
		b := Batches(tt.n, tt.size, rand.New(rand.NewPCG(3, 4)))
		if len(b) != tt.want {
			t.Errorf("n=%d size=%d: %d batches, want %d", tt.n, tt.size, len(b), tt.want)
		}
		total := 0
		for _, batch := range b {
			total += len(batch)
		}
		if total != tt.n {
			t.Errorf("n=%d size=%d: covered %d samples", tt.n, tt.size, total)
		}
	}
	ordered := Batches(5, 2, nil)
	if ordered[0][0] != 0 || ordered[2][0] != 4 {
		t.Errorf("unshuffled batches out of order: %v", ordered)
	}
}

func TestMatricesRoundTrip(t *testing.T) {
	d := sample(4)
	x, a, u := d.Matrices()
	if got := Rows(x); got[3] != d.X[3] {
		t.Errorf("rows %v", got)
	}
	if got := Rows(a); got[2] != d.A[2] {
		t.Errorf("rows %v", got)
	}
	if got := Column(u); got[1] != -1 {
		t.Errorf("column %v", got)
	}
}
