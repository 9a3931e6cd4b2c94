package bitmap

import "testing"

func TestSetTest(t *testing.T) {
	btmp := MkBitmap(4)
	for i := 0; i < 32; i++ {
		if btmp.Test(i) {
			t.Fatalf("fresh bitmap has bit %d set", i)
		}
	}
	btmp.Set(0, 1)
	btmp.Set(9, 1)
	btmp.Set(31, 1)
	for i := 0; i < 32; i++ {
		want := i == 0 || i == 9 || i == 31
		if btmp.Test(i) != want {
			t.Fatalf("bit %d = %v, want %v", i, btmp.Test(i), want)
		}
	}
	btmp.Set(9, 0)
	if btmp.Test(9) {
		t.Fatalf("bit 9 still set after clear")
	}
}

func TestScan(t *testing.T) {
	tests := []struct {
		name string
		set  []int
		cnt  int
		want int
	}{
		{"empty", nil, 1, 0},
		{"empty run", nil, 9, 0},
		{"skip first", []int{0}, 1, 1},
		{"run after gap", []int{0, 1, 2, 4}, 2, 5},
		{"exact fit", []int{0, 10}, 9, 1},
		{"cross byte", []int{5}, 10, 6},
		{"after used run", []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}, 2, 15},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			btmp := MkBitmap(4)
			for _, b := range tc.set {
				btmp.Set(b, 1)
			}
			if got := btmp.Scan(tc.cnt); got != tc.want {
				t.Fatalf("scan(%d) = %d, want %d", tc.cnt, got, tc.want)
			}
		})
	}
}

func TestScanFull(t *testing.T) {
	btmp := MkBitmap(2)
	for i := 0; i < 16; i++ {
		btmp.Set(i, 1)
	}
	if got := btmp.Scan(1); got != -1 {
		t.Fatalf("scan of full bitmap = %d, want -1", got)
	}
	btmp.Set(7, 0)
	if got := btmp.Scan(1); got != 7 {
		t.Fatalf("scan after free = %d, want 7", got)
	}
	if got := btmp.Scan(2); got != -1 {
		t.Fatalf("scan(2) with one free bit = %d, want -1", got)
	}
}
