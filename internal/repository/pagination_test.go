package repository

import (
	"math"
	"testing"
)

func TestNormalizePageRequest(t *testing.T) {
	tests := []struct {
		name string
		in   PageRequest
		want PageRequest
	}{
		{name: "zero value gets defaults", in: PageRequest{}, want: PageRequest{Page: DefaultPage, PageSize: DefaultPageSize}},
		{name: "negative page", in: PageRequest{Page: -5, PageSize: 10}, want: PageRequest{Page: DefaultPage, PageSize: 10}},
		{name: "negative size", in: PageRequest{Page: 2, PageSize: -1}, want: PageRequest{Page: 2, PageSize: DefaultPageSize}},
		{name: "size above max", in: PageRequest{Page: 3, PageSize: MaxPageSize + 1}, want: PageRequest{Page: 3, PageSize: MaxPageSize}},
		{name: "dashboard page untouched", in: PageRequest{Page: 4, PageSize: 20}, want: PageRequest{Page: 4, PageSize: 20}},
		{name: "page past int range", in: PageRequest{Page: 200000000000000000, PageSize: 50}, want: PageRequest{Page: math.MaxInt / 50, PageSize: 50}},
		{name: "max page with max size", in: PageRequest{Page: math.MaxInt, PageSize: math.MaxInt}, want: PageRequest{Page: math.MaxInt / MaxPageSize, PageSize: MaxPageSize}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizePageRequest(tc.in)
			if got != tc.want {
				t.Fatalf("NormalizePageRequest(%+v) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestPageRequestOffset(t *testing.T) {
	tests := []struct {
		in   PageRequest
		want int
	}{
		{in: PageRequest{Page: 1, PageSize: 20}, want: 0},
		{in: PageRequest{Page: 3, PageSize: 20}, want: 40},
		{in: NormalizePageRequest(PageRequest{}), want: 0},
	}
	for _, tc := range tests {
		if got := tc.in.Offset(); got != tc.want {
			t.Fatalf("%+v.Offset() = %d, want %d", tc.in, got, tc.want)
		}
	}

	huge := NormalizePageRequest(PageRequest{Page: 200000000000000000, PageSize: 50})
	if off := huge.Offset(); off < 0 || off > math.MaxInt-50 {
		t.Fatalf("offset for an out-of-range page wrapped: %d", off)
	}
}

func TestCalcTotalPages(t *testing.T) {
	tests := []struct {
		total    int64
		pageSize int
		want     int
	}{
		{total: 0, pageSize: 20, want: 0},
		{total: -3, pageSize: 20, want: 0},
		{total: 7, pageSize: 0, want: 0},
		{total: 1, pageSize: 20, want: 1},
		{total: 20, pageSize: 20, want: 1},
		{total: 41, pageSize: 20, want: 3},
		{total: 1001, pageSize: MaxPageSize, want: 3},
	}
	for _, tc := range tests {
		if got := CalcTotalPages(tc.total, tc.pageSize); got != tc.want {
			t.Fatalf("CalcTotalPages(%d, %d) = %d, want %d", tc.total, tc.pageSize, got, tc.want)
		}
	}
}

func FuzzNormalizePageRequest(f *testing.F) {
	f.Add(0, 0)
	f.Add(-1, -1)
	f.Add(1, 1)
	f.Add(10, MaxPageSize+50)
	f.Add(200000000000000000, 50)
	f.Add(math.MaxInt, 1)

	f.Fuzz(func(t *testing.T, page, pageSize int) {
		got := NormalizePageRequest(PageRequest{Page: page, PageSize: pageSize})
		if got.Page < 1 {
			t.Fatalf("page below 1: %+v", got)
		}
		if got.PageSize < 1 || got.PageSize > MaxPageSize {
			t.Fatalf("page size out of range: %+v", got)
		}
		if got.Offset() < 0 {
			t.Fatalf("negative offset %d for %+v", got.Offset(), got)
		}
		if page >= 1 && got.Page > page {
			t.Fatalf("page raised from %d to %d", page, got.Page)
		}
		if again := NormalizePageRequest(got); again != got {
			t.Fatalf("normalizing twice changed %+v to %+v", got, again)
		}
	})
}

func FuzzCalcTotalPages(f *testing.F) {
	f.Add(int64(0), 10)
	f.Add(int64(10), 0)
	f.Add(int64(21), 20)
	f.Add(int64(1<<62), 1)
	f.Add(int64(math.MaxInt64), MaxPageSize)

	f.Fuzz(func(t *testing.T, total int64, pageSize int) {
		got := CalcTotalPages(total, pageSize)
		if total <= 0 || pageSize <= 0 {
			if got != 0 {
				t.Fatalf("CalcTotalPages(%d, %d) = %d, want 0", total, pageSize, got)
			}
			return
		}
		// got is the ceiling of total/pageSize, checked without multiplying.
		size := int64(pageSize)
		full := total / size
		want := full
		if total%size != 0 {
			want++
		}
		if int64(got) != want {
			t.Fatalf("CalcTotalPages(%d, %d) = %d, want %d", total, pageSize, got, want)
		}
	})
}
